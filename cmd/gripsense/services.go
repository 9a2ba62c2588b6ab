package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/srg/gripsense/internal/connector"
	"github.com/srg/gripsense/internal/discovery"
)

func newServicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "services <device-id>",
		Short: "List the GATT services of a device",
		Long: `Connects to the device and lists its primary services. The profile's
service_filter, when set, narrows the list.`,
		Example: `  gripsense services AA:BB:CC:DD:EE:FF`,
		Args:    cobra.ExactArgs(1),
		RunE:    runServices,
	}
}

func runServices(cmd *cobra.Command, args []string) error {
	deviceID := args[0]

	e, err := newEnv(cmd, nil)
	if err != nil {
		return err
	}
	defer e.conn.Quit()

	ctx, cancel := withInterrupt(cmd.Context())
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, e.cfg.DialTimeout+e.cfg.ScanTimeout)
	defer cancelTimeout()

	stopProgress := e.out.startProgress("Discovering services", "connecting", e.cfg.DialTimeout+e.cfg.ScanTimeout)
	defer stopProgress()

	var records []discovery.ServiceRecord
	finished := false
	e.conn.SetHandlers(connector.Handlers{
		Service: func(s discovery.ServiceRecord) {
			e.out.setPhase("discovering")
			records = append(records, s)
		},
		ScanFinished: func(discovery.Kind) {
			finished = true
			cancel()
		},
		Error: e.out.warn,
	})

	if err := e.conn.StartServiceScan(deviceID); err != nil {
		return err
	}
	if err := scanResult(e.conn.Run(ctx), finished); err != nil {
		return err
	}

	stopProgress()
	e.out.services(deviceID, records)
	return nil
}
