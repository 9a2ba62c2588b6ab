package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/srg/gripsense/internal/connector"
	"github.com/srg/gripsense/internal/discovery"
)

func newCharacteristicsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "characteristics <device-id> [service-uuid]",
		Aliases: []string{"chars"},
		Short:   "List the characteristics of a service",
		Long: `Connects to the device and lists the characteristics of one service with
their user descriptions. Without a service UUID the profile's data service is used.`,
		Example: `  gripsense characteristics AA:BB:CC:DD:EE:FF
  gripsense chars AA:BB:CC:DD:EE:FF 0000180f-0000-1000-8000-00805f9b34fb`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runCharacteristics,
	}
}

func runCharacteristics(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd, nil)
	if err != nil {
		return err
	}
	defer e.conn.Quit()

	deviceID := args[0]
	serviceUUID := e.cfg.Profile.ServiceUUID
	if len(args) > 1 {
		serviceUUID = args[1]
	}

	ctx, cancel := withInterrupt(cmd.Context())
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, e.cfg.DialTimeout+e.cfg.ScanTimeout)
	defer cancelTimeout()

	stopProgress := e.out.startProgress("Discovering characteristics", "connecting", e.cfg.DialTimeout+e.cfg.ScanTimeout)
	defer stopProgress()

	var records []discovery.CharacteristicRecord
	finished := false
	e.conn.SetHandlers(connector.Handlers{
		Characteristic: func(c discovery.CharacteristicRecord) {
			e.out.setPhase("discovering")
			records = append(records, c)
		},
		ScanFinished: func(discovery.Kind) {
			finished = true
			cancel()
		},
		Error: e.out.warn,
	})

	if err := e.conn.StartCharacteristicScan(deviceID, serviceUUID); err != nil {
		return err
	}
	if err := scanResult(e.conn.Run(ctx), finished); err != nil {
		return err
	}

	stopProgress()
	e.out.characteristics(serviceUUID, records)
	return nil
}
