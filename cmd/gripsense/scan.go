package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/gripsense/internal/connector"
	"github.com/srg/gripsense/internal/discovery"
	"github.com/srg/gripsense/pkg/config"
)

// scanGrace is added to the scan deadline so the adapter's own Finished arrives first.
const scanGrace = 2 * time.Second

type scanOptions struct {
	duration time.Duration
	name     string
	all      bool
}

func newScanCmd() *cobra.Command {
	opts := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for nearby sensor grips",
		Long: `Scans for BLE devices and lists those whose advertised name matches the
profile's name filter ("senso" by default). Use --name to match another name or
--all to list every device in range.`,
		Example: `  gripsense scan
  gripsense scan --duration 5s --all
  gripsense scan --name pen --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd, opts)
		},
	}

	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "Scan duration (default: scan_timeout from config)")
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "Only list devices whose name contains this text")
	cmd.Flags().BoolVarP(&opts.all, "all", "a", false, "List every device, ignoring the name filter")
	return cmd
}

func (o *scanOptions) apply(cmd *cobra.Command) func(cfg *config.Config) {
	return func(cfg *config.Config) {
		if o.duration > 0 {
			cfg.ScanTimeout = o.duration
		}
		switch {
		case o.all:
			cfg.Profile.NameFilter = ""
		case cmd.Flags().Changed("name"):
			cfg.Profile.NameFilter = o.name
		}
	}
}

func runScan(cmd *cobra.Command, opts *scanOptions) error {
	e, err := newEnv(cmd, opts.apply(cmd))
	if err != nil {
		return err
	}
	defer e.conn.Quit()

	ctx, cancel := withInterrupt(cmd.Context())
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, e.cfg.ScanTimeout+scanGrace)
	defer cancelTimeout()

	stopProgress := e.out.startProgress("Scanning", "discovering", e.cfg.ScanTimeout)
	defer stopProgress()

	var found int
	finished := false
	e.conn.SetHandlers(connector.Handlers{
		Device: func(d discovery.DeviceRecord) {
			found++
			e.out.device(d)
		},
		ScanFinished: func(discovery.Kind) {
			finished = true
			cancel()
		},
		Error: e.out.warn,
	})

	if err := e.conn.StartDeviceScan(); err != nil {
		return err
	}
	if err := scanResult(e.conn.Run(ctx), finished); err != nil {
		return err
	}

	stopProgress()
	e.out.info("Found %d device(s)", found)
	return nil
}
