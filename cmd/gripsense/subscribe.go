package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/gripsense/internal/connector"
	"github.com/srg/gripsense/internal/discovery"
	"github.com/srg/gripsense/internal/frame"
)

type subscribeOptions struct {
	service  string
	char     string
	duration time.Duration
	count    int
}

func newSubscribeCmd() *cobra.Command {
	opts := &subscribeOptions{}
	cmd := &cobra.Command{
		Use:   "subscribe [device-id]",
		Short: "Stream decoded sensor readings",
		Long: `Subscribes to the sensor data characteristic and prints every reading that
differs from the previous one. Without a device ID the first grip found by a scan
is used. Runs until interrupted, --duration elapses or --count readings arrive.`,
		Example: `  gripsense subscribe
  gripsense subscribe AA:BB:CC:DD:EE:FF --count 10 --format json
  gripsense subscribe AA:BB:CC:DD:EE:FF --char "Sensor Data"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscribe(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.service, "service", "", "Service UUID (default: profile service_uuid)")
	cmd.Flags().StringVar(&opts.char, "char", "", "Characteristic UUID or display name (default: profile characteristic_uuid)")
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "Stop after this long (0 streams until interrupted)")
	cmd.Flags().IntVarP(&opts.count, "count", "c", 0, "Stop after this many readings (0 is unlimited)")
	return cmd
}

func runSubscribe(cmd *cobra.Command, args []string, opts *subscribeOptions) error {
	e, err := newEnv(cmd, nil)
	if err != nil {
		return err
	}
	defer e.conn.Quit()

	ctx, cancel := withInterrupt(cmd.Context())
	defer cancel()

	deviceID := ""
	if len(args) > 0 {
		deviceID = args[0]
	} else if deviceID, err = findDevice(ctx, e); err != nil {
		return err
	}

	serviceUUID := e.cfg.Profile.ServiceUUID
	if opts.service != "" {
		serviceUUID = opts.service
	}
	charUUID := e.cfg.Profile.CharacteristicUUID
	if opts.char != "" {
		charUUID = opts.char
	}

	stopProgress := e.out.startProgress("Subscribing", "connecting", e.cfg.DialTimeout)
	err = e.conn.Subscribe(deviceID, serviceUUID, charUUID)
	stopProgress()
	if err != nil {
		return err
	}
	e.out.success("Streaming from %s (Ctrl+C to stop)", deviceID)

	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()
	if opts.duration > 0 {
		streamCtx, stopStream = context.WithTimeout(ctx, opts.duration)
		defer stopStream()
	}

	var received int
	done := false
	e.conn.SetHandlers(connector.Handlers{Error: e.out.warn})
	e.conn.OnReading(func(r frame.SensorReading) {
		if done {
			return
		}
		e.out.reading(r)
		received++
		if opts.count > 0 && received >= opts.count {
			done = true
			stopStream()
		}
	})

	err = e.conn.Run(streamCtx)
	switch {
	case done, errors.Is(err, context.DeadlineExceeded):
		return nil
	default:
		return err
	}
}

// findDevice scans until the first device passing the profile's name filter.
func findDevice(ctx context.Context, e *env) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ScanTimeout+scanGrace)
	defer cancel()

	stopProgress := e.out.startProgress("Looking for a grip", "scanning", e.cfg.ScanTimeout)
	defer stopProgress()

	var picked string
	finished := false
	e.conn.SetHandlers(connector.Handlers{
		Device: func(d discovery.DeviceRecord) {
			if picked == "" {
				picked = d.ID
				cancel()
			}
		},
		ScanFinished: func(discovery.Kind) {
			finished = true
			cancel()
		},
		Error: e.out.warn,
	})

	if err := e.conn.StartDeviceScan(); err != nil {
		return "", err
	}
	runErr := e.conn.Run(ctx)
	_ = e.conn.StopDeviceScan()

	if picked != "" {
		e.logger.WithField("device", picked).Info("Using first matching device")
		return picked, nil
	}
	if finished {
		return "", ErrNoDevice
	}
	return "", scanResult(runErr, false)
}
