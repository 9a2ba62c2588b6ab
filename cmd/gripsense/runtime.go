package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/gripsense/internal/adapter"
	"github.com/srg/gripsense/internal/adapter/goble"
	"github.com/srg/gripsense/internal/connector"
	"github.com/srg/gripsense/internal/groutine"
	"github.com/srg/gripsense/pkg/config"
)

// newAdapter builds the native adapter. Tests replace it with a scripted one.
var newAdapter = func(cfg *config.Config, logger *logrus.Logger) adapter.Adapter {
	return goble.New(goble.Options{
		ScanDuration: cfg.ScanTimeout,
		DialTimeout:  cfg.DialTimeout,
	}, logger)
}

// env is what every command works with: the resolved config, a logger, a connector
// and the output printer.
type env struct {
	cfg    *config.Config
	logger *logrus.Logger
	conn   *connector.Connector
	out    *printer
}

// newEnv resolves the configuration (defaults, then --config, then --format, then the
// command's own overrides) and builds the connector over a fresh adapter. The caller
// must Quit the connector.
func newEnv(cmd *cobra.Command, override func(cfg *config.Config)) (*env, error) {
	cfg := config.DefaultConfig()
	fromFile := false
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg, fromFile = loaded, true
	}
	if format, _ := cmd.Flags().GetString("format"); format != "" {
		cfg.OutputFormat = format
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := configureLogger(cmd, cfg, fromFile)
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:    cfg,
		logger: logger,
		conn:   connector.New(newAdapter(cfg, logger), *cfg, logger),
		out:    newPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg.OutputFormat),
	}, nil
}

// withInterrupt returns a context cancelled on SIGINT or SIGTERM.
func withInterrupt(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	groutine.Go(ctx, "signal-watch", func(ctx context.Context) {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	})
	return ctx, cancel
}

// scanResult maps the outcome of a scan driven by Connector.Run: a finished scan is a
// success, a deadline is a timeout and anything else (an interrupt) passes through.
func scanResult(runErr error, finished bool) error {
	if finished {
		return nil
	}
	if errors.Is(runErr, context.DeadlineExceeded) {
		return ErrScanTimeout
	}
	return runErr
}
