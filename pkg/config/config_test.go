package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, logrus.InfoLevel, cfg.Level())
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 10*time.Second, cfg.DialTimeout)
	assert.Equal(t, 20*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, FormatText, cfg.OutputFormat)

	assert.Equal(t, "senso", cfg.Profile.NameFilter)
	assert.Equal(t, "00001111-0000-1000-8000-00805f9b34fb", cfg.Profile.ServiceUUID)
	assert.Equal(t, "00003004-0000-1000-8000-00805f9b34fb", cfg.Profile.CharacteristicUUID)
	assert.Empty(t, cfg.Profile.ServiceFilter)
	assert.Empty(t, cfg.Profile.CharacteristicFilter)

	assert.NoError(t, cfg.Validate())
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		want     logrus.Level
	}{
		{name: "creates logger with debug level", logLevel: "debug", want: logrus.DebugLevel},
		{name: "creates logger with info level", logLevel: "info", want: logrus.InfoLevel},
		{name: "creates logger with warn level", logLevel: "warn", want: logrus.WarnLevel},
		{name: "creates logger with error level", logLevel: "error", want: logrus.ErrorLevel},
		{name: "unknown level falls back to info", logLevel: "chatty", want: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.want, logger.GetLevel())

			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestParse_OverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
log_level: debug
scan_timeout: 30s
output_format: json
profile:
  name_filter: ""
  service_filter: "1111"
`))
	require.NoError(t, err)

	assert.Equal(t, logrus.DebugLevel, cfg.Level())
	assert.Equal(t, 30*time.Second, cfg.ScanTimeout)
	assert.Equal(t, FormatJSON, cfg.OutputFormat)
	assert.Empty(t, cfg.Profile.NameFilter, "explicit empty value MUST clear the default")
	assert.Equal(t, "1111", cfg.Profile.ServiceFilter)
	assert.Equal(t, 20*time.Millisecond, cfg.PollInterval, "missing key MUST keep its default")
	assert.Equal(t, "00003004-0000-1000-8000-00805f9b34fb", cfg.Profile.CharacteristicUUID)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "colour: red"},
		{"bad level", "log_level: loud"},
		{"zero poll interval", "poll_interval: 0s"},
		{"negative scan timeout", "scan_timeout: -1s"},
		{"bad format", "output_format: table"},
		{"malformed yaml", "log_level: [debug"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gripsense.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scan_timeout: 3s\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.ScanTimeout)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
