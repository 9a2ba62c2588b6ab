package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newWriteCmd() *cobra.Command {
	var asHex bool
	cmd := &cobra.Command{
		Use:   "write <device-id> <service-uuid> <char-uuid> <data>",
		Short: "Write a payload to a characteristic",
		Long: `Writes data to a characteristic and waits for the device to acknowledge it.
Data is sent as UTF-8 text unless --hex is given.`,
		Example: `  gripsense write AA:BB:CC:DD:EE:FF 00001111-0000-1000-8000-00805f9b34fb 00003005-0000-1000-8000-00805f9b34fb calibrate
  gripsense write AA:BB:CC:DD:EE:FF 1111 3005 "01 02 ff" --hex`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseWriteData(args[3], asHex)
			if err != nil {
				return err
			}
			return runWrite(cmd, args[0], args[1], args[2], data)
		},
	}

	cmd.Flags().BoolVar(&asHex, "hex", false, "Interpret data as hex (spaces, ':' and '-' separators and 0x prefixes allowed)")
	return cmd
}

// parseWriteData converts the command-line data argument into bytes.
func parseWriteData(s string, asHex bool) ([]byte, error) {
	if !asHex {
		return []byte(s), nil
	}

	cleaned := strings.NewReplacer(" ", "", ":", "", "-", "", "0x", "", "0X", "").Replace(s)
	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	return data, nil
}

func runWrite(cmd *cobra.Command, deviceID, serviceUUID, charUUID string, data []byte) error {
	e, err := newEnv(cmd, nil)
	if err != nil {
		return err
	}
	defer e.conn.Quit()

	stopProgress := e.out.startProgress("Writing", "connecting", e.cfg.DialTimeout)
	err = e.conn.Write(deviceID, serviceUUID, charUUID, data)
	stopProgress()
	if err != nil {
		return err
	}

	e.out.success("Wrote %d byte(s) to %s", len(data), charUUID)
	return nil
}
