package goble

import (
	"fmt"

	"github.com/go-ble/ble"
)

// formatUUID renders 128-bit UUIDs in the dashed form users type; 16 and 32-bit
// UUIDs keep go-ble's short hex form.
func formatUUID(u ble.UUID) string {
	if len(u) != 16 {
		return u.String()
	}
	b := ble.Reverse(u)
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
