package adapter

import "strings"

// NormalizeUUID lower-cases a UUID and strips braces and dashes, so the braced, dashed
// and plain hex forms of one UUID compare equal.
func NormalizeUUID(uuid string) string {
	uuid = strings.TrimSpace(uuid)
	uuid = strings.TrimPrefix(uuid, "{")
	uuid = strings.TrimSuffix(uuid, "}")
	uuid = strings.ReplaceAll(uuid, "-", "")
	return strings.ToLower(uuid)
}

// SameUUID reports whether two UUIDs are equal after normalization.
func SameUUID(a, b string) bool {
	return NormalizeUUID(a) == NormalizeUUID(b)
}

// ContainsFold reports whether substr is within s, ignoring case. An empty substr
// always matches.
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
