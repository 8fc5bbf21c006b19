package secret

import "strings"

// Mask returns a representation of a secret that is safe to log.
// - length <= 5: fully masked
// - length <= 20: first and last characters visible
// - length > 20: first 4 and last 2 characters visible (keeps "gsk_" style prefixes readable)
func Mask(s string) string {
	n := len(s)
	switch {
	case n == 0:
		return ""
	case n <= 5:
		return strings.Repeat("*", n)
	case n <= 20:
		return s[:1] + strings.Repeat("*", n-2) + s[n-1:]
	default:
		return s[:4] + strings.Repeat("*", n-6) + s[n-2:]
	}
}
