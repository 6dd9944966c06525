package util

import "strings"

// SanitizeForLog replaces every run of ASCII control characters (newlines,
// tabs, DEL...) with a single space so upstream or user supplied values
// cannot forge log lines.
func SanitizeForLog(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	inRun := false
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			if !inRun {
				b.WriteByte(' ')
			}
			inRun = true
			continue
		}
		inRun = false
		b.WriteRune(r)
	}
	return b.String()
}

// SanitizeAllForLog applies SanitizeForLog to every element, typically a
// repeated query parameter.
func SanitizeAllForLog(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = SanitizeForLog(v)
	}
	return out
}
