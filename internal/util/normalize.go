package util

import (
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`[\w.+\-]+@[\w.\-]+\.[a-zA-Z]+`)

// SenderAddress extracts the sender address from a From header value.
// - First RFC-shaped address found anywhere in the value wins
// - Otherwise the content of the last "<...>" pair
// - Otherwise the trimmed raw value
// Case is preserved. Returns "" only for a blank header.
func SenderAddress(fromHeader string) string {
	if m := emailPattern.FindString(fromHeader); m != "" {
		return m
	}
	if strings.Contains(fromHeader, "<") && strings.Contains(fromHeader, ">") {
		parts := strings.Split(fromHeader, "<")
		inner := parts[len(parts)-1]
		if end := strings.Index(inner, ">"); end >= 0 {
			inner = inner[:end]
		}
		return strings.TrimSpace(inner)
	}
	return strings.TrimSpace(fromHeader)
}

// Truncate shortens s to at most max runes, replacing the tail with "..."
// when it had to cut. Surrounding whitespace is trimmed.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return strings.TrimSpace(s)
	}
	keep := max - 3
	if keep < 0 {
		keep = 0
	}
	return strings.TrimSpace(string(r[:keep])) + "..."
}
