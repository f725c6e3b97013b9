package util

import (
	"strings"
	"unicode"
)

const maxWindowTitleLen = 255

// SanitizeWindowTitle normalizes an agent-reported window title before it is
// stored or fed to keyword matching: trims whitespace, strips control
// characters, and truncates to the column width.
func SanitizeWindowTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	if len(s) > maxWindowTitleLen {
		s = s[:maxWindowTitleLen]
	}
	return s
}

// SanitizeDeviceID keeps device identifiers to a predictable charset so they
// can be used directly as cache key components.
func SanitizeDeviceID(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return r
		case r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}
