package util

import (
	"strings"
	"testing"
)

func TestSanitizeWindowTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "main.go - Visual Studio Code", "main.go - Visual Studio Code"},
		{"surrounding whitespace", "  Terminal \t", "Terminal"},
		{"control characters", "Netflix\x00 - Chrome\x07", "Netflix - Chrome"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeWindowTitle(tt.input); got != tt.want {
				t.Errorf("SanitizeWindowTitle(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeWindowTitleTruncates(t *testing.T) {
	long := strings.Repeat("a", 300)
	if got := SanitizeWindowTitle(long); len(got) != 255 {
		t.Errorf("len = %d, want 255", len(got))
	}
}

func TestSanitizeDeviceID(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"ws-0042", "ws-0042"},
		{"LAPTOP_jane.local", "LAPTOP_jane.local"},
		{"bad id!@#", "bad_id___"},
		{" spaced ", "spaced"},
	}
	for _, tt := range tests {
		if got := SanitizeDeviceID(tt.input); got != tt.want {
			t.Errorf("SanitizeDeviceID(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
