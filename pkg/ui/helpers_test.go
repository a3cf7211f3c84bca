package ui

import "testing"

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"102 Main St", 20, "102 Main St"},
		{"102 Main St", 11, "102 Main St"},
		{"102 Main St", 8, "102 Mai…"},
		{"102 Main St", 1, "…"},
		{"102 Main St", 0, ""},
		{"東京都庁舎", 5, "東京…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.width); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		n    int
		unit string
		want string
	}{
		{0, "", "(0)"},
		{12, "", "(12)"},
		{1, "record", "(1 record)"},
		{3, "record", "(3 records)"},
	}
	for _, tt := range tests {
		if got := formatCount(tt.n, tt.unit); got != tt.want {
			t.Errorf("formatCount(%d, %q) = %q, want %q", tt.n, tt.unit, got, tt.want)
		}
	}
}
