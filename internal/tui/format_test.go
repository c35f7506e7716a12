package tui

import "testing"

func TestPad(t *testing.T) {
	tests := []struct {
		in    string
		width int
		right bool
		want  string
	}{
		{"abc", 5, false, "abc  "},
		{"abc", 5, true, "  abc"},
		{"abcdefgh", 5, false, "abcd…"},
		{"abc", 0, false, ""},
		{"abc", 3, true, "abc"},
	}
	for _, tt := range tests {
		if got := pad(tt.in, tt.width, tt.right); got != tt.want {
			t.Errorf("pad(%q, %d, %v) = %q, want %q", tt.in, tt.width, tt.right, got, tt.want)
		}
	}
}

func TestCellString(t *testing.T) {
	tests := []struct {
		in      interface{}
		boolish bool
		want    string
	}{
		{nil, false, ""},
		{"Walsh", false, "Walsh"},
		{int64(1960), false, "1960"},
		{float64(400), false, "400"},
		{float64(12.5), false, "12.50"},
		{float64(1), true, "Yes"},
		{float64(0), true, "No"},
		{int64(1), true, "Yes"},
		{true, false, "Yes"},
	}
	for _, tt := range tests {
		if got := cellString(tt.in, tt.boolish); got != tt.want {
			t.Errorf("cellString(%v, %v) = %q, want %q", tt.in, tt.boolish, got, tt.want)
		}
	}
}
