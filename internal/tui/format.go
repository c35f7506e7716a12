package tui

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
)

// pad fits s into width display cells, truncating with an ellipsis or
// padding with spaces. Right-aligned when alignRight is set, which the
// grid uses for numeric columns.
func pad(s string, width int, alignRight bool) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) > width {
		s = runewidth.Truncate(s, width, "…")
	}
	gap := width - runewidth.StringWidth(s)
	if gap <= 0 {
		return s
	}
	if alignRight {
		return strings.Repeat(" ", gap) + s
	}
	return s + strings.Repeat(" ", gap)
}

// cellString renders a grid value. SQLite booleans arrive as 0/1 and
// render as Yes/No for the boolean-ish columns; floats drop their
// trailing .0 when integral.
func cellString(v interface{}, boolish bool) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "Yes"
		}
		return "No"
	case float64:
		if boolish {
			if x != 0 {
				return "Yes"
			}
			return "No"
		}
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%.2f", x)
	case int64:
		if boolish {
			if x != 0 {
				return "Yes"
			}
			return "No"
		}
		return fmt.Sprintf("%d", x)
	}
	return fmt.Sprint(v)
}

// boolishFields are rendered Yes/No in the grid.
var boolishFields = map[string]bool{
	"safe_env_training": true,
	"is_mission":        true,
	"is_diocesan":       true,
}
