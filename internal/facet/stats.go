package facet

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/cryptadb/crypta/internal/query"
)

// Range is a numeric stats selection. Bounds hold the declared legal
// domain from the server; Min and Max are the user's current handles.
type Range struct {
	BoundMin, BoundMax float64
	Min, Max           float64
}

// Default reports whether the handles sit on the declared bounds.
func (r Range) Default() bool {
	return r.Min == r.BoundMin && r.Max == r.BoundMax
}

// StatsPanel holds the statistics facet state: declared fields with their
// types, numeric range selections, and tri-state boolean selections. A nil
// entry in bools means "all".
type StatsPanel struct {
	infos  []query.StatsInfo
	ranges map[string]Range
	bools  map[string]*bool
}

// SetInfos installs the declared stats fields from a result set. Existing
// selections survive when the field is still declared; numeric handles are
// clamped into the new bounds. New fields start at their defaults.
func (p *StatsPanel) SetInfos(infos []query.StatsInfo) {
	nextRanges := make(map[string]Range)
	nextBools := make(map[string]*bool)

	for _, si := range infos {
		switch si.Type {
		case "boolean":
			if prev, ok := p.bools[si.Field]; ok {
				nextBools[si.Field] = prev
			} else {
				nextBools[si.Field] = nil
			}
		default:
			r := Range{BoundMin: si.Min, BoundMax: si.Max, Min: si.Min, Max: si.Max}
			if prev, ok := p.ranges[si.Field]; ok && !prev.Default() {
				r.Min = clamp(prev.Min, si.Min, si.Max)
				r.Max = clamp(prev.Max, r.Min, si.Max)
			}
			nextRanges[si.Field] = r
		}
	}

	p.infos = infos
	p.ranges = nextRanges
	p.bools = nextBools
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Infos returns the declared stats fields in server order.
func (p *StatsPanel) Infos() []query.StatsInfo {
	return p.infos
}

// Range returns the current numeric selection for a field.
func (p *StatsPanel) Range(field string) (Range, bool) {
	r, ok := p.ranges[field]
	return r, ok
}

// SetMin moves the lower handle. The moved handle is clamped so that
// min <= max always holds and both stay inside the declared bounds.
func (p *StatsPanel) SetMin(field string, v float64) {
	r, ok := p.ranges[field]
	if !ok {
		return
	}
	r.Min = clamp(v, r.BoundMin, r.Max)
	p.ranges[field] = r
}

// SetMax moves the upper handle, clamped symmetrically to SetMin.
func (p *StatsPanel) SetMax(field string, v float64) {
	r, ok := p.ranges[field]
	if !ok {
		return
	}
	r.Max = clamp(v, r.Min, r.BoundMax)
	p.ranges[field] = r
}

// Bool returns the tri-state boolean selection; nil means "all".
func (p *StatsPanel) Bool(field string) *bool {
	return p.bools[field]
}

// SetBool sets a boolean selection. Pass nil to return to "all".
func (p *StatsPanel) SetBool(field string, v *bool) {
	if _, ok := p.bools[field]; !ok {
		return
	}
	p.bools[field] = v
}

// Params emits the stats constraints to send with a results request.
// A numeric handle contributes <field>_min or <field>_max only when moved
// off its declared bound; a boolean contributes <field> only when not
// "all". Fields whose grid column is hidden are skipped entirely, so a
// hidden facet never constrains the results.
func (p *StatsPanel) Params(visible func(field string) bool) map[string]string {
	out := make(map[string]string)
	for _, si := range p.infos {
		if visible != nil && !visible(si.Field) {
			continue
		}
		if b, ok := p.bools[si.Field]; ok {
			if b != nil {
				out[si.Field] = strconv.FormatBool(*b)
			}
			continue
		}
		r, ok := p.ranges[si.Field]
		if !ok {
			continue
		}
		if r.Min != r.BoundMin {
			out[si.Field+"_min"] = formatNum(r.Min)
		}
		if r.Max != r.BoundMax {
			out[si.Field+"_max"] = formatNum(r.Max)
		}
	}
	return out
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Summary aggregates one numeric field over locally loaded rows.
type Summary struct {
	Count  int
	Min    float64
	Median float64
	Max    float64
	Avg    string
	Total  string
}

// Summarize computes min, median, average, max, and total of a field over
// the given rows. Rows without a usable numeric value are skipped. The
// median of an even count is the mean of the two middle values; Avg and
// Total are fixed to two decimals for display.
func Summarize(rows []query.Row, field string) (Summary, bool) {
	var vals []float64
	for _, row := range rows {
		if v, ok := numericValue(row[field]); ok {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return Summary{}, false
	}
	sort.Float64s(vals)

	total := 0.0
	for _, v := range vals {
		total += v
	}
	n := len(vals)
	median := vals[n/2]
	if n%2 == 0 {
		median = (vals[n/2-1] + vals[n/2]) / 2
	}
	return Summary{
		Count:  n,
		Min:    vals[0],
		Median: median,
		Max:    vals[n-1],
		Avg:    fmt.Sprintf("%.2f", total/float64(n)),
		Total:  fmt.Sprintf("%.2f", total),
	}, true
}

func numericValue(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	}
	return 0, false
}
