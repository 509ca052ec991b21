package warehouse

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// timePattern accepts zero-padded HH:MM:SS with an optional fractional part
// of 1..7 digits (SQL Server TIME precision).
var timePattern = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}(\.\d{1,7})?$`)

// NormalizeDepartureTime converts a raw departure-time value of unknown
// driver representation into the canonical "HH:MM:SS" or "HH:MM:SS.fff"
// form. Sub-second precision is truncated to 3 digits.
//
// ok=false means the value could not be normalized and the fact column
// should be stored as NULL; callers record a diagnostic for those.
// Structured time values always normalize. Strings must match timePattern;
// blank strings and the literal token "null" (any case) are rejected.
func NormalizeDepartureTime(raw any) (s string, ok bool) {
	switch v := raw.(type) {
	case nil:
		return "", false
	case time.Time:
		return truncateFraction(v.Format("15:04:05.0000000")), true
	case []byte:
		return normalizeTimeString(string(v))
	case string:
		return normalizeTimeString(v)
	default:
		return normalizeTimeString(fmt.Sprint(v))
	}
}

func normalizeTimeString(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return "", false
	}
	if !timePattern.MatchString(s) {
		return "", false
	}
	return truncateFraction(s), true
}

// truncateFraction trims a fractional-seconds part to at most 3 digits and
// drops it entirely when all digits are zero.
func truncateFraction(s string) string {
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return s
	}
	frac := s[i+1:]
	if len(frac) > 3 {
		frac = frac[:3]
	}
	if strings.Trim(frac, "0") == "" {
		return s[:i]
	}
	return s[:i] + "." + frac
}

// maxTimeDiagnosticSample bounds how many offending values are kept per
// transform batch. The full count is still reported.
const maxTimeDiagnosticSample = 10

// TimeDiagnostic records one rejected departure-time value. Row is the
// 0-based index of the row within the batch.
type TimeDiagnostic struct {
	Row   int
	Value any
}

// TimeDiagnostics aggregates rejected time values for a transform batch so
// they surface as one bounded warning instead of a line per row.
type TimeDiagnostics struct {
	total  int
	sample []TimeDiagnostic
}

func (d *TimeDiagnostics) Record(row int, value any) {
	d.total++
	if len(d.sample) < maxTimeDiagnosticSample {
		d.sample = append(d.sample, TimeDiagnostic{Row: row, Value: value})
	}
}

// Count reports the total number of rejected values, including those not in
// the sample.
func (d *TimeDiagnostics) Count() int { return d.total }

// Sample returns the first recorded diagnostics, at most
// maxTimeDiagnosticSample of them.
func (d *TimeDiagnostics) Sample() []TimeDiagnostic { return d.sample }

// Warning formats the aggregate as a single log-ready string. Empty string
// when nothing was recorded.
func (d *TimeDiagnostics) Warning() string {
	if d.total == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "invalid departure_time values: total=%d sample=[", d.total)
	for i, s := range d.sample {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "row=%d value=%q", s.Row, fmt.Sprint(s.Value))
	}
	b.WriteString("]")
	return b.String()
}
