package component

import (
	"strconv"
	"strings"
	"time"

	"github.com/twinforge/twinforge/pkg/errdefs"
)

// SourceRange selects the slice of source records a harvester run sees.
// Exactly one of Count and Window is set: a bare number selects the latest
// N records, a number with a d/h/m/s suffix selects records within that
// duration of the cursor.
type SourceRange struct {
	Count  int
	Window time.Duration
}

// TimeMode reports whether the range is duration based.
func (r SourceRange) TimeMode() bool { return r.Window > 0 }

var suffixUnits = map[byte]time.Duration{
	'd': 24 * time.Hour,
	'h': time.Hour,
	'm': time.Minute,
	's': time.Second,
}

// ParseSourceRange parses a sourceRange expression. The empty string means
// the single latest record.
func ParseSourceRange(raw string) (SourceRange, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return SourceRange{Count: 1}, nil
	}
	if n, err := strconv.Atoi(raw); err == nil {
		if n <= 0 {
			return SourceRange{}, errdefs.Newf(errdefs.KindConfiguration, "sourceRange %q must be positive", raw)
		}
		return SourceRange{Count: n}, nil
	}
	unit, ok := suffixUnits[raw[len(raw)-1]]
	if !ok {
		return SourceRange{}, errdefs.Newf(errdefs.KindConfiguration, "invalid sourceRange %q", raw)
	}
	n, err := strconv.Atoi(raw[:len(raw)-1])
	if err != nil || n <= 0 {
		return SourceRange{}, errdefs.Newf(errdefs.KindConfiguration, "invalid sourceRange %q", raw)
	}
	return SourceRange{Window: time.Duration(n) * unit}, nil
}
