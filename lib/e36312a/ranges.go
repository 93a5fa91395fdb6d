package e36312a

import (
	"fmt"
	"math"

	"github.com/gotmc/query"
	"github.com/pkg/errors"
)

// Limits from the E36312A user's guide. Voltage maxima are further capped by
// the over-voltage protection setting read from the instrument.
const (
	ch1MaxVolts      = 6.18
	indepMaxVolts    = 25.75
	seriesMaxVolts   = 50
	parallelMaxVolts = 25

	minAmps         = 0.001
	ch1MaxAmps      = 5.15
	parallelMaxAmps = 2.06
	standardMaxAmps = 1.03
)

// Range is an inclusive (Min, Max) pair.
type Range struct {
	Min, Max float64
}

// Contains reports whether Min <= v <= Max.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

func (r Range) String() string {
	return fmt.Sprintf("[%g, %g]", r.Min, r.Max)
}

// VoltageRange returns the settable voltage range for ch under pairing p. It
// queries the channel's protection limit, so the result reflects the live
// instrument. ok is false when the range is undefined, which is the case for
// channel 3 while it is paired, and for unknown channels; no query is sent
// then.
func (c *Controls) VoltageRange(ch int, p Pairing) (r Range, ok bool, err error) {
	var limit float64
	switch {
	case ch == 1:
		limit = ch1MaxVolts
	case ch == 2 && p == Independent:
		limit = indepMaxVolts
	case ch == 2 && p == Series:
		limit = seriesMaxVolts
	case ch == 2 && p == Parallel:
		limit = parallelMaxVolts
	case ch == 3 && p == Independent:
		limit = indepMaxVolts
	default:
		return Range{}, false, nil
	}
	prot, err := query.Float64(c.q, fmt.Sprintf("VOLT:PROT? (@%d)", ch))
	if err != nil {
		return Range{}, false, errors.Wrapf(err, "protection limit of channel %d", ch)
	}
	return Range{Min: 0, Max: math.Min(prot, limit)}, true, nil
}

// CurrentRange returns the settable current-limit range for ch under p.
func CurrentRange(ch int, p Pairing) Range {
	switch {
	case ch == 1:
		return Range{Min: minAmps, Max: ch1MaxAmps}
	case p == Parallel:
		return Range{Min: minAmps, Max: parallelMaxAmps}
	default:
		return Range{Min: minAmps, Max: standardMaxAmps}
	}
}
