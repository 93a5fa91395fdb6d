package e36312a

import (
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// Pairing is how channel 3 is tied to channel 2.
type Pairing int

const (
	Independent Pairing = iota
	Series
	Parallel
)

var pairingCodes = map[Pairing]string{
	Independent: "OFF",
	Series:      "SER",
	Parallel:    "PAR",
}

// String returns the SCPI code used by OUTP:PAIR.
func (p Pairing) String() string {
	if s, ok := pairingCodes[p]; ok {
		return s
	}
	return "UNKNOWN"
}

// ParsePairing accepts an OUTP:PAIR? response ("OFF\n", "SER\n", "PAR\n") or
// one of the names independent, series, parallel in any case.
func ParsePairing(s string) (Pairing, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OFF", "INDEPENDENT":
		return Independent, nil
	case "SER", "SERIES":
		return Series, nil
	case "PAR", "PARALLEL":
		return Parallel, nil
	}
	return 0, errors.Errorf("unknown pairing mode %q", s)
}

// Channels lists the outputs that can be addressed on their own under p.
// Channel 3 is folded into channel 2 when paired.
func Channels(p Pairing) []int {
	if p == Independent {
		return []int{1, 2, 3}
	}
	return []int{1, 2}
}

func validChannel(ch int, p Pairing) bool {
	return slices.Contains(Channels(p), ch)
}
