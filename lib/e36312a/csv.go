package e36312a

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// CSVTimeLayout is the timestamp format of the per-channel CSV log.
const CSVTimeLayout = "2006-01-02 15:04:05.000000"

// Reading is one voltage and current measurement of a channel.
type Reading struct {
	Channel int
	Time    time.Time
	Volts   float64
	Amps    float64
}

// Watts is the power delivered at the time of the reading.
func (r Reading) Watts() float64 { return r.Volts * r.Amps }

// Measure reads the output voltage and current of ch. ok is false for an
// invalid channel.
func (c *Controls) Measure(ch int) (r Reading, ok bool, err error) {
	r = Reading{Channel: ch, Time: time.Now()}
	if r.Volts, ok, err = c.GetVoltage(ch); err != nil || !ok {
		return r, ok, err
	}
	r.Amps, ok, err = c.GetCurrent(ch)
	return r, ok, err
}

// CSVName is the file a channel's readings are appended to.
func CSVName(ch int) string { return fmt.Sprintf("E36312A_channel%d.csv", ch) }

// WriteCSV writes one time,volts,amps,watts row per reading.
func WriteCSV(w io.Writer, readings ...Reading) error {
	cw := csv.NewWriter(w)
	for _, r := range readings {
		row := []string{
			r.Time.Format(CSVTimeLayout),
			formatFloat(r.Volts),
			formatFloat(r.Amps),
			formatFloat(r.Watts()),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
