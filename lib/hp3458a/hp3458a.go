// Package hp3458a drives an HP 3458A multimeter for burst DC voltage
// acquisitions into its reading memory.
//
// The meter speaks HP-IB command language rather than SCPI and terminates
// both commands and replies with a carriage return.
package hp3458a

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gotmc/labctl"
	"github.com/gotmc/labctl/lib/sink"
	"github.com/gotmc/query"
	"github.com/pkg/errors"
)

const (
	Model = "HP3458A"

	// Terminator ends commands and replies on this meter.
	Terminator = "\r"

	Measurement = "3458a"

	// TimeLayout is dd/mm/yy-HH:MM:SS.
	TimeLayout = "02/01/06-15:04:05"
)

// BurstConfig describes one acquisition.
type BurstConfig struct {
	Range float64 // DCV range in volts
	NPLC  float64 // integration time in power line cycles
	Count int     // readings to take
}

// DefaultBurst takes five readings on the 1 V range integrating over 30
// power line cycles.
var DefaultBurst = BurstConfig{Range: 1, NPLC: 30, Count: 5}

func (c BurstConfig) validate() error {
	switch {
	case c.Count < 1:
		return errors.Errorf("reading count must be at least 1, got %d", c.Count)
	case c.Range <= 0:
		return errors.Errorf("range must be positive, got %g", c.Range)
	case c.NPLC <= 0:
		return errors.Errorf("NPLC must be positive, got %g", c.NPLC)
	}
	return nil
}

// Reading is one value recalled from reading memory.
type Reading struct {
	Time  time.Time
	Value float64
	Raw   string
}

type DMM struct {
	s         labctl.Session
	q         labctl.Session
	logger    log.Logger
	now       func() time.Time
	pollEvery time.Duration
}

type Option func(*DMM)

func WithLogger(logger log.Logger) Option {
	return func(d *DMM) { d.logger = logger }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *DMM) { d.now = now }
}

// WithPollInterval sets how long Burst waits between checks for a
// completed acquisition.
func WithPollInterval(d time.Duration) Option {
	return func(m *DMM) { m.pollEvery = d }
}

func New(s labctl.Session, opts ...Option) *DMM {
	d := &DMM{
		s:         s,
		q:         labctl.Trimmed(s),
		logger:    log.NewNopLogger(),
		now:       time.Now,
		pollEvery: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *DMM) Model() string { return Model }

// Identify returns the ID? response.
func (d *DMM) Identify() (string, error) {
	return d.q.Query("ID?")
}

func (d *DMM) commands(cmds ...string) error {
	for _, c := range cmds {
		if err := d.s.Command(c); err != nil {
			return err
		}
	}
	return nil
}

// SelfTest resets the meter, takes a single 10 V reading and checks the
// error register. A reading without an exponent or a nonzero error
// register fails the test.
func (d *DMM) SelfTest() error {
	if err := d.commands("RESET", "TARM HOLD", "DCV 10", "NPLC 1", "AZERO OFF"); err != nil {
		return err
	}
	r, err := d.q.Query("TARM SGL")
	if err != nil {
		return err
	}
	if !strings.Contains(r, "E") {
		return errors.Errorf("self test: unexpected reading %q", r)
	}
	code, err := query.Int(d.q, "ERR?")
	if err != nil {
		return err
	}
	if code != 0 {
		return errors.Errorf("self test: error register %d", code)
	}
	level.Info(d.logger).Log("msg", "self test passed", "reading", r)
	return nil
}

// Burst triggers cfg.Count readings into FIFO memory, waits for the last
// one to land, then recalls them in order. Reading times are spread evenly
// over the elapsed acquisition time since the meter does not stamp them.
func (d *DMM) Burst(ctx context.Context, cfg BurstConfig) ([]Reading, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	err := d.commands(
		"PRESET NORM",
		"TARM HOLD",
		"DCV "+formatNumber(cfg.Range),
		"NPLC "+formatNumber(cfg.NPLC),
		"MEM FIFO",
		"TRIG AUTO",
	)
	if err != nil {
		return nil, err
	}

	start := d.now()
	if err := d.commands(fmt.Sprintf("NRDGS %d, AUTO", cfg.Count), "TARM SGL, 1"); err != nil {
		return nil, err
	}
	if err := d.waitFor(ctx, cfg.Count); err != nil {
		return nil, err
	}
	step := d.now().Sub(start) / time.Duration(cfg.Count)
	level.Debug(d.logger).Log("msg", "burst complete", "readings", cfg.Count, "step", step)

	out := make([]Reading, 0, cfg.Count)
	for i := 1; i <= cfg.Count; i++ {
		raw, err := d.q.Query(fmt.Sprintf("RMEM %d", i))
		if err != nil {
			return out, err
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return out, errors.Wrapf(err, "reading %d", i)
		}
		out = append(out, Reading{
			Time:  start.Add(step * time.Duration(i)),
			Value: v,
			Raw:   raw,
		})
	}
	return out, nil
}

// waitFor polls until reading n can be recalled. The meter does not answer
// RMEM for a slot it has not filled yet.
func (d *DMM) waitFor(ctx context.Context, n int) error {
	cmd := fmt.Sprintf("RMEM %d", n)
	for {
		_, err := d.s.Query(cmd)
		if err == nil {
			return nil
		}
		if !labctl.IsCommError(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "waiting for burst")
		case <-time.After(d.pollEvery):
		}
	}
}

// WriteCSV writes one "time,value" record per reading, keeping the meter's
// own text for the value.
func WriteCSV(w io.Writer, readings []Reading) error {
	cw := csv.NewWriter(w)
	for _, r := range readings {
		if err := cw.Write([]string{r.Time.Format(TimeLayout), r.Raw}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Record writes readings to s as 3458a,multimeter=3458a voltage=<v>.
func Record(ctx context.Context, s sink.Sink, readings []Reading) error {
	tags := map[string]string{"multimeter": "3458a"}
	for _, r := range readings {
		err := s.WriteSample(ctx, Measurement, tags, map[string]float64{"voltage": r.Value}, r.Time.Unix())
		if err != nil {
			return errors.Wrapf(err, "recording reading at %s", r.Time.Format(TimeLayout))
		}
	}
	return nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
