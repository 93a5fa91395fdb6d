// Package recorder samples a power supply's outputs on a fixed interval and
// forwards the readings to a metrics sink.
//
// A failed measurement or sink write is logged and skipped; the loop keeps
// its cadence rather than retrying, so partial data loss is possible.
package recorder

import (
	"context"
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gotmc/labctl/lib/e36312a"
	"github.com/gotmc/labctl/lib/sink"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

const (
	// DefaultInterval is the sampling period used when none is configured.
	DefaultInterval = 2 * time.Second
	// MinInterval is the shortest period a full pass over three channels
	// reliably completes in; shorter ones are accepted with a warning.
	MinInterval = 2 * time.Second

	DefaultMeasurement = e36312a.Model
)

// Instrument is the part of the supply's controls the recorder needs.
type Instrument interface {
	Pairing() e36312a.Pairing
	Channels() []int
	GetVoltage(ch int) (float64, bool, error)
	GetCurrent(ch int) (float64, bool, error)
	OutputEnabled(ch int) (bool, error)
}

// Sample is one channel's reading at one instant.
type Sample struct {
	Channel int
	Volts   float64
	Amps    float64
	Time    int64 // Unix seconds
}

// Recorder runs the sampling loop. It is not safe for concurrent use: one
// goroutine drives it and owns the instrument while it does.
type Recorder struct {
	inst        Instrument
	sink        sink.Sink
	measurement string
	interval    time.Duration
	now         func() time.Time
	poll        func() error
	logger      log.Logger
	metrics     *Metrics
}

// Option configures a Recorder.
type Option func(*Recorder)

func WithLogger(logger log.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

// WithMeasurement sets the measurement name of emitted lines.
func WithMeasurement(name string) Option {
	return func(r *Recorder) { r.measurement = name }
}

func WithInterval(d time.Duration) Option {
	return func(r *Recorder) { r.interval = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithPoll runs fn before every tick of Run. It is where the pairing mode
// gets refreshed.
func WithPoll(fn func() error) Option {
	return func(r *Recorder) { r.poll = fn }
}

func WithMetrics(m *Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

func New(inst Instrument, s sink.Sink, opts ...Option) *Recorder {
	r := &Recorder{
		inst:        inst,
		sink:        s,
		measurement: DefaultMeasurement,
		interval:    DefaultInterval,
		now:         time.Now,
		logger:      log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Tick makes one pass over the addressable channels. Channel 3 is only
// sampled while independent. For each channel whose output is on it writes
// a voltage line and a current line, both tagged with the channel and
// stamped with the same second.
//
// The returned samples are those whose output was on, whether or not the
// sink accepted them. The error combines every failure that was logged; it
// is informational only.
func (r *Recorder) Tick(ctx context.Context) ([]Sample, error) {
	ts := r.now().Unix()
	var (
		samples []Sample
		errs    error
	)
	for _, ch := range r.inst.Channels() {
		if ch == 3 && r.inst.Pairing() != e36312a.Independent {
			continue
		}
		s, on, err := r.measure(ch, ts)
		if err != nil {
			level.Warn(r.logger).Log("msg", "measurement failed", "channel", ch, "err", err)
			r.metrics.measureFailed()
			errs = multierr.Append(errs, err)
			continue
		}
		if !on {
			continue
		}
		samples = append(samples, s)
		errs = multierr.Append(errs, r.emit(ctx, s))
	}
	return samples, errs
}

func (r *Recorder) measure(ch int, ts int64) (s Sample, on bool, err error) {
	s = Sample{Channel: ch, Time: ts}
	var ok bool
	if s.Volts, ok, err = r.inst.GetVoltage(ch); err != nil || !ok {
		return s, false, errors.Wrapf(orInvalid(err, ok), "voltage of channel %d", ch)
	}
	if s.Amps, ok, err = r.inst.GetCurrent(ch); err != nil || !ok {
		return s, false, errors.Wrapf(orInvalid(err, ok), "current of channel %d", ch)
	}
	on, err = r.inst.OutputEnabled(ch)
	return s, on, err
}

var errInvalidChannel = errors.New("invalid channel")

func orInvalid(err error, ok bool) error {
	if err == nil && !ok {
		return errInvalidChannel
	}
	return err
}

func (r *Recorder) emit(ctx context.Context, s Sample) error {
	tags := map[string]string{"Channel": strconv.Itoa(s.Channel)}
	lines := []struct {
		field string
		value float64
	}{
		{"voltage", s.Volts},
		{"current", s.Amps},
	}
	var errs error
	for _, l := range lines {
		err := r.sink.WriteSample(ctx, r.measurement, tags, map[string]float64{l.field: l.value}, s.Time)
		if err != nil {
			level.Error(r.logger).Log("msg", "sink write failed", "channel", s.Channel, "field", l.field, "err", err)
			r.metrics.sinkFailed()
			errs = multierr.Append(errs, err)
			continue
		}
		r.metrics.written()
	}
	return errs
}

// Run ticks every interval until ctx is done. Each tick runs to completion
// before the next is considered; ticks missed while one runs are dropped.
func (r *Recorder) Run(ctx context.Context) error {
	if r.interval <= 0 {
		return errors.Errorf("sampling interval must be positive, got %s", r.interval)
	}
	if r.interval < MinInterval {
		level.Warn(r.logger).Log("msg", "sampling interval may be shorter than one pass over the instrument", "interval", r.interval)
	}
	level.Info(r.logger).Log("msg", "recording started", "interval", r.interval, "measurement", r.measurement)
	defer level.Info(r.logger).Log("msg", "recording stopped")

	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		if r.poll != nil {
			if err := r.poll(); err != nil {
				level.Warn(r.logger).Log("msg", "poll failed", "err", err)
			}
		}
		samples, _ := r.Tick(ctx)
		level.Debug(r.logger).Log("msg", "tick", "samples", len(samples))
	}
}
