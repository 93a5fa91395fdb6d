// Package e36312a drives a Keysight E36312A triple-output DC power supply
// over SCPI. Setters validate channel numbers and ranges before anything is
// sent, and report the outcome as a Status.
package e36312a

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gotmc/labctl"
	"github.com/gotmc/query"
	"github.com/pkg/errors"
)

// Model is the model field of the supply's *IDN? response.
const Model = "E36312A"

// InvalidCommand is what WriteCommand returns when the instrument could not
// be reached.
const InvalidCommand = "Invalid Command"

// Status is the outcome of a validated operation.
type Status int

const (
	// Failed accompanies a non-nil error: validation passed but the
	// command could not be delivered.
	Failed         Status = 0
	Applied        Status = 1
	InvalidChannel Status = -1
	OutOfRange     Status = -2
)

func (s Status) String() string {
	switch s {
	case Applied:
		return "applied"
	case InvalidChannel:
		return "invalid channel"
	case OutOfRange:
		return "out of range"
	}
	return "failed"
}

// Controls issues commands to one supply. It caches the pairing mode read
// from the instrument; call SyncPairing to refresh it.
type Controls struct {
	s       labctl.Session
	q       labctl.Session
	pairing Pairing
	logger  log.Logger
}

// Option configures Controls.
type Option func(*Controls)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger log.Logger) Option {
	return func(c *Controls) { c.logger = logger }
}

// New reads the current pairing mode from the supply and returns its
// controls.
func New(s labctl.Session, opts ...Option) (*Controls, error) {
	c := &Controls{
		s:      s,
		q:      labctl.Trimmed(s),
		logger: log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if _, err := c.SyncPairing(); err != nil {
		return nil, err
	}
	return c, nil
}

// Model returns the model name this package drives.
func (c *Controls) Model() string { return Model }

// Pairing returns the cached pairing mode.
func (c *Controls) Pairing() Pairing { return c.pairing }

// Channels returns the independently addressable channels under the cached
// pairing mode.
func (c *Controls) Channels() []int { return Channels(c.pairing) }

// SyncPairing re-reads OUTP:PAIR? and reports whether the mode changed. Any
// range computed before a change is stale.
func (c *Controls) SyncPairing() (changed bool, err error) {
	resp, err := c.s.Query("OUTP:PAIR?")
	if err != nil {
		return false, errors.Wrap(err, "read pairing")
	}
	p, err := ParsePairing(resp)
	if err != nil {
		return false, err
	}
	changed = p != c.pairing
	if changed {
		level.Info(c.logger).Log("msg", "pairing mode changed", "from", c.pairing, "to", p)
	}
	c.pairing = p
	return changed, nil
}

// ChangeOperationMode pairs channel 3 with channel 2 (or unpairs it). This
// reconfigures the output stage: ranges for channels 2 and 3 change and the
// set of addressable channels may shrink.
func (c *Controls) ChangeOperationMode(p Pairing) error {
	if _, ok := pairingCodes[p]; !ok {
		return errors.Errorf("unknown pairing mode %d", p)
	}
	if err := c.s.Command("OUTP:PAIR " + p.String()); err != nil {
		return errors.Wrap(err, "change pairing")
	}
	c.pairing = p
	return nil
}

func (c *Controls) checkChannel(ch int, p Pairing) bool {
	if validChannel(ch, p) {
		return true
	}
	level.Warn(c.logger).Log("msg", "Invalid Channel", "channel", ch, "pairing", p)
	return false
}

// send validates ch against the cached pairing and sends the command.
func (c *Controls) send(ch int, format string, a ...any) (Status, error) {
	if !c.checkChannel(ch, c.pairing) {
		return InvalidChannel, nil
	}
	if err := c.s.Command(fmt.Sprintf(format, a...)); err != nil {
		return Failed, err
	}
	return Applied, nil
}

// TurnOn enables the output of ch.
func (c *Controls) TurnOn(ch int) (Status, error) {
	return c.send(ch, "OUTP 1, (@%d)", ch)
}

// TurnOff disables the output of ch.
func (c *Controls) TurnOff(ch int) (Status, error) {
	return c.send(ch, "OUTP 0, (@%d)", ch)
}

// TurnAllOn enables every addressable output.
func (c *Controls) TurnAllOn() error {
	for _, ch := range c.Channels() {
		if _, err := c.TurnOn(ch); err != nil {
			return err
		}
	}
	return nil
}

// TurnAllOff disables every addressable output.
func (c *Controls) TurnAllOff() error {
	for _, ch := range c.Channels() {
		if _, err := c.TurnOff(ch); err != nil {
			return err
		}
	}
	return nil
}

// SetVoltage sets the output voltage of ch, provided it lies within the
// range computed for pairing p at call time.
func (c *Controls) SetVoltage(ch int, volts float64, p Pairing) (Status, error) {
	if !c.checkChannel(ch, p) {
		return InvalidChannel, nil
	}
	r, ok, err := c.VoltageRange(ch, p)
	if err != nil {
		return Failed, err
	}
	if !ok || !r.Contains(volts) {
		level.Debug(c.logger).Log("msg", "voltage out of range", "channel", ch, "volts", volts, "range", r)
		return OutOfRange, nil
	}
	if err := c.s.Command(fmt.Sprintf("VOLT %s, (@%d)", formatValue(volts), ch)); err != nil {
		return Failed, err
	}
	return Applied, nil
}

// SetCurrentLimit sets the current limit of ch, provided it lies within the
// range for the cached pairing mode.
func (c *Controls) SetCurrentLimit(ch int, amps float64) (Status, error) {
	if !c.checkChannel(ch, c.pairing) {
		return InvalidChannel, nil
	}
	r := CurrentRange(ch, c.pairing)
	if !r.Contains(amps) {
		level.Debug(c.logger).Log("msg", "current out of range", "channel", ch, "amps", amps, "range", r)
		return OutOfRange, nil
	}
	if err := c.s.Command(fmt.Sprintf("CURR %s, (@%d)", formatValue(amps), ch)); err != nil {
		return Failed, err
	}
	return Applied, nil
}

func (c *Controls) readFloat(ch int, format string) (float64, bool, error) {
	if !c.checkChannel(ch, c.pairing) {
		return 0, false, nil
	}
	v, err := query.Float64(c.q, fmt.Sprintf(format, ch))
	if err != nil {
		return 0, false, errors.Wrapf(err, "channel %d", ch)
	}
	return v, true, nil
}

// GetVoltage measures the output voltage of ch. ok is false for an invalid
// channel.
func (c *Controls) GetVoltage(ch int) (volts float64, ok bool, err error) {
	return c.readFloat(ch, "MEAS:VOLT:DC? (@%d)")
}

// GetCurrent measures the output current of ch.
func (c *Controls) GetCurrent(ch int) (amps float64, ok bool, err error) {
	return c.readFloat(ch, "MEAS:CURR:DC? (@%d)")
}

// GetSetVoltage returns the programmed voltage of ch.
func (c *Controls) GetSetVoltage(ch int) (volts float64, ok bool, err error) {
	return c.readFloat(ch, "SOUR:VOLT? (@%d)")
}

// GetCurrentLimit returns the programmed current limit of ch.
func (c *Controls) GetCurrentLimit(ch int) (amps float64, ok bool, err error) {
	return c.readFloat(ch, "SOUR:CURR? (@%d)")
}

// OutputEnabled reports whether the output of ch is on.
func (c *Controls) OutputEnabled(ch int) (bool, error) {
	n, err := query.Int(c.q, fmt.Sprintf("OUTP:STAT? (@%d)", ch))
	if err != nil {
		return false, errors.Wrapf(err, "output state of channel %d", ch)
	}
	return n == 1, nil
}

// ChannelState is the front-panel view of one channel.
type ChannelState struct {
	Channel  int
	On       bool
	Volts    float64 // programmed
	AmpLimit float64 // programmed
}

// State reads the output state and programmed set-points of ch.
func (c *Controls) State(ch int) (st ChannelState, ok bool, err error) {
	if !c.checkChannel(ch, c.pairing) {
		return st, false, nil
	}
	st.Channel = ch
	if st.On, err = c.OutputEnabled(ch); err != nil {
		return st, false, err
	}
	if st.Volts, err = query.Float64(c.q, fmt.Sprintf("VOLT? (@%d)", ch)); err != nil {
		return st, false, errors.Wrapf(err, "set voltage of channel %d", ch)
	}
	if st.AmpLimit, err = query.Float64(c.q, fmt.Sprintf("CURR? (@%d)", ch)); err != nil {
		return st, false, errors.Wrapf(err, "current limit of channel %d", ch)
	}
	return st, true, nil
}

// WriteCommand sends an arbitrary query and returns the raw response. It
// never fails: a communication error yields InvalidCommand.
func (c *Controls) WriteCommand(cmd string) string {
	resp, err := c.s.Query(cmd)
	if err != nil {
		level.Warn(c.logger).Log("msg", "command failed", "cmd", cmd, "err", err)
		return InvalidCommand
	}
	return resp
}

// Identify returns the trimmed *IDN? response.
func (c *Controls) Identify() (string, error) {
	return c.q.Query("*IDN?")
}

// Reset clears status and restores factory defaults. All outputs turn off.
func (c *Controls) Reset() error {
	for _, cmd := range []string{"*CLS", "*RST"} {
		if err := c.s.Command(cmd); err != nil {
			return err
		}
	}
	return nil
}

// SelfTest resets the supply, switches every output on and off, toggles
// data logging of both functions on all channels, then checks the error
// queue. Any command that cannot be delivered fails the test.
func (c *Controls) SelfTest() error {
	if err := c.Reset(); err != nil {
		return errors.Wrap(err, "self test: reset")
	}
	for _, state := range []int{1, 0} {
		for ch := 1; ch <= 3; ch++ {
			if err := c.s.Command(fmt.Sprintf("OUTP %d, (@%d)", state, ch)); err != nil {
				return errors.Wrap(err, "self test: power")
			}
		}
	}
	for _, state := range []int{1, 0} {
		for _, fn := range []string{"VOLT", "CURR"} {
			if err := c.s.Command(fmt.Sprintf("SENS:DLOG:FUNC:%s %d, (@1:3)", fn, state)); err != nil {
				return errors.Wrap(err, "self test: data logger")
			}
		}
	}
	resp, err := query.String(c.q, "SYST:ERR?")
	if err != nil {
		return errors.Wrap(err, "self test")
	}
	code, msg, err := parseSystemError(resp)
	if err != nil {
		return errors.Wrap(err, "self test")
	}
	if code != 0 {
		return errors.Errorf("self test: error %d %s", code, msg)
	}
	// *RST leaves the channels unpaired.
	if _, err := c.SyncPairing(); err != nil {
		return err
	}
	level.Info(c.logger).Log("msg", "self test passed")
	return nil
}

// parseSystemError splits a SYST:ERR? response such as `-113,"Undefined
// header"` into its code and message.
func parseSystemError(s string) (int, string, error) {
	num, msg, _ := strings.Cut(strings.TrimSpace(s), ",")
	code, err := strconv.Atoi(strings.TrimPrefix(num, "+"))
	if err != nil {
		return 0, "", errors.Errorf("malformed error queue entry %q", s)
	}
	return code, strings.Trim(msg, `"`), nil
}

// formatValue renders v the way the instrument manual writes values, always
// with a decimal point: 40 -> "40.0", 3.3 -> "3.3".
func formatValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
