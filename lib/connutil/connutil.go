// Package connutil turns command-line flags and configuration into an open
// instrument session.
package connutil

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gotmc/labctl"
	"github.com/gotmc/labctl/lib/config"
	"github.com/gotmc/labctl/lib/find"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Conn collects connection settings. Flags override configured values.
type Conn struct {
	SerialPort string
	Transport  string
	Baud       int
	GpibPAD    int
	GpibSAD    int
	Delay      time.Duration
	Timeout    time.Duration
	AR488      bool
	// RxTerm ends replies on a direct serial line; "\r" for the HP 3458A.
	RxTerm string

	// Open replaces find.SerialOpener, mainly for tests.
	Open find.Opener
}

// AddFlags registers the connection flags on app, using cfg for defaults.
// It is to be called before app.Parse.
func (c *Conn) AddFlags(app *kingpin.Application, cfg config.ConnConfig) {
	app.Flag("port", "Serial port of the instrument or its GPIB controller; found automatically when empty.").
		Default(cfg.Port).StringVar(&c.SerialPort)
	app.Flag("transport", "How the instrument is wired: gpib (through a Prologix controller) or serial.").
		Default(cfg.Transport).EnumVar(&c.Transport, config.TransportGPIB, config.TransportSerial)
	app.Flag("baud", "Serial baud rate.").
		Default(strconv.Itoa(cfg.Baud)).IntVar(&c.Baud)
	app.Flag("pad", "GPIB primary address for the device.").
		Default(strconv.Itoa(cfg.PAD)).IntVar(&c.GpibPAD)
	app.Flag("sad", "GPIB secondary address for the device, 0 for none.").
		Default(strconv.Itoa(cfg.SAD)).IntVar(&c.GpibSAD)
	app.Flag("delay", "Delay before each controller command.").
		Default(cfg.Delay.String()).DurationVar(&c.Delay)
	app.Flag("timeout", "Serial read timeout.").
		Default(cfg.Timeout.String()).DurationVar(&c.Timeout)
	app.Flag("ar488", "The GPIB controller is an Arduino AR488.").
		BoolVar(&c.AR488)
	app.Flag("rx-term", "Reply terminator on a direct serial line.").
		Default(`\n`).StringVar(&c.RxTerm)
}

// Cleanup releases a session. It is safe to call more than once.
type Cleanup func() error

// Setup opens the port and builds the session, after flags have been
// parsed. The cleanup returns the front panel to local control (GPIB only)
// and closes the port.
func (c *Conn) Setup(logger log.Logger, opts ...labctl.ControllerOption) (labctl.Session, Cleanup, error) {
	nocleanup := func() error { return nil }

	if c.SerialPort == "" {
		tty, err := find.Find(nil)
		if err != nil {
			return nil, nocleanup, errors.Wrap(err, "locating serial port; set --port")
		}
		c.SerialPort = tty
	}
	level.Info(logger).Log("msg", "opening serial port", "port", c.SerialPort, "baud", c.Baud, "transport", c.Transport)

	open := c.Open
	if open == nil {
		open = find.SerialOpener(c.Timeout)
	}
	port, err := open(c.SerialPort, c.Baud)
	if err != nil {
		return nil, nocleanup, errors.Wrapf(err, "opening %s", c.SerialPort)
	}

	if c.Transport == config.TransportSerial {
		rx, err := terminator(c.RxTerm)
		if err != nil {
			port.Close()
			return nil, nocleanup, err
		}
		return labctl.NewPort(port, labctl.WithTerminators(string(rx), rx)), once(port.Close), nil
	}

	opts = append(opts, labctl.WithLogger(logger))
	if c.Delay > 0 {
		opts = append(opts, labctl.WithWriteDelay(c.Delay))
	}
	if c.GpibSAD != 0 {
		opts = append(opts, labctl.WithSecondaryAddress(c.GpibSAD))
	}
	if c.AR488 {
		opts = append(opts, labctl.WithAR488())
	}

	gpib, err := labctl.NewController(port, c.GpibPAD, false, opts...)
	if err != nil {
		return nil, nocleanup, multierr.Append(err, port.Close())
	}

	cleanup := once(func() error {
		// Return local control to the front panel even if closing fails.
		return multierr.Append(
			errors.Wrap(gpib.FrontPanel(true), "setting local control for front panel"),
			closePort(port),
		)
	})
	return gpib, cleanup, nil
}

// closePort discards unread input where the port supports it, then closes.
func closePort(port io.Closer) error {
	var err error
	if rb, ok := port.(interface{ ResetInputBuffer() error }); ok {
		err = rb.ResetInputBuffer()
	}
	return multierr.Append(err, errors.Wrap(port.Close(), "closing serial port"))
}

func once(fn func() error) Cleanup {
	done := false
	return func() error {
		if done {
			return nil
		}
		done = true
		return fn()
	}
}

// terminator decodes a single-byte terminator given as an escape such as
// `\r` or `\n`.
func terminator(s string) (byte, error) {
	u, err := strconv.Unquote(`"` + strings.ReplaceAll(s, `"`, `\"`) + `"`)
	if err != nil || len(u) != 1 {
		return 0, errors.Errorf("reply terminator %q must be a single byte", s)
	}
	return u[0], nil
}
