// Copyright (c) 2020–2024 The labctl developers. All rights reserved.
// Project site: https://github.com/gotmc/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package labctl

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

// Controller models a Prologix (or AR488) GPIB controller-in-charge talking
// to one instrument. It implements Session.
type Controller struct {
	rw               io.ReadWriter
	rr               *replies
	primaryAddr      int
	hasSecondaryAddr bool
	secondaryAddr    int
	auto             bool
	usbTerm          byte
	eotChar          byte
	gpibTerm         GpibTerm
	writeDelay       time.Duration
	debug            bool // if true, log controller commands before sending. Set via WithDebug().
	ar488            bool // compatibility with Arduino AR488 - see WithAR488 documentation for details.
	logger           log.Logger
}

// ControllerOption applies an option to the controller.
type ControllerOption func(*Controller)

// NewController creates a GPIB controller-in-charge at the given address using
// the given Prologix driver, typically a Virtual COM Port (VCP). Enable clear
// to send the Selected Device Clear (SDC) message to the GPIB address.
func NewController(
	rw io.ReadWriter,
	addr int,
	clear bool,
	opts ...ControllerOption,
) (*Controller, error) {
	c := Controller{
		rw:          rw,
		rr:          newReplies(rw),
		primaryAddr: addr,
		auto:        false,
		usbTerm:     '\n',
		eotChar:     '\n',
		gpibTerm:    AppendCRLF,
		logger:      log.NewNopLogger(),
	}

	for _, opt := range opts {
		opt(&c)
	}

	if !isPrimaryAddressValid(c.primaryAddr) {
		return nil, errors.Errorf("invalid primary address %d (must by 0-30)", c.primaryAddr)
	}

	addrCmd := fmt.Sprintf("addr %d", c.primaryAddr)
	if c.hasSecondaryAddr {
		if !isSecondaryAddressValid(c.secondaryAddr) {
			return nil, errors.Errorf("invalid secondary address %d (must be 96-126)", c.secondaryAddr)
		}
		addrCmd = fmt.Sprintf("addr %d %d", c.primaryAddr, c.secondaryAddr)
	}
	for _, cmd := range c.initCommands(addrCmd, clear) {
		if err := c.CommandController(cmd); err != nil {
			return nil, errors.Wrap(err, "configure controller")
		}
	}

	return &c, nil
}

func (c *Controller) initCommands(addrCmd string, clear bool) []string {
	cmds := []string{}
	if !c.ar488 {
		cmds = append(cmds,
			"verbose 0", // turn off verbosity if on
			"savecfg 0", // don't wear out the EEPROM while configuring
		)
	}
	cmds = append(cmds,
		addrCmd,
		"mode 1", // controller mode
		"auto 0", // no read-after-write; Query asks for the read explicitly
		"eoi 1",
		fmt.Sprintf("eos %d", c.gpibTerm),
		"read_tmo_ms 500",
		fmt.Sprintf("eot_char %d", c.eotChar),
		"eot_enable 1",
	)
	if !c.ar488 {
		cmds = append(cmds, "savecfg 1")
	}
	if clear {
		cmds = append(cmds, "clr")
	}
	return cmds
}

// WithSecondaryAddress sets a secondary address, which must be in the range of
// 96 and 126, inclusive.
func WithSecondaryAddress(addr int) ControllerOption {
	return func(c *Controller) {
		c.hasSecondaryAddr = true
		c.secondaryAddr = addr
	}
}

// WithDebug causes commands and responses to be logged at debug level.
func WithDebug() ControllerOption { return func(c *Controller) { c.debug = true } }

// WithAR488 slightly alters the init commands, for compatiblity with the
// Arduino-based AR488. Specifically, we do not emit 'verbose 0', nor do
// we toggle savecfg.
func WithAR488() ControllerOption { return func(c *Controller) { c.ar488 = true } }

// WithWriteDelay pauses before every ++ controller command. Slow adapters
// drop commands that arrive back to back.
func WithWriteDelay(d time.Duration) ControllerOption {
	return func(c *Controller) { c.writeDelay = d }
}

// WithGPIBTermination selects what the controller appends to instrument
// commands on the bus.
func WithGPIBTermination(term GpibTerm) ControllerOption {
	return func(c *Controller) { c.gpibTerm = term }
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger log.Logger) ControllerOption {
	return func(c *Controller) { c.logger = logger }
}

// Command sends a SCPI/ASCII command to the instrument at the currently
// assigned GPIB address. Leading and trailing whitespace is removed before
// the USB terminator is appended.
func (c *Controller) Command(cmd string) error {
	line := fmt.Sprintf("%s%c", strings.TrimSpace(cmd), c.usbTerm)
	if c.debug {
		level.Debug(c.logger).Log("msg", "command", "cmd", fmt.Sprintf("%q", line))
	}
	_, err := io.WriteString(c.rw, line)
	return commErr("write", cmd, err)
}

// Query queries the instrument at the currently assigned GPIB address. Since
// read-after-write is disabled, the controller is told to read until EOI
// after the command goes out.
func (c *Controller) Query(cmd string) (string, error) {
	c.rr.discardStale(c.eotChar)
	if err := c.Command(cmd); err != nil {
		return "", err
	}
	if !c.auto {
		if err := c.CommandController("read eoi"); err != nil {
			return "", err
		}
	}
	s, err := c.rr.read(cmd, c.eotChar)
	if c.debug {
		level.Debug(c.logger).Log("msg", "response", "cmd", cmd, "resp", fmt.Sprintf("%q", s), "err", err)
	}
	return s, err
}

// QueryController sends the given command to the Prologix controller and
// returns its response.
func (c *Controller) QueryController(cmd string) (string, error) {
	c.rr.discardStale(c.eotChar)
	if err := c.CommandController(cmd); err != nil {
		return "", err
	}
	return c.rr.read("++"+cmd, c.eotChar)
}

// CommandController sends the given command to the Prologix controller. To
// indicate this is a command for the controller, thereby not transmitting to
// the instrument over GPIB, two plus signs `++` are prepended.
func (c *Controller) CommandController(cmd string) error {
	if c.writeDelay > 0 {
		time.Sleep(c.writeDelay)
	}
	line := fmt.Sprintf("++%s%c", strings.ToLower(strings.TrimSpace(cmd)), c.usbTerm)
	if c.debug {
		level.Debug(c.logger).Log("msg", "controller command", "cmd", fmt.Sprintf("%q", line))
	}
	_, err := io.WriteString(c.rw, line)
	return commErr("write", "++"+cmd, err)
}

// Version returns the controller's firmware version string.
func (c *Controller) Version() (string, error) {
	s, err := c.QueryController("ver")
	return strings.TrimSpace(s), err
}

// ClearDevice sends the Selected Device Clear (SDC) message.
func (c *Controller) ClearDevice() error {
	return c.CommandController("clr")
}

// FrontPanel returns the instrument to local (front panel) control when
// local is true.
func (c *Controller) FrontPanel(local bool) error {
	if !local {
		return nil
	}
	return c.CommandController("loc")
}

// GpibTerm provides the type for the available GPIB terminators.
type GpibTerm int

// Available GPIB terminators for the Prologix Controller.
const (
	AppendCRLF GpibTerm = iota
	AppendCR
	AppendLF
	AppendNothing
)

var gpibTermDesc = map[GpibTerm]string{
	AppendCRLF:    `Append CR+LF (\r\n) to instrument commands`,
	AppendCR:      `Append CR (\r) to instrument commands`,
	AppendLF:      `Append LF (\n) to instrument commands`,
	AppendNothing: `Do not append anything to instrument commands`,
}

func (term GpibTerm) String() string {
	return gpibTermDesc[term]
}

// isPrimaryAddressValid checks that the primary GPIB address is between 0 and
// 30, inclusive.
func isPrimaryAddressValid(addr int) bool {
	return addr >= 0 && addr <= 30
}

// isSecondaryAddressValid checks that the secondary GPIB address is between 96
// and 126, inclusive.
func isSecondaryAddressValid(addr int) bool {
	return addr >= 96 && addr <= 126
}
