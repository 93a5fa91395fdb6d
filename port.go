// Copyright (c) 2020–2024 The labctl developers. All rights reserved.
// Project site: https://github.com/gotmc/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package labctl

import (
	"io"
	"strings"
	"time"
)

// Port is a Session for instruments wired straight to a serial line (or
// anything else that looks like one) without a GPIB controller in between.
type Port struct {
	rw     io.ReadWriter
	rr     *replies
	txTerm string
	rxTerm byte
	settle time.Duration
}

// PortOption applies an option to a Port.
type PortOption func(*Port)

// WithTerminators sets the write terminator and the byte that ends a
// response. The defaults are "\n" and '\n'.
func WithTerminators(tx string, rx byte) PortOption {
	return func(p *Port) {
		p.txTerm = tx
		p.rxTerm = rx
	}
}

// WithSettle waits d between sending a query and reading its response.
func WithSettle(d time.Duration) PortOption {
	return func(p *Port) { p.settle = d }
}

// NewPort wraps rw as a Session.
func NewPort(rw io.ReadWriter, opts ...PortOption) *Port {
	p := &Port{
		rw:     rw,
		txTerm: "\n",
		rxTerm: '\n',
	}
	for _, opt := range opts {
		opt(p)
	}
	p.rr = newReplies(rw)
	return p
}

// Command writes cmd followed by the write terminator.
func (p *Port) Command(cmd string) error {
	_, err := io.WriteString(p.rw, strings.TrimSpace(cmd)+p.txTerm)
	return commErr("write", cmd, err)
}

// Query writes cmd and reads up to and including the response terminator.
// The terminator is left on the returned string. A reply that stops before
// its terminator is a CommError.
func (p *Port) Query(cmd string) (string, error) {
	p.rr.discardStale(p.rxTerm)
	if err := p.Command(cmd); err != nil {
		return "", err
	}
	if p.settle > 0 {
		time.Sleep(p.settle)
	}
	return p.rr.read(cmd, p.rxTerm)
}

var (
	_ Session = (*Port)(nil)
	_ Session = (*Controller)(nil)
)
