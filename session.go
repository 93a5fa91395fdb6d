// Copyright (c) 2020–2024 The labctl developers. All rights reserved.
// Project site: https://github.com/gotmc/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package labctl

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Session is a connection to a single instrument. Only one command may be
// outstanding at a time; callers own the session and serialize access.
type Session interface {
	// Command sends a SCPI/ASCII command without waiting for a response.
	Command(cmd string) error
	// Query sends cmd and blocks until the instrument's response arrives.
	Query(cmd string) (string, error)
}

// CommError reports an I/O failure talking to an instrument: a write that
// did not complete, a read timeout, a closed port.
type CommError struct {
	Op  string // "write" or "read"
	Cmd string
	Err error
}

func (e *CommError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Op, e.Cmd, e.Err)
}

func (e *CommError) Unwrap() error { return e.Err }

func commErr(op, cmd string, err error) error {
	if err == nil {
		return nil
	}
	return &CommError{Op: op, Cmd: cmd, Err: err}
}

// IsCommError reports whether err, or anything it wraps, is a CommError.
func IsCommError(err error) bool {
	var ce *CommError
	return errors.As(err, &ce)
}

// replies reads terminated replies off a shared line. A reply cut short by a
// read timeout is an error, never a value; its tail is discarded before the
// next exchange so later replies stay aligned with their commands.
type replies struct {
	src   io.Reader
	br    *bufio.Reader
	stale bool
}

func newReplies(r io.Reader) *replies {
	return &replies{src: r, br: bufio.NewReader(r)}
}

// discardStale drops the late tail of a reply that was cut short, up to and
// including term. It is called before a new command goes out.
func (r *replies) discardStale(term byte) {
	if !r.stale {
		return
	}
	r.stale = false
	if _, err := r.br.ReadString(term); err != nil {
		r.br.Reset(r.src)
	}
}

// read returns one reply including term.
func (r *replies) read(cmd string, term byte) (string, error) {
	s, err := r.br.ReadString(term)
	if err == nil {
		return s, nil
	}
	r.br.Reset(r.src)
	if s != "" {
		r.stale = true
		err = errors.Wrapf(err, "reply cut short after %q", s)
	}
	return "", commErr("read", cmd, err)
}

// Trimmed strips surrounding whitespace, terminators included, from every
// reply of s. Number parsers want the bare text.
func Trimmed(s Session) Session { return trimmed{s} }

type trimmed struct{ Session }

func (t trimmed) Query(cmd string) (string, error) {
	s, err := t.Session.Query(cmd)
	return strings.TrimSpace(s), err
}
