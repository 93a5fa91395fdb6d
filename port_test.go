// Copyright (c) 2020–2024 The labctl developers. All rights reserved.
// Project site: https://github.com/gotmc/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package labctl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPortDefaults(t *testing.T) {
	w := newWire("Keysight Technologies,E36312A,MY12345678,2.1.0\n")
	p := NewPort(w)

	s, err := p.Query(" *IDN? ")
	require.NoError(t, err)
	require.Equal(t, "Keysight Technologies,E36312A,MY12345678,2.1.0\n", s)
	require.Equal(t, "*IDN?\n", w.String())
}

func TestPortCarriageReturnTerminators(t *testing.T) {
	w := newWire("HP3458A\r+1.000E+0\r")
	p := NewPort(w, WithTerminators("\r", '\r'))

	s, err := p.Query("ID?")
	require.NoError(t, err)
	require.Equal(t, "HP3458A\r", s)

	s, err = p.Query("RMEM 1")
	require.NoError(t, err)
	require.Equal(t, "+1.000E+0\r", s)
	require.Equal(t, "ID?\rRMEM 1\r", w.String())
}

func TestPortTruncatedReplyIsCommError(t *testing.T) {
	p := NewPort(newWire("1"))
	s, err := p.Query("OUTP:STAT? (@1)")
	require.Error(t, err)
	require.True(t, IsCommError(err))
	require.Contains(t, err.Error(), `cut short after "1"`)
	require.Empty(t, s)
}

func TestPortDropsLateTailAfterTimeout(t *testing.T) {
	w := &fakeWire{r: &chunkReader{chunks: []string{"12.3", "", "45\n", "0.5\n"}}}
	p := NewPort(w)

	_, err := p.Query("MEAS:VOLT? (@1)")
	require.True(t, IsCommError(err))

	s, err := p.Query("MEAS:CURR? (@1)")
	require.NoError(t, err)
	require.Equal(t, "0.5\n", s)
	require.Equal(t, "MEAS:VOLT? (@1)\nMEAS:CURR? (@1)\n", w.String())
}

func TestPortErrors(t *testing.T) {
	p := NewPort(failWriter{strings.NewReader("")})
	err := p.Command("*RST")
	require.True(t, IsCommError(err))

	p = NewPort(newWire(""))
	_, err = p.Query("*IDN?")
	require.True(t, IsCommError(err))
	require.Contains(t, err.Error(), `read "*IDN?"`)
}
