// Copyright (c) 2020–2024 The labctl developers. All rights reserved.
// Project site: https://github.com/gotmc/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package labctl

import (
	"testing"

	"github.com/gotmc/query"
	"github.com/stretchr/testify/require"
)

func TestTrimmedStripsTerminators(t *testing.T) {
	w := newWire(" +3.30000000E+00\r\n")
	q := Trimmed(NewPort(w))

	s, err := q.Query("VOLT? (@1)")
	require.NoError(t, err)
	require.Equal(t, "+3.30000000E+00", s)

	w = newWire("+1.250E-01\n")
	v, err := query.Float64(Trimmed(NewPort(w)), "MEAS:CURR? (@2)")
	require.NoError(t, err)
	require.InDelta(t, 0.125, v, 1e-12)

	require.NoError(t, Trimmed(NewPort(w)).Command("*CLS"))
}

func TestTrimmedKeepsErrors(t *testing.T) {
	_, err := Trimmed(NewPort(newWire(""))).Query("*IDN?")
	require.True(t, IsCommError(err))
}
