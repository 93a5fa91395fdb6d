// Package models maps instrument identification strings to drivers.
package models

import (
	"sort"
	"strings"

	"github.com/go-kit/log"
	"github.com/gotmc/labctl"
	"github.com/gotmc/labctl/lib/e36312a"
	"github.com/gotmc/labctl/lib/hp3458a"
	"github.com/pkg/errors"
)

// Instrument is what every driver offers.
type Instrument interface {
	Model() string
	Identify() (string, error)
}

// Factory builds a driver on an open session.
type Factory func(s labctl.Session, logger log.Logger) (Instrument, error)

// Identity is a parsed identification response.
type Identity struct {
	Manufacturer string
	Model        string
	Serial       string
	Firmware     string
}

var registry = map[string]Factory{
	e36312a.Model: func(s labctl.Session, logger log.Logger) (Instrument, error) {
		return e36312a.New(s, e36312a.WithLogger(logger))
	},
	hp3458a.Model: func(s labctl.Session, logger log.Logger) (Instrument, error) {
		return hp3458a.New(s, hp3458a.WithLogger(logger)), nil
	},
}

// Known lists the registered model names, sorted.
func Known() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ParseIDN splits a *IDN? reply ("Keysight Technologies,E36312A,MY1234,2.1.0")
// into its fields. Older meters answer ID? with the bare model name, which
// is accepted as well.
func ParseIDN(resp string) (Identity, error) {
	resp = strings.TrimSpace(resp)
	if resp == "" {
		return Identity{}, errors.New("empty identification")
	}
	parts := strings.Split(resp, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) == 1 {
		return Identity{Model: parts[0]}, nil
	}
	id := Identity{Manufacturer: parts[0], Model: parts[1]}
	if len(parts) > 2 {
		id.Serial = parts[2]
	}
	if len(parts) > 3 {
		id.Firmware = parts[3]
	}
	return id, nil
}

// Lookup returns the factory registered for model, ignoring case.
func Lookup(model string) (Factory, bool) {
	f, ok := registry[strings.ToUpper(strings.TrimSpace(model))]
	return f, ok
}

// Resolve identifies the instrument on s and builds its driver. SCPI
// instruments answer *IDN?; when that fails the HP-IB ID? form is tried.
func Resolve(s labctl.Session, logger log.Logger) (Instrument, Identity, error) {
	resp, err := s.Query("*IDN?")
	if err != nil || strings.TrimSpace(resp) == "" {
		if resp, err = s.Query("ID?"); err != nil {
			return nil, Identity{}, errors.Wrap(err, "identifying instrument")
		}
	}
	id, err := ParseIDN(resp)
	if err != nil {
		return nil, id, err
	}
	f, ok := Lookup(id.Model)
	if !ok {
		return nil, id, errors.Errorf("unsupported model %q (known: %s)", id.Model, strings.Join(Known(), ", "))
	}
	inst, err := f(s, logger)
	return inst, id, err
}
