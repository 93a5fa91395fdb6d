package e36312a

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
)

// The data logger records channel measurements to the instrument's own
// memory or a USB stick.

// EnableDlogVoltage adds the voltage of ch to the data logger.
func (c *Controls) EnableDlogVoltage(ch int) (Status, error) {
	return c.send(ch, "SENS:DLOG:FUNC:VOLT 1, (@%d)", ch)
}

// DisableDlogVoltage removes the voltage of ch from the data logger.
func (c *Controls) DisableDlogVoltage(ch int) (Status, error) {
	return c.send(ch, "SENS:DLOG:FUNC:VOLT 0, (@%d)", ch)
}

// EnableDlogCurrent adds the current of ch to the data logger.
func (c *Controls) EnableDlogCurrent(ch int) (Status, error) {
	return c.send(ch, "SENS:DLOG:FUNC:CURR 1, (@%d)", ch)
}

// DisableDlogCurrent removes the current of ch from the data logger.
func (c *Controls) DisableDlogCurrent(ch int) (Status, error) {
	return c.send(ch, "SENS:DLOG:FUNC:CURR 0, (@%d)", ch)
}

// SetDlogTime sets how long the data logger records, in seconds.
func (c *Controls) SetDlogTime(seconds float64) error {
	if seconds <= 0 {
		return errors.Errorf("data logger duration must be positive, got %g", seconds)
	}
	return c.s.Command("SENS:DLOG:TIME " + strconv.FormatFloat(seconds, 'f', -1, 64))
}

// StartDlog starts the data logger writing to External:/<name>.csv.
func (c *Controls) StartDlog(name string) error {
	if name == "" {
		return errors.New("data logger file name is empty")
	}
	return c.s.Command(fmt.Sprintf("INIT:DLOG 'External:/%s.csv'", name))
}
