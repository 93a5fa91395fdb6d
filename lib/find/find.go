// Package find locates serial ports and identifies the instruments behind
// them.
package find

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gotmc/labctl"
	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Bauds are tried in order by Probe.
var Bauds = []int{4800, 9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600}

type FilterFn func(*Usbtty) bool

// USBFilter matches USB ports with the given vendor and product ids (hex,
// case-insensitive).
func USBFilter(vid, pid string) FilterFn {
	return func(ut *Usbtty) bool {
		return strings.EqualFold(ut.IDv, vid) && strings.EqualFold(ut.IDp, pid)
	}
}

// ProductFilter matches ports whose product description contains s.
func ProductFilter(s string) FilterFn {
	return func(ut *Usbtty) bool { return strings.Contains(ut.Prod, s) }
}

func SerialFilter(s string) FilterFn {
	return func(ut *Usbtty) bool { return ut.Serial == s }
}

// Usbtty is an enumerated serial port. The id fields are empty for ports
// that are not on USB.
type Usbtty struct {
	Dev      string
	USB      bool
	IDp, IDv string
	Prod     string
	Serial   string
}

func (u Usbtty) String() string {
	if !u.USB {
		return u.Dev
	}
	return fmt.Sprintf("%s pid/vid %s/%s prod %q serial %s", u.Dev, u.IDp, u.IDv, u.Prod, u.Serial)
}

type Usbttys []Usbtty

func (uts Usbttys) String() string {
	s := make([]string, 0, len(uts))
	for _, ut := range uts {
		s = append(s, ut.String())
	}
	return strings.Join(s, "\n")
}

// Filter returns the ports fn accepts. A nil fn accepts everything.
func (uts Usbttys) Filter(fn FilterFn) Usbttys {
	if fn == nil {
		return uts
	}
	var out Usbttys
	for i := range uts {
		if fn(&uts[i]) {
			out = append(out, uts[i])
		}
	}
	return out
}

// Enumerate lists the system's serial ports.
var Enumerate = func() (Usbttys, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "enumerating serial ports")
	}
	out := make(Usbttys, 0, len(ports))
	for _, p := range ports {
		out = append(out, Usbtty{
			Dev:    p.Name,
			USB:    p.IsUSB,
			IDp:    p.PID,
			IDv:    p.VID,
			Prod:   p.Product,
			Serial: p.SerialNumber,
		})
	}
	return out, nil
}

// Find searches for a serial device. If filter is not nil, it is used to
// narrow choices down. The first device for which it returns true (if any)
// is chosen.
func Find(filter FilterFn) (string, error) {
	ttys, err := Enumerate()
	if err != nil {
		return "", err
	}
	if filter != nil {
		ttys = ttys.Filter(filter)
		if len(ttys) > 1 {
			ttys = ttys[:1]
		}
	}

	if len(ttys) == 0 {
		return "", errors.New("no matching ttys found")
	}
	if len(ttys) == 1 {
		return ttys[0].Dev, nil
	}
	return "", errors.Errorf("multiple ttys:\n%s", ttys)
}

// Opener opens a port at a baud rate.
type Opener func(name string, baud int) (io.ReadWriteCloser, error)

// SerialOpener opens real ports, giving each read timeout to answer.
func SerialOpener(timeout time.Duration) Opener {
	return func(name string, baud int) (io.ReadWriteCloser, error) {
		p, err := serial.Open(name, &serial.Mode{BaudRate: baud})
		if err != nil {
			return nil, err
		}
		if err := p.SetReadTimeout(timeout); err != nil {
			p.Close()
			return nil, err
		}
		return eofOnTimeout{p}, nil
	}
}

// eofOnTimeout reports a read timeout as io.EOF. The serial package
// returns (0, nil) instead, which bufio would retry.
type eofOnTimeout struct{ serial.Port }

func (p eofOnTimeout) Read(b []byte) (int, error) {
	n, err := p.Port.Read(b)
	if n == 0 && err == nil {
		return 0, io.EOF
	}
	return n, err
}

// Found is a port that answered an identification query.
type Found struct {
	Dev  string
	Baud int
	IDN  string
}

// Probe tries each port at each baud rate in turn and keeps the first
// non-empty *IDN? answer per port. Ports that never answer are left out.
func Probe(ctx context.Context, devs []string, bauds []int, open Opener, logger log.Logger) ([]Found, error) {
	var found []Found
	for _, dev := range devs {
		for _, baud := range bauds {
			if err := ctx.Err(); err != nil {
				return found, err
			}
			idn, err := identify(dev, baud, open)
			if err != nil {
				level.Debug(logger).Log("msg", "no answer", "port", dev, "baud", baud, "err", err)
				continue
			}
			level.Info(logger).Log("msg", "found instrument", "port", dev, "baud", baud, "idn", idn)
			found = append(found, Found{Dev: dev, Baud: baud, IDN: idn})
			break
		}
	}
	return found, nil
}

func identify(dev string, baud int, open Opener) (string, error) {
	rwc, err := open(dev, baud)
	if err != nil {
		return "", err
	}
	defer rwc.Close()
	idn, err := labctl.NewPort(rwc).Query("*IDN?")
	idn = strings.TrimSpace(idn)
	if err == nil && idn == "" {
		err = errors.New("empty response")
	}
	return idn, err
}
