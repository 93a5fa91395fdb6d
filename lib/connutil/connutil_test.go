package connutil

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/gotmc/labctl"
	"github.com/gotmc/labctl/lib/config"
	"github.com/stretchr/testify/require"
)

type fakePort struct {
	r        io.Reader
	out      bytes.Buffer
	closed   int
	closeErr error
}

func (f *fakePort) Read(b []byte) (int, error)  { return f.r.Read(b) }
func (f *fakePort) Write(b []byte) (int, error) { return f.out.Write(b) }
func (f *fakePort) Close() error {
	f.closed++
	return f.closeErr
}

func parse(t *testing.T, args ...string) *Conn {
	t.Helper()
	app := kingpin.New("test", "")
	c := &Conn{}
	c.AddFlags(app, config.ConnConfig{
		Port:      "/dev/ttyUSB0",
		Transport: config.TransportGPIB,
		Baud:      115200,
		PAD:       5,
		Delay:     0,
		Timeout:   time.Second,
	})
	_, err := app.Parse(args)
	require.NoError(t, err)
	return c
}

func TestFlagsOverrideConfig(t *testing.T) {
	c := parse(t, "--pad=22", "--sad=96", "--transport=serial", "--rx-term=\\r", "--timeout=250ms")
	require.Equal(t, "/dev/ttyUSB0", c.SerialPort)
	require.Equal(t, 22, c.GpibPAD)
	require.Equal(t, 96, c.GpibSAD)
	require.Equal(t, config.TransportSerial, c.Transport)
	require.Equal(t, `\r`, c.RxTerm)
	require.Equal(t, 250*time.Millisecond, c.Timeout)
	require.Equal(t, 115200, c.Baud)

	app := kingpin.New("test", "")
	(&Conn{}).AddFlags(app, config.ConnConfig{Transport: config.TransportGPIB})
	_, err := app.Parse([]string{"--transport=usbtmc"})
	require.Error(t, err)
}

func TestSetupGPIB(t *testing.T) {
	p := &fakePort{r: strings.NewReader("Keysight Technologies,E36312A,MY1,1.0\n")}
	c := parse(t, "--ar488")
	var gotName string
	var gotBaud int
	c.Open = func(name string, baud int) (io.ReadWriteCloser, error) {
		gotName, gotBaud = name, baud
		return p, nil
	}

	s, cleanup, err := c.Setup(log.NewNopLogger())
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyUSB0", gotName)
	require.Equal(t, 115200, gotBaud)
	require.IsType(t, &labctl.Controller{}, s)
	require.Contains(t, p.out.String(), "++addr 5\n")
	require.NotContains(t, p.out.String(), "++savecfg")

	idn, err := s.Query("*IDN?")
	require.NoError(t, err)
	require.Contains(t, idn, "E36312A")

	p.out.Reset()
	require.NoError(t, cleanup())
	require.NoError(t, cleanup())
	require.Equal(t, "++loc\n", p.out.String())
	require.Equal(t, 1, p.closed)
}

func TestSetupSerial(t *testing.T) {
	p := &fakePort{r: strings.NewReader("HP3458A\r")}
	c := parse(t, "--transport=serial", `--rx-term=\r`)
	c.Open = func(string, int) (io.ReadWriteCloser, error) { return p, nil }

	s, cleanup, err := c.Setup(log.NewNopLogger())
	require.NoError(t, err)
	require.IsType(t, &labctl.Port{}, s)
	id, err := s.Query("ID?")
	require.NoError(t, err)
	require.Equal(t, "HP3458A\r", id)
	require.Equal(t, "ID?\r", p.out.String())

	p.closeErr = errors.New("busy")
	require.ErrorContains(t, cleanup(), "busy")
}

func TestSetupErrors(t *testing.T) {
	c := parse(t)
	c.Open = func(string, int) (io.ReadWriteCloser, error) { return nil, errors.New("permission denied") }
	_, _, err := c.Setup(log.NewNopLogger())
	require.ErrorContains(t, err, "opening /dev/ttyUSB0")

	p := &fakePort{r: strings.NewReader("")}
	c = parse(t, "--pad=40")
	c.Open = func(string, int) (io.ReadWriteCloser, error) { return p, nil }
	_, _, err = c.Setup(log.NewNopLogger())
	require.ErrorContains(t, err, "invalid primary address")
	require.Equal(t, 1, p.closed)

	c = parse(t, "--transport=serial", "--rx-term=ab")
	c.Open = func(string, int) (io.ReadWriteCloser, error) { return p, nil }
	_, _, err = c.Setup(log.NewNopLogger())
	require.ErrorContains(t, err, "single byte")
}

func TestTerminator(t *testing.T) {
	b, err := terminator(`\n`)
	require.NoError(t, err)
	require.Equal(t, byte('\n'), b)
	b, err = terminator(";")
	require.NoError(t, err)
	require.Equal(t, byte(';'), b)
}
