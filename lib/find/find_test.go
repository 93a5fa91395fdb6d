package find

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"
)

var ttys = Usbttys{
	{Dev: "/dev/ttyS0"},
	{Dev: "/dev/ttyUSB0", USB: true, IDv: "0403", IDp: "6001", Prod: "FT232R USB UART", Serial: "A603UX94"},
	{Dev: "/dev/ttyACM0", USB: true, IDv: "2A8D", IDp: "1202", Prod: "E36312A", Serial: "MY59001234"},
}

func withPorts(t *testing.T, uts Usbttys) {
	t.Helper()
	orig := Enumerate
	Enumerate = func() (Usbttys, error) { return uts, nil }
	t.Cleanup(func() { Enumerate = orig })
}

func Test_Find(t *testing.T) {
	withPorts(t, ttys)

	dev, err := Find(SerialFilter("A603UX94"))
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyUSB0", dev)

	dev, err = Find(USBFilter("2a8d", "1202"))
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyACM0", dev)

	dev, err = Find(ProductFilter("E363"))
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyACM0", dev)

	_, err = Find(SerialFilter("nope"))
	require.ErrorContains(t, err, "no matching ttys")

	_, err = Find(nil)
	require.ErrorContains(t, err, "multiple ttys")
}

func TestFilterKeepsOrder(t *testing.T) {
	usb := ttys.Filter(func(ut *Usbtty) bool { return ut.USB })
	require.Len(t, usb, 2)
	require.Equal(t, "/dev/ttyUSB0", usb[0].Dev)
	require.Equal(t, ttys, ttys.Filter(nil))
	require.Equal(t, "/dev/ttyS0", ttys[0].String())
	require.Contains(t, ttys.String(), `prod "E36312A"`)
}

// fakeLine answers *IDN? only at the baud rate it is set to.
type fakeLine struct {
	io.Reader
	written bytes.Buffer
	closed  bool
}

func (f *fakeLine) Write(b []byte) (int, error) { return f.written.Write(b) }
func (f *fakeLine) Close() error                { f.closed = true; return nil }

func TestProbe(t *testing.T) {
	var opened []*fakeLine
	open := func(name string, baud int) (io.ReadWriteCloser, error) {
		if name == "/dev/missing" {
			return nil, errors.New("no such file")
		}
		l := &fakeLine{Reader: strings.NewReader("")}
		if name == "/dev/ttyACM0" && baud == 9600 {
			l.Reader = strings.NewReader("Keysight Technologies,E36312A,MY1,1.0\n")
		}
		opened = append(opened, l)
		return l, nil
	}

	found, err := Probe(context.Background(),
		[]string{"/dev/missing", "/dev/ttyACM0", "/dev/ttyS0"},
		[]int{4800, 9600, 19200}, open, log.NewNopLogger())
	require.NoError(t, err)
	require.Equal(t, []Found{{Dev: "/dev/ttyACM0", Baud: 9600, IDN: "Keysight Technologies,E36312A,MY1,1.0"}}, found)

	// ttyACM0 stops at 9600; ttyS0 is tried at every rate.
	require.Len(t, opened, 5)
	for _, l := range opened {
		require.True(t, l.closed)
		require.Equal(t, "*IDN?\n", l.written.String())
	}
}

func TestProbeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	found, err := Probe(ctx, []string{"/dev/ttyS0"}, Bauds, func(string, int) (io.ReadWriteCloser, error) {
		t.Fatal("opened after cancel")
		return nil, nil
	}, log.NewNopLogger())
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, found)
}
