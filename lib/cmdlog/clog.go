// Package cmdlog is an interactive passthrough terminal: each line typed is
// sent to the instrument and the reply is echoed back.
package cmdlog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Commander sends a raw command and returns the instrument's reply, or a
// sentinel string when the exchange failed.
type Commander interface {
	WriteCommand(cmd string) string
}

func isAscii(s string) bool {
	return !strings.ContainsFunc(s, func(r rune) bool {
		switch {
		case r < 7:
			return true
		case r > 6 && r < 14:
			return false
		case r > 13 && r < 32:
			return true
		case r > 127:
			return true
		}
		return false
	})
}

// Terminal reads commands from in and writes styled transcripts to out.
type Terminal struct {
	c      Commander
	in     io.Reader
	out    io.Writer
	prompt string

	cmdStyle, respStyle, noteStyle lipgloss.Style
}

// New creates a Terminal. Colors follow what out supports, so a pipe or
// buffer gets plain text.
func New(c Commander, in io.Reader, out io.Writer) *Terminal {
	r := lipgloss.NewRenderer(out)
	return &Terminal{
		c:         c,
		in:        in,
		out:       out,
		prompt:    "> ",
		cmdStyle:  r.NewStyle().Foreground(lipgloss.Color("12")),
		respStyle: r.NewStyle().Foreground(lipgloss.Color("35")),
		noteStyle: r.NewStyle().Foreground(lipgloss.Color("86")),
	}
}

// Run serves lines until in is exhausted, "exit" or "quit" is typed, or ctx
// is done. Blank lines are ignored.
func (t *Terminal) Run(ctx context.Context) error {
	sc := bufio.NewScanner(t.in)
	for {
		fmt.Fprint(t.out, t.noteStyle.Render(t.prompt))
		if !sc.Scan() {
			fmt.Fprintln(t.out)
			return sc.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(sc.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		t.Exchange(line)
	}
}

// Exchange sends one command and prints both sides.
func (t *Terminal) Exchange(cmd string) string {
	resp := strings.TrimRight(t.c.WriteCommand(cmd), "\r\n")
	fmt.Fprintf(t.out, "%s %s\n", "Command:", t.cmdStyle.Render(cmd))
	switch {
	case resp == "":
		fmt.Fprintf(t.out, "Response: %s\n", t.noteStyle.Render("<no response>"))
	case isAscii(resp):
		fmt.Fprintf(t.out, "Response: %s\n", t.respStyle.Render(resp))
	case len(resp) < 32:
		fmt.Fprintf(t.out, "Response: %s\n", t.respStyle.Render(fmt.Sprintf("%q (% 2x)", resp, []byte(resp))))
	default:
		fmt.Fprintf(t.out, "Response: %s\n", t.respStyle.Render(fmt.Sprintf("[%d] % 2x", len(resp), []byte(resp))))
	}
	return resp
}
