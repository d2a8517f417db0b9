package keel

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
)

const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
	ansiRed   = "\033[31m"
	ansiGreen = "\033[32m"
	ansiWhite = "\033[37m"
)

// Console writes user-facing command output.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	err   io.Writer
	color bool
}

// NewConsole creates a Console writing to out and err without colors.
func NewConsole(out, err io.Writer) *Console {
	return &Console{out: out, err: err}
}

// NewTerminalConsole creates a Console on stdout and stderr. Colors are
// enabled only when stdout is a terminal.
func NewTerminalConsole() *Console {
	return newFileConsole(os.Stdout, os.Stderr)
}

func newFileConsole(out, err *os.File) *Console {
	return &Console{out: out, err: err, color: isTerminal(out)}
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Out returns the standard output writer.
func (c *Console) Out() io.Writer {
	return c.out
}

// Write prints a formatted line to the standard output.
func (c *Console) Write(format string, args ...any) {
	c.println(c.out, fmt.Sprintf(format, args...))
}

// Error prints a formatted line to the error output.
func (c *Console) Error(format string, args ...any) {
	c.println(c.err, c.paint(ansiRed, fmt.Sprintf(format, args...)))
}

// Success prints a formatted line to the standard output in green.
func (c *Console) Success(format string, args ...any) {
	c.println(c.out, c.Green(fmt.Sprintf(format, args...)))
}

// Green colors s when the console supports colors.
func (c *Console) Green(s string) string {
	return c.paint(ansiGreen, s)
}

// White colors s when the console supports colors.
func (c *Console) White(s string) string {
	return c.paint(ansiWhite, s)
}

// Bold emphasizes s when the console supports colors.
func (c *Console) Bold(s string) string {
	return c.paint(ansiBold, s)
}

func (c *Console) paint(code, s string) string {
	if !c.color {
		return s
	}
	return code + s + ansiReset
}

func (c *Console) println(w io.Writer, line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(w, line)
}
