package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Test seams for terminal handling.
var (
	readPassword  = term.ReadPassword
	terminalStdin = func(f *os.File) bool { return term.IsTerminal(int(f.Fd())) }
)

// errNoInput is returned when a prompt hits end of input.
var errNoInput = errors.New("no input")

// prompter reads answers from the command's input. Secrets are read without
// echo when the input is a terminal, and as plain lines otherwise.
type prompter struct {
	in   *bufio.Reader
	file *os.File // non-nil when input is an *os.File
	out  io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	p := &prompter{in: bufio.NewReader(in), out: out}
	if f, ok := in.(*os.File); ok {
		p.file = f
	}

	return p
}

// Line prints label and reads one trimmed line.
func (p *prompter) Line(label string) (string, error) {
	fmt.Fprint(p.out, label)

	line, err := p.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("%w for %q", errNoInput, strings.TrimSpace(label))
		}

		return "", fmt.Errorf("reading input: %w", err)
	}

	return strings.TrimSpace(line), nil
}

// Secret reads a value without echo on a terminal.
func (p *prompter) Secret(label string) (string, error) {
	if p.file == nil || !terminalStdin(p.file) {
		return p.Line(label)
	}

	fmt.Fprint(p.out, label)

	b, err := readPassword(int(p.file.Fd()))
	fmt.Fprintln(p.out)

	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	return string(b), nil
}
