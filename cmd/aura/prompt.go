package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// prompter reads answers from the command's input. Passwords are read
// without echo when the input is a terminal.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
}

func newPrompter(cmd *cobra.Command) *prompter {
	in := cmd.InOrStdin()
	fd := -1
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd = int(f.Fd())
	}
	return &prompter{in: bufio.NewReader(in), out: cmd.OutOrStdout(), fd: fd}
}

// Line prompts with label and returns the trimmed answer.
func (p *prompter) Line(label string) (string, error) {
	s, err := p.raw(label)
	return strings.TrimSpace(s), err
}

// Password prompts with label and returns the answer as typed.
func (p *prompter) Password(label string) (string, error) {
	if p.fd < 0 {
		return p.raw(label)
	}
	fmt.Fprint(p.out, label)
	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}

func (p *prompter) raw(label string) (string, error) {
	fmt.Fprint(p.out, label)
	s, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || s == "") {
		if err == io.EOF {
			return "", fmt.Errorf("no input: %w", err)
		}
		return "", err
	}
	return strings.TrimRight(s, "\r\n"), nil
}
