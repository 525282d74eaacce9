package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// prompter asks the interactive questions of generate. When interactive is
// false every question takes its default without reading input.
type prompter struct {
	in          *bufio.Reader
	out         io.Writer
	interactive bool
}

func newPrompter(in io.Reader, out io.Writer, interactive bool) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out, interactive: interactive}
}

// confirmOpen asks whether to open the camera. Enter means yes.
func (p *prompter) confirmOpen() (bool, error) {
	if !p.interactive {
		return true, nil
	}
	for {
		fmt.Fprint(p.out, "Open the camera now? [Y/n]: ")
		line, err := p.readLine()
		if err != nil {
			return false, err
		}
		switch strings.ToLower(line) {
		case "", "y", "yes", "s", "si", "sí":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(p.out, "Please answer 'y' or 'n'.")
	}
}

// length asks for a password length in [lo, hi]. Enter means def.
func (p *prompter) length(lo, hi, def int) (int, error) {
	if !p.interactive {
		return def, nil
	}
	for {
		fmt.Fprintf(p.out, "How many characters? (%d-%d, default %d): ", lo, hi, def)
		line, err := p.readLine()
		if err != nil {
			return 0, err
		}
		if line == "" {
			return def, nil
		}
		n, err := strconv.Atoi(line)
		if err != nil {
			fmt.Fprintln(p.out, "Enter a whole number.")
			continue
		}
		if n < lo || n > hi {
			fmt.Fprintf(p.out, "Enter a value between %d and %d.\n", lo, hi)
			continue
		}
		return n, nil
	}
}

func (p *prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
