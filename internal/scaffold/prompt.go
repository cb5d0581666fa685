package scaffold

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Prompter asks the user questions.
type Prompter interface {
	// Text asks for a line of input. An empty answer returns def; a closed
	// input returns "".
	Text(message, def string) (string, error)
	// Confirm asks a yes/no question. An empty answer returns def.
	Confirm(message string, def bool) (bool, error)
}

// TerminalPrompter reads answers line by line.
type TerminalPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalPrompter creates a prompter over in and out.
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: bufio.NewReader(in), out: out}
}

func (p *TerminalPrompter) readLine() (string, bool, error) {
	line, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return strings.TrimSpace(line), line != "", nil
		}
		return "", false, err
	}
	return strings.TrimSpace(line), true, nil
}

func (p *TerminalPrompter) Text(message, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "? %s (%s) ", message, def)
	} else {
		fmt.Fprintf(p.out, "? %s ", message)
	}

	answer, ok, err := p.readLine()
	if err != nil || !ok {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

func (p *TerminalPrompter) Confirm(message string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	fmt.Fprintf(p.out, "? %s (%s) ", message, hint)

	answer, ok, err := p.readLine()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	switch strings.ToLower(answer) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// ScriptedPrompter answers from fixed lists, then falls back to defaults.
type ScriptedPrompter struct {
	Texts    []string
	Confirms []bool
	// Asked records every message, in order.
	Asked []string
}

func (p *ScriptedPrompter) Text(message, def string) (string, error) {
	p.Asked = append(p.Asked, message)
	if len(p.Texts) == 0 {
		return def, nil
	}
	answer := p.Texts[0]
	p.Texts = p.Texts[1:]
	return answer, nil
}

func (p *ScriptedPrompter) Confirm(message string, def bool) (bool, error) {
	p.Asked = append(p.Asked, message)
	if len(p.Confirms) == 0 {
		return def, nil
	}
	answer := p.Confirms[0]
	p.Confirms = p.Confirms[1:]
	return answer, nil
}
