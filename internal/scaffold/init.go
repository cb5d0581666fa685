package scaffold

import (
	"fmt"
	"io"
)

// Outcome is the result of the init flow.
type Outcome struct {
	// EmailsDir is the existing or generated emails directory; empty when
	// the user declined to generate one.
	EmailsDir string
	Generated []string
	// StartPreview reports whether the user asked to start preview mode.
	StartPreview bool
}

// Init runs the interactive setup: locate or generate the emails directory,
// then offer to start preview mode.
func Init(root string, prompter Prompter, out io.Writer) (*Outcome, error) {
	outcome := &Outcome{}

	if dir, ok := FindExisting(root); ok {
		fmt.Fprintf(out, "Directory 'emails' found at %s\n", dir)
		outcome.EmailsDir = dir
	} else {
		fmt.Fprintln(out, "Emails directory not found.")

		dest, err := prompter.Text("Where should we generate it?", SuggestPath(root))
		if err != nil {
			return nil, err
		}
		if dest == "" {
			fmt.Fprintln(out, "OK, bye!")
			return outcome, nil
		}

		written, err := Generate(dest)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(out, "Generated your emails dir at %s\n", dest)
		outcome.EmailsDir = dest
		outcome.Generated = written
	}

	start, err := prompter.Confirm("Looks good. Start preview mode?", true)
	if err != nil {
		return nil, err
	}
	if !start {
		fmt.Fprintln(out, "Bye!")
		return outcome, nil
	}
	outcome.StartPreview = true
	return outcome, nil
}
