package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/postcard/internal/catalog"
	"github.com/conneroisu/postcard/internal/validation"
)

// validateArguments validates a slice of preview names
func validateArguments(args []string) error {
	for _, arg := range args {
		if err := validation.ValidatePreviewName(arg); err != nil {
			return fmt.Errorf("invalid argument '%s': %w", arg, err)
		}
	}
	return nil
}

// previewArgs is the positional-argument check for commands addressing a
// single preview as <template> <function>.
func previewArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(2)(cmd, args); err != nil {
		return err
	}
	return validateArguments(args)
}

// resolveTemplate accepts a preview file name with or without its extension.
// Names that match nothing are returned unchanged so the render reports them.
func resolveTemplate(c catalog.Catalog, arg string) string {
	if _, ok := c.Find(arg); ok {
		return arg
	}
	for _, e := range c {
		if strings.EqualFold(catalog.Stem(e.Name), arg) {
			return e.Name
		}
	}
	return arg
}
