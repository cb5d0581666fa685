package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/postcard/internal/errors"
	"github.com/conneroisu/postcard/internal/preview"
	"github.com/conneroisu/postcard/internal/renderer"
)

var renderFormats = []string{"html", "text", "json"}

var renderCmd = &cobra.Command{
	Use:     "render <template> <function>",
	Aliases: []string{"r"},
	Short:   "Render one preview to stdout or a file",
	Long: `Render a single preview function and print the result. The template may
be given with or without its .yml extension.

Formats:
  html   the rendered document
  text   the plain-text alternative derived from it
  json   the same response the preview API returns

Examples:
  postcard render Welcome Default
  postcard render Welcome.yml NoButton -f text
  postcard render TextEmail Default -o out.html`,
	Args: previewArgs,
	RunE: runRender,
}

var (
	renderFormat string
	renderOut    string
)

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringVarP(&renderFormat, "format", "f", "html", "Output format (html|text|json)")
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "", "Write to a file instead of stdout")

	AddFlagValidation(renderCmd.Flags(), "format", func(format string) error {
		return ValidateFormatWithSuggestion(format, renderFormats)
	})
}

func runRender(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	ctx := commandContext(cmd)
	previews := a.service.Catalog(ctx)
	template := resolveTemplate(previews, args[0])
	result := a.service.Render(ctx, template, args[1])

	if !result.OK() && renderFormat != "json" {
		return renderFailure(cmd.ErrOrStderr(), template, result)
	}

	var w io.Writer = cmd.OutOrStdout()
	if renderOut != "" {
		f, err := os.Create(renderOut)
		if err != nil {
			return errors.NewIOError(errors.ErrCodeFileWrite, "creating output file", err).WithLocation(renderOut, 0)
		}
		defer f.Close()
		w = f
	}

	switch renderFormat {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(result); err != nil {
			return err
		}
		if !result.OK() {
			return fmt.Errorf("render failed with %d error(s)", len(result.Errors))
		}
		return nil
	case "text":
		_, err = fmt.Fprintln(w, renderer.PlainText(*result.HTML))
	default:
		_, err = io.WriteString(w, *result.HTML)
	}
	return err
}

// renderFailure prints the render errors and returns the command error. A
// missing template gets suggestions built from the catalog.
func renderFailure(w io.Writer, template string, result preview.Result) error {
	for _, e := range result.Errors {
		fmt.Fprintln(w, "  "+e.String())
	}

	for _, e := range result.Errors {
		if e.Kind != string(errors.KindNotFound) {
			continue
		}
		names := make([]string, 0, len(result.Previews))
		for _, entry := range result.Previews {
			names = append(names, entry.Name)
		}
		suggestions := errors.PreviewNotFoundError(template, &errors.SuggestionContext{Templates: names})
		fmt.Fprint(w, errors.FormatSuggestions("\nPreview not found", suggestions))
		break
	}

	return fmt.Errorf("render failed with %d error(s)", len(result.Errors))
}
