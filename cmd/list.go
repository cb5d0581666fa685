package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/postcard/internal/catalog"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List preview files and their functions",
	Long: `List every preview file in the previews directory together with the
preview functions it declares, in the order the preview page shows them.

Examples:
  postcard list
  postcard list -f json
  postcard list -f yaml`,
	Args: cobra.NoArgs,
	RunE: runList,
}

var listFormat string

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "Output format (table|json|yaml)")

	AddFlagValidation(listCmd.Flags(), "format", func(format string) error {
		return ValidateFormatWithSuggestion(format, outputFormats)
	})
}

// listing is the machine-readable form of the catalog.
type listing struct {
	EmailsDir string          `json:"emailsDir" yaml:"emails_dir"`
	NullState bool            `json:"nullState" yaml:"null_state"`
	Previews  catalog.Catalog `json:"previews" yaml:"previews"`
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	c, err := a.registry.List(commandContext(cmd))
	if err != nil {
		return err
	}

	out := listing{
		EmailsDir: a.cfg.Emails.Dir,
		NullState: catalog.IsDefaultExampleCatalog(c, a.cfg.Static),
		Previews:  c,
	}

	switch listFormat {
	case "json":
		return outputListJSON(cmd.OutOrStdout(), out)
	case "yaml":
		return outputListYAML(cmd.OutOrStdout(), out)
	case "table":
		return outputListTable(cmd.OutOrStdout(), out)
	default:
		return ValidateFormatWithSuggestion(listFormat, outputFormats)
	}
}

func outputListTable(w io.Writer, l listing) error {
	if len(l.Previews) == 0 {
		fmt.Fprintf(w, "No previews found in %s\n", l.EmailsDir)
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TEMPLATE\tTITLE\tFUNCTIONS")
	fmt.Fprintln(tw, "--------\t-----\t---------")
	for _, e := range l.Previews {
		functions := strings.Join(e.Functions, ", ")
		if e.Error != "" {
			functions = "invalid: " + e.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, e.Title, functions)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nTotal: %d templates, %d previews\n", len(l.Previews), len(l.Previews.Paths()))
	if l.NullState {
		fmt.Fprintln(w, "Only the bundled examples are present. Add your own templates and preview files to get started.")
	}
	return nil
}

func outputListJSON(w io.Writer, l listing) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(l)
}

func outputListYAML(w io.Writer, l listing) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()
	return encoder.Encode(l)
}
