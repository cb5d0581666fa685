package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/postcard/internal/analytics"
	"github.com/conneroisu/postcard/internal/scaffold"
)

var initCmd = &cobra.Command{
	Use:     "init",
	Aliases: []string{"i"},
	Short:   "Find or generate the emails directory",
	Long: `Look for an emails directory (src/emails, then emails). When none exists,
offer to generate one with a layout, two example templates and their preview
files, then offer to start preview mode.

This is also what runs when postcard is invoked without a command.

Examples:
  postcard
  postcard init
  echo "mail" | postcard init    # generate into ./mail without prompting`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	prompter := scaffold.NewTerminalPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
	outcome, err := scaffold.Init(".", prompter, cmd.OutOrStdout())
	if err != nil {
		a.close()
		return err
	}

	a.tracker.Capture(commandContext(cmd), analytics.EventInit, map[string]any{
		"generated":     len(outcome.Generated) > 0,
		"start_preview": outcome.StartPreview,
	})
	a.close()

	if !outcome.StartPreview {
		return nil
	}

	viper.Set("emails.dir", outcome.EmailsDir)
	return runPreview(cmd, nil)
}
