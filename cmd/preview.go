package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/postcard/internal/analytics"
	"github.com/conneroisu/postcard/internal/errors"
	"github.com/conneroisu/postcard/internal/send"
	"github.com/conneroisu/postcard/internal/server"
)

var previewCmd = &cobra.Command{
	Use:     "preview",
	Aliases: []string{"serve", "p"},
	Short:   "Start the live preview server",
	Long: `Serve every preview in the emails directory and reload open pages
whenever a template, layout or preview file changes.

Test sends are enabled when POSTMARK_SERVER_TOKEN and send.from are set.

Examples:
  postcard preview
  postcard preview --port 4000 --no-open
  postcard preview --emails ./mail --host 0.0.0.0`,
	Args: cobra.NoArgs,
	RunE: runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)

	previewCmd.Flags().IntP("port", "p", 3883, "Port to serve on")
	previewCmd.Flags().String("host", "localhost", "Host to bind to")
	previewCmd.Flags().Bool("no-open", false, "Don't open a browser")
	previewCmd.Flags().Bool("no-reload", false, "Disable live reload")

	viper.BindPFlag("server.port", previewCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", previewCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.no-open", previewCmd.Flags().Lookup("no-open"))

	AddFlagValidation(previewCmd.Flags(), "port", ValidatePort)
}

func runPreview(cmd *cobra.Command, args []string) error {
	if noReload, _ := cmd.Flags().GetBool("no-reload"); noReload {
		viper.Set("development.hot_reload", false)
	}

	a, err := loadApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := os.Stat(a.cfg.Emails.Dir); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: emails directory %s not found, run 'postcard init' to create it\n", a.cfg.Emails.Dir)
	}

	opts := []server.Option{server.WithLogger(a.logger)}
	if sender := newSender(a); sender != nil {
		opts = append(opts, server.WithSender(sender))
	}
	srv := server.New(a.cfg, a.service, opts...)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.tracker.Capture(ctx, analytics.EventPreview, map[string]any{
		"templates":  len(a.service.Catalog(ctx)),
		"hot_reload": a.cfg.Development.HotReload,
	})

	fmt.Fprintf(cmd.OutOrStdout(), "Previewing %s on http://%s:%d\n", a.cfg.Emails.Dir, a.cfg.Server.Host, a.cfg.Server.Port)

	if err := srv.Start(ctx); err != nil {
		suggestions := errors.ServerStartError(err, a.cfg.Server.Port, &errors.SuggestionContext{
			ConfigPath: viper.ConfigFileUsed(),
			EmailsDir:  a.cfg.Emails.Dir,
		})
		return errors.NewEnhancedError("Failed to start preview server", err, suggestions)
	}
	return nil
}

// newSender returns the Postmark sender when it is configured. A partial
// configuration is reported and leaves sends disabled.
func newSender(a *app) *send.Sender {
	if a.cfg.Send.ServerToken == "" {
		return nil
	}
	sender, err := send.New(send.Config{
		ServerToken:  a.cfg.Send.ServerToken,
		AccountToken: a.cfg.Send.AccountToken,
		From:         a.cfg.Send.From,
	}, a.logger)
	if err != nil {
		a.logger.Warn(context.Background(), err, "Test sends disabled")
		return nil
	}
	return sender
}
