package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/postcard/internal/analytics"
	"github.com/conneroisu/postcard/internal/errors"
	"github.com/conneroisu/postcard/internal/send"
	"github.com/conneroisu/postcard/internal/server"
)

var sendCmd = &cobra.Command{
	Use:   "send <template> <function>",
	Short: "Send a rendered preview as a test email",
	Long: `Render one preview and deliver it through Postmark. The subject comes
from the preview file, then the document title, then the preview name.

Requires POSTMARK_SERVER_TOKEN and a sender address (send.from or
POSTCARD_SEND_FROM).

Examples:
  postcard send Welcome Default --to me@example.com`,
	Args: previewArgs,
	RunE: runSend,
}

var sendTo string

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVar(&sendTo, "to", "", "Recipient address")
	_ = sendCmd.MarkFlagRequired("to")
}

func runSend(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	sender, err := send.New(send.Config{
		ServerToken:  a.cfg.Send.ServerToken,
		AccountToken: a.cfg.Send.AccountToken,
		From:         a.cfg.Send.From,
	}, a.logger)
	if err != nil {
		return errors.NewConfigError(errors.ErrCodeSendFailed, err.Error())
	}

	return sendPreview(cmd, a, sender, args[0], args[1])
}

// sendPreview renders and delivers one preview through sender.
func sendPreview(cmd *cobra.Command, a *app, sender server.Sender, template, function string) error {
	ctx := commandContext(cmd)
	template = resolveTemplate(a.service.Catalog(ctx), template)

	p, html, err := a.service.RenderPreview(ctx, template, function)
	if err != nil {
		return err
	}

	msg := send.Compose(p, sendTo, html)
	if err := sender.Send(ctx, msg); err != nil {
		return err
	}

	a.tracker.Capture(ctx, analytics.EventSend, map[string]any{"template": template})
	fmt.Fprintf(cmd.OutOrStdout(), "Sent %s/%s to %s (%q)\n", template, function, msg.To, msg.Subject)
	return nil
}
