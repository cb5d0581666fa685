// Package send delivers a rendered preview to a real inbox through Postmark.
package send

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/mrz1836/postmark"

	"github.com/conneroisu/postcard/internal/catalog"
	perrors "github.com/conneroisu/postcard/internal/errors"
	"github.com/conneroisu/postcard/internal/logging"
	"github.com/conneroisu/postcard/internal/renderer"
)

// ErrInvalidConfig is returned when the sender cannot be configured.
var ErrInvalidConfig = errors.New("invalid send configuration")

// Tag marks every test send so it can be filtered in Postmark.
const Tag = "postcard-preview"

// Client is the subset of the Postmark client used for sending.
type Client interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// Message is a rendered email ready to send.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Compose builds a message for a rendered preview. The subject comes from the
// preview file, falling back to the document title and then to the
// template/function pair.
func Compose(p *catalog.Preview, to, html string) Message {
	subject := strings.TrimSpace(p.Subject)
	if subject == "" {
		subject = renderer.Title(html)
	}
	if subject == "" {
		subject = fmt.Sprintf("%s / %s", catalog.Stem(p.Template), p.Function)
	}

	return Message{
		To:      to,
		Subject: subject,
		HTML:    html,
		Text:    renderer.PlainText(html),
	}
}

// Config configures a Sender.
type Config struct {
	ServerToken  string
	AccountToken string
	From         string
}

// Sender sends messages through Postmark.
type Sender struct {
	client Client
	from   string
	logger logging.Logger
}

// New creates a Postmark-backed sender. The server token and a valid sender
// address are required.
func New(cfg Config, logger logging.Logger) (*Sender, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: server token is required (POSTMARK_SERVER_TOKEN)", ErrInvalidConfig)
	}
	return NewWithClient(postmark.NewClient(cfg.ServerToken, cfg.AccountToken), cfg.From, logger)
}

// NewWithClient creates a sender over an existing client.
func NewWithClient(client Client, from string, logger logging.Logger) (*Sender, error) {
	if _, err := mail.ParseAddress(from); err != nil {
		return nil, fmt.Errorf("%w: sender address %q: %v", ErrInvalidConfig, from, err)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Sender{client: client, from: from, logger: logger.WithComponent("send")}, nil
}

// Send delivers msg. Postmark API errors are reported as transport faults.
func (s *Sender) Send(ctx context.Context, msg Message) error {
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return perrors.NewValidationError(perrors.ErrCodeSendFailed,
			fmt.Sprintf("invalid recipient %q", msg.To))
	}
	if msg.HTML == "" {
		return perrors.NewValidationError(perrors.ErrCodeSendFailed, "nothing to send: empty html")
	}

	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:       s.from,
		To:         msg.To,
		Subject:    msg.Subject,
		Tag:        Tag,
		HTMLBody:   msg.HTML,
		TextBody:   msg.Text,
		TrackOpens: false,
	})
	if err != nil {
		return perrors.NewTransportFault(perrors.ErrCodeSendFailed, "postmark request failed", err)
	}
	if resp.ErrorCode > 0 {
		return perrors.NewTransportFault(perrors.ErrCodeSendFailed,
			fmt.Sprintf("postmark error %d: %s", resp.ErrorCode, resp.Message), nil)
	}

	s.logger.Info(ctx, "Test email sent", "to", msg.To, "subject", msg.Subject)
	return nil
}
