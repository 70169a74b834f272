package email

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"

	"github.com/deppfellow/graphile-starter/internal/config"
)

// Sender delivers a rendered email. resend's Emails service satisfies it.
type Sender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

type Client struct {
	sender  Sender
	from    string
	appName string
	siteURL string
	logger  *zerolog.Logger
}

func NewClient(cfg *config.Config, logger *zerolog.Logger) *Client {
	return NewClientWithSender(resend.NewClient(cfg.Integration.ResendAPIKey).Emails, cfg, logger)
}

func NewClientWithSender(sender Sender, cfg *config.Config, logger *zerolog.Logger) *Client {
	return &Client{
		sender:  sender,
		from:    cfg.Integration.EmailFrom,
		appName: cfg.Primary.Name,
		siteURL: cfg.Primary.RootURL,
		logger:  logger,
	}
}

// Render executes a template into w.
func Render(w io.Writer, templateName Template, data map[string]string) error {
	if err := templates.ExecuteTemplate(w, templateName.file(), data); err != nil {
		return errors.Wrapf(err, "failed to execute email template %s", templateName)
	}
	return nil
}

func (c *Client) SendEmail(ctx context.Context, to, subject string, templateName Template, data map[string]string) error {
	var body bytes.Buffer
	if err := Render(&body, templateName, data); err != nil {
		return err
	}

	params := &resend.SendEmailRequest{
		From:    c.from,
		To:      []string{to},
		Subject: subject,
		Html:    body.String(),
	}

	sent, err := c.sender.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	c.logger.Debug().Str("email_id", sent.Id).Str("template", string(templateName)).Msg("email sent")
	return nil
}
