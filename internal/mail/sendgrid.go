package mail

import (
	"context"
	"fmt"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
	"net/http"
)

// SendGrid delivers messages through the SendGrid v3 API
type SendGrid struct {
	logger *zap.SugaredLogger
	key    string
	host   string
	from   *sgmail.Email
}

var _ Sender = (*SendGrid)(nil)

func NewSendGrid(logger *zap.SugaredLogger, cfg Config) *SendGrid {
	return &SendGrid{
		logger: logger,
		key:    cfg.SendGridAPIKey,
		host:   cfg.SendGridHost,
		from:   sgmail.NewEmail(cfg.FromName, cfg.From),
	}
}

func (s *SendGrid) Send(ctx context.Context, to, subject, html string) error {
	message := sgmail.NewSingleEmail(s.from, subject, sgmail.NewEmail("", to), "", html)

	req := sendgrid.GetRequest(s.key, "/v3/mail/send", s.host)
	req.Method = rest.Post
	req.Body = sgmail.GetRequestBody(message)

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("sendgrid: unexpected status %d: %s", resp.StatusCode, resp.Body)
	}

	s.logger.Debugf("Sent %q to %s", subject, to)

	return nil
}

// LogSender only logs messages, used when no SendGrid key is configured
type LogSender struct {
	logger *zap.SugaredLogger
}

func NewLogSender(logger *zap.SugaredLogger) *LogSender {
	return &LogSender{logger: logger}
}

func (l *LogSender) Send(_ context.Context, to, subject, html string) error {
	l.logger.Infow("Mail delivery disabled", "to", to, "subject", subject, "body", html)
	return nil
}
