// Package mail sends account notifications.
package mail

import (
	"context"
	"fmt"
	"html"
)

// Sender delivers a single HTML message
type Sender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// Notifier renders account notifications
type Notifier struct {
	sender Sender
}

func NewNotifier(sender Sender) *Notifier {
	return &Notifier{sender: sender}
}

func linkMessage(link, action string) string {
	return fmt.Sprintf(`<h1>Please click on <a href="%s">this link</a> to %s</h1>`, html.EscapeString(link), action)
}

func (n *Notifier) SendVerification(ctx context.Context, to, link string) error {
	return n.sender.Send(ctx, to, "Verify your email", linkMessage(link, "verify your email"))
}

func (n *Notifier) SendPasswordResetLink(ctx context.Context, to, link string) error {
	return n.sender.Send(ctx, to, "Reset your password", linkMessage(link, "update your password"))
}

func (n *Notifier) SendPasswordUpdated(ctx context.Context, to string) error {
	return n.sender.Send(ctx, to, "Password updated", "<h1>Your password has been updated</h1>")
}
