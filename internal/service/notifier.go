package service

import "context"

// Notifier delivers a plain-text message. Callers treat delivery as best-effort.
type Notifier interface {
	SendText(ctx context.Context, to, subject, body string) error
}

type noopNotifier struct{}

func (noopNotifier) SendText(context.Context, string, string, string) error { return nil }
