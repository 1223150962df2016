package client

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

var ErrMailThrottled = errors.New("outbound mail rate exceeded")

// Sender is satisfied by every notifier in this package.
type Sender interface {
	SendText(ctx context.Context, to, subject, body string) error
}

// RateLimitedNotifier caps outbound mail with a token bucket. Messages over
// the budget are dropped, not queued.
type RateLimitedNotifier struct {
	next    Sender
	limiter *rate.Limiter
}

func NewRateLimitedNotifier(next Sender, perSecond float64, burst int) *RateLimitedNotifier {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedNotifier{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (n *RateLimitedNotifier) SendText(ctx context.Context, to, subject, body string) error {
	if !n.limiter.Allow() {
		return ErrMailThrottled
	}
	return n.next.SendText(ctx, to, subject, body)
}
