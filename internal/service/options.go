package service

import (
	"time"

	"github.com/alpha-starter/backend/internal/logging"
)

type options struct {
	now    func() time.Time
	logger logging.Logger
}

type Option func(*options)

// WithClock replaces the wall clock. Every timestamp is normalized to UTC.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:    time.Now,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	clock := o.now
	o.now = func() time.Time { return clock().UTC() }
	return o
}
