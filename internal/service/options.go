package service

import "time"

// Option customizes a service at construction
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now as the service's source of the current time
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
