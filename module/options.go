package module

import (
	"log/slog"
	"math/rand"

	"github.com/vsariola/patchbay/transport"
)

type (
	options struct {
		log       *slog.Logger
		transport []transport.Option
		rand      *rand.Rand
	}

	// Option configures the modules created by a constructor or a Registry.
	Option func(*options)
)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithTransportOptions passes options to the scheduler of every Transport.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(o *options) { o.transport = append(o.transport, opts...) }
}

// WithRand sets the noise source used for generated impulse responses.
func WithRand(r *rand.Rand) Option {
	return func(o *options) { o.rand = r }
}

func collect(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	return o
}
