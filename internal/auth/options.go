// ABOUTME: Functional options shared by the guard and its services

package auth

import (
	"log/slog"
	"time"
)

type options struct {
	logger   *slog.Logger
	metrics  *Metrics
	now      func() time.Time
	verifier *CredentialVerifier
}

// Option configures a Guard, TokenService or SessionService.
type Option func(*options)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics sets the instruments to record into.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithVerifier sets the credential verifier.
func WithVerifier(v *CredentialVerifier) Option {
	return func(o *options) { o.verifier = v }
}

func buildOptions(component string, opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", component)
	if o.now == nil {
		o.now = time.Now
	}
	if o.verifier == nil {
		o.verifier = &CredentialVerifier{}
	}
	return o
}
