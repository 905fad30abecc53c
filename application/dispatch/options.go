package dispatch

import (
	"log/slog"

	"github.com/spinlet-dev/spinlet/application/normalize"
	"github.com/spinlet-dev/spinlet/internal/abi"
)

// DefaultMaxSelfDepth bounds nested requests an application sends to itself.
const DefaultMaxSelfDepth = 10

// dispatchConfig holds configuration for the Dispatcher.
type dispatchConfig struct {
	logger       *slog.Logger
	maxBody      int64
	maxResponse  uint32
	maxSelfDepth int
}

func defaultDispatchConfig() dispatchConfig {
	return dispatchConfig{
		logger:       slog.Default(),
		maxBody:      normalize.DefaultMaxBody,
		maxResponse:  abi.DefaultMaxPayload * 10,
		maxSelfDepth: DefaultMaxSelfDepth,
	}
}

// Option configures the Dispatcher.
type Option func(*dispatchConfig)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *dispatchConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxRequestBody caps inbound bodies. Larger requests are answered 413.
func WithMaxRequestBody(n int64) Option {
	return func(c *dispatchConfig) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithMaxResponseSize caps the JSON response a spin guest may return.
func WithMaxResponseSize(n uint32) Option {
	return func(c *dispatchConfig) {
		if n > 0 {
			c.maxResponse = n
		}
	}
}

// WithMaxSelfDepth bounds self-request nesting.
func WithMaxSelfDepth(n int) Option {
	return func(c *dispatchConfig) {
		if n > 0 {
			c.maxSelfDepth = n
		}
	}
}
