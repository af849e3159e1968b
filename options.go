package mailvault

import (
	"github.com/mailvault/client-go/internal/logging"
)

// clientConfig holds configuration for the client.
type clientConfig struct {
	logger logging.Logger
	id     string
}

func defaultClientConfig() clientConfig {
	return clientConfig{
		logger: logging.Default(),
	}
}

// Option configures the client.
type Option func(*clientConfig)

// WithLogger sets the structured logger. Defaults to colored stderr output
// at info level; use logging.Discard() to silence the client.
func WithLogger(log logging.Logger) Option {
	return func(c *clientConfig) {
		if log != nil {
			c.logger = log
		}
	}
}

// WithClientID overrides the generated client instance id used for log
// correlation.
func WithClientID(id string) Option {
	return func(c *clientConfig) {
		c.id = id
	}
}
