package mailvault

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mailvault/client-go/internal/logging"
)

func TestDefaultClientConfig(t *testing.T) {
	cfg := defaultClientConfig()
	assert.NotNil(t, cfg.logger)
	assert.Empty(t, cfg.id)
}

func TestWithClientID(t *testing.T) {
	cfg := defaultClientConfig()
	WithClientID("fixed-id")(&cfg)
	assert.Equal(t, "fixed-id", cfg.id)
}

func TestWithLogger(t *testing.T) {
	cfg := defaultClientConfig()
	discard := logging.Discard()
	WithLogger(discard)(&cfg)
	assert.Same(t, discard, cfg.logger)

	// nil keeps the previous logger instead of breaking the client
	WithLogger(nil)(&cfg)
	assert.Same(t, discard, cfg.logger)
}
