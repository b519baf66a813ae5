package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8080", c.NexusBaseURL)
	assert.Equal(t, 8*time.Second, c.FetchTimeout)
	assert.Equal(t, "nexcal.db", c.DatabasePath)
	assert.Equal(t, "nexcal-resources", c.StorageBucket)
	assert.Equal(t, "us-east-1", c.StorageRegion)
	assert.Empty(t, c.UserID)
	assert.Empty(t, c.AuthToken)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, "http://127.0.0.1:8080", cfg.NexusBaseURL)
	assert.Equal(t, 8*time.Second, cfg.FetchTimeout)
}
