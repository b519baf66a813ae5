package config

import (
	"time"

	"github.com/nexcal/nexcal/internal/common"
)

// Config holds runtime settings for the NexCal client.
//
// Fields:
//   - NexusBaseURL: base URL of the Nexus indexer.
//   - FetchTimeout: per-request timeout for indexer fetches.
//   - DatabasePath: path of the local SQLite cache database.
//   - StorageBucket/StorageRegion/StorageEndpoint: object storage location;
//     a non-empty endpoint selects path-style addressing (MinIO et al.).
//   - StorageAccessKey/StorageSecretKey: static storage credentials; empty
//     falls back to the ambient AWS credential chain.
//   - UserID: acting user id for tags and RSVPs.
//   - AuthToken: bearer token whose subject claim overrides UserID.
type Config struct {
	NexusBaseURL     string
	FetchTimeout     time.Duration
	DatabasePath     string
	StorageBucket    string
	StorageRegion    string
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	UserID           string
	AuthToken        string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.NexusBaseURL = "http://127.0.0.1:8080"
	c.FetchTimeout = common.DefaultFetchTimeout
	c.DatabasePath = "nexcal.db"
	c.StorageBucket = "nexcal-resources"
	c.StorageRegion = "us-east-1"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
