package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/nexcal/nexcal/internal/flagx"
	"github.com/nexcal/nexcal/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "8s" or as integer nanoseconds. After parsing, values
// are copied into the runtime Config (which uses time.Duration).
type JsonConfig struct {
	NexusBaseURL     string         `json:"nexus_base_url"`
	FetchTimeout     timex.Duration `json:"fetch_timeout"`
	DatabasePath     string         `json:"database_path"`
	StorageBucket    string         `json:"storage_bucket"`
	StorageRegion    string         `json:"storage_region"`
	StorageEndpoint  string         `json:"storage_endpoint"`
	StorageAccessKey string         `json:"storage_access_key"`
	StorageSecretKey string         `json:"storage_secret_key"`
	UserID           string         `json:"user_id"`
	AuthToken        string         `json:"auth_token"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// Lookup order for the JSON file path:
//  1. Command-line flags (-c or -config) via flagx.JsonConfigFlags().
//  2. If empty, no JSON is loaded and the function returns.
//
// Behavior:
//   - Reads and unmarshals the JSON into JsonConfig.
//   - Copies set fields into the provided Config; zero-valued JSON fields
//     leave the existing (default) value alone.
//   - Panics on read or unmarshal errors (caller should recover if desired).
//
// Intended usage is: defaults -> parseJson -> parseFlags, where later stages
// override earlier ones.
func parseJson(cfg *Config) {
	// Resolve file path from flags.
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.NexusBaseURL != "" {
		cfg.NexusBaseURL = jc.NexusBaseURL
	}
	if jc.FetchTimeout.Duration != 0 {
		cfg.FetchTimeout = time.Duration(jc.FetchTimeout.Duration)
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.StorageBucket != "" {
		cfg.StorageBucket = jc.StorageBucket
	}
	if jc.StorageRegion != "" {
		cfg.StorageRegion = jc.StorageRegion
	}
	if jc.StorageEndpoint != "" {
		cfg.StorageEndpoint = jc.StorageEndpoint
	}
	if jc.StorageAccessKey != "" {
		cfg.StorageAccessKey = jc.StorageAccessKey
	}
	if jc.StorageSecretKey != "" {
		cfg.StorageSecretKey = jc.StorageSecretKey
	}
	if jc.UserID != "" {
		cfg.UserID = jc.UserID
	}
	if jc.AuthToken != "" {
		cfg.AuthToken = jc.AuthToken
	}
}
