// Package config loads runtime configuration for the NexCal client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-n string   base URL of the Nexus indexer
//	-d string   path to the local SQLite cache database
//	-b string   object storage bucket for resource records
//	-u string   acting user id (ignored when a token is configured)
//	-t int      indexer fetch timeout (seconds)
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "8s" or integer nanoseconds:
//
//	{
//	  "nexus_base_url": "https://nexus.example.com",
//	  "fetch_timeout": "8s",
//	  "database_path": "nexcal.db",
//	  "storage_bucket": "nexcal-resources",
//	  "storage_region": "us-east-1",
//	  "storage_endpoint": "http://127.0.0.1:9000",
//	  "storage_access_key": "...",
//	  "storage_secret_key": "...",
//	  "user_id": "alice",
//	  "auth_token": "..."
//	}
//
// Primary API
//
//   - type Config                     — holds endpoint, storage and identity settings
//   - func LoadConfig() *Config       — builds Config by applying defaults, JSON, then flags
//   - func (*Config) LoadDefaults()   — sets sensible defaults
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
