package config

import (
	"flag"
	"os"
	"time"

	"github.com/nexcal/nexcal/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-n string   base URL of the Nexus indexer (default from Config)
//	-d string   path to the local SQLite cache database (default from Config)
//	-b string   object storage bucket (default from Config)
//	-u string   acting user id (default from Config)
//	-t int      indexer fetch timeout in seconds (default from Config)
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	// Filter args to include only those handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-n", "-d", "-b", "-u", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.NexusBaseURL, "n", cfg.NexusBaseURL, "base URL of the Nexus indexer")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path to the local cache database")
	fs.StringVar(&cfg.StorageBucket, "b", cfg.StorageBucket, "object storage bucket")
	fs.StringVar(&cfg.UserID, "u", cfg.UserID, "acting user id")
	fetchTimeout := fs.Int("t", int(cfg.FetchTimeout.Seconds()), "indexer fetch timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.FetchTimeout = time.Duration(*fetchTimeout) * time.Second
}
