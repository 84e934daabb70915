// Package main implements the stockroom-migrate binary: it carries a store
// file from its current schema version to a target version, one adjacent
// step at a time.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/stockroom/stockroom/internal/app"
	"github.com/stockroom/stockroom/internal/config"
	"github.com/stockroom/stockroom/internal/errors"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		dataDir     string
		modelsDir   string
		mappingsDir string
		target      string
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for resources and work files")
	flag.StringVar(&modelsDir, "models-dir", "", "Directory holding schema version resources")
	flag.StringVar(&mappingsDir, "mappings-dir", "", "Directory holding custom mapping resources")
	flag.StringVar(&target, "target", "", "Target schema version name (default: latest)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Stockroom - Local Store Migration Engine\n\n")
		fmt.Fprintf(os.Stderr, "Usage: stockroom-migrate [options] <store-file>\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  stockroom-migrate --models-dir ./models shop.db\n")
		fmt.Fprintf(os.Stderr, "  stockroom-migrate --models-dir ./models --target shop_v32 shop.db\n")
		fmt.Fprintf(os.Stderr, "  stockroom-migrate --config /etc/stockroom/config.yaml shop.db\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  STOCKROOM_DATA_DIR          Base directory for resources\n")
		fmt.Fprintf(os.Stderr, "  STOCKROOM_MODELS_DIR        Schema version resource directory\n")
		fmt.Fprintf(os.Stderr, "  STOCKROOM_MAPPINGS_DIR      Custom mapping resource directory\n")
		fmt.Fprintf(os.Stderr, "  STOCKROOM_SNAPSHOT_ENABLED  Archive the store before migrating\n")
		fmt.Fprintf(os.Stderr, "  STOCKROOM_SNAPSHOT_STORAGE  Snapshot storage (local, s3)\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("stockroom-migrate version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	storePath := flag.Arg(0)

	cfg, err := loadConfig(configFile, dataDir, modelsDir, mappingsDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	res, err := application.Migrate(context.Background(), storePath, target)
	if err != nil {
		if errors.IsRetryable(err) {
			log.Printf("Migration failed but is safe to retry: %v", err)
		} else {
			log.Printf("Migration failed: %v", err)
		}
		os.Exit(1)
	}

	if res.NoOp {
		fmt.Printf("%s already at %s, nothing to do\n", storePath, res.To)
		return
	}
	fmt.Printf("%s migrated %s -> %s (%d step(s))\n", storePath, res.From, res.To, res.Applied)
	if res.SnapshotPath != "" {
		fmt.Printf("pre-migration snapshot: %s\n", res.SnapshotPath)
	}
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(configFile, dataDir, modelsDir, mappingsDir string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	// Command line flags take highest priority
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if modelsDir != "" {
		cfg.ModelsDir = modelsDir
	}
	if mappingsDir != "" {
		cfg.MappingsDir = mappingsDir
	}

	return cfg, nil
}
