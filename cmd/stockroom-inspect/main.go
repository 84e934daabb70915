// Package main implements the stockroom-inspect binary: it reports which
// schema version a store file conforms to and whether it could open against
// the latest version without migration.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/stockroom/stockroom/internal/app"
	"github.com/stockroom/stockroom/internal/config"
	"github.com/stockroom/stockroom/internal/store"
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
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for resources and work files")
	flag.StringVar(&modelsDir, "models-dir", "", "Directory holding schema version resources")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Stockroom - Store Inspector\n\n")
		fmt.Fprintf(os.Stderr, "Usage: stockroom-inspect [options] <store-file>\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  stockroom-inspect --models-dir ./models shop.db\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  STOCKROOM_DATA_DIR    Base directory for resources\n")
		fmt.Fprintf(os.Stderr, "  STOCKROOM_MODELS_DIR  Schema version resource directory\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("stockroom-inspect version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	storePath := flag.Arg(0)

	cfg := config.DefaultConfig()
	if configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			log.Fatalf("Failed to load config file: %v", err)
		}
	}
	config.LoadFromEnv(cfg)
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if modelsDir != "" {
		cfg.ModelsDir = modelsDir
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	ctx := context.Background()
	meta, err := store.ReadMetaAtPath(ctx, storePath)
	if err != nil {
		log.Fatalf("Failed to read store metadata: %v", err)
	}

	fmt.Printf("store:       %s\n", storePath)
	fmt.Printf("fingerprint: %s\n", meta.Fingerprint)
	fmt.Printf("written at:  %s\n", meta.WrittenAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("entities:    %d\n", len(meta.Snapshot.Entities))

	current := application.Inventory().CurrentVersion(meta.Snapshot)
	if current == nil {
		fmt.Printf("version:     unknown (no structural match in inventory)\n")
		os.Exit(1)
	}
	fmt.Printf("version:     %s\n", current.Name)

	latest := application.Inventory().Latest()
	if current.Name == latest.Name {
		fmt.Printf("status:      up to date\n")
		return
	}
	pending, err := application.Inventory().Path(current, latest)
	if err != nil {
		log.Fatalf("Failed to compute migration path: %v", err)
	}
	fmt.Printf("status:      %d step(s) behind %s\n", len(pending), latest.Name)
}
