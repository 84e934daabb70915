// Package app wires the Stockroom engine together from configuration: the
// schema version inventory, the mapping resolver, the snapshot archiver and
// the migrator.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/stockroom/stockroom/internal/compat"
	"github.com/stockroom/stockroom/internal/config"
	"github.com/stockroom/stockroom/internal/inventory"
	"github.com/stockroom/stockroom/internal/mapping"
	"github.com/stockroom/stockroom/internal/migrate"
	"github.com/stockroom/stockroom/internal/snapshot"
	"github.com/stockroom/stockroom/internal/store"
)

// App holds the engine's long-lived components.
type App struct {
	cfg *config.Config

	inv      *inventory.Inventory
	resolver *mapping.Resolver
	archiver *snapshot.Archiver
	migrator *migrate.Migrator
}

// New creates an App from configuration: paths are resolved, validated, and
// the schema version inventory is loaded eagerly so misconfigured resources
// fail at startup rather than mid-migration.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	a := &App{cfg: cfg}

	inv, err := inventory.Load(cfg.ModelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema versions: %w", err)
	}
	a.inv = inv
	log.Printf("app: loaded %d schema version(s) from %s, latest %s",
		len(inv.Versions()), cfg.ModelsDir, inv.Latest().Name)

	a.resolver = mapping.NewResolver(inv, cfg.MappingsDir)

	if cfg.Snapshot.Enabled {
		storage, err := a.initSnapshotStorage()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize snapshot storage: %w", err)
		}
		a.archiver = snapshot.NewArchiver(storage)
		log.Printf("app: snapshot archival enabled: storage=%s", cfg.Snapshot.Storage)
	}

	a.migrator = migrate.New(a.inv, a.resolver, a.archiver)
	return a, nil
}

func (a *App) initSnapshotStorage() (snapshot.ObjectStorage, error) {
	switch a.cfg.Snapshot.Storage {
	case "local":
		return snapshot.NewLocalStorage(a.cfg.Snapshot.Path)
	case "s3":
		s3Cfg := snapshot.DefaultS3Config()
		if a.cfg.Snapshot.S3.Region != "" {
			s3Cfg.Region = a.cfg.Snapshot.S3.Region
		}
		if a.cfg.Snapshot.S3.Endpoint != "" {
			s3Cfg.Endpoint = a.cfg.Snapshot.S3.Endpoint
		}
		s3Cfg.UsePathStyle = a.cfg.Snapshot.S3.UsePathStyle
		return snapshot.NewS3Storage(context.Background(), a.cfg.Snapshot.S3.Bucket, s3Cfg)
	default:
		return nil, fmt.Errorf("unsupported snapshot storage: %s", a.cfg.Snapshot.Storage)
	}
}

// Inventory exposes the loaded schema version inventory.
func (a *App) Inventory() *inventory.Inventory {
	return a.inv
}

// Migrate carries a store file to the named target version, or to the latest
// version when targetName is empty.
func (a *App) Migrate(ctx context.Context, storePath, targetName string) (*migrate.Result, error) {
	return a.migrator.Migrate(ctx, storePath, targetName)
}

// CurrentVersion reports which known schema version a store file conforms
// to, or nil when none matches.
func (a *App) CurrentVersion(ctx context.Context, storePath string) (*inventory.Version, error) {
	meta, err := store.ReadMetaAtPath(ctx, storePath)
	if err != nil {
		return nil, err
	}
	return a.inv.CurrentVersion(meta.Snapshot), nil
}

// IsCompatible reports whether a store file can be opened directly against
// the named version, without migration.
func (a *App) IsCompatible(ctx context.Context, storePath, versionName string) (bool, error) {
	v := a.inv.Version(versionName)
	if v == nil {
		return false, fmt.Errorf("no schema version named %q", versionName)
	}
	meta, err := store.ReadMetaAtPath(ctx, storePath)
	if err != nil {
		return false, err
	}
	return compat.IsCompatible(meta, v.Model), nil
}
