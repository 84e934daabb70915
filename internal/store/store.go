// Package store provides access to persisted Stockroom store files.
// A store is a single SQLite database holding one table per entity plus a
// store_meta table recording the structural metadata of the schema version
// the store was last written with. Stores never embed a human version name;
// the inventory matches their structure back to a known version.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/stockroom/stockroom/internal/errors"
	"github.com/stockroom/stockroom/pkg/types"

	_ "github.com/mattn/go-sqlite3"
)

// Store is an open handle to a persisted store file.
type Store struct {
	db       *sql.DB
	path     string
	readonly bool
	model    types.Model
}

// Create creates a new store file at path with tables for every entity of
// model, and stamps the structural metadata. The file must not already hold
// a store.
func Create(path string, model types.Model) (*Store, error) {
	if err := model.Validate(); err != nil {
		return nil, errors.NewStoreError(errors.CodeOpenFailed, fmt.Sprintf("invalid model for new store %s", path), err)
	}

	db, err := openDB(path, false)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, path: path, model: model}
	if err := s.initSchema(model); err != nil {
		db.Close()
		return nil, errors.NewStoreError(errors.CodeOpenFailed, fmt.Sprintf("failed to initialize store %s", path), err)
	}
	return s, nil
}

// Open opens an existing store read-write and loads its metadata.
func Open(path string) (*Store, error) {
	return open(path, false)
}

// OpenReadOnly opens an existing store without taking a write handle. The
// store file is guaranteed not to be modified through this handle.
func OpenReadOnly(path string) (*Store, error) {
	return open(path, true)
}

func open(path string, readonly bool) (*Store, error) {
	db, err := openDB(path, readonly)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, path: path, readonly: readonly}
	meta, err := s.ReadMeta(context.Background())
	if err != nil {
		db.Close()
		return nil, err
	}
	s.model = meta.Snapshot
	return s, nil
}

func openDB(path string, readonly bool) (*sql.DB, error) {
	dsn := path + "?_busy_timeout=5000&_foreign_keys=on"
	if readonly {
		dsn = "file:" + path + "?mode=ro&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.NewStoreError(errors.CodeOpenFailed, fmt.Sprintf("failed to open store %s", path), err)
	}
	// Single writer; migration steps are strictly sequential anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.NewStoreError(errors.CodeOpenFailed, fmt.Sprintf("failed to open store %s", path), err)
	}
	return db, nil
}

// initSchema builds the entity tables, join tables and metadata for a fresh
// store.
func (s *Store) initSchema(model types.Model) error {
	stmts, err := AllSchemaSQL(model)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return s.WriteMeta(context.Background(), model)
}

// Path returns the store's file path.
func (s *Store) Path() string {
	return s.path
}

// Model returns the schema model this store was opened or created with.
func (s *Store) Model() types.Model {
	return s.model
}

// DB exposes the underlying database handle. Migration steps use it for
// ATTACH-based bulk copies.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the underlying file handles. It must be called before the
// store file is renamed or used as the source of a later migration step.
func (s *Store) Close() error {
	return s.db.Close()
}

// Meta is the structural metadata recorded in a store file.
type Meta struct {
	// Fingerprint is the murmur3 model fingerprint at last write.
	Fingerprint string
	// Snapshot is the full descriptor set the store conforms to.
	Snapshot types.Model
	// WrittenAt is when the metadata was last stamped.
	WrittenAt time.Time
}

// SidecarPaths returns the auxiliary files SQLite may keep next to a store
// file (write-ahead log and shared-memory index).
func SidecarPaths(path string) []string {
	return []string{path + "-wal", path + "-shm"}
}

// CheckpointWAL folds any pending write-ahead log at path back into the main
// database file. A store last touched by a WAL-mode writer can hold committed
// transactions only in the -wal sidecar; those must land in the main file
// before it is read as a migration source or replaced. Returns an error if a
// non-empty log remains after checkpointing.
func CheckpointWAL(ctx context.Context, path string) error {
	walPath := path + "-wal"
	fi, err := os.Stat(walPath)
	if os.IsNotExist(err) || (err == nil && fi.Size() == 0) {
		return nil
	}
	if err != nil {
		return errors.NewStoreError(errors.CodeOpenFailed, fmt.Sprintf("cannot stat write-ahead log %s", walPath), err)
	}

	db, err := openDB(path, false)
	if err != nil {
		return err
	}
	_, execErr := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	db.Close()
	if execErr != nil {
		return errors.NewStoreError(errors.CodeOpenFailed, fmt.Sprintf("cannot checkpoint write-ahead log %s", walPath), execErr)
	}

	if fi, err := os.Stat(walPath); err == nil && fi.Size() > 0 {
		return errors.NewStoreError(errors.CodeOpenFailed,
			fmt.Sprintf("write-ahead log %s still holds pending writes after checkpoint", walPath), nil)
	}
	return nil
}

// ReadMetaAtPath reads a store's metadata without keeping a handle open.
func ReadMetaAtPath(ctx context.Context, path string) (*Meta, error) {
	s, err := OpenReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.ReadMeta(ctx)
}
