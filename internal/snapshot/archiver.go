package snapshot

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
)

// Archiver compresses pre-migration store files and places them in object
// storage. Snapshots are keyed by store base name, source version name, and
// a timestamp so repeated migrations of the same store never collide.
type Archiver struct {
	storage ObjectStorage
}

// NewArchiver creates an archiver over the given storage backend.
func NewArchiver(storage ObjectStorage) *Archiver {
	return &Archiver{storage: storage}
}

// Archive compresses the store file at storePath and uploads it. The version
// name identifies the model the store conformed to when the snapshot was
// taken. Returns the object path of the uploaded snapshot.
func (a *Archiver) Archive(ctx context.Context, storePath, versionName string) (string, error) {
	data, err := os.ReadFile(storePath)
	if err != nil {
		return "", fmt.Errorf("snapshot: failed to read store file: %w", err)
	}

	compressed := snappy.Encode(nil, data)

	tmpPath := filepath.Join(os.TempDir(), uuid.NewString()+".db.sz")
	if err := os.WriteFile(tmpPath, compressed, 0644); err != nil {
		return "", fmt.Errorf("snapshot: failed to stage snapshot: %w", err)
	}
	defer os.Remove(tmpPath)

	objectPath := a.objectPath(storePath, versionName)
	if err := a.storage.Upload(ctx, tmpPath, objectPath); err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}

	log.Printf("snapshot: archived %s (%d -> %d bytes) as %s",
		filepath.Base(storePath), len(data), len(compressed), objectPath)
	return objectPath, nil
}

// Restore downloads a snapshot and decompresses it to destPath.
func (a *Archiver) Restore(ctx context.Context, objectPath, destPath string) error {
	tmpPath := filepath.Join(os.TempDir(), uuid.NewString()+".db.sz")
	if err := a.storage.Download(ctx, objectPath, tmpPath); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	defer os.Remove(tmpPath)

	compressed, err := os.ReadFile(tmpPath)
	if err != nil {
		return fmt.Errorf("snapshot: failed to read snapshot: %w", err)
	}

	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		return fmt.Errorf("snapshot: failed to decompress snapshot: %w", err)
	}

	if err := os.WriteFile(destPath, data, 0644); err != nil {
		return fmt.Errorf("snapshot: failed to write restored store: %w", err)
	}
	return nil
}

// List returns the object paths of all snapshots taken for the store at
// storePath, newest-first ordering is not guaranteed.
func (a *Archiver) List(ctx context.Context, storePath string) ([]string, error) {
	base := storeBaseName(storePath)
	return a.storage.ListObjects(ctx, base+"/")
}

func (a *Archiver) objectPath(storePath, versionName string) string {
	base := storeBaseName(storePath)
	ts := time.Now().UTC().Format("20060102T150405Z")
	return fmt.Sprintf("%s/%s-%s-%s.db.sz", base, versionName, ts, uuid.NewString())
}

func storeBaseName(storePath string) string {
	name := filepath.Base(storePath)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
