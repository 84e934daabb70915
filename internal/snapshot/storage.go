// Package snapshot archives pre-migration store files so a user's data can
// be recovered even after a successful swap. Archival is optional and purely
// additive: migration safety never depends on it.
package snapshot

import (
	"context"
	"errors"
)

// Common errors for archive storage operations.
var (
	ErrObjectNotFound = errors.New("archive object not found")
	ErrUploadFailed   = errors.New("archive upload failed")
	ErrDownloadFailed = errors.New("archive download failed")
	ErrDeleteFailed   = errors.New("archive delete failed")
)

// ObjectStorage abstracts the archive backend. Implementations include S3
// and the local filesystem.
type ObjectStorage interface {
	// Upload stores a local file under objectPath.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download retrieves objectPath into localPath.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes an object. Deleting an absent object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists reports whether an object is present.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}
