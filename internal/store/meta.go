package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/snappy"

	"github.com/stockroom/stockroom/internal/errors"
	"github.com/stockroom/stockroom/pkg/types"
)

// ReadMeta reads the structural metadata row.
func (s *Store) ReadMeta(ctx context.Context) (*Meta, error) {
	var fingerprint string
	var compressed []byte
	var writtenAt int64

	err := s.db.QueryRowContext(ctx,
		"SELECT fingerprint, snapshot, written_at FROM store_meta WHERE id = 1",
	).Scan(&fingerprint, &compressed, &writtenAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewStoreError(errors.CodeMetaMissing,
				fmt.Sprintf("store %s has no metadata row", s.path), nil)
		}
		return nil, errors.NewStoreError(errors.CodeMetaMissing,
			fmt.Sprintf("failed to read metadata of %s", s.path), err)
	}

	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, errors.NewStoreError(errors.CodeMetaCorrupted,
			fmt.Sprintf("metadata snapshot of %s is not valid snappy", s.path), err)
	}

	var snapshot types.Model
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, errors.NewStoreError(errors.CodeMetaCorrupted,
			fmt.Sprintf("metadata snapshot of %s is not valid JSON", s.path), err)
	}

	// The fingerprint must match the snapshot it claims to describe.
	if types.ModelFingerprint(snapshot) != fingerprint {
		return nil, errors.NewStoreError(errors.CodeMetaCorrupted,
			fmt.Sprintf("metadata fingerprint of %s does not match its snapshot", s.path), nil)
	}

	return &Meta{
		Fingerprint: fingerprint,
		Snapshot:    snapshot,
		WrittenAt:   time.Unix(writtenAt, 0),
	}, nil
}

// WriteMeta stamps the store with the structural metadata of model.
func (s *Store) WriteMeta(ctx context.Context, model types.Model) error {
	raw, err := json.Marshal(model)
	if err != nil {
		return fmt.Errorf("store: failed to marshal metadata snapshot: %w", err)
	}
	compressed := snappy.Encode(nil, raw)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO store_meta (id, fingerprint, snapshot, written_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET fingerprint = excluded.fingerprint,
		                               snapshot = excluded.snapshot,
		                               written_at = excluded.written_at`,
		types.ModelFingerprint(model), compressed, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("store: failed to write metadata: %w", err)
	}
	s.model = model
	return nil
}
