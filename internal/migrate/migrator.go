// Package migrate performs iterative store migrations: a store file is
// carried from its current schema version to a target version through every
// intermediate version, one adjacent step at a time. Each step writes a
// fresh temp store; the original file is replaced only by the final atomic
// rename, so a failure at any step leaves it untouched.
package migrate

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/stockroom/stockroom/internal/errors"
	"github.com/stockroom/stockroom/internal/inventory"
	"github.com/stockroom/stockroom/internal/mapping"
	"github.com/stockroom/stockroom/internal/snapshot"
	"github.com/stockroom/stockroom/internal/store"
)

// Migrator drives a store file along the inventory's version order.
type Migrator struct {
	inv      *inventory.Inventory
	resolver *mapping.Resolver
	archiver *snapshot.Archiver // nil disables pre-migration snapshots
}

// New creates a migrator. archiver may be nil, in which case no
// pre-migration snapshot is taken.
func New(inv *inventory.Inventory, resolver *mapping.Resolver, archiver *snapshot.Archiver) *Migrator {
	return &Migrator{inv: inv, resolver: resolver, archiver: archiver}
}

// Result describes one migration run.
type Result struct {
	// RunID correlates log lines of a single run.
	RunID string
	// From and To are the resource names of the detected and target versions.
	From, To string
	// Applied is the number of adjacent steps that completed. On failure it
	// counts the steps that finished before the failing one.
	Applied int
	// Steps holds the version names reached by each completed step, in order.
	Steps []string
	// NoOp is true when the store already conformed to the target; the file
	// is byte-identical to its pre-call state.
	NoOp bool
	// SnapshotPath is the object path of the pre-migration snapshot, empty
	// when archival is disabled or was skipped.
	SnapshotPath string
}

// Migrate carries the store at storePath to targetName, or to the latest
// known version when targetName is empty. The store file is either fully
// migrated or untouched; there is no partially migrated state.
func (m *Migrator) Migrate(ctx context.Context, storePath, targetName string) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}

	target := m.inv.Latest()
	if targetName != "" {
		target = m.inv.Version(targetName)
		if target == nil {
			return res, errors.NewMigrationError(errors.CodeUnknownTargetVersion,
				fmt.Sprintf("no schema version named %q", targetName), nil)
		}
	}
	res.To = target.Name

	lock, err := acquireLock(storePath)
	if err != nil {
		return res, err
	}
	defer lock.release()

	meta, err := store.ReadMetaAtPath(ctx, storePath)
	if err != nil {
		return res, err
	}

	current := m.inv.CurrentVersion(meta.Snapshot)
	if current == nil {
		return res, errors.NewMigrationError(errors.CodeUnknownSourceVersion,
			fmt.Sprintf("store %s matches no known schema version", storePath), nil)
	}
	res.From = current.Name

	if current.Base != target.Base {
		return res, errors.NewMigrationError(errors.CodeUnknownTargetVersion,
			fmt.Sprintf("target %s is not in the %s version family", target.Name, current.Base), nil)
	}

	switch cmp := m.inv.Compare(current, target); {
	case cmp == 0:
		log.Printf("migrate: run %s: store %s already at %s", res.RunID, storePath, target.Name)
		res.NoOp = true
		return res, nil
	case cmp > 0:
		return res, errors.NewMigrationError(errors.CodeDowngradeUnsupported,
			fmt.Sprintf("store is at %s, newer than target %s", current.Name, target.Name), nil)
	}

	path, err := m.inv.Path(current, target)
	if err != nil {
		return res, errors.NewInternalError("version path computation failed", err)
	}

	// Fold any pending write-ahead log into the main file before it is read
	// as the first step's source. Committed rows a WAL-mode writer left in
	// the -wal sidecar would otherwise be lost at the final swap.
	if err := store.CheckpointWAL(ctx, storePath); err != nil {
		return res, err
	}

	log.Printf("migrate: run %s: %s -> %s, %d step(s)", res.RunID, current.Name, target.Name, len(path))

	var temps []string
	discard := func() {
		for _, t := range temps {
			os.Remove(t)
		}
	}

	srcPath := storePath
	from := current
	for _, step := range path {
		mp, err := m.resolver.Mapping(from, step)
		if err != nil {
			discard()
			return res, err
		}

		tmpPath, err := applyStep(ctx, srcPath, mp, from.Model, step.Model)
		if err != nil {
			discard()
			return res, errors.NewMigrationError(errors.CodeStepFailed,
				fmt.Sprintf("step %s -> %s failed", from.Name, step.Name), err)
		}
		log.Printf("migrate: run %s: applied %s -> %s", res.RunID, from.Name, step.Name)

		temps = append(temps, tmpPath)
		srcPath = tmpPath
		from = step
		res.Applied++
		res.Steps = append(res.Steps, step.Name)
	}

	// Snapshot the original before the swap. Archival is additive; its
	// failure never blocks a migration that already produced a valid result.
	if m.archiver != nil {
		snapPath, err := m.archiver.Archive(ctx, storePath, current.Name)
		if err != nil {
			log.Printf("migrate: run %s: snapshot failed, continuing: %v", res.RunID, err)
		} else {
			res.SnapshotPath = snapPath
		}
	}

	if err := m.swap(srcPath, storePath); err != nil {
		discard()
		return res, err
	}
	for _, t := range temps[:len(temps)-1] {
		os.Remove(t)
	}

	log.Printf("migrate: run %s: store %s now at %s", res.RunID, storePath, target.Name)
	return res, nil
}

// swap replaces the store file with the final step output. The old store's
// sidecar files were checkpointed empty before the first step ran; they are
// removed here so the renamed file cannot pick up another database's
// write-ahead log.
func (m *Migrator) swap(finalPath, storePath string) error {
	for _, sc := range store.SidecarPaths(storePath) {
		if err := os.Remove(sc); err != nil && !os.IsNotExist(err) {
			return errors.NewMigrationError(errors.CodeSwapFailed,
				fmt.Sprintf("cannot remove stale sidecar %s", sc), err)
		}
	}
	if err := os.Rename(finalPath, storePath); err != nil {
		return errors.NewMigrationError(errors.CodeSwapFailed,
			fmt.Sprintf("cannot swap migrated store into %s", storePath), err)
	}
	return nil
}
