// Package compat decides whether a persisted store's structural metadata is
// usable with a given schema version. Compatibility is a pairwise structural
// match and is never inferred from version ordering: two versions descended
// from a common ancestor (say a shipped production schema and a diverged
// develop-only schema) are mutually incompatible even though both are
// reachable from the same base.
package compat

import (
	"github.com/stockroom/stockroom/internal/store"
	"github.com/stockroom/stockroom/pkg/types"
)

// IsCompatible reports whether a store written with the given metadata can
// be opened against model without migration. The store must carry every
// entity the model expects, with identical attributes and relationships;
// fingerprints give the fast path, a deep comparison confirms.
func IsCompatible(meta *store.Meta, model types.Model) bool {
	if meta == nil {
		return false
	}
	if meta.Fingerprint == types.ModelFingerprint(model) {
		return types.StructurallyEqual(meta.Snapshot, model)
	}
	return false
}

// RequiresMigration reports whether a store must be migrated before it can
// be used with the target model. False only when the store is already
// compatible.
func RequiresMigration(meta *store.Meta, target types.Model) bool {
	return !IsCompatible(meta, target)
}
