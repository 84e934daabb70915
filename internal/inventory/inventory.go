// Package inventory discovers, parses and indexes the schema version
// resources bundled with the application. Versions are totally ordered by a
// lexical-then-numeric filename convention and matched against persisted
// stores by structural comparison, never by a stored name.
package inventory

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stockroom/stockroom/internal/errors"
	"github.com/stockroom/stockroom/pkg/types"
)

// Version is one loaded schema definition: an ordering key derived from the
// resource name plus the parsed entity descriptors. Immutable once loaded.
type Version struct {
	// Name is the resource name without extension, e.g. "catalog_v31".
	Name string
	// Base is the resource family name, e.g. "catalog".
	Base string
	// Key is the numeric ordering key, e.g. 31.
	Key int
	// Model is the parsed schema definition.
	Model types.Model

	fingerprint string
}

// Fingerprint returns the structural fingerprint of the version's model.
func (v *Version) Fingerprint() string {
	return v.fingerprint
}

// Inventory is the ordered set of schema versions known to this build.
// Construct one per process (or per test fixture) and inject it; it is never
// a package global.
type Inventory struct {
	versions []*Version
	byName   map[string]*Version
	index    map[string]int
}

// versionFilePattern matches "<base>_v<key>" resource stems.
var versionFilePattern = regexp.MustCompile(`^(.+)_v(\d+)$`)

// Load reads every schema version resource (*.yaml, *.yml) in dir.
// It fails when the directory holds no parsable versions, when an ordering
// key is duplicated or unparsable, or when any model fails validation.
func Load(dir string) (*Inventory, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.NewInventoryError(errors.CodeNoVersionsFound,
			fmt.Sprintf("cannot read model directory %s", dir), err)
	}

	inv := &Inventory{
		byName: make(map[string]*Version),
		index:  make(map[string]int),
	}
	// Keys are unique within a version family; distinct families may reuse
	// the same numeric key.
	type familyKey struct {
		base string
		key  int
	}
	seenKeys := make(map[familyKey]string)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))

		m := versionFilePattern.FindStringSubmatch(stem)
		if m == nil {
			return nil, errors.NewInventoryError(errors.CodeDuplicateOrderingKey,
				fmt.Sprintf("model resource %s has no parsable ordering key", name), nil)
		}
		key, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, errors.NewInventoryError(errors.CodeDuplicateOrderingKey,
				fmt.Sprintf("model resource %s has unparsable ordering key %q", name, m[2]), err)
		}
		if prev, dup := seenKeys[familyKey{m[1], key}]; dup {
			return nil, errors.NewInventoryError(errors.CodeDuplicateOrderingKey,
				fmt.Sprintf("model resources %s and %s share ordering key %d", prev, name, key), nil)
		}
		seenKeys[familyKey{m[1], key}] = name

		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, errors.NewInventoryError(errors.CodeInvalidModel,
				fmt.Sprintf("cannot read model resource %s", name), err)
		}
		var model types.Model
		if err := yaml.Unmarshal(raw, &model); err != nil {
			return nil, errors.NewInventoryError(errors.CodeInvalidModel,
				fmt.Sprintf("model resource %s is not valid YAML", name), err)
		}
		if err := model.Validate(); err != nil {
			return nil, errors.NewInventoryError(errors.CodeInvalidModel,
				fmt.Sprintf("model resource %s failed validation", name), err)
		}

		inv.versions = append(inv.versions, &Version{
			Name:        stem,
			Base:        m[1],
			Key:         key,
			Model:       model,
			fingerprint: types.ModelFingerprint(model),
		})
	}

	if len(inv.versions) == 0 {
		return nil, errors.NewInventoryError(errors.CodeNoVersionsFound,
			fmt.Sprintf("no schema version resources in %s", dir), nil)
	}

	sort.Slice(inv.versions, func(i, j int) bool {
		a, b := inv.versions[i], inv.versions[j]
		if a.Base != b.Base {
			return a.Base < b.Base
		}
		return a.Key < b.Key
	})
	for i, v := range inv.versions {
		inv.byName[v.Name] = v
		inv.index[v.Name] = i
	}

	return inv, nil
}

// Versions returns all loaded versions in order.
func (inv *Inventory) Versions() []*Version {
	out := make([]*Version, len(inv.versions))
	copy(out, inv.versions)
	return out
}

// Version returns the version with the exact resource name, or nil.
func (inv *Inventory) Version(name string) *Version {
	return inv.byName[name]
}

// Latest returns the newest version known to this inventory.
func (inv *Inventory) Latest() *Version {
	return inv.versions[len(inv.versions)-1]
}

// Successor returns the version immediately after v in the total order, or
// nil when v is the latest or unknown.
func (inv *Inventory) Successor(v *Version) *Version {
	i, ok := inv.index[v.Name]
	if !ok || i+1 >= len(inv.versions) {
		return nil
	}
	return inv.versions[i+1]
}

// Compare orders two known versions: negative when a precedes b.
func (inv *Inventory) Compare(a, b *Version) int {
	return inv.index[a.Name] - inv.index[b.Name]
}

// Path returns the consecutive versions after from, up to and including to.
// The inventory is linear, so this is a slice, not a graph search. An empty
// path means from == to.
func (inv *Inventory) Path(from, to *Version) ([]*Version, error) {
	i, ok := inv.index[from.Name]
	if !ok {
		return nil, fmt.Errorf("inventory: unknown version %q", from.Name)
	}
	j, ok := inv.index[to.Name]
	if !ok {
		return nil, fmt.Errorf("inventory: unknown version %q", to.Name)
	}
	if j < i {
		return nil, fmt.Errorf("inventory: %q precedes %q", to.Name, from.Name)
	}
	return inv.versions[i+1 : j+1], nil
}

// CurrentVersion matches a store's structural snapshot against the loaded
// versions, fingerprint first with a deep structural comparison behind it.
// Returns nil when no known version is structurally compatible.
func (inv *Inventory) CurrentVersion(snapshot types.Model) *Version {
	fp := types.ModelFingerprint(snapshot)
	for _, v := range inv.versions {
		if v.fingerprint == fp && types.StructurallyEqual(v.Model, snapshot) {
			return v
		}
	}
	return nil
}
