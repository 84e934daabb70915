package mapping

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/stockroom/stockroom/internal/errors"
	"github.com/stockroom/stockroom/internal/inventory"
)

// Resolver produces the mapping for adjacent version pairs. Custom mapping
// resources are looked up as "<fromName>__<toName>.yaml" in the mappings
// directory and cached per pair for the resolver's lifetime. Resolution is
// pure over the schema descriptors.
type Resolver struct {
	inv *inventory.Inventory
	dir string

	mu    sync.Mutex
	cache map[string]*Mapping
}

// NewResolver creates a resolver over an inventory. dir is the directory
// holding custom mapping resources; empty disables custom lookups.
func NewResolver(inv *inventory.Inventory, dir string) *Resolver {
	return &Resolver{
		inv:   inv,
		dir:   dir,
		cache: make(map[string]*Mapping),
	}
}

// customResource is the on-disk shape of a hand-authored mapping.
type customResource struct {
	Entities []EntityRule `yaml:"entities"`
}

// Mapping returns the completed mapping for the step from → to. to must be
// the immediate successor of from in the inventory's order.
func (r *Resolver) Mapping(from, to *inventory.Version) (*Mapping, error) {
	succ := r.inv.Successor(from)
	if succ == nil || succ.Name != to.Name {
		return nil, errors.NewMappingError(errors.CodeNotAdjacent,
			fmt.Sprintf("%s is not the immediate successor of %s", to.Name, from.Name))
	}

	key := from.Name + "\x00" + to.Name
	r.mu.Lock()
	if cached, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	m, err := r.resolve(from, to)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[key] = m
	r.mu.Unlock()
	return m, nil
}

func (r *Resolver) resolve(from, to *inventory.Version) (*Mapping, error) {
	var m *Mapping

	path := r.customPath(from.Name, to.Name)
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			var res customResource
			if err := yaml.Unmarshal(raw, &res); err != nil {
				return nil, errors.NewMappingError(errors.CodeInvalidMapping,
					fmt.Sprintf("custom mapping %s is not valid YAML: %v", filepath.Base(path), err))
			}
			m = &Mapping{Custom: true, Entities: res.Entities}
			log.Printf("mapping: using custom mapping %s", filepath.Base(path))
		case os.IsNotExist(err):
			// fall through to inference
		default:
			return nil, errors.NewMappingError(errors.CodeInvalidMapping,
				fmt.Sprintf("cannot read custom mapping %s: %v", filepath.Base(path), err))
		}
	}

	if m == nil {
		m = Infer(from.Model, to.Model)
	}
	m.FromName = from.Name
	m.ToName = to.Name

	// Unknown names are rejected here, at resolution time, never at point
	// of use inside a step.
	if err := m.Complete(from.Model, to.Model); err != nil {
		return nil, errors.NewMappingError(errors.CodeUnresolvedEntity,
			fmt.Sprintf("mapping %s -> %s: %v", from.Name, to.Name, err))
	}
	return m, nil
}

func (r *Resolver) customPath(fromName, toName string) string {
	if r.dir == "" {
		return ""
	}
	return filepath.Join(r.dir, fromName+"__"+toName+".yaml")
}
