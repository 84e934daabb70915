// Package types provides the schema model types shared across Stockroom.
package types

import "fmt"

// AttributeType is the semantic type of an entity attribute.
type AttributeType string

const (
	AttrString  AttributeType = "string"
	AttrInt64   AttributeType = "int64"
	AttrFloat64 AttributeType = "float64"
	AttrBool    AttributeType = "bool"
	AttrBlob    AttributeType = "blob"
	AttrDate    AttributeType = "date" // Unix seconds
)

// Valid reports whether t is a known attribute type.
func (t AttributeType) Valid() bool {
	switch t {
	case AttrString, AttrInt64, AttrFloat64, AttrBool, AttrBlob, AttrDate:
		return true
	}
	return false
}

// SQLiteType returns the SQLite column type used to persist values of t.
func (t AttributeType) SQLiteType() string {
	switch t {
	case AttrString:
		return "TEXT"
	case AttrFloat64:
		return "REAL"
	case AttrBlob:
		return "BLOB"
	default:
		// int64, bool and date are all stored as INTEGER
		return "INTEGER"
	}
}

// DefaultValue returns the documented default for a newly added attribute of
// type t: string→"", int64→0, float64→0, bool→false, blob→empty, date→0.
// Optional attributes default to NULL instead (handled by the caller).
func (t AttributeType) DefaultValue() interface{} {
	switch t {
	case AttrString:
		return ""
	case AttrFloat64:
		return float64(0)
	case AttrBool:
		return false
	case AttrBlob:
		return []byte{}
	default:
		return int64(0)
	}
}

// DeleteRule describes what happens to relationship targets when the owning
// instance is deleted.
type DeleteRule string

const (
	DeleteNullify DeleteRule = "nullify"
	DeleteCascade DeleteRule = "cascade"
)

// Attribute is a single named, typed attribute of an entity.
type Attribute struct {
	Name     string        `json:"name" yaml:"name"`
	Type     AttributeType `json:"type" yaml:"type"`
	Optional bool          `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// Relationship describes a directed link from one entity to another.
type Relationship struct {
	Name       string     `json:"name" yaml:"name"`
	Target     string     `json:"target" yaml:"target"`
	ToMany     bool       `json:"to_many,omitempty" yaml:"to_many,omitempty"`
	Ordered    bool       `json:"ordered,omitempty" yaml:"ordered,omitempty"`
	DeleteRule DeleteRule `json:"delete_rule,omitempty" yaml:"delete_rule,omitempty"`
}

// Entity describes one entity of a schema model: its attributes in declared
// order and its relationships. Entities are immutable once loaded.
type Entity struct {
	Name          string         `json:"name" yaml:"name"`
	Attributes    []Attribute    `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty" yaml:"relationships,omitempty"`
}

// Attribute returns the attribute with the given name, if present.
func (e Entity) Attribute(name string) (Attribute, bool) {
	for _, a := range e.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// Relationship returns the relationship with the given name, if present.
func (e Entity) Relationship(name string) (Relationship, bool) {
	for _, r := range e.Relationships {
		if r.Name == name {
			return r, true
		}
	}
	return Relationship{}, false
}

// Model is a parsed schema definition: the full set of entity descriptors a
// persisted store can conform to.
type Model struct {
	Entities []Entity `json:"entities" yaml:"entities"`
}

// Entity returns the entity descriptor with the given name, if present.
func (m Model) Entity(name string) (Entity, bool) {
	for _, e := range m.Entities {
		if e.Name == name {
			return e, true
		}
	}
	return Entity{}, false
}

// Validate checks the model for duplicate or invalid identifiers, unknown
// attribute types and dangling relationship targets.
func (m Model) Validate() error {
	if len(m.Entities) == 0 {
		return fmt.Errorf("model has no entities")
	}

	names := make(map[string]bool, len(m.Entities))
	for _, e := range m.Entities {
		if !ValidIdentifier(e.Name) {
			return fmt.Errorf("invalid entity name %q", e.Name)
		}
		if names[e.Name] {
			return fmt.Errorf("duplicate entity %q", e.Name)
		}
		names[e.Name] = true

		attrs := make(map[string]bool, len(e.Attributes))
		for _, a := range e.Attributes {
			if !ValidIdentifier(a.Name) {
				return fmt.Errorf("entity %q: invalid attribute name %q", e.Name, a.Name)
			}
			if attrs[a.Name] {
				return fmt.Errorf("entity %q: duplicate attribute %q", e.Name, a.Name)
			}
			attrs[a.Name] = true
			if !a.Type.Valid() {
				return fmt.Errorf("entity %q: attribute %q has unknown type %q", e.Name, a.Name, a.Type)
			}
		}

		rels := make(map[string]bool, len(e.Relationships))
		for _, r := range e.Relationships {
			if !ValidIdentifier(r.Name) {
				return fmt.Errorf("entity %q: invalid relationship name %q", e.Name, r.Name)
			}
			if rels[r.Name] || attrs[r.Name] {
				return fmt.Errorf("entity %q: duplicate relationship %q", e.Name, r.Name)
			}
			rels[r.Name] = true
			switch r.DeleteRule {
			case "", DeleteNullify, DeleteCascade:
			default:
				return fmt.Errorf("entity %q: relationship %q has unknown delete rule %q", e.Name, r.Name, r.DeleteRule)
			}
		}
	}

	// Relationship targets must resolve within the same model.
	for _, e := range m.Entities {
		for _, r := range e.Relationships {
			if !names[r.Target] {
				return fmt.Errorf("entity %q: relationship %q targets unknown entity %q", e.Name, r.Name, r.Target)
			}
		}
	}

	return nil
}

// ValidIdentifier checks whether a name is usable as a SQLite table or
// column identifier.
func ValidIdentifier(name string) bool {
	if len(name) == 0 || len(name) > 100 {
		return false
	}
	first := name[0]
	if (first < 'a' || first > 'z') && (first < 'A' || first > 'Z') && first != '_' {
		return false
	}
	for i := 1; i < len(name); i++ {
		c := name[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (c < '0' || c > '9') && c != '_' {
			return false
		}
	}
	return true
}
