package types

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/spaolacci/murmur3"
)

// Structural fingerprints identify an entity or model by shape alone, never
// by a human version name. Persisted stores record fingerprints in their
// metadata; the inventory matches them back to loaded versions.
//
// The canonical encoding sorts attributes and relationships by name, so the
// fingerprint is insensitive to declaration order but sensitive to any change
// in names, types, optionality, targets, cardinality, ordering or delete
// rules.

// EntityFingerprint returns the murmur3-128 fingerprint of a single entity
// descriptor as a fixed-width hex string.
func EntityFingerprint(e Entity) string {
	h1, h2 := murmur3.Sum128(canonicalEntity(e))
	return fmt.Sprintf("%016x%016x", h1, h2)
}

// ModelFingerprint returns the murmur3-128 fingerprint of a whole model.
// Entities contribute in name order.
func ModelFingerprint(m Model) string {
	entities := make([]Entity, len(m.Entities))
	copy(entities, m.Entities)
	sort.Slice(entities, func(i, j int) bool { return entities[i].Name < entities[j].Name })

	var buf []byte
	for _, e := range entities {
		buf = append(buf, canonicalEntity(e)...)
		buf = append(buf, 0x1e)
	}
	h1, h2 := murmur3.Sum128(buf)
	return fmt.Sprintf("%016x%016x", h1, h2)
}

// EntityFingerprints returns the per-entity fingerprints of a model keyed by
// entity name.
func EntityFingerprints(m Model) map[string]string {
	out := make(map[string]string, len(m.Entities))
	for _, e := range m.Entities {
		out[e.Name] = EntityFingerprint(e)
	}
	return out
}

// StructurallyEqual reports whether two models describe the same structure,
// ignoring declaration order of entities, attributes and relationships. This
// is a field-wise descriptor comparison, independent of the fingerprint:
// callers use the fingerprint as a fast path and this as the confirmation, so
// a hash collision can never match a store to the wrong model.
func StructurallyEqual(a, b Model) bool {
	if len(a.Entities) != len(b.Entities) {
		return false
	}
	for _, ea := range a.Entities {
		eb, ok := b.Entity(ea.Name)
		if !ok || !entitiesEqual(ea, eb) {
			return false
		}
	}
	return true
}

func entitiesEqual(a, b Entity) bool {
	if len(a.Attributes) != len(b.Attributes) || len(a.Relationships) != len(b.Relationships) {
		return false
	}
	for _, aa := range a.Attributes {
		ab, ok := b.Attribute(aa.Name)
		if !ok || ab.Type != aa.Type || ab.Optional != aa.Optional {
			return false
		}
	}
	for _, ra := range a.Relationships {
		rb, ok := b.Relationship(ra.Name)
		if !ok || rb.Target != ra.Target || rb.ToMany != ra.ToMany || rb.Ordered != ra.Ordered {
			return false
		}
		if normalizeDeleteRule(rb.DeleteRule) != normalizeDeleteRule(ra.DeleteRule) {
			return false
		}
	}
	return true
}

func canonicalEntity(e Entity) []byte {
	attrs := make([]Attribute, len(e.Attributes))
	copy(attrs, e.Attributes)
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Name < attrs[j].Name })

	rels := make([]Relationship, len(e.Relationships))
	copy(rels, e.Relationships)
	sort.Slice(rels, func(i, j int) bool { return rels[i].Name < rels[j].Name })

	var buf []byte
	buf = appendField(buf, "E", e.Name)
	for _, a := range attrs {
		buf = appendField(buf, "A", a.Name)
		buf = appendField(buf, "t", string(a.Type))
		buf = appendBool(buf, a.Optional)
	}
	for _, r := range rels {
		buf = appendField(buf, "R", r.Name)
		buf = appendField(buf, "g", r.Target)
		buf = appendBool(buf, r.ToMany)
		buf = appendBool(buf, r.Ordered)
		buf = appendField(buf, "d", string(normalizeDeleteRule(r.DeleteRule)))
	}
	return buf
}

// appendField writes a tag byte, a length prefix and the value, keeping the
// encoding unambiguous under concatenation.
func appendField(buf []byte, tag, value string) []byte {
	buf = append(buf, tag...)
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(value)))
	buf = append(buf, l[:]...)
	return append(buf, value...)
}

func appendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func normalizeDeleteRule(r DeleteRule) DeleteRule {
	if r == "" {
		return DeleteNullify
	}
	return r
}
