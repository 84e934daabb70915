// Package mapping resolves the field and entity mapping for one adjacent
// schema version pair. A custom hand-authored mapping resource wins when
// present (the only mechanism for renames, splits and relationship
// retargeting); otherwise a mapping is inferred from structural similarity.
package mapping

import (
	"fmt"

	"github.com/stockroom/stockroom/pkg/types"
)

// AttributeRule populates one destination attribute. An empty Source means
// the attribute is filled with its type default (NULL when optional).
type AttributeRule struct {
	Destination string `yaml:"destination"`
	Source      string `yaml:"source,omitempty"`
}

// RelationshipRule carries one destination relationship's membership over
// from a source relationship. An empty Source leaves the relationship empty.
type RelationshipRule struct {
	Destination string `yaml:"destination"`
	Source      string `yaml:"source,omitempty"`
}

// EntityRule populates one destination entity from at most one source
// entity. A differing Source name is an entity rename: all instances move to
// the new entity type with their pks preserved. An empty Source creates the
// destination entity empty. Merging several sources into one destination is
// not supported; pks are preserved verbatim across a step, so two sources
// feeding one entity could collide.
type EntityRule struct {
	Destination   string             `yaml:"destination"`
	Source        string             `yaml:"source,omitempty"`
	Attributes    []AttributeRule    `yaml:"attributes,omitempty"`
	Relationships []RelationshipRule `yaml:"relationships,omitempty"`
}

// AttributeRule returns the rule for a destination attribute, if authored.
func (e EntityRule) AttributeRule(dest string) (AttributeRule, bool) {
	for _, r := range e.Attributes {
		if r.Destination == dest {
			return r, true
		}
	}
	return AttributeRule{}, false
}

// RelationshipRule returns the rule for a destination relationship, if
// authored.
func (e EntityRule) RelationshipRule(dest string) (RelationshipRule, bool) {
	for _, r := range e.Relationships {
		if r.Destination == dest {
			return r, true
		}
	}
	return RelationshipRule{}, false
}

// Mapping is the full rule set for one adjacent step: exactly one entity
// rule per destination entity. Attributes or relationships a rule leaves
// unmentioned follow the inferred same-name policy.
type Mapping struct {
	FromName string
	ToName   string
	Custom   bool
	Entities []EntityRule
}

// EntityRule returns the rule populating a destination entity.
func (m *Mapping) EntityRule(dest string) (EntityRule, bool) {
	for _, r := range m.Entities {
		if r.Destination == dest {
			return r, true
		}
	}
	return EntityRule{}, false
}

// Infer synthesizes a mapping for an additive-only change: same-named
// entities and attributes (of the same type) map identity, attributes only
// in the destination receive type defaults, attributes only in the source
// are dropped silently.
func Infer(from, to types.Model) *Mapping {
	m := &Mapping{}
	for _, dst := range to.Entities {
		rule := EntityRule{Destination: dst.Name}
		if _, ok := from.Entity(dst.Name); ok {
			rule.Source = dst.Name
		}
		m.Entities = append(m.Entities, rule)
	}
	return m
}

// Complete fills in the unmentioned attributes and relationships of every
// entity rule with the inferred same-name policy, producing a mapping whose
// rules are fully explicit. Every destination entity ends up with a
// resolvable rule or an error is returned.
func (m *Mapping) Complete(from, to types.Model) error {
	byDest := make(map[string]int, len(m.Entities))
	for i, rule := range m.Entities {
		if _, dup := byDest[rule.Destination]; dup {
			return fmt.Errorf("duplicate rule for destination entity %q", rule.Destination)
		}
		byDest[rule.Destination] = i
	}

	var completed []EntityRule
	for _, dst := range to.Entities {
		var rule EntityRule
		if i, ok := byDest[dst.Name]; ok {
			rule = m.Entities[i]
			delete(byDest, dst.Name)
		} else {
			rule = EntityRule{Destination: dst.Name}
			if _, ok := from.Entity(dst.Name); ok {
				rule.Source = dst.Name
			}
		}

		var src types.Entity
		hasSource := rule.Source != ""
		if hasSource {
			var ok bool
			src, ok = from.Entity(rule.Source)
			if !ok {
				return fmt.Errorf("rule for %q names unknown source entity %q", rule.Destination, rule.Source)
			}
		}

		full := EntityRule{Destination: dst.Name, Source: rule.Source}
		for _, attr := range dst.Attributes {
			if authored, ok := rule.AttributeRule(attr.Name); ok {
				if authored.Source != "" {
					srcAttr, ok := src.Attribute(authored.Source)
					if !hasSource || !ok {
						return fmt.Errorf("rule %q.%q names unknown source attribute %q",
							rule.Destination, attr.Name, authored.Source)
					}
					if srcAttr.Type != attr.Type {
						return fmt.Errorf("rule %q.%q copies %s source attribute %q into a %s destination",
							rule.Destination, attr.Name, srcAttr.Type, authored.Source, attr.Type)
					}
				}
				full.Attributes = append(full.Attributes, authored)
				continue
			}
			// Unmentioned attribute: same-name copy when the source has it
			// with the same type, default fill otherwise.
			if hasSource {
				if srcAttr, ok := src.Attribute(attr.Name); ok && srcAttr.Type == attr.Type {
					full.Attributes = append(full.Attributes, AttributeRule{Destination: attr.Name, Source: attr.Name})
					continue
				}
			}
			full.Attributes = append(full.Attributes, AttributeRule{Destination: attr.Name})
		}

		for _, rel := range dst.Relationships {
			if authored, ok := rule.RelationshipRule(rel.Name); ok {
				if authored.Source != "" {
					if _, ok := src.Relationship(authored.Source); !hasSource || !ok {
						return fmt.Errorf("rule %q.%q names unknown source relationship %q",
							rule.Destination, rel.Name, authored.Source)
					}
				}
				full.Relationships = append(full.Relationships, authored)
				continue
			}
			if hasSource {
				if srcRel, ok := src.Relationship(rel.Name); ok && srcRel.ToMany == rel.ToMany {
					full.Relationships = append(full.Relationships, RelationshipRule{Destination: rel.Name, Source: rel.Name})
					continue
				}
			}
			full.Relationships = append(full.Relationships, RelationshipRule{Destination: rel.Name})
		}

		completed = append(completed, full)
	}

	// Any leftover rule names a destination entity the target model lacks.
	for dest := range byDest {
		return fmt.Errorf("rule names unknown destination entity %q", dest)
	}

	m.Entities = completed
	return nil
}
