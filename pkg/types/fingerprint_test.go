package types

import "testing"

func TestFingerprint_OrderInsensitive(t *testing.T) {
	a := validModel()

	b := validModel()
	// Reverse attribute declaration order on Product.
	attrs := b.Entities[0].Attributes
	for i, j := 0, len(attrs)-1; i < j; i, j = i+1, j-1 {
		attrs[i], attrs[j] = attrs[j], attrs[i]
	}
	// Reverse entity declaration order.
	b.Entities[0], b.Entities[1] = b.Entities[1], b.Entities[0]

	if ModelFingerprint(a) != ModelFingerprint(b) {
		t.Error("fingerprint should not depend on declaration order")
	}
	if !StructurallyEqual(a, b) {
		t.Error("reordered models should be structurally equal")
	}
}

func TestFingerprint_SensitiveToStructure(t *testing.T) {
	base := validModel()
	baseFP := ModelFingerprint(base)

	tests := []struct {
		name   string
		mutate func(*Model)
	}{
		{"entity rename", func(m *Model) { m.Entities[0].Name = "Item" }},
		{"attribute rename", func(m *Model) { m.Entities[0].Attributes[1].Name = "label" }},
		{"attribute type change", func(m *Model) { m.Entities[0].Attributes[1].Type = AttrBlob }},
		{"optionality flip", func(m *Model) { m.Entities[0].Attributes[2].Optional = false }},
		{"added attribute", func(m *Model) {
			m.Entities[1].Attributes = append(m.Entities[1].Attributes, Attribute{Name: "stock", Type: AttrInt64})
		}},
		{"relationship retarget", func(m *Model) { m.Entities[0].Relationships[0].Target = "Product" }},
		{"cardinality change", func(m *Model) { m.Entities[0].Relationships[0].ToMany = false }},
		{"ordering change", func(m *Model) { m.Entities[0].Relationships[0].Ordered = false }},
		{"delete rule change", func(m *Model) { m.Entities[0].Relationships[0].DeleteRule = DeleteNullify }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validModel()
			tt.mutate(&m)
			if ModelFingerprint(m) == baseFP {
				t.Error("fingerprint unchanged after structural change")
			}
			if StructurallyEqual(base, m) {
				t.Error("structurally different models reported equal")
			}
		})
	}
}

func TestFingerprint_DefaultDeleteRuleIsNullify(t *testing.T) {
	a := validModel()
	b := validModel()
	a.Entities[0].Relationships[0].DeleteRule = ""
	b.Entities[0].Relationships[0].DeleteRule = DeleteNullify
	if ModelFingerprint(a) != ModelFingerprint(b) {
		t.Error("empty delete rule should fingerprint as nullify")
	}
	if !StructurallyEqual(a, b) {
		t.Error("empty delete rule should compare as nullify")
	}
}

func TestStructurallyEqual_ComparesDescriptors(t *testing.T) {
	// Same entity count and same attribute/relationship counts per entity,
	// differing only in one field deep inside a descriptor. The comparison
	// must walk the descriptors themselves to catch it.
	a := validModel()
	b := validModel()
	b.Entities[1].Attributes[0].Optional = !b.Entities[1].Attributes[0].Optional
	if StructurallyEqual(a, b) {
		t.Error("optionality change should break structural equality")
	}

	c := validModel()
	c.Entities[0], c.Entities[1] = c.Entities[1], c.Entities[0]
	if !StructurallyEqual(a, c) {
		t.Error("entity order must not affect structural equality")
	}
}

func TestEntityFingerprints(t *testing.T) {
	m := validModel()
	fps := EntityFingerprints(m)
	if len(fps) != 2 {
		t.Fatalf("expected 2 entity fingerprints, got %d", len(fps))
	}
	if fps["Product"] == fps["ProductVariation"] {
		t.Error("distinct entities must not share a fingerprint")
	}
	if fps["Product"] != EntityFingerprint(m.Entities[0]) {
		t.Error("map fingerprint disagrees with direct fingerprint")
	}
}
