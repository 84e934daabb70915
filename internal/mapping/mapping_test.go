package mapping

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stockroom/stockroom/internal/errors"
	"github.com/stockroom/stockroom/internal/inventory"
	"github.com/stockroom/stockroom/pkg/types"
)

const baseModel = `
entities:
  - name: Product
    attributes:
      - {name: id, type: int64}
      - {name: title, type: string}
`

const additiveModel = `
entities:
  - name: Product
    attributes:
      - {name: id, type: int64}
      - {name: title, type: string}
      - {name: price, type: float64, optional: true}
      - {name: on_sale, type: bool}
  - name: Inventory
    attributes:
      - {name: quantity, type: int64}
`

const renamedModel = `
entities:
  - name: Item
    attributes:
      - {name: id, type: int64}
      - {name: label, type: string}
  - name: Inventory
    attributes:
      - {name: quantity, type: int64}
  - name: Product
    attributes:
      - {name: id, type: int64}
      - {name: title, type: string}
      - {name: price, type: float64, optional: true}
      - {name: on_sale, type: bool}
`

func loadInventory(t *testing.T) (*inventory.Inventory, string) {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"shop_v1.yaml": baseModel,
		"shop_v2.yaml": additiveModel,
		"shop_v3.yaml": renamedModel,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	inv, err := inventory.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	mappings := filepath.Join(dir, "mappings")
	if err := os.Mkdir(mappings, 0755); err != nil {
		t.Fatal(err)
	}
	return inv, mappings
}

func TestMapping_NotAdjacent(t *testing.T) {
	inv, mappings := loadInventory(t)
	r := NewResolver(inv, mappings)

	_, err := r.Mapping(inv.Version("shop_v1"), inv.Version("shop_v3"))
	if errors.GetCode(err) != errors.CodeNotAdjacent {
		t.Errorf("skipping a version should fail NOT_ADJACENT, got %v", err)
	}
	_, err = r.Mapping(inv.Version("shop_v2"), inv.Version("shop_v1"))
	if errors.GetCode(err) != errors.CodeNotAdjacent {
		t.Errorf("backwards step should fail NOT_ADJACENT, got %v", err)
	}
}

func TestMapping_Inferred(t *testing.T) {
	inv, mappings := loadInventory(t)
	r := NewResolver(inv, mappings)

	m, err := r.Mapping(inv.Version("shop_v1"), inv.Version("shop_v2"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if m.Custom {
		t.Error("no custom resource present, mapping should be inferred")
	}

	product, ok := m.EntityRule("Product")
	if !ok || product.Source != "Product" {
		t.Fatalf("Product rule missing or wrong source: %+v", product)
	}
	if rule, _ := product.AttributeRule("title"); rule.Source != "title" {
		t.Errorf("shared attribute should copy identity, got %+v", rule)
	}
	if rule, _ := product.AttributeRule("price"); rule.Source != "" {
		t.Errorf("new attribute should default-fill, got %+v", rule)
	}

	inventoryRule, ok := m.EntityRule("Inventory")
	if !ok || inventoryRule.Source != "" {
		t.Errorf("new entity should be created empty, got %+v", inventoryRule)
	}
}

func TestMapping_CustomRename(t *testing.T) {
	inv, mappings := loadInventory(t)
	custom := `
entities:
  - destination: Item
    source: Product
    attributes:
      - {destination: id, source: id}
      - {destination: label, source: title}
`
	if err := os.WriteFile(filepath.Join(mappings, "shop_v2__shop_v3.yaml"), []byte(custom), 0644); err != nil {
		t.Fatal(err)
	}
	r := NewResolver(inv, mappings)

	m, err := r.Mapping(inv.Version("shop_v2"), inv.Version("shop_v3"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !m.Custom {
		t.Fatal("custom resource should win over inference")
	}

	item, ok := m.EntityRule("Item")
	if !ok || item.Source != "Product" {
		t.Fatalf("rename rule missing: %+v", item)
	}
	if rule, _ := item.AttributeRule("label"); rule.Source != "title" {
		t.Errorf("attribute rename lost: %+v", rule)
	}

	// Entities the custom resource leaves unmentioned complete by inference.
	if _, ok := m.EntityRule("Inventory"); !ok {
		t.Error("unmentioned destination entity should still get a rule")
	}
	if prod, ok := m.EntityRule("Product"); !ok || prod.Source != "Product" {
		t.Errorf("unmentioned same-named entity should map identity, got %+v", prod)
	}
}

func TestMapping_CustomValidation(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		code   string
	}{
		{"unknown destination entity", `
entities:
  - destination: Ghost
    source: Product
`, errors.CodeUnresolvedEntity},
		{"unknown source entity", `
entities:
  - destination: Item
    source: Phantom
`, errors.CodeUnresolvedEntity},
		{"unknown source attribute", `
entities:
  - destination: Item
    source: Product
    attributes:
      - {destination: label, source: nope}
`, errors.CodeUnresolvedEntity},
		{"mistyped source attribute", `
entities:
  - destination: Item
    source: Product
    attributes:
      - {destination: id, source: title}
`, errors.CodeUnresolvedEntity},
		{"duplicate destination rule", `
entities:
  - destination: Item
    source: Product
  - destination: Item
    source: Product
`, errors.CodeUnresolvedEntity},
		{"malformed yaml", "entities: [", errors.CodeInvalidMapping},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, mappings := loadInventory(t)
			path := filepath.Join(mappings, "shop_v2__shop_v3.yaml")
			if err := os.WriteFile(path, []byte(tt.body), 0644); err != nil {
				t.Fatal(err)
			}
			r := NewResolver(inv, mappings)
			_, err := r.Mapping(inv.Version("shop_v2"), inv.Version("shop_v3"))
			if errors.GetCode(err) != tt.code {
				t.Errorf("got %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestMapping_Cached(t *testing.T) {
	inv, mappings := loadInventory(t)
	path := filepath.Join(mappings, "shop_v1__shop_v2.yaml")
	custom := "entities:\n  - {destination: Product, source: Product}\n"
	if err := os.WriteFile(path, []byte(custom), 0644); err != nil {
		t.Fatal(err)
	}
	r := NewResolver(inv, mappings)

	first, err := r.Mapping(inv.Version("shop_v1"), inv.Version("shop_v2"))
	if err != nil {
		t.Fatal(err)
	}
	if !first.Custom {
		t.Fatal("expected custom mapping")
	}

	// Removing the resource must not matter: the pair is cached.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	second, err := r.Mapping(inv.Version("shop_v1"), inv.Version("shop_v2"))
	if err != nil {
		t.Fatal(err)
	}
	if second != first {
		t.Error("resolver should serve the cached mapping")
	}
}

func TestInfer_TypeChangeDefaults(t *testing.T) {
	from := types.Model{Entities: []types.Entity{{
		Name:       "Product",
		Attributes: []types.Attribute{{Name: "id", Type: types.AttrInt64}, {Name: "code", Type: types.AttrString}},
	}}}
	to := types.Model{Entities: []types.Entity{{
		Name:       "Product",
		Attributes: []types.Attribute{{Name: "id", Type: types.AttrInt64}, {Name: "code", Type: types.AttrInt64}},
	}}}

	m := Infer(from, to)
	if err := m.Complete(from, to); err != nil {
		t.Fatal(err)
	}
	rule, _ := m.EntityRule("Product")
	if attr, _ := rule.AttributeRule("code"); attr.Source != "" {
		t.Errorf("same-named attribute with changed type should default-fill, got %+v", attr)
	}
	if attr, _ := rule.AttributeRule("id"); attr.Source != "id" {
		t.Errorf("unchanged attribute should copy, got %+v", attr)
	}
}
