package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stockroom/stockroom/pkg/types"
)

func testModel() types.Model {
	return types.Model{
		Entities: []types.Entity{
			{
				Name: "Product",
				Attributes: []types.Attribute{
					{Name: "id", Type: types.AttrInt64},
					{Name: "title", Type: types.AttrString},
					{Name: "price", Type: types.AttrFloat64, Optional: true},
					{Name: "on_sale", Type: types.AttrBool},
				},
				Relationships: []types.Relationship{
					{Name: "variations", Target: "ProductVariation", ToMany: true, Ordered: true, DeleteRule: types.DeleteCascade},
					{Name: "featured_variation", Target: "ProductVariation"},
				},
			},
			{
				Name: "ProductVariation",
				Attributes: []types.Attribute{
					{Name: "id", Type: types.AttrInt64},
					{Name: "sku", Type: types.AttrString, Optional: true},
				},
			},
		},
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Create(path, testModel())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndReopen(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	path := s.Path()

	meta, err := s.ReadMeta(ctx)
	if err != nil {
		t.Fatalf("failed to read metadata: %v", err)
	}
	if meta.Fingerprint != types.ModelFingerprint(testModel()) {
		t.Error("fingerprint mismatch after create")
	}
	if !types.StructurallyEqual(meta.Snapshot, testModel()) {
		t.Error("snapshot mismatch after create")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer reopened.Close()
	if !types.StructurallyEqual(reopened.Model(), testModel()) {
		t.Error("model not restored from metadata on reopen")
	}
}

func TestOpenReadOnly_DoesNotTouchFile(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	path := s.Path()
	s.Close()

	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	ro, err := OpenReadOnly(path)
	if err != nil {
		t.Fatalf("failed to open read-only: %v", err)
	}
	if _, err := ro.ReadMeta(ctx); err != nil {
		t.Fatalf("read meta: %v", err)
	}
	ro.Close()

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("read-only open modified the store file")
	}
}

func TestInsertAndReadRows(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	pk, err := s.InsertRow(ctx, "Product", Row{
		"id":      int64(42),
		"title":   "Garden Hose",
		"price":   12.5,
		"on_sale": true,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	row, found, err := s.ReadRow(ctx, "Product", pk)
	if err != nil || !found {
		t.Fatalf("read row: found=%v err=%v", found, err)
	}
	if row["id"] != int64(42) || row["title"] != "Garden Hose" || row["price"] != 12.5 || row["on_sale"] != true {
		t.Errorf("row values mismatch: %#v", row)
	}

	// NULL optional attribute stays absent.
	pk2, err := s.InsertRow(ctx, "Product", Row{"id": int64(43), "title": "Rake", "on_sale": false})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	row2, _, err := s.ReadRow(ctx, "Product", pk2)
	if err != nil {
		t.Fatal(err)
	}
	if _, present := row2["price"]; present {
		t.Error("absent optional attribute should not appear in row")
	}

	n, err := s.CountRows(ctx, "Product")
	if err != nil || n != 2 {
		t.Errorf("count = %d (err %v), want 2", n, err)
	}

	if err := s.InsertRowWithPK(ctx, "ProductVariation", 9001, Row{"id": int64(1)}); err != nil {
		t.Fatalf("insert with pk: %v", err)
	}
	if _, found, _ := s.ReadRow(ctx, "ProductVariation", 9001); !found {
		t.Error("explicit-pk row not found")
	}
}

func TestInsertRow_RejectsUnknownNames(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.InsertRow(ctx, "Order", Row{}); err == nil {
		t.Error("unknown entity should be rejected")
	}
	if _, err := s.InsertRow(ctx, "Product", Row{"colour": "red"}); err == nil {
		t.Error("unknown attribute should be rejected")
	}
}

func TestRelationships(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p, err := s.InsertRow(ctx, "Product", Row{"id": int64(1), "title": "Shirt", "on_sale": false})
	if err != nil {
		t.Fatal(err)
	}
	var vars []int64
	for i := 0; i < 3; i++ {
		v, err := s.InsertRow(ctx, "ProductVariation", Row{"id": int64(100 + i)})
		if err != nil {
			t.Fatal(err)
		}
		vars = append(vars, v)
		if err := s.AppendToMany(ctx, "Product", "variations", p, v); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ToManyTargets(ctx, "Product", "variations", p)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 members, got %d", len(got))
	}
	for i := range vars {
		if got[i] != vars[i] {
			t.Errorf("position %d: got %d, want %d (order must be insertion order)", i, got[i], vars[i])
		}
	}

	if err := s.SetToOne(ctx, "Product", "featured_variation", p, vars[1]); err != nil {
		t.Fatal(err)
	}
	target, ok, err := s.ToOneTarget(ctx, "Product", "featured_variation", p)
	if err != nil || !ok || target != vars[1] {
		t.Errorf("to-one target = %d ok=%v err=%v, want %d", target, ok, err, vars[1])
	}
}

func TestFindRow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	pk, err := s.InsertRow(ctx, "Product", Row{"id": int64(9753134), "title": "X", "on_sale": false})
	if err != nil {
		t.Fatal(err)
	}
	found, ok, err := s.FindRow(ctx, "Product", "id", int64(9753134))
	if err != nil || !ok || found != pk {
		t.Errorf("FindRow = %d ok=%v err=%v, want %d", found, ok, err, pk)
	}
	if _, ok, _ := s.FindRow(ctx, "Product", "id", int64(1)); ok {
		t.Error("FindRow should miss for absent value")
	}
}

func TestReservedNamesRejected(t *testing.T) {
	dir := t.TempDir()

	bad := types.Model{Entities: []types.Entity{{
		Name:       "Product",
		Attributes: []types.Attribute{{Name: "pk", Type: types.AttrInt64}},
	}}}
	if _, err := Create(filepath.Join(dir, "a.db"), bad); err == nil {
		t.Error("attribute named pk should be rejected")
	}
}

func TestSidecarPaths(t *testing.T) {
	paths := SidecarPaths("/tmp/store.db")
	if len(paths) != 2 || paths[0] != "/tmp/store.db-wal" || paths[1] != "/tmp/store.db-shm" {
		t.Errorf("unexpected sidecar paths: %v", paths)
	}
}
