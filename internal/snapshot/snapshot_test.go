package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStorageRoundtrip(t *testing.T) {
	ctx := context.Background()
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}

	srcPath := filepath.Join(t.TempDir(), "src.bin")
	if err := os.WriteFile(srcPath, []byte("snapshot payload"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := storage.Upload(ctx, srcPath, "shop/snap-1.db.sz"); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	exists, err := storage.Exists(ctx, "shop/snap-1.db.sz")
	if err != nil || !exists {
		t.Fatalf("Exists = %v, %v, want true", exists, err)
	}

	destPath := filepath.Join(t.TempDir(), "out.bin")
	if err := storage.Download(ctx, "shop/snap-1.db.sz", destPath); err != nil {
		t.Fatalf("Download: %v", err)
	}
	got, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "snapshot payload" {
		t.Errorf("downloaded content = %q", got)
	}

	if err := storage.Delete(ctx, "shop/snap-1.db.sz"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	exists, err = storage.Exists(ctx, "shop/snap-1.db.sz")
	if err != nil || exists {
		t.Errorf("Exists after delete = %v, %v, want false", exists, err)
	}
}

func TestLocalStorageDownloadMissing(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	err = storage.Download(context.Background(), "absent/object", filepath.Join(t.TempDir(), "out"))
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Download missing = %v, want ErrObjectNotFound", err)
	}
}

func TestLocalStorageDeleteMissingIsNil(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := storage.Delete(context.Background(), "never/uploaded"); err != nil {
		t.Errorf("Delete of absent object = %v, want nil", err)
	}
}

func TestLocalStorageListObjects(t *testing.T) {
	ctx := context.Background()
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	srcPath := filepath.Join(t.TempDir(), "src.bin")
	if err := os.WriteFile(srcPath, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"shop/a.db.sz", "shop/b.db.sz", "other/c.db.sz"} {
		if err := storage.Upload(ctx, srcPath, key); err != nil {
			t.Fatalf("Upload %s: %v", key, err)
		}
	}

	objects, err := storage.ListObjects(ctx, "shop/")
	if err != nil {
		t.Fatalf("ListObjects: %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("ListObjects returned %d objects, want 2: %v", len(objects), objects)
	}
	for _, obj := range objects {
		if !strings.HasPrefix(obj, "shop/") {
			t.Errorf("object %q outside prefix", obj)
		}
	}

	objects, err = storage.ListObjects(ctx, "empty/")
	if err != nil {
		t.Fatalf("ListObjects empty prefix: %v", err)
	}
	if len(objects) != 0 {
		t.Errorf("ListObjects empty prefix = %v, want none", objects)
	}
}

func TestArchiverRoundtrip(t *testing.T) {
	ctx := context.Background()
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	archiver := NewArchiver(storage)

	storePath := filepath.Join(t.TempDir(), "shop.db")
	payload := []byte("pretend sqlite store contents, compressible compressible compressible")
	if err := os.WriteFile(storePath, payload, 0644); err != nil {
		t.Fatal(err)
	}

	objectPath, err := archiver.Archive(ctx, storePath, "shop_v31")
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if !strings.HasPrefix(objectPath, "shop/shop_v31-") || !strings.HasSuffix(objectPath, ".db.sz") {
		t.Errorf("unexpected object path %q", objectPath)
	}

	restored := filepath.Join(t.TempDir(), "restored.db")
	if err := archiver.Restore(ctx, objectPath, restored); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	got, err := os.ReadFile(restored)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Errorf("restored store differs from original")
	}

	objects, err := archiver.List(ctx, storePath)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objects) != 1 || objects[0] != objectPath {
		t.Errorf("List = %v, want [%s]", objects, objectPath)
	}
}
