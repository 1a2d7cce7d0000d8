// manager_test.go - Tests for batch storage layer
package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func createTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func createTestBatch(t *testing.T, store *LocalStore) string {
	t.Helper()
	batch, err := store.CreateBatch()
	if err != nil {
		t.Fatalf("Failed to create batch: %v", err)
	}
	return batch.ID
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates upload directory", func(t *testing.T) {
		uploadDir := filepath.Join(t.TempDir(), "uploads")

		store, err := NewLocalStore(uploadDir, nil)
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		if _, err := os.Stat(uploadDir); os.IsNotExist(err) {
			t.Error("Expected upload directory to be created")
		}
		if len(store.extensions) != 3 {
			t.Errorf("Expected default extensions, got %v", store.extensions)
		}
	})
}

func TestLocalStore_CreateBatch(t *testing.T) {
	store := createTestStore(t)

	batch, err := store.CreateBatch()
	if err != nil {
		t.Fatalf("Failed to create batch: %v", err)
	}
	if batch.ID == "" {
		t.Fatal("Expected batch ID to be set")
	}

	dir, err := store.BatchDir(batch.ID)
	if err != nil {
		t.Fatalf("BatchDir failed: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("Expected batch directory at %s", dir)
	}

	got, err := store.GetBatch(batch.ID)
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if got.FileCount != 0 {
		t.Errorf("Expected empty batch, got %d files", got.FileCount)
	}
}

func TestLocalStore_SaveToBatch(t *testing.T) {
	t.Run("saves file under its base name", func(t *testing.T) {
		store := createTestStore(t)
		batchID := createTestBatch(t, store)

		content := "ts=100\nGPU[0] : GPU use (%) : 45\n"
		info, err := store.SaveToBatch(batchID, "../nested/node-a.log", strings.NewReader(content))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}
		if info.Name != "node-a.log" {
			t.Errorf("Expected name 'node-a.log', got %v", info.Name)
		}
		if info.Size != int64(len(content)) {
			t.Errorf("Expected size %d, got %d", len(content), info.Size)
		}
		if info.BatchID != batchID {
			t.Errorf("Expected batch %s, got %s", batchID, info.BatchID)
		}

		dir, _ := store.BatchDir(batchID)
		data, err := os.ReadFile(filepath.Join(dir, "node-a.log"))
		if err != nil {
			t.Fatalf("Failed to read saved file: %v", err)
		}
		if string(data) != content {
			t.Errorf("Expected content %q, got %q", content, string(data))
		}
	})

	t.Run("replaces file with same name", func(t *testing.T) {
		store := createTestStore(t)
		batchID := createTestBatch(t, store)

		if _, err := store.SaveToBatch(batchID, "node-a.log", strings.NewReader("old")); err != nil {
			t.Fatalf("first save: %v", err)
		}
		if _, err := store.SaveToBatch(batchID, "node-a.log", strings.NewReader("newer")); err != nil {
			t.Fatalf("second save: %v", err)
		}

		files, _ := store.ListFiles(batchID)
		if len(files) != 1 || files[0].Size != 5 {
			t.Errorf("Expected one replaced file, got %+v", files)
		}
		batch, _ := store.GetBatch(batchID)
		if batch.FileCount != 1 {
			t.Errorf("Expected FileCount 1, got %d", batch.FileCount)
		}
	})

	t.Run("accepts compressed logs", func(t *testing.T) {
		store := createTestStore(t)
		batchID := createTestBatch(t, store)

		if _, err := store.SaveToBatch(batchID, "node-b.log.zst", strings.NewReader("x")); err != nil {
			t.Errorf("Expected .log.zst to be accepted: %v", err)
		}
	})

	t.Run("rejects bad names", func(t *testing.T) {
		store := createTestStore(t)
		batchID := createTestBatch(t, store)

		for _, name := range []string{"notes.txt", ".log", "..", "", "dir/"} {
			_, err := store.SaveToBatch(batchID, name, strings.NewReader("x"))
			if !errors.Is(err, ErrInvalidName) {
				t.Errorf("name %q: expected ErrInvalidName, got %v", name, err)
			}
		}
	})

	t.Run("unknown batch", func(t *testing.T) {
		store := createTestStore(t)
		_, err := store.SaveToBatch("missing", "node-a.log", strings.NewReader("x"))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestLocalStore_ListFiles(t *testing.T) {
	store := createTestStore(t)
	batchID := createTestBatch(t, store)

	for _, name := range []string{"node-c.log", "node-a.log", "node-b.log.gz"} {
		if _, err := store.SaveToBatch(batchID, name, strings.NewReader("data")); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}

	files, err := store.ListFiles(batchID)
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	want := []string{"node-a.log", "node-b.log.gz", "node-c.log"}
	if len(files) != len(want) {
		t.Fatalf("Expected %d files, got %d", len(want), len(files))
	}
	for i, name := range want {
		if files[i].Name != name {
			t.Errorf("files[%d] = %s, want %s", i, files[i].Name, name)
		}
	}

	if _, err := store.ListFiles("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestLocalStore_DeleteBatch(t *testing.T) {
	store := createTestStore(t)
	batchID := createTestBatch(t, store)
	dir, _ := store.BatchDir(batchID)

	if err := store.DeleteBatch(batchID); err != nil {
		t.Fatalf("DeleteBatch failed: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("Expected batch directory to be removed")
	}
	if _, err := store.GetBatch(batchID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := store.DeleteBatch(batchID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
	if len(store.ListBatches()) != 0 {
		t.Error("Expected no batches")
	}
}

func TestCleanupOldBatches(t *testing.T) {
	store := createTestStore(t)
	oldID := createTestBatch(t, store)
	busyID := createTestBatch(t, store)
	freshID := createTestBatch(t, store)

	store.mu.Lock()
	store.batches[oldID].batch.CreatedAt = time.Now().Add(-48 * time.Hour)
	store.batches[busyID].batch.CreatedAt = time.Now().Add(-48 * time.Hour)
	store.mu.Unlock()

	removed, err := CleanupOldBatches(store, 24*time.Hour, func(id string) bool { return id == busyID })
	if err != nil {
		t.Fatalf("CleanupOldBatches failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 batch removed, got %d", removed)
	}
	if _, err := store.GetBatch(oldID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected old batch to be gone, got %v", err)
	}
	for _, id := range []string{busyID, freshID} {
		if _, err := store.GetBatch(id); err != nil {
			t.Errorf("Expected batch %s to be kept: %v", id, err)
		}
	}
	if got := len(store.ListBatches()); got != 2 {
		t.Errorf("Expected 2 batches left, got %d", got)
	}
}
