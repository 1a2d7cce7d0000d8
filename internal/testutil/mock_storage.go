// mock_storage.go - Mock storage implementation for testing
package testutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gpu-log-summary/backend/internal/models"
	"github.com/gpu-log-summary/backend/internal/storage"
)

// MockStorage implements storage.Store for testing. Files are written to a
// temp directory so summary jobs can read them back.
type MockStorage struct {
	mu      sync.RWMutex
	tempDir string
	batches map[string]*models.Batch
	files   map[string]map[string]*models.FileInfo

	// SaveErr, when set, is returned by SaveToBatch.
	SaveErr error
}

// NewMockStorage creates a new mock storage rooted at tempDir.
func NewMockStorage(tempDir string) *MockStorage {
	return &MockStorage{
		tempDir: tempDir,
		batches: make(map[string]*models.Batch),
		files:   make(map[string]map[string]*models.FileInfo),
	}
}

func (m *MockStorage) CreateBatch() (*models.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := generateTestID()
	if err := os.MkdirAll(filepath.Join(m.tempDir, id), 0755); err != nil {
		return nil, err
	}
	b := &models.Batch{ID: id, CreatedAt: time.Now()}
	m.batches[id] = b
	m.files[id] = make(map[string]*models.FileInfo)
	return b, nil
}

func (m *MockStorage) GetBatch(id string) (*models.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.batches[id]
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", id, storage.ErrNotFound)
	}
	return b, nil
}

func (m *MockStorage) ListBatches() []*models.Batch {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Batch, 0, len(m.batches))
	for _, b := range m.batches {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *MockStorage) DeleteBatch(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.batches[id]; !ok {
		return fmt.Errorf("batch %s: %w", id, storage.ErrNotFound)
	}
	delete(m.batches, id)
	delete(m.files, id)
	return os.RemoveAll(filepath.Join(m.tempDir, id))
}

func (m *MockStorage) SaveToBatch(batchID, name string, r io.Reader) (*models.FileInfo, error) {
	if m.SaveErr != nil {
		return nil, m.SaveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return m.AddFile(batchID, filepath.Base(name), data)
}

func (m *MockStorage) ListFiles(batchID string) ([]*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	files, ok := m.files[batchID]
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", batchID, storage.ErrNotFound)
	}
	out := make([]*models.FileInfo, 0, len(files))
	for _, f := range files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MockStorage) BatchDir(batchID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.batches[batchID]; !ok {
		return "", fmt.Errorf("batch %s: %w", batchID, storage.ErrNotFound)
	}
	return filepath.Join(m.tempDir, batchID), nil
}

// Ensure MockStorage implements storage.Store
var _ storage.Store = (*MockStorage)(nil)

// Test Helper Methods

// AddFile writes a file into an existing batch without name validation.
func (m *MockStorage) AddFile(batchID, name string, data []byte) (*models.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[batchID]
	if !ok {
		return nil, errors.New("batch not found")
	}
	if err := os.WriteFile(filepath.Join(m.tempDir, batchID, name), data, 0644); err != nil {
		return nil, err
	}

	info := &models.FileInfo{
		ID:         generateTestID(),
		BatchID:    batchID,
		Name:       name,
		Size:       int64(len(data)),
		UploadedAt: time.Now(),
	}
	m.files[batchID][name] = info
	b.FileCount = len(m.files[batchID])
	return info, nil
}

// generateTestID generates a simple test ID
var testIDCounter int
var testIDMutex sync.Mutex

func generateTestID() string {
	testIDMutex.Lock()
	defer testIDMutex.Unlock()
	testIDCounter++
	return fmt.Sprintf("test-id-%d", testIDCounter)
}
