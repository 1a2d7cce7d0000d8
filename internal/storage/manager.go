package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gpu-log-summary/backend/internal/models"
	"github.com/gpu-log-summary/backend/internal/parser"
)

var (
	// ErrNotFound is returned for unknown batch or file ids.
	ErrNotFound = errors.New("not found")
	// ErrInvalidName is returned when an uploaded file name is unusable.
	ErrInvalidName = errors.New("invalid file name")
)

// Store defines the interface for batch file storage.
type Store interface {
	CreateBatch() (*models.Batch, error)
	GetBatch(id string) (*models.Batch, error)
	ListBatches() []*models.Batch
	DeleteBatch(id string) error
	SaveToBatch(batchID, name string, r io.Reader) (*models.FileInfo, error)
	ListFiles(batchID string) ([]*models.FileInfo, error)
	BatchDir(batchID string) (string, error)
}

type batchEntry struct {
	batch *models.Batch
	files map[string]*models.FileInfo // keyed by stored name
}

// LocalStore implements Store using one directory per batch on the local
// filesystem. Files keep their sanitized upload name, since the name is
// what the summary uses as the node name.
type LocalStore struct {
	mu         sync.RWMutex
	uploadDir  string
	extensions []string
	batches    map[string]*batchEntry
}

// NewLocalStore creates a new LocalStore. A nil extensions slice accepts
// the default log suffixes.
func NewLocalStore(uploadDir string, extensions []string) (*LocalStore, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	if len(extensions) == 0 {
		extensions = parser.DefaultLogExtensions
	}

	return &LocalStore{
		uploadDir:  uploadDir,
		extensions: extensions,
		batches:    make(map[string]*batchEntry),
	}, nil
}

// CreateBatch allocates an empty batch directory.
func (s *LocalStore) CreateBatch() (*models.Batch, error) {
	id := uuid.New().String()
	if err := os.MkdirAll(filepath.Join(s.uploadDir, id), 0755); err != nil {
		return nil, fmt.Errorf("creating batch directory: %w", err)
	}

	batch := &models.Batch{ID: id, CreatedAt: time.Now()}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[id] = &batchEntry{batch: batch, files: make(map[string]*models.FileInfo)}

	return batch, nil
}

// GetBatch retrieves batch metadata by ID.
func (s *LocalStore) GetBatch(id string) (*models.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.batches[id]
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", id, ErrNotFound)
	}
	out := *entry.batch
	return &out, nil
}

// ListBatches returns all batches, newest first.
func (s *LocalStore) ListBatches() []*models.Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.Batch, 0, len(s.batches))
	for _, entry := range s.batches {
		b := *entry.batch
		list = append(list, &b)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}

// DeleteBatch removes a batch and its files.
func (s *LocalStore) DeleteBatch(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.batches[id]; !ok {
		return fmt.Errorf("batch %s: %w", id, ErrNotFound)
	}
	if err := os.RemoveAll(filepath.Join(s.uploadDir, id)); err != nil {
		return fmt.Errorf("deleting batch: %w", err)
	}
	delete(s.batches, id)
	return nil
}

// SaveToBatch writes r into the batch under the base name of name. An
// existing file of the same name is replaced.
func (s *LocalStore) SaveToBatch(batchID, name string, r io.Reader) (*models.FileInfo, error) {
	clean, err := s.sanitizeName(name)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	_, ok := s.batches[batchID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}

	path := filepath.Join(s.uploadDir, batchID, clean)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	info := &models.FileInfo{
		ID:         uuid.New().String(),
		BatchID:    batchID,
		Name:       clean,
		Size:       size,
		UploadedAt: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.batches[batchID]
	if !ok {
		// Deleted while we were writing.
		os.Remove(path)
		return nil, fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}
	entry.files[clean] = info
	entry.batch.FileCount = len(entry.files)

	return info, nil
}

// ListFiles returns the files in a batch sorted by name.
func (s *LocalStore) ListFiles(batchID string) ([]*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}

	list := make([]*models.FileInfo, 0, len(entry.files))
	for _, info := range entry.files {
		list = append(list, info)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

// BatchDir returns the directory holding a batch's files.
func (s *LocalStore) BatchDir(batchID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.batches[batchID]; !ok {
		return "", fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}
	return filepath.Join(s.uploadDir, batchID), nil
}

// CleanupOldBatches deletes batches created more than maxAge ago. Batches
// for which inUse returns true are kept. It returns the number deleted.
func CleanupOldBatches(store Store, maxAge time.Duration, inUse func(batchID string) bool) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, batch := range store.ListBatches() {
		if !batch.CreatedAt.Before(cutoff) {
			continue
		}
		if inUse != nil && inUse(batch.ID) {
			continue
		}
		if err := store.DeleteBatch(batch.ID); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func (s *LocalStore) sanitizeName(name string) (string, error) {
	clean := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if clean == "." || clean == "/" || clean == ".." || strings.HasPrefix(clean, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	ext := parser.MatchExtension(clean, s.extensions)
	if ext == "" {
		return "", fmt.Errorf("%w: %q must end in one of %s", ErrInvalidName, name, strings.Join(s.extensions, ", "))
	}
	if parser.NodeName(clean, s.extensions) == "" {
		return "", fmt.Errorf("%w: %q has no node name", ErrInvalidName, name)
	}
	return clean, nil
}
