// Package session runs summary jobs in the background and keeps their
// results for later retrieval.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gpu-log-summary/backend/internal/models"
	"github.com/gpu-log-summary/backend/internal/observability"
	"github.com/gpu-log-summary/backend/internal/parser"
	"github.com/gpu-log-summary/backend/internal/summary"
)

// JobKeepAliveWindow is how long to keep jobs whose results were recently read.
const JobKeepAliveWindow = 5 * time.Minute

var (
	ErrJobNotFound    = errors.New("summary job not found")
	ErrJobNotComplete = errors.New("summary job not complete")
	ErrNoReadings     = errors.New("readings were not persisted for this job")
)

// Options configures a Manager.
type Options struct {
	Extensions      []string
	FileConcurrency int
	Registry        *parser.Registry
	// MaxConcurrentJobs bounds running jobs; extra jobs wait in pending.
	MaxConcurrentJobs int
	// JobTimeout cancels a job that runs too long. Zero disables it.
	JobTimeout time.Duration
	// PersistDir, when set, receives one DuckDB file of raw readings per job.
	PersistDir   string
	StoreOptions parser.ReadingStoreOptions
	Metrics      *observability.Metrics
	Logger       *slog.Logger
}

// Manager handles summary jobs.
type Manager struct {
	jobs  map[string]*JobState
	mu    sync.RWMutex
	opts  Options
	slots chan struct{}
	log   *slog.Logger
}

// JobState holds a job's metadata, its report once complete, and the
// optional reading store.
type JobState struct {
	Job          *models.SummaryJob
	Report       *models.Report
	Store        *parser.ReadingStore
	LastAccessed time.Time
}

// NewManager creates a summary job manager.
func NewManager(opts Options) *Manager {
	if opts.MaxConcurrentJobs <= 0 {
		opts.MaxConcurrentJobs = 1
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		jobs:  make(map[string]*JobState),
		opts:  opts,
		slots: make(chan struct{}, opts.MaxConcurrentJobs),
		log:   log.With("component", "SummaryJobs"),
	}
}

// StartJob schedules a summary of logDir. The returned job is a snapshot.
func (m *Manager) StartJob(batchID, logDir string) (*models.SummaryJob, error) {
	if info, err := os.Stat(logDir); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", summary.ErrLogDir, logDir, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", summary.ErrLogDir, logDir)
	}

	id := uuid.New().String()
	job := models.NewSummaryJob(id, batchID)

	m.mu.Lock()
	m.jobs[id] = &JobState{Job: job, LastAccessed: time.Now()}
	snapshot := *job
	m.mu.Unlock()

	m.opts.Metrics.JobStarted()
	go m.runJob(id, logDir)

	return &snapshot, nil
}

func (m *Manager) runJob(id, logDir string) {
	log := m.log.With("job", id[:8])

	m.slots <- struct{}{}
	defer func() { <-m.slots }()

	var store *parser.ReadingStore
	// Recover from panics to keep the server alive
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic recovered", "panic", r)
			if store != nil {
				store.Remove()
			}
			m.failJob(id, fmt.Sprintf("summary panicked: %v", r))
		}
	}()

	start := time.Now()
	m.mu.Lock()
	if state, ok := m.jobs[id]; ok {
		state.Job.Status = models.JobStatusRunning
		state.Job.StartTime = start.UnixMilli()
	}
	m.mu.Unlock()

	ctx := context.Background()
	if m.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.JobTimeout)
		defer cancel()
	}

	opts := summary.Options{
		Extensions:  m.opts.Extensions,
		Concurrency: m.opts.FileConcurrency,
		Registry:    m.opts.Registry,
		Metrics:     m.opts.Metrics,
		Logger:      log,
	}
	if m.opts.PersistDir != "" {
		var err error
		store, err = parser.NewReadingStore(filepath.Join(m.opts.PersistDir, id+".duckdb"), m.opts.StoreOptions)
		if err != nil {
			log.Error("reading store unavailable", "error", err)
			m.failJob(id, fmt.Sprintf("creating reading store: %v", err))
			return
		}
		opts.Sink = store
	}

	log.Info("starting summary", "dir", logDir)
	report, err := summary.NewBuilder(opts).Summarize(ctx, logDir)
	if err == nil && store != nil {
		store, err = m.reopenReadOnly(store)
	}
	if err != nil {
		log.Error("summary failed", "error", err)
		if store != nil {
			store.Remove()
		}
		m.failJob(id, err.Error())
		return
	}

	end := time.Now()
	m.mu.Lock()
	state, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		if store != nil {
			store.Remove()
		}
		return
	}
	state.Report = report
	state.Store = store
	state.Job.Status = models.JobStatusComplete
	state.Job.NodeCount = len(report.Nodes)
	state.Job.WarningCount = len(report.Warnings)
	state.Job.Persisted = store != nil
	if store != nil {
		state.Job.ReadingCount = store.Len()
	}
	state.Job.EndTime = end.UnixMilli()
	state.Job.ProcessingTimeMs = end.Sub(start).Milliseconds()
	m.mu.Unlock()

	m.opts.Metrics.JobFinished(string(models.JobStatusComplete))
	log.Info("summary complete", "nodes", len(report.Nodes), "warnings", len(report.Warnings),
		"elapsed", end.Sub(start))
}

// reopenReadOnly finalizes a written store and reopens it for queries only.
func (m *Manager) reopenReadOnly(store *parser.ReadingStore) (*parser.ReadingStore, error) {
	if err := store.Finalize(); err != nil {
		return store, err
	}
	if err := store.Close(); err != nil {
		return store, fmt.Errorf("closing reading store: %w", err)
	}
	ro, err := parser.OpenReadingStoreReadOnly(store.Path(), m.opts.StoreOptions)
	if err != nil {
		return store, err
	}
	return ro, nil
}

func (m *Manager) failJob(id, reason string) {
	m.mu.Lock()
	if state, ok := m.jobs[id]; ok {
		state.Job.Status = models.JobStatusError
		state.Job.Error = reason
		state.Job.EndTime = time.Now().UnixMilli()
	}
	m.mu.Unlock()

	m.opts.Metrics.JobFinished(string(models.JobStatusError))
}

// GetJob returns a snapshot of a job.
func (m *Manager) GetJob(id string) (*models.SummaryJob, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	job := *state.Job
	return &job, true
}

// GetReport returns the report of a completed job.
func (m *Manager) GetReport(id string) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if state.Job.Status != models.JobStatusComplete {
		return nil, fmt.Errorf("%w: status %s", ErrJobNotComplete, state.Job.Status)
	}
	state.LastAccessed = time.Now()
	return state.Report, nil
}

// QueryReadings returns persisted raw readings of a completed job.
func (m *Manager) QueryReadings(ctx context.Context, id string, q parser.ReadingQuery) ([]models.Reading, error) {
	store, err := m.readingStore(id)
	if err != nil {
		return nil, err
	}
	return store.QueryReadings(ctx, q)
}

// QueryStats recomputes a node's statistics in SQL from the persisted
// readings, for cross-checking the report.
func (m *Manager) QueryStats(ctx context.Context, id, node string) (map[string]map[models.MetricKey]models.Stat, error) {
	store, err := m.readingStore(id)
	if err != nil {
		return nil, err
	}
	return store.QueryStats(ctx, node)
}

func (m *Manager) readingStore(id string) (*parser.ReadingStore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if state.Job.Status != models.JobStatusComplete {
		return nil, fmt.Errorf("%w: status %s", ErrJobNotComplete, state.Job.Status)
	}
	state.LastAccessed = time.Now()
	if state.Store == nil {
		return nil, ErrNoReadings
	}
	return state.Store, nil
}

// ListJobs returns snapshots of all jobs, newest first.
func (m *Manager) ListJobs() []*models.SummaryJob {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.SummaryJob, 0, len(m.jobs))
	for _, state := range m.jobs {
		job := *state.Job
		out = append(out, &job)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// HasActiveJob reports whether a pending or running job reads batchID.
func (m *Manager) HasActiveJob(batchID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, state := range m.jobs {
		if state.Job.BatchID != batchID {
			continue
		}
		if state.Job.Status == models.JobStatusPending || state.Job.Status == models.JobStatusRunning {
			return true
		}
	}
	return false
}

// CleanupOldJobs removes finished jobs not accessed within maxAge, but keeps
// jobs accessed within JobKeepAliveWindow.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-maxAge)
	keepAliveCutoff := now.Add(-JobKeepAliveWindow)

	removed := 0
	for id, state := range m.jobs {
		if state.Job.Status != models.JobStatusComplete &&
			state.Job.Status != models.JobStatusError {
			continue
		}
		if state.LastAccessed.After(keepAliveCutoff) || state.LastAccessed.After(cutoff) {
			continue
		}
		if state.Store != nil {
			if err := state.Store.Remove(); err != nil {
				m.log.Warn("removing reading store", "job", id[:8], "error", err)
			}
		}
		delete(m.jobs, id)
		removed++
		m.log.Info("cleaned up aged job", "job", id[:8],
			"last_accessed", now.Sub(state.LastAccessed).Round(time.Second))
	}
	return removed
}

// Close releases every job's reading store.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, state := range m.jobs {
		if state.Store != nil {
			state.Store.Remove()
			state.Store = nil
		}
	}
}
