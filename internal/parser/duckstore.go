package parser

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/marcboeker/go-duckdb"

	"github.com/gpu-log-summary/backend/internal/models"
)

// ReadingStoreOptions tunes the DuckDB connection.
type ReadingStoreOptions struct {
	Threads     int
	MemoryLimit string
	BatchSize   int
}

// DefaultReadingStoreOptions returns the default connection settings.
func DefaultReadingStoreOptions() ReadingStoreOptions {
	return ReadingStoreOptions{
		Threads:     4,
		MemoryLimit: "1GB",
		BatchSize:   50000,
	}
}

func (o ReadingStoreOptions) pragmas() []string {
	threads := o.Threads
	if threads <= 0 {
		threads = 4
	}
	limit := o.MemoryLimit
	if limit == "" {
		limit = "1GB"
	}
	return []string{
		fmt.Sprintf("PRAGMA memory_limit='%s'", strings.ReplaceAll(limit, "'", "")),
		fmt.Sprintf("PRAGMA threads=%d", threads),
		"PRAGMA enable_progress_bar=false",
	}
}

// ReadingStore persists extracted readings in a DuckDB file so a summary's
// raw series can be queried after the report is built.
type ReadingStore struct {
	mu        sync.Mutex
	db        *sql.DB
	dbPath    string
	count     int
	batchSize int
	batch     []models.Reading
	log       *slog.Logger
}

// NewReadingStore creates a new DuckDB-backed reading store at dbPath.
func NewReadingStore(dbPath string, opts ReadingStoreOptions) (*ReadingStore, error) {
	log := slog.With("component", "ReadingStore", "path", dbPath)
	log.Debug("creating database")

	pragmas := opts.pragmas()
	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return fmt.Errorf("%s: %w", pragma, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)

	_, err = db.Exec(`
		CREATE TABLE readings (
			id     INTEGER PRIMARY KEY,
			node   VARCHAR NOT NULL,
			device VARCHAR NOT NULL,
			metric VARCHAR NOT NULL,
			sample INTEGER NOT NULL,
			ts     BIGINT,
			source VARCHAR NOT NULL,
			value  DOUBLE NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		os.Remove(dbPath)
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 50000
	}

	return &ReadingStore{
		db:        db,
		dbPath:    dbPath,
		batchSize: batchSize,
		batch:     make([]models.Reading, 0, batchSize),
		log:       log,
	}, nil
}

// OpenReadingStoreReadOnly opens a previously finalized store for queries.
func OpenReadingStoreReadOnly(dbPath string, opts ReadingStoreOptions) (*ReadingStore, error) {
	log := slog.With("component", "ReadingStore", "path", dbPath)

	pragmas := opts.pragmas()
	connector, err := duckdb.NewConnector(dbPath+"?access_mode=READ_ONLY", func(execer driver.ExecerContext) error {
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				log.Warn("pragma failed", "pragma", pragma, "error", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM readings").Scan(&count); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to get reading count: %w", err)
	}

	log.Debug("opened existing database", "readings", count)
	return &ReadingStore{
		db:     db,
		dbPath: dbPath,
		count:  count,
		log:    log,
	}, nil
}

// AddReadings queues readings for insertion, flushing full batches.
func (rs *ReadingStore) AddReadings(readings []models.Reading) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	for _, r := range readings {
		rs.batch = append(rs.batch, r)
		rs.count++
		if len(rs.batch) >= rs.batchSize {
			if err := rs.flushBatch(); err != nil {
				return err
			}
		}
	}
	return nil
}

// flushBatch writes the pending batch using the DuckDB Appender API.
func (rs *ReadingStore) flushBatch() error {
	if len(rs.batch) == 0 {
		return nil
	}

	start := time.Now()
	conn, err := rs.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}

		appender, err := duckdb.NewAppenderFromConn(dConn, "", "readings")
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer appender.Close()

		baseID := rs.count - len(rs.batch)
		for i, r := range rs.batch {
			var ts driver.Value
			if r.Timestamp != nil {
				ts = *r.Timestamp
			}
			err := appender.AppendRow(
				int32(baseID+i),
				r.Node,
				r.Device,
				string(r.Metric),
				int32(r.Sample),
				ts,
				string(r.Source),
				r.Value,
			)
			if err != nil {
				return fmt.Errorf("failed to append row %d: %w", i, err)
			}
		}
		return appender.Flush()
	})
	if err != nil {
		return fmt.Errorf("appender error: %w", err)
	}

	rs.log.Debug("batch flushed", "rows", len(rs.batch), "elapsed", time.Since(start))
	rs.batch = rs.batch[:0]
	return nil
}

// Finalize flushes pending readings and indexes the table for lookups.
func (rs *ReadingStore) Finalize() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if err := rs.flushBatch(); err != nil {
		return err
	}
	if _, err := rs.db.Exec("CREATE INDEX idx_series ON readings(node, device, metric)"); err != nil {
		return fmt.Errorf("idx_series creation failed: %w", err)
	}
	return nil
}

// Len returns the number of readings added.
func (rs *ReadingStore) Len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.count
}

// Path returns the database file location.
func (rs *ReadingStore) Path() string {
	return rs.dbPath
}

// ReadingQuery filters QueryReadings. Empty fields match everything.
type ReadingQuery struct {
	Node   string
	Device string
	Metric string
	Limit  int
}

// QueryReadings returns readings in insertion order.
func (rs *ReadingStore) QueryReadings(ctx context.Context, q ReadingQuery) ([]models.Reading, error) {
	query := "SELECT node, device, metric, sample, ts, source, value FROM readings"
	where, args := buildReadingFilter(q.Node, q.Device, q.Metric)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY id"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := rs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reading query failed: %w", err)
	}
	defer rows.Close()

	out := make([]models.Reading, 0)
	for rows.Next() {
		var (
			r      models.Reading
			metric string
			source string
			ts     sql.NullInt64
		)
		if err := rows.Scan(&r.Node, &r.Device, &metric, &r.Sample, &ts, &source, &r.Value); err != nil {
			return nil, err
		}
		r.Metric = models.MetricKey(metric)
		r.Source = models.ReadingSource(source)
		if ts.Valid {
			v := ts.Int64
			r.Timestamp = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// QueryStats computes avg, p95 and max per device and metric for a node in SQL.
// quantile_cont interpolates the same way as Percentile.
func (rs *ReadingStore) QueryStats(ctx context.Context, node string) (map[string]map[models.MetricKey]models.Stat, error) {
	rows, err := rs.db.QueryContext(ctx, `
		SELECT device, metric, avg(value), quantile_cont(value, 0.95), max(value)
		FROM readings
		WHERE node = ?
		GROUP BY device, metric
	`, node)
	if err != nil {
		return nil, fmt.Errorf("stats query failed: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[models.MetricKey]models.Stat)
	for rows.Next() {
		var device, metric string
		var s models.Stat
		if err := rows.Scan(&device, &metric, &s.Avg, &s.P95, &s.Max); err != nil {
			return nil, err
		}
		if out[device] == nil {
			out[device] = make(map[models.MetricKey]models.Stat)
		}
		out[device][models.MetricKey(metric)] = s
	}
	return out, rows.Err()
}

func buildReadingFilter(node, device, metric string) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	if node != "" {
		clauses = append(clauses, "node = ?")
		args = append(args, node)
	}
	if device != "" {
		clauses = append(clauses, "device = ?")
		args = append(args, device)
	}
	if metric != "" {
		clauses = append(clauses, "metric = ?")
		args = append(args, metric)
	}
	return strings.Join(clauses, " AND "), args
}

// Close closes the database, keeping the file.
func (rs *ReadingStore) Close() error {
	if rs.db != nil {
		return rs.db.Close()
	}
	return nil
}

// Remove closes the database and deletes its file.
func (rs *ReadingStore) Remove() error {
	rs.Close()
	if rs.dbPath != "" {
		if err := os.Remove(rs.dbPath); err != nil && !os.IsNotExist(err) {
			return err
		}
		os.Remove(rs.dbPath + ".wal")
	}
	return nil
}
