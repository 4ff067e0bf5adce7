// Package observability records event-route timings in SQLite.
//
// Datapoints are buffered in memory and written in batches by a background
// goroutine. Persistence never blocks the request path: a write error is
// logged and the batch is dropped.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

const schema = `
CREATE TABLE IF NOT EXISTS metrics_timeseries (
    metric_name TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    value REAL NOT NULL,
    labels TEXT,
    unit TEXT
);
CREATE INDEX IF NOT EXISTS idx_metrics_name_time
    ON metrics_timeseries(metric_name, timestamp DESC);
`

// Metric names written by RecordEvent.
const (
	MetricEventDurationMs = "event_duration_ms"
)

// Metric is a single timeseries datapoint.
type Metric struct {
	Name      string
	Timestamp time.Time
	Value     float64
	Labels    map[string]string
	Unit      string
}

// Metrics buffers datapoints and flushes them to SQLite in batches.
type Metrics struct {
	db            *sql.DB
	bufferSize    int
	flushInterval time.Duration
	log           *slog.Logger

	mu     sync.Mutex
	buffer []*Metric

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewMetrics applies the schema to db and starts the flush loop. Zero
// bufferSize and flushInterval default to 100 and 5s.
func NewMetrics(db *sql.DB, bufferSize int, flushInterval time.Duration, log *slog.Logger) (*Metrics, error) {
	if db == nil {
		return nil, errors.New("observability: nil database")
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("observability: apply schema: %w", err)
	}
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	m := &Metrics{
		db:            db,
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		log:           log,
		buffer:        make([]*Metric, 0, bufferSize),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go m.flushLoop()
	return m, nil
}

// Record queues a datapoint. A full buffer is flushed synchronously.
func (m *Metrics) Record(p *Metric) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffer = append(m.buffer, p)
	if len(m.buffer) >= m.bufferSize {
		m.flushLocked()
	}
}

// RecordEvent records how long an event route took to answer.
func (m *Metrics) RecordEvent(route string, status int, d time.Duration) {
	m.Record(&Metric{
		Name:      MetricEventDurationMs,
		Timestamp: time.Now(),
		Value:     float64(d) / float64(time.Millisecond),
		Labels:    map[string]string{"route": route, "status": strconv.Itoa(status)},
		Unit:      "milliseconds",
	})
}

// Flush writes buffered datapoints now.
func (m *Metrics) Flush() {
	m.mu.Lock()
	m.flushLocked()
	m.mu.Unlock()
}

// Query returns datapoints named name (all when empty) at or after since,
// newest first. limit <= 0 means no limit.
func (m *Metrics) Query(ctx context.Context, name string, since time.Time, limit int) ([]*Metric, error) {
	q := "SELECT metric_name, timestamp, value, labels, unit FROM metrics_timeseries WHERE timestamp >= ?"
	args := []any{since.Unix()}
	if name != "" {
		q += " AND metric_name = ?"
		args = append(args, name)
	}
	q += " ORDER BY timestamp DESC, rowid DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := m.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("observability: query metrics: %w", err)
	}
	defer rows.Close()

	var out []*Metric
	for rows.Next() {
		var (
			p      Metric
			ts     int64
			labels sql.NullString
			unit   sql.NullString
		)
		if err := rows.Scan(&p.Name, &ts, &p.Value, &labels, &unit); err != nil {
			return nil, fmt.Errorf("observability: scan metric: %w", err)
		}
		p.Timestamp = time.Unix(ts, 0)
		p.Unit = unit.String
		if labels.Valid {
			if json.Unmarshal([]byte(labels.String), &p.Labels) != nil {
				p.Labels = nil
			}
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// Cleanup deletes datapoints older than before and returns the count removed.
func (m *Metrics) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	res, err := m.db.ExecContext(ctx, "DELETE FROM metrics_timeseries WHERE timestamp < ?", before.Unix())
	if err != nil {
		return 0, fmt.Errorf("observability: cleanup metrics: %w", err)
	}
	return res.RowsAffected()
}

// Close flushes what is left and stops the background goroutine.
func (m *Metrics) Close() error {
	m.once.Do(func() { close(m.stop) })
	<-m.done
	return nil
}

func (m *Metrics) flushLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			m.Flush()
			return
		case <-ticker.C:
			m.Flush()
		}
	}
}

func (m *Metrics) flushLocked() {
	if len(m.buffer) == 0 {
		return
	}
	defer func() { m.buffer = m.buffer[:0] }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		m.log.Error("observability: begin tx", "error", err)
		return
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO metrics_timeseries (metric_name, timestamp, value, labels, unit) VALUES (?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		m.log.Error("observability: prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, p := range m.buffer {
		var labels sql.NullString
		if len(p.Labels) > 0 {
			if b, err := json.Marshal(p.Labels); err == nil {
				labels = sql.NullString{String: string(b), Valid: true}
			}
		}
		if _, err := stmt.ExecContext(ctx, p.Name, p.Timestamp.Unix(), p.Value, labels, p.Unit); err != nil {
			m.log.Error("observability: insert", "error", err, "metric", p.Name)
		}
	}
	if err := tx.Commit(); err != nil {
		m.log.Error("observability: commit", "error", err)
	}
}
