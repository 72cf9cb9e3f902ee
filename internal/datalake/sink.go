// Copyright 2025 James Ross
package datalake

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/flyingrobots/jobcoordinator/internal/breaker"
	"github.com/flyingrobots/jobcoordinator/internal/obs"
)

// ResultRecord is the datalake's wire shape -- a one-line mirror of a
// terminal Result row, with a schema_version so downstream readers can
// evolve the format without breaking old files.
type ResultRecord struct {
	SchemaVersion int       `json:"schema_version"`
	ID            string    `json:"id"`
	JobID         string    `json:"job_id"`
	A             float64   `json:"a"`
	B             float64   `json:"b"`
	Operation     string    `json:"operation"`
	Result        *float64  `json:"result,omitempty"`
	ProcessedBy   string    `json:"processed_by"`
	ProcessedAt   time.Time `json:"processed_at"`
	DurationMs    int64     `json:"duration_ms"`
	Status        string    `json:"status"`
	Error         *string   `json:"error,omitempty"`
}

const schemaVersion = 1

// Sink is the append-only, date-partitioned NDJSON datalake writer.
// Rotation is driven by UTC calendar date (one file per day,
// results-YYYY-MM-DD.ndjson) rather than file size, to give each day's
// results a stable, independently reprocessable file. Wrapped by a
// circuit breaker so a wedged filesystem degrades to dropped, counted
// appends instead of blocking job completions -- append failure must
// never roll back the owning Job transition.
type Sink struct {
	mu          sync.Mutex
	dir         string
	file        *os.File
	currentDate string
	breaker     *breaker.CircuitBreaker
	onDrop      func(err error)
}

// New creates a sink rooted at dir. onDrop, if non-nil, is called whenever
// an append is skipped or fails (the caller wires this to a counter/log).
func New(dir string, onDrop func(err error)) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create datalake dir: %w", err)
	}
	return &Sink{
		dir: dir,
		// Appropriate for a local filesystem sink where failures are rare
		// and binary (disk full, permission).
		breaker: breaker.New(1*time.Minute, 30*time.Second, 0.5, 5),
		onDrop:  onDrop,
	}, nil
}

// Append is fire-and-forget: a failure (including "breaker open") is
// logged/counted via onDrop and never returned to the caller as an error
// the caller must react to.
func (s *Sink) Append(rec ResultRecord) {
	rec.SchemaVersion = schemaVersion

	if !s.breaker.Allow() {
		obs.CircuitBreakerState.Set(float64(s.breaker.State()))
		if s.onDrop != nil {
			s.onDrop(fmt.Errorf("datalake sink circuit open"))
		}
		return
	}

	prevState := s.breaker.State()
	err := s.appendLocked(rec)
	s.breaker.Record(err == nil)
	newState := s.breaker.State()
	obs.CircuitBreakerState.Set(float64(newState))
	if prevState != breaker.Open && newState == breaker.Open {
		obs.CircuitBreakerTrips.Inc()
	}
	if err != nil && s.onDrop != nil {
		s.onDrop(err)
	}
}

func (s *Sink) appendLocked(rec ResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	date := rec.ProcessedAt.UTC().Format("2006-01-02")
	if s.file == nil || date != s.currentDate {
		if s.file != nil {
			s.file.Close()
		}
		path := filepath.Join(s.dir, fmt.Sprintf("results-%s.ndjson", date))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			s.file = nil
			return fmt.Errorf("open datalake partition: %w", err)
		}
		s.file = f
		s.currentDate = date
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal result record: %w", err)
	}
	data = append(data, '\n')
	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("write result record: %w", err)
	}
	return nil
}

// Close releases the current partition file handle.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
