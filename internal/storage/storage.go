// Package storage keeps the history of ingestion runs: one RunRecord per
// invocation, looked up by batch id or listed per source locator.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ignite/product-ingest/internal/config"
	"github.com/ignite/product-ingest/internal/pkg/logger"
)

// RunRecord summarizes one ingestion invocation.
type RunRecord struct {
	BatchID       string    `json:"batchId" dynamodbav:"BatchID"`
	CorrelationID string    `json:"correlationId" dynamodbav:"CorrelationID"`
	Locator       string    `json:"locator" dynamodbav:"Locator"`
	StatusCode    int       `json:"statusCode" dynamodbav:"StatusCode"`
	Message       string    `json:"message,omitempty" dynamodbav:"Message,omitempty"`
	ErrorType     string    `json:"errorType,omitempty" dynamodbav:"ErrorType,omitempty"`
	Succeeded     int       `json:"succeeded" dynamodbav:"Succeeded"`
	Failed        int       `json:"failed" dynamodbav:"Failed"`
	Skipped       int       `json:"skipped" dynamodbav:"Skipped"`
	Warnings      int       `json:"warnings" dynamodbav:"Warnings"`
	Published     int       `json:"published" dynamodbav:"Published"`
	PublishFailed int       `json:"publishFailed" dynamodbav:"PublishFailed"`
	StartedAt     time.Time `json:"startedAt" dynamodbav:"StartedAt"`
	DurationMS    float64   `json:"durationMs" dynamodbav:"DurationMS"`
}

// RunStore persists run records. GetRun returns nil, nil when the batch is
// unknown. ListRuns returns newest first.
type RunStore interface {
	SaveRun(ctx context.Context, rec RunRecord) error
	GetRun(ctx context.Context, batchID string) (*RunRecord, error)
	ListRuns(ctx context.Context, locator string, limit int) ([]RunRecord, error)
}

// Storage keeps runs in memory and, for the local type, mirrors each one
// to <LocalPath>/runs/<batchId>.json.
type Storage struct {
	config config.StorageConfig
	mu     sync.RWMutex
	runs   map[string]RunRecord
}

// New creates a new Storage instance
func New(cfg config.StorageConfig) (*Storage, error) {
	s := &Storage{
		config: cfg,
		runs:   make(map[string]RunRecord),
	}

	if cfg.Type == config.StorageLocal {
		if err := os.MkdirAll(filepath.Join(cfg.LocalPath, "runs"), 0755); err != nil {
			return nil, fmt.Errorf("creating storage directory: %w", err)
		}
		if err := s.loadFromDisk(); err != nil {
			// Not fatal; the history just starts empty.
			logger.Warn("storage: could not load existing runs", "path", cfg.LocalPath, "error", err)
		}
	}

	return s, nil
}

func (s *Storage) SaveRun(ctx context.Context, rec RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[rec.BatchID] = rec
	if s.config.Type == config.StorageLocal {
		return s.saveToFile(rec)
	}
	return nil
}

func (s *Storage) GetRun(ctx context.Context, batchID string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.runs[batchID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// ListRuns filters by locator; an empty locator lists every run.
func (s *Storage) ListRuns(ctx context.Context, locator string, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RunRecord, 0, len(s.runs))
	for _, rec := range s.runs {
		if locator == "" || rec.Locator == locator {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].BatchID > out[j].BatchID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// saveToFile writes one run as indented JSON.
func (s *Storage) saveToFile(rec RunRecord) error {
	// Sanitize key for filename
	safeKey := filepath.Base(rec.BatchID)
	path := filepath.Join(s.config.LocalPath, "runs", safeKey+".json")

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rec)
}

// loadFromDisk loads runs written by earlier processes.
func (s *Storage) loadFromDisk() error {
	dir := filepath.Join(s.config.LocalPath, "runs")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		var rec RunRecord
		if err := json.Unmarshal(data, &rec); err == nil && rec.BatchID != "" {
			s.runs[rec.BatchID] = rec
		}
	}
	return nil
}
