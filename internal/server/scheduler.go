package server

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/wearcoach/wearcoach/internal/chat"
	"github.com/wearcoach/wearcoach/internal/health"
	"github.com/wearcoach/wearcoach/internal/knowledge"
)

// spoolFile is one dropped upload: a user's batch of daily summaries.
type spoolFile struct {
	UserID    string            `json:"user_id"`
	Source    string            `json:"source"`
	Summaries []health.Snapshot `json:"summaries"`
}

// Scheduler periodically drains the spool directory, ingesting summary files
// dropped there by the upload pipeline. Processed files move to a processed/
// subdirectory so a crash mid-batch re-processes at most one file (ingestion
// is idempotent per document key, so replays are harmless).
type Scheduler struct {
	Knowledge *knowledge.KnowledgeStore
	SpoolDir  string
	CronSpec  string
	Stop      chan struct{}

	logger  *log.Logger
	lastRun *time.Time
}

// Start launches the scan loop. A scheduler without a spool directory is a
// no-op.
func (s *Scheduler) Start() {
	if s.SpoolDir == "" {
		return
	}
	if s.logger == nil {
		s.logger = log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
	}
	ticker := time.NewTicker(1 * time.Minute)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				if isDue(s.CronSpec, s.lastRun) {
					now := time.Now()
					s.lastRun = &now
					s.drain()
				}
			}
		}
	}()
}

func (s *Scheduler) drain() {
	entries, err := os.ReadDir(s.SpoolDir)
	if err != nil {
		s.logger.Printf("warn: spool scan failed: %v", err)
		return
	}
	processed := filepath.Join(s.SpoolDir, "processed")
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.SpoolDir, entry.Name())
		if err := s.ingestFile(path); err != nil {
			s.logger.Printf("warn: ingest %s failed: %v", entry.Name(), err)
			continue
		}
		if err := os.MkdirAll(processed, 0o755); err == nil {
			_ = os.Rename(path, filepath.Join(processed, entry.Name()))
		}
	}
}

func (s *Scheduler) ingestFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f spoolFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	if f.Source == "" {
		f.Source = "spool"
	}
	userID := chat.NormalizeUserID(f.UserID)
	res, err := s.Knowledge.IngestBatch(context.Background(), f.Summaries, userID, f.Source)
	if err != nil {
		return err
	}
	s.logger.Printf("ingested %s: %s (%d documents, %d skipped)", filepath.Base(path), res.Status, res.Count, res.Skipped)
	return nil
}

// isDue determines if a cronSpec should fire now given the last run time.
// Supports "@daily", "@hourly", and standard 5-field cron expressions.
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "", "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			// Fallback: treat as @daily if invalid
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}
