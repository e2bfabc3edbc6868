package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/opencourtdata/judgment-crawler/internal/crawler"
)

// Store keeps crawl progress in a single JSON file keyed by court code.
// Every checkpoint rewrites the whole file through a temp file and
// rename, so a crash never leaves a torn file behind. It implements
// crawler.ProgressTracker.
type Store struct {
	path string

	mu       sync.Mutex
	progress map[string]crawler.CourtProgress
}

// NewStore loads existing progress from path, or starts empty when the
// file does not exist yet.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:     path,
		progress: make(map[string]crawler.CourtProgress),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read progress file: %w", err)
	}
	if err := json.Unmarshal(data, &s.progress); err != nil {
		return nil, fmt.Errorf("parse progress file %s: %w", path, err)
	}
	return s, nil
}

// Get returns the recorded progress for a court, or the zero value when
// the court has never been crawled.
func (s *Store) Get(court string) (crawler.CourtProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress[court], nil
}

// Checkpoint merges p into the court's record and persists. LastDate
// never moves backwards; failed dates accumulate without duplicates.
func (s *Store) Checkpoint(court string, p crawler.CourtProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.progress[court]
	if p.LastDate > cur.LastDate {
		cur.LastDate = p.LastDate
	}
	cur.FailedDates = mergeDates(cur.FailedDates, p.FailedDates)
	s.progress[court] = cur

	return s.flushLocked()
}

// ClearFailure removes one failed date from a court's record, used after
// a retry pass succeeds.
func (s *Store) ClearFailure(court, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.progress[court]
	if !ok {
		return nil
	}
	kept := cur.FailedDates[:0]
	for _, d := range cur.FailedDates {
		if d != date {
			kept = append(kept, d)
		}
	}
	cur.FailedDates = kept
	s.progress[court] = cur

	return s.flushLocked()
}

// Snapshot returns a copy of all per-court progress.
func (s *Store) Snapshot() map[string]crawler.CourtProgress {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]crawler.CourtProgress, len(s.progress))
	for k, v := range s.progress {
		cp := v
		cp.FailedDates = append([]string(nil), v.FailedDates...)
		out[k] = cp
	}
	return out
}

func (s *Store) flushLocked() error {
	data, err := json.MarshalIndent(s.progress, "", "  ")
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create progress dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".progress-*.json")
	if err != nil {
		return fmt.Errorf("create temp progress file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp progress file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp progress file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace progress file: %w", err)
	}
	return nil
}

func mergeDates(existing, incoming []string) []string {
	if len(incoming) == 0 {
		return existing
	}
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged := make([]string, 0, len(existing)+len(incoming))
	for _, d := range existing {
		if _, ok := seen[d]; !ok {
			seen[d] = struct{}{}
			merged = append(merged, d)
		}
	}
	for _, d := range incoming {
		if _, ok := seen[d]; !ok {
			seen[d] = struct{}{}
			merged = append(merged, d)
		}
	}
	sort.Strings(merged)
	return merged
}
