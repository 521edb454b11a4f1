// Package memory implements the run store port with an in-process map.
// It backs the "memory" storage driver for local development and serves as
// the store double in service and handler tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/runlens/runlens/internal/domain"
	"github.com/runlens/runlens/internal/domain/run"
	"github.com/runlens/runlens/internal/port/runstore"
)

// Store keeps all runs in a mutex-guarded map keyed by id.
type Store struct {
	mu   sync.RWMutex
	runs map[string]run.Run
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{runs: make(map[string]run.Run)}
}

// Get returns a copy of the run with the given id.
func (s *Store) Get(_ context.Context, id string) (*run.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("get run %s: %w", id, domain.ErrNotFound)
	}
	return &r, nil
}

// Upsert stores the full record, replacing any previous version atomically.
func (s *Store) Upsert(_ context.Context, r *run.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ID] = *r
	return nil
}

// ListChildren returns every run whose parent is any of parentIDs.
func (s *Store) ListChildren(_ context.Context, parentIDs []string) ([]run.Run, error) {
	parents := make(map[string]struct{}, len(parentIDs))
	for _, id := range parentIDs {
		parents[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []run.Run
	for _, r := range s.runs {
		if r.ParentRunID == "" {
			continue
		}
		if _, ok := parents[r.ParentRunID]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// Query returns a page of matching runs ordered by start time descending
// (placeholders last, ties by id) plus the total matching count.
func (s *Store) Query(_ context.Context, f runstore.Filter, p runstore.Page) ([]run.Run, int, error) {
	s.mu.RLock()
	var matched []run.Run
	for _, r := range s.runs {
		if matches(&r, f) {
			matched = append(matched, r)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := &matched[i], &matched[j]
		switch {
		case a.StartTime == nil && b.StartTime == nil:
			return a.ID < b.ID
		case a.StartTime == nil:
			return false
		case b.StartTime == nil:
			return true
		case a.StartTime.Equal(*b.StartTime):
			return a.ID < b.ID
		default:
			return a.StartTime.After(*b.StartTime)
		}
	})

	total := len(matched)
	if p.Offset >= total {
		return nil, total, nil
	}
	end := total
	if p.Limit > 0 && p.Offset+p.Limit < end {
		end = p.Offset + p.Limit
	}
	return matched[p.Offset:end], total, nil
}

// Aggregate computes grouped counts under one read lock, so the snapshot
// never mixes pre- and post-merge state of any record.
func (s *Store) Aggregate(_ context.Context, recentSince time.Time) (*runstore.Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := &runstore.Distribution{
		ByStatus:        make(map[string]int),
		ByRunType:       make(map[string]int),
		ByProject:       make(map[string]int),
		ProjectActivity: make(map[string]time.Time),
	}

	for _, r := range s.runs {
		d.TotalRuns++
		d.ByStatus[string(r.Status)]++
		if r.RunType != "" {
			d.ByRunType[string(r.RunType)]++
		}
		if r.ProjectName != "" {
			d.ByProject[r.ProjectName]++
			if last, ok := d.ProjectActivity[r.ProjectName]; !ok || r.UpdatedAt.After(last) {
				d.ProjectActivity[r.ProjectName] = r.UpdatedAt
			}
		}
		if r.StartTime != nil && !r.StartTime.Before(recentSince) {
			d.RecentRuns++
		}
	}
	return d, nil
}

func matches(r *run.Run, f runstore.Filter) bool {
	if f.RootsOnly && !r.IsRoot() {
		return false
	}
	if f.Project != "" && r.ProjectName != f.Project {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(r.Name), strings.ToLower(f.Search)) {
		return false
	}
	if f.StartTimeGte != nil && (r.StartTime == nil || r.StartTime.Before(*f.StartTimeGte)) {
		return false
	}
	if f.StartTimeLte != nil && (r.StartTime == nil || r.StartTime.After(*f.StartTimeLte)) {
		return false
	}
	return true
}
