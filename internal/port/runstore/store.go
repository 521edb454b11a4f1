// Package runstore defines the port interface for durable run storage.
// The core assumes nothing about the engine beyond these operations being
// individually atomic per run id.
package runstore

import (
	"context"
	"time"

	"github.com/runlens/runlens/internal/domain/run"
)

// Filter narrows a Query. Zero values mean "no constraint".
type Filter struct {
	RootsOnly    bool
	Project      string
	Status       run.Status
	Search       string // case-insensitive substring match on name
	StartTimeGte *time.Time
	StartTimeLte *time.Time
}

// Page controls offset pagination. Results are ordered by start time
// descending (placeholders last) with ties broken by id, so pages are stable
// for a stable dataset.
type Page struct {
	Limit  int
	Offset int
}

// Distribution is the aggregate snapshot produced by Aggregate. All counts
// come from one consistent view of the store: no count may reflect a
// partially applied merge.
type Distribution struct {
	TotalRuns       int                  `json:"total_runs"`
	ByStatus        map[string]int       `json:"by_status"`
	ByRunType       map[string]int       `json:"by_run_type"`
	ByProject       map[string]int       `json:"by_project"`
	RecentRuns      int                  `json:"recent_runs"`
	ProjectActivity map[string]time.Time `json:"project_activity"`
}

// Store is the port interface for run persistence.
type Store interface {
	// Get returns the run with the given id, or domain.ErrNotFound.
	Get(ctx context.Context, id string) (*run.Run, error)

	// Upsert writes the full record for r.ID, inserting or replacing it as
	// one atomic operation.
	Upsert(ctx context.Context, r *run.Run) error

	// ListChildren returns every run whose parent is any of parentIDs.
	// One call per breadth-first level keeps hierarchy resolution bounded
	// by tree depth rather than node count.
	ListChildren(ctx context.Context, parentIDs []string) ([]run.Run, error)

	// Query returns a page of runs matching the filter plus the total
	// matching count independent of page size.
	Query(ctx context.Context, f Filter, p Page) ([]run.Run, int, error)

	// Aggregate returns grouped counts over the full run population.
	// recentSince bounds the trailing-activity count and is supplied by the
	// caller so the window is always relative to query time.
	Aggregate(ctx context.Context, recentSince time.Time) (*Distribution, error)
}
