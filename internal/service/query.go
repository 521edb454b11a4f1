package service

import (
	"context"

	"github.com/runlens/runlens/internal/domain/run"
	"github.com/runlens/runlens/internal/port/runstore"
)

// RootList is one page of root runs plus the paging envelope.
type RootList struct {
	Runs    []run.Run `json:"runs"`
	Total   int       `json:"total"`
	Limit   int       `json:"limit"`
	Offset  int       `json:"offset"`
	HasMore bool      `json:"has_more"`
}

// QueryService is the read-only façade composed by the dashboard: root
// listing, hierarchy retrieval and the aggregate summary. It never sits on
// the ingestion path.
type QueryService struct {
	store     runstore.Store
	hierarchy *HierarchyService
	stats     *StatsService
}

// NewQueryService creates a new QueryService.
func NewQueryService(store runstore.Store, h *HierarchyService, st *StatsService) *QueryService {
	return &QueryService{store: store, hierarchy: h, stats: st}
}

// ListRoots returns a filtered, paginated page of root runs. Total counts
// all matches independent of page size.
func (s *QueryService) ListRoots(ctx context.Context, f runstore.Filter, p runstore.Page) (*RootList, error) {
	f.RootsOnly = true
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}

	runs, total, err := s.store.Query(ctx, f, p)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []run.Run{}
	}

	return &RootList{
		Runs:    runs,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.Offset+len(runs) < total,
	}, nil
}

// Hierarchy resolves the descendant tree for rootID.
func (s *QueryService) Hierarchy(ctx context.Context, rootID string) (*Tree, error) {
	return s.hierarchy.Resolve(ctx, rootID)
}

// Summary returns the dashboard aggregate snapshot.
func (s *QueryService) Summary(ctx context.Context) (*Summary, error) {
	return s.stats.Summary(ctx)
}
