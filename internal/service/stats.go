package service

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/runlens/runlens/internal/port/cache"
	"github.com/runlens/runlens/internal/port/runstore"
)

const summaryCacheKey = "dashboard:summary"

// RecentWindow is the trailing window for the "recent runs" count.
const RecentWindow = 24 * time.Hour

// ProjectActivity is one entry of the recent-projects listing.
type ProjectActivity struct {
	Project      string    `json:"project"`
	Runs         int       `json:"runs"`
	LastActivity time.Time `json:"last_activity"`
}

// Summary is the dashboard aggregate snapshot.
type Summary struct {
	Stats          *runstore.Distribution `json:"stats"`
	RecentProjects []ProjectActivity      `json:"recent_projects"`
	Timestamp      time.Time              `json:"timestamp"`
}

// StatsService derives aggregate statistics from the run store. Snapshots
// are cached briefly and concurrent recomputation collapses into a single
// store round-trip, so summary reads never pile onto the ingestion path.
type StatsService struct {
	store runstore.Store
	cache cache.Cache
	ttl   time.Duration
	sf    singleflight.Group
	now   func() time.Time
}

// NewStatsService creates a StatsService. cache may be nil to disable
// snapshot caching (every read recomputes).
func NewStatsService(store runstore.Store, c cache.Cache, ttl time.Duration) *StatsService {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &StatsService{
		store: store,
		cache: c,
		ttl:   ttl,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Summary returns the current aggregate snapshot. The recent-runs window is
// always computed relative to the query time, bounded by the cache TTL.
func (s *StatsService) Summary(ctx context.Context) (*Summary, error) {
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, summaryCacheKey); err == nil && ok {
			var cached Summary
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	v, err, _ := s.sf.Do(summaryCacheKey, func() (any, error) {
		return s.compute(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Summary), nil
}

// Invalidate drops the cached snapshot so the next read recomputes.
func (s *StatsService) Invalidate(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, summaryCacheKey)
	}
}

func (s *StatsService) compute(ctx context.Context) (*Summary, error) {
	now := s.now()
	dist, err := s.store.Aggregate(ctx, now.Add(-RecentWindow))
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Stats:          dist,
		RecentProjects: recentProjects(dist),
		Timestamp:      now,
	}

	if s.cache != nil {
		if data, err := json.Marshal(summary); err == nil {
			_ = s.cache.Set(ctx, summaryCacheKey, data, s.ttl)
		}
	}
	return summary, nil
}

// recentProjects flattens per-project activity, most recent first.
func recentProjects(d *runstore.Distribution) []ProjectActivity {
	out := make([]ProjectActivity, 0, len(d.ProjectActivity))
	for name, last := range d.ProjectActivity {
		out = append(out, ProjectActivity{
			Project:      name,
			Runs:         d.ByProject[name],
			LastActivity: last,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].Project < out[j].Project
		}
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}
