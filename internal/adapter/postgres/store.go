package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/runlens/runlens/internal/domain"
	"github.com/runlens/runlens/internal/domain/run"
	"github.com/runlens/runlens/internal/port/runstore"
)

const runColumns = `id, name, run_type, project_name, status, start_time, end_time,
	parent_run_id, inputs, outputs, error, extra, tags, duration_ms, created_at, updated_at`

// Store implements runstore.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Get returns the run with the given id.
func (s *Store) Get(ctx context.Context, id string) (*run.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = $1`, id)

	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get run %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &r, nil
}

// Upsert writes the full record in a single statement, so each run's merge
// is atomic regardless of concurrent readers.
func (s *Store) Upsert(ctx context.Context, r *run.Run) error {
	inputs, err := marshalPayload(r.Inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}
	outputs, err := marshalPayload(r.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}
	extra, err := marshalPayload(r.Extra)
	if err != nil {
		return fmt.Errorf("marshal extra: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, name, run_type, project_name, status, start_time, end_time,
			parent_run_id, inputs, outputs, error, extra, tags, duration_ms, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			run_type = EXCLUDED.run_type,
			project_name = EXCLUDED.project_name,
			status = EXCLUDED.status,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			parent_run_id = EXCLUDED.parent_run_id,
			inputs = EXCLUDED.inputs,
			outputs = EXCLUDED.outputs,
			error = EXCLUDED.error,
			extra = EXCLUDED.extra,
			tags = EXCLUDED.tags,
			duration_ms = EXCLUDED.duration_ms,
			updated_at = EXCLUDED.updated_at`,
		r.ID, r.Name, string(r.RunType), r.ProjectName, string(r.Status),
		r.StartTime, r.EndTime, nullIfEmpty(r.ParentRunID),
		inputs, outputs, r.Error, extra, pgTextArray(r.Tags),
		r.DurationMS, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert run %s: %w", r.ID, err)
	}
	return nil
}

// ListChildren returns every run whose parent is any of parentIDs.
func (s *Store) ListChildren(ctx context.Context, parentIDs []string) ([]run.Run, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+runColumns+` FROM runs WHERE parent_run_id = ANY($1)`, parentIDs)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	var runs []run.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Query returns a page of runs matching the filter plus the total count.
func (s *Store) Query(ctx context.Context, f runstore.Filter, p runstore.Page) ([]run.Run, int, error) {
	where, args := buildFilter(f)

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM runs WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, p.Offset)
	rows, err := s.pool.Query(ctx,
		`SELECT `+runColumns+` FROM runs WHERE `+where+
			fmt.Sprintf(` ORDER BY start_time DESC NULLS LAST, id ASC LIMIT $%d OFFSET $%d`,
				len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []run.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, r)
	}
	return runs, total, rows.Err()
}

// Aggregate computes all distributions inside one repeatable-read
// transaction so the snapshot is consistent across the grouped queries.
func (s *Store) Aggregate(ctx context.Context, recentSince time.Time) (*runstore.Distribution, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("begin aggregate tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	d := &runstore.Distribution{
		ByStatus:        make(map[string]int),
		ByRunType:       make(map[string]int),
		ByProject:       make(map[string]int),
		ProjectActivity: make(map[string]time.Time),
	}

	if err := groupCount(ctx, tx,
		`SELECT status, count(*) FROM runs GROUP BY status`, d.ByStatus); err != nil {
		return nil, err
	}
	for _, n := range d.ByStatus {
		d.TotalRuns += n
	}

	if err := groupCount(ctx, tx,
		`SELECT run_type, count(*) FROM runs WHERE run_type <> '' GROUP BY run_type`, d.ByRunType); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx,
		`SELECT project_name, count(*), max(updated_at)
		 FROM runs WHERE project_name <> '' GROUP BY project_name`)
	if err != nil {
		return nil, fmt.Errorf("aggregate projects: %w", err)
	}
	for rows.Next() {
		var name string
		var n int
		var last time.Time
		if err := rows.Scan(&name, &n, &last); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan project aggregate: %w", err)
		}
		d.ByProject[name] = n
		d.ProjectActivity[name] = last
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.QueryRow(ctx,
		`SELECT count(*) FROM runs WHERE start_time >= $1`, recentSince).Scan(&d.RecentRuns); err != nil {
		return nil, fmt.Errorf("aggregate recent: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit aggregate tx: %w", err)
	}
	return d, nil
}

// buildFilter renders the WHERE clause and its positional args.
func buildFilter(f runstore.Filter) (string, []any) {
	conds := []string{"TRUE"}
	var args []any
	add := func(format string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(format, len(args)))
	}

	if f.RootsOnly {
		conds = append(conds, "parent_run_id IS NULL")
	}
	if f.Project != "" {
		add("project_name = $%d", f.Project)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Search != "" {
		add("name ILIKE '%%' || $%d || '%%'", f.Search)
	}
	if f.StartTimeGte != nil {
		add("start_time >= $%d", *f.StartTimeGte)
	}
	if f.StartTimeLte != nil {
		add("start_time <= $%d", *f.StartTimeLte)
	}
	return strings.Join(conds, " AND "), args
}

func groupCount(ctx context.Context, tx pgx.Tx, query string, into map[string]int) error {
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("aggregate query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan aggregate: %w", err)
		}
		into[key] = n
	}
	return rows.Err()
}
