// Package run defines the Run domain entity: one recorded unit of agent
// execution (an LLM call, tool invocation, chain step, or retrieval).
package run

import "time"

// Status represents the derived lifecycle state of a run. It is never set
// directly by producers: a run is running until an end time or error is
// recorded, then completed or failed depending on the error.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Type classifies what kind of execution a run records. The set is open:
// producers may send values outside this list and they are stored as-is.
type Type string

const (
	TypeChain     Type = "chain"
	TypeLLM       Type = "llm"
	TypeTool      Type = "tool"
	TypeRetrieval Type = "retrieval"
	TypeCustom    Type = "custom"
)

// Run is the central entity. StartTime is a pointer because a patch may
// arrive before its create: such a record exists as a placeholder that is
// filled in progressively, and required-for-create fields are only enforced
// when a create payload actually arrives.
type Run struct {
	ID          string         `json:"id"`
	Name        string         `json:"name,omitempty"`
	RunType     Type           `json:"run_type,omitempty"`
	ProjectName string         `json:"project_name,omitempty"`
	Status      Status         `json:"status"`
	StartTime   *time.Time     `json:"start_time,omitempty"`
	EndTime     *time.Time     `json:"end_time,omitempty"`
	ParentRunID string         `json:"parent_run_id,omitempty"`
	Inputs      map[string]any `json:"inputs,omitempty"`
	Outputs     map[string]any `json:"outputs,omitempty"`
	Error       *string        `json:"error,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	DurationMS  *int64         `json:"duration_ms,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// IsRoot reports whether the run has no parent.
func (r *Run) IsRoot() bool {
	return r.ParentRunID == ""
}

// IsPlaceholder reports whether the record was materialized by a patch that
// arrived before its create (no start time recorded yet).
func (r *Run) IsPlaceholder() bool {
	return r.StartTime == nil
}

// Terminal reports whether the run has left the running state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// deriveStatus computes the status from error and end time.
// failed iff error is set; completed iff end time is set without error.
func (r *Run) deriveStatus() Status {
	switch {
	case r.Error != nil:
		return StatusFailed
	case r.EndTime != nil:
		return StatusCompleted
	default:
		return StatusRunning
	}
}

// deriveDuration computes end - start in milliseconds, or nil when either
// bound is missing.
func (r *Run) deriveDuration() *int64 {
	if r.StartTime == nil || r.EndTime == nil {
		return nil
	}
	ms := r.EndTime.Sub(*r.StartTime).Milliseconds()
	return &ms
}

// finalize recomputes the derived fields after a merge.
func (r *Run) finalize(now time.Time) {
	r.Status = r.deriveStatus()
	r.DurationMS = r.deriveDuration()
	r.UpdatedAt = now
}

// Before orders runs by start time ascending with ties broken by id.
// Placeholder runs (no start time) sort after runs with one.
func (r *Run) Before(other *Run) bool {
	switch {
	case r.StartTime == nil && other.StartTime == nil:
		return r.ID < other.ID
	case r.StartTime == nil:
		return false
	case other.StartTime == nil:
		return true
	case r.StartTime.Equal(*other.StartTime):
		return r.ID < other.ID
	default:
		return r.StartTime.Before(*other.StartTime)
	}
}
