package run

import "time"

// Create is the payload that registers a run. Re-posting an existing id is
// not an error: the payload is merged over the stored record, last writer
// wins per supplied field.
type Create struct {
	ID          string         `json:"id"`
	Name        string         `json:"name,omitempty"`
	RunType     Type           `json:"run_type,omitempty"`
	ProjectName string         `json:"project_name,omitempty"`
	StartTime   *time.Time     `json:"start_time,omitempty"`
	EndTime     *time.Time     `json:"end_time,omitempty"`
	ParentRunID string         `json:"parent_run_id,omitempty"`
	Inputs      map[string]any `json:"inputs,omitempty"`
	Outputs     map[string]any `json:"outputs,omitempty"`
	Error       *string        `json:"error,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
}

// Update is a partial patch. Nil fields mean "leave unchanged"; no field is
// clearable, so an explicit JSON null decodes to nil and is treated the same
// as absence. Terminal fields (end_time, error) are therefore never unset,
// which is what keeps status transitions one-way.
type Update struct {
	ID          string         `json:"id"`
	Name        *string        `json:"name,omitempty"`
	RunType     *Type          `json:"run_type,omitempty"`
	ProjectName *string        `json:"project_name,omitempty"`
	StartTime   *time.Time     `json:"start_time,omitempty"`
	EndTime     *time.Time     `json:"end_time,omitempty"`
	ParentRunID *string        `json:"parent_run_id,omitempty"`
	Inputs      map[string]any `json:"inputs,omitempty"`
	Outputs     map[string]any `json:"outputs,omitempty"`
	Error       *string        `json:"error,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
}

// ApplyCreate merges a create payload over an existing record, or builds a
// fresh record when existing is nil. The returned run has its derived fields
// (status, duration) recomputed.
func ApplyCreate(existing *Run, c *Create, now time.Time) Run {
	var r Run
	if existing != nil {
		r = *existing
	} else {
		r = Run{ID: c.ID, CreatedAt: now}
	}

	if c.Name != "" {
		r.Name = c.Name
	}
	if c.RunType != "" {
		r.RunType = c.RunType
	}
	if c.ProjectName != "" {
		r.ProjectName = c.ProjectName
	}
	if c.StartTime != nil {
		r.StartTime = c.StartTime
	}
	if c.EndTime != nil {
		r.EndTime = c.EndTime
	}
	if c.ParentRunID != "" {
		r.ParentRunID = c.ParentRunID
	}
	if c.Inputs != nil {
		r.Inputs = c.Inputs
	}
	if c.Outputs != nil {
		r.Outputs = c.Outputs
	}
	if c.Error != nil {
		r.Error = c.Error
	}
	if c.Extra != nil {
		r.Extra = c.Extra
	}
	if c.Tags != nil {
		r.Tags = c.Tags
	}

	r.finalize(now)
	return r
}

// ApplyUpdate merges a patch over an existing record. When existing is nil
// the patch materializes a placeholder record that a later create completes
// (deferred create-on-arrival).
func ApplyUpdate(existing *Run, u *Update, now time.Time) Run {
	var r Run
	if existing != nil {
		r = *existing
	} else {
		r = Run{ID: u.ID, CreatedAt: now}
	}

	if u.Name != nil {
		r.Name = *u.Name
	}
	if u.RunType != nil {
		r.RunType = *u.RunType
	}
	if u.ProjectName != nil {
		r.ProjectName = *u.ProjectName
	}
	if u.StartTime != nil {
		r.StartTime = u.StartTime
	}
	if u.EndTime != nil {
		r.EndTime = u.EndTime
	}
	if u.ParentRunID != nil {
		r.ParentRunID = *u.ParentRunID
	}
	if u.Inputs != nil {
		r.Inputs = u.Inputs
	}
	if u.Outputs != nil {
		r.Outputs = u.Outputs
	}
	if u.Error != nil {
		r.Error = u.Error
	}
	if u.Extra != nil {
		r.Extra = u.Extra
	}
	if u.Tags != nil {
		r.Tags = u.Tags
	}

	r.finalize(now)
	return r
}
