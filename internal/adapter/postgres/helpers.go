package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/runlens/runlens/internal/domain/run"
)

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

// scanRun reads one runs row in runColumns order.
func scanRun(row scannable) (run.Run, error) {
	var (
		r        run.Run
		runType  string
		status   string
		parentID *string
		inputs   []byte
		outputs  []byte
		extra    []byte
	)

	err := row.Scan(&r.ID, &r.Name, &runType, &r.ProjectName, &status,
		&r.StartTime, &r.EndTime, &parentID, &inputs, &outputs,
		&r.Error, &extra, &r.Tags, &r.DurationMS, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return run.Run{}, err
	}

	r.RunType = run.Type(runType)
	r.Status = run.Status(status)
	if parentID != nil {
		r.ParentRunID = *parentID
	}
	if err := unmarshalPayload(inputs, &r.Inputs); err != nil {
		return run.Run{}, fmt.Errorf("unmarshal inputs: %w", err)
	}
	if err := unmarshalPayload(outputs, &r.Outputs); err != nil {
		return run.Run{}, fmt.Errorf("unmarshal outputs: %w", err)
	}
	if err := unmarshalPayload(extra, &r.Extra); err != nil {
		return run.Run{}, fmt.Errorf("unmarshal extra: %w", err)
	}
	if len(r.Tags) == 0 {
		r.Tags = nil
	}
	return r, nil
}

// marshalPayload serializes a free-form payload for a JSONB column.
// nil maps become SQL NULL rather than the JSON literal "null".
func marshalPayload(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalPayload(data []byte, into *map[string]any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, into)
}

// nullIfEmpty returns nil for empty strings (for nullable columns).
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// pgTextArray converts a string slice to a pgx-compatible text array.
// nil slices become empty arrays to avoid SQL NULL.
func pgTextArray(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
