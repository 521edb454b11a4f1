package run

import (
	"fmt"

	"github.com/runlens/runlens/internal/domain"
)

// Validate checks the required creation fields. Run type is an open set and
// is deliberately not checked against the known constants.
func (c *Create) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required: %w", domain.ErrValidation)
	}
	if c.StartTime == nil {
		return fmt.Errorf("start_time is required: %w", domain.ErrValidation)
	}
	if c.ParentRunID == c.ID {
		return fmt.Errorf("run cannot be its own parent: %w", domain.ErrValidation)
	}
	return nil
}

// Validate checks that a patch carries the id of the run it targets.
func (u *Update) Validate() error {
	if u.ID == "" {
		return fmt.Errorf("id is required: %w", domain.ErrValidation)
	}
	if u.ParentRunID != nil && *u.ParentRunID == u.ID {
		return fmt.Errorf("run cannot be its own parent: %w", domain.ErrValidation)
	}
	return nil
}
