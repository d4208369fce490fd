package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Error kinds returned by ledger, timer and lifecycle operations. Callers match them with errors.Is.
var (
	ErrInvalidState         = errors.New("invalid state")
	ErrDuplicateElimination = errors.New("duplicate elimination")
	ErrRosterMismatch       = errors.New("player not on roster")
	ErrInvalidLevel         = errors.New("invalid blind level")
	ErrNotFound             = errors.New("not found")
)

// notFound translates gorm's missing-row error and wraps everything else with what was being loaded.
func notFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, what, id)
	}
	return fmt.Errorf("load %s %s: %w", what, id, err)
}
