package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	// ErrOverlap is the non-overlap constraint rejecting a row.
	ErrOverlap = errors.New("booking overlaps an existing booking")
)

const overlapMessage = "booking overlap"

// OverlapError identifies which row of a batch the constraint rejected.
type OverlapError struct {
	Index int
	Start time.Time
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("%v: row %d starting %s", ErrOverlap, e.Index, e.Start.UTC().Format(time.RFC3339))
}

func (e *OverlapError) Is(target error) bool {
	return target == ErrOverlap
}

func isOverlapViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintTrigger {
		return true
	}
	return err != nil && strings.Contains(err.Error(), overlapMessage)
}
