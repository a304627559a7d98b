package scheduling

import (
	"errors"
	"fmt"
	"time"

	"roombook/internal/models"
)

// ValidationError reports malformed booking input. Field names the offending input.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func validationError(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// NewValidationError builds a ValidationError for callers outside the package.
func NewValidationError(field, msg string) error {
	return validationError(field, msg)
}

// RecurrenceRangeError is returned when a series would end more than MaxRecurrenceDays after its start.
type RecurrenceRangeError struct {
	Start time.Time
	End   time.Time
	Limit time.Time
}

func (e *RecurrenceRangeError) Error() string {
	return fmt.Sprintf("recurrence end date %s exceeds the one-year limit (%s)",
		e.End.Format(time.DateOnly), e.Limit.Format(time.DateOnly))
}

type InvalidRecurrencePatternError struct {
	Pattern string
}

func (e *InvalidRecurrencePatternError) Error() string {
	return fmt.Sprintf("invalid recurrence pattern %q", e.Pattern)
}

// ConflictError carries the first occurrence that collides with a stored booking.
type ConflictError struct {
	RoomID     int64
	Occurrence Occurrence
	// Existing is the booking that blocks the occurrence, nil when the store
	// rejected the row without telling which booking it collided with.
	Existing *models.Booking
	// Location renders Date; UTC when nil.
	Location *time.Location
}

// Date is the conflicting occurrence's calendar date in the booking location.
func (e *ConflictError) Date() string {
	loc := e.Location
	if loc == nil {
		loc = time.UTC
	}
	return e.Occurrence.Start.In(loc).Format(time.DateOnly)
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("room is already booked on %s", e.Date())
}

// StoreError wraps a failure of the booking store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("booking store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsUserError reports whether err should be shown to the user verbatim.
func IsUserError(err error) bool {
	var (
		ve *ValidationError
		re *RecurrenceRangeError
		pe *InvalidRecurrencePatternError
		ce *ConflictError
	)
	return errors.As(err, &ve) || errors.As(err, &re) || errors.As(err, &pe) || errors.As(err, &ce)
}
