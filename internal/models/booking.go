package models

import "time"

type Booking struct {
	ID                int64      `json:"id"`
	RoomID            int64      `json:"room_id"`
	RoomName          string     `json:"room_name"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	StartTime         time.Time  `json:"start_time"`
	EndTime           time.Time  `json:"end_time"`
	Status            string     `json:"status"` // pending, confirmed, cancelled, completed
	CreatedBy         int64      `json:"created_by"`
	ApprovedBy        *int64     `json:"approved_by,omitempty"`
	RecurrencePattern string     `json:"recurrence_pattern"`
	RecurrenceEndDate *time.Time `json:"recurrence_end_date,omitempty"`
	RecurrenceID      string     `json:"recurrence_id,omitempty"`
	Version           int64      `json:"version"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the booking can no longer change state.
func (b *Booking) IsTerminal() bool {
	return b.Status == StatusCancelled || b.Status == StatusCompleted
}

// IsRecurring reports whether the booking belongs to a series.
func (b *Booking) IsRecurring() bool {
	return b.RecurrenceID != ""
}

func (b *Booking) Duration() time.Duration {
	return b.EndTime.Sub(b.StartTime)
}
