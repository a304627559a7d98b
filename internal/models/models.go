package models

import "time"

// BookingFilter narrows ListBookings. Zero values do not filter.
type BookingFilter struct {
	RoomID        int64
	CreatedBy     int64
	RecurrenceID  string
	ExcludeStatus []string
	// From and To select bookings intersecting [From, To).
	From time.Time
	To   time.Time
}

// ActiveOnly returns a filter for the room's bookings that still block the calendar.
func ActiveOnly(roomID int64) BookingFilter {
	return BookingFilter{RoomID: roomID, ExcludeStatus: []string{StatusCancelled}}
}

func (f BookingFilter) Excludes(status string) bool {
	for _, s := range f.ExcludeStatus {
		if s == status {
			return true
		}
	}
	return false
}

// Availability describes a room's state for a requested window.
type Availability struct {
	RoomID       int64     `json:"room_id"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Available    bool      `json:"available"`
	Alternatives []*Room   `json:"alternatives,omitempty"`
}
