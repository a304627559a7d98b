package scheduling

import "roombook/internal/models"

// FirstConflict returns the first booking of roomID that blocks window, or nil.
// Cancelled bookings never block.
func FirstConflict(roomID int64, window Occurrence, existing []*models.Booking) *models.Booking {
	for _, b := range existing {
		if b == nil || b.RoomID != roomID || b.Status == models.StatusCancelled {
			continue
		}
		if Overlaps(window.Start, window.End, b.StartTime, b.EndTime) {
			return b
		}
	}
	return nil
}

// IsAvailable reports whether roomID is free for window given the existing bookings.
func IsAvailable(roomID int64, window Occurrence, existing []*models.Booking) bool {
	return FirstConflict(roomID, window, existing) == nil
}

// SuggestAlternatives returns the candidates that are free for window, in
// candidate order. bookings may span any number of rooms.
func SuggestAlternatives(window Occurrence, candidates []*models.Room, bookings []*models.Booking) []*models.Room {
	byRoom := make(map[int64][]*models.Booking, len(candidates))
	for _, b := range bookings {
		if b == nil {
			continue
		}
		byRoom[b.RoomID] = append(byRoom[b.RoomID], b)
	}

	free := make([]*models.Room, 0, len(candidates))
	for _, r := range candidates {
		if r == nil {
			continue
		}
		if IsAvailable(r.ID, window, byRoom[r.ID]) {
			free = append(free, r)
		}
	}
	return free
}

// CheckSeries walks occurrences in order and returns a ConflictError for the
// first one that collides with existing.
func CheckSeries(roomID int64, occurrences []Occurrence, existing []*models.Booking) error {
	for _, occ := range occurrences {
		if b := FirstConflict(roomID, occ, existing); b != nil {
			return &ConflictError{RoomID: roomID, Occurrence: occ, Existing: b}
		}
	}
	return nil
}
