package models

import "time"

type Room struct {
	ID                int64     `yaml:"id" json:"id"`
	Name              string    `yaml:"name" json:"name"`
	Capacity          int       `yaml:"capacity" json:"capacity"`
	Floor             int       `yaml:"floor" json:"floor"`
	Status            string    `yaml:"status" json:"status"`
	MinBookingTime    int       `yaml:"min_booking_time" json:"min_booking_time"`       // minutes, 0 = no lower bound
	MaxBookingTime    int       `yaml:"max_booking_time" json:"max_booking_time"`       // minutes, 0 = no upper bound
	MaxAdvanceBooking int       `yaml:"max_advance_booking" json:"max_advance_booking"` // days ahead, 0 = unlimited
	CancellationTime  int       `yaml:"cancellation_time" json:"cancellation_time"`     // minutes before start
	CreatedAt         time.Time `yaml:"-" json:"created_at"`
	UpdatedAt         time.Time `yaml:"-" json:"updated_at"`
}

func (r *Room) IsActive() bool {
	return r.Status == "" || r.Status == RoomStatusActive
}
