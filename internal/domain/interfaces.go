package domain

import (
	"context"
	"time"

	"roombook/internal/models"
)

// BookingStore persists bookings. InsertBookings is one unit of work.
type BookingStore interface {
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	InsertBookings(ctx context.Context, bookings []*models.Booking) error
	UpdateBookingStatusWithVersion(ctx context.Context, id, fromVersion int64, status string, actorID *int64) error
	UpdateBookingWithVersion(ctx context.Context, booking *models.Booking) error
	CancelSeries(ctx context.Context, recurrenceID string, from time.Time) (int64, error)
	CompleteBookingsBefore(ctx context.Context, t time.Time) (int64, error)
}

// RoomStore is the persistent room directory.
type RoomStore interface {
	ListRooms(ctx context.Context) ([]*models.Room, error)
	GetRoom(ctx context.Context, id int64) (*models.Room, error)
	SyncRooms(ctx context.Context, rooms []*models.Room) error
}

// RoomLocker serializes commits per room. The returned unlock func must be called once.
type RoomLocker interface {
	Lock(ctx context.Context, roomID int64) (unlock func(), err error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// NotificationQueue hands booking changes to the notification worker.
type NotificationQueue interface {
	EnqueueTask(ctx context.Context, taskType string, booking *models.Booking) error
}

type NotificationTaskStore interface {
	CreateNotificationTask(ctx context.Context, task *models.NotificationTask) error
	GetPendingNotificationTasks(ctx context.Context, limit int) ([]models.NotificationTask, error)
	ClaimNotificationTask(ctx context.Context, id int64) (bool, error)
	UpdateNotificationTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// Clock lets services run against a fixed time in tests.
type Clock func() time.Time

// RateLimiter counts hits per key in fixed windows.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
