package models

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

const (
	RecurrenceNone    = "none"
	RecurrenceDaily   = "daily"
	RecurrenceWeekly  = "weekly"
	RecurrenceMonthly = "monthly"
)

const (
	RoomStatusActive      = "active"
	RoomStatusMaintenance = "maintenance"
	RoomStatusInactive    = "inactive"
)

const (
	TaskStatusPending    = "pending"
	TaskStatusProcessing = "processing"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
)

const (
	// DefaultLockTTL bounds how long a room commit lock may be held, in seconds.
	DefaultLockTTL = 10

	// DefaultLockWait is how long a commit waits for a busy room, in seconds.
	DefaultLockWait = 5

	// WorkerQueueSize is the in-memory notification queue capacity.
	WorkerQueueSize = 1000

	// NotificationClaimLease is how long a claimed task may stay in processing
	// before polling hands it out again, in seconds.
	NotificationClaimLease = 5 * 60

	// DefaultCompletionInterval is the completion sweep period, in seconds.
	DefaultCompletionInterval = 5 * 60

	// Listings and exports without an explicit range cover these days around today.
	DefaultExportRangeDaysBefore = 30
	DefaultExportRangeDaysAfter  = 60
)
