package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"roombook/internal/models"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// timeLayout keeps stored timestamps fixed width and lexically ordered so SQL
// comparisons on TEXT columns follow chronological order down to the
// nanosecond. Everything is stored in UTC.
const timeLayout = "2006-01-02 15:04:05.000000000"

type DB struct {
	*sql.DB
	path       string
	logger     *zerolog.Logger
	mu         sync.RWMutex
	roomsCache map[int64]*models.Room
	claimLease time.Duration
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// every connection would get its own empty database
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return &DB{
		DB:         sqlDB,
		path:       path,
		logger:     logger,
		roomsCache: make(map[int64]*models.Room),
		claimLease: models.NotificationClaimLease * time.Second,
	}, nil
}

// dsn opens write transactions with BEGIN IMMEDIATE so concurrent writers are
// serialized by SQLite before they read.
func dsn(path string) string {
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate&_foreign_keys=on", path)
}

// Path is the database file location.
func (db *DB) Path() string {
	return db.path
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            name_key TEXT NOT NULL UNIQUE,
            capacity INTEGER NOT NULL DEFAULT 0,
            floor INTEGER NOT NULL DEFAULT 0,
            status TEXT NOT NULL DEFAULT 'active',
            min_booking_time INTEGER NOT NULL DEFAULT 0,
            max_booking_time INTEGER NOT NULL DEFAULT 0,
            max_advance_booking INTEGER NOT NULL DEFAULT 0,
            cancellation_time INTEGER NOT NULL DEFAULT 0,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            room_id INTEGER NOT NULL REFERENCES rooms(id),
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            start_time TEXT NOT NULL,
            end_time TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            created_by INTEGER NOT NULL,
            approved_by INTEGER,
            recurrence_pattern TEXT NOT NULL DEFAULT 'none',
            recurrence_end_date TEXT,
            recurrence_id TEXT,
            version INTEGER NOT NULL DEFAULT 1,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL,
            CHECK (end_time > start_time)
        )`,
		// Non-overlap constraint for live bookings of one room, half-open intervals.
		`CREATE TRIGGER IF NOT EXISTS bookings_no_overlap_insert
        BEFORE INSERT ON bookings
        WHEN NEW.status != 'cancelled'
        BEGIN
            SELECT RAISE(ABORT, '` + overlapMessage + `')
            WHERE EXISTS (
                SELECT 1 FROM bookings b
                WHERE b.room_id = NEW.room_id
                  AND b.status != 'cancelled'
                  AND b.start_time < NEW.end_time
                  AND NEW.start_time < b.end_time
            );
        END`,
		`CREATE TRIGGER IF NOT EXISTS bookings_no_overlap_update
        BEFORE UPDATE OF room_id, start_time, end_time, status ON bookings
        WHEN NEW.status != 'cancelled'
        BEGIN
            SELECT RAISE(ABORT, '` + overlapMessage + `')
            WHERE EXISTS (
                SELECT 1 FROM bookings b
                WHERE b.id != NEW.id
                  AND b.room_id = NEW.room_id
                  AND b.status != 'cancelled'
                  AND b.start_time < NEW.end_time
                  AND NEW.start_time < b.end_time
            );
        END`,
		`CREATE TABLE IF NOT EXISTS notification_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            booking_id INTEGER NOT NULL,
            payload TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at TEXT NOT NULL,
            processed_at TEXT,
            next_retry_at TEXT,
            claimed_at TEXT
        )`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_room_time ON bookings(room_id, start_time, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_created_by ON bookings(created_by)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_recurrence_id ON bookings(recurrence_id)`,
		`CREATE INDEX IF NOT EXISTS idx_notification_queue_status ON notification_queue(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// Health reports whether the database answers within ctx.
func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

type rowScanner interface {
	Scan(dest ...any) error
}
