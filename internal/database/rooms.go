package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"roombook/internal/models"
	"roombook/internal/rooms"
)

const roomColumns = `id, name, capacity, floor, status, min_booking_time, max_booking_time,
	max_advance_booking, cancellation_time, created_at, updated_at`

// SyncRooms upserts the configured rooms. Rooms with ID 0 get a generated id.
func (db *DB) SyncRooms(ctx context.Context, list []*models.Room) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	ts := formatTime(now())
	for _, r := range list {
		if r.Status == "" {
			r.Status = models.RoomStatusActive
		}
		var id any
		if r.ID != 0 {
			id = r.ID
		}
		query := `INSERT INTO rooms (
				id, name, name_key, capacity, floor, status, min_booking_time, max_booking_time,
				max_advance_booking, cancellation_time, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				name_key = excluded.name_key,
				capacity = excluded.capacity,
				floor = excluded.floor,
				status = excluded.status,
				min_booking_time = excluded.min_booking_time,
				max_booking_time = excluded.max_booking_time,
				max_advance_booking = excluded.max_advance_booking,
				cancellation_time = excluded.cancellation_time,
				updated_at = excluded.updated_at`
		result, err := tx.ExecContext(ctx, query,
			id, r.Name, rooms.Normalize(r.Name), r.Capacity, r.Floor, r.Status,
			r.MinBookingTime, r.MaxBookingTime, r.MaxAdvanceBooking, r.CancellationTime, ts, ts,
		)
		if err != nil {
			return fmt.Errorf("failed to sync room %q: %w", r.Name, err)
		}
		if r.ID == 0 {
			if r.ID, err = result.LastInsertId(); err != nil {
				return fmt.Errorf("failed to get last insert id: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rooms: %w", err)
	}

	db.mu.Lock()
	db.roomsCache = make(map[int64]*models.Room, len(list))
	db.mu.Unlock()

	db.logger.Info().Int("count", len(list)).Msg("Rooms synchronized")
	return nil
}

// ListRooms returns all rooms ordered by id.
func (db *DB) ListRooms(ctx context.Context) ([]*models.Room, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	var list []*models.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rooms: %w", err)
	}

	db.mu.Lock()
	for _, r := range list {
		db.roomsCache[r.ID] = r
	}
	db.mu.Unlock()
	return list, nil
}

func (db *DB) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	db.mu.RLock()
	r, ok := db.roomsCache[id]
	db.mu.RUnlock()
	if ok {
		return r, nil
	}

	r, err := scanRoom(db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("room %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	db.mu.Lock()
	db.roomsCache[id] = r
	db.mu.Unlock()
	return r, nil
}

// FindRoomByName matches on the normalized name, so case and diacritics are ignored.
func (db *DB) FindRoomByName(ctx context.Context, name string) (*models.Room, error) {
	r, err := scanRoom(db.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE name_key = ?`, rooms.Normalize(name)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("room %q: %w", name, ErrNotFound)
	}
	return r, err
}

func scanRoom(row rowScanner) (*models.Room, error) {
	var (
		r                    models.Room
		createdAt, updatedAt string
	)
	err := row.Scan(
		&r.ID, &r.Name, &r.Capacity, &r.Floor, &r.Status, &r.MinBookingTime, &r.MaxBookingTime,
		&r.MaxAdvanceBooking, &r.CancellationTime, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan room: %w", err)
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}
