package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"roombook/internal/models"
)

const bookingColumns = `b.id, b.room_id, r.name, b.title, b.description, b.start_time, b.end_time,
	b.status, b.created_by, b.approved_by, b.recurrence_pattern, b.recurrence_end_date,
	b.recurrence_id, b.version, b.created_at, b.updated_at`

const bookingFrom = ` FROM bookings b JOIN rooms r ON r.id = b.room_id`

const insertBookingQuery = `INSERT INTO bookings (
		room_id, title, description, start_time, end_time, status, created_by, approved_by,
		recurrence_pattern, recurrence_end_date, recurrence_id, version, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertBookings persists a series as one unit of work: either every row is
// stored or none is. A row rejected by the non-overlap constraint yields an
// *OverlapError naming its position.
func (db *DB) InsertBookings(ctx context.Context, bookings []*models.Booking) error {
	if len(bookings) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, insertBookingQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	ts := now()
	ids := make([]int64, len(bookings))
	for i, b := range bookings {
		result, err := stmt.ExecContext(ctx,
			b.RoomID,
			b.Title,
			b.Description,
			formatTime(b.StartTime),
			formatTime(b.EndTime),
			b.Status,
			b.CreatedBy,
			nullInt64(b.ApprovedBy),
			recurrencePattern(b.RecurrencePattern),
			nullTime(b.RecurrenceEndDate),
			nullString(b.RecurrenceID),
			1,
			formatTime(ts),
			formatTime(ts),
		)
		if err != nil {
			if isOverlapViolation(err) {
				return &OverlapError{Index: i, Start: b.StartTime}
			}
			return fmt.Errorf("failed to insert booking %d of %d: %w", i+1, len(bookings), err)
		}
		if ids[i], err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bookings: %w", err)
	}

	for i, b := range bookings {
		b.ID = ids[i]
		b.Version = 1
		b.CreatedAt = ts
		b.UpdatedAt = ts
	}
	return nil
}

// InsertBooking stores a single booking.
func (db *DB) InsertBooking(ctx context.Context, booking *models.Booking) error {
	return db.InsertBookings(ctx, []*models.Booking{booking})
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	b, err := scanBooking(db.QueryRowContext(ctx, `SELECT `+bookingColumns+bookingFrom+` WHERE b.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// ListBookings returns the bookings matching filter ordered by start time.
func (db *DB) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	var (
		where []string
		args  []any
	)
	if filter.RoomID != 0 {
		where = append(where, "b.room_id = ?")
		args = append(args, filter.RoomID)
	}
	if filter.CreatedBy != 0 {
		where = append(where, "b.created_by = ?")
		args = append(args, filter.CreatedBy)
	}
	if filter.RecurrenceID != "" {
		where = append(where, "b.recurrence_id = ?")
		args = append(args, filter.RecurrenceID)
	}
	if len(filter.ExcludeStatus) > 0 {
		where = append(where, "b.status NOT IN (?"+strings.Repeat(", ?", len(filter.ExcludeStatus)-1)+")")
		for _, s := range filter.ExcludeStatus {
			args = append(args, s)
		}
	}
	if !filter.From.IsZero() {
		where = append(where, "b.end_time > ?")
		args = append(args, formatTime(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "b.start_time < ?")
		args = append(args, formatTime(filter.To))
	}

	query := `SELECT ` + bookingColumns + bookingFrom
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY b.start_time, b.id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

// UpdateBookingStatusWithVersion moves a booking to status if nobody changed
// it since fromVersion. actorID, when set, is recorded as the approver.
func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id, fromVersion int64, status string, actorID *int64) error {
	query := `UPDATE bookings SET status = ?, approved_by = COALESCE(?, approved_by), version = version + 1, updated_at = ?
              WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, status, nullInt64(actorID), formatTime(now()), id, fromVersion)
	if err != nil {
		if isOverlapViolation(err) {
			return &OverlapError{}
		}
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// UpdateBookingWithVersion stores new title, description and window for b.
func (db *DB) UpdateBookingWithVersion(ctx context.Context, b *models.Booking) error {
	ts := now()
	query := `UPDATE bookings SET title = ?, description = ?, start_time = ?, end_time = ?,
                     version = version + 1, updated_at = ?
              WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query,
		b.Title, b.Description, formatTime(b.StartTime), formatTime(b.EndTime), formatTime(ts), b.ID, b.Version)
	if err != nil {
		if isOverlapViolation(err) {
			return &OverlapError{Start: b.StartTime}
		}
		return fmt.Errorf("failed to update booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	b.Version++
	b.UpdatedAt = ts
	return nil
}

// CancelSeries cancels the live occurrences of a series starting at or after from.
func (db *DB) CancelSeries(ctx context.Context, recurrenceID string, from time.Time) (int64, error) {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ?
              WHERE recurrence_id = ? AND start_time >= ? AND status IN (?, ?)`
	result, err := db.ExecContext(ctx, query,
		models.StatusCancelled, formatTime(now()), recurrenceID, formatTime(from),
		models.StatusPending, models.StatusConfirmed)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel series: %w", err)
	}
	return result.RowsAffected()
}

// CompleteBookingsBefore marks confirmed bookings that ended by t as completed.
func (db *DB) CompleteBookingsBefore(ctx context.Context, t time.Time) (int64, error) {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ?
              WHERE status = ? AND end_time <= ?`
	result, err := db.ExecContext(ctx, query,
		models.StatusCompleted, formatTime(now()), models.StatusConfirmed, formatTime(t))
	if err != nil {
		return 0, fmt.Errorf("failed to complete bookings: %w", err)
	}
	return result.RowsAffected()
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b                    models.Booking
		start, end           string
		createdAt, updatedAt string
		approvedBy           sql.NullInt64
		recurrenceEnd        sql.NullString
		recurrenceID         sql.NullString
	)
	err := row.Scan(
		&b.ID, &b.RoomID, &b.RoomName, &b.Title, &b.Description, &start, &end,
		&b.Status, &b.CreatedBy, &approvedBy, &b.RecurrencePattern, &recurrenceEnd,
		&recurrenceID, &b.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan booking: %w", err)
	}

	if b.StartTime, err = parseTime(start); err != nil {
		return nil, err
	}
	if b.EndTime, err = parseTime(end); err != nil {
		return nil, err
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if b.RecurrenceEndDate, err = parseNullTime(recurrenceEnd); err != nil {
		return nil, err
	}
	if approvedBy.Valid {
		v := approvedBy.Int64
		b.ApprovedBy = &v
	}
	b.RecurrenceID = recurrenceID.String
	return &b, nil
}

func recurrencePattern(p string) string {
	if p == "" {
		return models.RecurrenceNone
	}
	return p
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
