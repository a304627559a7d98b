package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"roombook/internal/models"
)

const taskColumns = `id, task_type, booking_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at`

func (db *DB) CreateNotificationTask(ctx context.Context, task *models.NotificationTask) error {
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	query := `INSERT INTO notification_queue (task_type, booking_id, payload, status, retry_count, last_error, created_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	ts := now()
	result, err := db.ExecContext(ctx, query,
		task.TaskType,
		task.BookingID,
		task.Payload,
		task.Status,
		task.RetryCount,
		task.LastError,
		formatTime(ts),
		nullTime(task.NextRetryAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create notification task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	task.CreatedAt = ts
	return nil
}

// GetPendingNotificationTasks returns due tasks, oldest first. Tasks whose
// processing claim outlived the lease are due again.
func (db *DB) GetPendingNotificationTasks(ctx context.Context, limit int) ([]models.NotificationTask, error) {
	query := `SELECT ` + taskColumns + ` FROM notification_queue
              WHERE (status IN ('pending', 'retry') AND (next_retry_at IS NULL OR next_retry_at <= ?))
                 OR (status = 'processing' AND (claimed_at IS NULL OR claimed_at <= ?))
              ORDER BY created_at ASC, id ASC LIMIT ?`
	ts := now()
	return db.queryTasks(ctx, query, formatTime(ts), formatTime(ts.Add(-db.claimLease)), limit)
}

func (db *DB) GetFailedNotificationTasks(ctx context.Context) ([]models.NotificationTask, error) {
	query := `SELECT ` + taskColumns + ` FROM notification_queue WHERE status = 'failed' ORDER BY created_at DESC, id DESC`
	return db.queryTasks(ctx, query)
}

func (db *DB) UpdateNotificationTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var (
		query string
		args  []any
	)
	lastErr := sql.NullString{String: errMsg, Valid: errMsg != ""}

	switch status {
	case "retry":
		query = `UPDATE notification_queue SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []any{status, lastErr, nullTime(nextRetryAt), id}
	case models.TaskStatusCompleted, models.TaskStatusFailed:
		processed := now()
		query = `UPDATE notification_queue SET status = ?, last_error = ?, next_retry_at = ?, processed_at = ? WHERE id = ?`
		args = []any{status, lastErr, nullTime(nextRetryAt), nullTime(&processed), id}
	default:
		query = `UPDATE notification_queue SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []any{status, lastErr, nullTime(nextRetryAt), id}
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update notification task status: %w", err)
	}
	return nil
}

// ClaimNotificationTask marks a task as processing for the claim lease. It
// reports false when another consumer holds a live claim or the task is done.
func (db *DB) ClaimNotificationTask(ctx context.Context, id int64) (bool, error) {
	ts := now()
	result, err := db.ExecContext(ctx,
		`UPDATE notification_queue SET status = ?, claimed_at = ?
         WHERE id = ? AND (status IN ('pending', 'retry')
            OR (status = 'processing' AND (claimed_at IS NULL OR claimed_at <= ?)))`,
		models.TaskStatusProcessing, formatTime(ts), id, formatTime(ts.Add(-db.claimLease)))
	if err != nil {
		return false, fmt.Errorf("failed to claim notification task: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim notification task: %w", err)
	}
	return rows == 1, nil
}

func (db *DB) queryTasks(ctx context.Context, query string, args ...any) ([]models.NotificationTask, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notification tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.NotificationTask
	for rows.Next() {
		var (
			t                        models.NotificationTask
			createdAt                string
			lastErr                  sql.NullString
			processedAt, nextRetryAt sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.TaskType, &t.BookingID, &t.Payload, &t.Status, &t.RetryCount,
			&lastErr, &createdAt, &processedAt, &nextRetryAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification task: %w", err)
		}
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if t.ProcessedAt, err = parseNullTime(processedAt); err != nil {
			return nil, err
		}
		if t.NextRetryAt, err = parseNullTime(nextRetryAt); err != nil {
			return nil, err
		}
		if lastErr.Valid {
			s := lastErr.String
			t.LastError = &s
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
