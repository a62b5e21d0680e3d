package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"terminbuch/internal/availability"
	"terminbuch/internal/models"
)

func (db *DB) UpsertOpeningHours(ctx context.Context, oh *models.OpeningHours) error {
	query := `INSERT INTO opening_hours (id, salon_id, day_of_week, open_time_minutes, close_time_minutes, is_closed)
              VALUES (?, ?, ?, ?, ?, ?)
              ON CONFLICT(salon_id, day_of_week) DO UPDATE SET
                open_time_minutes = excluded.open_time_minutes,
                close_time_minutes = excluded.close_time_minutes,
                is_closed = excluded.is_closed`
	_, err := db.ExecContext(ctx, query, oh.ID, oh.SalonID, oh.DayOfWeek,
		oh.OpenTimeMinutes, oh.CloseTimeMinutes, oh.IsClosed)
	if err != nil {
		return fmt.Errorf("failed to upsert opening hours: %w", err)
	}
	return nil
}

// OpeningHoursFor returns nil without error when no row exists for the
// weekday: an unknown day counts as closed.
func (db *DB) OpeningHoursFor(ctx context.Context, salonID string, day models.Weekday) (*models.OpeningHours, error) {
	query := `SELECT id, salon_id, day_of_week, open_time_minutes, close_time_minutes, is_closed
              FROM opening_hours WHERE salon_id = ? AND day_of_week = ?`
	var oh models.OpeningHours
	err := db.QueryRowContext(ctx, query, salonID, day).Scan(
		&oh.ID, &oh.SalonID, &oh.DayOfWeek, &oh.OpenTimeMinutes, &oh.CloseTimeMinutes, &oh.IsClosed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get opening hours: %w", err)
	}
	return &oh, nil
}

func (db *DB) UpsertStaffWorkingHours(ctx context.Context, wh *models.StaffWorkingHours) error {
	query := `INSERT INTO staff_working_hours (id, staff_id, day_of_week, start_time_minutes, end_time_minutes, is_day_off)
              VALUES (?, ?, ?, ?, ?, ?)
              ON CONFLICT(staff_id, day_of_week) DO UPDATE SET
                start_time_minutes = excluded.start_time_minutes,
                end_time_minutes = excluded.end_time_minutes,
                is_day_off = excluded.is_day_off`
	_, err := db.ExecContext(ctx, query, wh.ID, wh.StaffID, wh.DayOfWeek,
		wh.StartTimeMinutes, wh.EndTimeMinutes, wh.IsDayOff)
	if err != nil {
		return fmt.Errorf("failed to upsert staff working hours: %w", err)
	}
	return nil
}

func (db *DB) WorkingHoursFor(ctx context.Context, staffID string, day models.Weekday) (*models.StaffWorkingHours, error) {
	query := `SELECT id, staff_id, day_of_week, start_time_minutes, end_time_minutes, is_day_off
              FROM staff_working_hours WHERE staff_id = ? AND day_of_week = ?`
	var wh models.StaffWorkingHours
	err := db.QueryRowContext(ctx, query, staffID, day).Scan(
		&wh.ID, &wh.StaffID, &wh.DayOfWeek, &wh.StartTimeMinutes, &wh.EndTimeMinutes, &wh.IsDayOff,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get staff working hours: %w", err)
	}
	return &wh, nil
}

func (db *DB) AddBlockedTime(ctx context.Context, bt *models.BlockedTime) error {
	query := `INSERT INTO blocked_times (id, salon_id, staff_id, starts_at, ends_at, block_type, reason)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query, bt.ID, bt.SalonID, bt.StaffID,
		bt.StartsAt.UTC(), bt.EndsAt.UTC(), bt.BlockType, bt.Reason)
	if err != nil {
		return fmt.Errorf("failed to add blocked time: %w", err)
	}
	return nil
}

// BusyIntervals returns, per staff member, the buffer-widened occupied
// intervals within [from, to): appointments in occupying statuses (stale
// holds excluded) plus blocked time, staff-specific or salon-wide. The whole
// read runs in one transaction so callers see one consistent snapshot.
func (db *DB) BusyIntervals(ctx context.Context, staffIDs []string, from, to, now time.Time) (map[string][]availability.Interval, error) {
	if len(staffIDs) == 0 {
		return map[string][]availability.Interval{}, nil
	}

	tx, err := db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin snapshot read: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	placeholders := ""
	idArgs := make([]any, 0, len(staffIDs))
	for i, id := range staffIDs {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		idArgs = append(idArgs, id)
	}

	busy := make(map[string][]availability.Interval, len(staffIDs))

	// Occupying appointments. The time window is padded by the caller, so a
	// plain stored-interval overlap is enough here; buffers widen below.
	queryAppts := `SELECT staff_id, starts_at, ends_at, status, reserved_until,
                          buffer_before_minutes, buffer_after_minutes
                   FROM appointments
                   WHERE staff_id IN (` + placeholders + `)
                     AND status IN (?, ?, ?)
                     AND starts_at < ? AND ends_at > ?`
	args := append(append([]any{}, idArgs...),
		models.StatusReserved, models.StatusRequested, models.StatusConfirmed,
		to.UTC(), from.UTC())
	rows, err := tx.QueryContext(ctx, queryAppts, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read occupied intervals: %w", err)
	}
	for rows.Next() {
		var (
			staffID        string
			a              models.Appointment
			reservedUntil  sql.NullTime
			bufBefore, bufAfter int
		)
		if err := rows.Scan(&staffID, &a.StartsAt, &a.EndsAt, &a.Status, &reservedUntil,
			&bufBefore, &bufAfter); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan occupied interval: %w", err)
		}
		if reservedUntil.Valid {
			t := reservedUntil.Time
			a.ReservedUntil = &t
		}
		a.BufferBeforeMinutes = bufBefore
		a.BufferAfterMinutes = bufAfter
		if !a.OccupiesAt(now) {
			continue
		}
		busy[staffID] = append(busy[staffID], availability.Interval{
			Start: a.BusyStart(),
			End:   a.BusyEnd(),
		})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Blocked time. Rows with an empty staff_id block the whole salon.
	queryBlocked := `SELECT staff_id, starts_at, ends_at
                     FROM blocked_times
                     WHERE (staff_id IN (` + placeholders + `)
                            OR (staff_id = '' AND salon_id IN (SELECT DISTINCT salon_id FROM staff WHERE id IN (` + placeholders + `))))
                       AND starts_at < ? AND ends_at > ?`
	args = append(append(append([]any{}, idArgs...), idArgs...), to.UTC(), from.UTC())
	blockedRows, err := tx.QueryContext(ctx, queryBlocked, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read blocked time: %w", err)
	}
	defer blockedRows.Close()
	for blockedRows.Next() {
		var staffID string
		var iv availability.Interval
		if err := blockedRows.Scan(&staffID, &iv.Start, &iv.End); err != nil {
			return nil, fmt.Errorf("failed to scan blocked time: %w", err)
		}
		if staffID == "" {
			for _, id := range staffIDs {
				busy[id] = append(busy[id], iv)
			}
			continue
		}
		busy[staffID] = append(busy[staffID], iv)
	}
	if err := blockedRows.Err(); err != nil {
		return nil, err
	}

	for id := range busy {
		busy[id] = availability.Normalize(busy[id])
	}
	return busy, tx.Commit()
}
