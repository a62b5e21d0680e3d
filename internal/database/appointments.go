package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"terminbuch/internal/models"

	"github.com/google/uuid"
)

const appointmentColumns = `id, salon_id, customer_id, staff_id, starts_at, ends_at, status,
       service_ids, reserved_until, buffer_before_minutes, buffer_after_minutes,
       deposit_required, deposit_paid, deposit_amount_cents, total_price_cents,
       customer_notes, staff_notes, cancelled_at, cancelled_by, cancellation_reason,
       no_show_marked_at, no_show_fee_charged, created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (*models.Appointment, error) {
	var (
		a              models.Appointment
		serviceIDs     string
		reservedUntil  sql.NullTime
		cancelledAt    sql.NullTime
		noShowMarkedAt sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.SalonID, &a.CustomerID, &a.StaffID, &a.StartsAt, &a.EndsAt, &a.Status,
		&serviceIDs, &reservedUntil, &a.BufferBeforeMinutes, &a.BufferAfterMinutes,
		&a.DepositRequired, &a.DepositPaid, &a.DepositAmountCents, &a.TotalPriceCents,
		&a.CustomerNotes, &a.StaffNotes, &cancelledAt, &a.CancelledBy, &a.CancellationReason,
		&noShowMarkedAt, &a.NoShowFeeCharged, &a.CreatedAt, &a.UpdatedAt, &a.Version,
	)
	if err != nil {
		return nil, err
	}
	if serviceIDs != "" {
		a.ServiceIDs = strings.Split(serviceIDs, ",")
	}
	if reservedUntil.Valid {
		t := reservedUntil.Time
		a.ReservedUntil = &t
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		a.CancelledAt = &t
	}
	if noShowMarkedAt.Valid {
		t := noShowMarkedAt.Time
		a.NoShowMarkedAt = &t
	}
	return &a, nil
}

func (db *DB) AppointmentByID(ctx context.Context, id string) (*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = ?`
	appt, err := scanAppointment(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("appointment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return appt, nil
}

// CreateHold atomically verifies that no occupying appointment or blocked
// time intersects the requested interval for the staff member, then inserts
// the hold in reserved state. The check and the insert share one
// transaction; this is the strict-exclusion point of the whole system.
func (db *DB) CreateHold(ctx context.Context, appt *models.Appointment, now time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	start := appt.StartsAt.UTC()
	end := appt.EndsAt.UTC()

	// A day of padding comfortably covers any buffer widening.
	pad := 24 * time.Hour
	queryOccupied := `SELECT status, reserved_until, starts_at, ends_at,
                             buffer_before_minutes, buffer_after_minutes
                      FROM appointments
                      WHERE staff_id = ? AND status IN (?, ?, ?)
                        AND starts_at < ? AND ends_at > ?`
	rows, err := tx.QueryContext(ctx, queryOccupied, appt.StaffID,
		models.StatusReserved, models.StatusRequested, models.StatusConfirmed,
		end.Add(pad), start.Add(-pad))
	if err != nil {
		return fmt.Errorf("failed to check availability in tx: %w", err)
	}
	for rows.Next() {
		var existing models.Appointment
		var reservedUntil sql.NullTime
		if err := rows.Scan(&existing.Status, &reservedUntil, &existing.StartsAt, &existing.EndsAt,
			&existing.BufferBeforeMinutes, &existing.BufferAfterMinutes); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan existing appointment: %w", err)
		}
		if reservedUntil.Valid {
			t := reservedUntil.Time
			existing.ReservedUntil = &t
		}
		if !existing.OccupiesAt(now) {
			continue
		}
		if existing.BusyStart().Before(end) && start.Before(existing.BusyEnd()) {
			rows.Close()
			return ErrOverlap
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	queryBlocked := `SELECT COUNT(*) FROM blocked_times
                     WHERE (staff_id = ? OR (staff_id = '' AND salon_id = ?))
                       AND starts_at < ? AND ends_at > ?`
	var blocked int
	if err := tx.QueryRowContext(ctx, queryBlocked, appt.StaffID, appt.SalonID, end, start).Scan(&blocked); err != nil {
		return fmt.Errorf("failed to check blocked time in tx: %w", err)
	}
	if blocked > 0 {
		return ErrOverlap
	}

	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	var reservedUntil any
	if appt.ReservedUntil != nil {
		reservedUntil = appt.ReservedUntil.UTC()
	}
	nowUTC := now.UTC()
	queryInsert := `INSERT INTO appointments (
                      id, salon_id, customer_id, staff_id, starts_at, ends_at, status,
                      service_ids, reserved_until, buffer_before_minutes, buffer_after_minutes,
                      deposit_required, deposit_paid, deposit_amount_cents, total_price_cents,
                      customer_notes, staff_notes, created_at, updated_at, version
                    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, queryInsert,
		appt.ID, appt.SalonID, appt.CustomerID, appt.StaffID, start, end, models.StatusReserved,
		strings.Join(appt.ServiceIDs, ","), reservedUntil, appt.BufferBeforeMinutes, appt.BufferAfterMinutes,
		appt.DepositRequired, false, appt.DepositAmountCents, appt.TotalPriceCents,
		appt.CustomerNotes, appt.StaffNotes, nowUTC, nowUTC, 1,
	)
	if err != nil {
		return fmt.Errorf("failed to insert hold in tx: %w", err)
	}

	if err := insertTransition(ctx, tx, appt.ID, "", models.StatusReserved,
		models.ActorCustomer, appt.CustomerID, "", nowUTC); err != nil {
		return err
	}

	appt.Status = models.StatusReserved
	appt.CreatedAt = nowUTC
	appt.UpdatedAt = nowUTC
	appt.Version = 1

	return tx.Commit()
}

// ConfirmHold promotes a reserved hold, writes the immutable service
// snapshots and the snapshot-derived total, all under a version guard in one
// transaction.
func (db *DB) ConfirmHold(ctx context.Context, apptID string, fromVersion int64,
	to models.AppointmentStatus, snapshots []models.AppointmentService, totalCents int64,
	depositPaid bool, actor models.Actor, actorID string, now time.Time) error {

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	nowUTC := now.UTC()
	queryUpdate := `UPDATE appointments
                    SET status = ?, total_price_cents = ?, deposit_paid = ?,
                        version = version + 1, updated_at = ?
                    WHERE id = ? AND version = ? AND status = ?`
	result, err := tx.ExecContext(ctx, queryUpdate, to, totalCents, depositPaid,
		nowUTC, apptID, fromVersion, models.StatusReserved)
	if err != nil {
		return fmt.Errorf("failed to confirm hold: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrVersionConflict
	}

	queryInsert := `INSERT INTO appointment_services (
                      id, appointment_id, service_id, snapshot_service_name, snapshot_price_cents,
                      snapshot_tax_rate_percent, snapshot_duration_minutes, sort_order, created_at
                    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, snap := range snapshots {
		id := snap.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, queryInsert, id, apptID, snap.ServiceID,
			snap.SnapshotServiceName, snap.SnapshotPriceCents, snap.SnapshotTaxRatePercent,
			snap.SnapshotDurationMinutes, snap.SortOrder, nowUTC); err != nil {
			return fmt.Errorf("failed to write service snapshot: %w", err)
		}
	}

	if err := insertTransition(ctx, tx, apptID, models.StatusReserved, to, actor, actorID, "", nowUTC); err != nil {
		return err
	}

	return tx.Commit()
}

// TransitionStatus applies one version-guarded edge of the state machine and
// appends the audit row. Status-specific metadata (cancellation, no-show) is
// written alongside.
func (db *DB) TransitionStatus(ctx context.Context, t models.StatusChange, now time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	nowUTC := now.UTC()
	var result sql.Result
	switch t.To {
	case models.StatusCancelled:
		query := `UPDATE appointments
                  SET status = ?, cancelled_at = ?, cancelled_by = ?, cancellation_reason = ?,
                      version = version + 1, updated_at = ?
                  WHERE id = ? AND version = ? AND status = ?`
		result, err = tx.ExecContext(ctx, query, t.To, nowUTC, t.ActorID, t.Reason,
			nowUTC, t.AppointmentID, t.FromVersion, t.From)
	case models.StatusNoShow:
		query := `UPDATE appointments
                  SET status = ?, no_show_marked_at = ?, no_show_fee_charged = ?,
                      version = version + 1, updated_at = ?
                  WHERE id = ? AND version = ? AND status = ?`
		result, err = tx.ExecContext(ctx, query, t.To, nowUTC, t.NoShowFeeCharged,
			nowUTC, t.AppointmentID, t.FromVersion, t.From)
	default:
		query := `UPDATE appointments
                  SET status = ?, version = version + 1, updated_at = ?
                  WHERE id = ? AND version = ? AND status = ?`
		result, err = tx.ExecContext(ctx, query, t.To, nowUTC, t.AppointmentID, t.FromVersion, t.From)
	}
	if err != nil {
		return fmt.Errorf("failed to transition appointment: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrVersionConflict
	}

	if err := insertTransition(ctx, tx, t.AppointmentID, t.From, t.To, t.Actor, t.ActorID, t.Reason, nowUTC); err != nil {
		return err
	}

	return tx.Commit()
}

// ExpireStaleHolds tombstones every reserved hold whose TTL has lapsed and
// returns the affected ids. Idempotent: a second sweep finds nothing.
func (db *DB) ExpireStaleHolds(ctx context.Context, now time.Time) ([]string, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	nowUTC := now.UTC()
	querySelect := `SELECT id FROM appointments
                    WHERE status = ? AND reserved_until IS NOT NULL AND reserved_until <= ?`
	rows, err := tx.QueryContext(ctx, querySelect, models.StatusReserved, nowUTC)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale holds: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan stale hold: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	queryUpdate := `UPDATE appointments
                    SET status = ?, version = version + 1, updated_at = ?
                    WHERE id = ? AND status = ?`
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, queryUpdate, models.StatusExpired, nowUTC, id, models.StatusReserved); err != nil {
			return nil, fmt.Errorf("failed to expire hold %s: %w", id, err)
		}
		if err := insertTransition(ctx, tx, id, models.StatusReserved, models.StatusExpired,
			models.ActorSystem, "", "reservation ttl lapsed", nowUTC); err != nil {
			return nil, err
		}
	}

	return ids, tx.Commit()
}

// CountActiveReservations counts the customer's holds and appointments at
// the salon that still occupy calendar time. Stale holds do not count.
func (db *DB) CountActiveReservations(ctx context.Context, salonID, customerID string, now time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM appointments
              WHERE salon_id = ? AND customer_id = ?
                AND status IN (?, ?, ?)
                AND ends_at > ?
                AND NOT (status = ? AND reserved_until IS NOT NULL AND reserved_until <= ?)`
	nowUTC := now.UTC()
	var count int
	err := db.QueryRowContext(ctx, query, salonID, customerID,
		models.StatusReserved, models.StatusRequested, models.StatusConfirmed,
		nowUTC, models.StatusReserved, nowUTC).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active reservations: %w", err)
	}
	return count, nil
}

func (db *DB) AppointmentServices(ctx context.Context, apptID string) ([]models.AppointmentService, error) {
	query := `SELECT id, appointment_id, service_id, snapshot_service_name, snapshot_price_cents,
                     snapshot_tax_rate_percent, snapshot_duration_minutes, sort_order, created_at
              FROM appointment_services WHERE appointment_id = ? ORDER BY sort_order, id`
	rows, err := db.QueryContext(ctx, query, apptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointment services: %w", err)
	}
	defer rows.Close()

	var result []models.AppointmentService
	for rows.Next() {
		var s models.AppointmentService
		if err := rows.Scan(&s.ID, &s.AppointmentID, &s.ServiceID, &s.SnapshotServiceName,
			&s.SnapshotPriceCents, &s.SnapshotTaxRatePercent, &s.SnapshotDurationMinutes,
			&s.SortOrder, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan appointment service: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (db *DB) TransitionsByAppointment(ctx context.Context, apptID string) ([]models.AppointmentTransition, error) {
	query := `SELECT id, appointment_id, from_status, to_status, actor_role, actor_id, reason, created_at
              FROM appointment_transitions WHERE appointment_id = ? ORDER BY id`
	rows, err := db.QueryContext(ctx, query, apptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	defer rows.Close()
	return collectTransitions(rows)
}

// TransitionsBySalon returns the salon's audit trail ordered by time, for
// back-office export.
func (db *DB) TransitionsBySalon(ctx context.Context, salonID string, from, to time.Time) ([]models.AppointmentTransition, error) {
	query := `SELECT t.id, t.appointment_id, t.from_status, t.to_status, t.actor_role, t.actor_id, t.reason, t.created_at
              FROM appointment_transitions t
              JOIN appointments a ON a.id = t.appointment_id
              WHERE a.salon_id = ? AND t.created_at >= ? AND t.created_at < ?
              ORDER BY t.id`
	rows, err := db.QueryContext(ctx, query, salonID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list salon transitions: %w", err)
	}
	defer rows.Close()
	return collectTransitions(rows)
}

func collectTransitions(rows *sql.Rows) ([]models.AppointmentTransition, error) {
	var result []models.AppointmentTransition
	for rows.Next() {
		var t models.AppointmentTransition
		if err := rows.Scan(&t.ID, &t.AppointmentID, &t.FromStatus, &t.ToStatus,
			&t.ActorRole, &t.ActorID, &t.Reason, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func insertTransition(ctx context.Context, tx *sql.Tx, apptID string,
	from, to models.AppointmentStatus, actor models.Actor, actorID, reason string, now time.Time) error {
	query := `INSERT INTO appointment_transitions (appointment_id, from_status, to_status, actor_role, actor_id, reason, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query, apptID, from, to, actor, actorID, reason, now); err != nil {
		return fmt.Errorf("failed to write audit row: %w", err)
	}
	return nil
}
