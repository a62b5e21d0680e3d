package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"terminbuch/internal/models"
)

func (db *DB) UpsertBookingRule(ctx context.Context, r *models.BookingRule) error {
	query := `INSERT INTO booking_rules (
                id, salon_id, min_lead_time_minutes, max_booking_horizon_days,
                cancellation_cutoff_hours, cancellation_fee_percent, slot_granularity_minutes,
                default_visit_buffer_minutes, reservation_ttl_minutes, max_concurrent_reservations,
                default_deposit_required, default_deposit_percent, minimum_deposit_amount_cents,
                no_show_policy, no_show_fee_cents, allow_multi_service_booking,
                max_services_per_booking, requires_approval, created_at, updated_at
              ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(salon_id) DO UPDATE SET
                min_lead_time_minutes = excluded.min_lead_time_minutes,
                max_booking_horizon_days = excluded.max_booking_horizon_days,
                cancellation_cutoff_hours = excluded.cancellation_cutoff_hours,
                cancellation_fee_percent = excluded.cancellation_fee_percent,
                slot_granularity_minutes = excluded.slot_granularity_minutes,
                default_visit_buffer_minutes = excluded.default_visit_buffer_minutes,
                reservation_ttl_minutes = excluded.reservation_ttl_minutes,
                max_concurrent_reservations = excluded.max_concurrent_reservations,
                default_deposit_required = excluded.default_deposit_required,
                default_deposit_percent = excluded.default_deposit_percent,
                minimum_deposit_amount_cents = excluded.minimum_deposit_amount_cents,
                no_show_policy = excluded.no_show_policy,
                no_show_fee_cents = excluded.no_show_fee_cents,
                allow_multi_service_booking = excluded.allow_multi_service_booking,
                max_services_per_booking = excluded.max_services_per_booking,
                requires_approval = excluded.requires_approval,
                updated_at = excluded.updated_at`
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, query, r.ID, r.SalonID, r.MinLeadTimeMinutes,
		r.MaxBookingHorizonDays, r.CancellationCutoffHours, r.CancellationFeePercent,
		r.SlotGranularityMinutes, r.DefaultVisitBufferMinutes, r.ReservationTTLMinutes,
		r.MaxConcurrentReservations, r.DefaultDepositRequired, r.DefaultDepositPercent,
		r.MinimumDepositAmountCents, r.NoShowPolicy, r.NoShowFeeCents,
		r.AllowMultiServiceBooking, r.MaxServicesPerBooking, r.RequiresApproval, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert booking rule: %w", err)
	}
	return nil
}

// ActiveRule returns the salon's single active rule set. The core reads it
// once per request and treats it as immutable.
func (db *DB) ActiveRule(ctx context.Context, salonID string) (*models.BookingRule, error) {
	query := `SELECT id, salon_id, min_lead_time_minutes, max_booking_horizon_days,
                     cancellation_cutoff_hours, cancellation_fee_percent, slot_granularity_minutes,
                     default_visit_buffer_minutes, reservation_ttl_minutes, max_concurrent_reservations,
                     default_deposit_required, default_deposit_percent, minimum_deposit_amount_cents,
                     no_show_policy, no_show_fee_cents, allow_multi_service_booking,
                     max_services_per_booking, requires_approval, created_at, updated_at
              FROM booking_rules WHERE salon_id = ?`
	var r models.BookingRule
	err := db.QueryRowContext(ctx, query, salonID).Scan(
		&r.ID, &r.SalonID, &r.MinLeadTimeMinutes, &r.MaxBookingHorizonDays,
		&r.CancellationCutoffHours, &r.CancellationFeePercent, &r.SlotGranularityMinutes,
		&r.DefaultVisitBufferMinutes, &r.ReservationTTLMinutes, &r.MaxConcurrentReservations,
		&r.DefaultDepositRequired, &r.DefaultDepositPercent, &r.MinimumDepositAmountCents,
		&r.NoShowPolicy, &r.NoShowFeeCents, &r.AllowMultiServiceBooking,
		&r.MaxServicesPerBooking, &r.RequiresApproval, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking rule for salon %s: %w", salonID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking rule: %w", err)
	}
	return &r, nil
}
