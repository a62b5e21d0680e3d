package models

import (
	"fmt"
	"time"
)

// BookingRule is the salon-wide policy configuration. Exactly one active rule
// set exists per salon; the core reads it as an immutable snapshot per
// request and never mutates it.
type BookingRule struct {
	ID                        string       `yaml:"id" json:"id"`
	SalonID                   string       `yaml:"salon_id" json:"salon_id"`
	MinLeadTimeMinutes        int          `yaml:"min_lead_time_minutes" json:"min_lead_time_minutes"`
	MaxBookingHorizonDays     int          `yaml:"max_booking_horizon_days" json:"max_booking_horizon_days"`
	CancellationCutoffHours   int          `yaml:"cancellation_cutoff_hours" json:"cancellation_cutoff_hours"`
	CancellationFeePercent    int          `yaml:"cancellation_fee_percent" json:"cancellation_fee_percent"`
	SlotGranularityMinutes    int          `yaml:"slot_granularity_minutes" json:"slot_granularity_minutes"`
	DefaultVisitBufferMinutes int          `yaml:"default_visit_buffer_minutes" json:"default_visit_buffer_minutes"`
	ReservationTTLMinutes     int          `yaml:"reservation_ttl_minutes" json:"reservation_ttl_minutes"`
	MaxConcurrentReservations int          `yaml:"max_concurrent_reservations" json:"max_concurrent_reservations"`
	DefaultDepositRequired    bool         `yaml:"default_deposit_required" json:"default_deposit_required"`
	DefaultDepositPercent     int          `yaml:"default_deposit_percent" json:"default_deposit_percent"`
	MinimumDepositAmountCents int64        `yaml:"minimum_deposit_amount_cents" json:"minimum_deposit_amount_cents"`
	NoShowPolicy              NoShowPolicy `yaml:"no_show_policy" json:"no_show_policy"`
	NoShowFeeCents            int64        `yaml:"no_show_fee_cents" json:"no_show_fee_cents"`
	AllowMultiServiceBooking  bool         `yaml:"allow_multi_service_booking" json:"allow_multi_service_booking"`
	MaxServicesPerBooking     int          `yaml:"max_services_per_booking" json:"max_services_per_booking"`
	RequiresApproval          bool         `yaml:"requires_approval" json:"requires_approval"`
	CreatedAt                 time.Time    `yaml:"-" json:"created_at"`
	UpdatedAt                 time.Time    `yaml:"-" json:"updated_at"`
}

func (r *BookingRule) LeadTime() time.Duration {
	return time.Duration(r.MinLeadTimeMinutes) * time.Minute
}

func (r *BookingRule) ReservationTTL() time.Duration {
	return time.Duration(r.ReservationTTLMinutes) * time.Minute
}

func (r *BookingRule) CancellationCutoff() time.Duration {
	return time.Duration(r.CancellationCutoffHours) * time.Hour
}

// HorizonEnd is the last instant a booking may start at, relative to now.
func (r *BookingRule) HorizonEnd(now time.Time) time.Time {
	return now.AddDate(0, 0, r.MaxBookingHorizonDays)
}

func (r *BookingRule) Validate() error {
	if r.SlotGranularityMinutes <= 0 {
		return fmt.Errorf("rule %s: slot_granularity_minutes must be positive", r.SalonID)
	}
	if r.ReservationTTLMinutes <= 0 {
		return fmt.Errorf("rule %s: reservation_ttl_minutes must be positive", r.SalonID)
	}
	if r.MaxConcurrentReservations <= 0 {
		return fmt.Errorf("rule %s: max_concurrent_reservations must be positive", r.SalonID)
	}
	if !r.NoShowPolicy.Valid() {
		return fmt.Errorf("rule %s: unknown no_show_policy %q", r.SalonID, r.NoShowPolicy)
	}
	if r.DefaultDepositPercent < 0 || r.DefaultDepositPercent > 100 {
		return fmt.Errorf("rule %s: default_deposit_percent out of range", r.SalonID)
	}
	if r.CancellationFeePercent < 0 || r.CancellationFeePercent > 100 {
		return fmt.Errorf("rule %s: cancellation_fee_percent out of range", r.SalonID)
	}
	if r.AllowMultiServiceBooking && r.MaxServicesPerBooking <= 0 {
		return fmt.Errorf("rule %s: max_services_per_booking must be positive", r.SalonID)
	}
	return nil
}
