package models

import "time"

// Appointment is a reservation in one of its lifecycle states. [StartsAt,
// EndsAt) covers the service chain; BufferBeforeMinutes/BufferAfterMinutes
// widen its busy footprint on the staff calendar and are fixed at hold time.
type Appointment struct {
	ID                  string            `json:"id"`
	SalonID             string            `json:"salon_id"`
	CustomerID          string            `json:"customer_id"`
	StaffID             string            `json:"staff_id"`
	StartsAt            time.Time         `json:"starts_at"`
	EndsAt              time.Time         `json:"ends_at"`
	Status              AppointmentStatus `json:"status"`
	ServiceIDs          []string          `json:"service_ids"`
	ReservedUntil       *time.Time        `json:"reserved_until,omitempty"`
	BufferBeforeMinutes int               `json:"buffer_before_minutes"`
	BufferAfterMinutes  int               `json:"buffer_after_minutes"`
	DepositRequired     bool              `json:"deposit_required"`
	DepositPaid         bool              `json:"deposit_paid"`
	DepositAmountCents  int64             `json:"deposit_amount_cents"`
	TotalPriceCents     int64             `json:"total_price_cents"`
	CustomerNotes       string            `json:"customer_notes,omitempty"`
	StaffNotes          string            `json:"staff_notes,omitempty"`
	CancelledAt         *time.Time        `json:"cancelled_at,omitempty"`
	CancelledBy         string            `json:"cancelled_by,omitempty"`
	CancellationReason  string            `json:"cancellation_reason,omitempty"`
	NoShowMarkedAt      *time.Time        `json:"no_show_marked_at,omitempty"`
	NoShowFeeCharged    bool              `json:"no_show_fee_charged"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
	Version             int64             `json:"version"`
}

// HoldExpired reports whether a reserved hold is past its TTL.
func (a *Appointment) HoldExpired(now time.Time) bool {
	return a.Status == StatusReserved && a.ReservedUntil != nil && !now.Before(*a.ReservedUntil)
}

// OccupiesAt reports whether the appointment blocks its interval at the given
// instant. A stale hold stops occupying immediately, before any sweep.
func (a *Appointment) OccupiesAt(now time.Time) bool {
	if !a.Status.Occupying() {
		return false
	}
	return !a.HoldExpired(now)
}

// BusyStart / BusyEnd give the buffer-widened footprint on the calendar.
func (a *Appointment) BusyStart() time.Time {
	return a.StartsAt.Add(-time.Duration(a.BufferBeforeMinutes) * time.Minute)
}

func (a *Appointment) BusyEnd() time.Time {
	return a.EndsAt.Add(time.Duration(a.BufferAfterMinutes) * time.Minute)
}

// AppointmentService is a write-once line item snapshot of one service within
// an appointment. Snapshot fields never follow later Service edits.
type AppointmentService struct {
	ID                      string    `json:"id"`
	AppointmentID           string    `json:"appointment_id"`
	ServiceID               string    `json:"service_id"`
	SnapshotServiceName     string    `json:"snapshot_service_name"`
	SnapshotPriceCents      int64     `json:"snapshot_price_cents"`
	SnapshotTaxRatePercent  float64   `json:"snapshot_tax_rate_percent"`
	SnapshotDurationMinutes int       `json:"snapshot_duration_minutes"`
	SortOrder               int64     `json:"sort_order"`
	CreatedAt               time.Time `json:"created_at"`
}

// StatusChange describes one requested edge of the state machine together
// with the optimistic version guard and the actor performing it.
type StatusChange struct {
	AppointmentID    string
	FromVersion      int64
	From             AppointmentStatus
	To               AppointmentStatus
	Actor            Actor
	ActorID          string
	Reason           string
	NoShowFeeCharged bool
}

// AppointmentTransition is one audit row of the ledger: who moved an
// appointment from one status to another, and when.
type AppointmentTransition struct {
	ID            int64             `json:"id"`
	AppointmentID string            `json:"appointment_id"`
	FromStatus    AppointmentStatus `json:"from_status"`
	ToStatus      AppointmentStatus `json:"to_status"`
	ActorRole     Actor             `json:"actor_role"`
	ActorID       string            `json:"actor_id,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}
