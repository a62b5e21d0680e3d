package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"terminbuch/internal/availability"
	"terminbuch/internal/database"
	"terminbuch/internal/domain"
	"terminbuch/internal/events"
	"terminbuch/internal/metrics"
	"terminbuch/internal/models"

	"github.com/rs/zerolog"
)

var (
	ErrActorNotAllowed = errors.New("actor may not perform this transition")
	ErrNotStarted      = errors.New("appointment has not started yet")
)

// HoldRequest asks for a temporary reservation of a concrete slot.
type HoldRequest struct {
	SalonID       string    `json:"salon_id"`
	CustomerID    string    `json:"customer_id"`
	StaffID       string    `json:"staff_id"`
	ServiceIDs    []string  `json:"service_ids"`
	StartsAt      time.Time `json:"starts_at"`
	CustomerNotes string    `json:"customer_notes,omitempty"`
}

// Manager orchestrates the appointment lifecycle: holds, confirmation,
// cancellation and finalization. Hold creation is serialized per staff
// member in-process on top of the transactional check in the store.
type Manager struct {
	store    domain.Store
	eventBus domain.EventPublisher
	retries  int
	locks    sync.Map
	now      func() time.Time
	logger   zerolog.Logger
}

func NewManager(store domain.Store, eventBus domain.EventPublisher, retries int, logger *zerolog.Logger) *Manager {
	if retries <= 0 {
		retries = 3
	}
	return &Manager{
		store:    store,
		eventBus: eventBus,
		retries:  retries,
		now:      time.Now,
		logger:   logger.With().Str("component", "booking").Logger(),
	}
}

func (m *Manager) staffLock(staffID string) *sync.Mutex {
	mu, _ := m.locks.LoadOrStore(staffID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// CreateHold validates the request against the salon's booking rules,
// verifies the slot still fits the staff calendar and inserts a reserved
// hold with a TTL. Two racing requests for overlapping slots resolve to one
// winner; the loser gets ErrSlotUnavailable.
func (m *Manager) CreateHold(ctx context.Context, req HoldRequest) (*models.Appointment, error) {
	now := m.now()

	salon, err := m.store.SalonByID(ctx, req.SalonID)
	if err != nil {
		return nil, err
	}
	if !salon.IsActive {
		return nil, violation(RuleNotBookableOnline, "salon %s is not active", salon.ID)
	}
	rule, err := m.store.ActiveRule(ctx, req.SalonID)
	if err != nil {
		return nil, err
	}
	staff, err := m.store.StaffByID(ctx, req.StaffID)
	if err != nil {
		return nil, err
	}
	if staff.SalonID != req.SalonID || !staff.IsActive || !staff.IsBookableOnline {
		return nil, violation(RuleNotBookableOnline, "staff %s is not bookable online", req.StaffID)
	}
	if _, err := m.store.CustomerByID(ctx, req.CustomerID); err != nil {
		return nil, err
	}

	services, err := m.store.ServicesByIDs(ctx, req.SalonID, req.ServiceIDs)
	if err != nil {
		return nil, err
	}
	if len(services) != len(req.ServiceIDs) {
		return nil, fmt.Errorf("%w: %d of %d requested services exist",
			availability.ErrUnknownService, len(services), len(req.ServiceIDs))
	}
	// Checks run in a fixed order so a request breaking several rules always
	// reports the same one first: placement, working window, service chain,
	// then the per-customer reservation cap.
	if err := validatePlacement(rule, req.StartsAt, now); err != nil {
		return nil, err
	}

	chain, lead, trail := availability.ChainSpan(services)
	if err := m.checkWindow(ctx, salon, staff.ID, req.StartsAt, chain, lead, trail); err != nil {
		return nil, err
	}

	if err := validateChain(rule, services); err != nil {
		return nil, err
	}

	var total int64
	for _, svc := range services {
		total += svc.CurrentPriceCents
	}
	depositRequired, depositAmount := DepositFor(rule, services, total)

	active, err := m.store.CountActiveReservations(ctx, req.SalonID, req.CustomerID, now)
	if err != nil {
		return nil, err
	}
	if err := validateConcurrent(rule, active); err != nil {
		return nil, err
	}

	reservedUntil := now.Add(rule.ReservationTTL())
	appt := &models.Appointment{
		SalonID:             req.SalonID,
		CustomerID:          req.CustomerID,
		StaffID:             staff.ID,
		StartsAt:            req.StartsAt.UTC(),
		EndsAt:              req.StartsAt.Add(time.Duration(chain) * time.Minute).UTC(),
		ServiceIDs:          req.ServiceIDs,
		ReservedUntil:       &reservedUntil,
		BufferBeforeMinutes: lead,
		BufferAfterMinutes:  trail,
		DepositRequired:     depositRequired,
		DepositAmountCents:  depositAmount,
		TotalPriceCents:     total,
		CustomerNotes:       req.CustomerNotes,
	}

	lock := m.staffLock(staff.ID)
	lock.Lock()
	err = m.store.CreateHold(ctx, appt, now)
	lock.Unlock()
	if errors.Is(err, database.ErrOverlap) {
		metrics.IncBookingFailure("slot_unavailable")
		return nil, ErrSlotUnavailable
	}
	if err != nil {
		return nil, err
	}

	metrics.IncHoldsCreated()
	m.publish(events.EventHoldCreated, appt, models.ActorCustomer, req.CustomerID, "", 0)
	m.logger.Info().
		Str("appointment_id", appt.ID).
		Str("staff_id", appt.StaffID).
		Time("starts_at", appt.StartsAt).
		Msg("hold created")
	return appt, nil
}

// checkWindow verifies the full span, buffers included, fits the staff
// member's working window on that day. The salon close bounds the trailing
// buffer, not the caller's query range.
func (m *Manager) checkWindow(ctx context.Context, salon *models.Salon, staffID string,
	startsAt time.Time, chain, lead, trail int) error {
	loc, err := salon.Location()
	if err != nil {
		return fmt.Errorf("salon %s timezone: %w", salon.ID, err)
	}
	local := startsAt.In(loc)
	y, mo, d := local.Date()
	day := time.Date(y, mo, d, 0, 0, 0, 0, loc)

	oh, err := m.store.OpeningHoursFor(ctx, salon.ID, models.WeekdayOf(day))
	if err != nil {
		return err
	}
	if oh == nil || oh.IsClosed {
		return ErrSlotUnavailable
	}
	wh, err := m.store.WorkingHoursFor(ctx, staffID, models.WeekdayOf(day))
	if err != nil {
		return err
	}
	if wh == nil || wh.IsDayOff {
		return ErrSlotUnavailable
	}

	winStart := day.Add(time.Duration(max(oh.OpenTimeMinutes, wh.StartTimeMinutes)) * time.Minute)
	winEnd := day.Add(time.Duration(min(oh.CloseTimeMinutes, wh.EndTimeMinutes)) * time.Minute)
	if !availability.Fits(local, chain, lead, trail, winStart, winEnd, nil) {
		return ErrSlotUnavailable
	}
	return nil
}

// ConfirmHold promotes a live hold. Prices and durations are snapshotted
// from the current catalog at this moment; later catalog edits never touch
// the appointment. Salons with approval enabled get a requested appointment
// that staff must approve.
func (m *Manager) ConfirmHold(ctx context.Context, apptID string, actor models.Actor, actorID string, depositPaid bool) (*models.Appointment, error) {
	now := m.now()

	for attempt := 0; attempt < m.retries; attempt++ {
		appt, err := m.store.AppointmentByID(ctx, apptID)
		if err != nil {
			return nil, err
		}
		if appt.Status == models.StatusExpired || appt.HoldExpired(now) {
			metrics.IncBookingFailure("hold_expired")
			return nil, ErrHoldExpired
		}
		if appt.Status != models.StatusReserved {
			return nil, &InvalidTransitionError{From: appt.Status, To: models.StatusConfirmed}
		}
		if appt.DepositRequired && !depositPaid {
			metrics.IncBookingFailure("deposit_required")
			return nil, ErrDepositRequired
		}

		rule, err := m.store.ActiveRule(ctx, appt.SalonID)
		if err != nil {
			return nil, err
		}
		services, err := m.store.ServicesByIDs(ctx, appt.SalonID, appt.ServiceIDs)
		if err != nil {
			return nil, err
		}
		if len(services) != len(appt.ServiceIDs) {
			return nil, fmt.Errorf("%w: hold references missing services", availability.ErrUnknownService)
		}

		snapshots := make([]models.AppointmentService, len(services))
		var total int64
		for i, svc := range services {
			snapshots[i] = models.AppointmentService{
				AppointmentID:           appt.ID,
				ServiceID:               svc.ID,
				SnapshotServiceName:     svc.Name,
				SnapshotPriceCents:      svc.CurrentPriceCents,
				SnapshotTaxRatePercent:  svc.TaxRatePercent,
				SnapshotDurationMinutes: svc.BaseDurationMinutes,
				SortOrder:               int64(i),
			}
			total += svc.CurrentPriceCents
		}

		to := models.StatusConfirmed
		eventType := events.EventAppointmentConfirmed
		if rule.RequiresApproval {
			to = models.StatusRequested
			eventType = events.EventAppointmentRequested
		}

		err = m.store.ConfirmHold(ctx, appt.ID, appt.Version, to, snapshots, total, depositPaid, actor, actorID, now)
		if errors.Is(err, database.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		appt.Status = to
		appt.TotalPriceCents = total
		appt.DepositPaid = depositPaid
		appt.Version++

		metrics.IncConfirmations()
		m.publish(eventType, appt, actor, actorID, "", 0)
		m.logger.Info().
			Str("appointment_id", appt.ID).
			Str("status", string(to)).
			Msg("hold confirmed")
		return appt, nil
	}

	metrics.IncBookingFailure("concurrency_conflict")
	return nil, ErrConcurrencyConflict
}

// ApproveAppointment moves a requested appointment to confirmed. Customers
// cannot approve their own requests.
func (m *Manager) ApproveAppointment(ctx context.Context, apptID string, actor models.Actor, actorID string) (*models.Appointment, error) {
	if actor != models.ActorStaff {
		return nil, ErrActorNotAllowed
	}
	return m.transition(ctx, apptID, nil, func(appt *models.Appointment) (models.StatusChange, string, error) {
		if appt.Status != models.StatusRequested {
			return models.StatusChange{}, "", &InvalidTransitionError{From: appt.Status, To: models.StatusConfirmed}
		}
		return models.StatusChange{
			AppointmentID: appt.ID,
			FromVersion:   appt.Version,
			From:          appt.Status,
			To:            models.StatusConfirmed,
			Actor:         actor,
			ActorID:       actorID,
		}, events.EventAppointmentConfirmed, nil
	})
}

// CancelAppointment cancels a requested or confirmed appointment and returns
// the fee outcome. Cancelling inside the cutoff window costs the configured
// percentage of the booked total; requested appointments cancel free.
func (m *Manager) CancelAppointment(ctx context.Context, apptID string, actor models.Actor, actorID, reason string) (*models.Appointment, FeeOutcome, error) {
	var fee FeeOutcome
	appt, err := m.transition(ctx, apptID, &fee, func(appt *models.Appointment) (models.StatusChange, string, error) {
		if !models.CanTransition(appt.Status, models.StatusCancelled) {
			return models.StatusChange{}, "", &InvalidTransitionError{From: appt.Status, To: models.StatusCancelled}
		}
		rule, err := m.store.ActiveRule(ctx, appt.SalonID)
		if err != nil {
			return models.StatusChange{}, "", err
		}
		fee = EvaluateCancellation(appt, rule, m.now())
		return models.StatusChange{
			AppointmentID: appt.ID,
			FromVersion:   appt.Version,
			From:          appt.Status,
			To:            models.StatusCancelled,
			Actor:         actor,
			ActorID:       actorID,
			Reason:        reason,
		}, events.EventAppointmentCancelled, nil
	})
	if err != nil {
		return nil, FeeOutcome{}, err
	}
	return appt, fee, nil
}

// MarkNoShow finalizes a confirmed appointment the customer missed. Only
// staff or the system may finalize, and only after the start time passed.
func (m *Manager) MarkNoShow(ctx context.Context, apptID string, actor models.Actor, actorID string) (*models.Appointment, FeeOutcome, error) {
	if !actor.CanFinalize() {
		return nil, FeeOutcome{}, ErrActorNotAllowed
	}
	var fee FeeOutcome
	appt, err := m.transition(ctx, apptID, &fee, func(appt *models.Appointment) (models.StatusChange, string, error) {
		if appt.Status != models.StatusConfirmed {
			return models.StatusChange{}, "", &InvalidTransitionError{From: appt.Status, To: models.StatusNoShow}
		}
		if m.now().Before(appt.StartsAt) {
			return models.StatusChange{}, "", ErrNotStarted
		}
		rule, err := m.store.ActiveRule(ctx, appt.SalonID)
		if err != nil {
			return models.StatusChange{}, "", err
		}
		fee = EvaluateNoShow(appt, rule)
		return models.StatusChange{
			AppointmentID:    appt.ID,
			FromVersion:      appt.Version,
			From:             appt.Status,
			To:               models.StatusNoShow,
			Actor:            actor,
			ActorID:          actorID,
			NoShowFeeCharged: fee.AmountCents > 0,
		}, events.EventAppointmentNoShow, nil
	})
	if err != nil {
		return nil, FeeOutcome{}, err
	}
	return appt, fee, nil
}

// CompleteAppointment finalizes a confirmed appointment and records the
// visit on the customer record.
func (m *Manager) CompleteAppointment(ctx context.Context, apptID string, actor models.Actor, actorID string) (*models.Appointment, error) {
	if !actor.CanFinalize() {
		return nil, ErrActorNotAllowed
	}
	appt, err := m.transition(ctx, apptID, nil, func(appt *models.Appointment) (models.StatusChange, string, error) {
		if appt.Status != models.StatusConfirmed {
			return models.StatusChange{}, "", &InvalidTransitionError{From: appt.Status, To: models.StatusCompleted}
		}
		return models.StatusChange{
			AppointmentID: appt.ID,
			FromVersion:   appt.Version,
			From:          appt.Status,
			To:            models.StatusCompleted,
			Actor:         actor,
			ActorID:       actorID,
		}, events.EventAppointmentCompleted, nil
	})
	if err != nil {
		return nil, err
	}
	if err := m.store.RecordCompletedVisit(ctx, appt.CustomerID, appt.TotalPriceCents); err != nil {
		m.logger.Error().Err(err).Str("customer_id", appt.CustomerID).Msg("failed to record completed visit")
	}
	return appt, nil
}

// ExpireStaleHolds tombstones lapsed holds and reports how many. Pure
// housekeeping: stale holds already stopped occupying calendar time the
// moment their TTL passed.
func (m *Manager) ExpireStaleHolds(ctx context.Context) (int, error) {
	ids, err := m.store.ExpireStaleHolds(ctx, m.now())
	if err != nil {
		return 0, err
	}
	metrics.AddHoldsExpired(len(ids))
	for _, id := range ids {
		_ = m.eventBus.PublishJSON(events.EventHoldExpired, events.AppointmentEventPayload{
			AppointmentID: id,
			Status:        string(models.StatusExpired),
			ActorRole:     string(models.ActorSystem),
		})
	}
	if len(ids) > 0 {
		m.logger.Info().Int("count", len(ids)).Msg("expired stale holds")
	}
	return len(ids), nil
}

// transition runs one version-guarded status change with retries on
// concurrent modification. The decide callback re-evaluates eligibility on
// every attempt against a fresh read.
func (m *Manager) transition(ctx context.Context, apptID string, fee *FeeOutcome,
	decide func(*models.Appointment) (models.StatusChange, string, error)) (*models.Appointment, error) {

	for attempt := 0; attempt < m.retries; attempt++ {
		appt, err := m.store.AppointmentByID(ctx, apptID)
		if err != nil {
			return nil, err
		}
		change, eventType, err := decide(appt)
		if err != nil {
			if errTransition := new(InvalidTransitionError); errors.As(err, &errTransition) {
				metrics.IncBookingFailure("invalid_transition")
			}
			return nil, err
		}

		err = m.store.TransitionStatus(ctx, change, m.now())
		if errors.Is(err, database.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		appt.Status = change.To
		appt.Version++
		var feeCents int64
		if fee != nil {
			feeCents = fee.AmountCents
		}
		m.publish(eventType, appt, change.Actor, change.ActorID, change.Reason, feeCents)
		m.logger.Info().
			Str("appointment_id", appt.ID).
			Str("from", string(change.From)).
			Str("to", string(change.To)).
			Msg("appointment transitioned")
		return appt, nil
	}

	metrics.IncBookingFailure("concurrency_conflict")
	return nil, ErrConcurrencyConflict
}

func (m *Manager) publish(eventType string, appt *models.Appointment, actor models.Actor, actorID, reason string, feeCents int64) {
	_ = m.eventBus.PublishJSON(eventType, events.AppointmentEventPayload{
		AppointmentID: appt.ID,
		SalonID:       appt.SalonID,
		CustomerID:    appt.CustomerID,
		StaffID:       appt.StaffID,
		Status:        string(appt.Status),
		StartsAt:      appt.StartsAt,
		EndsAt:        appt.EndsAt,
		FeeCents:      feeCents,
		ActorRole:     string(actor),
		ActorID:       actorID,
		Reason:        reason,
	})
}
