package booking

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"terminbuch/internal/database"
	"terminbuch/internal/events"
	"terminbuch/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	db  *database.DB
	mgr *Manager
	bus *events.EventBus
	now time.Time
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, db.UpsertSalon(ctx, &models.Salon{
		ID: "s1", Name: "Salon Mitte", Slug: "salon-mitte", Timezone: "UTC", Currency: "EUR", IsActive: true,
	}))
	require.NoError(t, db.UpsertStaff(ctx, &models.Staff{
		ID: "anna", SalonID: "s1", DisplayName: "Anna", IsBookableOnline: true, IsActive: true,
	}))
	require.NoError(t, db.UpsertService(ctx, &models.Service{
		ID: "cut", SalonID: "s1", Name: "Haarschnitt", Slug: "haarschnitt",
		BaseDurationMinutes: 60, BufferAfterMinutes: 15, CurrentPriceCents: 4500,
		TaxRatePercent: 19, IsBookableOnline: true, IsActive: true,
	}))
	require.NoError(t, db.UpsertService(ctx, &models.Service{
		ID: "color", SalonID: "s1", Name: "Coloration", Slug: "coloration",
		BaseDurationMinutes: 90, BufferBeforeMinutes: 10, BufferAfterMinutes: 20,
		CurrentPriceCents: 12000, TaxRatePercent: 19, IsBookableOnline: true, IsActive: true,
		RequiresDeposit: true, DepositAmountCents: 3000,
	}))
	require.NoError(t, db.UpsertCustomer(ctx, &models.Customer{
		ID: "c1", SalonID: "s1", ProfileID: "p1", IsActive: true,
	}))
	require.NoError(t, db.UpsertBookingRule(ctx, testEnvRule()))

	for i, day := range []models.Weekday{
		models.Monday, models.Tuesday, models.Wednesday, models.Thursday,
		models.Friday, models.Saturday, models.Sunday,
	} {
		require.NoError(t, db.UpsertOpeningHours(ctx, &models.OpeningHours{
			ID: fmt.Sprintf("oh-%d", i), SalonID: "s1", DayOfWeek: day,
			OpenTimeMinutes: 540, CloseTimeMinutes: 1080,
		}))
		require.NoError(t, db.UpsertStaffWorkingHours(ctx, &models.StaffWorkingHours{
			ID: fmt.Sprintf("wh-%d", i), StaffID: "anna", DayOfWeek: day,
			StartTimeMinutes: 540, EndTimeMinutes: 1080,
		}))
	}

	env := &testEnv{
		db:  db,
		bus: events.NewEventBus(),
		now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}
	env.mgr = NewManager(db, env.bus, 3, &logger)
	env.mgr.now = func() time.Time { return env.now }
	return env
}

func (e *testEnv) updateRule(t *testing.T, mutate func(*models.BookingRule)) {
	t.Helper()
	rule := testEnvRule()
	mutate(rule)
	require.NoError(t, e.db.UpsertBookingRule(context.Background(), rule))
}

func testEnvRule() *models.BookingRule {
	return &models.BookingRule{
		ID: "r1", SalonID: "s1",
		MinLeadTimeMinutes: 60, MaxBookingHorizonDays: 60,
		CancellationCutoffHours: 24, CancellationFeePercent: 50,
		SlotGranularityMinutes: 15, ReservationTTLMinutes: 10,
		MaxConcurrentReservations: 3, NoShowPolicy: models.NoShowChargeDeposit,
		AllowMultiServiceBooking: true, MaxServicesPerBooking: 3,
	}
}

func cutRequest(start time.Time) HoldRequest {
	return HoldRequest{
		SalonID: "s1", CustomerID: "c1", StaffID: "anna",
		ServiceIDs: []string{"cut"}, StartsAt: start,
	}
}

func TestHoldLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var created, confirmed int
	env.bus.Subscribe(events.EventHoldCreated, func(*events.Event) error { created++; return nil })
	env.bus.Subscribe(events.EventAppointmentConfirmed, func(*events.Event) error { confirmed++; return nil })

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	appt, err := env.mgr.CreateHold(ctx, cutRequest(start))
	require.NoError(t, err)
	assert.Equal(t, models.StatusReserved, appt.Status)
	assert.Equal(t, int64(4500), appt.TotalPriceCents)
	assert.Equal(t, 15, appt.BufferAfterMinutes)
	require.NotNil(t, appt.ReservedUntil)
	assert.True(t, appt.ReservedUntil.Equal(env.now.Add(10*time.Minute)))

	got, err := env.mgr.ConfirmHold(ctx, appt.ID, models.ActorCustomer, "c1", false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)

	services, err := env.db.AppointmentServices(ctx, appt.ID)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, int64(4500), services[0].SnapshotPriceCents)
	assert.Equal(t, 60, services[0].SnapshotDurationMinutes)

	assert.Equal(t, 1, created)
	assert.Equal(t, 1, confirmed)
}

func TestHoldSlotConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	_, err := env.mgr.CreateHold(ctx, cutRequest(start))
	require.NoError(t, err)

	_, err = env.mgr.CreateHold(ctx, cutRequest(start))
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	// Starting inside the trailing buffer of the first hold also loses.
	_, err = env.mgr.CreateHold(ctx, cutRequest(start.Add(time.Hour)))
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestHoldLeadTimeViolation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.mgr.CreateHold(context.Background(), cutRequest(env.now.Add(30*time.Minute)))
	var pv *PolicyViolationError
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, RuleLeadTime, pv.Rule)
}

func TestHoldHorizonViolation(t *testing.T) {
	env := newTestEnv(t)

	start := time.Date(2026, 6, 2, 10, 0, 0, 0, time.UTC)
	_, err := env.mgr.CreateHold(context.Background(), cutRequest(start))
	var pv *PolicyViolationError
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, RuleHorizon, pv.Rule)
}

func TestHoldOutsideWorkingWindow(t *testing.T) {
	env := newTestEnv(t)

	// 07:00 is before the salon opens.
	start := time.Date(2026, 3, 3, 7, 0, 0, 0, time.UTC)
	_, err := env.mgr.CreateHold(context.Background(), cutRequest(start))
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	// 17:30 leaves no room for the trailing buffer before close.
	start = time.Date(2026, 3, 3, 17, 30, 0, 0, time.UTC)
	_, err = env.mgr.CreateHold(context.Background(), cutRequest(start))
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestHoldMultiServiceRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	req := cutRequest(start)
	req.ServiceIDs = []string{"cut", "color"}

	appt, err := env.mgr.CreateHold(ctx, req)
	require.NoError(t, err)
	// 60 + max(15, 10) + 90 minutes of chained time.
	assert.True(t, appt.EndsAt.Equal(start.Add(165*time.Minute)))
	assert.Equal(t, int64(16500), appt.TotalPriceCents)

	env.updateRule(t, func(r *models.BookingRule) { r.MaxServicesPerBooking = 1 })
	req.StartsAt = time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	_, err = env.mgr.CreateHold(ctx, req)
	var pv *PolicyViolationError
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, RuleMaxServices, pv.Rule)

	env.updateRule(t, func(r *models.BookingRule) { r.AllowMultiServiceBooking = false })
	_, err = env.mgr.CreateHold(ctx, req)
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, RuleMultiServiceDisabled, pv.Rule)
}

// A request breaking both the lead time and the service cap reports the lead
// time: placement is checked before the chain rules.
func TestHoldCheckOrderLeadTimeFirst(t *testing.T) {
	env := newTestEnv(t)

	env.updateRule(t, func(r *models.BookingRule) { r.MaxServicesPerBooking = 1 })

	req := cutRequest(env.now.Add(30 * time.Minute))
	req.ServiceIDs = []string{"cut", "color"}

	_, err := env.mgr.CreateHold(context.Background(), req)
	var pv *PolicyViolationError
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, RuleLeadTime, pv.Rule)
}

func TestHoldConcurrentReservationLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	for _, hour := range []int{10, 12, 14} {
		_, err := env.mgr.CreateHold(ctx, cutRequest(day.Add(time.Duration(hour)*time.Hour)))
		require.NoError(t, err)
	}

	_, err := env.mgr.CreateHold(ctx, cutRequest(day.Add(16*time.Hour)))
	var pv *PolicyViolationError
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, RuleMaxConcurrentReservations, pv.Rule)

	// Once the holds lapse they stop counting.
	env.advance(11 * time.Minute)
	_, err = env.mgr.CreateHold(ctx, cutRequest(day.Add(16*time.Hour)))
	require.NoError(t, err)
}

func TestConfirmExpiredHold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	appt, err := env.mgr.CreateHold(ctx, cutRequest(start))
	require.NoError(t, err)

	env.advance(11 * time.Minute)
	_, err = env.mgr.ConfirmHold(ctx, appt.ID, models.ActorCustomer, "c1", false)
	assert.ErrorIs(t, err, ErrHoldExpired)
}

func TestConfirmRequiresDeposit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := cutRequest(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	req.ServiceIDs = []string{"color"}
	appt, err := env.mgr.CreateHold(ctx, req)
	require.NoError(t, err)
	assert.True(t, appt.DepositRequired)
	assert.Equal(t, int64(3000), appt.DepositAmountCents)

	_, err = env.mgr.ConfirmHold(ctx, appt.ID, models.ActorCustomer, "c1", false)
	assert.ErrorIs(t, err, ErrDepositRequired)

	got, err := env.mgr.ConfirmHold(ctx, appt.ID, models.ActorCustomer, "c1", true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)
	assert.True(t, got.DepositPaid)
}

// Prices snapshot at confirmation: edits before it reprice the booking, edits
// after it never touch the appointment.
func TestConfirmSnapshotsPrices(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	appt, err := env.mgr.CreateHold(ctx, cutRequest(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.Equal(t, int64(4500), appt.TotalPriceCents)

	raise := func(cents int64) {
		require.NoError(t, env.db.UpsertService(ctx, &models.Service{
			ID: "cut", SalonID: "s1", Name: "Haarschnitt", Slug: "haarschnitt",
			BaseDurationMinutes: 60, BufferAfterMinutes: 15, CurrentPriceCents: cents,
			TaxRatePercent: 19, IsBookableOnline: true, IsActive: true,
		}))
	}

	raise(5000)
	got, err := env.mgr.ConfirmHold(ctx, appt.ID, models.ActorCustomer, "c1", false)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), got.TotalPriceCents)

	raise(6000)
	reloaded, err := env.db.AppointmentByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), reloaded.TotalPriceCents)

	services, err := env.db.AppointmentServices(ctx, appt.ID)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, int64(5000), services[0].SnapshotPriceCents)
}

func TestApprovalFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.updateRule(t, func(r *models.BookingRule) { r.RequiresApproval = true })

	appt, err := env.mgr.CreateHold(ctx, cutRequest(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	got, err := env.mgr.ConfirmHold(ctx, appt.ID, models.ActorCustomer, "c1", false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRequested, got.Status)

	_, err = env.mgr.ApproveAppointment(ctx, appt.ID, models.ActorCustomer, "c1")
	assert.ErrorIs(t, err, ErrActorNotAllowed)

	approved, err := env.mgr.ApproveAppointment(ctx, appt.ID, models.ActorStaff, "anna")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, approved.Status)
}

func TestCancelFees(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Starts in two hours: inside the 24h cutoff, half the total is owed.
	near, err := env.mgr.CreateHold(ctx, cutRequest(env.now.Add(2*time.Hour)))
	require.NoError(t, err)
	_, err = env.mgr.ConfirmHold(ctx, near.ID, models.ActorCustomer, "c1", false)
	require.NoError(t, err)

	cancelled, fee, err := env.mgr.CancelAppointment(ctx, near.ID, models.ActorCustomer, "c1", "krank")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Equal(t, FeeOutcome{AmountCents: 2250, Basis: FeeLateCancellation}, fee)

	// Starts in three days: free.
	far, err := env.mgr.CreateHold(ctx, cutRequest(env.now.AddDate(0, 0, 3).Add(2*time.Hour)))
	require.NoError(t, err)
	_, err = env.mgr.ConfirmHold(ctx, far.ID, models.ActorCustomer, "c1", false)
	require.NoError(t, err)

	_, fee, err = env.mgr.CancelAppointment(ctx, far.ID, models.ActorCustomer, "c1", "")
	require.NoError(t, err)
	assert.Equal(t, FeeOutcome{Basis: FeeNone}, fee)
}

func TestCancelCompletedRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	appt, err := env.mgr.CreateHold(ctx, cutRequest(env.now.Add(2*time.Hour)))
	require.NoError(t, err)
	_, err = env.mgr.ConfirmHold(ctx, appt.ID, models.ActorCustomer, "c1", false)
	require.NoError(t, err)

	env.advance(4 * time.Hour)
	_, err = env.mgr.CompleteAppointment(ctx, appt.ID, models.ActorStaff, "anna")
	require.NoError(t, err)

	_, _, err = env.mgr.CancelAppointment(ctx, appt.ID, models.ActorCustomer, "c1", "")
	var it *InvalidTransitionError
	require.ErrorAs(t, err, &it)
	assert.Equal(t, models.StatusCompleted, it.From)
}

func TestMarkNoShow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := cutRequest(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	req.ServiceIDs = []string{"color"}
	appt, err := env.mgr.CreateHold(ctx, req)
	require.NoError(t, err)
	_, err = env.mgr.ConfirmHold(ctx, appt.ID, models.ActorCustomer, "c1", true)
	require.NoError(t, err)

	_, _, err = env.mgr.MarkNoShow(ctx, appt.ID, models.ActorCustomer, "c1")
	assert.ErrorIs(t, err, ErrActorNotAllowed)

	// Too early: the appointment has not started.
	_, _, err = env.mgr.MarkNoShow(ctx, appt.ID, models.ActorStaff, "anna")
	assert.ErrorIs(t, err, ErrNotStarted)

	env.advance(3 * time.Hour)
	marked, fee, err := env.mgr.MarkNoShow(ctx, appt.ID, models.ActorStaff, "anna")
	require.NoError(t, err)
	assert.Equal(t, models.StatusNoShow, marked.Status)
	assert.Equal(t, FeeOutcome{AmountCents: 3000, Basis: FeeDeposit}, fee)

	reloaded, err := env.db.AppointmentByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.NoShowFeeCharged)
	require.NotNil(t, reloaded.NoShowMarkedAt)
}

func TestCompleteRecordsVisit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	appt, err := env.mgr.CreateHold(ctx, cutRequest(env.now.Add(2*time.Hour)))
	require.NoError(t, err)
	_, err = env.mgr.ConfirmHold(ctx, appt.ID, models.ActorCustomer, "c1", false)
	require.NoError(t, err)

	env.advance(4 * time.Hour)
	done, err := env.mgr.CompleteAppointment(ctx, appt.ID, models.ActorStaff, "anna")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)

	customer, err := env.db.CustomerByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), customer.TotalVisits)
	assert.Equal(t, int64(4500), customer.TotalSpendCents)
}

func TestExpireStaleHolds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var expired int
	env.bus.Subscribe(events.EventHoldExpired, func(*events.Event) error { expired++; return nil })

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	for _, hour := range []int{10, 12} {
		_, err := env.mgr.CreateHold(ctx, cutRequest(day.Add(time.Duration(hour)*time.Hour)))
		require.NoError(t, err)
	}

	env.advance(11 * time.Minute)
	count, err := env.mgr.ExpireStaleHolds(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, expired)

	count, err = env.mgr.ExpireStaleHolds(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
