package booking

import (
	"testing"
	"time"

	"terminbuch/internal/models"

	"github.com/stretchr/testify/assert"
)

func feeRule() *models.BookingRule {
	return &models.BookingRule{
		SalonID:                 "s1",
		CancellationCutoffHours: 24,
		CancellationFeePercent:  50,
		NoShowPolicy:            models.NoShowChargeDeposit,
	}
}

func TestEvaluateCancellationOutsideCutoff(t *testing.T) {
	start := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	appt := &models.Appointment{Status: models.StatusConfirmed, StartsAt: start, TotalPriceCents: 4500}

	// 48 hours before start: free.
	fee := EvaluateCancellation(appt, feeRule(), start.Add(-48*time.Hour))
	assert.Equal(t, FeeOutcome{Basis: FeeNone}, fee)
}

func TestEvaluateCancellationInsideCutoff(t *testing.T) {
	start := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	appt := &models.Appointment{Status: models.StatusConfirmed, StartsAt: start, TotalPriceCents: 4500}

	// 2 hours before start: half the booked total.
	fee := EvaluateCancellation(appt, feeRule(), start.Add(-2*time.Hour))
	assert.Equal(t, FeeOutcome{AmountCents: 2250, Basis: FeeLateCancellation}, fee)

	// Exactly at the cutoff instant the customer still cancels free; one
	// second later the fee applies.
	fee = EvaluateCancellation(appt, feeRule(), start.Add(-24*time.Hour))
	assert.Equal(t, FeeOutcome{Basis: FeeNone}, fee)

	fee = EvaluateCancellation(appt, feeRule(), start.Add(-24*time.Hour).Add(time.Second))
	assert.Equal(t, FeeOutcome{AmountCents: 2250, Basis: FeeLateCancellation}, fee)
}

func TestEvaluateCancellationRequestedIsFree(t *testing.T) {
	start := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	appt := &models.Appointment{Status: models.StatusRequested, StartsAt: start, TotalPriceCents: 4500}

	fee := EvaluateCancellation(appt, feeRule(), start.Add(-time.Hour))
	assert.Equal(t, FeeOutcome{Basis: FeeNone}, fee)
}

func TestEvaluateNoShowChargeDeposit(t *testing.T) {
	appt := &models.Appointment{
		Status: models.StatusConfirmed, TotalPriceCents: 12000,
		DepositRequired: true, DepositAmountCents: 3000,
	}

	fee := EvaluateNoShow(appt, feeRule())
	assert.Equal(t, FeeOutcome{AmountCents: 3000, Basis: FeeDeposit}, fee)

	// No deposit on the appointment: nothing to charge.
	bare := &models.Appointment{Status: models.StatusConfirmed, TotalPriceCents: 12000}
	fee = EvaluateNoShow(bare, feeRule())
	assert.Equal(t, FeeOutcome{Basis: FeeNone}, fee)
}

func TestEvaluateNoShowFlatOverride(t *testing.T) {
	rule := feeRule()
	rule.NoShowFeeCents = 1500
	appt := &models.Appointment{
		Status: models.StatusConfirmed, TotalPriceCents: 12000,
		DepositRequired: true, DepositAmountCents: 3000,
	}

	fee := EvaluateNoShow(appt, rule)
	assert.Equal(t, FeeOutcome{AmountCents: 1500, Basis: FeeFlatOverride}, fee)
}

func TestEvaluateNoShowChargeFullIgnoresDeposit(t *testing.T) {
	rule := feeRule()
	rule.NoShowPolicy = models.NoShowChargeFull
	appt := &models.Appointment{
		Status: models.StatusConfirmed, TotalPriceCents: 12000,
		DepositRequired: true, DepositAmountCents: 3000,
	}

	fee := EvaluateNoShow(appt, rule)
	assert.Equal(t, FeeOutcome{AmountCents: 12000, Basis: FeeFullPrice}, fee)
}

func TestDepositForPerServiceAmounts(t *testing.T) {
	rule := &models.BookingRule{DefaultDepositPercent: 20, MinimumDepositAmountCents: 500}
	services := []*models.Service{
		{ID: "cut", CurrentPriceCents: 4500},
		{ID: "color", CurrentPriceCents: 12000, RequiresDeposit: true, DepositAmountCents: 3000},
	}

	required, amount := DepositFor(rule, services, 16500)
	assert.True(t, required)
	assert.Equal(t, int64(3000), amount)
}

func TestDepositForSalonDefaultPercent(t *testing.T) {
	rule := &models.BookingRule{
		DefaultDepositRequired: true, DefaultDepositPercent: 20, MinimumDepositAmountCents: 500,
	}
	services := []*models.Service{{ID: "cut", CurrentPriceCents: 4500}}

	required, amount := DepositFor(rule, services, 4500)
	assert.True(t, required)
	assert.Equal(t, int64(900), amount)
}

func TestDepositForMinimumFloor(t *testing.T) {
	rule := &models.BookingRule{
		DefaultDepositRequired: true, DefaultDepositPercent: 10, MinimumDepositAmountCents: 1000,
	}
	services := []*models.Service{{ID: "cut", CurrentPriceCents: 4500}}

	required, amount := DepositFor(rule, services, 4500)
	assert.True(t, required)
	assert.Equal(t, int64(1000), amount)
}

func TestDepositForNoneRequired(t *testing.T) {
	rule := &models.BookingRule{DefaultDepositPercent: 20}
	services := []*models.Service{{ID: "cut", CurrentPriceCents: 4500}}

	required, amount := DepositFor(rule, services, 4500)
	assert.False(t, required)
	assert.Zero(t, amount)
}
