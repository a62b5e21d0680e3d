package booking

import (
	"time"

	"terminbuch/internal/models"
)

// FeeBasis names how a fee amount was derived, for the audit trail and API
// responses.
type FeeBasis string

const (
	FeeNone             FeeBasis = "none"
	FeeLateCancellation FeeBasis = "late_cancellation"
	FeeDeposit          FeeBasis = "deposit"
	FeeFullPrice        FeeBasis = "full_price"
	FeeFlatOverride     FeeBasis = "flat_override"
)

// FeeOutcome is the result of applying a cancellation or no-show policy.
type FeeOutcome struct {
	AmountCents int64    `json:"amount_cents"`
	Basis       FeeBasis `json:"basis"`
}

// EvaluateCancellation computes the fee owed for cancelling at the given
// instant. The fee applies only when the remaining time to the appointment is
// strictly shorter than the cutoff; at or before the cutoff instant
// cancellation is free. Requested appointments were never confirmed, so they
// always cancel free.
func EvaluateCancellation(appt *models.Appointment, rule *models.BookingRule, now time.Time) FeeOutcome {
	if appt.Status != models.StatusConfirmed {
		return FeeOutcome{Basis: FeeNone}
	}
	cutoff := appt.StartsAt.Add(-rule.CancellationCutoff())
	if !now.After(cutoff) {
		return FeeOutcome{Basis: FeeNone}
	}
	fee := appt.TotalPriceCents * int64(rule.CancellationFeePercent) / 100
	if fee == 0 {
		return FeeOutcome{Basis: FeeNone}
	}
	return FeeOutcome{AmountCents: fee, Basis: FeeLateCancellation}
}

// EvaluateNoShow computes the fee for a missed confirmed appointment. A flat
// no_show_fee_cents overrides the derived amount when set; charge_full always
// means the full total regardless of any deposit already paid.
func EvaluateNoShow(appt *models.Appointment, rule *models.BookingRule) FeeOutcome {
	switch rule.NoShowPolicy {
	case models.NoShowChargeDeposit:
		if rule.NoShowFeeCents > 0 {
			return FeeOutcome{AmountCents: rule.NoShowFeeCents, Basis: FeeFlatOverride}
		}
		if appt.DepositRequired && appt.DepositAmountCents > 0 {
			return FeeOutcome{AmountCents: appt.DepositAmountCents, Basis: FeeDeposit}
		}
		return FeeOutcome{Basis: FeeNone}
	case models.NoShowChargeFull:
		if appt.TotalPriceCents > 0 {
			return FeeOutcome{AmountCents: appt.TotalPriceCents, Basis: FeeFullPrice}
		}
		return FeeOutcome{Basis: FeeNone}
	default:
		return FeeOutcome{Basis: FeeNone}
	}
}

// DepositFor computes whether a booking needs a deposit and how much.
// Per-service amounts take precedence; otherwise the salon-wide percentage
// of the total applies, floored at the configured minimum.
func DepositFor(rule *models.BookingRule, services []*models.Service, totalCents int64) (bool, int64) {
	var perService int64
	var anyRequires bool
	for _, svc := range services {
		if svc.RequiresDeposit {
			anyRequires = true
			perService += svc.DepositAmountCents
		}
	}
	if !anyRequires && !rule.DefaultDepositRequired {
		return false, 0
	}
	amount := perService
	if amount == 0 {
		amount = totalCents * int64(rule.DefaultDepositPercent) / 100
	}
	if amount < rule.MinimumDepositAmountCents {
		amount = rule.MinimumDepositAmountCents
	}
	return true, amount
}
