package booking

import (
	"errors"
	"fmt"

	"terminbuch/internal/models"
)

var (
	ErrSlotUnavailable     = errors.New("requested slot is no longer available")
	ErrHoldExpired         = errors.New("hold has expired")
	ErrDepositRequired     = errors.New("deposit payment required before confirmation")
	ErrConcurrencyConflict = errors.New("appointment was modified concurrently")
)

// RuleCode identifies which booking rule a request violated.
type RuleCode string

const (
	RuleNotBookableOnline         RuleCode = "not_bookable_online"
	RuleLeadTime                  RuleCode = "min_lead_time"
	RuleHorizon                   RuleCode = "max_booking_horizon"
	RuleMaxServices               RuleCode = "max_services_per_booking"
	RuleMultiServiceDisabled      RuleCode = "multi_service_disabled"
	RuleMaxConcurrentReservations RuleCode = "max_concurrent_reservations"
	RuleCancellationCutoff        RuleCode = "cancellation_cutoff"
)

// PolicyViolationError reports the first rule a booking request violated.
type PolicyViolationError struct {
	Rule   RuleCode
	Detail string
}

func (e *PolicyViolationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("policy violation: %s", e.Rule)
	}
	return fmt.Sprintf("policy violation: %s: %s", e.Rule, e.Detail)
}

func violation(rule RuleCode, format string, args ...any) error {
	return &PolicyViolationError{Rule: rule, Detail: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError reports a state machine edge that does not exist.
type InvalidTransitionError struct {
	From models.AppointmentStatus
	To   models.AppointmentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}
