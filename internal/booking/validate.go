package booking

import (
	"time"

	"terminbuch/internal/models"
)

// validateChain applies the per-request service rules: everything must be
// bookable online and the chain length must fit the salon's policy.
func validateChain(rule *models.BookingRule, services []*models.Service) error {
	for _, svc := range services {
		if !svc.IsActive || !svc.IsBookableOnline {
			return violation(RuleNotBookableOnline, "service %s is not bookable online", svc.ID)
		}
	}
	if len(services) > 1 {
		if !rule.AllowMultiServiceBooking {
			return violation(RuleMultiServiceDisabled, "salon does not accept multi-service bookings")
		}
		if len(services) > rule.MaxServicesPerBooking {
			return violation(RuleMaxServices, "%d services requested, at most %d allowed",
				len(services), rule.MaxServicesPerBooking)
		}
	}
	return nil
}

// validatePlacement checks lead time and booking horizon for the requested
// start instant.
func validatePlacement(rule *models.BookingRule, startsAt, now time.Time) error {
	if startsAt.Before(now.Add(rule.LeadTime())) {
		return violation(RuleLeadTime, "start %s is inside the %s lead window",
			startsAt.Format(time.RFC3339), rule.LeadTime())
	}
	if startsAt.After(rule.HorizonEnd(now)) {
		return violation(RuleHorizon, "start %s is beyond the %d-day horizon",
			startsAt.Format(time.RFC3339), rule.MaxBookingHorizonDays)
	}
	return nil
}

// validateConcurrent enforces the per-customer cap on simultaneously live
// reservations.
func validateConcurrent(rule *models.BookingRule, active int) error {
	if active >= rule.MaxConcurrentReservations {
		return violation(RuleMaxConcurrentReservations, "customer already has %d active reservations", active)
	}
	return nil
}
