package domain

import (
	"context"
	"time"

	"terminbuch/internal/availability"
	"terminbuch/internal/models"
)

// Store is the persistence surface the booking engine works against.
// *database.DB satisfies it; tests substitute fakes for failure injection.
type Store interface {
	SalonByID(ctx context.Context, id string) (*models.Salon, error)
	StaffByID(ctx context.Context, id string) (*models.Staff, error)
	BookableStaff(ctx context.Context, salonID string) ([]*models.Staff, error)
	ServicesByIDs(ctx context.Context, salonID string, ids []string) ([]*models.Service, error)
	CustomerByID(ctx context.Context, id string) (*models.Customer, error)
	ActiveRule(ctx context.Context, salonID string) (*models.BookingRule, error)
	OpeningHoursFor(ctx context.Context, salonID string, day models.Weekday) (*models.OpeningHours, error)
	WorkingHoursFor(ctx context.Context, staffID string, day models.Weekday) (*models.StaffWorkingHours, error)
	BusyIntervals(ctx context.Context, staffIDs []string, from, to, now time.Time) (map[string][]availability.Interval, error)

	CreateHold(ctx context.Context, appt *models.Appointment, now time.Time) error
	AppointmentByID(ctx context.Context, id string) (*models.Appointment, error)
	AppointmentServices(ctx context.Context, apptID string) ([]models.AppointmentService, error)
	ConfirmHold(ctx context.Context, apptID string, fromVersion int64, to models.AppointmentStatus,
		snapshots []models.AppointmentService, totalCents int64, depositPaid bool,
		actor models.Actor, actorID string, now time.Time) error
	TransitionStatus(ctx context.Context, change models.StatusChange, now time.Time) error
	ExpireStaleHolds(ctx context.Context, now time.Time) ([]string, error)
	CountActiveReservations(ctx context.Context, salonID, customerID string, now time.Time) (int, error)
	RecordCompletedVisit(ctx context.Context, customerID string, spentCents int64) error
}

// EventPublisher decouples the engine from event delivery.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// RateLimiter is a sliding-window limiter keyed by caller identity.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
