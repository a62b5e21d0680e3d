package models

import "time"

// AppointmentStatus values follow the appointment lifecycle. "expired" is a
// tombstone for holds whose TTL lapsed before confirmation.
type AppointmentStatus string

const (
	StatusReserved  AppointmentStatus = "reserved"
	StatusRequested AppointmentStatus = "requested"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusNoShow    AppointmentStatus = "no_show"
	StatusExpired   AppointmentStatus = "expired"
)

// Occupying reports whether the status blocks the staff calendar. Reserved
// holds additionally stop occupying once reserved_until passes, see
// Appointment.OccupiesAt.
func (s AppointmentStatus) Occupying() bool {
	switch s {
	case StatusReserved, StatusRequested, StatusConfirmed:
		return true
	}
	return false
}

func (s AppointmentStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow, StatusExpired:
		return true
	}
	return false
}

// allowedTransitions is the explicit edge list of the appointment state
// machine. Anything not listed is an invalid transition.
var allowedTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusReserved:  {StatusRequested, StatusConfirmed, StatusExpired},
	StatusRequested: {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled, StatusCompleted, StatusNoShow},
}

func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Actor identifies who performs a ledger transition.
type Actor string

const (
	ActorCustomer Actor = "customer"
	ActorStaff    Actor = "staff"
	ActorSystem   Actor = "system"
)

// CanFinalize reports whether the actor may set completed/no_show.
func (a Actor) CanFinalize() bool {
	return a == ActorStaff || a == ActorSystem
}

type NoShowPolicy string

const (
	NoShowNone          NoShowPolicy = "none"
	NoShowChargeDeposit NoShowPolicy = "charge_deposit"
	NoShowChargeFull    NoShowPolicy = "charge_full"
)

func (p NoShowPolicy) Valid() bool {
	switch p {
	case NoShowNone, NoShowChargeDeposit, NoShowChargeFull:
		return true
	}
	return false
}

type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

var weekdayFromTime = map[time.Weekday]Weekday{
	time.Monday:    Monday,
	time.Tuesday:   Tuesday,
	time.Wednesday: Wednesday,
	time.Thursday:  Thursday,
	time.Friday:    Friday,
	time.Saturday:  Saturday,
	time.Sunday:    Sunday,
}

func WeekdayOf(t time.Time) Weekday {
	return weekdayFromTime[t.Weekday()]
}

type BlockedTimeType string

const (
	BlockStaffBreak   BlockedTimeType = "staff_break"
	BlockStaffMeeting BlockedTimeType = "staff_meeting"
	BlockSalonClosed  BlockedTimeType = "salon_closed"
	BlockMaintenance  BlockedTimeType = "maintenance"
	BlockOther        BlockedTimeType = "other"
)
