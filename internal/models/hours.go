package models

import "time"

// OpeningHours is the salon operating window for one weekday, as minute
// offsets from local midnight. One row per (salon, weekday).
type OpeningHours struct {
	ID               string  `yaml:"id" json:"id"`
	SalonID          string  `yaml:"salon_id" json:"salon_id"`
	DayOfWeek        Weekday `yaml:"day_of_week" json:"day_of_week"`
	OpenTimeMinutes  int     `yaml:"open_time_minutes" json:"open_time_minutes"`
	CloseTimeMinutes int     `yaml:"close_time_minutes" json:"close_time_minutes"`
	IsClosed         bool    `yaml:"is_closed" json:"is_closed"`
}

// StaffWorkingHours is one staff member's window for a weekday. It must stay
// inside the salon's OpeningHours for the same weekday; the catalog loader
// enforces that.
type StaffWorkingHours struct {
	ID               string  `yaml:"id" json:"id"`
	StaffID          string  `yaml:"staff_id" json:"staff_id"`
	DayOfWeek        Weekday `yaml:"day_of_week" json:"day_of_week"`
	StartTimeMinutes int     `yaml:"start_time_minutes" json:"start_time_minutes"`
	EndTimeMinutes   int     `yaml:"end_time_minutes" json:"end_time_minutes"`
	IsDayOff         bool    `yaml:"is_day_off" json:"is_day_off"`
}

// BlockedTime marks a staff (or whole-salon when StaffID is empty) interval
// unavailable for reasons other than appointments.
type BlockedTime struct {
	ID        string          `yaml:"id" json:"id"`
	SalonID   string          `yaml:"salon_id" json:"salon_id"`
	StaffID   string          `yaml:"staff_id" json:"staff_id,omitempty"`
	StartsAt  time.Time       `yaml:"starts_at" json:"starts_at"`
	EndsAt    time.Time       `yaml:"ends_at" json:"ends_at"`
	BlockType BlockedTimeType `yaml:"block_type" json:"block_type"`
	Reason    string          `yaml:"reason" json:"reason,omitempty"`
}
