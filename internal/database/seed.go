package database

import (
	"context"
	"fmt"

	"terminbuch/internal/models"
)

// Catalog is the declarative seed for a deployment: salons, staff, the
// service menu, calendars and booking rules, loaded from yaml at startup.
type Catalog struct {
	Salons       []models.Salon            `yaml:"salons"`
	Staff        []models.Staff            `yaml:"staff"`
	Categories   []models.ServiceCategory  `yaml:"categories"`
	Services     []models.Service          `yaml:"services"`
	Customers    []models.Customer         `yaml:"customers"`
	OpeningHours []models.OpeningHours     `yaml:"opening_hours"`
	WorkingHours []models.StaffWorkingHours `yaml:"staff_working_hours"`
	Rules        []models.BookingRule      `yaml:"booking_rules"`
}

// Validate cross-checks the catalog before seeding: references resolve and
// staff hours stay inside the salon's opening window for the same weekday.
func (c *Catalog) Validate() error {
	salons := make(map[string]bool, len(c.Salons))
	for i := range c.Salons {
		s := &c.Salons[i]
		if s.ID == "" {
			return fmt.Errorf("salon %q has no id", s.Name)
		}
		if _, err := s.Location(); err != nil {
			return fmt.Errorf("salon %s: bad timezone %q: %w", s.ID, s.Timezone, err)
		}
		salons[s.ID] = true
	}

	staffSalon := make(map[string]string, len(c.Staff))
	for i := range c.Staff {
		st := &c.Staff[i]
		if !salons[st.SalonID] {
			return fmt.Errorf("staff %s references unknown salon %s", st.ID, st.SalonID)
		}
		staffSalon[st.ID] = st.SalonID
	}

	for i := range c.Services {
		svc := &c.Services[i]
		if !salons[svc.SalonID] {
			return fmt.Errorf("service %s references unknown salon %s", svc.ID, svc.SalonID)
		}
		if svc.BaseDurationMinutes <= 0 {
			return fmt.Errorf("service %s has non-positive duration", svc.ID)
		}
		if svc.BufferBeforeMinutes < 0 || svc.BufferAfterMinutes < 0 {
			return fmt.Errorf("service %s has negative buffers", svc.ID)
		}
	}

	open := make(map[string]map[models.Weekday]*models.OpeningHours)
	for i := range c.OpeningHours {
		oh := &c.OpeningHours[i]
		if !salons[oh.SalonID] {
			return fmt.Errorf("opening hours %s reference unknown salon %s", oh.ID, oh.SalonID)
		}
		if open[oh.SalonID] == nil {
			open[oh.SalonID] = make(map[models.Weekday]*models.OpeningHours)
		}
		if open[oh.SalonID][oh.DayOfWeek] != nil {
			return fmt.Errorf("salon %s has duplicate opening hours for %s", oh.SalonID, oh.DayOfWeek)
		}
		open[oh.SalonID][oh.DayOfWeek] = oh
	}

	for i := range c.WorkingHours {
		wh := &c.WorkingHours[i]
		salonID, ok := staffSalon[wh.StaffID]
		if !ok {
			return fmt.Errorf("working hours %s reference unknown staff %s", wh.ID, wh.StaffID)
		}
		if wh.IsDayOff {
			continue
		}
		oh := open[salonID][wh.DayOfWeek]
		if oh == nil || oh.IsClosed {
			return fmt.Errorf("staff %s works on %s but salon %s is closed", wh.StaffID, wh.DayOfWeek, salonID)
		}
		if wh.StartTimeMinutes < oh.OpenTimeMinutes || wh.EndTimeMinutes > oh.CloseTimeMinutes {
			return fmt.Errorf("staff %s hours on %s exceed salon %s opening window", wh.StaffID, wh.DayOfWeek, salonID)
		}
	}

	for i := range c.Rules {
		r := &c.Rules[i]
		if !salons[r.SalonID] {
			return fmt.Errorf("booking rule %s references unknown salon %s", r.ID, r.SalonID)
		}
		if err := r.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// SeedCatalog validates and upserts the whole catalog. Idempotent: existing
// rows are updated in place.
func (db *DB) SeedCatalog(ctx context.Context, cat *Catalog) error {
	if err := cat.Validate(); err != nil {
		return fmt.Errorf("catalog validation failed: %w", err)
	}

	for i := range cat.Salons {
		if err := db.UpsertSalon(ctx, &cat.Salons[i]); err != nil {
			return err
		}
	}
	for i := range cat.Staff {
		if err := db.UpsertStaff(ctx, &cat.Staff[i]); err != nil {
			return err
		}
	}
	for i := range cat.Categories {
		if err := db.UpsertServiceCategory(ctx, &cat.Categories[i]); err != nil {
			return err
		}
	}
	for i := range cat.Services {
		if err := db.UpsertService(ctx, &cat.Services[i]); err != nil {
			return err
		}
	}
	for i := range cat.Customers {
		if err := db.UpsertCustomer(ctx, &cat.Customers[i]); err != nil {
			return err
		}
	}
	for i := range cat.OpeningHours {
		if err := db.UpsertOpeningHours(ctx, &cat.OpeningHours[i]); err != nil {
			return err
		}
	}
	for i := range cat.WorkingHours {
		if err := db.UpsertStaffWorkingHours(ctx, &cat.WorkingHours[i]); err != nil {
			return err
		}
	}
	for i := range cat.Rules {
		if err := db.UpsertBookingRule(ctx, &cat.Rules[i]); err != nil {
			return err
		}
	}

	db.log.Info().
		Int("salons", len(cat.Salons)).
		Int("staff", len(cat.Staff)).
		Int("services", len(cat.Services)).
		Msg("catalog seeded")
	return nil
}
