package availability

import (
	"context"
	"testing"
	"time"

	"terminbuch/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	salon    *models.Salon
	staff    []*models.Staff
	services map[string]*models.Service
	opening  map[models.Weekday]*models.OpeningHours
	working  map[string]map[models.Weekday]*models.StaffWorkingHours
	busy     map[string][]Interval
}

func (f *fakeSource) SalonByID(_ context.Context, id string) (*models.Salon, error) {
	return f.salon, nil
}

func (f *fakeSource) StaffByID(_ context.Context, id string) (*models.Staff, error) {
	for _, st := range f.staff {
		if st.ID == id {
			return st, nil
		}
	}
	return nil, ErrUnknownService
}

func (f *fakeSource) BookableStaff(_ context.Context, _ string) ([]*models.Staff, error) {
	return f.staff, nil
}

func (f *fakeSource) ServicesByIDs(_ context.Context, _ string, ids []string) ([]*models.Service, error) {
	var out []*models.Service
	for _, id := range ids {
		if svc, ok := f.services[id]; ok {
			out = append(out, svc)
		}
	}
	return out, nil
}

func (f *fakeSource) OpeningHoursFor(_ context.Context, _ string, day models.Weekday) (*models.OpeningHours, error) {
	return f.opening[day], nil
}

func (f *fakeSource) WorkingHoursFor(_ context.Context, staffID string, day models.Weekday) (*models.StaffWorkingHours, error) {
	if byDay, ok := f.working[staffID]; ok {
		return byDay[day], nil
	}
	return nil, nil
}

func (f *fakeSource) BusyIntervals(_ context.Context, _ []string, _, _, _ time.Time) (map[string][]Interval, error) {
	return f.busy, nil
}

func allDayWindow(open, close int) map[models.Weekday]*models.OpeningHours {
	out := make(map[models.Weekday]*models.OpeningHours)
	for _, d := range []models.Weekday{
		models.Monday, models.Tuesday, models.Wednesday, models.Thursday,
		models.Friday, models.Saturday, models.Sunday,
	} {
		out[d] = &models.OpeningHours{SalonID: "s1", DayOfWeek: d, OpenTimeMinutes: open, CloseTimeMinutes: close}
	}
	return out
}

func newTestSource() *fakeSource {
	staff := &models.Staff{ID: "anna", SalonID: "s1", IsActive: true, IsBookableOnline: true}
	return &fakeSource{
		salon: &models.Salon{ID: "s1", Timezone: "UTC", IsActive: true},
		staff: []*models.Staff{staff},
		services: map[string]*models.Service{
			"cut": {
				ID: "cut", SalonID: "s1", BaseDurationMinutes: 60, BufferAfterMinutes: 15,
				IsActive: true, IsBookableOnline: true,
			},
		},
		opening: allDayWindow(540, 1080), // 09:00 - 18:00
		working: map[string]map[models.Weekday]*models.StaffWorkingHours{
			"anna": workingAllWeek("anna", 540, 1080),
		},
	}
}

func workingAllWeek(staffID string, start, end int) map[models.Weekday]*models.StaffWorkingHours {
	out := make(map[models.Weekday]*models.StaffWorkingHours)
	for _, d := range []models.Weekday{
		models.Monday, models.Tuesday, models.Wednesday, models.Thursday,
		models.Friday, models.Saturday, models.Sunday,
	} {
		out[d] = &models.StaffWorkingHours{StaffID: staffID, DayOfWeek: d, StartTimeMinutes: start, EndTimeMinutes: end}
	}
	return out
}

func testRule() *models.BookingRule {
	return &models.BookingRule{
		SalonID:                   "s1",
		SlotGranularityMinutes:    15,
		MaxBookingHorizonDays:     60,
		ReservationTTLMinutes:     10,
		MaxConcurrentReservations: 3,
	}
}

func slotStarts(slots []Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Start.Format("15:04")
	}
	return out
}

// A 60-minute cut with a 15-minute cleanup buffer around an existing
// 10:00-11:00 appointment: the buffer pushes the next bookable start to
// 11:15, while 09:00 still works because the cut itself ends exactly when
// the existing appointment begins.
func TestSlotsAroundBufferedAppointment(t *testing.T) {
	src := newTestSource()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	// Existing appointment stored 10:00-11:00, widened by its own trailing
	// buffer to 11:15.
	src.busy = map[string][]Interval{
		"anna": {{Start: day.Add(10 * time.Hour), End: day.Add(11*time.Hour + 15*time.Minute)}},
	}

	logger := zerolog.Nop()
	calc := NewCalculator(src, &logger)

	now := day.Add(-24 * time.Hour)
	slots, err := calc.Slots(context.Background(), Request{
		SalonID:    "s1",
		StaffID:    "anna",
		ServiceIDs: []string{"cut"},
		From:       day.Add(9 * time.Hour),
		To:         day.Add(12 * time.Hour),
	}, testRule(), now)
	require.NoError(t, err)

	assert.Equal(t, []string{"09:00", "11:15", "11:30", "11:45"}, slotStarts(slots))
}

func TestSlotsEmptyCalendar(t *testing.T) {
	src := newTestSource()
	logger := zerolog.Nop()
	calc := NewCalculator(src, &logger)

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	now := day.Add(-24 * time.Hour)
	slots, err := calc.Slots(context.Background(), Request{
		SalonID:    "s1",
		StaffID:    "anna",
		ServiceIDs: []string{"cut"},
		From:       day.Add(9 * time.Hour),
		To:         day.Add(10 * time.Hour),
	}, testRule(), now)
	require.NoError(t, err)

	// 09:00, 09:15, 09:30, 09:45 all fit; candidate starts stop at the query
	// bound even though the chain runs past it.
	assert.Equal(t, []string{"09:00", "09:15", "09:30", "09:45"}, slotStarts(slots))
}

// The trailing buffer must fit before the salon closes, not before the query
// bound: a cut at 16:45 ends at 17:45 and its cleanup runs until 18:00.
func TestSlotsTrailingBufferAgainstClose(t *testing.T) {
	src := newTestSource()
	logger := zerolog.Nop()
	calc := NewCalculator(src, &logger)

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	now := day.Add(-24 * time.Hour)
	slots, err := calc.Slots(context.Background(), Request{
		SalonID:    "s1",
		StaffID:    "anna",
		ServiceIDs: []string{"cut"},
		From:       day.Add(16*time.Hour + 30*time.Minute),
		To:         day.Add(18 * time.Hour),
	}, testRule(), now)
	require.NoError(t, err)

	assert.Equal(t, []string{"16:30", "16:45"}, slotStarts(slots))
}

func TestSlotsRespectLeadTime(t *testing.T) {
	src := newTestSource()
	logger := zerolog.Nop()
	calc := NewCalculator(src, &logger)

	rule := testRule()
	rule.MinLeadTimeMinutes = 60

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	now := day.Add(9 * time.Hour) // querying at opening time
	slots, err := calc.Slots(context.Background(), Request{
		SalonID:    "s1",
		StaffID:    "anna",
		ServiceIDs: []string{"cut"},
		From:       day.Add(9 * time.Hour),
		To:         day.Add(11 * time.Hour),
	}, rule, now)
	require.NoError(t, err)

	assert.Equal(t, []string{"10:00", "10:15", "10:30", "10:45"}, slotStarts(slots))
}

func TestSlotsRespectHorizon(t *testing.T) {
	src := newTestSource()
	logger := zerolog.Nop()
	calc := NewCalculator(src, &logger)

	rule := testRule()
	rule.MaxBookingHorizonDays = 1

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	now := day
	slots, err := calc.Slots(context.Background(), Request{
		SalonID:    "s1",
		StaffID:    "anna",
		ServiceIDs: []string{"cut"},
		From:       day.AddDate(0, 0, 5),
		To:         day.AddDate(0, 0, 6),
	}, rule, now)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestSlotsUnknownService(t *testing.T) {
	src := newTestSource()
	logger := zerolog.Nop()
	calc := NewCalculator(src, &logger)

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	_, err := calc.Slots(context.Background(), Request{
		SalonID:    "s1",
		StaffID:    "anna",
		ServiceIDs: []string{"perm"},
		From:       day.Add(9 * time.Hour),
		To:         day.Add(12 * time.Hour),
	}, testRule(), day)
	assert.ErrorIs(t, err, ErrUnknownService)
}

func TestSlotsMultiServiceChain(t *testing.T) {
	src := newTestSource()
	src.services["color"] = &models.Service{
		ID: "color", SalonID: "s1", BaseDurationMinutes: 90,
		BufferBeforeMinutes: 10, BufferAfterMinutes: 20,
		IsActive: true, IsBookableOnline: true,
	}

	logger := zerolog.Nop()
	calc := NewCalculator(src, &logger)

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	now := day.Add(-24 * time.Hour)
	slots, err := calc.Slots(context.Background(), Request{
		SalonID:    "s1",
		StaffID:    "anna",
		ServiceIDs: []string{"cut", "color"},
		From:       day.Add(9 * time.Hour),
		To:         day.Add(10 * time.Hour),
	}, testRule(), now)
	require.NoError(t, err)

	// Chain: 60 + max(15, 10) + 90 = 165 minutes, ending 11:45 for the 09:00
	// start, trailing buffer until 12:05.
	require.NotEmpty(t, slots)
	assert.Equal(t, "09:00", slots[0].Start.Format("15:04"))
	assert.Equal(t, "11:45", slots[0].End.Format("15:04"))
}

func TestSlotsClosedDay(t *testing.T) {
	src := newTestSource()
	delete(src.opening, models.Monday)

	logger := zerolog.Nop()
	calc := NewCalculator(src, &logger)

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday
	now := day.Add(-24 * time.Hour)
	slots, err := calc.Slots(context.Background(), Request{
		SalonID:    "s1",
		StaffID:    "anna",
		ServiceIDs: []string{"cut"},
		From:       day.Add(9 * time.Hour),
		To:         day.Add(12 * time.Hour),
	}, testRule(), now)
	require.NoError(t, err)
	assert.Empty(t, slots)
}
