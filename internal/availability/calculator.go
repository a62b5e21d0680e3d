package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"terminbuch/internal/models"

	"github.com/rs/zerolog"
)

var ErrUnknownService = errors.New("unknown service")

// CalendarSource is the read-only view of salon hours, staff hours and
// occupied time the calculator derives free slots from. BusyIntervals must
// observe one consistent snapshot of appointments and holds.
type CalendarSource interface {
	SalonByID(ctx context.Context, id string) (*models.Salon, error)
	StaffByID(ctx context.Context, id string) (*models.Staff, error)
	BookableStaff(ctx context.Context, salonID string) ([]*models.Staff, error)
	ServicesByIDs(ctx context.Context, salonID string, ids []string) ([]*models.Service, error)
	OpeningHoursFor(ctx context.Context, salonID string, day models.Weekday) (*models.OpeningHours, error)
	WorkingHoursFor(ctx context.Context, staffID string, day models.Weekday) (*models.StaffWorkingHours, error)
	BusyIntervals(ctx context.Context, staffIDs []string, from, to, now time.Time) (map[string][]Interval, error)
}

// Request asks for candidate start times for an ordered service chain.
// StaffID empty means "any qualified staff member of the salon".
type Request struct {
	SalonID    string
	StaffID    string
	ServiceIDs []string
	From       time.Time
	To         time.Time
}

// Slot is one bookable candidate: the service chain would run [Start, End)
// with the given staff member.
type Slot struct {
	StaffID string    `json:"staff_id"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

type Calculator struct {
	src CalendarSource
	log zerolog.Logger
}

func NewCalculator(src CalendarSource, logger *zerolog.Logger) *Calculator {
	return &Calculator{
		src: src,
		log: logger.With().Str("component", "availability").Logger(),
	}
}

// Slots walks each candidate day in the requested range and emits start
// times where the full service chain fits. An empty result is a valid
// answer, not an error. Candidates respect the rule's lead time and booking
// horizon; the request range only bounds candidate starts, the working
// window close is what the required span must fit before.
func (c *Calculator) Slots(ctx context.Context, req Request, rule *models.BookingRule, now time.Time) ([]Slot, error) {
	if len(req.ServiceIDs) == 0 {
		return nil, fmt.Errorf("%w: no services requested", ErrUnknownService)
	}
	if !req.To.After(req.From) {
		return nil, nil
	}

	salon, err := c.src.SalonByID(ctx, req.SalonID)
	if err != nil {
		return nil, err
	}
	if !salon.IsActive {
		return nil, nil
	}
	loc, err := salon.Location()
	if err != nil {
		return nil, fmt.Errorf("salon %s timezone: %w", salon.ID, err)
	}

	services, err := c.src.ServicesByIDs(ctx, req.SalonID, req.ServiceIDs)
	if err != nil {
		return nil, err
	}
	if len(services) != len(req.ServiceIDs) {
		return nil, fmt.Errorf("%w: %d of %d requested services exist", ErrUnknownService, len(services), len(req.ServiceIDs))
	}
	for _, svc := range services {
		if !svc.IsActive || !svc.IsBookableOnline {
			return nil, nil
		}
	}
	chain, lead, trail := ChainSpan(services)

	staff, err := c.qualifiedStaff(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(staff) == 0 {
		return nil, nil
	}

	staffIDs := make([]string, len(staff))
	for i, st := range staff {
		staffIDs[i] = st.ID
	}

	// Pad the busy window so buffers of neighboring appointments outside the
	// range still count.
	pad := time.Duration(chain+lead+trail+24*60) * time.Minute
	busy, err := c.src.BusyIntervals(ctx, staffIDs, req.From.Add(-pad), req.To.Add(pad), now)
	if err != nil {
		return nil, err
	}

	notBefore := now.Add(rule.LeadTime())
	if req.From.After(notBefore) {
		notBefore = req.From
	}
	horizon := rule.HorizonEnd(now)

	var slots []Slot
	from := req.From.In(loc)
	to := req.To.In(loc)
	for day := startOfDay(from); day.Before(to); day = day.AddDate(0, 0, 1) {
		window, ok, err := c.workingWindow(ctx, salon.ID, day)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for _, st := range staff {
			swin, ok, err := c.staffWindow(ctx, st.ID, day, window)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			slots = append(slots, walk(st.ID, swin, rule.SlotGranularityMinutes, chain, lead, trail,
				busy[st.ID], notBefore, horizon, to)...)
		}
	}

	sortSlots(slots, staff)
	return slots, nil
}

func (c *Calculator) qualifiedStaff(ctx context.Context, req Request) ([]*models.Staff, error) {
	if req.StaffID == "" {
		return c.src.BookableStaff(ctx, req.SalonID)
	}
	st, err := c.src.StaffByID(ctx, req.StaffID)
	if err != nil {
		return nil, err
	}
	if st.SalonID != req.SalonID || !st.IsActive || !st.IsBookableOnline {
		return nil, nil
	}
	return []*models.Staff{st}, nil
}

// workingWindow resolves the salon opening window for a local calendar day.
func (c *Calculator) workingWindow(ctx context.Context, salonID string, day time.Time) (Interval, bool, error) {
	oh, err := c.src.OpeningHoursFor(ctx, salonID, models.WeekdayOf(day))
	if err != nil {
		return Interval{}, false, err
	}
	if oh == nil || oh.IsClosed || oh.CloseTimeMinutes <= oh.OpenTimeMinutes {
		return Interval{}, false, nil
	}
	return Interval{
		Start: day.Add(time.Duration(oh.OpenTimeMinutes) * time.Minute),
		End:   day.Add(time.Duration(oh.CloseTimeMinutes) * time.Minute),
	}, true, nil
}

// staffWindow intersects the opening window with the staff member's working
// hours for that day.
func (c *Calculator) staffWindow(ctx context.Context, staffID string, day time.Time, open Interval) (Interval, bool, error) {
	wh, err := c.src.WorkingHoursFor(ctx, staffID, models.WeekdayOf(day))
	if err != nil {
		return Interval{}, false, err
	}
	if wh == nil || wh.IsDayOff || wh.EndTimeMinutes <= wh.StartTimeMinutes {
		return Interval{}, false, nil
	}
	win := Interval{
		Start: day.Add(time.Duration(wh.StartTimeMinutes) * time.Minute),
		End:   day.Add(time.Duration(wh.EndTimeMinutes) * time.Minute),
	}
	if win.Start.Before(open.Start) {
		win.Start = open.Start
	}
	if win.End.After(open.End) {
		win.End = open.End
	}
	if !win.End.After(win.Start) {
		return Interval{}, false, nil
	}
	return win, true, nil
}

// walk emits candidate starts at granularity steps from the window open.
func walk(staffID string, win Interval, granularity, chain, lead, trail int, busy []Interval,
	notBefore, horizon, queryEnd time.Time) []Slot {
	if granularity <= 0 {
		return nil
	}
	step := time.Duration(granularity) * time.Minute
	var out []Slot
	for s := win.Start.Add(time.Duration(lead) * time.Minute); s.Before(win.End); s = s.Add(step) {
		if s.Before(notBefore) {
			continue
		}
		if s.After(horizon) || !s.Before(queryEnd) {
			break
		}
		if !Fits(s, chain, lead, trail, win.Start, win.End, busy) {
			continue
		}
		out = append(out, Slot{
			StaffID: staffID,
			Start:   s,
			End:     s.Add(time.Duration(chain) * time.Minute),
		})
	}
	return out
}

func sortSlots(slots []Slot, staff []*models.Staff) {
	order := make(map[string]int, len(staff))
	for i, st := range staff {
		order[st.ID] = i
	}
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].StaffID != slots[j].StaffID {
			return order[slots[i].StaffID] < order[slots[j].StaffID]
		}
		return slots[i].Start.Before(slots[j].Start)
	})
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
