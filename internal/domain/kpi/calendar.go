package kpi

import (
	"fmt"
	"time"
)

const (
	saturdayCycleDays     = 14
	defaultOverrideReason = "Closed for a scheduled holiday"
)

// CalendarOverrides pins specific dates open or closed for one location.
// Closed dates map to the reason shown to users; an empty reason falls back to a generic one.
type CalendarOverrides struct {
	Open   map[time.Time]struct{}
	Closed map[time.Time]string
}

// CalendarConfig is fixed for the lifetime of a BusinessCalendar.
type CalendarConfig struct {
	SaturdayAnchor time.Time
	Overrides      map[Location]CalendarOverrides
}

// BusinessCalendar decides whether a location operates on a date.
type BusinessCalendar struct {
	anchor    time.Time
	overrides map[Location]CalendarOverrides
	weekdays  map[Location]map[time.Weekday]bool
}

// NewBusinessCalendar normalises override dates and builds the weekday schedule.
func NewBusinessCalendar(cfg CalendarConfig) *BusinessCalendar {
	overrides := make(map[Location]CalendarOverrides, len(cfg.Overrides))
	for loc, o := range cfg.Overrides {
		norm := CalendarOverrides{
			Open:   make(map[time.Time]struct{}, len(o.Open)),
			Closed: make(map[time.Time]string, len(o.Closed)),
		}
		for d := range o.Open {
			norm.Open[DateOf(d)] = struct{}{}
		}
		for d, reason := range o.Closed {
			norm.Closed[DateOf(d)] = reason
		}
		overrides[loc] = norm
	}
	return &BusinessCalendar{
		anchor:    DateOf(cfg.SaturdayAnchor),
		overrides: overrides,
		weekdays: map[Location]map[time.Weekday]bool{
			LocationBaytown: {
				time.Monday: true, time.Tuesday: true, time.Wednesday: true,
				time.Thursday: true, time.Friday: true,
			},
			LocationHumble: {
				time.Monday: true, time.Tuesday: true, time.Wednesday: true,
				time.Thursday: true,
			},
		},
	}
}

// IsBusinessDay applies overrides, then the Sunday/Saturday rules, then the weekday schedule.
func (c *BusinessCalendar) IsBusinessDay(loc Location, date time.Time) (bool, error) {
	if !loc.Valid() {
		return false, fmt.Errorf("%w: %q", ErrUnsupportedLocation, string(loc))
	}
	day := DateOf(date)
	o := c.overrides[loc]
	if _, closed := o.Closed[day]; closed {
		return false, nil
	}
	if _, open := o.Open[day]; open {
		return true, nil
	}
	switch day.Weekday() {
	case time.Sunday:
		return false, nil
	case time.Saturday:
		return loc == LocationBaytown && c.rotationSaturday(day), nil
	default:
		return c.weekdays[loc][day.Weekday()], nil
	}
}

// ExpectedClosureReason returns "" for open days, otherwise why the location is closed.
func (c *BusinessCalendar) ExpectedClosureReason(loc Location, date time.Time) (string, error) {
	open, err := c.IsBusinessDay(loc, date)
	if err != nil {
		return "", err
	}
	if open {
		return "", nil
	}
	day := DateOf(date)
	if reason, closed := c.overrides[loc].Closed[day]; closed {
		if reason == "" {
			reason = defaultOverrideReason
		}
		return reason, nil
	}
	name := loc.DisplayName()
	switch day.Weekday() {
	case time.Sunday:
		return name + " is closed on Sundays", nil
	case time.Saturday:
		if loc == LocationBaytown {
			return "Baytown is closed on off-rotation Saturdays", nil
		}
		return name + " is closed on Saturdays", nil
	case time.Friday:
		if loc == LocationHumble {
			return "Humble is closed on Fridays", nil
		}
	}
	return fmt.Sprintf("%s is not scheduled to operate on %ss", name, day.Weekday()), nil
}

// Status bundles the open flag and closure reason.
func (c *BusinessCalendar) Status(loc Location, date time.Time) (CalendarStatus, error) {
	reason, err := c.ExpectedClosureReason(loc, date)
	if err != nil {
		return CalendarStatus{}, err
	}
	return CalendarStatus{Location: loc, Date: DateOf(date), Open: reason == "", ClosureReason: reason}, nil
}

func (c *BusinessCalendar) rotationSaturday(day time.Time) bool {
	days := int(day.Sub(c.anchor).Hours() / 24)
	mod := days % saturdayCycleDays
	if mod < 0 {
		mod += saturdayCycleDays
	}
	return mod == 0
}
