package nextbus

import (
	"fmt"
	"sort"
	"time"

	"ctpcj.dev/nextbus/model"
)

const (
	DefaultHorizonDays = 30
	DefaultTimezone    = "Europe/Bucharest"
)

// A rolling window of calendar dates. Start is local midnight of the
// first date, and the window covers Start through Start+Days
// inclusive.
type Horizon struct {
	Start time.Time
	Days  int
}

// Returns the horizon of the given length starting on the local
// calendar date of now.
func NewHorizon(now time.Time, loc *time.Location, days int) Horizon {
	local := now.In(loc)
	return Horizon{
		Start: time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc),
		Days:  days,
	}
}

// Returns local midnight of every date in the horizon, in ascending
// order.
func (h Horizon) Dates() []time.Time {
	dates := make([]time.Time, 0, h.Days+1)
	for i := 0; i <= h.Days; i++ {
		// AddDate works on the calendar, so DST changes don't
		// shift the dates.
		dates = append(dates, h.Start.AddDate(0, 0, i))
	}
	return dates
}

// Expands a day class's timetable into events on every date of the
// horizon that uses that class. Events are ordered by date, then by
// position in entries.
//
// Times of day are local to the horizon's location. A time falling
// in a spring-forward gap is moved forward by the size of the gap.
func Expand(
	entries []model.TimetableEntry,
	class model.DayClass,
	station model.Station,
	horizon Horizon,
) ([]model.Event, error) {

	type clock struct {
		hour   int
		minute int
	}

	clocks := make([]clock, len(entries))
	for i, entry := range entries {
		hour, minute, err := entry.Clock()
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		clocks[i] = clock{hour, minute}
	}

	events := []model.Event{}
	for _, date := range horizon.Dates() {
		if !class.Includes(date.Weekday()) {
			continue
		}

		for i, entry := range entries {
			events = append(events, model.Event{
				Station: station.Name,
				Coords:  station.Coords,
				Line:    entry.Line,
				Time: time.Date(
					date.Year(),
					date.Month(),
					date.Day(),
					clocks[i].hour,
					clocks[i].minute,
					0, 0,
					date.Location(),
				),
			})
		}
	}

	return events, nil
}

// Events at a single station, in ascending time order.
type Schedule []model.Event

// Merges the expanded weekday, Saturday and Sunday events into a
// single schedule. Events with equal times keep their relative
// order. Nothing is deduplicated.
func Merge(weekday, saturday, sunday []model.Event) Schedule {
	schedule := make(Schedule, 0, len(weekday)+len(saturday)+len(sunday))
	schedule = append(schedule, weekday...)
	schedule = append(schedule, saturday...)
	schedule = append(schedule, sunday...)

	sort.SliceStable(schedule, func(i, j int) bool {
		return schedule[i].Time.Before(schedule[j].Time)
	})

	return schedule
}

// Returns index of the first event strictly after now.
func (s Schedule) search(now time.Time) int {
	return sort.Search(len(s), func(i int) bool {
		return s[i].Time.After(now)
	})
}

// Returns the earliest event strictly after now. The second return
// value is false if there is no such event in the schedule.
func (s Schedule) Next(now time.Time) (model.Event, bool) {
	i := s.search(now)
	if i == len(s) {
		return model.Event{}, false
	}
	return s[i], true
}

// Returns events strictly after now, at most limit of them. Pass
// limit <= 0 for all.
func (s Schedule) Upcoming(now time.Time, limit int) []model.Event {
	upcoming := s[s.search(now):]
	if limit > 0 && len(upcoming) > limit {
		upcoming = upcoming[:limit]
	}

	events := make([]model.Event, len(upcoming))
	copy(events, upcoming)
	return events
}

// Minutes from now until t. Never negative: events at or before now
// are 0 minutes away.
func MinutesUntil(t time.Time, now time.Time) float64 {
	minutes := t.Sub(now).Minutes()
	if minutes < 0 {
		return 0
	}
	return minutes
}
