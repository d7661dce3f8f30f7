package model

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Holds all external facing types and constants.

var (
	ErrInvalidTimeOfDay = errors.New("invalid time of day")
	ErrUnknownDayClass  = errors.New("unknown day class")
	ErrUnknownStation   = errors.New("unknown station")
)

type Coordinates struct {
	Lat  float64 `json:"lat"`
	Long float64 `json:"long"`
}

// Great-circle distance to o, in kilometers.
func (c Coordinates) DistanceKm(o Coordinates) float64 {
	const earthRadiusKm = 6371

	aLatRad := c.Lat * math.Pi / 180
	aLonRad := c.Long * math.Pi / 180
	bLatRad := o.Lat * math.Pi / 180
	bLonRad := o.Long * math.Pi / 180
	deltaLat := aLatRad - bLatRad
	deltaLon := aLonRad - bLonRad

	a := math.Cos(aLatRad)*math.Cos(bLatRad)*math.Pow(math.Sin(deltaLon/2), 2) + math.Pow(math.Sin(deltaLat/2), 2)
	return 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a)) * earthRadiusKm
}

type Station struct {
	Name   string      `json:"station_name"`
	Coords Coordinates `json:"coords"`
}

// The set of stations loaded at startup. Never mutated after load.
type Registry []Station

// Finds a station by name, ignoring case.
func (r Registry) Find(name string) (Station, bool) {
	for _, s := range r {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Station{}, false
}

// Returns stations ordered by distance from c, nearest first. The
// registry itself is left untouched.
func (r Registry) Nearest(c Coordinates) Registry {
	sorted := make(Registry, len(r))
	copy(sorted, r)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Coords.DistanceKm(c) < sorted[j].Coords.DistanceKm(c)
	})
	return sorted
}

// Timetable variant published by the transit agency. All weekdays
// share one timetable, Saturday and Sunday have one each.
type DayClass int

const (
	DayClassWeekday DayClass = iota
	DayClassSaturday
	DayClassSunday
)

// All day classes, in the order their schedules are merged.
var DayClasses = []DayClass{DayClassWeekday, DayClassSaturday, DayClassSunday}

// Returns the code used by the upstream timetable URLs.
func (c DayClass) Code() string {
	switch c {
	case DayClassWeekday:
		return "lv"
	case DayClassSaturday:
		return "s"
	case DayClassSunday:
		return "d"
	}
	return ""
}

func (c DayClass) String() string {
	switch c {
	case DayClassWeekday:
		return "weekday"
	case DayClassSaturday:
		return "saturday"
	case DayClassSunday:
		return "sunday"
	}
	return fmt.Sprintf("DayClass(%d)", int(c))
}

// Reports whether dates falling on weekday use this class's
// timetable.
func (c DayClass) Includes(weekday time.Weekday) bool {
	switch c {
	case DayClassWeekday:
		return weekday >= time.Monday && weekday <= time.Friday
	case DayClassSaturday:
		return weekday == time.Saturday
	case DayClassSunday:
		return weekday == time.Sunday
	}
	return false
}

// Parses an upstream code ("lv", "s", "d") or a name as returned by
// String().
func ParseDayClass(s string) (DayClass, error) {
	for _, c := range DayClasses {
		if s == c.Code() || strings.EqualFold(s, c.String()) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: '%s'", ErrUnknownDayClass, s)
}

// A row of a station's timetable for a single day class. Time is the
// local time of day as "HH:MM".
type TimetableEntry struct {
	Time string
	Line string
}

// Returns hour and minute of the entry's time of day.
func (e TimetableEntry) Clock() (int, int, error) {
	split := strings.Split(strings.TrimSpace(e.Time), ":")
	if len(split) != 2 {
		return 0, 0, fmt.Errorf("%w: '%s'", ErrInvalidTimeOfDay, e.Time)
	}

	hour, err := strconv.Atoi(split[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: invalid hour in '%s'", ErrInvalidTimeOfDay, e.Time)
	}

	if len(split[1]) != 2 {
		return 0, 0, fmt.Errorf("%w: invalid minute in '%s'", ErrInvalidTimeOfDay, e.Time)
	}
	minute, err := strconv.Atoi(split[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: invalid minute in '%s'", ErrInvalidTimeOfDay, e.Time)
	}

	return hour, minute, nil
}

// A bus of a given line calling at a station at a given instant.
type Event struct {
	Station string
	Coords  Coordinates
	Line    string
	Time    time.Time
}

// Renders the event time the way earlier consumers of this data
// expect it: local wall clock followed by a "Z", even though the
// wall clock is not UTC.
func (e Event) LegacyTimestamp() string {
	return e.Time.Format("2006-01-02T15:04:05") + "Z"
}

// The next event at a station, and the minutes remaining until it.
type Arrival struct {
	Event   Event
	Minutes float64
}
