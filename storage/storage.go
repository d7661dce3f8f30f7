package storage

import (
	"time"

	"ctpcj.dev/nextbus/model"
)

// Persists timetables retrieved from upstream. Timetables are keyed
// by station name and day class. Writing a timetable replaces any
// previous one for the same key.
type Storage interface {
	// Writes a timetable, replacing entries previously written
	// for the same station and day class.
	WriteTimetable(timetable *Timetable) error

	// Retrieves the timetable for a station and day class. Returns
	// nil if none has been written.
	ReadTimetable(station string, class model.DayClass) (*Timetable, error)

	// Lists all timetables for a station, or for all stations if
	// station is blank. Ordered by station, then day class.
	ListTimetables(station string) ([]*Timetable, error)

	Close() error
}

// A station timetable for a single day class, as retrieved at some
// point in time. Hash identifies the raw upstream document.
type Timetable struct {
	Station     string
	DayClass    model.DayClass
	Hash        string
	RetrievedAt time.Time
	Entries     []model.TimetableEntry
}
