package storage

import (
	"sort"
	"sync"

	"ctpcj.dev/nextbus/model"
)

// In memory implementation of Storage

type memoryKey struct {
	Station  string
	DayClass model.DayClass
}

type MemoryStorage struct {
	mutex      sync.RWMutex
	timetables map[memoryKey]*Timetable
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		timetables: map[memoryKey]*Timetable{},
	}
}

func (s *MemoryStorage) WriteTimetable(timetable *Timetable) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.timetables[memoryKey{timetable.Station, timetable.DayClass}] = copyTimetable(timetable)
	return nil
}

func (s *MemoryStorage) ReadTimetable(station string, class model.DayClass) (*Timetable, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	timetable, found := s.timetables[memoryKey{station, class}]
	if !found {
		return nil, nil
	}
	return copyTimetable(timetable), nil
}

func (s *MemoryStorage) ListTimetables(station string) ([]*Timetable, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	timetables := []*Timetable{}
	for key, timetable := range s.timetables {
		if station != "" && key.Station != station {
			continue
		}
		timetables = append(timetables, copyTimetable(timetable))
	}

	sort.Slice(timetables, func(i, j int) bool {
		if timetables[i].Station != timetables[j].Station {
			return timetables[i].Station < timetables[j].Station
		}
		return timetables[i].DayClass < timetables[j].DayClass
	})

	return timetables, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}

func copyTimetable(t *Timetable) *Timetable {
	c := *t
	c.Entries = make([]model.TimetableEntry, len(t.Entries))
	copy(c.Entries, t.Entries)
	return &c
}
