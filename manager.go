package nextbus

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"ctpcj.dev/nextbus/downloader"
	"ctpcj.dev/nextbus/model"
	"ctpcj.dev/nextbus/parse"
	"ctpcj.dev/nextbus/storage"
)

const (
	DefaultURLTemplate      = "https://ctpcj.ro/orare/csv/orar_{station}_{day}.csv"
	DefaultTimetableTimeout = 30 * time.Second
	DefaultTimetableMaxSize = 1 << 20 // 1 MB
	DefaultTimetableRetries = 2
)

// Manager retrieves station timetables and builds schedules from
// them.
type Manager struct {
	// Timetable URL. "{station}" and "{day}" are replaced by the
	// station name and the day class code.
	URLTemplate string
	Headers     map[string]string

	TimetableTimeout time.Duration
	TimetableMaxSize int
	TimetableRetries int

	// If positive, timetables found in storage are reused until
	// they are this old. Otherwise every request goes upstream.
	TimetableTTL time.Duration

	// If positive, the downloader is asked to cache responses
	// this long.
	CacheTTL time.Duration

	HorizonDays int
	Location    *time.Location
	Downloader  downloader.Downloader
	Logger      *slog.Logger
	TimeNow     func() time.Time

	storage storage.Storage
}

// Creates a new Manager on top of the given storage. Every retrieved
// timetable is written to storage.
func NewManager(s storage.Storage) *Manager {
	location, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		// tzdata is embedded, so this can't happen.
		panic(fmt.Sprintf("loading %s: %v", DefaultTimezone, err))
	}

	return &Manager{
		URLTemplate:      DefaultURLTemplate,
		Headers:          map[string]string{},
		TimetableTimeout: DefaultTimetableTimeout,
		TimetableMaxSize: DefaultTimetableMaxSize,
		TimetableRetries: DefaultTimetableRetries,
		HorizonDays:      DefaultHorizonDays,
		Location:         location,
		Downloader:       downloader.NewMemory(),
		Logger:           slog.Default(),
		TimeNow:          time.Now,

		storage: s,
	}
}

// The storage every retrieved timetable is written to.
func (m *Manager) Storage() storage.Storage {
	return m.storage
}

func (m *Manager) timetableURL(station string, class model.DayClass) string {
	return strings.NewReplacer(
		"{station}", url.PathEscape(station),
		"{day}", class.Code(),
	).Replace(m.URLTemplate)
}

// Retrieves the timetable of a station for a day class.
func (m *Manager) Timetable(ctx context.Context, station string, class model.DayClass) ([]model.TimetableEntry, error) {
	if m.TimetableTTL > 0 {
		stored, err := m.storage.ReadTimetable(station, class)
		if err != nil {
			return nil, fmt.Errorf("reading stored timetable: %w", err)
		}
		if stored != nil && stored.RetrievedAt.Add(m.TimetableTTL).After(m.TimeNow()) {
			return stored.Entries, nil
		}
	}

	body, err := m.Downloader.Get(
		ctx,
		m.timetableURL(station, class),
		m.Headers,
		downloader.GetOptions{
			Timeout:  m.TimetableTimeout,
			MaxSize:  m.TimetableMaxSize,
			Retries:  m.TimetableRetries,
			Cache:    m.CacheTTL > 0,
			CacheTTL: m.CacheTTL,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("downloading %s timetable: %w", class, err)
	}

	entries, err := parse.ParseTimetable(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing %s timetable: %w", class, err)
	}

	err = m.storage.WriteTimetable(&storage.Timetable{
		Station:     station,
		DayClass:    class,
		Hash:        fmt.Sprintf("%x", sha256.Sum256(body)),
		RetrievedAt: m.TimeNow().UTC(),
		Entries:     entries,
	})
	if err != nil {
		return nil, fmt.Errorf("writing %s timetable: %w", class, err)
	}

	return entries, nil
}

// Builds the schedule of a station over the horizon starting on the
// local date of now. Nothing is reused from earlier builds, other
// than what TimetableTTL and CacheTTL allow.
func (m *Manager) Schedule(ctx context.Context, station model.Station, now time.Time) (Schedule, error) {
	horizon := NewHorizon(now, m.Location, m.HorizonDays)

	expanded := map[model.DayClass][]model.Event{}
	for _, class := range model.DayClasses {
		entries, err := m.Timetable(ctx, station.Name, class)
		if err != nil {
			return nil, err
		}

		events, err := Expand(entries, class, station, horizon)
		if err != nil {
			return nil, fmt.Errorf("expanding %s timetable: %w", class, err)
		}
		expanded[class] = events
	}

	schedule := Merge(
		expanded[model.DayClassWeekday],
		expanded[model.DayClassSaturday],
		expanded[model.DayClassSunday],
	)

	m.Logger.Debug(
		"built schedule",
		slog.String("station", station.Name),
		slog.Time("horizon_start", horizon.Start),
		slog.Int("events", len(schedule)),
	)

	return schedule, nil
}

// Returns the next bus at a station after now. The bool is false if
// the schedule holds nothing after now, which is not an error.
func (m *Manager) Next(ctx context.Context, station model.Station, now time.Time) (model.Arrival, bool, error) {
	schedule, err := m.Schedule(ctx, station, now)
	if err != nil {
		return model.Arrival{}, false, err
	}

	event, ok := schedule.Next(now)
	if !ok {
		return model.Arrival{}, false, nil
	}

	return model.Arrival{
		Event:   event,
		Minutes: MinutesUntil(event.Time, now),
	}, true, nil
}
