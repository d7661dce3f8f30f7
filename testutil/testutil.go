package testutil

// Helpers and configuration for tests.

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"

	"ctpcj.dev/nextbus/model"
	"ctpcj.dev/nextbus/storage"
)

// Environment variable holding a Postgres connection string. Tests
// against Postgres are skipped unless set.
const PostgresConnStrEnv = "NEXTBUS_TEST_POSTGRES"

func BuildStorage(t testing.TB, backend string) storage.Storage {
	var s storage.Storage
	var err error
	switch backend {
	case "memory":
		s = storage.NewMemoryStorage()
	case "sqlite":
		s, err = storage.NewSQLiteStorage()
		require.NoError(t, err)
	case "postgres":
		connStr := os.Getenv(PostgresConnStrEnv)
		if connStr == "" {
			t.Skipf("%s not set", PostgresConnStrEnv)
		}
		s, err = storage.NewPSQLStorage(connStr, true)
		require.NoError(t, err)
	}
	require.NotNil(t, s, "unknown backend %q", backend)

	t.Cleanup(func() { s.Close() })

	return s
}

var (
	bucharestOnce sync.Once
	bucharest     *time.Location
	bucharestErr  error
)

// Returns the Europe/Bucharest location. The same *time.Location is
// returned on every call, so times built from it compare equal with
// assert.Equal.
func Bucharest(t testing.TB) *time.Location {
	bucharestOnce.Do(func() {
		bucharest, bucharestErr = time.LoadLocation("Europe/Bucharest")
	})
	require.NoError(t, bucharestErr)
	return bucharest
}

// Builds an upstream style timetable CSV: five preamble rows
// followed by the given "HH:MM,line" rows.
func TimetableCSV(rows ...string) []byte {
	lines := []string{
		"Route,24",
		"Name,Test",
		"From,A",
		"To,B",
		"in_stop_name,A",
	}
	lines = append(lines, rows...)
	return []byte(strings.Join(lines, "\n") + "\n")
}

// Serves timetables keyed by station and day class, the way the
// upstream does.
type MockTimetableServer struct {
	Server *httptest.Server

	mutex      sync.Mutex
	timetables map[string][]byte
	failures   map[string]int
	requests   []string
}

func NewMockTimetableServer(t testing.TB) *MockTimetableServer {
	m := &MockTimetableServer{
		timetables: map[string][]byte{},
		failures:   map[string]int{},
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handler))
	t.Cleanup(m.Server.Close)
	return m
}

func timetablePath(station string, class model.DayClass) string {
	return fmt.Sprintf("/orar_%s_%s.csv", station, class.Code())
}

func (m *MockTimetableServer) handler(w http.ResponseWriter, r *http.Request) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.requests = append(m.requests, r.URL.Path)

	if m.failures[r.URL.Path] > 0 {
		m.failures[r.URL.Path]--
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	body, found := m.timetables[r.URL.Path]
	if !found {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Write(body)
}

// URL template for Manager.URLTemplate pointing at this server.
func (m *MockTimetableServer) URLTemplate() string {
	return m.Server.URL + "/orar_{station}_{day}.csv"
}

func (m *MockTimetableServer) SetTimetable(station string, class model.DayClass, body []byte) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.timetables[timetablePath(station, class)] = body
}

// Sets the same timetable for all day classes.
func (m *MockTimetableServer) SetAllTimetables(station string, body []byte) {
	for _, class := range model.DayClasses {
		m.SetTimetable(station, class, body)
	}
}

// Makes the next n requests for a timetable fail with status 500.
func (m *MockTimetableServer) Fail(station string, class model.DayClass, n int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.failures[timetablePath(station, class)] = n
}

func (m *MockTimetableServer) Requests() []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	requests := make([]string, len(m.requests))
	copy(requests, m.requests)
	return requests
}
