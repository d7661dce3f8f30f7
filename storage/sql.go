package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"ctpcj.dev/nextbus/model"
)

// Storage on top of database/sql. The SQLite and Postgres backends
// differ only in driver, schema types and placeholder syntax.
type sqlStorage struct {
	db *sql.DB

	// Rewrites ?-placeholders into the driver's syntax.
	bind func(query string) string
}

func bindQuestion(query string) string {
	return query
}

func bindDollar(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStorage) WriteTimetable(timetable *Timetable) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	code := timetable.DayClass.Code()

	_, err = tx.Exec(s.bind(`
INSERT INTO timetable (station, day_class, hash, retrieved_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (station, day_class) DO UPDATE SET
    hash = excluded.hash,
    retrieved_at = excluded.retrieved_at`),
		timetable.Station,
		code,
		timetable.Hash,
		timetable.RetrievedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("writing timetable: %w", err)
	}

	_, err = tx.Exec(s.bind(`
DELETE FROM timetable_entry WHERE station = ? AND day_class = ?`),
		timetable.Station,
		code,
	)
	if err != nil {
		return fmt.Errorf("clearing entries: %w", err)
	}

	stmt, err := tx.Prepare(s.bind(`
INSERT INTO timetable_entry (station, day_class, seq, departure, line_number)
VALUES (?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("preparing entry insert: %w", err)
	}
	defer stmt.Close()

	for i, entry := range timetable.Entries {
		_, err = stmt.Exec(timetable.Station, code, i, entry.Time, entry.Line)
		if err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	return nil
}

func (s *sqlStorage) ReadTimetable(station string, class model.DayClass) (*Timetable, error) {
	timetable := &Timetable{
		Station:  station,
		DayClass: class,
	}

	row := s.db.QueryRow(s.bind(`
SELECT hash, retrieved_at FROM timetable WHERE station = ? AND day_class = ?`),
		station,
		class.Code(),
	)
	err := row.Scan(&timetable.Hash, &timetable.RetrievedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading timetable: %w", err)
	}

	timetable.Entries, err = s.readEntries(station, class)
	if err != nil {
		return nil, err
	}

	return timetable, nil
}

func (s *sqlStorage) ListTimetables(station string) ([]*Timetable, error) {
	query := `SELECT station, day_class, hash, retrieved_at FROM timetable`
	params := []interface{}{}
	if station != "" {
		query += " WHERE station = ?"
		params = append(params, station)
	}

	rows, err := s.db.Query(s.bind(query), params...)
	if err != nil {
		return nil, fmt.Errorf("listing timetables: %w", err)
	}
	defer rows.Close()

	timetables := []*Timetable{}
	for rows.Next() {
		var t Timetable
		var code string
		var retrievedAt time.Time
		err := rows.Scan(&t.Station, &code, &t.Hash, &retrievedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning timetable: %w", err)
		}
		t.RetrievedAt = retrievedAt
		t.DayClass, err = model.ParseDayClass(code)
		if err != nil {
			return nil, fmt.Errorf("scanning timetable: %w", err)
		}
		timetables = append(timetables, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing timetables: %w", err)
	}
	rows.Close()

	for _, t := range timetables {
		t.Entries, err = s.readEntries(t.Station, t.DayClass)
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(timetables, func(i, j int) bool {
		if timetables[i].Station != timetables[j].Station {
			return timetables[i].Station < timetables[j].Station
		}
		return timetables[i].DayClass < timetables[j].DayClass
	})

	return timetables, nil
}

func (s *sqlStorage) readEntries(station string, class model.DayClass) ([]model.TimetableEntry, error) {
	rows, err := s.db.Query(s.bind(`
SELECT departure, line_number FROM timetable_entry
WHERE station = ? AND day_class = ?
ORDER BY seq`),
		station,
		class.Code(),
	)
	if err != nil {
		return nil, fmt.Errorf("reading entries: %w", err)
	}
	defer rows.Close()

	entries := []model.TimetableEntry{}
	for rows.Next() {
		var entry model.TimetableEntry
		err := rows.Scan(&entry.Time, &entry.Line)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func (s *sqlStorage) Close() error {
	return s.db.Close()
}
