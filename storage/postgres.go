package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

type PSQLStorage struct {
	sqlStorage
}

// Creates a new Postgres Storage using the provided connection string.
//
// If clearDB is true, the database will be cleared on startup. You
// probably only want this for testing.
func NewPSQLStorage(connStr string, clearDB bool) (*PSQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging db: %w", err)
	}

	if clearDB {
		_, err = db.Exec(`
DROP TABLE IF EXISTS timetable;
DROP TABLE IF EXISTS timetable_entry;
`)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("clearing db: %w", err)
		}
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS timetable (
    station TEXT NOT NULL,
    day_class TEXT NOT NULL,
    hash TEXT NOT NULL,
    retrieved_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (station, day_class)
);

CREATE TABLE IF NOT EXISTS timetable_entry (
    station TEXT NOT NULL,
    day_class TEXT NOT NULL,
    seq INTEGER NOT NULL,
    departure TEXT NOT NULL,
    line_number TEXT NOT NULL,
    PRIMARY KEY (station, day_class, seq)
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &PSQLStorage{
		sqlStorage: sqlStorage{
			db:   db,
			bind: bindDollar,
		},
	}, nil
}
