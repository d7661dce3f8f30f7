package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteConfig struct {
	OnDisk    bool
	Directory string
}

type SQLiteStorage struct {
	SQLiteConfig
	sqlStorage
}

func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	onDisk := false
	directory := ""
	if len(cfg) > 0 {
		onDisk = cfg[0].OnDisk
		directory = cfg[0].Directory
	}

	sourceName := ":memory:"
	if onDisk {
		sourceName = filepath.Join(directory, "nextbus.db")
	}

	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS timetable (
    station TEXT NOT NULL,
    day_class TEXT NOT NULL,
    hash TEXT NOT NULL,
    retrieved_at TIMESTAMP NOT NULL,
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

	return &SQLiteStorage{
		SQLiteConfig: SQLiteConfig{
			OnDisk:    onDisk,
			Directory: directory,
		},
		sqlStorage: sqlStorage{
			db:   db,
			bind: bindQuestion,
		},
	}, nil
}
