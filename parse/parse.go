package parse

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/spkg/bom"

	"ctpcj.dev/nextbus/model"
)

// Number of lines preceding the actual timetable in upstream CSV
// files. They hold route and station names, not departures. Blank
// lines count.
const TimetablePreambleRows = 5

// Parses a station timetable for a single day class. The first two
// columns of every row after the preamble hold time of day and line
// number. Any further columns are ignored.
func ParseTimetable(data io.Reader) ([]model.TimetableEntry, error) {
	// The BOM reader strips unicode BOMs if present.
	buffered := bufio.NewReader(bom.NewReader(data))

	// The preamble is skipped line by line, as the CSV reader
	// would silently drop blank ones.
	for i := 0; i < TimetablePreambleRows; i++ {
		_, err := buffered.ReadString('\n')
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading preamble (row %d)", i+1)
		}
	}

	// LazyCSVReader required (at least) to survive sloppy use of
	// quotes.
	reader := gocsv.LazyCSVReader(buffered)
	if r, ok := reader.(*csv.Reader); ok {
		// Rows carry trailing columns of varying count.
		r.FieldsPerRecord = -1
	}

	entries := []model.TimetableEntry{}
	for i := TimetablePreambleRows; ; i++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading csv (row %d)", i+1)
		}

		if len(row) < 2 {
			return nil, fmt.Errorf("found %d columns, need 2 (row %d)", len(row), i+1)
		}

		entry := model.TimetableEntry{
			Time: strings.TrimSpace(row[0]),
			Line: strings.TrimSpace(row[1]),
		}

		hour, minute, err := entry.Clock()
		if err != nil {
			return nil, errors.Wrapf(err, "parsing time (row %d)", i+1)
		}
		entry.Time = fmt.Sprintf("%02d:%02d", hour, minute)

		if entry.Line == "" {
			return nil, fmt.Errorf("missing line number (row %d)", i+1)
		}

		entries = append(entries, entry)
	}

	return entries, nil
}
