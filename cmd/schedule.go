package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"ctpcj.dev/nextbus/model"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule <station>",
	Short: "Writes a station's upcoming buses as CSV",
	Args:  cobra.ExactArgs(1),
	RunE:  schedule,
}

var (
	scheduleLimit  int
	scheduleLegacy bool
)

func init() {
	scheduleCmd.Flags().IntVarP(&scheduleLimit, "limit", "l", 0, "Limit the number of buses written (0 for all)")
	scheduleCmd.Flags().BoolVarP(&scheduleLegacy, "legacy-time", "", false, "Write times as local wall clock labelled Z")
	scheduleCmd.Flags().StringVarP(&at, "at", "", "", "Start from this time (RFC 3339) instead of now")
	rootCmd.AddCommand(scheduleCmd)
}

type scheduleRow struct {
	Time    string  `csv:"time"`
	Line    string  `csv:"line_number"`
	Station string  `csv:"station_name"`
	Lat     float64 `csv:"lat"`
	Long    float64 `csv:"long"`
}

func scheduleRows(events []model.Event, legacy bool) []*scheduleRow {
	rows := make([]*scheduleRow, 0, len(events))
	for _, e := range events {
		t := e.Time.Format(time.RFC3339)
		if legacy {
			t = e.LegacyTimestamp()
		}
		rows = append(rows, &scheduleRow{
			Time:    t,
			Line:    e.Line,
			Station: e.Station,
			Lat:     e.Coords.Lat,
			Long:    e.Coords.Long,
		})
	}
	return rows
}

func schedule(cmd *cobra.Command, args []string) error {
	if scheduleLimit < 0 {
		return fmt.Errorf("limit must be >= 0")
	}

	station, err := loadStation(args[0])
	if err != nil {
		return err
	}

	now, err := parseAt()
	if err != nil {
		return err
	}

	manager, done, err := loadManager()
	if err != nil {
		return err
	}
	defer done()

	s, err := manager.Schedule(context.Background(), station, now)
	if err != nil {
		return err
	}

	return gocsv.Marshal(scheduleRows(s.Upcoming(now, scheduleLimit), scheduleLegacy), cmd.OutOrStdout())
}
