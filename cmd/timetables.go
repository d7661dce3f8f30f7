package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ctpcj.dev/nextbus/model"
)

var timetablesCmd = &cobra.Command{
	Use:   "timetables [station...]",
	Short: "Lists stored timetables",
	RunE:  timetables,
}

var fetchTimetables bool

func init() {
	timetablesCmd.Flags().BoolVarP(&fetchTimetables, "fetch", "f", false, "Fetch timetables for the stations before listing")
	rootCmd.AddCommand(timetablesCmd)
}

func timetables(cmd *cobra.Command, args []string) error {
	manager, done, err := loadManager()
	if err != nil {
		return err
	}
	defer done()

	var selected model.Registry
	if fetchTimetables || len(args) > 0 {
		registry, err := loadRegistry()
		if err != nil {
			return err
		}
		selected, err = selectStations(registry, args)
		if err != nil {
			return err
		}
	}

	if fetchTimetables {
		for _, station := range selected {
			for _, class := range model.DayClasses {
				_, err := manager.Timetable(context.Background(), station.Name, class)
				if err != nil {
					return fmt.Errorf("fetching %s: %w", station.Name, err)
				}
			}
		}
	}

	names := []string{""}
	if len(args) > 0 {
		names = names[:0]
		for _, station := range selected {
			names = append(names, station.Name)
		}
	}

	out := cmd.OutOrStdout()
	for _, name := range names {
		stored, err := manager.Storage().ListTimetables(name)
		if err != nil {
			return err
		}
		for _, t := range stored {
			hash := t.Hash
			if len(hash) > 12 {
				hash = hash[:12]
			}
			fmt.Fprintf(
				out,
				"%s %s: %d buses, retrieved %s, sha256 %s\n",
				t.Station,
				t.DayClass.Code(),
				len(t.Entries),
				t.RetrievedAt.Local().Format(time.RFC3339),
				hash,
			)
		}
	}

	return nil
}
