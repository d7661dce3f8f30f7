package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"ctpcj.dev/nextbus/model"
)

var stationsCmd = &cobra.Command{
	Use:   "stations [lat lng] [limit]",
	Short: "Lists stations, nearest first if given a location",
	Args:  cobra.RangeArgs(0, 3),
	RunE:  stations,
}

func init() {
	rootCmd.AddCommand(stationsCmd)
}

func stations(cmd *cobra.Command, args []string) error {
	var lat, lng float64
	var limit int
	var err error

	gotLocation := false
	if len(args) == 1 {
		return fmt.Errorf("missing lng")
	}
	if len(args) >= 2 {
		gotLocation = true
		lat, err = strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid lat: %w", err)
		}
		lng, err = strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid lng: %w", err)
		}
	}
	if len(args) == 3 {
		limit, err = strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid limit: %w", err)
		}
		if limit < 0 {
			return fmt.Errorf("limit must be >= 0")
		}
	}

	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	here := model.Coordinates{Lat: lat, Long: lng}
	var list model.Registry
	if gotLocation {
		list = registry.Nearest(here)
	} else {
		// sort by name
		list = append(model.Registry{}, registry...)
		sort.Slice(list, func(i, j int) bool {
			return list[i].Name < list[j].Name
		})
	}
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	out := cmd.OutOrStdout()
	for _, station := range list {
		if gotLocation {
			fmt.Fprintf(out, "%s (%.2f km)\n", station.Name, station.Coords.DistanceKm(here))
		} else {
			fmt.Fprintf(out, "%s: %.6f,%.6f\n", station.Name, station.Coords.Lat, station.Coords.Long)
		}
	}

	return nil
}
