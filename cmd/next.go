package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var nextCmd = &cobra.Command{
	Use:   "next <station>",
	Short: "Shows the next bus at a station",
	Args:  cobra.ExactArgs(1),
	RunE:  next,
}

var at string

func init() {
	nextCmd.Flags().StringVarP(&at, "at", "", "", "Resolve as of this time (RFC 3339) instead of now")
	rootCmd.AddCommand(nextCmd)
}

func parseAt() (time.Time, error) {
	if at == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at: %w", err)
	}
	return t, nil
}

func next(cmd *cobra.Command, args []string) error {
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

	arrival, ok, err := manager.Next(context.Background(), station, now)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !ok {
		fmt.Fprintf(out, "No future bus for station %s\n", station.Name)
		return nil
	}

	fmt.Fprintf(
		out,
		"Next bus at %s for station %s: %s (in %.0f min)\n",
		arrival.Event.Time.Format("2006-01-02 15:04"),
		station.Name,
		arrival.Event.Line,
		arrival.Minutes,
	)
	return nil
}
