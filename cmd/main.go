package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"ctpcj.dev/nextbus"
	"ctpcj.dev/nextbus/config"
	"ctpcj.dev/nextbus/downloader"
	"ctpcj.dev/nextbus/logging"
	"ctpcj.dev/nextbus/model"
	"ctpcj.dev/nextbus/parse"
	"ctpcj.dev/nextbus/storage"
)

var rootCmd = &cobra.Command{
	Use:               "nextbus",
	Short:             "CTP Cluj next bus tool",
	Long:              "Builds bus schedules from CTP Cluj timetables and publishes the next bus per station",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	cfg    *config.Config
	logger *slog.Logger
)

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// Loads config and sets up logging. Runs before every command.
func setup(cmd *cobra.Command, args []string) error {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}

	c, err := config.Load(path)
	if err != nil {
		return err
	}
	c.ApplyEnv(os.Getenv)
	err = c.ApplyFlags(cmd.Flags())
	if err != nil {
		return err
	}
	err = c.Validate()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return err
	}
	l, err := logging.NewLogger(os.Stderr, level, c.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(l)

	cfg = c
	logger = l
	return nil
}

func openStorage() (storage.Storage, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return storage.NewMemoryStorage(), nil
	case "sqlite":
		if cfg.Storage.Directory == "" {
			return storage.NewSQLiteStorage()
		}
		return storage.NewSQLiteStorage(storage.SQLiteConfig{
			OnDisk:    true,
			Directory: cfg.Storage.Directory,
		})
	case "postgres":
		return storage.NewPSQLStorage(cfg.Storage.DSN, false)
	}
	return nil, fmt.Errorf("unknown storage backend '%s'", cfg.Storage.Backend)
}

func newManager(s storage.Storage) (*nextbus.Manager, error) {
	m := nextbus.NewManager(s)
	m.URLTemplate = cfg.Timetable.URLTemplate
	m.TimetableTimeout = cfg.Timetable.Timeout
	m.TimetableRetries = cfg.Timetable.Retries
	m.TimetableTTL = cfg.Timetable.TTL
	m.Logger = logger
	for k, v := range cfg.Timetable.Headers {
		m.Headers[k] = v
	}

	if cfg.Timetable.CachePath != "" {
		fs, err := downloader.NewFilesystem(cfg.Timetable.CachePath)
		if err != nil {
			return nil, fmt.Errorf("creating timetable cache: %w", err)
		}
		m.Downloader = fs
		m.CacheTTL = cfg.Timetable.CacheTTL
	}

	return m, nil
}

// Opens storage and creates a Manager on top of it. The returned
// func closes the storage.
func loadManager() (*nextbus.Manager, func(), error) {
	s, err := openStorage()
	if err != nil {
		return nil, nil, fmt.Errorf("opening storage: %w", err)
	}

	m, err := newManager(s)
	if err != nil {
		s.Close()
		return nil, nil, err
	}

	return m, func() { s.Close() }, nil
}

func loadRegistry() (model.Registry, error) {
	registry, err := parse.LoadRegistry(cfg.Registry)
	if err != nil {
		return nil, fmt.Errorf("loading station registry: %w", err)
	}
	return registry, nil
}

// Picks the named stations from the registry, or all of them if no
// names are given.
func selectStations(registry model.Registry, names []string) (model.Registry, error) {
	if len(names) == 0 {
		return registry, nil
	}

	selected := model.Registry{}
	for _, name := range names {
		station, ok := registry.Find(name)
		if !ok {
			return nil, fmt.Errorf("%w: '%s'", model.ErrUnknownStation, name)
		}
		selected = append(selected, station)
	}
	return selected, nil
}

// Loads the registry and looks up a single station in it.
func loadStation(name string) (model.Station, error) {
	registry, err := loadRegistry()
	if err != nil {
		return model.Station{}, err
	}

	stations, err := selectStations(registry, []string{name})
	if err != nil {
		return model.Station{}, err
	}
	return stations[0], nil
}
