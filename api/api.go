// Package api serves stations and their upcoming buses over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/bluele/gcache"
	"github.com/julienschmidt/httprouter"

	"ctpcj.dev/nextbus"
	"ctpcj.dev/nextbus/logging"
	"ctpcj.dev/nextbus/model"
)

const (
	DefaultScheduleTTL   = time.Minute
	DefaultScheduleLimit = 20
	MaxScheduleLimit     = 1000

	scheduleCacheSize = 256
)

// Scheduler builds the schedule of a station.
type Scheduler interface {
	Schedule(ctx context.Context, station model.Station, now time.Time) (nextbus.Schedule, error)
}

type Config struct {
	Registry  model.Registry
	Scheduler Scheduler

	// How long a built schedule is reused.
	ScheduleTTL time.Duration

	Logger  *slog.Logger
	TimeNow func() time.Time

	// Clock driving schedule expiry. Defaults to the real clock.
	Clock gcache.Clock
}

type Server struct {
	registry  model.Registry
	scheduler Scheduler
	schedules gcache.Cache

	Logger  *slog.Logger
	TimeNow func() time.Time
}

func NewServer(cfg Config) *Server {
	if cfg.ScheduleTTL <= 0 {
		cfg.ScheduleTTL = DefaultScheduleTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.TimeNow == nil {
		cfg.TimeNow = time.Now
	}

	builder := gcache.New(scheduleCacheSize).
		LRU().
		Expiration(cfg.ScheduleTTL)
	if cfg.Clock != nil {
		builder = builder.Clock(cfg.Clock)
	}

	return &Server{
		registry:  cfg.Registry,
		scheduler: cfg.Scheduler,
		schedules: builder.Build(),
		Logger:    cfg.Logger,
		TimeNow:   cfg.TimeNow,
	}
}

func (s *Server) Routes() http.Handler {
	router := httprouter.New()
	router.HandlerFunc(http.MethodGet, "/stations", s.stationsHandler)
	router.HandlerFunc(http.MethodGet, "/stations/:station/next", s.nextHandler)
	router.HandlerFunc(http.MethodGet, "/stations/:station/schedule", s.scheduleHandler)
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.notFoundResponse(w)
	})
	return router
}

// Returns the station's schedule, built at most ScheduleTTL ago.
func (s *Server) schedule(ctx context.Context, station model.Station, now time.Time) (nextbus.Schedule, error) {
	if cached, err := s.schedules.Get(station.Name); err == nil {
		if schedule, ok := cached.(nextbus.Schedule); ok {
			return schedule, nil
		}
	}

	schedule, err := s.scheduler.Schedule(ctx, station, now)
	if err != nil {
		return nil, err
	}

	err = s.schedules.Set(station.Name, schedule)
	if err != nil {
		s.Logger.Warn("caching schedule", slog.String("station", station.Name), slog.String("error", err.Error()))
	}

	return schedule, nil
}

func (s *Server) stationFromParams(r *http.Request) (model.Station, bool) {
	params := httprouter.ParamsFromContext(r.Context())
	return s.registry.Find(params.ByName("station"))
}

func (s *Server) stationsHandler(w http.ResponseWriter, r *http.Request) {
	stations := make([]StationResponse, 0, len(s.registry))
	for _, station := range s.registry {
		stations = append(stations, StationResponse{
			Name:   station.Name,
			Coords: station.Coords,
		})
	}
	s.sendOK(w, stations)
}

func (s *Server) nextHandler(w http.ResponseWriter, r *http.Request) {
	station, ok := s.stationFromParams(r)
	if !ok {
		s.notFoundResponse(w)
		return
	}

	now := s.TimeNow()
	schedule, err := s.schedule(r.Context(), station, now)
	if err != nil {
		logging.LogError(s.Logger, "building schedule", err, slog.String("station", station.Name))
		s.upstreamErrorResponse(w)
		return
	}

	event, ok := schedule.Next(now)
	if !ok {
		s.sendOK(w, nil)
		return
	}

	s.sendOK(w, newArrivalResponse(event, now))
}

func (s *Server) scheduleHandler(w http.ResponseWriter, r *http.Request) {
	station, ok := s.stationFromParams(r)
	if !ok {
		s.notFoundResponse(w)
		return
	}

	limit := DefaultScheduleLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxScheduleLimit {
			s.badRequestResponse(w, "invalid limit")
			return
		}
		limit = n
	}

	now := s.TimeNow()
	schedule, err := s.schedule(r.Context(), station, now)
	if err != nil {
		logging.LogError(s.Logger, "building schedule", err, slog.String("station", station.Name))
		s.upstreamErrorResponse(w)
		return
	}

	upcoming := schedule.Upcoming(now, limit)
	arrivals := make([]ArrivalResponse, 0, len(upcoming))
	for _, event := range upcoming {
		arrivals = append(arrivals, newArrivalResponse(event, now))
	}

	s.sendOK(w, arrivals)
}
