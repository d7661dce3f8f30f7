// Package dispatch runs the per-station publishing loops.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"ctpcj.dev/nextbus/logging"
	"ctpcj.dev/nextbus/model"
	"ctpcj.dev/nextbus/sink"
)

const DefaultPeriod = 60 * time.Second

// Resolver finds the next arrival at a station. The bool is false
// when nothing is scheduled after now.
type Resolver interface {
	Next(ctx context.Context, station model.Station, now time.Time) (model.Arrival, bool, error)
}

// Outcome of a single cycle.
type Outcome int

const (
	Published Outcome = iota
	NoFutureEvent
	ResolveFailed
	PublishFailed
	Panicked
)

func (o Outcome) String() string {
	switch o {
	case Published:
		return "published"
	case NoFutureEvent:
		return "no_future_event"
	case ResolveFailed:
		return "resolve_failed"
	case PublishFailed:
		return "publish_failed"
	case Panicked:
		return "panicked"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Supervisor owns one worker per station. Each worker rebuilds the
// station's schedule, resolves the next bus and publishes it, then
// sleeps for Period before doing it again.
type Supervisor struct {
	Resolver  Resolver
	Publisher sink.Publisher
	Period    time.Duration
	Logger    *slog.Logger
	TimeNow   func() time.Time
}

func NewSupervisor(resolver Resolver, publisher sink.Publisher) *Supervisor {
	return &Supervisor{
		Resolver:  resolver,
		Publisher: publisher,
		Period:    DefaultPeriod,
		Logger:    slog.Default(),
		TimeNow:   time.Now,
	}
}

// Runs one worker per station until ctx is cancelled, then waits for
// all of them to return.
func (s *Supervisor) Run(ctx context.Context, stations []model.Station) {
	s.Logger.Info(
		"starting dispatch",
		slog.Int("stations", len(stations)),
		slog.Duration("period", s.Period),
	)

	wg := sync.WaitGroup{}
	for _, station := range stations {
		wg.Add(1)
		go func(station model.Station) {
			defer wg.Done()
			s.worker(ctx, station)
		}(station)
	}
	wg.Wait()

	s.Logger.Info("dispatch stopped")
}

func (s *Supervisor) worker(ctx context.Context, station model.Station) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		s.Cycle(ctx, station)

		// The wait starts once the cycle's work is done.
		timer.Reset(s.Period)
	}
}

// Runs a single resolve-and-publish cycle for a station. Failures are
// logged, never returned, so that the caller's loop keeps going.
func (s *Supervisor) Cycle(ctx context.Context, station model.Station) (outcome Outcome) {
	logger := s.Logger.With(
		slog.String("cycle_id", uuid.NewString()),
		slog.String("station", station.Name),
	)
	ctx = logging.WithLogger(ctx, logger)

	defer func() {
		if r := recover(); r != nil {
			logger.Error(
				"cycle panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			outcome = Panicked
		}
	}()

	now := s.TimeNow()
	arrival, ok, err := s.Resolver.Next(ctx, station, now)
	if err != nil {
		logging.LogError(logger, "resolving next bus", err)
		return ResolveFailed
	}
	if !ok {
		logger.Warn("no future bus scheduled")
		return NoFutureEvent
	}

	err = s.Publisher.Publish(ctx, arrival)
	if err != nil {
		logging.LogError(
			logger,
			"publishing next bus",
			err,
			slog.String("line", arrival.Event.Line),
		)
		return PublishFailed
	}

	logger.Debug(
		"published next bus",
		slog.String("line", arrival.Event.Line),
		slog.Float64("minutes", arrival.Minutes),
	)
	return Published
}

// Runs a single cycle for every station concurrently and waits for
// all of them. Outcomes are returned in station order.
func Notify(ctx context.Context, resolver Resolver, publisher sink.Publisher, stations []model.Station, logger *slog.Logger) []Outcome {
	s := NewSupervisor(resolver, publisher)
	if logger != nil {
		s.Logger = logger
	}

	outcomes := make([]Outcome, len(stations))
	wg := sync.WaitGroup{}
	for i, station := range stations {
		wg.Add(1)
		go func(i int, station model.Station) {
			defer wg.Done()
			outcomes[i] = s.Cycle(ctx, station)
		}(i, station)
	}
	wg.Wait()

	return outcomes
}
