// Package sink publishes next-bus arrivals to downstream consumers.
package sink

import (
	"context"
	"errors"
	"log/slog"
	"time"

	resty "gopkg.in/resty.v1"

	"ctpcj.dev/nextbus/logging"
	"ctpcj.dev/nextbus/model"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultRetries   = 2
	DefaultRetryWait = 500 * time.Millisecond
)

// A Publisher delivers an arrival somewhere.
type Publisher interface {
	Publish(ctx context.Context, arrival model.Arrival) error
}

// Builds the resty client shared by the HTTP sinks. Transport errors
// and 5xx responses are retried. resty jitters each wait between
// DefaultRetryWait and 8 times that.
func newClient(timeout time.Duration, retries int) *resty.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if retries < 0 {
		retries = 0
	}

	return resty.New().
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(DefaultRetryWait).
		SetRetryMaxWaitTime(8 * DefaultRetryWait).
		AddRetryCondition(func(r *resty.Response) (bool, error) {
			return r != nil && r.StatusCode() >= 500, nil
		})
}

// Log writes arrivals to Logger. A nil Logger means the one carried
// by the context.
type Log struct {
	Logger *slog.Logger
}

func (l *Log) Publish(ctx context.Context, arrival model.Arrival) error {
	logger := l.Logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}

	logger.Info(
		"next bus",
		slog.String("station", arrival.Event.Station),
		slog.String("line", arrival.Event.Line),
		slog.Time("time", arrival.Event.Time),
		slog.Float64("minutes", arrival.Minutes),
	)
	return nil
}

// Multi publishes to every publisher in turn. Each one is attempted
// regardless of earlier failures.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, arrival model.Arrival) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, arrival); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
