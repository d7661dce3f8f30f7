package sink

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	resty "gopkg.in/resty.v1"

	"ctpcj.dev/nextbus/model"
)

const (
	DefaultThingerURLTemplate = "https://eu-central.aws.thinger.io:443/v3/users/{user}/devices/orar_{station}/properties/{property}"

	PropertyNextBus     = "next_bus"
	PropertyNextBusTime = "next_bus_time"
)

type ThingerConfig struct {
	// Property URL. "{user}", "{station}" and "{property}" are
	// replaced.
	URLTemplate string
	User        string
	Token       string
	Timeout     time.Duration
	Retries     int
}

type propertyUpdate struct {
	Property string `json:"property"`
	Value    any    `json:"value"`
}

// Thinger pushes the line number and the minutes until arrival to a
// pair of device properties on Thinger.io.
type Thinger struct {
	cfg    ThingerConfig
	client *resty.Client
}

func NewThinger(cfg ThingerConfig) *Thinger {
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = DefaultThingerURLTemplate
	}
	return &Thinger{
		cfg:    cfg,
		client: newClient(cfg.Timeout, cfg.Retries),
	}
}

func (t *Thinger) propertyURL(station, property string) string {
	return strings.NewReplacer(
		"{user}", url.PathEscape(t.cfg.User),
		"{station}", url.PathEscape(station),
		"{property}", property,
	).Replace(t.cfg.URLTemplate)
}

func (t *Thinger) put(ctx context.Context, station, property string, value any) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetAuthToken(t.cfg.Token).
		SetHeader("Content-Type", "application/json").
		SetBody(propertyUpdate{Property: property, Value: value}).
		Put(t.propertyURL(station, property))
	if err != nil {
		return fmt.Errorf("updating %s: %w", property, err)
	}
	if resp.IsError() {
		return fmt.Errorf("updating %s: %s", property, resp.Status())
	}
	return nil
}

// Updates both properties. The second is attempted even if the
// first fails.
func (t *Thinger) Publish(ctx context.Context, arrival model.Arrival) error {
	station := arrival.Event.Station
	return errors.Join(
		t.put(ctx, station, PropertyNextBus, arrival.Event.Line),
		t.put(ctx, station, PropertyNextBusTime, arrival.Minutes),
	)
}
