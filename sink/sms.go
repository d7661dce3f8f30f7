package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	resty "gopkg.in/resty.v1"

	"ctpcj.dev/nextbus/logging"
	"ctpcj.dev/nextbus/model"
)

const DefaultTwilioBaseURL = "https://api.twilio.com"

type SMSConfig struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	From       string
	To         string
	Timeout    time.Duration
	Retries    int
}

type twilioMessage struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SMS texts arrivals through the Twilio Messages API.
type SMS struct {
	cfg    SMSConfig
	client *resty.Client
}

func NewSMS(cfg SMSConfig) *SMS {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTwilioBaseURL
	}
	return &SMS{
		cfg:    cfg,
		client: newClient(cfg.Timeout, cfg.Retries),
	}
}

// Message text for an arrival. The time is the local wall clock.
func MessageText(arrival model.Arrival) string {
	return fmt.Sprintf(
		"Next bus at %s for station %s: %s",
		arrival.Event.Time.Format("2006-01-02 15:04"),
		arrival.Event.Station,
		arrival.Event.Line,
	)
}

func (s *SMS) Publish(ctx context.Context, arrival model.Arrival) error {
	endpoint := fmt.Sprintf(
		"%s/2010-04-01/Accounts/%s/Messages.json",
		s.cfg.BaseURL,
		url.PathEscape(s.cfg.AccountSID),
	)

	resp, err := s.client.R().
		SetContext(ctx).
		SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken).
		SetFormData(map[string]string{
			"To":   s.cfg.To,
			"From": s.cfg.From,
			"Body": MessageText(arrival),
		}).
		SetResult(&twilioMessage{}).
		SetError(&twilioError{}).
		Post(endpoint)
	if err != nil {
		return fmt.Errorf("sending sms: %w", err)
	}
	if resp.IsError() {
		if apiErr, ok := resp.Error().(*twilioError); ok && apiErr.Message != "" {
			return fmt.Errorf("sending sms: %s: %s (%d)", resp.Status(), apiErr.Message, apiErr.Code)
		}
		return fmt.Errorf("sending sms: %s", resp.Status())
	}

	sid := ""
	if msg, ok := resp.Result().(*twilioMessage); ok {
		sid = msg.SID
	}
	logging.FromContext(ctx).Info(
		"sent sms",
		slog.String("station", arrival.Event.Station),
		slog.String("sid", sid),
	)

	return nil
}
