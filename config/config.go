// Package config loads nextbus configuration.
//
// Configuration comes from, in increasing order of precedence:
// built-in defaults, an optional YAML file, environment variables
// holding secrets, and command line flags.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"ctpcj.dev/nextbus/downloader"
)

// Environment variables holding secrets. Secrets can also be put in
// the config file, but shouldn't.
const (
	EnvThingerToken    = "NEXTBUS_THINGER_TOKEN"
	EnvTwilioAuthToken = "NEXTBUS_TWILIO_AUTH_TOKEN"
)

type Config struct {
	// Path to the station registry (JSON, comments allowed).
	Registry string `yaml:"registry"`

	Log       LogConfig       `yaml:"log"`
	Storage   StorageConfig   `yaml:"storage"`
	Timetable TimetableConfig `yaml:"timetable"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Thinger   ThingerConfig   `yaml:"thinger"`
	SMS       SMSConfig       `yaml:"sms"`
	API       APIConfig       `yaml:"api"`
}

type LogConfig struct {
	// debug, info, warn or error.
	Level string `yaml:"level"`

	// text or json.
	Format string `yaml:"format"`
}

type StorageConfig struct {
	// memory, sqlite or postgres.
	Backend string `yaml:"backend"`

	// Directory holding the SQLite database. Blank for in-memory
	// SQLite.
	Directory string `yaml:"directory"`

	// Postgres connection string.
	DSN string `yaml:"dsn"`
}

type TimetableConfig struct {
	// Timetable URL with {station} and {day} placeholders.
	URLTemplate string            `yaml:"url_template"`
	Headers     map[string]string `yaml:"headers"`
	Timeout     time.Duration     `yaml:"timeout"`
	Retries     int               `yaml:"retries"`

	// Reuse stored timetables younger than this. Zero disables.
	TTL time.Duration `yaml:"ttl"`

	// Path of an on-disk HTTP cache, and how long entries in it
	// stay fresh. Both must be set for the cache to be used.
	CachePath string        `yaml:"cache_path"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

type DispatchConfig struct {
	// Pause between the end of one cycle and the start of the
	// next, per station.
	Period time.Duration `yaml:"period"`
}

type ThingerConfig struct {
	// Property URL with {user}, {station} and {property}
	// placeholders.
	URLTemplate string        `yaml:"url_template"`
	User        string        `yaml:"user"`
	Token       string        `yaml:"token"`
	Timeout     time.Duration `yaml:"timeout"`
	Retries     int           `yaml:"retries"`
}

// Enabled reports whether enough is configured to push to Thinger.
func (c ThingerConfig) Enabled() bool {
	return c.User != "" && c.Token != ""
}

type SMSConfig struct {
	BaseURL    string        `yaml:"base_url"`
	AccountSID string        `yaml:"account_sid"`
	AuthToken  string        `yaml:"auth_token"`
	From       string        `yaml:"from"`
	To         string        `yaml:"to"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Enabled reports whether enough is configured to send messages.
func (c SMSConfig) Enabled() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.From != "" && c.To != ""
}

type APIConfig struct {
	Addr        string        `yaml:"addr"`
	ScheduleTTL time.Duration `yaml:"schedule_ttl"`
}

func Default() *Config {
	return &Config{
		Registry: "stations.json",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			Backend: "memory",
		},
		Timetable: TimetableConfig{
			URLTemplate: "https://ctpcj.ro/orare/csv/orar_{station}_{day}.csv",
			Headers:     map[string]string{},
			Timeout:     30 * time.Second,
			Retries:     2,
		},
		Dispatch: DispatchConfig{
			Period: 60 * time.Second,
		},
		Thinger: ThingerConfig{
			URLTemplate: "https://eu-central.aws.thinger.io:443/v3/users/{user}/devices/orar_{station}/properties/{property}",
			Timeout:     10 * time.Second,
			Retries:     2,
		},
		SMS: SMSConfig{
			BaseURL: "https://api.twilio.com",
			Timeout: 10 * time.Second,
		},
		API: APIConfig{
			Addr:        ":8080",
			ScheduleTTL: time.Minute,
		},
	}
}

// Loads a config file on top of the defaults. A blank path yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	err = yaml.Unmarshal(buf, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return cfg, nil
}

// Fills in secrets from the environment, when set.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvThingerToken); v != "" {
		c.Thinger.Token = v
	}
	if v := getenv(EnvTwilioAuthToken); v != "" {
		c.SMS.AuthToken = v
	}
}

func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory", "sqlite":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unknown storage backend '%s'", c.Storage.Backend)
	}

	if c.Dispatch.Period <= 0 {
		return fmt.Errorf("dispatch.period must be positive")
	}
	for _, retries := range []int{c.Timetable.Retries, c.Thinger.Retries} {
		if retries < 0 || retries > downloader.MaxRetries {
			return fmt.Errorf("retries must be between 0 and %d", downloader.MaxRetries)
		}
	}
	if (c.Timetable.CachePath == "") != (c.Timetable.CacheTTL == 0) {
		return fmt.Errorf("timetable.cache_path and timetable.cache_ttl must be set together")
	}

	return nil
}

// Registers flags overriding config values on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "Path to YAML config file")
	fs.String("registry", d.Registry, "Path to station registry")
	fs.String("log-level", d.Log.Level, "Log level (debug, info, warn, error)")
	fs.String("log-format", d.Log.Format, "Log format (text, json)")
	fs.String("storage", d.Storage.Backend, "Timetable storage (memory, sqlite, postgres)")
	fs.String("storage-dir", d.Storage.Directory, "SQLite database directory")
	fs.String("storage-dsn", d.Storage.DSN, "Postgres connection string")
	fs.String("timetable-url", d.Timetable.URLTemplate, "Timetable URL template")
	fs.StringToString("timetable-header", nil, "Timetable HTTP header, as key=value")
	fs.Duration("timetable-timeout", d.Timetable.Timeout, "Timetable request timeout")
	fs.Int("timetable-retries", d.Timetable.Retries, "Timetable request retries")
	fs.Duration("timetable-ttl", d.Timetable.TTL, "Reuse stored timetables younger than this")
	fs.String("http-cache", d.Timetable.CachePath, "Path of on-disk timetable HTTP cache")
	fs.Duration("http-cache-ttl", d.Timetable.CacheTTL, "Freshness of on-disk timetable HTTP cache")
	fs.Duration("period", d.Dispatch.Period, "Pause between dispatch cycles")
	fs.String("thinger-user", d.Thinger.User, "Thinger user")
	fs.String("api-addr", d.API.Addr, "Address for the read API")
}

// Applies flags explicitly set on the command line.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "registry":
			c.Registry, err = fs.GetString(f.Name)
		case "log-level":
			c.Log.Level, err = fs.GetString(f.Name)
		case "log-format":
			c.Log.Format, err = fs.GetString(f.Name)
		case "storage":
			c.Storage.Backend, err = fs.GetString(f.Name)
		case "storage-dir":
			c.Storage.Directory, err = fs.GetString(f.Name)
		case "storage-dsn":
			c.Storage.DSN, err = fs.GetString(f.Name)
		case "timetable-url":
			c.Timetable.URLTemplate, err = fs.GetString(f.Name)
		case "timetable-header":
			var headers map[string]string
			headers, err = fs.GetStringToString(f.Name)
			if c.Timetable.Headers == nil {
				c.Timetable.Headers = map[string]string{}
			}
			for k, v := range headers {
				c.Timetable.Headers[k] = v
			}
		case "timetable-timeout":
			c.Timetable.Timeout, err = fs.GetDuration(f.Name)
		case "timetable-retries":
			c.Timetable.Retries, err = fs.GetInt(f.Name)
		case "timetable-ttl":
			c.Timetable.TTL, err = fs.GetDuration(f.Name)
		case "http-cache":
			c.Timetable.CachePath, err = fs.GetString(f.Name)
		case "http-cache-ttl":
			c.Timetable.CacheTTL, err = fs.GetDuration(f.Name)
		case "period":
			c.Dispatch.Period, err = fs.GetDuration(f.Name)
		case "thinger-user":
			c.Thinger.User, err = fs.GetString(f.Name)
		case "api-addr":
			c.API.Addr, err = fs.GetString(f.Name)
		}
		if err != nil {
			err = fmt.Errorf("flag --%s: %w", f.Name, err)
		}
	})
	return err
}
