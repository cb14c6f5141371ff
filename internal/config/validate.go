package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"appkit/internal/accept"
)

const (
	DefaultAddr            = "127.0.0.1:8080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultAsyncTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultReportHistory   = 1000
)

// ScheduleParser accepts 5- or 6-field cron specs and @descriptors.
var ScheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Server holds ServerConfig with defaults applied and durations parsed.
type Server struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	AsyncTimeout    time.Duration
	ShutdownTimeout time.Duration
	SlowRequest     time.Duration
}

func (c ServerConfig) Resolve() (Server, error) {
	s := Server{Addr: strings.TrimSpace(c.Addr)}
	if s.Addr == "" {
		s.Addr = DefaultAddr
	}
	var err error
	if s.ReadTimeout, err = ParseDurationOrDefault("server.read_timeout", c.ReadTimeout, DefaultReadTimeout); err != nil {
		return Server{}, err
	}
	if s.WriteTimeout, err = ParseDurationField("server.write_timeout", c.WriteTimeout); err != nil {
		return Server{}, err
	}
	if s.IdleTimeout, err = ParseDurationOrDefault("server.idle_timeout", c.IdleTimeout, DefaultIdleTimeout); err != nil {
		return Server{}, err
	}
	if s.AsyncTimeout, err = ParseDurationOrDefault("server.async_timeout", c.AsyncTimeout, DefaultAsyncTimeout); err != nil {
		return Server{}, err
	}
	if s.ShutdownTimeout, err = ParseDurationOrDefault("server.shutdown_timeout", c.ShutdownTimeout, DefaultShutdownTimeout); err != nil {
		return Server{}, err
	}
	if s.SlowRequest, err = ParseDurationField("server.slow_request", c.SlowRequest); err != nil {
		return Server{}, err
	}
	return s, nil
}

// AcceptConfig maps the negotiation section onto the resolver chain config.
func (c NegotiationConfig) AcceptConfig() accept.Config {
	return accept.Config{
		Strategies:    c.Strategies,
		ParameterName: c.ParameterName,
		MediaTypes:    c.MediaTypes,
		Fixed:         c.Fixed,
	}
}

// Enabled reports a forced feature switch, falling back to def.
func (c *Config) Enabled(feature string, def bool) bool {
	if c == nil || c.Features == nil {
		return def
	}
	if v, ok := c.Features[feature]; ok {
		return v
	}
	return def
}

// Validate checks everything that can be checked without side effects.
// All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if _, err := cfg.Server.Resolve(); err != nil {
		errs = append(errs, err)
	}
	if _, err := accept.FromConfig(cfg.Negotiation.AcceptConfig()); err != nil {
		errs = append(errs, err)
	}
	if cfg.RateLimit.RatePerSec < 0 || cfg.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rate_limit: values must be >= 0"))
	}
	if s := strings.TrimSpace(cfg.Report.Schedule); s != "" {
		if _, err := ScheduleParser.Parse(s); err != nil {
			errs = append(errs, fmt.Errorf("report.schedule: %w", err))
		}
	}
	if tz := strings.TrimSpace(cfg.Report.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("report.timezone: %w", err))
		}
	}
	if cfg.Report.History < 0 {
		errs = append(errs, errors.New("report.history: must be >= 0"))
	}
	if cfg.Debug.MutexProfileFraction < 0 || cfg.Debug.BlockProfileRate < 0 {
		errs = append(errs, errors.New("debug: profile rates must be >= 0"))
	}
	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(st.Path) == "" {
				errs = append(errs, fmt.Errorf("storage.path: required for driver %q", st.Driver))
			}
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", st.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", st.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
