package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
	"go.temporal.io/sdk/client"
)

// Config carries environment-driven settings shared by the api, worker and
// sweeper processes. Empty infrastructure URLs select in-memory fallbacks.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	PostgresDSN string `env:"POSTGRES_DSN"`
	NATSURL     string `env:"NATS_URL"`
	RedisURL    string `env:"REDIS_URL"`

	TemporalAddress   string `env:"TEMPORAL_ADDRESS"`
	TemporalNamespace string `env:"TEMPORAL_NAMESPACE"`
	TemporalDisabled  bool   `env:"TEMPORAL_DISABLED"`

	// SweepSchedule is a cron spec for the in-process maintenance pass.
	// Set it to "off" when an external cron drives cmd/sweeper.
	SweepSchedule      string        `env:"SWEEP_SCHEDULE" envDefault:"@every 1m"`
	SweepTimeout       time.Duration `env:"SWEEP_TIMEOUT" envDefault:"50s"`
	ProjectorBatchSize int           `env:"PROJECTOR_BATCH_SIZE" envDefault:"500"`
	// ProjectorPoll bounds how long appended events wait for projection when
	// no wake-up notification arrives.
	ProjectorPoll     time.Duration `env:"PROJECTOR_POLL_INTERVAL" envDefault:"2s"`
	AutoReplyWindow   time.Duration `env:"AUTO_REPLY_WINDOW" envDefault:"10m"`
	RecentLogCapacity int           `env:"RECENT_LOG_CAPACITY" envDefault:"200"`
	MailRelayURL      string        `env:"MAIL_RELAY_URL"`
}

// LoadConfig reads environment variables, applies defaults, and validates basic constraints.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.TemporalAddress == "" {
		cfg.TemporalAddress = client.DefaultHostPort
	}
	if cfg.TemporalNamespace == "" {
		cfg.TemporalNamespace = client.DefaultNamespace
	}
	cfg.PostgresDSN = strings.TrimSpace(cfg.PostgresDSN)
	if cfg.ProjectorBatchSize <= 0 {
		return Config{}, fmt.Errorf("PROJECTOR_BATCH_SIZE must be a positive integer")
	}
	if cfg.AutoReplyWindow <= 0 {
		return Config{}, fmt.Errorf("AUTO_REPLY_WINDOW must be a positive duration")
	}
	if cfg.SweepEnabled() {
		if _, err := cron.ParseStandard(cfg.SweepSchedule); err != nil {
			return Config{}, fmt.Errorf("SWEEP_SCHEDULE: %w", err)
		}
	}
	return cfg, nil
}

// SweepEnabled reports whether the api process schedules its own sweep.
func (c Config) SweepEnabled() bool {
	s := strings.TrimSpace(strings.ToLower(c.SweepSchedule))
	return s != "" && s != "off"
}
