package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"subbox_backend/internal/billing"
	"subbox_backend/pkg/database"
	"subbox_backend/pkg/email"
	"subbox_backend/pkg/events"
	"subbox_backend/pkg/logger"
)

type Config struct {
	Server   ServerConfig
	Database database.Config
	JWT      JWTConfig
	Stripe   billing.Config
	Log      logger.Config
	Email    email.Config
	Events   events.Config
	Webhook  WebhookConfig
	Cron     CronConfig
}

type ServerConfig struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	AllowedOrigins  string        `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`
	BodyLimit       int           `env:"BODY_LIMIT" envDefault:"1048576"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type JWTConfig struct {
	Secret string        `env:"JWT_SECRET,required,notEmpty"`
	TTL    time.Duration `env:"JWT_TTL" envDefault:"24h"`
}

type WebhookConfig struct {
	// RedisURL enables cross-instance event dedupe when set.
	RedisURL  string        `env:"REDIS_URL"`
	DedupeTTL time.Duration `env:"WEBHOOK_DEDUPE_TTL" envDefault:"72h"`
}

type CronConfig struct {
	Enabled          bool          `env:"CRON_ENABLED" envDefault:"true"`
	ReconcileSpec    string        `env:"CRON_RECONCILE_SPEC" envDefault:"*/15 * * * *"`
	RemindersSpec    string        `env:"CRON_REMINDERS_SPEC" envDefault:"0 9 * * *"`
	ReminderLeadTime time.Duration `env:"CRON_REMINDER_LEAD_TIME" envDefault:"72h"`
	// ReminderWindow should match the RemindersSpec interval.
	ReminderWindow time.Duration `env:"CRON_REMINDER_WINDOW" envDefault:"24h"`
	JobTimeout     time.Duration `env:"CRON_JOB_TIMEOUT" envDefault:"10m"`
}

// Load reads .env when present and parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Stripe.TestMode {
		return nil
	}
	if c.Stripe.SecretKey == "" {
		return fmt.Errorf("config: STRIPE_SECRET_KEY is required unless STRIPE_TEST_MODE is set")
	}
	if c.Stripe.WebhookSecret == "" {
		return fmt.Errorf("config: STRIPE_WEBHOOK_SECRET is required")
	}
	return nil
}
