package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"subbox_backend/internal/billing"
	"subbox_backend/internal/repository"
	"subbox_backend/internal/subscription"
	"subbox_backend/internal/webhook"
	"subbox_backend/pkg/config"
	"subbox_backend/pkg/database"
	"subbox_backend/pkg/email"
	"subbox_backend/pkg/events"
	"subbox_backend/pkg/utils/jwt"
)

type gateway interface {
	billing.Gateway
	webhook.Verifier
}

// App holds the process-wide dependencies shared by the API server and the
// admin CLI.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	DB         *gorm.DB
	Store      *repository.Store
	Gateway    billing.Gateway
	Email      *email.Service
	Manager    *subscription.Manager
	Dispatcher *webhook.Dispatcher
	Tokens     *jwt.Manager

	closers []func() error
}

// New connects every backend named by cfg. Optional backends (Redis,
// RabbitMQ, Postmark) are skipped when unconfigured.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: log}

	db, err := database.Open(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.closers = append(a.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	a.Store = repository.New(db)

	gw, err := newGateway(cfg.Stripe, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Gateway = gw

	notifiers, err := a.newNotifiers(cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Manager = subscription.NewManager(a.Store, gw,
		subscription.WithNotifier(notifiers),
		subscription.WithLogger(log.With("component", "subscription")),
	)

	dispatcherOpts := []webhook.Option{webhook.WithLogger(log.With("component", "webhook"))}
	if cfg.Webhook.RedisURL != "" {
		client, err := webhook.NewRedisClient(ctx, cfg.Webhook.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		dispatcherOpts = append(dispatcherOpts, webhook.WithDeduper(webhook.NewRedisDeduper(client, cfg.Webhook.DedupeTTL)))
		log.Info("webhook dedupe enabled", "ttl", cfg.Webhook.DedupeTTL)
	}
	a.Dispatcher = webhook.NewDispatcher(gw, a.Manager, dispatcherOpts...)

	a.Tokens = jwt.NewManager(cfg.JWT.Secret, cfg.JWT.TTL)
	return a, nil
}

func newGateway(cfg billing.Config, log *slog.Logger) (gateway, error) {
	if cfg.TestMode {
		log.Warn("payment processor sandbox enabled, no real charges will be made")
		return billing.NewSandbox(cfg.WebhookSecret), nil
	}
	gw, err := billing.NewStripeGateway(cfg, log.With("component", "billing"))
	if err != nil {
		return nil, fmt.Errorf("payment gateway: %w", err)
	}
	return gw, nil
}

func (a *App) newNotifiers(cfg *config.Config, log *slog.Logger) (subscription.Notifiers, error) {
	var sender email.Sender = email.LogSender{Logger: log.With("component", "email")}
	if cfg.Email.PostmarkServerToken != "" {
		pm, err := email.NewPostmarkSender(cfg.Email)
		if err != nil {
			return nil, err
		}
		sender = pm
	}
	svc, err := email.NewService(sender, cfg.Email, log.With("component", "email"))
	if err != nil {
		return nil, err
	}
	a.Email = svc
	notifiers := subscription.Notifiers{svc}

	if cfg.Events.URL != "" {
		pub, err := events.NewRabbitMQPublisher(cfg.Events, log.With("component", "events"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		notifiers = append(notifiers, events.NewNotifier(pub))
	}
	return notifiers, nil
}

// Close releases backends in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
