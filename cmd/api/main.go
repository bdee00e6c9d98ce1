package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"subbox_backend/internal/app"
	"subbox_backend/internal/controller"
	"subbox_backend/internal/middleware"
	"subbox_backend/pkg/config"
	"subbox_backend/pkg/cron"
	"subbox_backend/pkg/database"
	applog "subbox_backend/pkg/logger"
)

func setupRoutes(fa *fiber.App, a *app.App) {
	auth := controller.NewAuthController(a.Store, a.Gateway, a.Tokens, a.Email, a.Logger)
	subs := controller.NewSubscriptionController(a.Manager, a.Logger)
	hooks := controller.NewWebhookController(a.Dispatcher, a.Logger)
	requireAuth := middleware.AuthMiddleware(a.Tokens)

	fa.Get("/health", func(c *fiber.Ctx) error {
		sqlDB, err := a.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.UserContext())
		}
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status":   "unavailable",
				"database": "down",
			})
		}
		return c.JSON(fiber.Map{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
		})
	})

	api := fa.Group("/api")

	// Auth Routes
	authGroup := api.Group("/auth")
	authGroup.Post("/register", auth.Register)
	authGroup.Post("/login", auth.Login)
	authGroup.Get("/profile", requireAuth, auth.GetProfile)
	authGroup.Put("/profile", requireAuth, auth.UpdateProfile)

	// Subscription routes
	subscriptions := api.Group("/subscriptions")
	subscriptions.Get("/plans", subs.ListPlans)
	subscriptions.Post("/create", requireAuth, subs.Subscribe)
	subscriptions.Get("/current", requireAuth, subs.GetCurrent)
	subscriptions.Post("/cancel", requireAuth, subs.Cancel)
	subscriptions.Get("/history", requireAuth, subs.History)
	subscriptions.Get("/payments", requireAuth, subs.Payments)
	subscriptions.Get("/boxes", requireAuth, subs.Boxes)

	// Stripe webhook
	api.Post("/stripe-webhooks", hooks.HandleStripeWebhook)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := applog.New(cfg.Log, "subbox-api", os.Stdout)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("shutdown error", "error", err)
		}
	}()

	if err := database.MigrateDatabase(a.DB, log); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}

	var scheduler *cron.Scheduler
	if cfg.Cron.Enabled {
		scheduler, err = cron.NewScheduler(a.Manager, cron.Config{
			ReconcileSpec:    cfg.Cron.ReconcileSpec,
			RemindersSpec:    cfg.Cron.RemindersSpec,
			ReminderLeadTime: cfg.Cron.ReminderLeadTime,
			ReminderWindow:   cfg.Cron.ReminderWindow,
			JobTimeout:       cfg.Cron.JobTimeout,
		}, log.With("component", "cron"))
		if err != nil {
			log.Error("failed to schedule jobs", "error", err)
			os.Exit(1)
		}
		scheduler.Start()
	}

	fa := fiber.New(fiber.Config{
		BodyLimit: cfg.Server.BodyLimit,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			message := "Internal server error"
			if e, ok := err.(*fiber.Error); ok {
				code, message = e.Code, e.Message
			}
			if code >= fiber.StatusInternalServerError {
				log.ErrorContext(c.UserContext(), "unhandled error", "path", c.Path(), "error", err)
			}
			return c.Status(code).JSON(fiber.Map{
				"error": message,
			})
		},
	})

	fa.Use(requestid.New())
	fa.Use(recover.New())
	fa.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))
	fa.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowedOrigins,
	}))

	setupRoutes(fa, a)

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if scheduler != nil {
			if err := scheduler.Stop(shutdownCtx); err != nil {
				log.Warn("cron jobs still running at shutdown", "error", err)
			}
		}
		if err := fa.ShutdownWithContext(shutdownCtx); err != nil {
			log.Warn("server shutdown error", "error", err)
		}
	}()

	log.Info("server is running", "port", cfg.Server.Port, "sandbox", cfg.Stripe.TestMode)
	if err := fa.Listen(":" + cfg.Server.Port); err != nil {
		log.Error("server stopped", "error", err)
	}
}
