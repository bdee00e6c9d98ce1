package controller

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

type EventHandler interface {
	HandleEvent(ctx context.Context, payload []byte, signature string) error
}

type WebhookController struct {
	events EventHandler
	logger *slog.Logger
}

func NewWebhookController(events EventHandler, logger *slog.Logger) *WebhookController {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookController{events: events, logger: logger}
}

// HandleStripeWebhook passes the raw request body to the dispatcher; the
// signature covers the exact bytes received.
func (wc *WebhookController) HandleStripeWebhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.Body()...)
	signature := c.Get("Stripe-Signature")

	if err := wc.events.HandleEvent(c.UserContext(), payload, signature); err != nil {
		return respondError(c, wc.logger, err)
	}

	return c.JSON(fiber.Map{"received": true})
}
