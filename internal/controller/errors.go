package controller

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"subbox_backend/internal/billing"
	"subbox_backend/internal/subscription"
	"subbox_backend/pkg/utils/validation"
)

// respondError maps a domain error to a status code and a client-safe
// message. Unclassified errors are logged and reported as 500.
func respondError(c *fiber.Ctx, log *slog.Logger, err error) error {
	status, message := classify(err)
	if status >= fiber.StatusInternalServerError {
		log.ErrorContext(c.UserContext(), "request failed",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"error", err,
		)
	}
	if status == fiber.StatusAccepted {
		log.WarnContext(c.UserContext(), "request needs reconciliation", "path", c.Path(), "error", err)
		return c.Status(status).JSON(fiber.Map{
			"message": message,
			"pending": true,
		})
	}
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}

func validationFailed(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   "Validation failed",
		"details": validation.Messages(err),
	})
}

func classify(err error) (int, string) {
	switch {
	// Checked first: a reconciliation-required error may also carry the
	// underlying processor or storage cause.
	case errors.Is(err, subscription.ErrReconciliationRequired):
		return fiber.StatusAccepted, "Your request is being processed. Please check back shortly."
	case errors.Is(err, subscription.ErrValidation):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, billing.ErrInvalidInput):
		return fiber.StatusBadRequest, "The payment details were not accepted"
	case errors.Is(err, billing.ErrInvalidSignature):
		return fiber.StatusUnauthorized, "Invalid webhook signature"
	case errors.Is(err, billing.ErrMalformedEvent):
		return fiber.StatusBadRequest, "Malformed webhook event"
	case errors.Is(err, subscription.ErrUserNotFound):
		return fiber.StatusNotFound, "User not found"
	case errors.Is(err, subscription.ErrPlanNotFound):
		return fiber.StatusNotFound, "Subscription plan not found"
	case errors.Is(err, subscription.ErrSubscriptionNotFound):
		return fiber.StatusNotFound, "No active subscription found"
	case errors.Is(err, subscription.ErrNotFound):
		return fiber.StatusNotFound, "Not found"
	case errors.Is(err, subscription.ErrDuplicateActiveSubscription):
		return fiber.StatusConflict, "You already have an active subscription"
	case errors.Is(err, billing.ErrProcessorRejected):
		return fiber.StatusPaymentRequired, "The payment was declined"
	case errors.Is(err, billing.ErrProcessorUnavailable):
		return fiber.StatusServiceUnavailable, "Payment service is temporarily unavailable"
	default:
		return fiber.StatusInternalServerError, "Internal server error"
	}
}
