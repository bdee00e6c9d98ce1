package controller

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"subbox_backend/internal/middleware"
	"subbox_backend/internal/model"
	"subbox_backend/internal/subscription"
	"subbox_backend/pkg/utils/validation"
)

// SubscriptionService is implemented by *subscription.Manager.
type SubscriptionService interface {
	Plans(ctx context.Context) ([]model.Plan, error)
	Subscribe(ctx context.Context, id subscription.Identity, in subscription.SubscribeInput) (*model.Subscription, error)
	CurrentSubscription(ctx context.Context, userID uint) (*model.Subscription, error)
	Cancel(ctx context.Context, userID, subscriptionID uint, cancelAtPeriodEnd bool) (*model.Subscription, error)
	History(ctx context.Context, userID uint) ([]model.Subscription, error)
	Payments(ctx context.Context, userID uint) ([]model.Payment, error)
	BoxHistory(ctx context.Context, userID uint) ([]model.Box, error)
}

type SubscriptionController struct {
	subscriptions SubscriptionService
	validate      *validator.Validate
	logger        *slog.Logger
}

func NewSubscriptionController(subscriptions SubscriptionService, logger *slog.Logger) *SubscriptionController {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionController{
		subscriptions: subscriptions,
		validate:      validation.New(),
		logger:        logger,
	}
}

type SubscribeRequest struct {
	PlanID          uint   `json:"planId" validate:"required"`
	PaymentMethodID string `json:"paymentMethodId" validate:"required"`
}

type CancelRequest struct {
	SubscriptionID    uint  `json:"subscriptionId"`
	CancelAtPeriodEnd *bool `json:"cancelAtPeriodEnd"`
}

func (sc *SubscriptionController) ListPlans(c *fiber.Ctx) error {
	plans, err := sc.subscriptions.Plans(c.UserContext())
	if err != nil {
		return respondError(c, sc.logger, err)
	}
	return c.JSON(fiber.Map{"plans": plans})
}

func (sc *SubscriptionController) Subscribe(c *fiber.Ctx) error {
	input := new(SubscribeRequest)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input",
		})
	}
	input.PaymentMethodID = strings.TrimSpace(input.PaymentMethodID)
	if err := sc.validate.Struct(input); err != nil {
		return validationFailed(c, err)
	}

	claims := middleware.Claims(c)
	sub, err := sc.subscriptions.Subscribe(c.UserContext(),
		subscription.Identity{UserID: claims.UserID, CustomerRef: claims.CustomerRef},
		subscription.SubscribeInput{PlanID: input.PlanID, PaymentMethodRef: input.PaymentMethodID},
	)
	if err != nil {
		return respondError(c, sc.logger, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":      "Subscription created successfully",
		"subscription": sub,
	})
}

func (sc *SubscriptionController) GetCurrent(c *fiber.Ctx) error {
	sub, err := sc.subscriptions.CurrentSubscription(c.UserContext(), middleware.Claims(c).UserID)
	if err != nil {
		if errors.Is(err, subscription.ErrSubscriptionNotFound) {
			return c.JSON(fiber.Map{"subscription": nil})
		}
		return respondError(c, sc.logger, err)
	}
	return c.JSON(fiber.Map{"subscription": sub})
}

func (sc *SubscriptionController) Cancel(c *fiber.Ctx) error {
	input := new(CancelRequest)
	if len(c.Body()) > 0 {
		if err := c.BodyParser(input); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid input",
			})
		}
	}
	atPeriodEnd := true
	if input.CancelAtPeriodEnd != nil {
		atPeriodEnd = *input.CancelAtPeriodEnd
	}

	sub, err := sc.subscriptions.Cancel(c.UserContext(), middleware.Claims(c).UserID, input.SubscriptionID, atPeriodEnd)
	if err != nil {
		return respondError(c, sc.logger, err)
	}

	message := "Subscription canceled"
	if sub.CancelAtPeriodEnd {
		message = "Subscription will be canceled at the end of the current period"
	}
	return c.JSON(fiber.Map{
		"message":      message,
		"subscription": sub,
	})
}

func (sc *SubscriptionController) History(c *fiber.Ctx) error {
	subs, err := sc.subscriptions.History(c.UserContext(), middleware.Claims(c).UserID)
	if err != nil {
		return respondError(c, sc.logger, err)
	}
	return c.JSON(fiber.Map{"subscriptions": subs})
}

func (sc *SubscriptionController) Payments(c *fiber.Ctx) error {
	payments, err := sc.subscriptions.Payments(c.UserContext(), middleware.Claims(c).UserID)
	if err != nil {
		return respondError(c, sc.logger, err)
	}
	return c.JSON(fiber.Map{"payments": payments})
}

func (sc *SubscriptionController) Boxes(c *fiber.Ctx) error {
	boxes, err := sc.subscriptions.BoxHistory(c.UserContext(), middleware.Claims(c).UserID)
	if err != nil {
		return respondError(c, sc.logger, err)
	}
	return c.JSON(fiber.Map{"boxes": boxes})
}
