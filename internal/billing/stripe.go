package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

type Config struct {
	SecretKey        string        `env:"STRIPE_SECRET_KEY"`
	WebhookSecret    string        `env:"STRIPE_WEBHOOK_SECRET"`
	TestMode         bool          `env:"STRIPE_TEST_MODE" envDefault:"false"`
	Timeout          time.Duration `env:"STRIPE_TIMEOUT" envDefault:"10s"`
	WebhookTolerance time.Duration `env:"STRIPE_WEBHOOK_TOLERANCE" envDefault:"5m"`
	// APIURL overrides the Stripe API base URL (stripe-mock, tests).
	APIURL string `env:"STRIPE_API_URL"`

	BreakerMaxRequests      uint32        `env:"STRIPE_BREAKER_MAX_REQUESTS" envDefault:"1"`
	BreakerInterval         time.Duration `env:"STRIPE_BREAKER_INTERVAL" envDefault:"1m"`
	BreakerTimeout          time.Duration `env:"STRIPE_BREAKER_TIMEOUT" envDefault:"30s"`
	BreakerFailureThreshold uint32        `env:"STRIPE_BREAKER_FAILURES" envDefault:"5"`
}

// StripeGateway talks to Stripe through a dedicated client.API instead of the
// package-level stripe.Key, so it can be constructed and injected per process.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	tolerance     time.Duration
	timeout       time.Duration
	breaker       *gobreaker.CircuitBreaker[any]
	logger        *slog.Logger
}

func NewStripeGateway(cfg Config, logger *slog.Logger) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = 5
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackend(stripe.ConnectBackend),
		Uploads: stripe.GetBackend(stripe.UploadsBackend),
	}

	g := &StripeGateway{
		api:           client.New(cfg.SecretKey, backends),
		webhookSecret: cfg.WebhookSecret,
		tolerance:     cfg.WebhookTolerance,
		timeout:       cfg.Timeout,
		logger:        logger,
	}
	g.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "stripe",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
		},
		// Declines and bad input say nothing about processor health.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrProcessorUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return g, nil
}

// call runs fn under the gateway timeout and circuit breaker and classifies
// any failure into the gateway error contract.
func call[T any](ctx context.Context, g *StripeGateway, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	res, err := g.breaker.Execute(func() (any, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, classify(ctx, op, err)
		}
		return v, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %s: %w", ErrProcessorUnavailable, op, err)
		}
		g.logger.WarnContext(ctx, "stripe call failed", "op", op, "error", err)
		return zero, err
	}

	return res.(T), nil
}

func classify(ctx context.Context, op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w: %s: %v", ErrProcessorUnavailable, ErrTimeout, op, err)
	}

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return fmt.Errorf("%w: %s: %v", ErrProcessorUnavailable, op, err)
	}

	switch {
	case stripeErr.Type == stripe.ErrorTypeCard:
		return fmt.Errorf("%w: %s: %s", ErrProcessorRejected, op, stripeErr.Code)
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests,
		stripeErr.HTTPStatusCode >= http.StatusInternalServerError,
		stripeErr.Type == stripe.ErrorTypeAPI:
		return fmt.Errorf("%w: %s: %v", ErrProcessorUnavailable, op, err)
	case stripeErr.Type == stripe.ErrorTypeInvalidRequest, stripeErr.Type == stripe.ErrorTypeIdempotency:
		return fmt.Errorf("%w: %s: %s", ErrInvalidInput, op, stripeErr.Msg)
	default:
		return fmt.Errorf("%w: %s: %v", ErrProcessorRejected, op, err)
	}
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}

	cus, err := call(ctx, g, "create customer", func(ctx context.Context) (*stripe.Customer, error) {
		params := &stripe.CustomerParams{
			Email: stripe.String(email),
			Name:  stripe.String(name),
		}
		params.Context = ctx
		params.AddMetadata("source", "subscription_box_platform")
		params.SetIdempotencyKey(uuid.NewString())
		return g.api.Customers.New(params)
	})
	if err != nil {
		return "", err
	}

	return cus.ID, nil
}

func (g *StripeGateway) CreateSubscription(ctx context.Context, customerRef, priceRef, paymentMethodRef string) (*ExternalSubscription, error) {
	if customerRef == "" || priceRef == "" || paymentMethodRef == "" {
		return nil, fmt.Errorf("%w: customer, price and payment method are required", ErrInvalidInput)
	}

	_, err := call(ctx, g, "attach payment method", func(ctx context.Context) (*stripe.PaymentMethod, error) {
		params := &stripe.PaymentMethodAttachParams{Customer: stripe.String(customerRef)}
		params.Context = ctx
		return g.api.PaymentMethods.Attach(paymentMethodRef, params)
	})
	if err != nil {
		return nil, err
	}

	_, err = call(ctx, g, "set default payment method", func(ctx context.Context) (*stripe.Customer, error) {
		params := &stripe.CustomerParams{
			InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
				DefaultPaymentMethod: stripe.String(paymentMethodRef),
			},
		}
		params.Context = ctx
		return g.api.Customers.Update(customerRef, params)
	})
	if err != nil {
		return nil, err
	}

	sub, err := call(ctx, g, "create subscription", func(ctx context.Context) (*stripe.Subscription, error) {
		params := &stripe.SubscriptionParams{
			Customer: stripe.String(customerRef),
			Items: []*stripe.SubscriptionItemsParams{
				{Price: stripe.String(priceRef)},
			},
			DefaultPaymentMethod: stripe.String(paymentMethodRef),
		}
		params.Context = ctx
		params.AddExpand("latest_invoice.payment_intent")
		params.SetIdempotencyKey(uuid.NewString())
		return g.api.Subscriptions.New(params)
	})
	if err != nil {
		return nil, err
	}

	return fromStripeSubscription(sub), nil
}

func (g *StripeGateway) CancelSubscription(ctx context.Context, subscriptionRef string, cancelAtPeriodEnd bool) (*ExternalSubscription, error) {
	if subscriptionRef == "" {
		return nil, fmt.Errorf("%w: subscription reference is required", ErrInvalidInput)
	}

	sub, err := call(ctx, g, "cancel subscription", func(ctx context.Context) (*stripe.Subscription, error) {
		if cancelAtPeriodEnd {
			params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
			params.Context = ctx
			return g.api.Subscriptions.Update(subscriptionRef, params)
		}
		params := &stripe.SubscriptionCancelParams{}
		params.Context = ctx
		return g.api.Subscriptions.Cancel(subscriptionRef, params)
	})
	if err != nil {
		return nil, err
	}

	return fromStripeSubscription(sub), nil
}

func (g *StripeGateway) RetrieveSubscription(ctx context.Context, subscriptionRef string) (*ExternalSubscription, error) {
	if subscriptionRef == "" {
		return nil, fmt.Errorf("%w: subscription reference is required", ErrInvalidInput)
	}

	sub, err := call(ctx, g, "retrieve subscription", func(ctx context.Context) (*stripe.Subscription, error) {
		params := &stripe.SubscriptionParams{}
		params.Context = ctx
		return g.api.Subscriptions.Get(subscriptionRef, params)
	})
	if err != nil {
		return nil, err
	}

	return fromStripeSubscription(sub), nil
}

func (g *StripeGateway) ListSubscriptions(ctx context.Context, customerRef string) ([]ExternalSubscription, error) {
	if customerRef == "" {
		return nil, fmt.Errorf("%w: customer reference is required", ErrInvalidInput)
	}

	return call(ctx, g, "list subscriptions", func(ctx context.Context) ([]ExternalSubscription, error) {
		params := &stripe.SubscriptionListParams{
			Customer: stripe.String(customerRef),
			Status:   stripe.String("all"),
		}
		params.Context = ctx

		var out []ExternalSubscription
		iter := g.api.Subscriptions.List(params)
		for iter.Next() {
			out = append(out, *fromStripeSubscription(iter.Subscription()))
		}
		if err := iter.Err(); err != nil {
			return nil, err
		}
		return out, nil
	})
}

func (g *StripeGateway) VerifyEvent(payload []byte, signature string) (*Event, error) {
	return ParseEvent(payload, signature, g.webhookSecret, g.tolerance)
}
