package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"subbox_backend/internal/billing"
)

var ErrInvalidSignature = billing.ErrInvalidSignature

// Verifier authenticates a raw webhook payload.
type Verifier interface {
	VerifyEvent(payload []byte, signature string) (*billing.Event, error)
}

// Reconciler applies verified events to local state.
type Reconciler interface {
	HandlePaymentSucceeded(ctx context.Context, event *billing.Event) error
	HandlePaymentFailed(ctx context.Context, event *billing.Event) error
	HandleSubscriptionUpdated(ctx context.Context, event *billing.Event) error
	HandleSubscriptionDeleted(ctx context.Context, event *billing.Event) error
	HandleTrialWillEnd(ctx context.Context, event *billing.Event) error
}

// Deduper claims event IDs so concurrent or repeated deliveries run once.
// Claim reports false when the event is already claimed.
type Deduper interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type Dispatcher struct {
	verifier   Verifier
	reconciler Reconciler
	deduper    Deduper
	logger     *slog.Logger
}

type Option func(*Dispatcher)

func WithDeduper(d Deduper) Option {
	return func(disp *Dispatcher) { disp.deduper = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(disp *Dispatcher) {
		if l != nil {
			disp.logger = l
		}
	}
}

func NewDispatcher(verifier Verifier, reconciler Reconciler, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		verifier:   verifier,
		reconciler: reconciler,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// HandleEvent verifies payload against signature and routes the event. A nil
// return acknowledges the delivery; any error asks the processor to retry.
func (d *Dispatcher) HandleEvent(ctx context.Context, payload []byte, signature string) error {
	event, err := d.verifier.VerifyEvent(payload, signature)
	if err != nil {
		d.logger.WarnContext(ctx, "rejected webhook", "error", err)
		if errors.Is(err, billing.ErrInvalidSignature) || errors.Is(err, billing.ErrMalformedEvent) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	log := d.logger.With("event_id", event.ID, "event_type", event.Type)

	if event.Kind == billing.EventUnknown {
		log.InfoContext(ctx, "ignoring unhandled webhook event")
		return nil
	}

	if d.deduper != nil {
		claimed, err := d.deduper.Claim(ctx, event.ID)
		switch {
		case err != nil:
			// Handlers are idempotent, so a dedupe outage only costs work.
			log.WarnContext(ctx, "event dedupe unavailable", "error", err)
		case !claimed:
			log.InfoContext(ctx, "duplicate webhook delivery")
			return nil
		}
	}

	if err := d.dispatch(ctx, event); err != nil {
		log.ErrorContext(ctx, "webhook handler failed", "error", err)
		if d.deduper != nil {
			if rerr := d.deduper.Release(context.WithoutCancel(ctx), event.ID); rerr != nil {
				log.WarnContext(ctx, "failed to release event claim", "error", rerr)
			}
		}
		return err
	}

	log.InfoContext(ctx, "webhook processed", "event_kind", event.Kind.String())
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, event *billing.Event) error {
	switch event.Kind {
	case billing.EventPaymentSucceeded:
		return d.reconciler.HandlePaymentSucceeded(ctx, event)
	case billing.EventPaymentFailed:
		return d.reconciler.HandlePaymentFailed(ctx, event)
	case billing.EventSubscriptionUpdated:
		return d.reconciler.HandleSubscriptionUpdated(ctx, event)
	case billing.EventSubscriptionDeleted:
		return d.reconciler.HandleSubscriptionDeleted(ctx, event)
	case billing.EventTrialWillEnd:
		return d.reconciler.HandleTrialWillEnd(ctx, event)
	default:
		return nil
	}
}
