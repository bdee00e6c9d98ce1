package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/mrz1836/postmark"

	"subbox_backend/internal/model"
	"subbox_backend/internal/subscription"
)

var (
	ErrInvalidConfig     = errors.New("email: invalid configuration")
	ErrFailedToSendEmail = errors.New("email: failed to send")
)

type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"EMAIL_SENDER" envDefault:"Subscription Box <noreply@subbox.example>"`
	SupportEmail         string `env:"EMAIL_SUPPORT" envDefault:"support@subbox.example"`
	OpsEmail             string `env:"EMAIL_OPS"`
	DashboardURL         string `env:"DASHBOARD_URL" envDefault:"http://localhost:3000/dashboard"`
}

// Message is a rendered email ready for delivery.
type Message struct {
	To       string
	Subject  string
	Tag      string
	HTMLBody string
}

type Sender interface {
	SendEmail(ctx context.Context, msg Message) error
}

type PostmarkSender struct {
	client *postmark.Client
	from   string
	reply  string
}

func NewPostmarkSender(cfg Config) (*PostmarkSender, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: POSTMARK_SERVER_TOKEN is required", ErrInvalidConfig)
	}
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("%w: EMAIL_SENDER is required", ErrInvalidConfig)
	}
	return &PostmarkSender{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		from:   cfg.SenderEmail,
		reply:  cfg.SupportEmail,
	}, nil
}

func (s *PostmarkSender) SendEmail(ctx context.Context, msg Message) error {
	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:       s.from,
		ReplyTo:    s.reply,
		To:         msg.To,
		Subject:    msg.Subject,
		Tag:        msg.Tag,
		HTMLBody:   msg.HTMLBody,
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	})
	if err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(
			ErrFailedToSendEmail,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message),
		)
	}
	return nil
}

// Service renders lifecycle emails and hands them to a Sender. It is a
// subscription.Notifier.
type Service struct {
	sender       Sender
	templates    *template.Template
	opsEmail     string
	dashboardURL string
	logger       *slog.Logger
}

var _ subscription.Notifier = (*Service)(nil)

func NewService(sender Sender, cfg Config, logger *slog.Logger) (*Service, error) {
	templates, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("error loading email templates: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sender:       sender,
		templates:    templates,
		opsEmail:     cfg.OpsEmail,
		dashboardURL: cfg.DashboardURL,
		logger:       logger,
	}, nil
}

type WelcomeEmailData struct {
	Name         string
	DashboardURL string
}

type SubscriptionEmailData struct {
	Name              string
	PlanName          string
	Price             float64
	Currency          string
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool
	DashboardURL      string
}

type PaymentEmailData struct {
	Name         string
	PlanName     string
	Amount       float64
	Currency     string
	InvoiceID    string
	DashboardURL string
}

type ReconciliationEmailData struct {
	TaskID               uint
	UserID               uint
	Reason               string
	StripeSubscriptionID string
	LastError            string
}

func (s *Service) SendWelcomeEmail(ctx context.Context, user *model.User) error {
	data := WelcomeEmailData{Name: user.GetFullName(), DashboardURL: s.dashboardURL}
	return s.send(ctx, user.Email, "Welcome to your subscription box!", "welcome", "welcome", data)
}

// Notify renders the email matching n.Kind. Kinds without an email are
// ignored.
func (s *Service) Notify(ctx context.Context, n subscription.Notification) error {
	if n.Kind == subscription.NotifyReconciliation {
		return s.notifyOps(ctx, n)
	}
	if n.User == nil || n.User.Email == "" {
		return nil
	}

	sub := subscriptionData(n, s.dashboardURL)

	switch n.Kind {
	case subscription.NotifySubscriptionStarted:
		return s.send(ctx, n.User.Email, "Your subscription is active", "subscription-started", "subscription_started", sub)
	case subscription.NotifySubscriptionCanceled:
		return s.send(ctx, n.User.Email, "Your subscription has been cancelled", "subscription-canceled", "subscription_cancelled", sub)
	case subscription.NotifyTrialWillEnd:
		return s.send(ctx, n.User.Email, "Your free trial ends soon", "trial-will-end", "trial_will_end", sub)
	case subscription.NotifyRenewalUpcoming:
		return s.send(ctx, n.User.Email, "Your next box is on its way soon", "renewal-upcoming", "renewal_reminder", sub)
	case subscription.NotifyPaymentSucceeded, subscription.NotifyPaymentFailed:
		if n.Payment == nil {
			return nil
		}
		data := PaymentEmailData{
			Name:         sub.Name,
			PlanName:     sub.PlanName,
			Amount:       n.Payment.Amount(),
			Currency:     n.Payment.Currency,
			InvoiceID:    n.Payment.StripeInvoiceID,
			DashboardURL: s.dashboardURL,
		}
		if n.Kind == subscription.NotifyPaymentFailed {
			return s.send(ctx, n.User.Email, "We couldn't process your payment", "payment-failed", "payment_failed", data)
		}
		return s.send(ctx, n.User.Email, "Payment received", "payment-succeeded", "payment_receipt", data)
	default:
		return nil
	}
}

func (s *Service) notifyOps(ctx context.Context, n subscription.Notification) error {
	if s.opsEmail == "" || n.Task == nil {
		return nil
	}
	data := ReconciliationEmailData{
		TaskID:               n.Task.ID,
		UserID:               n.Task.UserID,
		Reason:               string(n.Task.Reason),
		StripeSubscriptionID: n.Task.StripeSubscriptionID,
		LastError:            n.Task.LastError,
	}
	return s.send(ctx, s.opsEmail, "Subscription reconciliation required", "ops-reconciliation", "reconciliation_required", data)
}

func subscriptionData(n subscription.Notification, dashboardURL string) SubscriptionEmailData {
	data := SubscriptionEmailData{Name: n.User.GetFullName(), DashboardURL: dashboardURL}
	if n.Plan != nil {
		data.PlanName = n.Plan.Name
		data.Price = n.Plan.PriceMonthly
		data.Currency = n.Plan.Currency
	}
	if n.Subscription != nil {
		data.PeriodEnd = n.Subscription.CurrentPeriodEnd
		data.CancelAtPeriodEnd = n.Subscription.CancelAtPeriodEnd
	}
	return data
}

func (s *Service) send(ctx context.Context, to, subject, tag, templateName string, data interface{}) error {
	var body bytes.Buffer
	if err := s.templates.ExecuteTemplate(&body, templateName, data); err != nil {
		return fmt.Errorf("template execution error: %w", err)
	}

	if err := s.sender.SendEmail(ctx, Message{To: to, Subject: subject, Tag: tag, HTMLBody: body.String()}); err != nil {
		return err
	}

	s.logger.DebugContext(ctx, "email sent", "tag", tag)
	return nil
}

// LogSender writes emails to the log instead of sending them. It backs local
// runs without Postmark credentials.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) SendEmail(ctx context.Context, msg Message) error {
	s.Logger.InfoContext(ctx, "email not sent, no provider configured", "tag", msg.Tag, "subject", msg.Subject)
	return nil
}
