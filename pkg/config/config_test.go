package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subbox_backend/pkg/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("DATABASE_URL", "postgres://localhost/subbox")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 24*time.Hour, cfg.JWT.TTL)
	assert.Equal(t, 10*time.Second, cfg.Stripe.Timeout)
	assert.Equal(t, uint32(5), cfg.Stripe.BreakerFailureThreshold)
	assert.False(t, cfg.Stripe.TestMode)
	assert.Equal(t, "*/15 * * * *", cfg.Cron.ReconcileSpec)
	assert.Equal(t, 24*time.Hour, cfg.Cron.ReminderWindow)
	assert.Equal(t, "subbox.subscription.events", cfg.Events.Exchange)
}

func TestLoad_RequiresStripeOutsideTestMode(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")

	_, err := config.Load()
	assert.Error(t, err)

	t.Setenv("STRIPE_TEST_MODE", "true")
	_, err = config.Load()
	assert.NoError(t, err)
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STRIPE_TEST_MODE", "true")

	_, err := config.Load()
	assert.Error(t, err)
}
