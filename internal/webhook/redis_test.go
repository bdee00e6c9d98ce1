package webhook_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subbox_backend/internal/webhook"
)

func TestRedisDeduper(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()

	client, err := webhook.NewRedisClient(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	d := webhook.NewRedisDeduper(client, time.Minute)
	id := "evt_" + uuid.NewString()

	ok, err := d.Claim(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.Claim(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, d.Release(ctx, id))
	ok, err = d.Claim(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, d.Release(ctx, id))
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := webhook.NewRedisClient(context.Background(), "not-a-url")
	assert.Error(t, err)
}
