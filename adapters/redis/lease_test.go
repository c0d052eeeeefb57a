package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestLease_Exclusive(t *testing.T) {
	client, _, cleanup := setupServer(t)
	defer cleanup()

	first := NewLease(client, "gavel:lease", WithLeaseRetryDelay(20*time.Millisecond))
	second := NewLease(client, "gavel:lease", WithLeaseRetryDelay(20*time.Millisecond))

	require.NoError(t, first.Acquire(context.Background()))
	assert.True(t, first.Held())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, second.Acquire(ctx), context.DeadlineExceeded)
	assert.False(t, second.Held())

	require.NoError(t, first.Release())
	assert.False(t, first.Held())

	require.NoError(t, second.Acquire(context.Background()))
	assert.True(t, second.Held())
	require.NoError(t, second.Release())
}

func TestLease_Lost(t *testing.T) {
	client, mr, cleanup := setupServer(t)
	defer cleanup()

	lease := NewLease(client, "gavel:lease",
		WithLeaseExpiry(time.Second),
		WithLeaseRenewInterval(20*time.Millisecond))
	require.NoError(t, lease.Acquire(context.Background()))

	// 租約被其他人清除後，續約會失敗
	mr.Del("gavel:lease")

	select {
	case <-lease.Lost():
	case <-time.After(time.Second):
		t.Fatal("lease was not reported lost")
	}
	assert.False(t, lease.Held())
	assert.ErrorIs(t, lease.Release(), ErrLeaseNotHeld)
}

func TestLease_Errors(t *testing.T) {
	t.Run("release without acquire", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		client, _, cleanup := setupTest(t)
		defer cleanup()

		assert.ErrorIs(t, NewLease(client, "gavel:lease").Release(), ErrLeaseNotHeld)
	})

	t.Run("cancelled context", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		client, _, cleanup := setupTest(t)
		defer cleanup()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, NewLease(client, "gavel:lease").Acquire(ctx), context.Canceled)
	})

	t.Run("redis error", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		mock.Regexp().ExpectSetNX("gavel:lease", ".*", 8*time.Second).SetErr(redis.ErrClosed)

		err := NewLease(client, "gavel:lease").Acquire(context.Background())
		assert.ErrorIs(t, err, redis.ErrClosed)
	})
}
