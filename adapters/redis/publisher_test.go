package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestNewStreamPublisher(t *testing.T) {
	client, _, cleanup := setupTest(t)
	defer cleanup()

	tests := []struct {
		name    string
		client  *redis.Client
		stream  string
		wantErr string
	}{
		{name: "valid configuration", client: client, stream: "gavel:events"},
		{name: "nil client", client: nil, stream: "gavel:events", wantErr: "redis client cannot be nil"},
		{name: "empty stream", client: client, stream: "", wantErr: "stream cannot be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher, err := NewStreamPublisher[testEvent](tt.client, tt.stream)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				assert.Nil(t, publisher)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, publisher)
		})
	}
}

func TestStreamPublisher_Publish(t *testing.T) {
	client, _, cleanup := setupServer(t)
	defer cleanup()

	publisher, err := NewStreamPublisher[testEvent](client, "gavel:events", WithPublisherMaxLen[testEvent](100))
	require.NoError(t, err)

	assert.ErrorIs(t, publisher.Publish(testEvent{Name: "bid-placed"}), ErrPublisherClosed)

	publisher.Start()
	defer publisher.Close()

	require.NoError(t, publisher.Publish(testEvent{Name: "bid-placed", Channel: "auction:1"}))
	require.NoError(t, publisher.Publish(testEvent{Name: "auction-ended", Channel: "auctions"}))

	assert.Eventually(t, func() bool {
		n, err := client.XLen(context.Background(), "gavel:events").Result()
		return err == nil && n == 2
	}, time.Second, 10*time.Millisecond)

	entries, err := client.XRange(context.Background(), "gavel:events", "-", "+").Result()
	require.NoError(t, err)
	first, err := DecodeEntry[testEvent](entries[0].Values)
	require.NoError(t, err)
	assert.Equal(t, "bid-placed", first.Name)
	assert.Equal(t, "auction:1", first.Channel)
}

func TestStreamPublisher_EncodeError(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, _, cleanup := setupTest(t)
	defer cleanup()

	publisher, err := NewStreamPublisher[testEvent](client, "gavel:events",
		WithPublisherEncodeFunc[testEvent](func(testEvent) (map[string]any, error) {
			return nil, errors.New("boom")
		}))
	require.NoError(t, err)
	publisher.Start()
	defer publisher.Close()

	assert.ErrorContains(t, publisher.Publish(testEvent{}), "boom")
}

func TestStreamPublisher_StartClose(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, _, cleanup := setupTest(t)
	defer cleanup()

	publisher, err := NewStreamPublisher[testEvent](client, "gavel:events")
	require.NoError(t, err)

	publisher.Start()
	publisher.Start()
	publisher.Close()
	publisher.Close()
	assert.ErrorIs(t, publisher.Publish(testEvent{}), ErrPublisherClosed)
}
