package sse_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"gavel/adapters/sse"
)

func TestHub(t *testing.T) {
	defer goleak.VerifyNone(t)

	source := make(chan message)
	hub := sse.NewHub(route, sse.WithHubLogger(discardLogger()))
	hub.Start(source)
	defer hub.Close()

	auctionSub, err := hub.Subscribe("auction:1")
	require.NoError(t, err)
	globalSub, err := hub.Subscribe("auctions")
	require.NoError(t, err)

	source <- message{Channel: "auction:1", Data: "bid-placed"}
	source <- message{Channel: "nobody-listens", Data: "ignored"}
	source <- message{Channel: "auctions", Data: "auction-ended"}

	select {
	case received := <-auctionSub:
		assert.Equal(t, "bid-placed", received.Data)
	case <-time.After(time.Second):
		t.Fatal("did not receive message in time")
	}
	select {
	case received := <-globalSub:
		assert.Equal(t, "auction-ended", received.Data)
	case <-time.After(time.Second):
		t.Fatal("did not receive message in time")
	}
	assert.Empty(t, auctionSub)

	hub.Unsubscribe("auction:1", auctionSub)
	_, ok := <-auctionSub
	assert.False(t, ok, "channel should be closed")
}

func TestHub_Close(t *testing.T) {
	defer goleak.VerifyNone(t)

	source := make(chan message)
	hub := sse.NewHub(route, sse.WithHubLogger(discardLogger()))
	hub.Start(source)

	sub, err := hub.Subscribe("auctions")
	require.NoError(t, err)

	hub.Close()
	hub.Close()

	_, ok := <-sub
	assert.False(t, ok, "subscriber should be closed")
	_, err = hub.Subscribe("auctions")
	assert.ErrorIs(t, err, sse.ErrHubClosed)
}

func TestHub_StopsWhenSourceCloses(t *testing.T) {
	defer goleak.VerifyNone(t)

	source := make(chan message)
	hub := sse.NewHub(route, sse.WithHubLogger(discardLogger()))
	hub.Start(source)
	close(source)
	hub.Close()
}
