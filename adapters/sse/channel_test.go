package sse_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gavel/adapters/sse"
)

func TestChannel(t *testing.T) {
	ch := sse.NewChannel[message](1)

	sub := ch.Subscribe()
	assert.NotNil(t, sub)
	assert.False(t, ch.IsIdle())

	msg := message{Data: "first"}
	assert.Zero(t, ch.Broadcast(msg))
	// 緩衝已滿，第二則訊息被丟棄
	assert.Equal(t, 1, ch.Broadcast(message{Data: "second"}))

	assert.Equal(t, msg, <-sub)

	ch.Unsubscribe(sub)
	_, ok := <-sub
	assert.False(t, ok, "channel should be closed")
	assert.True(t, ch.IsIdle(), "channel should be idle")

	// 重複取消訂閱不會 panic
	ch.Unsubscribe(sub)
}

func TestChannel_UnsubscribeAll(t *testing.T) {
	ch := sse.NewChannel[message](1)
	first, second := ch.Subscribe(), ch.Subscribe()

	ch.UnsubscribeAll()

	_, ok := <-first
	assert.False(t, ok)
	_, ok = <-second
	assert.False(t, ok)
	assert.True(t, ch.IsIdle())
}
