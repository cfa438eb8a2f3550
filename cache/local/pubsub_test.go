package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvMessage(t *testing.T, ch <-chan *Message) *Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestPubSubDeliver(t *testing.T) {
	ps := NewPubSub(16)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "events")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "events", "hello"))

	msg := recvMessage(t, ch)
	assert.Equal(t, "events", msg.Channel)
	assert.Equal(t, "hello", msg.Payload)
}

func TestPubSubChannelFilter(t *testing.T) {
	ps := NewPubSub(16)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "a")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "b", "wrong channel"))
	require.NoError(t, ps.Publish(ctx, "a", "right channel"))

	msg := recvMessage(t, ch)
	assert.Equal(t, "right channel", msg.Payload)
}

func TestPubSubMultipleSubscribers(t *testing.T) {
	ps := NewPubSub(16)
	ctx := context.Background()

	ch1, cancel1, err := ps.Subscribe(ctx, "events")
	require.NoError(t, err)
	defer cancel1()

	ch2, cancel2, err := ps.Subscribe(ctx, "events")
	require.NoError(t, err)
	defer cancel2()

	require.NoError(t, ps.Publish(ctx, "events", "fanout"))

	assert.Equal(t, "fanout", recvMessage(t, ch1).Payload)
	assert.Equal(t, "fanout", recvMessage(t, ch2).Payload)
}

func TestPubSubCancel(t *testing.T) {
	ps := NewPubSub(16)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "events")
	require.NoError(t, err)

	cancel()
	// channel is closed after cancel
	_, ok := <-ch
	assert.False(t, ok)

	// publishing after cancel must not panic
	require.NoError(t, ps.Publish(ctx, "events", "late"))
}

func TestPubSubContextCancel(t *testing.T) {
	ps := NewPubSub(16)
	ctx, stop := context.WithCancel(context.Background())

	ch, cancel, err := ps.Subscribe(ctx, "events")
	require.NoError(t, err)
	defer cancel()

	stop()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}
}
