package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_PublishInPriorityOrder(t *testing.T) {
	bus := NewBus()
	var order []string
	bus.Subscribe(TimerStateChanged, 10, "second", func(context.Context, string, interface{}) {
		order = append(order, "second")
	})
	bus.Subscribe(TimerStateChanged, 1, "first", func(context.Context, string, interface{}) {
		order = append(order, "first")
	})

	bus.Publish(context.Background(), TimerStateChanged, nil)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	called := false
	bus.Subscribe(QuestCompleted, 0, "h", func(context.Context, string, interface{}) { called = true })
	bus.Unsubscribe(QuestCompleted, "h")

	bus.Publish(context.Background(), QuestCompleted, nil)
	assert.False(t, called)
}

func TestBus_PayloadDelivered(t *testing.T) {
	bus := NewBus()
	var got *CompletionEvent
	bus.Subscribe(QuestCompleted, 0, "h", func(_ context.Context, _ string, payload interface{}) {
		got = payload.(*CompletionEvent)
	})

	bus.Publish(context.Background(), QuestCompleted, &CompletionEvent{RewardXP: 42})
	assert.NotNil(t, got)
	assert.Equal(t, uint(42), got.RewardXP)
}
