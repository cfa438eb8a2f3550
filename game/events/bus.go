package events

import (
	"context"
	"sort"
	"sync"
)

// Channel is the pub/sub channel carrying timer and completion events
// across nodes.
const Channel = "questtime:events"

// Event names published by the timer and completion flows.
const (
	TimerStateChanged = "timer_state_changed"
	QuestCompleted    = "quest_completed"
	ActivityCompleted = "activity_completed"
	LevelUp           = "level_up"
)

// Timer kinds carried in event payloads and WS packets.
const (
	KindActivity = "activity"
	KindQuest    = "quest"
)

// TimerEvent is the payload for TimerStateChanged.
type TimerEvent struct {
	ProfileID   int64  `json:"profile_id"`
	CharacterID int64  `json:"character_id,omitempty"`
	Kind        string `json:"kind"`
	Status      string `json:"status"`
	Elapsed     uint   `json:"elapsed"`
	Remaining   *uint  `json:"remaining,omitempty"`
}

// CompletionEvent is the payload for QuestCompleted / ActivityCompleted.
type CompletionEvent struct {
	ProfileID   int64  `json:"profile_id"`
	CharacterID int64  `json:"character_id,omitempty"`
	Kind        string `json:"kind"`
	RewardXP    uint   `json:"reward_xp"`
	RewardCoins int64  `json:"reward_coins,omitempty"`
	NewStatus   string `json:"new_status"`
}

// HandlerFunc receives a published event. Handlers must not block.
type HandlerFunc func(ctx context.Context, event string, payload interface{})

type busEntry struct {
	priority int
	name     string
	fn       HandlerFunc
}

// Bus is an in-process notification bus. Handlers run synchronously in
// priority order (lower first) on the publisher's goroutine.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]*busEntry
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]*busEntry)}
}

// Subscribe adds a handler for the given event. name is used for Unsubscribe.
func (b *Bus) Subscribe(event string, priority int, name string, fn HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := append(b.handlers[event], &busEntry{priority: priority, name: name, fn: fn})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].priority < entries[j].priority
	})
	b.handlers[event] = entries
}

// Unsubscribe removes all handlers with the given name for the given event.
func (b *Bus) Unsubscribe(event, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.handlers[event]
	n := 0
	for _, e := range entries {
		if e.name != name {
			entries[n] = e
			n++
		}
	}
	b.handlers[event] = entries[:n]
}

// Publish delivers payload to every handler subscribed to event.
func (b *Bus) Publish(ctx context.Context, event string, payload interface{}) {
	b.mu.RLock()
	entries := make([]*busEntry, len(b.handlers[event]))
	copy(entries, b.handlers[event])
	b.mu.RUnlock()

	for _, e := range entries {
		e.fn(ctx, event, payload)
	}
}
