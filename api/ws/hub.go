package ws

import (
	"context"
	"encoding/json"

	"github.com/questtime/server/cache"
	"github.com/questtime/server/game/events"
	"github.com/questtime/server/game/quest"
	"go.uber.org/zap"
)

type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Hub bridges the in-process events bus and the cache pub/sub layer to
// connected sessions. Bus events are published to the pub/sub channel and
// every node's hub delivers them to its local sessions, so fan-out works
// the same on one node and on many.
type Hub struct {
	sm     *SessionManager
	pubsub cache.PubSub
	bus    *events.Bus
	quests *quest.Service
	logger *zap.Logger

	cancel func()
}

// NewHub creates a Hub. Call Start to begin delivery.
func NewHub(sm *SessionManager, ps cache.PubSub, bus *events.Bus, quests *quest.Service, logger *zap.Logger) *Hub {
	return &Hub{
		sm:     sm,
		pubsub: ps,
		bus:    bus,
		quests: quests,
		logger: logger,
	}
}

// Start subscribes to the events bus and the pub/sub channel.
func (h *Hub) Start(ctx context.Context) error {
	h.bus.Subscribe(events.TimerStateChanged, 100, "ws_hub", h.forward)
	h.bus.Subscribe(events.QuestCompleted, 100, "ws_hub", h.forward)
	h.bus.Subscribe(events.ActivityCompleted, 100, "ws_hub", h.forward)
	h.bus.Subscribe(events.LevelUp, 100, "ws_hub", h.forward)

	ch, cancel, err := h.pubsub.Subscribe(ctx, events.Channel)
	if err != nil {
		return err
	}
	h.cancel = cancel
	go h.deliverLoop(ch)
	return nil
}

// Stop unsubscribes from the bus and the pub/sub channel.
func (h *Hub) Stop() {
	h.bus.Unsubscribe(events.TimerStateChanged, "ws_hub")
	h.bus.Unsubscribe(events.QuestCompleted, "ws_hub")
	h.bus.Unsubscribe(events.ActivityCompleted, "ws_hub")
	h.bus.Unsubscribe(events.LevelUp, "ws_hub")
	if h.cancel != nil {
		h.cancel()
	}
}

// forward republishes a bus event onto the pub/sub channel.
func (h *Hub) forward(ctx context.Context, event string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("event marshal failed", zap.String("event", event), zap.Error(err))
		return
	}
	data, err := json.Marshal(envelope{Event: event, Payload: raw})
	if err != nil {
		return
	}
	if err := h.pubsub.Publish(ctx, events.Channel, string(data)); err != nil {
		h.logger.Error("event publish failed", zap.String("event", event), zap.Error(err))
	}
}

// deliverLoop drains the pub/sub channel and pushes packets to the owning
// profile's session.
func (h *Hub) deliverLoop(ch <-chan *cache.Message) {
	for msg := range ch {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			h.logger.Warn("malformed hub event", zap.Error(err))
			continue
		}
		h.deliver(&env)
	}
}

func (h *Hub) deliver(env *envelope) {
	var owner struct {
		ProfileID   int64 `json:"profile_id"`
		CharacterID int64 `json:"character_id"`
	}
	if err := json.Unmarshal(env.Payload, &owner); err != nil {
		return
	}
	sess := h.sm.Get(owner.ProfileID)
	if sess == nil {
		return
	}
	sess.Send(&Packet{Type: env.Event, Payload: env.Payload})

	// A completion can unlock or lock quests; refresh the client's list.
	if env.Event == events.QuestCompleted && owner.CharacterID != 0 {
		h.pushEligible(sess, owner.CharacterID)
	}
}

func (h *Hub) pushEligible(s *Session, characterID int64) {
	list, err := h.quests.EligibleQuests(context.Background(), characterID)
	if err != nil {
		h.logger.Warn("eligible refresh failed",
			zap.Int64("character_id", characterID),
			zap.Error(err))
		return
	}
	payload, err := json.Marshal(list)
	if err != nil {
		return
	}
	s.Send(&Packet{Type: "eligible_quests", Payload: payload})
}
