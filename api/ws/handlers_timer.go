package ws

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/questtime/server/game/activity"
	"github.com/questtime/server/game/events"
	"github.com/questtime/server/game/quest"
	"github.com/questtime/server/game/timer"
	"go.uber.org/zap"
)

type attachPayload struct {
	Kind     string `json:"kind"` // "activity" | "quest"
	ItemID   int64  `json:"item_id"`
	Duration uint   `json:"duration,omitempty"` // quest target, seconds
}

type kindPayload struct {
	Kind string `json:"kind"`
}

type pingPayload struct {
	ClientTS int64 `json:"client_ts"`
}

// RegisterTimerHandlers wires the timer control message types into the router.
func RegisterTimerHandlers(
	r *Router,
	timers *timer.Service,
	quests *quest.Service,
	activities *activity.Service,
	logger *zap.Logger,
) {
	r.On("ping", func(_ context.Context, s *Session, raw json.RawMessage) error {
		var p pingPayload
		_ = json.Unmarshal(raw, &p)
		s.SendHeartbeatPong(p.ClientTS)
		return nil
	})

	r.On("timer_attach", func(ctx context.Context, s *Session, raw json.RawMessage) error {
		var p attachPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			sendError(s, "timer_attach", "bad payload")
			return nil
		}
		var (
			snap timer.Snapshot
			err  error
		)
		switch p.Kind {
		case events.KindQuest:
			snap, err = timers.QuestAttach(ctx, s.CharacterID, p.ItemID, p.Duration)
		default:
			snap, err = timers.ActivityAttach(ctx, s.ProfileID, p.ItemID)
		}
		return replySnapshot(s, snap, err)
	})

	r.On("timer_start", timerKindOp(timers.ActivityStart, timers.QuestStart))
	r.On("timer_pause", timerKindOp(timers.ActivityPause, timers.QuestPause))
	r.On("timer_reset", timerKindOp(timers.ActivityReset, timers.QuestReset))

	r.On("timer_complete", func(ctx context.Context, s *Session, raw json.RawMessage) error {
		var p kindPayload
		_ = json.Unmarshal(raw, &p)
		var err error
		if p.Kind == events.KindQuest {
			_, err = quests.Complete(ctx, s.CharacterID)
		} else {
			_, err = activities.Complete(ctx, s.ProfileID)
		}
		if err != nil {
			sendError(s, "timer_complete", err.Error())
			return nil
		}
		// Completion reward details reach the client through the hub fan-out.
		return nil
	})

	r.On("quest_poll", func(ctx context.Context, s *Session, _ json.RawMessage) error {
		_, snap, err := quests.PollFinished(ctx, s.CharacterID)
		return replySnapshot(s, snap, err)
	})

	r.On("quests_eligible", func(ctx context.Context, s *Session, _ json.RawMessage) error {
		list, err := quests.EligibleQuests(ctx, s.CharacterID)
		if err != nil {
			sendError(s, "quests_eligible", err.Error())
			return nil
		}
		payload, err := json.Marshal(list)
		if err != nil {
			return err
		}
		s.Send(&Packet{Type: "eligible_quests", Payload: payload})
		return nil
	})
}

// timerKindOp builds a handler that routes a kind-tagged control message to
// the activity or quest variant of a timer operation.
func timerKindOp(
	activityOp func(context.Context, int64) (timer.Snapshot, error),
	questOp func(context.Context, int64) (timer.Snapshot, error),
) HandlerFunc {
	return func(ctx context.Context, s *Session, raw json.RawMessage) error {
		var p kindPayload
		_ = json.Unmarshal(raw, &p)
		var (
			snap timer.Snapshot
			err  error
		)
		if p.Kind == events.KindQuest {
			snap, err = questOp(ctx, s.CharacterID)
		} else {
			snap, err = activityOp(ctx, s.ProfileID)
		}
		return replySnapshot(s, snap, err)
	}
}

// replySnapshot sends the post-operation snapshot, including after a rejected
// transition: the client needs the authoritative state either way.
func replySnapshot(s *Session, snap timer.Snapshot, err error) error {
	if err != nil && !errors.Is(err, timer.ErrInvalidTransition) {
		sendError(s, "timer", err.Error())
		return nil
	}
	payload, mErr := json.Marshal(snap)
	if mErr != nil {
		return mErr
	}
	s.Send(&Packet{Type: "timer_state", Payload: payload})
	if errors.Is(err, timer.ErrInvalidTransition) {
		sendError(s, "timer", "invalid transition")
	}
	return nil
}

func sendError(s *Session, op, msg string) {
	type errPayload struct {
		Op      string `json:"op"`
		Message string `json:"message"`
	}
	payload, _ := json.Marshal(errPayload{Op: op, Message: msg})
	s.Send(&Packet{Type: "error", Payload: payload})
}
