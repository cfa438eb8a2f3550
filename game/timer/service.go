package timer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/questtime/server/game/events"
	"github.com/questtime/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Snapshot is the externally visible timer state returned by every control
// operation.
type Snapshot struct {
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	Elapsed   uint   `json:"elapsed"`
	Target    uint   `json:"target,omitempty"`
	Remaining *uint  `json:"remaining,omitempty"`
	ItemID    *int64 `json:"item_id,omitempty"`
}

// keyedLocks serializes mutations per owner row.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[int64]*sync.Mutex)}
}

func (k *keyedLocks) get(id int64) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[id]
	if !ok {
		l = &sync.Mutex{}
		k.locks[id] = l
	}
	return l
}

// Service owns both timer rows and serializes all mutations per owner.
// Every profile has exactly one activity timer and every character exactly
// one quest timer, created alongside the owner; a missing row is a fatal
// integrity violation, not a lazy-create case.
type Service struct {
	db            *gorm.DB
	machine       *Machine
	bus           *events.Bus
	activityLocks *keyedLocks
	questLocks    *keyedLocks
	logger        *zap.Logger
}

// NewService creates a timer Service on the real clock.
func NewService(db *gorm.DB, bus *events.Bus, logger *zap.Logger) *Service {
	return &Service{
		db:            db,
		machine:       NewMachine(),
		bus:           bus,
		activityLocks: newKeyedLocks(),
		questLocks:    newKeyedLocks(),
		logger:        logger,
	}
}

// SetClock replaces the machine clock. Test hook.
func (s *Service) SetClock(now func() time.Time) {
	s.machine.Now = now
}

// Machine exposes the state machine for read-side helpers.
func (s *Service) Machine() *Machine {
	return s.machine
}

// WithActivityTimer runs fn under the profile's timer lock inside a
// transaction, then persists the row. An ErrInvalidTransition from fn still
// commits: the forced reset must be durable.
func (s *Service) WithActivityTimer(ctx context.Context, profileID int64, fn func(tx *gorm.DB, at *model.ActivityTimer) error) error {
	l := s.activityLocks.get(profileID)
	l.Lock()
	defer l.Unlock()

	var opErr error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var at model.ActivityTimer
		if err := tx.Where("profile_id = ?", profileID).First(&at).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMissingOwnerTimer
			}
			return err
		}
		opErr = fn(tx, &at)
		if opErr != nil && !errors.Is(opErr, ErrInvalidTransition) {
			return opErr
		}
		return tx.Save(&at).Error
	})
	if err != nil {
		return err
	}
	return opErr
}

// WithQuestTimer is the quest-timer counterpart of WithActivityTimer,
// keyed by character.
func (s *Service) WithQuestTimer(ctx context.Context, characterID int64, fn func(tx *gorm.DB, qt *model.QuestTimer) error) error {
	l := s.questLocks.get(characterID)
	l.Lock()
	defer l.Unlock()

	var opErr error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var qt model.QuestTimer
		if err := tx.Where("character_id = ?", characterID).First(&qt).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMissingOwnerTimer
			}
			return err
		}
		opErr = fn(tx, &qt)
		if opErr != nil && !errors.Is(opErr, ErrInvalidTransition) {
			return opErr
		}
		return tx.Save(&qt).Error
	})
	if err != nil {
		return err
	}
	return opErr
}

// ---- Activity timer operations ----

// ActivityAttach attaches an activity to the profile's timer. Any previous
// attachment is fully reset first; unbanked progress on the old activity is
// forfeited.
func (s *Service) ActivityAttach(ctx context.Context, profileID, activityID int64) (Snapshot, error) {
	var snap Snapshot
	err := s.WithActivityTimer(ctx, profileID, func(tx *gorm.DB, at *model.ActivityTimer) error {
		var act model.Activity
		if err := tx.Where("id = ? AND profile_id = ?", activityID, profileID).First(&act).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnknownItem
			}
			return err
		}
		s.machine.Attach(&at.TimerState)
		at.ActivityID = &act.ID
		snap = s.activitySnapshot(at)
		return nil
	})
	if err == nil {
		s.publishActivityEvent(ctx, profileID, snap)
	}
	return snap, err
}

// ActivityStart starts the profile's activity timer. Idempotent when
// already active. An item-less timer outside the empty state is corrupt:
// it is force-reset and the call reports ErrInvalidTransition.
func (s *Service) ActivityStart(ctx context.Context, profileID int64) (Snapshot, error) {
	return s.activityOp(ctx, profileID, func(at *model.ActivityTimer) error {
		if err := s.guardActivityItem(profileID, at); err != nil {
			return err
		}
		s.machine.Start(&at.TimerState)
		return nil
	})
}

// ActivityPause pauses the profile's activity timer, banking the live
// elapsed time. Idempotent when already paused.
func (s *Service) ActivityPause(ctx context.Context, profileID int64) (Snapshot, error) {
	return s.activityOp(ctx, profileID, func(at *model.ActivityTimer) error {
		if at.ActivityID == nil {
			if at.Status == model.TimerEmpty {
				return nil
			}
			return s.forceResetActivity(profileID, at)
		}
		s.machine.Pause(&at.TimerState)
		return nil
	})
}

// ActivityReset unconditionally clears the timer and its attachment.
func (s *Service) ActivityReset(ctx context.Context, profileID int64) (Snapshot, error) {
	return s.activityOp(ctx, profileID, func(at *model.ActivityTimer) error {
		s.machine.Reset(&at.TimerState)
		at.ActivityID = nil
		return nil
	})
}

// ActivityComplete banks the elapsed time and parks the timer in the
// completed state. The reward flow reads the banked time and resets.
func (s *Service) ActivityComplete(ctx context.Context, profileID int64) (Snapshot, error) {
	return s.activityOp(ctx, profileID, func(at *model.ActivityTimer) error {
		if err := s.guardActivityItem(profileID, at); err != nil {
			return err
		}
		s.machine.Complete(&at.TimerState)
		return nil
	})
}

// ActivitySnapshot returns the current state without taking the write lock.
func (s *Service) ActivitySnapshot(ctx context.Context, profileID int64) (Snapshot, error) {
	var at model.ActivityTimer
	if err := s.db.WithContext(ctx).Where("profile_id = ?", profileID).First(&at).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Snapshot{}, ErrMissingOwnerTimer
		}
		return Snapshot{}, err
	}
	return s.activitySnapshot(&at), nil
}

func (s *Service) activityOp(ctx context.Context, profileID int64, fn func(at *model.ActivityTimer) error) (Snapshot, error) {
	var snap Snapshot
	err := s.WithActivityTimer(ctx, profileID, func(_ *gorm.DB, at *model.ActivityTimer) error {
		opErr := fn(at)
		snap = s.activitySnapshot(at)
		return opErr
	})
	if err == nil || errors.Is(err, ErrInvalidTransition) {
		s.publishActivityEvent(ctx, profileID, snap)
	}
	return snap, err
}

func (s *Service) guardActivityItem(profileID int64, at *model.ActivityTimer) error {
	if at.ActivityID != nil {
		return nil
	}
	return s.forceResetActivity(profileID, at)
}

func (s *Service) forceResetActivity(profileID int64, at *model.ActivityTimer) error {
	s.logger.Warn("activity timer without attached activity, forcing reset",
		zap.Int64("profile_id", profileID),
		zap.String("status", at.Status))
	s.machine.Reset(&at.TimerState)
	at.ActivityID = nil
	return ErrInvalidTransition
}

func (s *Service) activitySnapshot(at *model.ActivityTimer) Snapshot {
	return Snapshot{
		Kind:    events.KindActivity,
		Status:  at.Status,
		Elapsed: s.machine.Elapsed(&at.TimerState),
		ItemID:  at.ActivityID,
	}
}

// ---- Quest timer operations ----

// QuestAttach attaches a quest with a target duration to the character's
// timer. Eligibility must be validated by the caller; the timer only checks
// that the quest exists. A previous attachment is reset first.
func (s *Service) QuestAttach(ctx context.Context, characterID, questID int64, targetDuration uint) (Snapshot, error) {
	var snap Snapshot
	err := s.WithQuestTimer(ctx, characterID, func(tx *gorm.DB, qt *model.QuestTimer) error {
		var q model.Quest
		if err := tx.Where("id = ?", questID).First(&q).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnknownItem
			}
			return err
		}
		s.machine.Attach(&qt.TimerState)
		qt.QuestID = &q.ID
		qt.TargetDuration = targetDuration
		snap = s.questSnapshot(qt)
		return nil
	})
	if err == nil {
		s.publishQuestEvent(ctx, characterID, snap)
	}
	return snap, err
}

// QuestStart starts the character's quest timer. Idempotent when already
// active; corrupt item-less states are force-reset.
func (s *Service) QuestStart(ctx context.Context, characterID int64) (Snapshot, error) {
	return s.questOp(ctx, characterID, func(qt *model.QuestTimer) error {
		if err := s.guardQuestItem(characterID, qt); err != nil {
			return err
		}
		s.machine.Start(&qt.TimerState)
		return nil
	})
}

// QuestPause pauses the character's quest timer. Idempotent when already
// paused.
func (s *Service) QuestPause(ctx context.Context, characterID int64) (Snapshot, error) {
	return s.questOp(ctx, characterID, func(qt *model.QuestTimer) error {
		if qt.QuestID == nil {
			if qt.Status == model.TimerEmpty {
				return nil
			}
			return s.forceResetQuest(characterID, qt)
		}
		s.machine.Pause(&qt.TimerState)
		return nil
	})
}

// QuestReset unconditionally clears the timer, its quest and its target.
func (s *Service) QuestReset(ctx context.Context, characterID int64) (Snapshot, error) {
	return s.questOp(ctx, characterID, func(qt *model.QuestTimer) error {
		s.machine.Reset(&qt.TimerState)
		qt.QuestID = nil
		qt.TargetDuration = 0
		return nil
	})
}

// QuestComplete banks the elapsed time and parks the timer in the completed
// state for the completion flow.
func (s *Service) QuestComplete(ctx context.Context, characterID int64) (Snapshot, error) {
	return s.questOp(ctx, characterID, func(qt *model.QuestTimer) error {
		if err := s.guardQuestItem(characterID, qt); err != nil {
			return err
		}
		s.machine.Complete(&qt.TimerState)
		return nil
	})
}

// QuestSnapshot returns the current state without taking the write lock.
func (s *Service) QuestSnapshot(ctx context.Context, characterID int64) (Snapshot, error) {
	var qt model.QuestTimer
	if err := s.db.WithContext(ctx).Where("character_id = ?", characterID).First(&qt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Snapshot{}, ErrMissingOwnerTimer
		}
		return Snapshot{}, err
	}
	return s.questSnapshot(&qt), nil
}

func (s *Service) questOp(ctx context.Context, characterID int64, fn func(qt *model.QuestTimer) error) (Snapshot, error) {
	var snap Snapshot
	err := s.WithQuestTimer(ctx, characterID, func(_ *gorm.DB, qt *model.QuestTimer) error {
		opErr := fn(qt)
		snap = s.questSnapshot(qt)
		return opErr
	})
	if err == nil || errors.Is(err, ErrInvalidTransition) {
		s.publishQuestEvent(ctx, characterID, snap)
	}
	return snap, err
}

func (s *Service) guardQuestItem(characterID int64, qt *model.QuestTimer) error {
	if qt.QuestID != nil {
		return nil
	}
	return s.forceResetQuest(characterID, qt)
}

func (s *Service) forceResetQuest(characterID int64, qt *model.QuestTimer) error {
	s.logger.Warn("quest timer without attached quest, forcing reset",
		zap.Int64("character_id", characterID),
		zap.String("status", qt.Status))
	s.machine.Reset(&qt.TimerState)
	qt.QuestID = nil
	qt.TargetDuration = 0
	return ErrInvalidTransition
}

func (s *Service) questSnapshot(qt *model.QuestTimer) Snapshot {
	snap := Snapshot{
		Kind:    events.KindQuest,
		Status:  qt.Status,
		Elapsed: s.machine.Elapsed(&qt.TimerState),
		Target:  qt.TargetDuration,
		ItemID:  qt.QuestID,
	}
	// Target 0 is an open-ended quest: no countdown, no implicit finish.
	if qt.QuestID != nil && qt.TargetDuration > 0 {
		remaining := s.machine.Remaining(&qt.TimerState, qt.TargetDuration)
		snap.Remaining = &remaining
	}
	return snap
}

// ---- event fan-out ----

func (s *Service) publishActivityEvent(ctx context.Context, profileID int64, snap Snapshot) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, events.TimerStateChanged, &events.TimerEvent{
		ProfileID: profileID,
		Kind:      events.KindActivity,
		Status:    snap.Status,
		Elapsed:   snap.Elapsed,
	})
}

func (s *Service) publishQuestEvent(ctx context.Context, characterID int64, snap Snapshot) {
	if s.bus == nil {
		return
	}
	// Fan-out routes by profile, so the owning profile id must ride along.
	var char model.Character
	if err := s.db.WithContext(ctx).Select("profile_id").First(&char, characterID).Error; err != nil {
		s.logger.Warn("quest timer event: owner lookup failed",
			zap.Int64("character_id", characterID), zap.Error(err))
		return
	}
	s.bus.Publish(ctx, events.TimerStateChanged, &events.TimerEvent{
		ProfileID:   char.ProfileID,
		CharacterID: characterID,
		Kind:        events.KindQuest,
		Status:      snap.Status,
		Elapsed:     snap.Elapsed,
		Remaining:   snap.Remaining,
	})
}
