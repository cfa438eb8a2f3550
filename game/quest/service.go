package quest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/questtime/server/audit"
	"github.com/questtime/server/game/events"
	"github.com/questtime/server/game/progression"
	"github.com/questtime/server/game/timer"
	"github.com/questtime/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrRewardApplication wraps any failure inside the completion sequence.
// The sequence is transactional: on this error nothing was applied and the
// quest timer stays in the completed state for a retry.
var ErrRewardApplication = errors.New("quest: reward application failed")

// ErrNoQuestAttached is returned when a completion is requested but the
// timer holds no quest.
var ErrNoQuestAttached = errors.New("quest: no quest attached")

// Service handles quest eligibility queries and the completion flow.
type Service struct {
	db      *gorm.DB
	timers  *timer.Service
	effects *progression.EffectRegistry
	bus     *events.Bus
	audit   *audit.Service
	logger  *zap.Logger
}

// NewService creates a quest Service.
func NewService(db *gorm.DB, timers *timer.Service, effects *progression.EffectRegistry, bus *events.Bus, auditSvc *audit.Service, logger *zap.Logger) *Service {
	if effects == nil {
		effects = progression.NewEffectRegistry()
	}
	return &Service{db: db, timers: timers, effects: effects, bus: bus, audit: auditSvc, logger: logger}
}

// EligibleQuests loads the inputs and runs the eligibility engine for the
// character. Called after login, after any completion, and on explicit
// refresh; never cached.
func (svc *Service) EligibleQuests(ctx context.Context, characterID int64) ([]model.Quest, error) {
	var char model.Character
	if err := svc.db.WithContext(ctx).First(&char, characterID).Error; err != nil {
		return nil, err
	}
	var profile model.Profile
	if err := svc.db.WithContext(ctx).First(&profile, char.ProfileID).Error; err != nil {
		return nil, err
	}
	var quests []model.Quest
	if err := svc.db.WithContext(ctx).Preload("Requirements").Order("id").Find(&quests).Error; err != nil {
		return nil, err
	}
	ledger, err := svc.loadLedger(ctx, svc.db, characterID)
	if err != nil {
		return nil, err
	}
	return Eligible(&char, &profile, quests, ledger, svc.timers.Machine().Now()), nil
}

// Complete runs the full quest completion sequence for the character's
// timer. The timer is banked and marked completed first (durable on its
// own), then the reward sequence applies in a single transaction:
// completion ledger upsert, quest results, XP from the banked elapsed time,
// total_quests, and the timer reset. On failure the timer remains completed
// so the client can retry.
func (svc *Service) Complete(ctx context.Context, characterID int64) (*events.CompletionEvent, error) {
	snap, err := svc.timers.QuestComplete(ctx, characterID)
	if err != nil {
		if errors.Is(err, timer.ErrInvalidTransition) {
			return nil, ErrNoQuestAttached
		}
		return nil, err
	}
	if snap.ItemID == nil {
		return nil, ErrNoQuestAttached
	}

	var ev *events.CompletionEvent
	err = svc.timers.WithQuestTimer(ctx, characterID, func(tx *gorm.DB, qt *model.QuestTimer) error {
		if qt.Status != model.TimerCompleted || qt.QuestID == nil {
			return timer.ErrNotCompleted
		}
		completed, applyErr := svc.applyCompletion(tx, qt)
		if applyErr != nil {
			return fmt.Errorf("%w: %v", ErrRewardApplication, applyErr)
		}
		ev = completed
		svc.timers.Machine().Reset(&qt.TimerState)
		qt.QuestID = nil
		qt.TargetDuration = 0
		return nil
	})
	if err != nil {
		svc.logAudit(characterID, "quest_complete", nil, err)
		return nil, err
	}

	svc.logAudit(characterID, "quest_complete", ev, nil)
	if svc.bus != nil {
		svc.bus.Publish(ctx, events.QuestCompleted, ev)
	}
	return ev, nil
}

// PollFinished checks whether the quest timer has reached its target and, if
// so, performs the implicit completion. Returns the completion event when
// one fired, else nil with the current snapshot untouched.
func (svc *Service) PollFinished(ctx context.Context, characterID int64) (*events.CompletionEvent, timer.Snapshot, error) {
	snap, err := svc.timers.QuestSnapshot(ctx, characterID)
	if err != nil {
		return nil, timer.Snapshot{}, err
	}
	if snap.ItemID == nil || snap.Remaining == nil || *snap.Remaining > 0 {
		return nil, snap, nil
	}
	ev, err := svc.Complete(ctx, characterID)
	if err != nil {
		return nil, snap, err
	}
	after, err := svc.timers.QuestSnapshot(ctx, characterID)
	if err != nil {
		return ev, snap, err
	}
	return ev, after, nil
}

// applyCompletion performs the ordered side effects inside the caller's
// transaction. The quest timer row itself is saved by the caller.
func (svc *Service) applyCompletion(tx *gorm.DB, qt *model.QuestTimer) (*events.CompletionEvent, error) {
	now := svc.timers.Machine().Now()
	elapsed := qt.ElapsedSeconds
	questID := *qt.QuestID

	var q model.Quest
	if err := tx.First(&q, questID).Error; err != nil {
		return nil, fmt.Errorf("load quest %d: %w", questID, err)
	}
	var char model.Character
	if err := tx.First(&char, qt.CharacterID).Error; err != nil {
		return nil, fmt.Errorf("load character %d: %w", qt.CharacterID, err)
	}

	// Level and prior completion count are captured before any mutation:
	// both feed the XP formula.
	levelBefore := char.Level

	var completion model.QuestCompletion
	timesBefore := uint(0)
	err := tx.Where("character_id = ? AND quest_id = ?", char.ID, questID).First(&completion).Error
	switch {
	case err == nil:
		timesBefore = completion.TimesCompleted
		completion.TimesCompleted++
		completion.LastCompleted = now
		if err := tx.Save(&completion).Error; err != nil {
			return nil, fmt.Errorf("update completion ledger: %w", err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		completion = model.QuestCompletion{
			CharacterID:    char.ID,
			QuestID:        questID,
			TimesCompleted: 1,
			LastCompleted:  now,
		}
		if err := tx.Create(&completion).Error; err != nil {
			return nil, fmt.Errorf("create completion ledger: %w", err)
		}
	default:
		return nil, fmt.Errorf("read completion ledger: %w", err)
	}

	// Quest results: coins, dynamic rewards, buff snapshots.
	char.Coins += q.Results.CoinReward
	if len(q.Results.DynamicRewards) > 0 {
		if err := svc.effects.ApplyAll(&char, q.Results.DynamicRewards); err != nil {
			return nil, err
		}
	}
	for _, name := range q.Results.BuffList() {
		var tpl model.Buff
		if err := tx.Where("name = ?", name).First(&tpl).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				svc.logger.Warn("quest grants unknown buff, skipping",
					zap.Int64("quest_id", questID),
					zap.String("buff", name))
				continue
			}
			return nil, fmt.Errorf("load buff %q: %w", name, err)
		}
		if err := tx.Create(progression.Snapshot(&tpl, model.OwnerCharacter, char.ID, now)).Error; err != nil {
			return nil, fmt.Errorf("apply buff %q: %w", name, err)
		}
	}

	rewardXP := progression.QuestXP(q.Results.XPRate, elapsed, levelBefore, timesBefore)
	progression.AddXP(&char.Progress, rewardXP)
	char.TotalQuests++
	if err := tx.Save(&char).Error; err != nil {
		return nil, fmt.Errorf("save character: %w", err)
	}

	svc.logger.Info("quest completed",
		zap.Int64("character_id", char.ID),
		zap.Int64("quest_id", questID),
		zap.Uint("elapsed", elapsed),
		zap.Uint("reward_xp", rewardXP))

	return &events.CompletionEvent{
		ProfileID:   char.ProfileID,
		CharacterID: char.ID,
		Kind:        events.KindQuest,
		RewardXP:    rewardXP,
		RewardCoins: q.Results.CoinReward,
		NewStatus:   model.TimerEmpty,
	}, nil
}

func (svc *Service) loadLedger(ctx context.Context, tx *gorm.DB, characterID int64) (Ledger, error) {
	var rows []model.QuestCompletion
	if err := tx.WithContext(ctx).Where("character_id = ?", characterID).Find(&rows).Error; err != nil {
		return nil, err
	}
	ledger := make(Ledger, len(rows))
	for i := range rows {
		ledger[rows[i].QuestID] = &rows[i]
	}
	return ledger, nil
}

func (svc *Service) logAudit(characterID int64, action string, detail interface{}, err error) {
	if svc.audit == nil {
		return
	}
	entry := audit.Entry{CharacterID: &characterID, Action: action, Detail: detail}
	if err != nil {
		entry.Error = err.Error()
	}
	svc.audit.Log(entry)
}

// RefreshActiveWindows recomputes IsActive for quests carrying an
// activation window. Runs from the maintenance scheduler; independent of
// the timer core.
func (svc *Service) RefreshActiveWindows(ctx context.Context) error {
	now := svc.timers.Machine().Now()
	var quests []model.Quest
	err := svc.db.WithContext(ctx).
		Where("starts_at IS NOT NULL OR ends_at IS NOT NULL").
		Find(&quests).Error
	if err != nil {
		return err
	}
	for i := range quests {
		q := &quests[i]
		active := windowActive(q, now)
		if active == q.IsActive {
			continue
		}
		if err := svc.db.WithContext(ctx).Model(q).Update("is_active", active).Error; err != nil {
			return err
		}
		svc.logger.Info("quest activation window flipped",
			zap.Int64("quest_id", q.ID),
			zap.Bool("is_active", active))
	}
	return nil
}

// windowActive evaluates the [StartsAt, EndsAt) activation window.
func windowActive(q *model.Quest, now time.Time) bool {
	if q.StartsAt != nil && now.Before(*q.StartsAt) {
		return false
	}
	if q.EndsAt != nil && !now.Before(*q.EndsAt) {
		return false
	}
	return true
}
