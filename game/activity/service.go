package activity

import (
	"context"
	"errors"
	"fmt"

	"github.com/questtime/server/audit"
	"github.com/questtime/server/game/events"
	"github.com/questtime/server/game/progression"
	"github.com/questtime/server/game/timer"
	"github.com/questtime/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNoActivityAttached is returned when a completion is requested but the
// timer holds no activity.
var ErrNoActivityAttached = errors.New("activity: no activity attached")

// ErrRewardApplication wraps any failure inside the completion sequence;
// the timer stays completed for a retry.
var ErrRewardApplication = errors.New("activity: reward application failed")

// Service handles activity buckets and the activity completion flow.
type Service struct {
	db     *gorm.DB
	timers *timer.Service
	bus    *events.Bus
	audit  *audit.Service
	logger *zap.Logger
}

// NewService creates an activity Service.
func NewService(db *gorm.DB, timers *timer.Service, bus *events.Bus, auditSvc *audit.Service, logger *zap.Logger) *Service {
	return &Service{db: db, timers: timers, bus: bus, audit: auditSvc, logger: logger}
}

// List returns the profile's activity buckets.
func (svc *Service) List(ctx context.Context, profileID int64) ([]model.Activity, error) {
	var acts []model.Activity
	err := svc.db.WithContext(ctx).Where("profile_id = ?", profileID).Order("id").Find(&acts).Error
	return acts, err
}

// Create adds a new activity bucket for the profile.
func (svc *Service) Create(ctx context.Context, profileID int64, name string, xpRate float64) (*model.Activity, error) {
	if xpRate <= 0 {
		xpRate = 1
	}
	act := &model.Activity{ProfileID: profileID, Name: name, XPRate: xpRate}
	if err := svc.db.WithContext(ctx).Create(act).Error; err != nil {
		return nil, err
	}
	return act, nil
}

// Complete finishes the profile's current activity session: the timer is
// banked and marked completed (durable on its own), then the buff-modified
// XP reward is granted to the profile and the timer reset in one
// transaction. On failure the timer remains completed for a retry.
func (svc *Service) Complete(ctx context.Context, profileID int64) (*events.CompletionEvent, error) {
	snap, err := svc.timers.ActivityComplete(ctx, profileID)
	if err != nil {
		if errors.Is(err, timer.ErrInvalidTransition) {
			return nil, ErrNoActivityAttached
		}
		return nil, err
	}
	if snap.ItemID == nil {
		return nil, ErrNoActivityAttached
	}

	var ev *events.CompletionEvent
	err = svc.timers.WithActivityTimer(ctx, profileID, func(tx *gorm.DB, at *model.ActivityTimer) error {
		if at.Status != model.TimerCompleted || at.ActivityID == nil {
			return timer.ErrNotCompleted
		}
		completed, applyErr := svc.applyCompletion(tx, at)
		if applyErr != nil {
			return fmt.Errorf("%w: %v", ErrRewardApplication, applyErr)
		}
		ev = completed
		svc.timers.Machine().Reset(&at.TimerState)
		at.ActivityID = nil
		return nil
	})
	if err != nil {
		svc.logAudit(profileID, err)
		return nil, err
	}

	svc.logAudit(profileID, nil)
	if svc.bus != nil {
		svc.bus.Publish(ctx, events.ActivityCompleted, ev)
	}
	return ev, nil
}

func (svc *Service) applyCompletion(tx *gorm.DB, at *model.ActivityTimer) (*events.CompletionEvent, error) {
	now := svc.timers.Machine().Now()
	elapsed := at.ElapsedSeconds

	var act model.Activity
	if err := tx.First(&act, *at.ActivityID).Error; err != nil {
		return nil, fmt.Errorf("load activity %d: %w", *at.ActivityID, err)
	}
	var profile model.Profile
	if err := tx.First(&profile, at.ProfileID).Error; err != nil {
		return nil, fmt.Errorf("load profile %d: %w", at.ProfileID, err)
	}
	var buffs []model.AppliedBuff
	if err := tx.Where("owner_kind = ? AND owner_id = ?", model.OwnerProfile, profile.ID).Find(&buffs).Error; err != nil {
		return nil, fmt.Errorf("load buffs: %w", err)
	}

	rewardXP := progression.ActivityXP(act.XPRate, elapsed, buffs, now)
	progression.AddXP(&profile.Progress, rewardXP)
	if err := tx.Save(&profile).Error; err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}

	svc.logger.Info("activity completed",
		zap.Int64("profile_id", profile.ID),
		zap.Int64("activity_id", act.ID),
		zap.Uint("elapsed", elapsed),
		zap.Uint("reward_xp", rewardXP))

	return &events.CompletionEvent{
		ProfileID: profile.ID,
		Kind:      events.KindActivity,
		RewardXP:  rewardXP,
		NewStatus: model.TimerEmpty,
	}, nil
}

func (svc *Service) logAudit(profileID int64, err error) {
	if svc.audit == nil {
		return
	}
	entry := audit.Entry{ProfileID: &profileID, Action: "activity_complete"}
	if err != nil {
		entry.Error = err.Error()
	}
	svc.audit.Log(entry)
}
