package presence

import (
	"context"
	"errors"

	"github.com/questtime/server/game/timer"
	"github.com/questtime/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service translates connection presence into timer commands. Presence is
// advisory: clients may also start/pause explicitly, and both timer
// operations are idempotent, so redundant signals are harmless.
type Service struct {
	db     *gorm.DB
	timers *timer.Service
	logger *zap.Logger
}

// NewService creates a presence Service.
func NewService(db *gorm.DB, timers *timer.Service, logger *zap.Logger) *Service {
	return &Service{db: db, timers: timers, logger: logger}
}

// Connected resumes both of the profile's timers when they hold an attached
// item. Empty and completed timers are left alone: there is nothing to
// resume, or a reward flow still owns the banked time.
func (s *Service) Connected(ctx context.Context, profileID int64) {
	if s.startable(s.activityStatus(ctx, profileID)) {
		if _, err := s.timers.ActivityStart(ctx, profileID); err != nil {
			s.logger.Warn("presence: activity start failed",
				zap.Int64("profile_id", profileID), zap.Error(err))
		}
	}
	charID, ok := s.characterID(ctx, profileID)
	if !ok {
		return
	}
	if s.startable(s.questStatus(ctx, charID)) {
		if _, err := s.timers.QuestStart(ctx, charID); err != nil {
			s.logger.Warn("presence: quest start failed",
				zap.Int64("character_id", charID), zap.Error(err))
		}
	}
}

// Disconnected pauses both timers, banking any live elapsed time.
func (s *Service) Disconnected(ctx context.Context, profileID int64) {
	if _, err := s.timers.ActivityPause(ctx, profileID); err != nil && !errors.Is(err, timer.ErrInvalidTransition) {
		s.logger.Warn("presence: activity pause failed",
			zap.Int64("profile_id", profileID), zap.Error(err))
	}
	charID, ok := s.characterID(ctx, profileID)
	if !ok {
		return
	}
	if _, err := s.timers.QuestPause(ctx, charID); err != nil && !errors.Is(err, timer.ErrInvalidTransition) {
		s.logger.Warn("presence: quest pause failed",
			zap.Int64("character_id", charID), zap.Error(err))
	}
}

func (s *Service) startable(status string, hasItem bool) bool {
	if !hasItem {
		return false
	}
	return status == model.TimerWaiting || status == model.TimerPaused
}

func (s *Service) activityStatus(ctx context.Context, profileID int64) (string, bool) {
	snap, err := s.timers.ActivitySnapshot(ctx, profileID)
	if err != nil {
		s.logger.Warn("presence: activity snapshot failed",
			zap.Int64("profile_id", profileID), zap.Error(err))
		return "", false
	}
	return snap.Status, snap.ItemID != nil
}

func (s *Service) questStatus(ctx context.Context, characterID int64) (string, bool) {
	snap, err := s.timers.QuestSnapshot(ctx, characterID)
	if err != nil {
		s.logger.Warn("presence: quest snapshot failed",
			zap.Int64("character_id", characterID), zap.Error(err))
		return "", false
	}
	return snap.Status, snap.ItemID != nil
}

func (s *Service) characterID(ctx context.Context, profileID int64) (int64, bool) {
	var char model.Character
	if err := s.db.WithContext(ctx).Where("profile_id = ?", profileID).First(&char).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("presence: character lookup failed",
				zap.Int64("profile_id", profileID), zap.Error(err))
		}
		return 0, false
	}
	return char.ID, true
}
