package model

import "time"

// Timer statuses. StartedAt is set iff the status is active; elapsed time is
// always derived from the wall clock, never ticked by a loop.
const (
	TimerEmpty     = "empty"
	TimerWaiting   = "waiting"
	TimerActive    = "active"
	TimerPaused    = "paused"
	TimerCompleted = "completed"
)

// TimerState is the persisted state shared by both timer kinds.
// ElapsedSeconds is the banked time; live elapsed adds (now - StartedAt)
// while the timer is active.
type TimerState struct {
	Status         string     `gorm:"size:16;default:empty" json:"status"`
	ElapsedSeconds uint       `gorm:"default:0" json:"elapsed_seconds"`
	StartedAt      *time.Time `json:"started_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// ActivityTimer is a profile's single resumable activity timer. Created once
// at profile creation and never destroyed; only its activity reference
// changes.
type ActivityTimer struct {
	ID         int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	ProfileID  int64  `gorm:"uniqueIndex;not null" json:"profile_id"`
	ActivityID *int64 `json:"activity_id"`
	TimerState `gorm:"embedded"`
}

// QuestTimer is a character's single quest timer. Carries the chosen target
// duration in addition to the banked elapsed time.
type QuestTimer struct {
	ID             int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	CharacterID    int64  `gorm:"uniqueIndex;not null" json:"character_id"`
	QuestID        *int64 `json:"quest_id"`
	TargetDuration uint   `gorm:"default:0" json:"target_duration"`
	TimerState     `gorm:"embedded"`
}
