package model

import (
	"time"

	"gorm.io/datatypes"
)

// RewardLog records one reward-granting action (quest or activity
// completion) for audit purposes. Written asynchronously in batches.
type RewardLog struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID     string         `gorm:"size:64;index" json:"trace_id"`
	ProfileID   *int64         `gorm:"index" json:"profile_id"`
	CharacterID *int64         `gorm:"index" json:"character_id"`
	Action      string         `gorm:"size:64;not null" json:"action"`
	Detail      datatypes.JSON `json:"detail"`
	Error       string         `gorm:"size:512" json:"error"`
	CreatedAt   time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}
