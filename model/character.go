package model

import (
	"time"

	"gorm.io/datatypes"
)

// Character is a profile's in-game character. Quest progress, quest rewards
// and the quest timer all attach here.
type Character struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	ProfileID   int64  `gorm:"uniqueIndex;not null" json:"profile_id"`
	Name        string `gorm:"size:64;not null" json:"name"`
	Coins       int64  `gorm:"default:0" json:"coins"`
	TotalQuests uint   `gorm:"default:0" json:"total_quests"`
	Progress    `gorm:"embedded"`
	// Attributes holds dynamically rewarded values (focus, stamina, titles...).
	// Quest results write here through the reward effect registry.
	Attributes datatypes.JSONMap `json:"attributes"`
	CreatedAt  time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}
