package model

import "time"

// Progress holds the leveling fields shared by Profile and Character.
// Mutated only through the progression ledger.
type Progress struct {
	XP            uint `gorm:"default:0" json:"xp"`
	Level         uint `gorm:"default:0" json:"level"`
	XPToNextLevel uint `gorm:"default:100" json:"xp_to_next_level"`
}

// Profile is a user account's gameplay profile. It owns the activity timer
// and the activity buckets; the character hangs off it 1:1.
type Profile struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string `gorm:"uniqueIndex;size:64;not null" json:"name"`
	PasswordHash string `gorm:"size:128" json:"-"`
	IsPremium    bool   `gorm:"default:false" json:"is_premium"`
	Coins     int64     `gorm:"default:0" json:"coins"`
	Progress  `gorm:"embedded"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
