package model

import "time"

// Activity is a user-created time bucket ("reading", "gym", ...). The
// activity timer accumulates real-world time against it.
type Activity struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProfileID int64     `gorm:"index:idx_activity_profile;not null" json:"profile_id"`
	Name      string    `gorm:"size:64;not null" json:"name"`
	XPRate    float64   `gorm:"default:1" json:"xp_rate"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
