package model

import "time"

// BuffKind distinguishes how a buff folds into a base value.
type BuffKind string

const (
	BuffAdditive       BuffKind = "additive"
	BuffMultiplicative BuffKind = "multiplicative"
)

// Owner kinds for AppliedBuff rows.
const (
	OwnerProfile   = "profile"
	OwnerCharacter = "character"
)

// Buff is a reusable buff template referenced by quest results.
type Buff struct {
	ID              int64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name            string   `gorm:"uniqueIndex;size:64;not null" json:"name"`
	Attribute       string   `gorm:"size:32;not null" json:"attribute"`
	Amount          float64  `gorm:"not null" json:"amount"`
	Kind            BuffKind `gorm:"size:16;not null" json:"kind"`
	DurationSeconds uint     `gorm:"not null" json:"duration_seconds"`
}

// AppliedBuff is a snapshot of a Buff granted to a profile or character.
// Never mutated after creation; expired rows are ignored by reads and
// eventually removed by the background collector.
type AppliedBuff struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerKind       string    `gorm:"index:idx_buff_owner;size:16;not null" json:"owner_kind"`
	OwnerID         int64     `gorm:"index:idx_buff_owner;not null" json:"owner_id"`
	Attribute       string    `gorm:"size:32;not null" json:"attribute"`
	Amount          float64   `gorm:"not null" json:"amount"`
	Kind            BuffKind  `gorm:"size:16;not null" json:"kind"`
	DurationSeconds uint      `gorm:"not null" json:"duration_seconds"`
	AppliedAt       time.Time `gorm:"not null" json:"applied_at"`
}

// ActiveAt reports whether the buff is still in effect at t.
func (b *AppliedBuff) ActiveAt(t time.Time) bool {
	return t.Before(b.AppliedAt.Add(time.Duration(b.DurationSeconds) * time.Second))
}
