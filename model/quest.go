package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Frequency limits how often a repeatable quest may be completed.
type Frequency string

const (
	FrequencyNone    Frequency = "none"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// QuestResults is the reward spec attached to a quest.
type QuestResults struct {
	XPRate     float64 `gorm:"default:1" json:"xp_rate"`
	CoinReward int64   `gorm:"default:0" json:"coin_reward"`
	// DynamicRewards maps a character attribute name to a delta (or an
	// overwrite value for non-numeric attributes).
	DynamicRewards datatypes.JSONMap `json:"dynamic_rewards"`
	// BuffNames lists Buff template names granted on completion.
	BuffNames datatypes.JSON `json:"buff_names"`
}

// BuffList decodes the BuffNames JSON column.
func (r *QuestResults) BuffList() []string {
	if len(r.BuffNames) == 0 {
		return nil
	}
	var names []string
	_ = json.Unmarshal(r.BuffNames, &names)
	return names
}

// Quest is a quest definition. Definitions are immutable-ish: only IsActive
// flips, driven by the activation window maintenance task.
type Quest struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string `gorm:"size:128;not null" json:"name"`
	LevelMin  uint   `gorm:"default:0" json:"level_min"`
	LevelMax  uint   `gorm:"default:0" json:"level_max"`
	IsPremium bool   `gorm:"default:false" json:"is_premium"`
	CanRepeat bool   `gorm:"default:false" json:"can_repeat"`
	Frequency Frequency `gorm:"size:16;default:none" json:"frequency"`
	IsActive  bool      `gorm:"default:true;index" json:"is_active"`
	// Activation window [StartsAt, EndsAt). Nil bounds are open.
	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`
	// Stages is an ordered list of opaque stage descriptors shown to the
	// client; the server never interprets them.
	Stages       datatypes.JSON     `json:"stages"`
	Results      QuestResults       `gorm:"embedded;embeddedPrefix:result_" json:"results"`
	Requirements []QuestRequirement `gorm:"foreignKey:QuestID" json:"requirements"`
	CreatedAt    time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

// QuestRequirement is one prerequisite edge: PrerequisiteID must appear in
// the character's completion ledger at least TimesRequired times.
type QuestRequirement struct {
	ID             int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	QuestID        int64 `gorm:"index:idx_req_quest;not null" json:"quest_id"`
	PrerequisiteID int64 `gorm:"not null" json:"prerequisite_id"`
	TimesRequired  uint  `gorm:"default:1" json:"times_required"`
}

// QuestCompletion is the per-(character, quest) completion ledger row.
// Upserted on every completion: incremented, never replaced.
type QuestCompletion struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CharacterID    int64     `gorm:"uniqueIndex:idx_char_quest;not null" json:"character_id"`
	QuestID        int64     `gorm:"uniqueIndex:idx_char_quest;not null" json:"quest_id"`
	TimesCompleted uint      `gorm:"default:0" json:"times_completed"`
	LastCompleted  time.Time `json:"last_completed"`
}
