package resource

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/questtime/server/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ---- Content file structures ----

// BuffDef is a buff template as written in buffs.json.
type BuffDef struct {
	Name            string  `json:"name"`
	Attribute       string  `json:"attribute"`
	Amount          float64 `json:"amount"`
	Kind            string  `json:"kind"` // additive | multiplicative
	DurationSeconds uint    `json:"duration_seconds"`
}

// QuestReqDef is one prerequisite entry in a quest definition.
type QuestReqDef struct {
	QuestName     string `json:"quest_name"`
	TimesRequired uint   `json:"times_required"`
}

// QuestDef is a quest definition as written in quests.json. Quests are
// referenced by name inside the content files; IDs are assigned by the DB.
type QuestDef struct {
	Name           string                 `json:"name"`
	LevelMin       uint                   `json:"level_min"`
	LevelMax       uint                   `json:"level_max"`
	IsPremium      bool                   `json:"is_premium"`
	CanRepeat      bool                   `json:"can_repeat"`
	Frequency      string                 `json:"frequency"`
	StartsAt       *time.Time             `json:"starts_at"`
	EndsAt         *time.Time             `json:"ends_at"`
	Stages         []string               `json:"stages"`
	XPRate         float64                `json:"xp_rate"`
	CoinReward     int64                  `json:"coin_reward"`
	DynamicRewards map[string]interface{} `json:"dynamic_rewards"`
	BuffNames      []string               `json:"buff_names"`
	Requirements   []QuestReqDef          `json:"requirements"`
}

// Loader reads quest and buff content files and seeds them into the DB.
type Loader struct {
	dataPath string

	Buffs  []*BuffDef
	Quests []*QuestDef
}

// NewLoader creates a Loader rooted at dataPath.
func NewLoader(dataPath string) *Loader {
	return &Loader{dataPath: dataPath}
}

// Load reads all content files. Missing files are not an error: a deploy
// may ship quests only, buffs only, or neither.
func (l *Loader) Load() error {
	buffs, err := loadJSONArray[BuffDef](l.path("buffs.json"))
	if err != nil {
		return fmt.Errorf("buffs.json: %w", err)
	}
	l.Buffs = buffs

	quests, err := loadJSONArray[QuestDef](l.path("quests.json"))
	if err != nil {
		return fmt.Errorf("quests.json: %w", err)
	}
	l.Quests = quests
	return nil
}

func (l *Loader) path(file string) string {
	return filepath.Join(l.dataPath, file)
}

func loadJSONArray[T any](path string) ([]*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []*T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Seed upserts the loaded content into the DB, keyed by name. Requirement
// edges are resolved after all quests exist so definitions may reference
// quests declared later in the file.
func (l *Loader) Seed(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, b := range l.Buffs {
			row := model.Buff{
				Name:            b.Name,
				Attribute:       b.Attribute,
				Amount:          b.Amount,
				Kind:            model.BuffKind(b.Kind),
				DurationSeconds: b.DurationSeconds,
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "name"}},
				UpdateAll: true,
			}).Create(&row).Error
			if err != nil {
				return fmt.Errorf("buff %q: %w", b.Name, err)
			}
		}

		idsByName := make(map[string]int64, len(l.Quests))
		for _, q := range l.Quests {
			row, err := l.questRow(q)
			if err != nil {
				return err
			}
			if err := upsertQuest(tx, row); err != nil {
				return fmt.Errorf("quest %q: %w", q.Name, err)
			}
			idsByName[q.Name] = row.ID
		}

		for _, q := range l.Quests {
			if err := seedRequirements(tx, q, idsByName); err != nil {
				return err
			}
		}
		return nil
	})
}

func (l *Loader) questRow(q *QuestDef) (*model.Quest, error) {
	stages, err := json.Marshal(q.Stages)
	if err != nil {
		return nil, fmt.Errorf("quest %q stages: %w", q.Name, err)
	}
	buffNames, err := json.Marshal(q.BuffNames)
	if err != nil {
		return nil, fmt.Errorf("quest %q buff_names: %w", q.Name, err)
	}
	freq := model.Frequency(q.Frequency)
	if q.Frequency == "" {
		freq = model.FrequencyNone
	}
	return &model.Quest{
		Name:      q.Name,
		LevelMin:  q.LevelMin,
		LevelMax:  q.LevelMax,
		IsPremium: q.IsPremium,
		CanRepeat: q.CanRepeat,
		Frequency: freq,
		IsActive:  true,
		StartsAt:  q.StartsAt,
		EndsAt:    q.EndsAt,
		Stages:    datatypes.JSON(stages),
		Results: model.QuestResults{
			XPRate:         q.XPRate,
			CoinReward:     q.CoinReward,
			DynamicRewards: datatypes.JSONMap(q.DynamicRewards),
			BuffNames:      datatypes.JSON(buffNames),
		},
	}, nil
}

// upsertQuest updates an existing quest by name or creates it, leaving
// row.ID set either way.
func upsertQuest(tx *gorm.DB, row *model.Quest) error {
	var existing model.Quest
	err := tx.Where("name = ?", row.Name).First(&existing).Error
	if err == nil {
		row.ID = existing.ID
		return tx.Model(&existing).Select(
			"level_min", "level_max", "is_premium", "can_repeat", "frequency",
			"starts_at", "ends_at", "stages",
			"result_xp_rate", "result_coin_reward", "result_dynamic_rewards", "result_buff_names",
		).Updates(row).Error
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}
	return tx.Create(row).Error
}

func seedRequirements(tx *gorm.DB, q *QuestDef, idsByName map[string]int64) error {
	questID := idsByName[q.Name]
	if err := tx.Where("quest_id = ?", questID).Delete(&model.QuestRequirement{}).Error; err != nil {
		return err
	}
	for _, req := range q.Requirements {
		prereqID, ok := idsByName[req.QuestName]
		if !ok {
			return fmt.Errorf("quest %q: unknown prerequisite %q", q.Name, req.QuestName)
		}
		times := req.TimesRequired
		if times == 0 {
			times = 1
		}
		row := model.QuestRequirement{
			QuestID:        questID,
			PrerequisiteID: prereqID,
			TimesRequired:  times,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}
