package testutil

import (
	"testing"
	"time"

	"github.com/questtime/server/cache"
	"github.com/questtime/server/config"
	dbadapter "github.com/questtime/server/db"
	"github.com/questtime/server/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// SetupTestDB creates an in-memory SQLite DB and runs AutoMigrate.
// It requires no external services and is safe to use in parallel tests.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbadapter.Open(config.DatabaseConfig{
		Mode: dbadapter.ModeSQLiteMemory,
	})
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	return db
}

// SetupTestCache creates a LocalCache and LocalPubSub (no Redis required).
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	cfg := cache.CacheConfig{} // empty RedisAddr → LocalCache
	c, err := cache.NewCache(cfg)
	require.NoError(t, err, "SetupTestCache: NewCache")
	ps, err := cache.NewPubSub(cfg)
	require.NoError(t, err, "SetupTestCache: NewPubSub")
	return c, ps
}

// SeedProfile creates a profile with its activity timer row.
func SeedProfile(t *testing.T, db *gorm.DB, name string, premium bool) *model.Profile {
	t.Helper()
	p := &model.Profile{Name: name, IsPremium: premium, Progress: model.Progress{XPToNextLevel: 100}}
	require.NoError(t, db.Create(p).Error)
	require.NoError(t, db.Create(&model.ActivityTimer{
		ProfileID:  p.ID,
		TimerState: model.TimerState{Status: model.TimerEmpty},
	}).Error)
	return p
}

// SeedCharacter creates a character with its quest timer row.
func SeedCharacter(t *testing.T, db *gorm.DB, profileID int64, name string) *model.Character {
	t.Helper()
	c := &model.Character{ProfileID: profileID, Name: name, Progress: model.Progress{XPToNextLevel: 100}}
	require.NoError(t, db.Create(c).Error)
	require.NoError(t, db.Create(&model.QuestTimer{
		CharacterID: c.ID,
		TimerState:  model.TimerState{Status: model.TimerEmpty},
	}).Error)
	return c
}

// FakeClock returns a controllable clock for timer tests.
type FakeClock struct {
	now time.Time
}

// NewFakeClock starts a FakeClock at a fixed instant.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
}

// Now is the clock function to inject.
func (c *FakeClock) Now() time.Time { return c.now }

// Advance moves the clock forward.
func (c *FakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// SetNow pins the clock to a specific instant.
func (c *FakeClock) SetNow(t time.Time) { c.now = t }
