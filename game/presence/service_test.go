package presence

import (
	"context"
	"testing"
	"time"

	"github.com/questtime/server/game/events"
	"github.com/questtime/server/game/timer"
	"github.com/questtime/server/model"
	"github.com/questtime/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func nopLogger() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

func setup(t *testing.T) (*Service, *timer.Service, *gorm.DB, *testutil.FakeClock) {
	db := testutil.SetupTestDB(t)
	timers := timer.NewService(db, events.NewBus(), nopLogger())
	clock := testutil.NewFakeClock()
	timers.SetClock(clock.Now)
	return NewService(db, timers, nopLogger()), timers, db, clock
}

func TestConnected_ResumesAttachedTimers(t *testing.T) {
	svc, timers, db, _ := setup(t)
	ctx := context.Background()
	p := testutil.SeedProfile(t, db, "ada", false)
	c := testutil.SeedCharacter(t, db, p.ID, "Lovelace")
	act := &model.Activity{ProfileID: p.ID, Name: "reading"}
	require.NoError(t, db.Create(act).Error)
	q := &model.Quest{Name: "Morning Pages", LevelMax: 100, IsActive: true, CanRepeat: true}
	require.NoError(t, db.Create(q).Error)

	_, err := timers.ActivityAttach(ctx, p.ID, act.ID)
	require.NoError(t, err)
	_, err = timers.QuestAttach(ctx, c.ID, q.ID, 300)
	require.NoError(t, err)

	svc.Connected(ctx, p.ID)

	snap, err := timers.ActivitySnapshot(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TimerActive, snap.Status)
	snap, err = timers.QuestSnapshot(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TimerActive, snap.Status)
}

func TestConnected_LeavesEmptyTimersAlone(t *testing.T) {
	svc, timers, db, _ := setup(t)
	ctx := context.Background()
	p := testutil.SeedProfile(t, db, "ada", false)
	testutil.SeedCharacter(t, db, p.ID, "Lovelace")

	svc.Connected(ctx, p.ID)

	snap, err := timers.ActivitySnapshot(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TimerEmpty, snap.Status)
}

func TestConnected_LeavesCompletedTimerAlone(t *testing.T) {
	svc, timers, db, clock := setup(t)
	ctx := context.Background()
	p := testutil.SeedProfile(t, db, "ada", false)
	act := &model.Activity{ProfileID: p.ID, Name: "reading"}
	require.NoError(t, db.Create(act).Error)

	_, err := timers.ActivityAttach(ctx, p.ID, act.ID)
	require.NoError(t, err)
	_, err = timers.ActivityStart(ctx, p.ID)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = timers.ActivityComplete(ctx, p.ID)
	require.NoError(t, err)

	// Completed timers are awaiting their reward flow; presence must not
	// reactivate them.
	svc.Connected(ctx, p.ID)
	snap, err := timers.ActivitySnapshot(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TimerCompleted, snap.Status)
	assert.Equal(t, uint(60), snap.Elapsed)
}

func TestDisconnected_PausesAndBanks(t *testing.T) {
	svc, timers, db, clock := setup(t)
	ctx := context.Background()
	p := testutil.SeedProfile(t, db, "ada", false)
	c := testutil.SeedCharacter(t, db, p.ID, "Lovelace")
	act := &model.Activity{ProfileID: p.ID, Name: "reading"}
	require.NoError(t, db.Create(act).Error)
	q := &model.Quest{Name: "Morning Pages", LevelMax: 100, IsActive: true, CanRepeat: true}
	require.NoError(t, db.Create(q).Error)

	_, err := timers.ActivityAttach(ctx, p.ID, act.ID)
	require.NoError(t, err)
	_, err = timers.QuestAttach(ctx, c.ID, q.ID, 300)
	require.NoError(t, err)
	svc.Connected(ctx, p.ID)
	clock.Advance(80 * time.Second)

	svc.Disconnected(ctx, p.ID)

	snap, err := timers.ActivitySnapshot(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TimerPaused, snap.Status)
	assert.Equal(t, uint(80), snap.Elapsed)
	snap, err = timers.QuestSnapshot(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TimerPaused, snap.Status)
	assert.Equal(t, uint(80), snap.Elapsed)
}

func TestPresence_RedundantSignalsAreHarmless(t *testing.T) {
	svc, timers, db, clock := setup(t)
	ctx := context.Background()
	p := testutil.SeedProfile(t, db, "ada", false)
	act := &model.Activity{ProfileID: p.ID, Name: "reading"}
	require.NoError(t, db.Create(act).Error)
	_, err := timers.ActivityAttach(ctx, p.ID, act.ID)
	require.NoError(t, err)

	svc.Connected(ctx, p.ID)
	svc.Connected(ctx, p.ID)
	clock.Advance(30 * time.Second)
	svc.Disconnected(ctx, p.ID)
	svc.Disconnected(ctx, p.ID)

	snap, err := timers.ActivitySnapshot(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TimerPaused, snap.Status)
	assert.Equal(t, uint(30), snap.Elapsed)
}
