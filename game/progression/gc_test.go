package progression

import (
	"context"
	"testing"
	"time"

	"github.com/questtime/server/model"
	"github.com/questtime/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGCExpiredBuffs_RemovesOnlyExpired(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clock := testutil.NewFakeClock()
	now := clock.Now()

	expired := &model.AppliedBuff{
		OwnerKind: model.OwnerProfile, OwnerID: 1,
		Attribute: "xp", Amount: 10, Kind: model.BuffAdditive,
		DurationSeconds: 60, AppliedAt: now.Add(-2 * time.Minute),
	}
	active := &model.AppliedBuff{
		OwnerKind: model.OwnerProfile, OwnerID: 1,
		Attribute: "xp", Amount: 2, Kind: model.BuffMultiplicative,
		DurationSeconds: 3600, AppliedAt: now.Add(-time.Minute),
	}
	require.NoError(t, db.Create(expired).Error)
	require.NoError(t, db.Create(active).Error)

	removed, err := GCExpiredBuffs(context.Background(), db, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	var remaining []model.AppliedBuff
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, active.ID, remaining[0].ID)
}

func TestGCExpiredBuffs_Empty(t *testing.T) {
	db := testutil.SetupTestDB(t)

	removed, err := GCExpiredBuffs(context.Background(), db, time.Now())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestGCExpiredBuffs_BoundaryExactExpiry(t *testing.T) {
	db := testutil.SetupTestDB(t)
	now := testutil.NewFakeClock().Now()

	// Expires exactly at now: no longer active, collected.
	boundary := &model.AppliedBuff{
		OwnerKind: model.OwnerCharacter, OwnerID: 9,
		Attribute: "focus", Amount: 1, Kind: model.BuffAdditive,
		DurationSeconds: 60, AppliedAt: now.Add(-time.Minute),
	}
	require.NoError(t, db.Create(boundary).Error)

	removed, err := GCExpiredBuffs(context.Background(), db, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
