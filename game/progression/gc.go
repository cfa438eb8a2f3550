package progression

import (
	"context"
	"time"

	"github.com/questtime/server/model"
	"gorm.io/gorm"
)

// GCExpiredBuffs deletes AppliedBuff rows that expired before now. Reads
// already skip expired buffs, so this only reclaims storage; it runs from
// the maintenance scheduler. Returns the number of rows removed.
func GCExpiredBuffs(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	var buffs []model.AppliedBuff
	if err := db.WithContext(ctx).Find(&buffs).Error; err != nil {
		return 0, err
	}

	expired := make([]int64, 0)
	for i := range buffs {
		if !buffs[i].ActiveAt(now) {
			expired = append(expired, buffs[i].ID)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}

	res := db.WithContext(ctx).Delete(&model.AppliedBuff{}, expired)
	return res.RowsAffected, res.Error
}
