package progression

import (
	"time"

	"github.com/questtime/server/model"
)

// ApplyBuffs folds the active buffs matching attribute into base. Additive
// buffs add their amount, multiplicative buffs multiply by it. Expired buffs
// are skipped, never removed here; the background collector deletes them.
func ApplyBuffs(base float64, attribute string, buffs []model.AppliedBuff, now time.Time) float64 {
	value := base
	for i := range buffs {
		b := &buffs[i]
		if b.Attribute != attribute || !b.ActiveAt(now) {
			continue
		}
		switch b.Kind {
		case model.BuffAdditive:
			value += b.Amount
		case model.BuffMultiplicative:
			value *= b.Amount
		}
	}
	return value
}

// Snapshot copies a buff template into an AppliedBuff owned by the given
// entity. The snapshot is immutable from here on.
func Snapshot(tpl *model.Buff, ownerKind string, ownerID int64, now time.Time) *model.AppliedBuff {
	return &model.AppliedBuff{
		OwnerKind:       ownerKind,
		OwnerID:         ownerID,
		Attribute:       tpl.Attribute,
		Amount:          tpl.Amount,
		Kind:            tpl.Kind,
		DurationSeconds: tpl.DurationSeconds,
		AppliedAt:       now,
	}
}
