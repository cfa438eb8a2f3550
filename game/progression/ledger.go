package progression

import (
	"math"
	"time"

	"github.com/questtime/server/model"
)

// XPForNextLevel returns the XP threshold to advance past the given level.
func XPForNextLevel(level uint) uint {
	if level >= 1 {
		return 100 * (level + 1)
	}
	return 100
}

// AddXP adds amount to the entity's XP and resolves any level-ups. Supports
// multiple level gains in a single call, then refreshes the cached
// XPToNextLevel. Must be called exactly once per reward event.
func AddXP(p *model.Progress, amount uint) {
	p.XP += amount
	for p.XP >= XPForNextLevel(p.Level) {
		p.XP -= XPForNextLevel(p.Level)
		p.Level++
	}
	p.XPToNextLevel = XPForNextLevel(p.Level)
}

// QuestXP computes the XP reward for a completed quest from the timer's
// banked elapsed time. timesBefore is the ledger count prior to this
// completion; repeats decay the reward by 1% each.
func QuestXP(xpRate float64, elapsedSeconds uint, level uint, timesBefore uint) uint {
	timeXP := xpRate * float64(elapsedSeconds)
	levelScaling := 1 + float64(level)*0.05
	repeatPenalty := math.Pow(0.99, float64(timesBefore))
	xp := math.Round(timeXP * levelScaling * repeatPenalty)
	if xp < 1 {
		return 1
	}
	return uint(xp)
}

// ActivityXP computes the XP reward for banked activity time, with the
// profile's active "xp" buffs folded in.
func ActivityXP(xpRate float64, elapsedSeconds uint, buffs []model.AppliedBuff, now time.Time) uint {
	base := float64(elapsedSeconds) * xpRate
	xp := math.Round(ApplyBuffs(base, "xp", buffs, now))
	if xp < 0 {
		return 0
	}
	return uint(xp)
}
