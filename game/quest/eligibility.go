package quest

import (
	"time"

	"github.com/questtime/server/model"
)

// Ledger is the character's completion history keyed by quest ID.
type Ledger map[int64]*model.QuestCompletion

// Eligible filters quests down to those the character may attempt right
// now. Pure and deterministic: re-evaluated on demand, never cached. The
// result preserves the order of the input slice.
func Eligible(char *model.Character, profile *model.Profile, quests []model.Quest, ledger Ledger, now time.Time) []model.Quest {
	out := make([]model.Quest, 0, len(quests))
	for i := range quests {
		q := &quests[i]
		if !basicGate(q, char, profile) {
			continue
		}
		completion := ledger[q.ID]
		if !repeatGate(q, completion) {
			continue
		}
		if !frequencyGate(q, completion, now) {
			continue
		}
		if !prerequisiteGate(q, ledger) {
			continue
		}
		out = append(out, *q)
	}
	return out
}

// basicGate checks activation, level range, and the premium rule. The
// premium rule excludes a premium quest for a premium profile; that polarity
// looks inverted but matches the product ruleset as shipped and is under
// product review, so it is preserved as-is.
func basicGate(q *model.Quest, char *model.Character, profile *model.Profile) bool {
	if !q.IsActive {
		return false
	}
	if char.Level < q.LevelMin || char.Level > q.LevelMax {
		return false
	}
	if profile.IsPremium && q.IsPremium {
		return false
	}
	return true
}

// repeatGate excludes a non-repeatable quest once completed.
func repeatGate(q *model.Quest, completion *model.QuestCompletion) bool {
	if q.CanRepeat {
		return true
	}
	return completion == nil || completion.TimesCompleted < 1
}

// frequencyGate applies the daily/weekly/monthly windows to repeatable
// quests. With no completion row the gate always passes.
//
// The daily check compares day-of-month numbers, not calendar dates: a
// quest completed on the 31st stays blocked on the 31st of any later month.
// This matches the shipped ruleset and is preserved pending product
// clarification.
func frequencyGate(q *model.Quest, completion *model.QuestCompletion, now time.Time) bool {
	if !q.CanRepeat || q.Frequency == model.FrequencyNone || q.Frequency == "" {
		return true
	}
	if completion == nil || completion.TimesCompleted == 0 {
		return true
	}
	last := completion.LastCompleted
	switch q.Frequency {
	case model.FrequencyDaily:
		return now.Day() != last.Day()
	case model.FrequencyWeekly:
		if now.Sub(last) >= 7*24*time.Hour {
			return true
		}
		return int(now.Weekday()) < int(last.Weekday())
	case model.FrequencyMonthly:
		if now.Sub(last) >= 31*24*time.Hour {
			return true
		}
		return now.Day() < last.Day()
	}
	return true
}

// prerequisiteGate checks every requirement edge against the ledger. A
// missing ledger row counts as zero completions. Cycles in the requirement
// graph are not detected; quests on a cycle are simply never eligible.
func prerequisiteGate(q *model.Quest, ledger Ledger) bool {
	for _, req := range q.Requirements {
		times := uint(0)
		if c, ok := ledger[req.PrerequisiteID]; ok {
			times = c.TimesCompleted
		}
		if times < req.TimesRequired {
			return false
		}
	}
	return true
}
