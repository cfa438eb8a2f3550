package quest

import (
	"testing"
	"time"

	"github.com/questtime/server/model"
	"github.com/stretchr/testify/assert"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) // Sunday the 15th

func levelQuest(id int64, min, max uint) model.Quest {
	return model.Quest{ID: id, LevelMin: min, LevelMax: max, IsActive: true, CanRepeat: true}
}

func questIDs(quests []model.Quest) []int64 {
	ids := make([]int64, len(quests))
	for i, q := range quests {
		ids[i] = q.ID
	}
	return ids
}

func TestEligible_BasicGate(t *testing.T) {
	char := &model.Character{Progress: model.Progress{Level: 5}}
	profile := &model.Profile{}
	inactive := levelQuest(1, 0, 100)
	inactive.IsActive = false
	quests := []model.Quest{
		inactive,
		levelQuest(2, 0, 100),  // in range
		levelQuest(3, 6, 100),  // below level_min
		levelQuest(4, 0, 4),    // above level_max
		levelQuest(5, 5, 5),    // bounds inclusive
	}

	got := Eligible(char, profile, quests, Ledger{}, testNow)
	assert.Equal(t, []int64{2, 5}, questIDs(got))
}

func TestEligible_PremiumRule(t *testing.T) {
	// A premium quest is excluded for a premium profile. Looks inverted,
	// matches the shipped ruleset.
	premiumQuest := levelQuest(1, 0, 100)
	premiumQuest.IsPremium = true
	quests := []model.Quest{premiumQuest, levelQuest(2, 0, 100)}
	char := &model.Character{}

	got := Eligible(char, &model.Profile{IsPremium: true}, quests, Ledger{}, testNow)
	assert.Equal(t, []int64{2}, questIDs(got))

	got = Eligible(char, &model.Profile{IsPremium: false}, quests, Ledger{}, testNow)
	assert.Equal(t, []int64{1, 2}, questIDs(got))
}

func TestEligible_NonRepeatableExcludedAfterCompletion(t *testing.T) {
	q := levelQuest(1, 0, 100)
	q.CanRepeat = false
	char := &model.Character{}
	profile := &model.Profile{}

	got := Eligible(char, profile, []model.Quest{q}, Ledger{}, testNow)
	assert.Len(t, got, 1)

	ledger := Ledger{1: {QuestID: 1, TimesCompleted: 1, LastCompleted: testNow.AddDate(0, -1, 0)}}
	got = Eligible(char, profile, []model.Quest{q}, ledger, testNow)
	assert.Empty(t, got)
}

func TestEligible_DailySameDayOfMonth(t *testing.T) {
	q := levelQuest(1, 0, 100)
	q.Frequency = model.FrequencyDaily
	char := &model.Character{}
	profile := &model.Profile{}

	// Completed earlier today: blocked.
	ledger := Ledger{1: {QuestID: 1, TimesCompleted: 1, LastCompleted: testNow.Add(-3 * time.Hour)}}
	assert.Empty(t, Eligible(char, profile, []model.Quest{q}, ledger, testNow))

	// Completed yesterday (different day number): eligible again.
	ledger = Ledger{1: {QuestID: 1, TimesCompleted: 1, LastCompleted: testNow.AddDate(0, 0, -1)}}
	assert.Len(t, Eligible(char, profile, []model.Quest{q}, ledger, testNow), 1)

	// Day-of-month comparison, not calendar dates: the 15th of last month
	// still blocks the 15th of this month.
	ledger = Ledger{1: {QuestID: 1, TimesCompleted: 1, LastCompleted: testNow.AddDate(0, -1, 0)}}
	assert.Empty(t, Eligible(char, profile, []model.Quest{q}, ledger, testNow))
}

func TestEligible_WeeklyWindow(t *testing.T) {
	q := levelQuest(1, 0, 100)
	q.Frequency = model.FrequencyWeekly
	char := &model.Character{}
	profile := &model.Profile{}

	// testNow is a Sunday (weekday 0). Completed last Tuesday (weekday 2),
	// 5 days ago: within 7 days but today's index < last index → eligible.
	ledger := Ledger{1: {QuestID: 1, TimesCompleted: 1, LastCompleted: testNow.AddDate(0, 0, -5)}}
	assert.Len(t, Eligible(char, profile, []model.Quest{q}, ledger, testNow), 1)

	// Completed earlier today (same weekday index): blocked.
	ledger = Ledger{1: {QuestID: 1, TimesCompleted: 1, LastCompleted: testNow.Add(-2 * time.Hour)}}
	assert.Empty(t, Eligible(char, profile, []model.Quest{q}, ledger, testNow))

	// Completed 8 days ago: window elapsed → eligible.
	ledger = Ledger{1: {QuestID: 1, TimesCompleted: 1, LastCompleted: testNow.AddDate(0, 0, -8)}}
	assert.Len(t, Eligible(char, profile, []model.Quest{q}, ledger, testNow), 1)
}

func TestEligible_MonthlyWindow(t *testing.T) {
	q := levelQuest(1, 0, 100)
	q.Frequency = model.FrequencyMonthly
	char := &model.Character{}
	profile := &model.Profile{}

	// Completed on the 10th, today the 15th, under 31 days: today's day ≥
	// last's day → blocked.
	ledger := Ledger{1: {QuestID: 1, TimesCompleted: 1, LastCompleted: testNow.AddDate(0, 0, -5)}}
	assert.Empty(t, Eligible(char, profile, []model.Quest{q}, ledger, testNow))

	// Completed on the 21st last month (25 days ago): today's day (15) <
	// last's day (21) → eligible.
	ledger = Ledger{1: {QuestID: 1, TimesCompleted: 1, LastCompleted: testNow.AddDate(0, 0, -25)}}
	assert.Len(t, Eligible(char, profile, []model.Quest{q}, ledger, testNow), 1)

	// 32 days ago: window elapsed → eligible regardless of day numbers.
	ledger = Ledger{1: {QuestID: 1, TimesCompleted: 1, LastCompleted: testNow.AddDate(0, 0, -32)}}
	assert.Len(t, Eligible(char, profile, []model.Quest{q}, ledger, testNow), 1)
}

func TestEligible_FrequencyPassesWithoutCompletionRow(t *testing.T) {
	q := levelQuest(1, 0, 100)
	q.Frequency = model.FrequencyDaily
	got := Eligible(&model.Character{}, &model.Profile{}, []model.Quest{q}, Ledger{}, testNow)
	assert.Len(t, got, 1)
}

func TestEligible_PrerequisiteGate(t *testing.T) {
	q := levelQuest(2, 0, 100)
	q.Requirements = []model.QuestRequirement{{QuestID: 2, PrerequisiteID: 1, TimesRequired: 2}}
	char := &model.Character{}
	profile := &model.Profile{}

	// Missing ledger entry counts as zero.
	assert.Empty(t, Eligible(char, profile, []model.Quest{q}, Ledger{}, testNow))

	ledger := Ledger{1: {QuestID: 1, TimesCompleted: 1}}
	assert.Empty(t, Eligible(char, profile, []model.Quest{q}, ledger, testNow))

	ledger = Ledger{1: {QuestID: 1, TimesCompleted: 2}}
	assert.Len(t, Eligible(char, profile, []model.Quest{q}, ledger, testNow), 1)

	ledger = Ledger{1: {QuestID: 1, TimesCompleted: 5}}
	assert.Len(t, Eligible(char, profile, []model.Quest{q}, ledger, testNow), 1)
}

func TestEligible_CyclicPrerequisitesNeverEligible(t *testing.T) {
	a := levelQuest(1, 0, 100)
	a.Requirements = []model.QuestRequirement{{QuestID: 1, PrerequisiteID: 2, TimesRequired: 1}}
	b := levelQuest(2, 0, 100)
	b.Requirements = []model.QuestRequirement{{QuestID: 2, PrerequisiteID: 1, TimesRequired: 1}}

	got := Eligible(&model.Character{}, &model.Profile{}, []model.Quest{a, b}, Ledger{}, testNow)
	assert.Empty(t, got)
}

func TestEligible_PreservesInputOrder(t *testing.T) {
	quests := []model.Quest{levelQuest(9, 0, 100), levelQuest(3, 0, 100), levelQuest(7, 0, 100)}
	got := Eligible(&model.Character{}, &model.Profile{}, quests, Ledger{}, testNow)
	assert.Equal(t, []int64{9, 3, 7}, questIDs(got))
}
