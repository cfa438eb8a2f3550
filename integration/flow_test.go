package integration

import (
	"bufio"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/questtime/server/model"
	"github.com/stretchr/testify/require"
)

// snapshotStatus fetches the activity timer snapshot over REST and returns
// its status and banked elapsed seconds.
func snapshotStatus(t *testing.T, ts *TestServer, token, path string) (string, float64) {
	t.Helper()
	resp := ts.Get(t, path, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result struct {
		Timer map[string]interface{} `json:"timer"`
	}
	ReadJSON(t, resp, &result)
	status, _ := result.Timer["status"].(string)
	elapsed, _ := result.Timer["elapsed"].(float64)
	return status, elapsed
}

func TestActivityFlow_PresenceDrivenTimer(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	token, _, _ := ts.Login(t, UniqueID("reader"), "secret-pw")
	actID := ts.CreateActivity(t, token, "deep reading", 1)

	// Attach while offline: the timer arms but does not run.
	resp := ts.PostJSON(t, "/api/timers/activity/attach", map[string]interface{}{
		"activity_id": actID,
	}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	status, _ := snapshotStatus(t, ts, token, "/api/timers/activity")
	require.Equal(t, model.TimerWaiting, status)

	// Going online starts the armed timer and pushes the state change.
	ws := ts.ConnectWS(t, token)
	pkt := ws.RecvType("timer_state_changed", 5*time.Second)
	payload := PayloadMap(t, pkt)
	require.Equal(t, "activity", payload["kind"])
	require.Equal(t, model.TimerActive, payload["status"])

	ts.Clock.Advance(90 * time.Second)
	status, elapsed := snapshotStatus(t, ts, token, "/api/timers/activity")
	require.Equal(t, model.TimerActive, status)
	require.Equal(t, float64(90), elapsed)

	// Dropping the connection pauses the running timer.
	ws.Close()
	require.Eventually(t, func() bool {
		status, _ := snapshotStatus(t, ts, token, "/api/timers/activity")
		return status == model.TimerPaused
	}, 3*time.Second, 20*time.Millisecond)

	// Paused time does not accrue.
	ts.Clock.Advance(10 * time.Minute)
	_, elapsed = snapshotStatus(t, ts, token, "/api/timers/activity")
	require.Equal(t, float64(90), elapsed)
}

func TestActivityFlow_DisplacedSessionKeepsTimerRunning(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	token, _, _ := ts.Login(t, UniqueID("mover"), "secret-pw")
	actID := ts.CreateActivity(t, token, "writing", 1)

	resp := ts.PostJSON(t, "/api/timers/activity/attach", map[string]interface{}{
		"activity_id": actID,
	}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	ws1 := ts.ConnectWS(t, token)
	ws1.RecvType("timer_state_changed", 5*time.Second)
	defer ws1.Close()

	// A second device takes over the session. The old connection closes,
	// but the timer must keep running for the surviving session.
	ws2 := ts.ConnectWS(t, token)
	defer ws2.Close()

	require.Eventually(t, func() bool {
		_, err := ws1.RecvAny(50 * time.Millisecond)
		return err != nil && !strings.Contains(err.Error(), "read timeout")
	}, 3*time.Second, 20*time.Millisecond, "displaced connection should be closed")

	ts.Clock.Advance(30 * time.Second)
	status, elapsed := snapshotStatus(t, ts, token, "/api/timers/activity")
	require.Equal(t, model.TimerActive, status)
	require.Equal(t, float64(30), elapsed)
}

func TestQuestFlow_PollCompletionAwardsRewards(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	token, _, charID := ts.Login(t, UniqueID("hero"), "secret-pw")

	q := model.Quest{
		Name:      "finish the draft",
		IsActive:  true,
		Frequency: model.FrequencyNone,
		Results:   model.QuestResults{XPRate: 1, CoinReward: 50},
	}
	require.NoError(t, ts.DB.Create(&q).Error)

	// The fresh quest is offered to the level-0 character.
	resp := ts.Get(t, "/api/quests/eligible", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var eligible struct {
		Quests []model.Quest `json:"quests"`
	}
	ReadJSON(t, resp, &eligible)
	require.Len(t, eligible.Quests, 1)
	require.Equal(t, q.ID, eligible.Quests[0].ID)

	resp = ts.PostJSON(t, "/api/timers/quest/attach", map[string]interface{}{
		"quest_id": q.ID,
		"duration": 600,
	}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.PostJSON(t, "/api/timers/quest/start", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Polling before the target is reached completes nothing.
	resp = ts.Get(t, "/api/timers/quest?poll=1", token)
	var mid struct {
		Timer      map[string]interface{} `json:"timer"`
		Completion map[string]interface{} `json:"completion"`
	}
	ReadJSON(t, resp, &mid)
	require.Nil(t, mid.Completion)
	require.Equal(t, model.TimerActive, mid.Timer["status"])

	ts.Clock.Advance(600 * time.Second)

	resp = ts.Get(t, "/api/timers/quest?poll=1", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var done struct {
		Timer      map[string]interface{} `json:"timer"`
		Completion map[string]interface{} `json:"completion"`
	}
	ReadJSON(t, resp, &done)
	require.NotNil(t, done.Completion)
	require.Equal(t, float64(600), done.Completion["reward_xp"])
	require.Equal(t, float64(50), done.Completion["reward_coins"])
	require.Equal(t, model.TimerEmpty, done.Timer["status"])

	// 600 XP from level 0 crosses the 100/200/300 thresholds.
	var char model.Character
	require.NoError(t, ts.DB.First(&char, charID).Error)
	require.Equal(t, uint(3), char.Level)
	require.Equal(t, uint(0), char.XP)
	require.Equal(t, int64(50), char.Coins)
	require.Equal(t, uint(1), char.TotalQuests)

	var completion model.QuestCompletion
	require.NoError(t, ts.DB.Where("character_id = ? AND quest_id = ?", charID, q.ID).
		First(&completion).Error)
	require.Equal(t, uint(1), completion.TimesCompleted)

	// Non-repeatable quests leave the offer list once completed.
	resp = ts.Get(t, "/api/quests/eligible", token)
	var after struct {
		Quests []model.Quest `json:"quests"`
	}
	ReadJSON(t, resp, &after)
	require.Empty(t, after.Quests)
}

func TestWSFlow_TimerOpsAndCompletionFanout(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	token, _, _ := ts.Login(t, UniqueID("wsuser"), "secret-pw")
	actID := ts.CreateActivity(t, token, "practice", 1)

	q := model.Quest{
		Name:      "morning routine",
		IsActive:  true,
		CanRepeat: true,
		Frequency: model.FrequencyNone,
		Results:   model.QuestResults{XPRate: 1},
	}
	require.NoError(t, ts.DB.Create(&q).Error)

	ws := ts.ConnectWS(t, token)
	defer ws.Close()

	ws.Send("timer_attach", map[string]interface{}{"kind": "activity", "item_id": actID})
	pkt := ws.RecvType("timer_state", 5*time.Second)
	payload := PayloadMap(t, pkt)
	require.Equal(t, model.TimerWaiting, payload["status"])

	ws.Send("timer_start", map[string]interface{}{"kind": "activity"})
	pkt = ws.RecvType("timer_state", 5*time.Second)
	require.Equal(t, model.TimerActive, PayloadMap(t, pkt)["status"])

	ts.Clock.Advance(120 * time.Second)
	ws.Send("timer_pause", map[string]interface{}{"kind": "activity"})
	pkt = ws.RecvType("timer_state", 5*time.Second)
	payload = PayloadMap(t, pkt)
	require.Equal(t, model.TimerPaused, payload["status"])
	require.Equal(t, float64(120), payload["elapsed"])

	// Quest timer runs independently of the activity timer.
	ws.Send("timer_attach", map[string]interface{}{
		"kind": "quest", "item_id": q.ID, "duration": 300,
	})
	pkt = ws.RecvType("timer_state", 5*time.Second)
	payload = PayloadMap(t, pkt)
	require.Equal(t, "quest", payload["kind"])
	require.Equal(t, model.TimerWaiting, payload["status"])

	ws.Send("timer_start", map[string]interface{}{"kind": "quest"})
	ws.RecvType("timer_state", 5*time.Second)

	ts.Clock.Advance(300 * time.Second)
	ws.Send("quest_poll", nil)

	// Completion fans out the reward event and a refreshed offer list.
	pkt = ws.RecvType("quest_completed", 5*time.Second)
	payload = PayloadMap(t, pkt)
	require.Equal(t, float64(300), payload["reward_xp"])

	relist := ws.RecvType("eligible_quests", 5*time.Second)
	require.NotNil(t, relist)
}

func TestWSFlow_InvalidTransitionReportsState(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	token, _, _ := ts.Login(t, UniqueID("eager"), "secret-pw")
	ws := ts.ConnectWS(t, token)
	defer ws.Close()

	// Starting with nothing attached is rejected but still reports the
	// authoritative snapshot.
	ws.Send("timer_start", map[string]interface{}{"kind": "activity"})
	pkt := ws.RecvType("timer_state", 5*time.Second)
	require.Equal(t, model.TimerEmpty, PayloadMap(t, pkt)["status"])

	errPkt := ws.RecvType("error", 5*time.Second)
	require.Equal(t, "invalid transition", PayloadMap(t, errPkt)["message"])
}

func TestSSE_StreamsOwnedEvents(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	token, _, _ := ts.Login(t, UniqueID("watcher"), "secret-pw")
	actID := ts.CreateActivity(t, token, "stretching", 1)

	resp := ts.PostJSON(t, "/api/timers/activity/attach", map[string]interface{}{
		"activity_id": actID,
	}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	stream := ts.Get(t, "/sse?token="+token, "")
	defer stream.Body.Close()
	require.Equal(t, http.StatusOK, stream.StatusCode)

	lines := make(chan string, 64)
	go func() {
		scanner := bufio.NewScanner(stream.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	waitLine := func(prefix string) string {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream closed while waiting for %q", prefix)
				}
				if strings.HasPrefix(line, prefix) {
					return line
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %q", prefix)
			}
		}
	}

	// The handshake event confirms the subscription is live before any
	// timer operation fires.
	waitLine("event: connected")

	resp = ts.PostJSON(t, "/api/timers/activity/start", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	waitLine("event: timer_state_changed")
	data := waitLine("data: ")
	require.Contains(t, data, `"status":"active"`)
}
