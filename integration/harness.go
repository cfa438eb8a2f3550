package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	apirest "github.com/questtime/server/api/rest"
	"github.com/questtime/server/api/sse"
	apiws "github.com/questtime/server/api/ws"
	"github.com/questtime/server/audit"
	"github.com/questtime/server/cache"
	"github.com/questtime/server/config"
	"github.com/questtime/server/game/activity"
	"github.com/questtime/server/game/events"
	"github.com/questtime/server/game/presence"
	"github.com/questtime/server/game/progression"
	"github.com/questtime/server/game/quest"
	"github.com/questtime/server/game/timer"
	mw "github.com/questtime/server/middleware"
	"github.com/questtime/server/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// TestServer wraps a real HTTP server with all timer subsystems wired together.
type TestServer struct {
	DB         *gorm.DB
	Cache      cache.Cache
	PubSub     cache.PubSub
	SM         *apiws.SessionManager
	Clock      *testutil.FakeClock
	Timers     *timer.Service
	Quests     *quest.Service
	Activities *activity.Service
	Hub        *apiws.Hub
	Audit      *audit.Service
	Server     *httptest.Server
	URL        string // http://127.0.0.1:<port>
	WSURL      string // ws://127.0.0.1:<port>/ws
	Sec        config.SecurityConfig
}

// NewTestServer creates a fully wired server for integration testing.
// It mirrors the dependency wiring in main.go, with a fake clock injected
// so tests can advance wall time deterministically.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()
	clock := testutil.NewFakeClock()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
		AllowedOrigins: []string{}, // allow all origins
	}

	// ---- Services ----
	auditSvc := audit.New(db, logger)
	bus := events.NewBus()
	effects := progression.NewEffectRegistry()

	timerSvc := timer.NewService(db, bus, logger)
	timerSvc.SetClock(clock.Now)
	questSvc := quest.NewService(db, timerSvc, effects, bus, auditSvc, logger)
	activitySvc := activity.NewService(db, timerSvc, bus, auditSvc, logger)
	presenceSvc := presence.NewService(db, timerSvc, logger)

	// ---- WS layer ----
	sm := apiws.NewSessionManager(logger)
	wsRouter := apiws.NewRouter(logger)
	apiws.RegisterTimerHandlers(wsRouter, timerSvc, questSvc, activitySvc, logger)

	hub := apiws.NewHub(sm, pubsub, bus, questSvc, logger)
	require.NoError(t, hub.Start(context.Background()))

	// ---- Gin HTTP server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes (mirrors main.go) ----
	authH := apirest.NewAuthHandler(db, c, sec)
	timerH := apirest.NewTimerHandler(timerSvc, questSvc, activitySvc, logger)
	questH := apirest.NewQuestHandler(questSvc, logger)
	activityH := apirest.NewActivityHandler(activitySvc, logger)
	profileH := apirest.NewProfileHandler(db, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(sec, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(sec, c), authH.Refresh)

		timersG := api.Group("/timers")
		timersG.Use(mw.Auth(sec, c))
		timersG.POST("/activity/attach", timerH.AttachActivity)
		timersG.POST("/activity/start", timerH.StartActivity)
		timersG.POST("/activity/pause", timerH.PauseActivity)
		timersG.POST("/activity/reset", timerH.ResetActivity)
		timersG.POST("/activity/complete", timerH.CompleteActivity)
		timersG.GET("/activity", timerH.SnapshotActivity)
		timersG.POST("/quest/attach", timerH.AttachQuest)
		timersG.POST("/quest/start", timerH.StartQuest)
		timersG.POST("/quest/pause", timerH.PauseQuest)
		timersG.POST("/quest/reset", timerH.ResetQuest)
		timersG.POST("/quest/complete", timerH.CompleteQuest)
		timersG.GET("/quest", timerH.SnapshotQuest)

		questsG := api.Group("/quests")
		questsG.Use(mw.Auth(sec, c))
		questsG.GET("/eligible", questH.Eligible)

		activitiesG := api.Group("/activities")
		activitiesG.Use(mw.Auth(sec, c))
		activitiesG.GET("", activityH.List)
		activitiesG.POST("", activityH.Create)

		meG := api.Group("")
		meG.Use(mw.Auth(sec, c))
		meG.GET("/profile", profileH.GetProfile)
		meG.GET("/character", profileH.GetCharacter)
	}

	// ---- WebSocket / SSE ----
	wsH := apiws.NewHandler(c, sec, sm, presenceSvc, wsRouter, logger)
	r.GET("/ws", wsH.ServeWS)

	sseH := sse.NewHandler(pubsub, c, sec, logger)
	r.GET("/sse", sseH.ServeSSE)

	// ---- Start server ----
	server := httptest.NewServer(r)
	url := server.URL
	wsURL := "ws" + url[len("http"):] + "/ws"

	return &TestServer{
		DB:         db,
		Cache:      c,
		PubSub:     pubsub,
		SM:         sm,
		Clock:      clock,
		Timers:     timerSvc,
		Quests:     questSvc,
		Activities: activitySvc,
		Hub:        hub,
		Audit:      auditSvc,
		Server:     server,
		URL:        url,
		WSURL:      wsURL,
		Sec:        sec,
	}
}

// Close shuts down the test server and all subsystems.
func (ts *TestServer) Close() {
	ts.SM.CloseAllSessions()
	ts.Hub.Stop()
	ts.Audit.Stop(context.Background())
	ts.Server.Close()
}

// --- HTTP helpers ---

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest("POST", ts.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest("GET", ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// --- Auth helpers ---

// Login logs in (auto-registers on first call) and returns the token plus
// the profile and character IDs the server minted for the account.
func (ts *TestServer) Login(t *testing.T, username, password string) (token string, profileID, characterID int64) {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/login", map[string]string{
		"name":     username,
		"password": password,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result map[string]interface{}
	ReadJSON(t, resp, &result)
	token = result["token"].(string)
	profileID = int64(result["profile_id"].(float64))
	characterID = int64(result["character_id"].(float64))
	return
}

// CreateActivity creates an activity bucket and returns its ID.
func (ts *TestServer) CreateActivity(t *testing.T, token, name string, xpRate float64) int64 {
	t.Helper()
	resp := ts.PostJSON(t, "/api/activities", map[string]interface{}{
		"name":    name,
		"xp_rate": xpRate,
	}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result struct {
		Activity struct {
			ID int64 `json:"id"`
		} `json:"activity"`
	}
	ReadJSON(t, resp, &result)
	return result.Activity.ID
}

// --- WebSocket client ---

// WSClient wraps a gorilla/websocket connection for integration testing.
// Uses a background readLoop to avoid gorilla/websocket's SetReadDeadline bug.
type WSClient struct {
	Conn   *websocket.Conn
	t      *testing.T
	seq    uint64
	readCh chan readResult // buffered channel from readLoop
}

type readResult struct {
	data []byte
	err  error
}

// ConnectWS dials the test server's WS endpoint with the given JWT token.
func (ts *TestServer) ConnectWS(t *testing.T, token string) *WSClient {
	t.Helper()
	url := ts.WSURL + "?token=" + token
	dialer := websocket.Dialer{}
	conn, resp, err := dialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err, "WS dial failed")
	wc := &WSClient{Conn: conn, t: t, readCh: make(chan readResult, 256)}
	go wc.readLoop()
	return wc
}

// readLoop continuously reads from the websocket in a dedicated goroutine.
func (wc *WSClient) readLoop() {
	for {
		_, data, err := wc.Conn.ReadMessage()
		wc.readCh <- readResult{data, err}
		if err != nil {
			return
		}
	}
}

// Send writes a JSON message packet to the WebSocket.
func (wc *WSClient) Send(msgType string, payload interface{}) {
	wc.t.Helper()
	seq := atomic.AddUint64(&wc.seq, 1)
	payloadJSON, err := json.Marshal(payload)
	require.NoError(wc.t, err)
	pkt := map[string]interface{}{
		"seq":     seq,
		"type":    msgType,
		"payload": json.RawMessage(payloadJSON),
	}
	data, err := json.Marshal(pkt)
	require.NoError(wc.t, err)
	require.NoError(wc.t, wc.Conn.WriteMessage(websocket.TextMessage, data))
}

// Recv reads one message from the WebSocket with a timeout.
func (wc *WSClient) Recv(timeout time.Duration) map[string]interface{} {
	wc.t.Helper()
	pkt, err := wc.RecvAny(timeout)
	require.NoError(wc.t, err, "WS recv failed")
	return pkt
}

// RecvAny reads one message from the WebSocket with a timeout, returning an
// error instead of failing the test on timeout/read failure.
func (wc *WSClient) RecvAny(timeout time.Duration) (map[string]interface{}, error) {
	select {
	case res := <-wc.readCh:
		if res.err != nil {
			return nil, res.err
		}
		var pkt map[string]interface{}
		if err := json.Unmarshal(res.data, &pkt); err != nil {
			return nil, err
		}
		return pkt, nil
	case <-time.After(timeout):
		return nil, &timeoutError{}
	}
}

// timeoutError implements net.Error for timeout detection in callers.
type timeoutError struct{}

func (e *timeoutError) Error() string   { return "read timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

// RecvType reads messages until one with the given type is found (within timeout).
func (wc *WSClient) RecvType(msgType string, timeout time.Duration) map[string]interface{} {
	wc.t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		pkt, err := wc.RecvAny(remaining)
		if err != nil {
			wc.t.Fatalf("WS recv failed while waiting for %q: %v", msgType, err)
		}
		if pkt["type"] == msgType {
			return pkt
		}
	}
	wc.t.Fatalf("timed out waiting for message type %q", msgType)
	return nil
}

// Close closes the WebSocket connection.
func (wc *WSClient) Close() {
	_ = wc.Conn.Close()
}

// PayloadMap extracts the payload from a received WS packet as a map.
func PayloadMap(t *testing.T, pkt map[string]interface{}) map[string]interface{} {
	t.Helper()
	p := pkt["payload"]
	if p == nil {
		return map[string]interface{}{}
	}
	switch v := p.(type) {
	case map[string]interface{}:
		return v
	case string:
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(v), &m))
		return m
	default:
		// Try re-marshal + unmarshal for json.RawMessage etc.
		data, err := json.Marshal(v)
		require.NoError(t, err)
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	}
}

// UniqueID returns a short unique string suitable for usernames.
var testCounter uint64

func UniqueID(prefix string) string {
	n := atomic.AddUint64(&testCounter, 1)
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano()%100000, n)
}
