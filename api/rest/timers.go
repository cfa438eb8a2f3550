package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/questtime/server/game/activity"
	"github.com/questtime/server/game/quest"
	"github.com/questtime/server/game/timer"
	mw "github.com/questtime/server/middleware"
	"go.uber.org/zap"
)

// TimerHandler handles timer control REST endpoints.
type TimerHandler struct {
	timers     *timer.Service
	quests     *quest.Service
	activities *activity.Service
	logger     *zap.Logger
}

// NewTimerHandler creates a new TimerHandler.
func NewTimerHandler(timers *timer.Service, quests *quest.Service, activities *activity.Service, logger *zap.Logger) *TimerHandler {
	return &TimerHandler{timers: timers, quests: quests, activities: activities, logger: logger}
}

type attachActivityRequest struct {
	ActivityID int64 `json:"activity_id" binding:"required"`
}

type attachQuestRequest struct {
	QuestID int64 `json:"quest_id" binding:"required"`
	// Duration 0 means no target: the timer runs open-ended and only an
	// explicit complete ends it.
	Duration uint `json:"duration"`
}

// AttachActivity handles POST /api/timers/activity/attach.
func (h *TimerHandler) AttachActivity(c *gin.Context) {
	var req attachActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := h.timers.ActivityAttach(c.Request.Context(), mw.GetProfileID(c), req.ActivityID)
	h.respond(c, snap, err)
}

// StartActivity handles POST /api/timers/activity/start.
func (h *TimerHandler) StartActivity(c *gin.Context) {
	snap, err := h.timers.ActivityStart(c.Request.Context(), mw.GetProfileID(c))
	h.respond(c, snap, err)
}

// PauseActivity handles POST /api/timers/activity/pause.
func (h *TimerHandler) PauseActivity(c *gin.Context) {
	snap, err := h.timers.ActivityPause(c.Request.Context(), mw.GetProfileID(c))
	h.respond(c, snap, err)
}

// ResetActivity handles POST /api/timers/activity/reset.
func (h *TimerHandler) ResetActivity(c *gin.Context) {
	snap, err := h.timers.ActivityReset(c.Request.Context(), mw.GetProfileID(c))
	h.respond(c, snap, err)
}

// CompleteActivity handles POST /api/timers/activity/complete.
// Runs the full reward sequence, not just the timer transition.
func (h *TimerHandler) CompleteActivity(c *gin.Context) {
	ev, err := h.activities.Complete(c.Request.Context(), mw.GetProfileID(c))
	if err != nil {
		h.completionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"completion": ev})
}

// SnapshotActivity handles GET /api/timers/activity.
func (h *TimerHandler) SnapshotActivity(c *gin.Context) {
	snap, err := h.timers.ActivitySnapshot(c.Request.Context(), mw.GetProfileID(c))
	h.respond(c, snap, err)
}

// AttachQuest handles POST /api/timers/quest/attach.
func (h *TimerHandler) AttachQuest(c *gin.Context) {
	var req attachQuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := h.timers.QuestAttach(c.Request.Context(), mw.GetCharacterID(c), req.QuestID, req.Duration)
	h.respond(c, snap, err)
}

// StartQuest handles POST /api/timers/quest/start.
func (h *TimerHandler) StartQuest(c *gin.Context) {
	snap, err := h.timers.QuestStart(c.Request.Context(), mw.GetCharacterID(c))
	h.respond(c, snap, err)
}

// PauseQuest handles POST /api/timers/quest/pause.
func (h *TimerHandler) PauseQuest(c *gin.Context) {
	snap, err := h.timers.QuestPause(c.Request.Context(), mw.GetCharacterID(c))
	h.respond(c, snap, err)
}

// ResetQuest handles POST /api/timers/quest/reset.
func (h *TimerHandler) ResetQuest(c *gin.Context) {
	snap, err := h.timers.QuestReset(c.Request.Context(), mw.GetCharacterID(c))
	h.respond(c, snap, err)
}

// CompleteQuest handles POST /api/timers/quest/complete.
func (h *TimerHandler) CompleteQuest(c *gin.Context) {
	ev, err := h.quests.Complete(c.Request.Context(), mw.GetCharacterID(c))
	if err != nil {
		h.completionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"completion": ev})
}

// SnapshotQuest handles GET /api/timers/quest. With ?poll=1 the target check
// runs first and a finished timer is completed implicitly.
func (h *TimerHandler) SnapshotQuest(c *gin.Context) {
	characterID := mw.GetCharacterID(c)
	if c.Query("poll") == "1" {
		ev, snap, err := h.quests.PollFinished(c.Request.Context(), characterID)
		if err != nil {
			h.completionError(c, err)
			return
		}
		if ev != nil {
			c.JSON(http.StatusOK, gin.H{"timer": snap, "completion": ev})
			return
		}
		c.JSON(http.StatusOK, gin.H{"timer": snap})
		return
	}
	snap, err := h.timers.QuestSnapshot(c.Request.Context(), characterID)
	h.respond(c, snap, err)
}

// respond maps a timer operation result to an HTTP response. An invalid
// transition returns 409 with the authoritative snapshot attached.
func (h *TimerHandler) respond(c *gin.Context, snap timer.Snapshot, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"timer": snap})
	case errors.Is(err, timer.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid transition", "timer": snap})
	case errors.Is(err, timer.ErrMissingOwnerTimer):
		c.JSON(http.StatusNotFound, gin.H{"error": "timer not found"})
	default:
		h.logger.Error("timer operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *TimerHandler) completionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, timer.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid transition"})
	case errors.Is(err, timer.ErrMissingOwnerTimer):
		c.JSON(http.StatusNotFound, gin.H{"error": "timer not found"})
	case errors.Is(err, quest.ErrNoQuestAttached), errors.Is(err, activity.ErrNoActivityAttached):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, quest.ErrRewardApplication), errors.Is(err, activity.ErrRewardApplication):
		// Timer is already completed; the client may retry.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reward application failed, retry"})
	default:
		h.logger.Error("completion failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
