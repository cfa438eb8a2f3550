package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/questtime/server/game/activity"
	mw "github.com/questtime/server/middleware"
	"go.uber.org/zap"
)

// ActivityHandler handles activity bucket REST endpoints.
type ActivityHandler struct {
	activities *activity.Service
	logger     *zap.Logger
}

// NewActivityHandler creates a new ActivityHandler.
func NewActivityHandler(activities *activity.Service, logger *zap.Logger) *ActivityHandler {
	return &ActivityHandler{activities: activities, logger: logger}
}

// List handles GET /api/activities.
func (h *ActivityHandler) List(c *gin.Context) {
	list, err := h.activities.List(c.Request.Context(), mw.GetProfileID(c))
	if err != nil {
		h.logger.Error("activity list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"activities": list})
}

type createActivityRequest struct {
	Name   string  `json:"name" binding:"required,min=1,max=64"`
	XPRate float64 `json:"xp_rate"`
}

// Create handles POST /api/activities.
func (h *ActivityHandler) Create(c *gin.Context) {
	var req createActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	act, err := h.activities.Create(c.Request.Context(), mw.GetProfileID(c), req.Name, req.XPRate)
	if err != nil {
		h.logger.Error("activity create failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": act})
}
