package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/questtime/server/game/quest"
	mw "github.com/questtime/server/middleware"
	"go.uber.org/zap"
)

// QuestHandler handles quest REST endpoints.
type QuestHandler struct {
	quests *quest.Service
	logger *zap.Logger
}

// NewQuestHandler creates a new QuestHandler.
func NewQuestHandler(quests *quest.Service, logger *zap.Logger) *QuestHandler {
	return &QuestHandler{quests: quests, logger: logger}
}

// Eligible handles GET /api/quests/eligible.
func (h *QuestHandler) Eligible(c *gin.Context) {
	list, err := h.quests.EligibleQuests(c.Request.Context(), mw.GetCharacterID(c))
	if err != nil {
		h.logger.Error("eligible quests failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"quests": list})
}
