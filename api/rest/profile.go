package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	mw "github.com/questtime/server/middleware"
	"github.com/questtime/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProfileHandler handles profile and character read endpoints.
type ProfileHandler struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(db *gorm.DB, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{db: db, logger: logger}
}

// GetProfile handles GET /api/profile.
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	var profile model.Profile
	err := h.db.WithContext(c.Request.Context()).
		First(&profile, mw.GetProfileID(c)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
			return
		}
		h.logger.Error("profile load failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

// GetCharacter handles GET /api/character.
func (h *ProfileHandler) GetCharacter(c *gin.Context) {
	var char model.Character
	err := h.db.WithContext(c.Request.Context()).
		Where("profile_id = ?", mw.GetProfileID(c)).
		First(&char).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "character not found"})
			return
		}
		h.logger.Error("character load failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"character": char})
}
