package controllers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/threadboard/server/middleware"
	"github.com/threadboard/server/models"
	"github.com/threadboard/server/services"
	"github.com/threadboard/server/utils"
)

// LiveController upgrades readers of a post to a websocket carrying reply change events.
type LiveController struct {
	db  *gorm.DB
	hub *utils.LiveHub
}

// NewLiveController creates a LiveController.
func NewLiveController(db *gorm.DB, hub *utils.LiveHub) *LiveController {
	return &LiveController{db: db, hub: hub}
}

// Subscribe blocks for the lifetime of the websocket. Browsers cannot set headers on upgrade,
// so the token may arrive as the access_token query parameter.
func (l *LiveController) Subscribe(ctx *gin.Context) {
	postID, ok := paramID(ctx, "id")
	if !ok {
		respondServiceError(ctx, services.ErrPostNotFound, 50160, "failed to subscribe")
		return
	}
	var post models.Post
	if err := l.db.First(&post, postID).Error; err != nil || !middleware.CurrentActor(ctx).CanViewPost(&post) {
		respondServiceError(ctx, services.ErrPostNotFound, 50160, "failed to subscribe")
		return
	}
	if err := l.hub.Serve(ctx.Writer, ctx.Request, postID); err != nil {
		utils.Logger.Debug("live upgrade failed", zap.Uint("post_id", postID), zap.Error(err))
	}
}
