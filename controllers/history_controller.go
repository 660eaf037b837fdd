package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/threadboard/server/middleware"
	"github.com/threadboard/server/models"
	"github.com/threadboard/server/services"
	"github.com/threadboard/server/utils"
)

// HistoryController exposes the signed in user's reading history.
type HistoryController struct {
	db *gorm.DB
}

// NewHistoryController creates a HistoryController.
func NewHistoryController(db *gorm.DB) *HistoryController {
	return &HistoryController{db: db}
}

// List returns history entries, most recent first. q filters by post title.
func (h *HistoryController) List(ctx *gin.Context) {
	actor := middleware.CurrentActor(ctx)
	page, size := parsePagination(ctx)
	q := h.db.Model(&models.ViewHistory{}).
		Joins("JOIN posts ON posts.id = view_histories.post_id").
		Where("view_histories.user_id = ? AND posts.status <> ?", actor.UserID, models.PostStatusDeleted)
	if s := strings.TrimSpace(ctx.Query("q")); s != "" {
		q = q.Where("posts.title LIKE ?", "%"+s+"%")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50140, "failed to count history")
		return
	}
	var items []models.ViewHistory
	if err := q.Preload("Post").Preload("Post.User").
		Order("view_histories.viewed_at DESC, view_histories.id DESC").
		Offset((page - 1) * size).Limit(size).Find(&items).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50141, "failed to load history")
		return
	}
	for i := range items {
		items[i].Post.WithAuthor()
	}
	utils.Success(ctx, paginated(items, page, size, total))
}

// Record adds a post to the history explicitly, for clients that read posts from cache.
func (h *HistoryController) Record(ctx *gin.Context) {
	actor := middleware.CurrentActor(ctx)
	postID, ok := paramID(ctx, "postId")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40140, "invalid post id")
		return
	}
	var post models.Post
	if err := h.db.First(&post, postID).Error; err != nil || !actor.CanViewPost(&post) {
		respondServiceError(ctx, services.ErrPostNotFound, 50142, "failed to record history")
		return
	}
	if err := services.RecordView(ctx.Request.Context(), h.db, actor.UserID, postID, time.Now()); err != nil {
		respondServiceError(ctx, err, 50142, "failed to record history")
		return
	}
	utils.Success(ctx, gin.H{"message": "recorded"})
}

// Delete removes one post from the history.
func (h *HistoryController) Delete(ctx *gin.Context) {
	actor := middleware.CurrentActor(ctx)
	postID, ok := paramID(ctx, "postId")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40140, "invalid post id")
		return
	}
	res := h.db.Where("user_id = ? AND post_id = ?", actor.UserID, postID).Delete(&models.ViewHistory{})
	if res.Error != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50143, "failed to delete history")
		return
	}
	if res.RowsAffected == 0 {
		utils.Error(ctx, http.StatusNotFound, 40440, "history entry not found")
		return
	}
	utils.Success(ctx, gin.H{"message": "deleted"})
}

// Clear wipes the user's history.
func (h *HistoryController) Clear(ctx *gin.Context) {
	actor := middleware.CurrentActor(ctx)
	res := h.db.Where("user_id = ?", actor.UserID).Delete(&models.ViewHistory{})
	if res.Error != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50144, "failed to clear history")
		return
	}
	utils.Success(ctx, gin.H{"message": "cleared", "removed": res.RowsAffected})
}
