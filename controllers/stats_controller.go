package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/threadboard/server/middleware"
	"github.com/threadboard/server/models"
	"github.com/threadboard/server/services"
	"github.com/threadboard/server/utils"
)

// StatsController provides board statistics such as counts and daily active readers.
type StatsController struct {
	db      *gorm.DB
	replies *services.ReplyService
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB, replies *services.ReplyService) *StatsController {
	return &StatsController{db: db, replies: replies}
}

// GetStats returns aggregate statistics. Counting errors degrade to zero rather than failing the endpoint.
func (s *StatsController) GetStats(ctx *gin.Context) {
	key := utils.CachePrefixStats + "global"
	var cached gin.H
	if utils.CacheGetJSON(key, &cached) {
		utils.Success(ctx, cached)
		return
	}

	var userCount, postCount, replyCount, dailyActive int64
	if err := s.db.Model(&models.User{}).Count(&userCount).Error; err != nil {
		userCount = 0
	}
	if err := s.db.Model(&models.Post{}).Where("status = ?", models.PostStatusPublished).Count(&postCount).Error; err != nil {
		postCount = 0
	}
	if err := s.db.Model(&models.Reply{}).Count(&replyCount).Error; err != nil {
		replyCount = 0
	}
	since := time.Now().Add(-24 * time.Hour)
	if err := s.db.Model(&models.ViewHistory{}).
		Where("viewed_at >= ?", since).
		Distinct("user_id").
		Count(&dailyActive).Error; err != nil {
		dailyActive = 0
	}

	out := gin.H{
		"user_count":         userCount,
		"post_count":         postCount,
		"reply_count":        replyCount,
		"daily_active_count": dailyActive,
	}
	utils.CacheSetJSON(key, out, time.Minute)
	utils.Success(ctx, out)
}

// GetPostStats returns reply counts and reader numbers for one post.
func (s *StatsController) GetPostStats(ctx *gin.Context) {
	postID, ok := paramID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40150, "invalid post id")
		return
	}
	var post models.Post
	if err := s.db.First(&post, postID).Error; err != nil || !middleware.CurrentActor(ctx).CanViewPost(&post) {
		respondServiceError(ctx, services.ErrPostNotFound, 50150, "failed to load stats")
		return
	}
	topLevel, all, err := s.replies.CountReplies(ctx.Request.Context(), postID)
	if err != nil {
		respondServiceError(ctx, err, 50150, "failed to load stats")
		return
	}
	var readers, views int64
	if err := s.db.Model(&models.ViewHistory{}).Where("post_id = ?", postID).Count(&readers).Error; err != nil {
		readers = 0
	}
	if err := s.db.Model(&models.ViewHistory{}).Where("post_id = ?", postID).
		Select("COALESCE(SUM(view_count),0)").Scan(&views).Error; err != nil {
		views = 0
	}
	utils.Success(ctx, gin.H{
		"post_id":         postID,
		"top_level_count": topLevel,
		"reply_count":     all,
		"reader_count":    readers,
		"view_count":      views,
	})
}
