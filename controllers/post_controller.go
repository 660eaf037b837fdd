package controllers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/threadboard/server/middleware"
	"github.com/threadboard/server/models"
	"github.com/threadboard/server/services"
	"github.com/threadboard/server/utils"
)

// PostController manages posts and their moderation lifecycle.
type PostController struct {
	db *gorm.DB
}

// NewPostController creates a new PostController instance.
func NewPostController(db *gorm.DB) *PostController {
	return &PostController{db: db}
}

type postRequest struct {
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	Attachments []string `json:"attachments"`
	Status      string   `json:"status"`
}

func (p *PostController) invalidate(post *models.Post) {
	utils.InvalidateByPrefix(utils.CachePrefixPosts)
	utils.InvalidateByPrefix(utils.CachePrefixStats)
	utils.InvalidateByPrefix(utils.RepliesCachePrefix(post.ID))
}

func (p *PostController) withAuthors(posts []models.Post) []models.Post {
	for i := range posts {
		posts[i].WithAuthor()
	}
	return posts
}

// load fetches a post with its author. It writes the error response itself and reports success.
func (p *PostController) load(ctx *gin.Context) (*models.Post, bool) {
	id, ok := paramID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid post id")
		return nil, false
	}
	var post models.Post
	if err := p.db.Preload("User").First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40401, "post not found")
			return nil, false
		}
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to load post")
		return nil, false
	}
	return post.WithAuthor(), true
}

// CreatePost creates a draft, or a published post when status is "published".
func (p *PostController) CreatePost(ctx *gin.Context) {
	actor := middleware.CurrentActor(ctx)
	if err := actor.CanWrite(); err != nil {
		respondServiceError(ctx, err, 50020, "failed to create post")
		return
	}
	var req postRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	title := utils.SanitizePlain(req.Title)
	if title == "" {
		utils.Error(ctx, http.StatusBadRequest, 40021, "title cannot be empty")
		return
	}
	content := utils.Sanitize(req.Content)
	if content == "" {
		utils.Error(ctx, http.StatusBadRequest, 40023, "content cannot be empty")
		return
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if status == "" {
		status = models.PostStatusDraft
	}
	if status != models.PostStatusDraft && status != models.PostStatusPublished {
		utils.Error(ctx, http.StatusBadRequest, 40022, "status must be draft or published")
		return
	}

	post := models.Post{
		UserID:      actor.UserID,
		Title:       title,
		Content:     content,
		Status:      status,
		Attachments: models.StringList(utils.CleanAttachments(req.Attachments)),
	}
	if status == models.PostStatusPublished {
		now := time.Now()
		post.PublishedAt = &now
	}
	if err := p.db.Create(&post).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50020, "failed to create post")
		return
	}
	p.invalidate(&post)
	if u := middleware.CurrentUser(ctx); u != nil {
		post.User = *u
		post.WithAuthor()
	}
	utils.Created(ctx, gin.H{"post": post})
}

// ListPosts returns published posts, newest first. userId=me lists the caller's own posts of any status.
func (p *PostController) ListPosts(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx)
	search := strings.TrimSpace(ctx.Query("search"))
	if search == "" {
		search = strings.TrimSpace(ctx.Query("q"))
	}
	actor := middleware.CurrentActor(ctx)

	q := p.db.Model(&models.Post{})
	cacheable := search == ""
	switch owner := ctx.Query("userId"); {
	case owner == "me":
		if !actor.Authenticated() {
			utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
			return
		}
		q = q.Where("user_id = ?", actor.UserID)
		if st := ctx.Query("status"); st != "" {
			q = q.Where("status = ?", st)
		} else {
			q = q.Where("status <> ?", models.PostStatusDeleted)
		}
		cacheable = false
	case owner != "":
		uid, err := strconv.ParseUint(owner, 10, 64)
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40024, "invalid user id")
			return
		}
		q = q.Where("user_id = ? AND status = ?", uid, models.PostStatusPublished)
	default:
		q = q.Where("status = ?", models.PostStatusPublished)
	}
	if search != "" {
		like := "%" + search + "%"
		q = q.Where("title LIKE ? OR content LIKE ?", like, like)
	}
	order := "created_at DESC"
	if strings.EqualFold(ctx.Query("sortOrder"), "asc") {
		order = "created_at ASC"
	}

	cacheKey := fmt.Sprintf("%slist:u=%s:page=%d:size=%d:%s", utils.CachePrefixPosts, ctx.Query("userId"), page, pageSize, order)
	if cacheable {
		var cached gin.H
		if utils.CacheGetJSON(cacheKey, &cached) {
			utils.Success(ctx, cached)
			return
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to count posts")
		return
	}
	var posts []models.Post
	if err := q.Preload("User").Order(order).Offset((page - 1) * pageSize).Limit(pageSize).Find(&posts).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to list posts")
		return
	}
	payload := paginated(p.withAuthors(posts), page, pageSize, total)
	if cacheable {
		utils.CacheSetJSON(cacheKey, payload, time.Hour)
	}
	utils.Success(ctx, payload)
}

// GetPost returns a single post if the caller may see it.
func (p *PostController) GetPost(ctx *gin.Context) {
	post, ok := p.load(ctx)
	if !ok {
		return
	}
	if !middleware.CurrentActor(ctx).CanViewPost(post) {
		utils.Error(ctx, http.StatusNotFound, 40401, "post not found")
		return
	}
	utils.Success(ctx, gin.H{"post": post})
}

// UpdatePost lets the author edit title, content and attachments.
func (p *PostController) UpdatePost(ctx *gin.Context) {
	var req postRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40024, "invalid request payload")
		return
	}
	post, ok := p.load(ctx)
	if !ok {
		return
	}
	actor := middleware.CurrentActor(ctx)
	if post.UserID != actor.UserID {
		utils.Error(ctx, http.StatusForbidden, 40305, "you can only update your own posts")
		return
	}
	if post.Status == models.PostStatusBanned || post.Status == models.PostStatusDeleted {
		utils.Error(ctx, http.StatusConflict, 40922, "post can no longer be edited")
		return
	}
	title := utils.SanitizePlain(req.Title)
	content := utils.Sanitize(req.Content)
	if title == "" || content == "" {
		utils.Error(ctx, http.StatusBadRequest, 40025, "title and content cannot be empty")
		return
	}
	updates := map[string]interface{}{
		"title":       title,
		"content":     content,
		"attachments": models.StringList(utils.CleanAttachments(req.Attachments)),
	}
	if err := p.db.Model(post).Updates(updates).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50026, "failed to update post")
		return
	}
	post.Title, post.Content = title, content
	post.Attachments = updates["attachments"].(models.StringList)
	p.invalidate(post)
	utils.Success(ctx, gin.H{"post": post})
}

// setStatus moves a post to status, remembering the previous one for recover/unban.
func (p *PostController) setStatus(post *models.Post, status string) error {
	updates := map[string]interface{}{"status": status}
	if status == models.PostStatusBanned || status == models.PostStatusDeleted {
		if post.Status != models.PostStatusBanned && post.Status != models.PostStatusDeleted {
			updates["prev_status"] = post.Status
			post.PrevStatus = post.Status
		}
	}
	if status == models.PostStatusPublished && post.PublishedAt == nil {
		now := time.Now()
		updates["published_at"] = &now
		post.PublishedAt = &now
	}
	if err := p.db.Model(post).Updates(updates).Error; err != nil {
		return err
	}
	post.Status = status
	p.invalidate(post)
	return nil
}

// UpdateStatus lets the author switch between draft, published and hidden.
// Admins may additionally hide anyone's post.
func (p *PostController) UpdateStatus(ctx *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40026, "invalid request payload")
		return
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	switch status {
	case models.PostStatusDraft, models.PostStatusPublished, models.PostStatusHidden:
	default:
		utils.Error(ctx, http.StatusBadRequest, 40022, "status must be draft, published or hidden")
		return
	}
	post, ok := p.load(ctx)
	if !ok {
		return
	}
	actor := middleware.CurrentActor(ctx)
	owner := post.UserID == actor.UserID
	if !owner && !(actor.Admin && status == models.PostStatusHidden) {
		utils.Error(ctx, http.StatusForbidden, 40302, "you can only change your own posts")
		return
	}
	if post.Status == models.PostStatusBanned || post.Status == models.PostStatusDeleted {
		utils.Error(ctx, http.StatusConflict, 40922, "post is "+post.Status)
		return
	}
	if status == models.PostStatusPublished && !actor.Verified {
		respondServiceError(ctx, services.ErrNotVerified, 50027, "failed to update post")
		return
	}
	if err := p.setStatus(post, status); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50027, "failed to update post status")
		return
	}
	utils.Success(ctx, gin.H{"post": post})
}

// PublishPost is shorthand for setting status to published.
func (p *PostController) PublishPost(ctx *gin.Context) {
	post, ok := p.load(ctx)
	if !ok {
		return
	}
	actor := middleware.CurrentActor(ctx)
	if post.UserID != actor.UserID {
		utils.Error(ctx, http.StatusForbidden, 40302, "you can only publish your own posts")
		return
	}
	if err := actor.CanWrite(); err != nil {
		respondServiceError(ctx, err, 50027, "failed to publish post")
		return
	}
	if post.Status == models.PostStatusBanned || post.Status == models.PostStatusDeleted {
		utils.Error(ctx, http.StatusConflict, 40922, "post is "+post.Status)
		return
	}
	if err := p.setStatus(post, models.PostStatusPublished); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50027, "failed to publish post")
		return
	}
	utils.Success(ctx, gin.H{"post": post})
}

// ArchivePost toggles the archived flag, or sets it when archived is given. Archived posts take no new replies.
func (p *PostController) ArchivePost(ctx *gin.Context) {
	var req struct {
		Archived *bool `json:"archived"`
	}
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40026, "invalid request payload")
			return
		}
	}
	post, ok := p.load(ctx)
	if !ok {
		return
	}
	if !middleware.CurrentActor(ctx).OwnsOrAdmin(post.UserID) {
		utils.Error(ctx, http.StatusForbidden, 40303, "you can only archive your own posts")
		return
	}
	archived := !post.IsArchived
	if req.Archived != nil {
		archived = *req.Archived
	}
	if err := p.db.Model(post).Update("is_archived", archived).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50029, "failed to archive post")
		return
	}
	post.IsArchived = archived
	p.invalidate(post)
	utils.Success(ctx, gin.H{"post": post})
}

// DeletePost soft deletes: the post moves to status deleted and an admin can recover it.
func (p *PostController) DeletePost(ctx *gin.Context) {
	post, ok := p.load(ctx)
	if !ok {
		return
	}
	if !middleware.CurrentActor(ctx).OwnsOrAdmin(post.UserID) {
		utils.Error(ctx, http.StatusForbidden, 40304, "you can only delete your own posts")
		return
	}
	if post.Status == models.PostStatusDeleted {
		utils.Error(ctx, http.StatusNotFound, 40401, "post not found")
		return
	}
	if err := p.setStatus(post, models.PostStatusDeleted); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50028, "failed to delete post")
		return
	}
	utils.Success(ctx, gin.H{"message": "post deleted"})
}

// restore returns a banned or deleted post to the status it had before.
func (p *PostController) restore(ctx *gin.Context, from string) {
	post, ok := p.load(ctx)
	if !ok {
		return
	}
	if post.Status != from {
		utils.Error(ctx, http.StatusConflict, 40923, "post is not "+from)
		return
	}
	to := post.PrevStatus
	if to == "" || to == models.PostStatusBanned || to == models.PostStatusDeleted {
		to = models.PostStatusDraft
	}
	if err := p.setStatus(post, to); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50030, "failed to restore post")
		return
	}
	utils.Success(ctx, gin.H{"post": post})
}

// RecoverPost undoes a delete. Admin only.
func (p *PostController) RecoverPost(ctx *gin.Context) {
	p.restore(ctx, models.PostStatusDeleted)
}

// UnbanPost lifts a ban. Admin only.
func (p *PostController) UnbanPost(ctx *gin.Context) {
	p.restore(ctx, models.PostStatusBanned)
}

// BanPost hides a post from everyone but admins. Admin only.
func (p *PostController) BanPost(ctx *gin.Context) {
	post, ok := p.load(ctx)
	if !ok {
		return
	}
	if post.Status == models.PostStatusBanned {
		utils.Success(ctx, gin.H{"post": post})
		return
	}
	if err := p.setStatus(post, models.PostStatusBanned); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50031, "failed to ban post")
		return
	}
	utils.Success(ctx, gin.H{"post": post})
}

func (p *PostController) listWhere(ctx *gin.Context, query string, args ...interface{}) {
	page, pageSize := parsePagination(ctx)
	q := p.db.Model(&models.Post{}).Where(query, args...)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50032, "failed to count posts")
		return
	}
	var posts []models.Post
	if err := q.Preload("User").Order("updated_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&posts).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50033, "failed to list posts")
		return
	}
	utils.Success(ctx, paginated(p.withAuthors(posts), page, pageSize, total))
}

// ListMyDrafts returns the caller's drafts.
func (p *PostController) ListMyDrafts(ctx *gin.Context) {
	p.listWhere(ctx, "user_id = ? AND status = ?", middleware.CurrentActor(ctx).UserID, models.PostStatusDraft)
}

// ListMyPublished returns the caller's published posts.
func (p *PostController) ListMyPublished(ctx *gin.Context) {
	p.listWhere(ctx, "user_id = ? AND status = ?", middleware.CurrentActor(ctx).UserID, models.PostStatusPublished)
}

// ListBanned returns banned posts. Admin only.
func (p *PostController) ListBanned(ctx *gin.Context) {
	p.listWhere(ctx, "status = ?", models.PostStatusBanned)
}

// ListDeleted returns soft deleted posts. Admin only.
func (p *PostController) ListDeleted(ctx *gin.Context) {
	p.listWhere(ctx, "status = ?", models.PostStatusDeleted)
}

// ListMyTop returns the caller's most replied published posts, at most 10.
func (p *PostController) ListMyTop(ctx *gin.Context) {
	limit := 5
	if n, err := strconv.Atoi(ctx.Query("limit")); err == nil && n > 0 {
		limit = n
	}
	if limit > 10 {
		limit = 10
	}
	var posts []models.Post
	err := p.db.Preload("User").
		Where("user_id = ? AND status = ?", middleware.CurrentActor(ctx).UserID, models.PostStatusPublished).
		Order("reply_count DESC, created_at DESC").Limit(limit).Find(&posts).Error
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50034, "failed to list posts")
		return
	}
	utils.Success(ctx, gin.H{"items": p.withAuthors(posts)})
}
