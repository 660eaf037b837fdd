package controllers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/threadboard/server/middleware"
	"github.com/threadboard/server/replytree"
	"github.com/threadboard/server/services"
	"github.com/threadboard/server/utils"
)

// ReplyController serves a post's reply tree.
type ReplyController struct {
	replies *services.ReplyService
}

// NewReplyController creates a ReplyController.
func NewReplyController(replies *services.ReplyService) *ReplyController {
	return &ReplyController{replies: replies}
}

type replyRequest struct {
	Comment     string          `json:"comment"`
	Content     string          `json:"content"`
	Attachments []string        `json:"attachments"`
	TargetPath  json.RawMessage `json:"targetPath"`
}

func (r replyRequest) text() string {
	if strings.TrimSpace(r.Comment) != "" {
		return r.Comment
	}
	return r.Content
}

// pathFrom accepts targetPath as a JSON array, a dotted string, or the target_path query parameter.
func pathFrom(ctx *gin.Context, raw json.RawMessage) (replytree.Path, error) {
	if len(raw) > 0 && string(raw) != "null" {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return replytree.ParsePath(s)
		}
		return replytree.ParsePath(string(raw))
	}
	q := ctx.Query("targetPath")
	if q == "" {
		q = ctx.Query("target_path")
	}
	return replytree.ParsePath(q)
}

// ListReplies returns a page of top-level replies with their complete subtrees.
func (r *ReplyController) ListReplies(ctx *gin.Context) {
	postID, ok := paramID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40080, "invalid post id")
		return
	}
	page, size := parsePagination(ctx)
	desc := strings.EqualFold(ctx.Query("order"), "desc") || strings.EqualFold(ctx.Query("sortOrder"), "desc")

	out, err := r.replies.List(ctx.Request.Context(), middleware.CurrentActor(ctx), postID, services.ListOptions{
		Page:     page,
		PageSize: size,
		Desc:     desc,
	})
	if err != nil {
		respondServiceError(ctx, err, 50080, "failed to load replies")
		return
	}
	utils.Success(ctx, out)
}

// CreateReply adds a top-level reply to a post.
func (r *ReplyController) CreateReply(ctx *gin.Context) {
	postID, ok := paramID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40080, "invalid post id")
		return
	}
	var req replyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40081, "invalid request payload")
		return
	}
	reply, err := r.replies.Create(ctx.Request.Context(), middleware.CurrentActor(ctx), postID, req.text(), req.Attachments)
	if err != nil {
		respondServiceError(ctx, err, 50081, "failed to create reply")
		return
	}
	utils.Created(ctx, gin.H{"reply": reply})
}

// CreateSubReply replies under :id, or under the node targetPath reaches from :id.
func (r *ReplyController) CreateSubReply(ctx *gin.Context) {
	parentID, ok := paramID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40082, "invalid reply id")
		return
	}
	var req replyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40081, "invalid request payload")
		return
	}
	path, err := pathFrom(ctx, req.TargetPath)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40083, "invalid target path")
		return
	}
	reply, err := r.replies.CreateNested(ctx.Request.Context(), middleware.CurrentActor(ctx), parentID, path, req.text(), req.Attachments)
	if err != nil {
		respondServiceError(ctx, err, 50082, "failed to create reply")
		return
	}
	utils.Created(ctx, gin.H{"reply": reply})
}

// DeleteReply removes a reply and everything beneath it.
func (r *ReplyController) DeleteReply(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40082, "invalid reply id")
		return
	}
	n, err := r.replies.Delete(ctx.Request.Context(), middleware.CurrentActor(ctx), id)
	if err != nil {
		respondServiceError(ctx, err, 50083, "failed to delete reply")
		return
	}
	utils.Success(ctx, gin.H{"message": "reply deleted", "removed": n})
}

// DeleteNestedReply removes the reply targetPath reaches from :id.
func (r *ReplyController) DeleteNestedReply(ctx *gin.Context) {
	parentID, ok := paramID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40082, "invalid reply id")
		return
	}
	var req replyRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40081, "invalid request payload")
			return
		}
	}
	path, err := pathFrom(ctx, req.TargetPath)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40083, "invalid target path")
		return
	}
	n, err := r.replies.DeleteByPath(ctx.Request.Context(), middleware.CurrentActor(ctx), parentID, path)
	if err != nil {
		respondServiceError(ctx, err, 50083, "failed to delete reply")
		return
	}
	utils.Success(ctx, gin.H{"message": "reply deleted", "removed": n})
}
