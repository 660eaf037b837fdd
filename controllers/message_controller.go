package controllers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/threadboard/server/middleware"
	"github.com/threadboard/server/models"
	"github.com/threadboard/server/utils"
)

// MessageController handles the contact form and its admin inbox.
type MessageController struct {
	db       *gorm.DB
	notifier utils.Notifier
}

// NewMessageController creates a MessageController. A nil notifier disables admin alerts.
func NewMessageController(db *gorm.DB, notifier utils.Notifier) *MessageController {
	return &MessageController{db: db, notifier: notifier}
}

// Submit stores a contact message; signed-in senders are linked to their account.
func (m *MessageController) Submit(ctx *gin.Context) {
	var req struct {
		Email       string   `json:"email" binding:"required"`
		Subject     string   `json:"subject" binding:"required"`
		Message     string   `json:"message" binding:"required"`
		Attachments []string `json:"attachments"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40090, "invalid request payload")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !validEmail(email) {
		utils.Error(ctx, http.StatusBadRequest, 40091, "invalid email address")
		return
	}
	subject := truncate(utils.SanitizePlain(req.Subject), 255)
	body := utils.SanitizePlain(req.Message)
	if subject == "" || body == "" {
		utils.Error(ctx, http.StatusBadRequest, 40092, "subject and message are required")
		return
	}
	msg := models.ContactMessage{
		Email:       email,
		Subject:     subject,
		Message:     truncate(body, 5000),
		Attachments: models.StringList(utils.CleanAttachments(req.Attachments)),
		Status:      models.MessageStatusOpen,
	}
	if actor := middleware.CurrentActor(ctx); actor.Authenticated() {
		id := actor.UserID
		msg.UserID = &id
	}
	if err := m.db.Create(&msg).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50090, "failed to save message")
		return
	}
	utils.NotifyAsync(m.notifier, "New contact message", fmt.Sprintf("%s\nfrom %s\n\n%s", msg.Subject, msg.Email, msg.Message))
	utils.Created(ctx, gin.H{"id": msg.ID, "message": "message received"})
}

// List returns contact messages for admins, newest first, optionally filtered by status.
func (m *MessageController) List(ctx *gin.Context) {
	page, size := parsePagination(ctx)
	q := m.db.Model(&models.ContactMessage{})
	if st := strings.TrimSpace(ctx.Query("status")); st != "" {
		q = q.Where("status = ?", st)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50091, "failed to count messages")
		return
	}
	var items []models.ContactMessage
	if err := q.Order("created_at DESC, id DESC").Offset((page - 1) * size).Limit(size).Find(&items).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50092, "failed to load messages")
		return
	}
	utils.Success(ctx, paginated(items, page, size, total))
}

// UpdateStatus opens or closes a message.
func (m *MessageController) UpdateStatus(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40093, "invalid message id")
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40090, "invalid request payload")
		return
	}
	if req.Status != models.MessageStatusOpen && req.Status != models.MessageStatusClosed {
		utils.Error(ctx, http.StatusBadRequest, 40094, "status must be open or closed")
		return
	}
	var msg models.ContactMessage
	if err := m.db.First(&msg, id).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40490, "message not found")
		return
	}
	if err := m.db.Model(&msg).Update("status", req.Status).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50093, "failed to update message")
		return
	}
	msg.Status = req.Status
	utils.Success(ctx, msg)
}
