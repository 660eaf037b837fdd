package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/threadboard/server/middleware"
	"github.com/threadboard/server/models"
	"github.com/threadboard/server/utils"
)

// UserController exposes user administration.
type UserController struct {
	db *gorm.DB
}

// NewUserController creates a UserController.
func NewUserController(db *gorm.DB) *UserController {
	return &UserController{db: db}
}

// ListUsers pages through accounts, optionally filtered by type, banned flag or a username/email search.
func (u *UserController) ListUsers(ctx *gin.Context) {
	page, size := parsePagination(ctx)
	q := u.db.Model(&models.User{})
	if t := strings.TrimSpace(ctx.Query("type")); t != "" {
		q = q.Where("type = ?", t)
	}
	switch ctx.Query("banned") {
	case "true", "1":
		q = q.Where("banned = ?", true)
	case "false", "0":
		q = q.Where("banned = ?", false)
	}
	if s := strings.TrimSpace(ctx.Query("q")); s != "" {
		like := "%" + s + "%"
		q = q.Where("username LIKE ? OR email LIKE ?", like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50070, "failed to count users")
		return
	}
	var users []models.User
	if err := q.Order("id DESC").Offset((page - 1) * size).Limit(size).Find(&users).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50071, "failed to load users")
		return
	}
	items := make([]gin.H, 0, len(users))
	for _, usr := range users {
		h := userResponse(usr)
		h["banned"] = usr.Banned
		items = append(items, h)
	}
	utils.Success(ctx, paginated(items, page, size, total))
}

func (u *UserController) target(ctx *gin.Context) (*models.User, bool) {
	id, ok := paramID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40050, "invalid user id")
		return nil, false
	}
	var user models.User
	if err := u.db.First(&user, id).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
		return nil, false
	}
	return &user, true
}

// GetUser returns the full admin view of one account.
func (u *UserController) GetUser(ctx *gin.Context) {
	user, ok := u.target(ctx)
	if !ok {
		return
	}
	h := userResponse(*user)
	h["banned"] = user.Banned
	h["register_ip"] = user.RegisterIP
	var posts int64
	u.db.Model(&models.Post{}).Where("user_id = ? AND status <> ?", user.ID, models.PostStatusDeleted).Count(&posts)
	var replies int64
	u.db.Model(&models.Reply{}).Where("user_id = ?", user.ID).Count(&replies)
	h["post_count"] = posts
	h["reply_count"] = replies
	utils.Success(ctx, h)
}

// guard rejects actions on oneself and on accounts the caller does not outrank.
func (u *UserController) guard(ctx *gin.Context, target *models.User) bool {
	me := middleware.CurrentUser(ctx)
	if me == nil {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return false
	}
	if me.ID == target.ID {
		utils.Error(ctx, http.StatusBadRequest, 40051, "cannot perform this action on yourself")
		return false
	}
	if target.Type == models.UserTypeSuperAdmin {
		utils.Error(ctx, http.StatusForbidden, 40320, "super admins cannot be modified")
		return false
	}
	if target.IsAdmin() && me.Type != models.UserTypeSuperAdmin {
		utils.Error(ctx, http.StatusForbidden, 40321, "only super admins may modify admins")
		return false
	}
	return true
}

func (u *UserController) setBanned(ctx *gin.Context, banned bool) {
	user, ok := u.target(ctx)
	if !ok || !u.guard(ctx, user) {
		return
	}
	if err := u.db.Model(user).Update("banned", banned).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50072, "failed to update user")
		return
	}
	utils.Logger.Info("user ban changed", zap.Uint("user_id", user.ID), zap.Bool("banned", banned),
		zap.Uint("by", middleware.CurrentUser(ctx).ID))
	user.Banned = banned
	h := userResponse(*user)
	h["banned"] = banned
	utils.Success(ctx, h)
}

// BanUser blocks the account from signing in and writing.
func (u *UserController) BanUser(ctx *gin.Context) { u.setBanned(ctx, true) }

// UnbanUser lifts a ban.
func (u *UserController) UnbanUser(ctx *gin.Context) { u.setBanned(ctx, false) }

// PromoteUser turns a verified user into an admin.
func (u *UserController) PromoteUser(ctx *gin.Context) {
	user, ok := u.target(ctx)
	if !ok || !u.guard(ctx, user) {
		return
	}
	if user.Type != models.UserTypeUser {
		utils.Error(ctx, http.StatusConflict, 40930, "only verified regular users can be promoted")
		return
	}
	if err := u.db.Model(user).Update("type", models.UserTypeAdmin).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50072, "failed to update user")
		return
	}
	user.Type = models.UserTypeAdmin
	utils.Success(ctx, userResponse(*user))
}

// DemoteUser turns an admin back into a regular user. Only super admins may demote.
func (u *UserController) DemoteUser(ctx *gin.Context) {
	user, ok := u.target(ctx)
	if !ok || !u.guard(ctx, user) {
		return
	}
	if user.Type != models.UserTypeAdmin {
		utils.Error(ctx, http.StatusConflict, 40931, "user is not an admin")
		return
	}
	if err := u.db.Model(user).Update("type", models.UserTypeUser).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50072, "failed to update user")
		return
	}
	user.Type = models.UserTypeUser
	utils.Success(ctx, userResponse(*user))
}

// DeleteUser soft-deletes the account. Content stays in place and keeps its author id.
func (u *UserController) DeleteUser(ctx *gin.Context) {
	user, ok := u.target(ctx)
	if !ok || !u.guard(ctx, user) {
		return
	}
	if err := u.db.Delete(user).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50073, "failed to delete user")
		return
	}
	utils.InvalidateByPrefix(utils.CachePrefixStats)
	utils.Success(ctx, gin.H{"message": "user deleted"})
}
