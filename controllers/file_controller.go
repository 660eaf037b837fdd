package controllers

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/threadboard/server/config"
	"github.com/threadboard/server/middleware"
	"github.com/threadboard/server/models"
	"github.com/threadboard/server/utils"
)

const maxUploadSize = 50 * 1024 * 1024

// FileController stores attachments on local disk and tracks them for ownership and expiry.
type FileController struct {
	db *gorm.DB
}

// NewFileController creates a FileController.
func NewFileController(db *gorm.DB) *FileController {
	return &FileController{db: db}
}

func fileKind(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return "image"
	case strings.HasPrefix(contentType, "video/"):
		return "video"
	case strings.HasPrefix(contentType, "audio/"):
		return "audio"
	case contentType == "application/pdf", strings.HasPrefix(contentType, "text/"):
		return "document"
	}
	return "other"
}

// Upload accepts a multipart "file" (or "f") field up to 50MB.
func (f *FileController) Upload(ctx *gin.Context) {
	actor := middleware.CurrentActor(ctx)
	if err := actor.CanWrite(); err != nil {
		respondServiceError(ctx, err, 50130, "failed to upload file")
		return
	}

	file, header, err := ctx.Request.FormFile("file")
	if err != nil {
		file, header, err = ctx.Request.FormFile("f")
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40130, "no file uploaded")
			return
		}
	}
	defer file.Close()
	if header.Size > maxUploadSize {
		utils.Error(ctx, http.StatusBadRequest, 40131, "file size exceeds 50MB")
		return
	}

	cfg := config.Get()
	now := time.Now()
	datePath := now.Format("2006/01/02")
	baseDir := filepath.Join(cfg.UploadDir, filepath.FromSlash(datePath))
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50131, "failed to create upload directory")
		return
	}

	key := strings.ReplaceAll(uuid.NewString(), "-", "")
	ext := strings.ToLower(filepath.Ext(filepath.Base(header.Filename)))
	if len(ext) > 10 {
		ext = ""
	}
	name := key + ext
	dstPath := filepath.Join(baseDir, name)

	out, err := os.Create(dstPath)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50132, "failed to save file")
		return
	}
	sniff := make([]byte, 512)
	n, _ := io.ReadFull(file, sniff)
	contentType := http.DetectContentType(sniff[:n])
	written, err := io.Copy(out, io.LimitReader(io.MultiReader(bytes.NewReader(sniff[:n]), file), maxUploadSize+1))
	_ = out.Close()
	if err != nil {
		_ = os.Remove(dstPath)
		utils.Error(ctx, http.StatusInternalServerError, 50133, "failed to write file")
		return
	}
	if written > maxUploadSize {
		_ = os.Remove(dstPath)
		utils.Error(ctx, http.StatusBadRequest, 40131, "file size exceeds 50MB")
		return
	}

	rec := models.UploadedFile{
		Key:         key,
		UserID:      actor.UserID,
		FilePath:    dstPath,
		URL:         path.Join("/static/uploads", datePath, name),
		Size:        written,
		ContentType: contentType,
		Kind:        fileKind(contentType),
	}
	if cfg.UploadsSelfDestructEnabled {
		exp := now.Add(time.Duration(cfg.UploadsSelfDestructMinutes) * time.Minute)
		rec.ExpireAt = &exp
	}
	if err := f.db.Create(&rec).Error; err != nil {
		_ = os.Remove(dstPath)
		utils.Error(ctx, http.StatusInternalServerError, 50134, "failed to record file")
		return
	}
	utils.Logger.Info("file uploaded", zap.String("key", key), zap.Uint("user_id", actor.UserID), zap.Int64("size", written))
	utils.Created(ctx, rec)
}

// Delete removes an upload by key. Owners and admins only.
func (f *FileController) Delete(ctx *gin.Context) {
	actor := middleware.CurrentActor(ctx)
	key := strings.TrimSpace(ctx.Param("key"))
	var rec models.UploadedFile
	if key == "" || f.db.Where(&models.UploadedFile{Key: key}).First(&rec).Error != nil {
		utils.Error(ctx, http.StatusNotFound, 40430, "file not found")
		return
	}
	if !actor.OwnsOrAdmin(rec.UserID) {
		utils.Error(ctx, http.StatusForbidden, 40330, "not allowed to delete this file")
		return
	}
	if err := os.Remove(rec.FilePath); err != nil && !os.IsNotExist(err) {
		utils.Logger.Warn("remove upload failed", zap.String("key", key), zap.Error(err))
	}
	if err := f.db.Delete(&rec).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50135, "failed to delete file")
		return
	}
	utils.Success(ctx, gin.H{"message": fmt.Sprintf("file %s deleted", key)})
}
