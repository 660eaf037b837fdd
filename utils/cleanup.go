package utils

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/threadboard/server/models"
)

// PurgeExpiredUploads removes up to limit uploads whose ExpireAt has passed, file first then row.
// It returns how many rows were removed.
func PurgeExpiredUploads(db *gorm.DB, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []models.UploadedFile
	if err := db.Where("expire_at IS NOT NULL AND expire_at <= ?", now).Limit(limit).Find(&items).Error; err != nil {
		return 0, err
	}
	removed := 0
	for _, it := range items {
		if it.FilePath != "" {
			if err := os.Remove(it.FilePath); err != nil && !os.IsNotExist(err) {
				Logger.Warn("upload cleaner remove file failed", zap.String("key", it.Key), zap.Error(err))
			}
		}
		if err := db.Delete(&models.UploadedFile{}, it.ID).Error; err != nil {
			Logger.Warn("upload cleaner delete row failed", zap.Uint("id", it.ID), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

// StartUploadCleaner periodically purges expired uploads until ctx is done.
func StartUploadCleaner(ctx context.Context, db *gorm.DB, interval time.Duration, enabled func() bool) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				if enabled != nil && !enabled() {
					continue
				}
				n, err := PurgeExpiredUploads(db, now, 100)
				if err != nil {
					Logger.Error("upload cleaner query failed", zap.Error(err))
					continue
				}
				if n > 0 {
					Logger.Info("expired uploads purged", zap.Int("count", n))
				}
			}
		}
	}()
}
