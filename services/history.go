package services

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/threadboard/server/models"
)

// RecordView upserts the (user, post) history row, bumping its count and timestamp.
func RecordView(ctx context.Context, db *gorm.DB, userID, postID uint, at time.Time) error {
	if userID == 0 || postID == 0 {
		return nil
	}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "post_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"view_count": gorm.Expr("view_count + 1"),
			"viewed_at":  at,
		}),
	}).Create(&models.ViewHistory{UserID: userID, PostID: postID, ViewCount: 1, ViewedAt: at}).Error
	return errors.Wrap(err, "record view")
}
