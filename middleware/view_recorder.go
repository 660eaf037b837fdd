package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/threadboard/server/services"
	"github.com/threadboard/server/utils"
)

// ViewRecorder adds the post in the :id path parameter to the signed in user's history
// once the wrapped handler has served it successfully.
func ViewRecorder(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method != http.MethodGet || c.Writer.Status() != http.StatusOK {
			return
		}
		user := CurrentUser(c)
		if user == nil {
			return
		}
		postID, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := services.RecordView(ctx, db, user.ID, uint(postID), time.Now()); err != nil {
			utils.Logger.Warn("view history upsert failed", zap.Uint("user_id", user.ID), zap.Error(err))
		}
	}
}
