package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/threadboard/server/config"
	"github.com/threadboard/server/controllers"
	"github.com/threadboard/server/middleware"
	"github.com/threadboard/server/services"
	"github.com/threadboard/server/utils"
)

// Deps carries the long-lived components the handlers share.
type Deps struct {
	DB       *gorm.DB
	Replies  *services.ReplyService
	Hub      *utils.LiveHub
	Notifier utils.Notifier
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(d Deps) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// access log goes to its own rolling file
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		r.Use(utils.RecoveryWithZap(utils.Logger, false))
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))
	r.Use(middleware.Metrics())

	r.Static("/static", "./static")

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	if cfg.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	db := d.DB
	authController := controllers.NewAuthController(db)
	userController := controllers.NewUserController(db)
	postController := controllers.NewPostController(db)
	replyController := controllers.NewReplyController(d.Replies)
	messageController := controllers.NewMessageController(db, d.Notifier)
	historyController := controllers.NewHistoryController(db)
	fileController := controllers.NewFileController(db)
	statsController := controllers.NewStatsController(db, d.Replies)
	liveController := controllers.NewLiveController(db, d.Hub)
	configController := controllers.NewConfigController(d.Replies)

	limit := middleware.RateLimit(cfg.RateLimitPerMinute)
	authRequired := middleware.AuthRequired(db)
	authOptional := middleware.AuthOptional(db)

	api := r.Group("/api/v1")
	api.GET("/config", configController.GetClientConfig)

	authGroup := api.Group("/auth")
	authGroup.Use(limit)
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/verify-email", authController.VerifyEmail)
	authGroup.POST("/resend-verification", authController.ResendVerification)
	authGroup.POST("/login", authController.Login)
	authGroup.GET("/captcha", authController.Captcha)
	authGroup.GET("/oauth/:provider", authController.OAuthRedirect)
	authGroup.GET("/oauth/:provider/callback", authController.OAuthCallback)
	authGroup.POST("/logout", authRequired, authController.Logout)

	api.GET("/users/me", authRequired, authController.Me)
	api.PUT("/users/me", authRequired, limit, authController.UpdateProfile)
	api.GET("/users/:id", authController.GetUserPublic)

	// Posts. Reads accept an optional token so owners and admins see non-public posts.
	api.GET("/posts", authOptional, postController.ListPosts)
	api.GET("/posts/:id", authOptional, middleware.ViewRecorder(db), postController.GetPost)
	api.GET("/posts/:id/replies", authOptional, replyController.ListReplies)
	api.GET("/posts/:id/stats", authOptional, statsController.GetPostStats)
	api.GET("/posts/:id/live", authOptional, liveController.Subscribe)
	api.GET("/stats", statsController.GetStats)
	api.POST("/messages", authOptional, limit, messageController.Submit)

	protected := api.Group("")
	protected.Use(authRequired, limit)

	protected.POST("/posts", postController.CreatePost)
	protected.PUT("/posts/:id", postController.UpdatePost)
	protected.PATCH("/posts/:id/status", postController.UpdateStatus)
	protected.POST("/posts/:id/publish", postController.PublishPost)
	protected.POST("/posts/:id/archive", postController.ArchivePost)
	protected.DELETE("/posts/:id", postController.DeletePost)
	protected.GET("/posts/user/me/drafts", postController.ListMyDrafts)
	protected.GET("/posts/user/me/published", postController.ListMyPublished)
	protected.GET("/posts/user/me/top", postController.ListMyTop)

	protected.POST("/posts/:id/replies", replyController.CreateReply)
	protected.POST("/replies/:id/sub", replyController.CreateSubReply)
	protected.DELETE("/replies/:id", replyController.DeleteReply)
	protected.DELETE("/replies/:id/nested", replyController.DeleteNestedReply)

	protected.GET("/history", historyController.List)
	protected.POST("/history/:postId", historyController.Record)
	protected.DELETE("/history/:postId", historyController.Delete)
	protected.DELETE("/history", historyController.Clear)

	protected.POST("/files/upload", fileController.Upload)
	protected.DELETE("/files/:key", fileController.Delete)

	admin := protected.Group("/admin")
	admin.Use(middleware.AdminRequired())
	admin.GET("/users", userController.ListUsers)
	admin.GET("/users/:id", userController.GetUser)
	admin.POST("/users/:id/ban", userController.BanUser)
	admin.POST("/users/:id/unban", userController.UnbanUser)
	admin.POST("/users/:id/promote", userController.PromoteUser)
	admin.POST("/users/:id/demote", userController.DemoteUser)
	admin.DELETE("/users/:id", userController.DeleteUser)
	admin.GET("/posts/banned", postController.ListBanned)
	admin.GET("/posts/deleted", postController.ListDeleted)
	admin.POST("/posts/:id/ban", postController.BanPost)
	admin.POST("/posts/:id/unban", postController.UnbanPost)
	admin.POST("/posts/:id/recover", postController.RecoverPost)
	admin.GET("/messages", messageController.List)
	admin.PATCH("/messages/:id/status", messageController.UpdateStatus)

	r.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/static/") {
			ctx.JSON(http.StatusNotFound, gin.H{"message": "static asset not found"})
			return
		}
		utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
	})

	return r
}
