package main

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/threadboard/server/config"
	"github.com/threadboard/server/models"
	"github.com/threadboard/server/routes"
	"github.com/threadboard/server/services"
	"github.com/threadboard/server/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	db := config.InitDatabase(models.All()...)
	defer utils.CloseRedis(context.Background())

	hub := utils.NewLiveHub(originChecker(cfg.AllowedOrigins))
	utils.OnShutdown(hub.Close)

	replies := services.NewReplyService(db, hub, cfg.MaxReplyDepth, cfg.ReplyPageSize)

	r := routes.SetupRouter(routes.Deps{
		DB:       db,
		Replies:  replies,
		Hub:      hub,
		Notifier: utils.NewNotifier(cfg),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	utils.StartUploadCleaner(ctx, db, 5*time.Minute, func() bool {
		return config.Get().UploadsSelfDestructEnabled
	})
	utils.OnShutdown(func(context.Context) { cancel() })

	utils.Sugar.Infof("Starting server on port %s (graceful), max reply depth %d", cfg.AppPort, cfg.MaxReplyDepth)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}

// originChecker applies the CORS allow list to websocket upgrades.
func originChecker(allowed []string) func(*http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			return nil
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, o := range allowed {
			if strings.EqualFold(strings.TrimRight(o, "/"), u.Scheme+"://"+u.Host) {
				return true
			}
		}
		return false
	}
}
