package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/threadboard/server/config"
	"github.com/threadboard/server/services"
	"github.com/threadboard/server/utils"
)

// ConfigController serves the environment-driven settings the web client needs to render forms.
// Reply limits come from the running service, which has already applied defaults.
type ConfigController struct {
	replies *services.ReplyService
}

func NewConfigController(replies *services.ReplyService) *ConfigController {
	return &ConfigController{replies: replies}
}

// GetClientConfig returns reply tree limits, upload rules and which sign-in options are available.
func (c *ConfigController) GetClientConfig(ctx *gin.Context) {
	cfg := config.Get()
	providers := []string{}
	if cfg.GitHubClientID != "" && cfg.GitHubClientSecret != "" {
		providers = append(providers, "github")
	}
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		providers = append(providers, "google")
	}
	uploadTTL := 0
	if cfg.UploadsSelfDestructEnabled {
		uploadTTL = cfg.UploadsSelfDestructMinutes
	}
	utils.Success(ctx, gin.H{
		"replies": gin.H{
			"max_depth": c.replies.MaxDepth(),
			"page_size": c.replies.PageSize(),
		},
		"uploads": gin.H{
			"max_bytes":      maxUploadSize,
			"expire_minutes": uploadTTL,
		},
		"register": gin.H{
			"captcha_enabled": cfg.RegisterCaptchaEnabled,
		},
		"oauth_providers": providers,
	})
}
