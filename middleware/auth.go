package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/threadboard/server/config"
	"github.com/threadboard/server/models"
	"github.com/threadboard/server/services"
	"github.com/threadboard/server/utils"
)

const (
	// ContextUserKey holds the loaded *models.User of an authenticated request.
	ContextUserKey = "user"
	// ContextActorKey holds the services.Actor derived from that user.
	ContextActorKey = "actor"
	// ContextClaimsKey holds the parsed token claims, used by logout.
	ContextClaimsKey = "claims"
)

// bearerToken reads the Authorization header. Browsers cannot set headers on
// websocket upgrades, so an access_token query parameter is accepted as well.
func bearerToken(ctx *gin.Context) (string, int, string) {
	header := ctx.GetHeader("Authorization")
	if header == "" {
		if q := strings.TrimSpace(ctx.Query("access_token")); q != "" {
			return q, 0, ""
		}
		return "", 40101, "authorization header missing"
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", 40102, "invalid authorization header format"
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", 40103, "empty bearer token"
	}
	return token, 0, ""
}

// authenticate resolves the token to a live user row. code is 0 on success.
func authenticate(db *gorm.DB, token string) (*models.User, *utils.Claims, int, string) {
	claims, err := utils.ParseToken(token)
	if err != nil {
		return nil, nil, 40105, "invalid token"
	}
	if utils.IsTokenBlacklisted(claims.ID) {
		return nil, nil, 40104, "token revoked"
	}
	var user models.User
	if err := db.First(&user, claims.UserID).Error; err != nil {
		return nil, nil, 40106, "user no longer exists"
	}
	if user.Banned {
		return nil, nil, 40301, "account is banned"
	}
	return &user, claims, 0, ""
}

func attach(ctx *gin.Context, user *models.User, claims *utils.Claims) {
	ctx.Set(ContextUserKey, user)
	ctx.Set(ContextClaimsKey, claims)
	ctx.Set(ContextActorKey, services.ActorFromUser(user, config.Get().AdminUsernames))
}

// AuthRequired ensures the request carries a valid token for an existing, non-banned user.
func AuthRequired(db *gorm.DB) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token, code, msg := bearerToken(ctx)
		if code != 0 {
			utils.Error(ctx, http.StatusUnauthorized, code, msg)
			return
		}
		user, claims, code, msg := authenticate(db, token)
		if code != 0 {
			status := http.StatusUnauthorized
			if code == 40301 {
				status = http.StatusForbidden
			}
			utils.Error(ctx, status, code, msg)
			return
		}
		attach(ctx, user, claims)
		ctx.Next()
	}
}

// AuthOptional attaches the user when a valid token is present and lets anonymous requests through.
func AuthOptional(db *gorm.DB) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if token, code, _ := bearerToken(ctx); code == 0 {
			if user, claims, code, _ := authenticate(db, token); code == 0 {
				attach(ctx, user, claims)
			}
		}
		ctx.Next()
	}
}

// AdminRequired must run after AuthRequired.
func AdminRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !CurrentActor(ctx).Admin {
			utils.Error(ctx, http.StatusForbidden, 40300, "admin privileges required")
			return
		}
		ctx.Next()
	}
}

// CurrentActor returns the request's actor, the anonymous actor when unauthenticated.
func CurrentActor(ctx *gin.Context) services.Actor {
	if v, ok := ctx.Get(ContextActorKey); ok {
		if a, ok := v.(services.Actor); ok {
			return a
		}
	}
	return services.Actor{}
}

// CurrentUser returns the authenticated user row, nil for anonymous requests.
func CurrentUser(ctx *gin.Context) *models.User {
	if v, ok := ctx.Get(ContextUserKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}

// CurrentClaims returns the parsed token claims of an authenticated request.
func CurrentClaims(ctx *gin.Context) *utils.Claims {
	if v, ok := ctx.Get(ContextClaimsKey); ok {
		if c, ok := v.(*utils.Claims); ok {
			return c
		}
	}
	return nil
}
