package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/byefat/backend/internal/models"
	"github.com/byefat/backend/internal/service"
)

const (
	userIDKey   = "user_id"
	identityKey = "identity"
)

// ProfileEnsurer creates the profile of a first-time caller.
type ProfileEnsurer interface {
	EnsureProfile(ctx context.Context, id service.Identity) (*models.UserProfile, error)
}

// AuthMiddleware validates the bearer token and makes sure the caller has a
// profile before any handler runs.
func AuthMiddleware(validator service.TokenValidator, profiles ProfileEnsurer, log *zap.Logger) gin.HandlerFunc {
	known := newProfileCache(profileCacheTTL, profileCacheSize)

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}

		id, err := validator.ValidateToken(c.Request.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		if profiles != nil {
			if !known.fresh(id.UserID) {
				if _, err := profiles.EnsureProfile(c.Request.Context(), *id); err != nil {
					log.Error("failed to ensure profile", zap.String("user_id", id.UserID), zap.Error(err))
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
					return
				}
				known.mark(id.UserID)
			}
		}

		c.Set(userIDKey, id.UserID)
		c.Set(identityKey, *id)
		c.Next()
	}
}

// UserID returns the authenticated caller set by AuthMiddleware.
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
