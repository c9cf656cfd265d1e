package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/byefat/backend/internal/middleware"
	"github.com/byefat/backend/internal/service"
)

type PortionRequest struct {
	Query string `json:"query" binding:"required"`
}

type ImageRequest struct {
	Image string `json:"image" binding:"required"`
}

// AIHandler exposes the nutrition estimators. limiter may be nil, in which
// case calls are not rate limited.
type AIHandler struct {
	portions service.PortionEstimator
	images   service.ImageEstimator
	limiter  *middleware.RateLimiter
	log      *zap.Logger
}

func NewAIHandler(portions service.PortionEstimator, images service.ImageEstimator, limiter *middleware.RateLimiter, log *zap.Logger) *AIHandler {
	return &AIHandler{portions: portions, images: images, limiter: limiter, log: handlerLog(log)}
}

func (h *AIHandler) RegisterRoutes(router gin.IRouter) {
	ai := router.Group("/ai")
	ai.GET("/quota", h.Quota)

	limited := ai.Group("")
	if h.limiter != nil {
		limited.Use(h.limiter.RateLimitMiddleware())
	}
	limited.POST("/portion", h.EstimatePortion)
	limited.POST("/image", h.AnalyzeImage)
}

func (h *AIHandler) EstimatePortion(c *gin.Context) {
	var req PortionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	est, err := h.portions.EstimatePortion(c.Request.Context(), req.Query)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, est)
}

func (h *AIHandler) AnalyzeImage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	est, err := h.images.AnalyzeImage(c.Request.Context(), userID, req.Image)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, est)
}

// Quota reports how many estimator calls remain in the current window.
func (h *AIHandler) Quota(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if h.limiter == nil {
		c.JSON(http.StatusOK, gin.H{"limited": false})
		return
	}

	remaining, reset, err := h.limiter.GetRemainingRequests(c.Request.Context(), userID)
	if err != nil {
		h.log.Warn("failed to read ai quota", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check rate limit"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"limited":    true,
		"limit":      h.limiter.Limit(),
		"remaining":  remaining,
		"reset_time": reset.Unix(),
	})
}
