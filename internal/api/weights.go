package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/byefat/backend/internal/service"
)

type WeightRequest struct {
	Weight float64 `json:"weight" binding:"required,gt=0"`
}

type WeightHandler struct {
	weights service.IWeightService
	log     *zap.Logger
}

func NewWeightHandler(weights service.IWeightService, log *zap.Logger) *WeightHandler {
	return &WeightHandler{weights: weights, log: handlerLog(log)}
}

func (h *WeightHandler) RegisterRoutes(router gin.IRouter) {
	weights := router.Group("/weights")
	{
		weights.GET("", h.List)
		weights.GET("/stats", h.Stats)
		weights.PUT("/:date", h.Upsert)
		weights.DELETE("/:date", h.Delete)
	}
}

func (h *WeightHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	entries, err := h.weights.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *WeightHandler) Stats(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	stats, err := h.weights.Stats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *WeightHandler) Upsert(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req WeightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	entry, err := h.weights.Upsert(c.Request.Context(), userID, c.Param("date"), req.Weight)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *WeightHandler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.weights.Delete(c.Request.Context(), userID, c.Param("date")); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
