package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/byefat/backend/internal/service"
)

const streamHeartbeat = 25 * time.Second

type GramsRequest struct {
	Grams float64 `json:"grams" binding:"required,gt=0"`
}

// DayResponse is a day snapshot plus the drift found when the caller asked
// for reconciliation.
type DayResponse struct {
	*service.DaySnapshot
	Drift *service.Drift `json:"drift,omitempty"`
}

// LogHandler serves the per-day food and activity log.
type LogHandler struct {
	logs       service.ILogService
	reconciler service.IReconciler
	notifier   service.Notifier
	log        *zap.Logger
}

func NewLogHandler(logs service.ILogService, reconciler service.IReconciler, notifier service.Notifier, log *zap.Logger) *LogHandler {
	return &LogHandler{logs: logs, reconciler: reconciler, notifier: notifier, log: handlerLog(log)}
}

func (h *LogHandler) RegisterRoutes(router gin.IRouter) {
	logs := router.Group("/logs/:date")
	{
		logs.GET("", h.GetDay)
		logs.GET("/stream", h.StreamDay)
		logs.POST("/foods", h.AddFood)
		logs.PATCH("/foods/:id", h.UpdateFood)
		logs.DELETE("/foods/:id", h.DeleteFood)
		logs.POST("/activities", h.AddActivity)
		logs.PATCH("/activities/:id", h.UpdateActivity)
		logs.DELETE("/activities/:id", h.DeleteActivity)
	}
}

// location reads the client's IANA zone from ?tz for meal grouping.
func location(c *gin.Context) *time.Location {
	if tz := c.Query("tz"); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return time.Local
}

func (h *LogHandler) GetDay(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	date := c.Param("date")

	var drift *service.Drift
	if c.Query("reconcile") == "true" && h.reconciler != nil {
		d, err := h.reconciler.ReconcileDay(ctx, userID, date, true)
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		drift = d
	}

	snap, err := h.logs.GetDay(ctx, userID, date, location(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, DayResponse{DaySnapshot: snap, Drift: drift})
}

// StreamDay pushes a fresh snapshot as a server-sent event whenever the day
// changes. The first event is sent immediately.
func (h *LogHandler) StreamDay(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	date, err := service.NormalizeDate(c.Param("date"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	loc := location(c)

	snap, err := h.logs.GetDay(ctx, userID, date, loc)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	changes, cancel, err := h.notifier.Subscribe(ctx, userID, date)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("snapshot", snap)
	c.Writer.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		case change, open := <-changes:
			if !open {
				return false
			}
			snap, err := h.logs.GetDay(ctx, userID, date, loc)
			if err != nil {
				h.log.Warn("failed to refresh streamed day",
					zap.String("user_id", userID),
					zap.String("date", date),
					zap.String("kind", change.Kind),
					zap.Error(err),
				)
				c.SSEvent("error", gin.H{"error": "failed to refresh day"})
				return true
			}
			c.SSEvent("snapshot", snap)
			return true
		}
	})
}

func (h *LogHandler) AddFood(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req service.FoodInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	item, err := h.logs.AddFood(c.Request.Context(), userID, c.Param("date"), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *LogHandler) UpdateFood(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item ID"})
		return
	}

	var req GramsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	item, err := h.logs.UpdateFoodGrams(c.Request.Context(), userID, c.Param("date"), id, req.Grams)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *LogHandler) DeleteFood(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item ID"})
		return
	}

	if err := h.logs.DeleteFood(c.Request.Context(), userID, c.Param("date"), id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *LogHandler) AddActivity(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req service.ActivityInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	item, err := h.logs.AddActivity(c.Request.Context(), userID, c.Param("date"), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *LogHandler) UpdateActivity(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item ID"})
		return
	}

	var req service.ActivityInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	item, err := h.logs.UpdateActivity(c.Request.Context(), userID, c.Param("date"), id, req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *LogHandler) DeleteActivity(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item ID"})
		return
	}

	if err := h.logs.DeleteActivity(c.Request.Context(), userID, c.Param("date"), id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
