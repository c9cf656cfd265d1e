package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/byefat/backend/internal/service"
)

type ProgressHandler struct {
	progress service.IProgressService
	log      *zap.Logger
}

func NewProgressHandler(progress service.IProgressService, log *zap.Logger) *ProgressHandler {
	return &ProgressHandler{progress: progress, log: handlerLog(log)}
}

func (h *ProgressHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/progress", h.Report)
}

// Report serves the chart and deficit summary for ?from and ?to.
func (h *ProgressHandler) Report(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	report, err := h.progress.Report(c.Request.Context(), userID, c.Query("from"), c.Query("to"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
