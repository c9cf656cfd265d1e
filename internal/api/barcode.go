package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/byefat/backend/internal/service"
)

type BarcodeHandler struct {
	barcodes service.IBarcodeService
	log      *zap.Logger
}

func NewBarcodeHandler(barcodes service.IBarcodeService, log *zap.Logger) *BarcodeHandler {
	return &BarcodeHandler{barcodes: barcodes, log: handlerLog(log)}
}

func (h *BarcodeHandler) RegisterRoutes(router gin.IRouter) {
	barcode := router.Group("/barcode/:code")
	{
		barcode.GET("", h.Lookup)
		barcode.POST("/save", h.Save)
	}
}

func (h *BarcodeHandler) Lookup(c *gin.Context) {
	product, err := h.barcodes.Lookup(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// Save adds the scanned product to the catalog. An existing entry with the
// same barcode is returned with 200.
func (h *BarcodeHandler) Save(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	product, created, err := h.barcodes.SaveScanned(c.Request.Context(), userID, c.Param("code"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, product)
}
