package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/byefat/backend/internal/models"
	"github.com/byefat/backend/internal/service"
)

// BiometricsRequest updates biometrics as of Date (today when empty).
type BiometricsRequest struct {
	service.Biometrics
	Date string `json:"date"`
}

type BiometricsResponse struct {
	Profile *models.UserProfile `json:"profile"`
	Targets service.Targets     `json:"targets"`
}

type UsernameRequest struct {
	Username string `json:"username" binding:"required"`
}

type ProfileResponse struct {
	Profile *models.UserProfile   `json:"profile"`
	Level   service.LevelProgress `json:"level"`
}

type ProfileHandler struct {
	profiles service.IProfileService
	products service.IProductService
	log      *zap.Logger
}

func NewProfileHandler(profiles service.IProfileService, products service.IProductService, log *zap.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, products: products, log: handlerLog(log)}
}

func (h *ProfileHandler) RegisterRoutes(router gin.IRouter) {
	profile := router.Group("/profile")
	{
		profile.GET("", h.GetProfile)
		profile.PUT("", h.UpdateProfile)
		profile.PUT("/biometrics", h.UpdateBiometrics)
		profile.PUT("/username", h.ClaimUsername)
		profile.GET("/level", h.GetLevel)
	}
	router.GET("/users/:username/products", h.ListUserProducts)
}

func (h *ProfileHandler) GetProfile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	profile, err := h.profiles.GetProfile(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, ProfileResponse{
		Profile: profile,
		Level:   service.DefaultLevelEngine.Progress(profile.XP),
	})
}

func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req service.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	profile, err := h.profiles.UpdateProfile(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *ProfileHandler) UpdateBiometrics(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req BiometricsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	profile, targets, err := h.profiles.UpdateBiometrics(c.Request.Context(), userID, req.Date, req.Biometrics)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, BiometricsResponse{Profile: profile, Targets: targets})
}

func (h *ProfileHandler) ClaimUsername(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req UsernameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	profile, err := h.profiles.ClaimUsername(c.Request.Context(), userID, req.Username)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *ProfileHandler) GetLevel(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	level, err := h.profiles.GetLevel(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, level)
}

func (h *ProfileHandler) ListUserProducts(c *gin.Context) {
	products, err := h.products.ListByCreator(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, products)
}
