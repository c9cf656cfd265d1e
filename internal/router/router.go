package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/byefat/backend/internal/api"
	"github.com/byefat/backend/internal/logger"
	"github.com/byefat/backend/internal/middleware"
	"github.com/byefat/backend/internal/service"
)

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	DB              *gorm.DB
	Log             *zap.Logger
	CORSOrigins     []string
	ShowDiagnostics bool

	// Auth is nil when identities come from an external provider.
	Auth      service.IAuthService
	Validator service.TokenValidator

	Profiles   service.IProfileService
	Logs       service.ILogService
	Reconciler service.IReconciler
	Notifier   service.Notifier
	Weights    service.IWeightService
	Progress   service.IProgressService
	Products   service.IProductService
	Barcodes   service.IBarcodeService
	Portions   service.PortionEstimator
	Images     service.ImageEstimator

	// AILimiter is nil without redis.
	AILimiter *middleware.RateLimiter

	// Reporter receives permission denials surfaced by handlers.
	Reporter logger.PermissionReporter
}

// SetupRouter configures the application routes
func SetupRouter(d Deps) *gin.Engine {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()
	router.Use(middleware.ErrorHandler(log, d.ShowDiagnostics))
	router.Use(middleware.RequestLogger(log.Named("http")))
	router.Use(middleware.CORS(d.CORSOrigins))
	if d.Reporter != nil {
		router.Use(middleware.WithReporter(d.Reporter))
	}

	health := api.NewHealthHandler(d.DB)
	health.RegisterRoutes(router)

	v1 := router.Group("/api/v1")
	health.RegisterRoutes(v1)

	if d.Auth != nil {
		api.NewAuthHandler(d.Auth, log).RegisterRoutes(v1)
	}

	protected := v1.Group("")
	protected.Use(middleware.AuthMiddleware(d.Validator, d.Profiles, log.Named("auth")))
	{
		api.NewProfileHandler(d.Profiles, d.Products, log).RegisterRoutes(protected)
		api.NewLogHandler(d.Logs, d.Reconciler, d.Notifier, log).RegisterRoutes(protected)
		api.NewWeightHandler(d.Weights, log).RegisterRoutes(protected)
		api.NewProgressHandler(d.Progress, log).RegisterRoutes(protected)
		api.NewProductHandler(d.Products, log).RegisterRoutes(protected)
		api.NewBarcodeHandler(d.Barcodes, log).RegisterRoutes(protected)
		api.NewAIHandler(d.Portions, d.Images, d.AILimiter, log).RegisterRoutes(protected)
	}

	return router
}
