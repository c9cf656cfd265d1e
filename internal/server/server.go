package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/byefat/backend/config"
	"github.com/byefat/backend/internal/database"
	"github.com/byefat/backend/internal/jobs"
	"github.com/byefat/backend/internal/logger"
	"github.com/byefat/backend/internal/middleware"
	"github.com/byefat/backend/internal/provider/openfoodfacts"
	"github.com/byefat/backend/internal/router"
	"github.com/byefat/backend/internal/service"
)

// Server represents the HTTP server and the background workers it owns.
type Server struct {
	cfg        *config.Config
	log        *zap.Logger
	db         *gorm.DB
	redis      *redis.Client
	dispatcher *service.Dispatcher
	scheduler  *jobs.Scheduler
	router     *gin.Engine
	http       *http.Server
}

// New connects to storage and wires every service. Redis is optional
// outside production; without it changes are fanned out in-process, barcode
// lookups are not cached and AI calls are not rate limited.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Server, error) {
	if cfg.Environment.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Open(cfg, log)
	if err != nil {
		return nil, err
	}
	if !cfg.Environment.IsProduction() {
		if err := database.Migrate(db); err != nil {
			return nil, err
		}
	}

	var rdb *redis.Client
	if cfg.RedisEnabled() {
		rdb, err = database.NewRedisClient(cfg, log)
		if err != nil {
			if cfg.Environment.IsProduction() {
				return nil, err
			}
			log.Warn("continuing without redis", zap.Error(err))
			rdb = nil
		}
	}

	var notifier service.Notifier
	var limiter *middleware.RateLimiter
	if rdb != nil {
		notifier = service.NewRedisNotifier(rdb, log)
		limiter = middleware.NewAIRateLimiter(rdb, cfg.AIRateLimit, cfg.AIRateWindow, log.Named("ratelimit"))
	} else {
		notifier = service.NewLocalNotifier()
	}

	validator, auth, err := identity(ctx, cfg, db)
	if err != nil {
		return nil, err
	}

	var images service.ImageStore
	s3cfg, err := config.NewS3Config(ctx, cfg)
	if err != nil {
		log.Warn("scan image storage disabled", zap.Error(err))
	} else if s3cfg != nil {
		images = s3cfg
	}
	if cfg.GeminiAPIKey == "" {
		log.Warn("GEMINI_API_KEY is not set; AI estimation endpoints will answer 503")
	}
	gemini := service.NewGeminiService(service.GeminiConfig{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		BaseURL: cfg.GeminiAPIURL,
	}, images, log)

	reporter := logger.NewPermissionReporter(log)
	dispatcher := service.NewDispatcher(service.DefaultDispatcherConfig(), log, reporter)
	ledger := service.NewXPLedger(db, log)
	reconciler := service.NewReconciler(db, notifier, log)
	profiles := service.NewProfileService(db, notifier, log)
	products := service.NewProductService(db, log)
	off := &openfoodfacts.Client{BaseURL: cfg.OpenFoodFactsURL}

	scheduler := jobs.NewScheduler(log)
	if err := scheduler.AddReconcile(cfg.ReconcileSchedule, reconciler, cfg.ReconcileDays, 5*time.Minute); err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", cfg.ReconcileSchedule, err)
	}

	engine := router.SetupRouter(router.Deps{
		DB:              db,
		Log:             log,
		CORSOrigins:     cfg.CORSOrigins,
		ShowDiagnostics: !cfg.Environment.IsProduction(),
		Auth:            auth,
		Validator:       validator,
		Profiles:        profiles,
		Logs:            service.NewLogService(db, ledger, dispatcher, notifier, log).WithReporter(reporter),
		Reconciler:      reconciler,
		Notifier:        notifier,
		Weights:         service.NewWeightService(db, notifier, log),
		Progress:        service.NewProgressService(db),
		Products:        products,
		Barcodes:        service.NewBarcodeService(db, off, rdb, log),
		Portions:        gemini,
		Images:          gemini,
		AILimiter:       limiter,
		Reporter:        reporter,
	})

	return &Server{
		cfg:        cfg,
		log:        log,
		db:         db,
		redis:      rdb,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		router:     engine,
		http: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// identity picks the token validator for the configured provider. The JWT
// provider also serves the register and login routes.
func identity(ctx context.Context, cfg *config.Config, db *gorm.DB) (service.TokenValidator, service.IAuthService, error) {
	switch cfg.AuthProvider {
	case config.AuthProviderFirebase:
		v, err := service.NewFirebaseVerifier(ctx, cfg.FirebaseCredentialsFile, cfg.FirebaseCredentialsJSON)
		if err != nil {
			return nil, nil, err
		}
		return v, nil, nil
	default:
		auth := service.NewAuthService(db, cfg.JWTSecret, cfg.JWTTTL)
		return auth, auth, nil
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.scheduler.Start()
	s.log.Info("starting server", zap.String("addr", s.http.Addr), zap.String("env", string(s.cfg.Environment)))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, drains pending xp writes and closes
// storage.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.scheduler.Stop(ctx)
	s.dispatcher.Close()

	if s.redis != nil {
		if cerr := s.redis.Close(); cerr != nil {
			s.log.Warn("failed to close redis", zap.Error(cerr))
		}
	}
	if sqlDB, derr := s.db.DB(); derr == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			s.log.Warn("failed to close database", zap.Error(cerr))
		}
	}
	return err
}
