// Package httpapi exposes the booking service over a JSON REST API.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/lessons/pkg/booking"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

const (
	claimsContextKey = "auth_claims"
	actorContextKey  = "booking_actor"
	shutdownTimeout  = 5 * time.Second
)

// Run serves the API until ctx is canceled, then shuts down gracefully.
func Run(ctx context.Context, cfg Config, service *booking.Service, logger *zap.Logger) error {
	router, err := NewRouter(cfg, service, logger)
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("lessond listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter wires routes, CORS and session validation.
func NewRouter(cfg Config, service *booking.Service, logger *zap.Logger) (*gin.Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if service == nil {
		return nil, fmt.Errorf("%w: booking service is nil", booking.ErrInvalidServiceConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	validator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return nil, fmt.Errorf("session validator: %w", err)
	}
	handler := &httpHandler{service: service, logger: logger, cfg: cfg}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(handler.requestTimeout)

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	public := router.Group("/api")
	public.GET("/availability/:instructorId", handler.handleGetAvailability)

	api := router.Group("/api")
	api.Use(validator.GinMiddleware(claimsContextKey))
	api.Use(handler.resolveActor)

	api.GET("/account", handler.handleAccount)
	api.POST("/availability", handler.handlePublishAvailability)
	api.POST("/lessons/schedule", handler.handleSchedule)
	api.GET("/lessons", handler.handleListLessons)
	api.GET("/lessons/instructor-summary", handler.handleInstructorSummary)
	api.GET("/lessons/student-summary", handler.handleStudentSummary)
	api.GET("/lessons/:id", handler.handleLessonAction(service.Lesson))
	api.PUT("/lessons/:id/approve", handler.handleLessonAction(service.Approve))
	api.PUT("/lessons/:id/confirm", handler.handleLessonAction(service.Confirm))
	api.DELETE("/lessons/:id", handler.handleLessonAction(service.Cancel))
	api.POST("/admin/accounts/:accountId/lessons", handler.handleGrantLessons)

	return router, nil
}

type httpHandler struct {
	service *booking.Service
	logger  *zap.Logger
	cfg     Config
}

func (handler *httpHandler) requestTimeout(ctx *gin.Context) {
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	ctx.Request = ctx.Request.WithContext(requestCtx)
	ctx.Next()
}
