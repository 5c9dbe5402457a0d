package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"moderation-service/internal/handler"
	"moderation-service/internal/middleware"
	"moderation-service/internal/models"
	"moderation-service/internal/service"
)

// Services are the moderation services exposed over HTTP.
type Services struct {
	Queue      *service.QueueService
	Assignment *service.AssignmentService
	Workflow   *service.WorkflowService
	Stats      *service.StatsService
}

type Server struct {
	router    *gin.Engine
	services  Services
	jwtSecret []byte
	logger    *zap.Logger
	accessLog *logrus.Logger
}

func NewServer(services Services, jwtSecret []byte, logger *zap.Logger, accessLog *logrus.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.AccessLog(accessLog))

	s := &Server{
		router:    router,
		services:  services,
		jwtSecret: jwtSecret,
		logger:    logger,
		accessLog: accessLog,
	}

	s.setupRoutes()

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	queueHandler := handler.NewQueueHandler(s.services.Queue, s.services.Assignment, s.services.Workflow, s.logger)
	moderatorHandler := handler.NewModeratorHandler(s.services.Queue, s.services.Stats, s.logger)
	adminHandler := handler.NewAdminHandler(s.services.Queue, s.services.Assignment, s.logger)

	// Ping route for health check
	s.router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	api := s.router.Group("/api")
	api.Use(middleware.AuthMiddleware(s.jwtSecret, s.logger))
	{
		queue := api.Group("/queue")
		queue.POST("/items", queueHandler.SubmitItem)
		queue.POST("/items/resubmit", queueHandler.ResubmitItem)
		queue.POST("/items/bulk-approve", queueHandler.BulkApprove)
		queue.GET("/items/:id", queueHandler.GetItem)
		queue.POST("/items/:id/claim", queueHandler.ClaimItem)
		queue.POST("/items/:id/release", queueHandler.ReleaseItem)
		queue.POST("/items/:id/decision", queueHandler.DecideItem)
		queue.POST("/next", queueHandler.NextItem)
		queue.GET("/stats", queueHandler.QueueStats)

		api.GET("/content/:type/:id/history", queueHandler.ContentHistory)

		api.GET("/moderators/me/stats", moderatorHandler.MyStats)
		api.PUT("/moderators/me/availability", moderatorHandler.SetAvailability)
		api.GET("/stats/orgs", moderatorHandler.OrgStats)

		admin := api.Group("/admin")
		admin.Use(middleware.RequireRole(models.RoleAdmin))
		admin.POST("/queue/items/:id/assign", adminHandler.AssignItem)
		admin.POST("/queue/items/:id/escalate", adminHandler.EscalateItem)
		admin.GET("/team/:user_id", adminHandler.GetTeamSetting)
		admin.PUT("/team/:user_id", adminHandler.UpsertTeamSetting)
		admin.POST("/team/:user_id/recompute-load", adminHandler.RecomputeLoad)
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("Server shutting down")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
