package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"StrategyRadar/pkg/auth"
	"StrategyRadar/pkg/logger"
	"StrategyRadar/pkg/metrics"
)

// Server API服务器
type Server struct {
	router *gin.Engine
	srv    *http.Server
	logger *zap.Logger
}

// ServerConfig HTTP服务参数
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewServer 创建新的API服务器
func NewServer(cfg ServerConfig, log *zap.Logger) *Server {
	log = logger.OrNop(log)

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(requestLogger(log), recovery(log))
	// 405不带响应体，且在鉴权之前返回
	router.NoMethod(func(c *gin.Context) {
		c.AbortWithStatus(http.StatusMethodNotAllowed)
	})
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{
		router: router,
		srv:    srv,
		logger: log,
	}
}

// Handler 返回路由，用于测试
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetupRoutes 设置路由
func (s *Server) SetupRoutes(handlers *Handlers, verifier auth.Verifier) {
	// 健康检查
	s.router.GET("/health", handlers.HealthCheck)
	s.router.GET("/ready", handlers.ReadinessCheck)
	s.router.GET("/status", handlers.Status)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// API v1 路由组
	v1 := s.router.Group("/api/v1")
	authed := authRequired(verifier)
	{
		// 策略扫描
		v1.POST("/ai-scan-strategy", authed, handlers.ScanStrategy)

		// 策略与扫描结果查询
		v1.GET("/strategies", authed, handlers.ListStrategies)
		v1.GET("/strategies/:id/setups", authed, handlers.ListSetups)
	}
}

// Start 启动服务器，ctx取消后优雅关闭
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API服务器启动", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.logger.Info("正在关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("服务器已关闭")
	return nil
}
