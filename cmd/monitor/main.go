package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"StrategyRadar/pkg/api"
	"StrategyRadar/pkg/config"
	"StrategyRadar/pkg/logger"
	"StrategyRadar/pkg/monitor"
)

// 监控服务：定期探测API和引擎的健康端点，状态变化时通过Webhook告警
func main() {
	apiURL := flag.String("api", "", "API服务地址，默认 http://localhost:<api.port>")
	engineURL := flag.String("engine", "", "引擎指标地址，默认 http://localhost<app.metrics_addr>")
	listen := flag.String("listen", ":8081", "监控服务监听地址")
	interval := flag.String("every", "30s", "探测间隔")
	flag.Parse()

	cfg, err := config.LoadConfig(config.GetDefaultConfigPath())
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if *apiURL == "" {
		*apiURL = "http://localhost:" + cfg.API.Port
	}
	if *engineURL == "" {
		*engineURL = "http://localhost" + cfg.App.MetricsAddr
		if !strings.HasPrefix(cfg.App.MetricsAddr, ":") {
			*engineURL = "http://" + cfg.App.MetricsAddr
		}
	}

	notifier := api.NewNotificationService(cfg.Notify.WebhookURL, log)
	mon := monitor.NewMonitor(notifier.SendAlert, log)
	mon.RegisterComponent("api-service", "api-store", "engine-service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	probe := func() {
		mon.CheckHTTPEndpoint(ctx, "api-service", *apiURL+"/health")
		mon.CheckHTTPEndpoint(ctx, "api-store", *apiURL+"/ready")
		mon.CheckHTTPEndpoint(ctx, "engine-service", *engineURL+"/metrics")
	}
	runner := cron.New()
	if _, err := runner.AddFunc("@every "+*interval, probe); err != nil {
		log.Fatal("探测间隔无效", zap.String("every", *interval), zap.Error(err))
	}
	probe()
	runner.Start()
	defer runner.Stop()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": mon.Overall(), "components": mon.GetAllStatus()})
	})

	srv := &http.Server{Addr: *listen, Handler: router}
	go func() {
		log.Info("监控服务启动", zap.String("addr", *listen), zap.String("api", *apiURL), zap.String("engine", *engineURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("启动HTTP服务器失败", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
