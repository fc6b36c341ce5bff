package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"StrategyRadar/pkg/api"
	"StrategyRadar/pkg/app"
	"StrategyRadar/pkg/auth"
	"StrategyRadar/pkg/config"
	"StrategyRadar/pkg/logger"
)

func main() {
	// 加载配置
	cfg, err := config.LoadConfig(config.GetDefaultConfigPath())
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("启动API服务...", zap.String("env", cfg.App.Env))

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.Auth.JWTSecret == "" {
		log.Warn("未配置AUTH_JWT_SECRET，所有需要鉴权的请求都会返回401")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("初始化依赖失败", zap.Error(err))
	}
	defer deps.Close()

	verifier := auth.JWT{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Audience: cfg.Auth.Audience,
		Issuer:   cfg.Auth.Issuer,
	}
	handlers := api.NewHandlers(deps.Scans, deps.Repo, deps.Monitor, cfg.API.ScanTimeout, log)

	server := api.NewServer(api.ServerConfig{
		Port:         cfg.API.Port,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}, log)
	server.SetupRoutes(handlers, verifier)

	if err := server.Start(ctx); err != nil {
		log.Error("API服务异常退出", zap.Error(err))
	}
}
