package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"StrategyRadar/pkg/engine"
	"StrategyRadar/pkg/logger"
	"StrategyRadar/pkg/model"
	"StrategyRadar/pkg/monitor"
	"StrategyRadar/pkg/repository"
)

// ScanRunner 执行一次策略扫描
type ScanRunner interface {
	ScanForUser(ctx context.Context, userID string, req model.ScanRequest, trigger string) (*model.ScanResult, error)
}

// Handlers API处理程序
type Handlers struct {
	scans       ScanRunner
	repository  repository.Repository
	monitor     *monitor.Monitor
	scanTimeout time.Duration
	logger      *zap.Logger
}

// NewHandlers 创建新的API处理程序，monitor可为nil
func NewHandlers(
	scans ScanRunner,
	repo repository.Repository,
	mon *monitor.Monitor,
	scanTimeout time.Duration,
	log *zap.Logger,
) *Handlers {
	return &Handlers{
		scans:       scans,
		repository:  repo,
		monitor:     mon,
		scanTimeout: scanTimeout,
		logger:      logger.OrNop(log),
	}
}

// HealthCheck 健康检查处理程序
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// ReadinessCheck 存储可用时才就绪
func (h *Handlers) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if err := h.repository.Ping(ctx); err != nil {
		if h.monitor != nil {
			h.monitor.UpdateStatus(engine.ComponentStore, monitor.StatusUnhealthy, err.Error())
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}

// Status 各组件健康状态
func (h *Handlers) Status(c *gin.Context) {
	if h.monitor == nil {
		c.JSON(http.StatusOK, gin.H{"status": monitor.StatusUnknown, "components": []monitor.HealthStatus{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     h.monitor.Overall(),
		"components": h.monitor.GetAllStatus(),
	})
}

// ScanStrategy 解析策略并扫描市场
func (h *Handlers) ScanStrategy(c *gin.Context) {
	var req model.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.StrategyID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameter: strategy_id"})
		return
	}
	req.StrategyID = strings.TrimSpace(req.StrategyID)

	ctx := c.Request.Context()
	if h.scanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.scanTimeout)
		defer cancel()
	}

	identity := currentIdentity(c)
	result, err := h.scans.ScanForUser(ctx, identity.UserID, req, engine.TriggerAPI)
	if err != nil {
		h.writeStrategyError(c, err, "Failed to scan strategy across markets",
			zap.String("strategy_id", req.StrategyID), zap.String("user_id", identity.UserID))
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListSetups 策略最近一次扫描得到的候选交易
func (h *Handlers) ListSetups(c *gin.Context) {
	id := c.Param("id")
	identity := currentIdentity(c)

	st, err := h.repository.GetStrategy(c.Request.Context(), id)
	if err == nil && !st.VisibleTo(identity.UserID) {
		err = engine.ErrAccessDenied
	}
	if err != nil {
		h.writeStrategyError(c, err, "Failed to load setups", zap.String("strategy_id", id))
		return
	}

	setups, err := h.repository.ListSetups(c.Request.Context(), id)
	if err != nil {
		h.writeStrategyError(c, err, "Failed to load setups", zap.String("strategy_id", id))
		return
	}
	if setups == nil {
		setups = []model.Setup{}
	}
	c.JSON(http.StatusOK, gin.H{
		"strategy_id": id,
		"count":       len(setups),
		"setups":      setups,
	})
}

// ListStrategies 当前用户可见的策略
func (h *Handlers) ListStrategies(c *gin.Context) {
	identity := currentIdentity(c)
	strategies, err := h.repository.ListVisibleStrategies(c.Request.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("查询策略失败", zap.String("user_id", identity.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load strategies"})
		return
	}
	if strategies == nil {
		strategies = []model.Strategy{}
	}
	c.JSON(http.StatusOK, gin.H{
		"count":      len(strategies),
		"strategies": strategies,
	})
}

// writeStrategyError 将查询/扫描错误映射为HTTP响应
func (h *Handlers) writeStrategyError(c *gin.Context, err error, internalMsg string, fields ...zap.Field) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Strategy not found"})
	case errors.Is(err, engine.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied to this strategy"})
	default:
		h.logger.Error(internalMsg, append(fields, zap.Error(err))...)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": internalMsg})
	}
}
