package monitor

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"StrategyRadar/pkg/logger"
)

// 组件状态
const (
	StatusUnknown   = "unknown"
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus 健康状态
type HealthStatus struct {
	Component   string    `json:"component"`
	Status      string    `json:"status"`
	LastChecked time.Time `json:"last_checked"`
	Message     string    `json:"message,omitempty"`
}

// AlertFunc 组件状态变为非健康时调用
type AlertFunc func(component, status, message string)

// Monitor 组件健康状态登记表
type Monitor struct {
	components map[string]*HealthStatus
	mutex      sync.RWMutex
	alertFunc  AlertFunc
	logger     *zap.Logger
	client     *http.Client
	now        func() time.Time
}

// NewMonitor 创建监控系统，alertFunc可为nil
func NewMonitor(alertFunc AlertFunc, log *zap.Logger) *Monitor {
	return &Monitor{
		components: make(map[string]*HealthStatus),
		alertFunc:  alertFunc,
		logger:     logger.OrNop(log),
		client:     &http.Client{Timeout: 5 * time.Second},
		now:        time.Now,
	}
}

// RegisterComponent 注册组件，已存在时不覆盖
func (m *Monitor) RegisterComponent(components ...string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, c := range components {
		if _, ok := m.components[c]; ok {
			continue
		}
		m.components[c] = &HealthStatus{
			Component:   c,
			Status:      StatusUnknown,
			LastChecked: m.now(),
		}
	}
}

// UpdateStatus 更新组件状态
func (m *Monitor) UpdateStatus(component, status, message string) {
	m.mutex.Lock()
	hs, exists := m.components[component]
	if !exists {
		hs = &HealthStatus{Component: component}
		m.components[component] = hs
	}
	oldStatus := hs.Status
	hs.Status = status
	hs.LastChecked = m.now()
	hs.Message = message
	m.mutex.Unlock()

	if oldStatus == status {
		return
	}
	m.logger.Info("组件状态变化",
		zap.String("component", component),
		zap.String("from", oldStatus),
		zap.String("to", status),
		zap.String("message", message))

	// 状态变为不健康时告警
	if status != StatusHealthy && m.alertFunc != nil {
		m.alertFunc(component, status, message)
	}
}

// GetStatus 获取组件状态
func (m *Monitor) GetStatus(component string) (HealthStatus, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if hs, exists := m.components[component]; exists {
		return *hs, true
	}
	return HealthStatus{}, false
}

// GetAllStatus 获取所有组件状态，按组件名排序
func (m *Monitor) GetAllStatus() []HealthStatus {
	m.mutex.RLock()
	statuses := make([]HealthStatus, 0, len(m.components))
	for _, hs := range m.components {
		statuses = append(statuses, *hs)
	}
	m.mutex.RUnlock()

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Component < statuses[j].Component })
	return statuses
}

var severity = map[string]int{StatusHealthy: 0, StatusUnknown: 1, StatusDegraded: 2, StatusUnhealthy: 3}

// Overall 所有组件中最差的状态，无组件时为healthy
func (m *Monitor) Overall() string {
	worst := StatusHealthy
	for _, hs := range m.GetAllStatus() {
		if severity[hs.Status] > severity[worst] {
			worst = hs.Status
		}
	}
	return worst
}

// Probe 执行检查函数并记录结果
func (m *Monitor) Probe(ctx context.Context, component string, check func(context.Context) error) {
	if err := check(ctx); err != nil {
		m.UpdateStatus(component, StatusUnhealthy, err.Error())
		return
	}
	m.UpdateStatus(component, StatusHealthy, "")
}

// CheckHTTPEndpoint 检查HTTP端点健康状态
func (m *Monitor) CheckHTTPEndpoint(ctx context.Context, component, url string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		m.UpdateStatus(component, StatusUnhealthy, fmt.Sprintf("构造请求失败: %v", err))
		return
	}
	resp, err := m.client.Do(req)
	if err != nil {
		m.UpdateStatus(component, StatusUnhealthy, fmt.Sprintf("HTTP请求失败: %v", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		m.UpdateStatus(component, StatusDegraded, fmt.Sprintf("HTTP状态码非200: %d", resp.StatusCode))
		return
	}
	m.UpdateStatus(component, StatusHealthy, "")
}
