package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"StrategyRadar/pkg/logger"
	"StrategyRadar/pkg/model"
)

// NotificationService 通过Webhook推送扫描结果和告警
type NotificationService struct {
	webhookURL string
	client     *http.Client
	logger     *zap.Logger
}

// NewNotificationService webhookURL为空时所有发送都是空操作
func NewNotificationService(webhookURL string, log *zap.Logger) *NotificationService {
	return &NotificationService{
		webhookURL: strings.TrimSpace(webhookURL),
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger.OrNop(log),
	}
}

// Enabled 是否配置了Webhook
func (ns *NotificationService) Enabled() bool {
	return ns != nil && ns.webhookURL != ""
}

// SendScanResult 推送有匹配结果的扫描
func (ns *NotificationService) SendScanResult(ctx context.Context, st *model.Strategy, result *model.ScanResult) error {
	if !ns.Enabled() || result == nil || result.MatchingSetupsCount == 0 {
		return nil
	}
	return ns.post(ctx, ns.formatScanMessage(st, result))
}

// SendAlert 推送组件告警，签名与monitor.AlertFunc一致
func (ns *NotificationService) SendAlert(component, status, message string) {
	if !ns.Enabled() {
		return
	}
	text := fmt.Sprintf("⚠️ 组件状态告警\n组件：%s\n状态：%s\n详情：%s", component, status, message)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ns.post(ctx, text); err != nil {
		ns.logger.Warn("发送告警失败", zap.String("component", component), zap.Error(err))
	}
}

// formatScanMessage 格式化扫描结果
func (ns *NotificationService) formatScanMessage(st *model.Strategy, result *model.ScanResult) string {
	var b strings.Builder
	name := st.Name
	if name == "" && st.AIParsed != nil {
		name = st.AIParsed.Name
	}
	fmt.Fprintf(&b, "📊 策略扫描：%s\n共扫描 %d 个组合，匹配 %d 个\n\n", name, result.TotalMarketsScanned, result.MatchingSetupsCount)

	for _, s := range result.MatchingSetups {
		fmt.Fprintf(&b, "• %s %s %s 入场 %s 止损 %s 止盈 %s 置信度 %d%%",
			s.Symbol, s.Timeframe, s.Direction, price(s.Entry), price(s.StopLoss), price(s.TakeProfit), s.Confidence)
		if s.Synthetic {
			b.WriteString("（模拟行情）")
		}
		b.WriteString("\n")
	}
	b.WriteString("\n💡 以上结果由模型生成，仅供参考。")
	return b.String()
}

func price(v float64) string {
	return fmt.Sprintf("%g", v)
}

type webhookPayload struct {
	Text string `json:"text"`
}

func (ns *NotificationService) post(ctx context.Context, text string) error {
	body, err := json.Marshal(webhookPayload{Text: text})
	if err != nil {
		return fmt.Errorf("序列化通知失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ns.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("构造通知请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ns.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送通知失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("通知接口返回 %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
