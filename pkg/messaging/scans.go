package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"StrategyRadar/pkg/model"
)

const (
	StreamScans          = "SCANS"
	SubjectScanRequested = "scans.requested"
	SubjectScanCompleted = "scans.completed"
)

// PublishScanCompleted 发布扫描完成事件
func (c *NATSClient) PublishScanCompleted(ctx context.Context, event model.ScanEvent) error {
	return c.Publish(ctx, SubjectScanCompleted, event)
}

// RequestScan 提交扫描请求，由engine服务异步执行
func (c *NATSClient) RequestScan(ctx context.Context, cmd model.ScanCommand) error {
	if _, err := encodeScanCommand(cmd); err != nil {
		return err
	}
	return c.Publish(ctx, SubjectScanRequested, cmd)
}

// SubscribeScanRequests 消费扫描请求。格式错误的消息直接丢弃
func (c *NATSClient) SubscribeScanRequests(consumerName string, handle func(context.Context, model.ScanCommand) error) error {
	return c.Subscribe(StreamScans, consumerName, SubjectScanRequested, func(ctx context.Context, data []byte) error {
		cmd, err := decodeScanCommand(data)
		if err != nil {
			return err
		}
		return handle(ctx, cmd)
	})
}

func encodeScanCommand(cmd model.ScanCommand) ([]byte, error) {
	if strings.TrimSpace(cmd.StrategyID) == "" || strings.TrimSpace(cmd.UserID) == "" {
		return nil, fmt.Errorf("%w: strategy_id和user_id不能为空", ErrPermanent)
	}
	return json.Marshal(cmd)
}

func decodeScanCommand(data []byte) (model.ScanCommand, error) {
	var cmd model.ScanCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return cmd, fmt.Errorf("%w: 解析扫描请求失败: %v", ErrPermanent, err)
	}
	cmd.StrategyID = strings.TrimSpace(cmd.StrategyID)
	cmd.UserID = strings.TrimSpace(cmd.UserID)
	if cmd.StrategyID == "" || cmd.UserID == "" {
		return cmd, fmt.Errorf("%w: strategy_id和user_id不能为空", ErrPermanent)
	}
	return cmd, nil
}
