package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"StrategyRadar/pkg/logger"
)

// ErrPermanent 处理器返回该错误时消息不再重投
var ErrPermanent = errors.New("消息无法处理")

// NATSClient NATS JetStream客户端
type NATSClient struct {
	conn      *nats.Conn
	jetStream jetstream.JetStream
	natsURL   string
	ctx       context.Context
	cancel    context.CancelFunc
	consumers map[string]jetstream.ConsumeContext // 消费者管理
	mu        sync.Mutex                          // 保护consumers和closed
	closed    bool
	wg        sync.WaitGroup
	logger    *zap.Logger
}

// MessageHandler 通用消息处理函数类型
type MessageHandler func(ctx context.Context, data []byte) error

// NewNATSClient 创建新的NATS客户端并确保Stream存在
func NewNATSClient(natsURL string, log *zap.Logger) (*NATSClient, error) {
	log = logger.OrNop(log).With(zap.String("component", "nats"))

	nc, err := nats.Connect(natsURL,
		nats.Name("strategy-radar"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1), // 无限重连
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS连接断开", zap.Error(err))
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("NATS重新连接成功")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("连接NATS失败: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("创建JetStream失败: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &NATSClient{
		conn:      nc,
		jetStream: js,
		natsURL:   natsURL,
		ctx:       ctx,
		cancel:    cancel,
		consumers: make(map[string]jetstream.ConsumeContext),
		logger:    log,
	}

	if err := client.setupStreams(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// setupStreams 创建或更新扫描相关的Stream
func (c *NATSClient) setupStreams() error {
	streams := []jetstream.StreamConfig{
		{
			Name:        StreamScans,
			Subjects:    []string{"scans.*"},
			Description: "策略扫描请求与结果",
			Retention:   jetstream.LimitsPolicy,
			MaxMsgs:     50000,
			MaxBytes:    100 * 1024 * 1024, // 100MB
			MaxAge:      7 * 24 * time.Hour,
		},
	}

	for _, streamConfig := range streams {
		ctx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
		_, err := c.jetStream.CreateOrUpdateStream(ctx, streamConfig)
		cancel()
		if err != nil {
			return fmt.Errorf("创建/更新Stream %s 失败: %w", streamConfig.Name, err)
		}
		c.logger.Info("Stream设置成功", zap.String("stream", streamConfig.Name))
	}
	return nil
}

// encodePayload []byte和string原样发送，其余类型序列化为JSON
func encodePayload(data any) ([]byte, error) {
	switch v := data.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		payload, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("序列化数据失败: %w", err)
		}
		return payload, nil
	}
}

// Publish 发布消息到指定主题
func (c *NATSClient) Publish(ctx context.Context, subject string, data any) error {
	payload, err := encodePayload(data)
	if err != nil {
		return err
	}

	if _, err := c.jetStream.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("发布消息到 %s 失败: %w", subject, err)
	}

	c.logger.Debug("发布消息", zap.String("subject", subject), zap.Int("bytes", len(payload)))
	return nil
}

// Subscribe 以持久消费者订阅指定主题
func (c *NATSClient) Subscribe(streamName, consumerName, filterSubject string, handler MessageHandler) error {
	consumerConfig := jetstream.ConsumerConfig{
		Durable:       consumerName,
		Description:   fmt.Sprintf("%s 消费者", consumerName),
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Minute, // 单次扫描可能耗时数分钟
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverNewPolicy,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}

	consumer, err := c.jetStream.CreateOrUpdateConsumer(c.ctx, streamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("创建消费者 %s 失败: %w", consumerName, err)
	}

	log := c.logger.With(zap.String("consumer", consumerName))
	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		if !c.track() {
			// 关闭中，交给其他消费者重投
			_ = msg.Nak()
			return
		}
		defer c.wg.Done()
		c.handleMessage(log, msg, handler)
	})
	if err != nil {
		return fmt.Errorf("启动消费者 %s 失败: %w", consumerName, err)
	}

	c.mu.Lock()
	c.consumers[consumerName] = cc
	c.mu.Unlock()

	log.Info("已订阅", zap.String("subject", filterSubject), zap.String("stream", streamName))
	return nil
}

// track 登记一个处理中的消息，客户端已关闭时返回false
func (c *NATSClient) track() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.wg.Add(1)
	return true
}

// handleMessage 调用处理器并确认消息
func (c *NATSClient) handleMessage(log *zap.Logger, msg jetstream.Msg, handler MessageHandler) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("消息处理panic", zap.Any("panic", r))
			_ = msg.Term()
		}
	}()

	err := handler(c.ctx, msg.Data())
	switch {
	case err == nil:
		_ = msg.Ack()
	case errors.Is(err, ErrPermanent):
		log.Warn("丢弃无法处理的消息", zap.String("subject", msg.Subject()), zap.Error(err))
		_ = msg.Term()
	default:
		log.Warn("处理消息失败，稍后重试", zap.String("subject", msg.Subject()), zap.Error(err))
		_ = msg.NakWithDelay(5 * time.Second)
	}
}

// IsConnected 检查连接状态
func (c *NATSClient) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Ping 连接断开时返回错误
func (c *NATSClient) Ping(ctx context.Context) error {
	if !c.IsConnected() {
		return fmt.Errorf("NATS未连接: %s", c.natsURL)
	}
	_, err := c.jetStream.Stream(ctx, StreamScans)
	return err
}

// Close 停止消费者并关闭连接
func (c *NATSClient) Close() error {
	c.logger.Info("正在关闭NATS连接...")

	c.mu.Lock()
	c.closed = true
	for name, cc := range c.consumers {
		cc.Stop()
		c.logger.Debug("已停止消费者", zap.String("consumer", name))
	}
	c.consumers = make(map[string]jetstream.ConsumeContext)
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	if c.conn != nil {
		if err := c.conn.Drain(); err != nil {
			c.conn.Close()
		}
	}
	c.logger.Info("NATS连接已关闭")
	return nil
}
