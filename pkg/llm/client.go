package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"StrategyRadar/pkg/metrics"
)

// Message 表示对话中的一条消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CompletionOptions 单次补全请求的参数
type CompletionOptions struct {
	JSONMode    bool
	Temperature float64
	MaxTokens   int64
}

// Completer 大模型补全服务
type Completer interface {
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error)
}

var (
	ErrEmptyResponse = errors.New("大模型返回空响应")
	ErrNotConfigured = errors.New("大模型未配置")
)

// Config 大模型客户端配置
type Config struct {
	Provider  string
	APIURL    string
	APIKey    string
	ModelName string
	MaxTokens int64
	// Temperature 大于0时覆盖调用方传入的采样温度
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
}

// NewClient 按提供方创建大模型客户端
func NewClient(cfg Config) (Completer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: 缺少模型名称", ErrNotConfigured)
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "", "openai", "openai-compatible", "deepseek":
		return &instrumented{provider: "openai", temperature: cfg.Temperature, next: NewOpenAIClient(cfg)}, nil
	case "anthropic", "claude":
		return &instrumented{provider: "anthropic", temperature: cfg.Temperature, next: NewAnthropicClient(cfg)}, nil
	default:
		return nil, fmt.Errorf("不支持的大模型提供方: %s", cfg.Provider)
	}
}

// Disabled 未配置大模型时使用，所有请求返回ErrNotConfigured
type Disabled struct{}

func (Disabled) Complete(context.Context, []Message, CompletionOptions) (string, error) {
	return "", ErrNotConfigured
}

type instrumented struct {
	provider    string
	temperature float64
	next        Completer
}

func (c *instrumented) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	if c.temperature > 0 {
		opts.Temperature = c.temperature
	}
	start := time.Now()
	out, err := c.next.Complete(ctx, messages, opts)
	metrics.LLMLatency.WithLabelValues(c.provider).Observe(time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.LLMRequestsTotal.WithLabelValues(c.provider, status).Inc()
	return out, err
}

// Conversation 构建系统提示+用户提示的消息列表
func Conversation(systemPrompt, userPrompt string) []Message {
	messages := make([]Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: systemPrompt})
	}
	return append(messages, Message{Role: RoleUser, Content: userPrompt})
}
