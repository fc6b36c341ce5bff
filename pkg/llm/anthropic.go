package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicMaxTokens = 1024
	jsonOnlyInstruction       = "Respond with a single JSON object and nothing else."
)

// AnthropicClient Anthropic消息接口客户端
type AnthropicClient struct {
	client    anthropic.Client
	modelName string
	maxTokens int64
}

// NewAnthropicClient 创建Anthropic客户端
func NewAnthropicClient(cfg Config) *AnthropicClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if base := strings.TrimSpace(cfg.APIURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &AnthropicClient{
		client:    anthropic.NewClient(opts...),
		modelName: cfg.ModelName,
		maxTokens: cfg.MaxTokens,
	}
}

// Complete 发送消息请求；该接口无JSON模式，JSONMode时追加指令并从文本中提取JSON对象
func (c *AnthropicClient) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	var system []string
	turns := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if opts.JSONMode {
		system = append(system, jsonOnlyInstruction)
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.modelName),
		MaxTokens:   firstPositive(opts.MaxTokens, c.maxTokens, defaultAnthropicMaxTokens),
		Messages:    turns,
		Temperature: anthropic.Float(opts.Temperature),
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("发送请求失败: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	if opts.JSONMode {
		if obj, ok := ExtractJSONObject(text); ok {
			return obj, nil
		}
	}
	return text, nil
}
