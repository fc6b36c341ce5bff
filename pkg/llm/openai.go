package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// OpenAIClient OpenAI及兼容接口的客户端
type OpenAIClient struct {
	client    openai.Client
	modelName string
	maxTokens int64
}

// NewOpenAIClient 创建OpenAI客户端
func NewOpenAIClient(cfg Config) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if base := openAIBaseURL(cfg.APIURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &OpenAIClient{
		client:    openai.NewClient(opts...),
		modelName: cfg.ModelName,
		maxTokens: cfg.MaxTokens,
	}
}

// openAIBaseURL 兼容填写完整接口地址的旧配置
func openAIBaseURL(apiURL string) string {
	u := strings.TrimSpace(apiURL)
	u = strings.TrimSuffix(u, "/")
	return strings.TrimSuffix(u, "/chat/completions")
}

// Complete 发送聊天请求并获取响应
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.modelName),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(opts.Temperature),
	}
	if limit := firstPositive(opts.MaxTokens, c.maxTokens); limit > 0 {
		params.MaxTokens = openai.Int(limit)
	}
	if opts.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("发送请求失败: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func firstPositive(vals ...int64) int64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
