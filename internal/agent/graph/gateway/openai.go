package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/schema"
	openai "github.com/sashabaranov/go-openai"
)

type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
}

// OpenAIGateway talks to an OpenAI compatible chat completions endpoint.
type OpenAIGateway struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	retry       RetryConfig
	recorder    UsageRecorder
}

func NewOpenAIGateway(cfg OpenAIConfig, retry RetryConfig, rec UsageRecorder) (*OpenAIGateway, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is empty")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai model is empty")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIGateway{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		retry:       retry,
		recorder:    rec,
	}, nil
}

func (g *OpenAIGateway) ModelName() string {
	return g.model
}

func (g *OpenAIGateway) Invoke(ctx context.Context, msgs []*schema.Message, tools []*schema.ToolInfo) (*Reply, error) {
	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    toOpenAIMessages(msgs),
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	}
	for _, info := range tools {
		def, err := toOpenAITool(info)
		if err != nil {
			return nil, err
		}
		req.Tools = append(req.Tools, def)
	}

	return invoke(ctx, g.model, g.retry, g.recorder, func(ctx context.Context) (*Reply, error) {
		resp, err := g.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, errors.New("openai: empty choices")
		}
		msg := fromOpenAIMessage(resp.Choices[0].Message)
		msg.ResponseMeta = &schema.ResponseMeta{
			FinishReason: string(resp.Choices[0].FinishReason),
			Usage: &schema.TokenUsage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
		}
		return FromMessage(msg), nil
	})
}

func toOpenAIMessages(msgs []*schema.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		cm := openai.ChatCompletionMessage{Content: m.Content}
		switch m.Role {
		case schema.System:
			cm.Role = openai.ChatMessageRoleSystem
		case schema.Assistant:
			cm.Role = openai.ChatMessageRoleAssistant
			for _, tc := range m.ToolCalls {
				cm.ToolCalls = append(cm.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
		case schema.Tool:
			cm.Role = openai.ChatMessageRoleTool
			cm.ToolCallID = m.ToolCallID
		default:
			cm.Role = openai.ChatMessageRoleUser
		}
		out = append(out, cm)
	}
	return out
}

func toOpenAITool(info *schema.ToolInfo) (openai.Tool, error) {
	def := &openai.FunctionDefinition{Name: info.Name, Description: info.Desc}
	if info.ParamsOneOf != nil {
		params, err := info.ParamsOneOf.ToJSONSchema()
		if err != nil {
			return openai.Tool{}, fmt.Errorf("tool %s schema: %w", info.Name, err)
		}
		def.Parameters = params
	} else {
		def.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return openai.Tool{Type: openai.ToolTypeFunction, Function: def}, nil
}

func fromOpenAIMessage(m openai.ChatCompletionMessage) *schema.Message {
	msg := &schema.Message{Role: schema.Assistant, Content: m.Content}
	for _, part := range m.MultiContent {
		msg.MultiContent = append(msg.MultiContent, schema.ChatMessagePart{
			Type: schema.ChatMessagePartType(part.Type),
			Text: part.Text,
		})
	}
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, schema.ToolCall{
			ID:   tc.ID,
			Type: string(tc.Type),
			Function: schema.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return msg
}

var _ Gateway = (*OpenAIGateway)(nil)
