package gateway

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"

	"github.com/triage-assist/server/internal/agent/model"
	logx "github.com/triage-assist/server/pkg/logger"
)

// GeminiConfig holds the configuration for chat model creation
type GeminiConfig struct {
	APIKey    string
	BaseURL   string
	Interview *model.InterviewModelConfig
	Diagnosis *model.DiagnosisModelConfig
}

// ChatModels holds both interview and diagnosis chat models
type ChatModels struct {
	Interview          *gemini.ChatModel
	Diagnosis          *gemini.ChatModel
	InterviewModelName string
	DiagnosisModelName string
}

// NewGeminiModels creates both chat models against one genai client.
func NewGeminiModels(ctx context.Context, config GeminiConfig) (*ChatModels, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}
	if config.Interview == nil || config.Diagnosis == nil {
		return nil, fmt.Errorf("gemini model configs are required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	interview, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.Interview.Model,
		Temperature: &config.Interview.Temperature,
		MaxTokens:   &config.Interview.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating interview model")
		return nil, fmt.Errorf("error creating interview model: %w", err)
	}

	// Thinking is enabled for diagnosis only
	diagnosis, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.Diagnosis.Model,
		Temperature: &config.Diagnosis.Temperature,
		MaxTokens:   &config.Diagnosis.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(int32(2000)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating diagnosis model")
		return nil, fmt.Errorf("error creating diagnosis model: %w", err)
	}

	return &ChatModels{
		Interview:          interview,
		Diagnosis:          diagnosis,
		InterviewModelName: config.Interview.Model,
		DiagnosisModelName: config.Diagnosis.Model,
	}, nil
}

// Gateways wraps both models for the interview graph.
func (cm *ChatModels) Gateways(opts ...Option) (interview, diagnosis Gateway) {
	opts = append([]Option{WithProvider("Gemini")}, opts...)
	return NewEinoGateway(cm.Interview, cm.InterviewModelName, opts...),
		NewEinoGateway(cm.Diagnosis, cm.DiagnosisModelName, opts...)
}
