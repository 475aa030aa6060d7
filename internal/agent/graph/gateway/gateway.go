// Package gateway wraps one completion call: messages and tool declarations
// in, plain text or a single tool call out.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/triage-assist/server/internal/agent/model"
	errx "github.com/triage-assist/server/internal/core/error"
	logx "github.com/triage-assist/server/pkg/logger"
)

// Gateway is the completion service as seen by the interview graph.
type Gateway interface {
	Invoke(ctx context.Context, msgs []*schema.Message, tools []*schema.ToolInfo) (*Reply, error)
	ModelName() string
}

// Content is the reply body, either PlainText or StructuredBlocks.
type Content interface {
	isContent()
}

type PlainText string

// StructuredBlocks is a sequence of typed content parts.
type StructuredBlocks []Block

type Block struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
}

func (PlainText) isContent()        {}
func (StructuredBlocks) isContent() {}

// ToolCall is the first tool invocation found in a reply.
type ToolCall struct {
	ID   string
	Name string
	Args string
}

type Reply struct {
	Content  Content
	ToolCall *ToolCall
	Usage    *schema.TokenUsage
	// Message is the assistant message as returned, for the transcript.
	Message *schema.Message
}

// Text extracts the reply text: plain text as is, otherwise the first block
// carrying text, otherwise the whole envelope stringified.
func (r *Reply) Text() string {
	if r == nil {
		return ""
	}
	return ExtractText(r.Content)
}

func ExtractText(c Content) string {
	switch v := c.(type) {
	case PlainText:
		return string(v)
	case StructuredBlocks:
		for _, b := range v {
			if b.Text != "" {
				return b.Text
			}
		}
		if len(v) == 0 {
			return ""
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint([]Block(v))
		}
		return string(raw)
	}
	return ""
}

// FromMessage converts an eino assistant message into a Reply.
func FromMessage(msg *schema.Message) *Reply {
	r := &Reply{Message: msg, Content: PlainText("")}
	if msg == nil {
		return r
	}
	if msg.Content == "" && len(msg.MultiContent) > 0 {
		blocks := make(StructuredBlocks, 0, len(msg.MultiContent))
		for _, part := range msg.MultiContent {
			b := Block{Type: string(part.Type), Text: part.Text}
			if part.ImageURL != nil {
				b.URL = part.ImageURL.URL
			}
			blocks = append(blocks, b)
		}
		r.Content = blocks
	} else {
		r.Content = PlainText(msg.Content)
	}
	for _, tc := range msg.ToolCalls {
		if strings.TrimSpace(tc.Function.Name) == "" {
			continue
		}
		r.ToolCall = &ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: tc.Function.Arguments}
		break
	}
	if msg.ResponseMeta != nil {
		r.Usage = msg.ResponseMeta.Usage
	}
	return r
}

// UsageRecorder receives one observation per completion call.
type UsageRecorder interface {
	ObserveModelCall(modelName, outcome string, elapsed time.Duration, usage *schema.TokenUsage, costUSD float64)
}

// RetryConfig bounds each call. Zero values mean one attempt and no timeout.
type RetryConfig struct {
	MaxAttempts int
	Timeout     time.Duration
	Backoff     time.Duration
}

func RetryFromLLMConfig(c model.LLMConfig) RetryConfig {
	return RetryConfig{MaxAttempts: c.MaxAttempts, Timeout: c.Timeout, Backoff: 500 * time.Millisecond}
}

type callFunc func(ctx context.Context) (*Reply, error)

// invoke runs call under the retry policy, logs usage and cost, and maps
// failures to errx.ErrModelGateway.
func invoke(ctx context.Context, modelName string, rc RetryConfig, rec UsageRecorder, call callFunc) (*Reply, error) {
	attempts := max(rc.MaxAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if rc.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, rc.Timeout)
		}
		start := time.Now()
		reply, err := call(callCtx)
		cancel()
		elapsed := time.Since(start)

		if err == nil {
			observe(modelName, "ok", elapsed, reply.Usage, rec)
			return reply, nil
		}
		lastErr = err
		observe(modelName, "error", elapsed, nil, rec)
		logx.Warn().Err(err).
			Str("model", modelName).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Dur("elapsed", elapsed).
			Msg("Model call failed")

		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			break
		}
		if attempt < attempts && rc.Backoff > 0 {
			select {
			case <-ctx.Done():
				return nil, errx.ModelGateway(ctx.Err())
			case <-time.After(rc.Backoff * time.Duration(attempt)):
			}
		}
	}
	return nil, errx.ModelGateway(lastErr)
}

func observe(modelName, outcome string, elapsed time.Duration, usage *schema.TokenUsage, rec UsageRecorder) {
	var total float64
	if usage != nil {
		cost := model.PricingFor(modelName).Cost(usage)
		total = cost.Total()
		logx.Debug().
			Str("model", modelName).
			Int("prompt_tokens", usage.PromptTokens).
			Int("completion_tokens", usage.CompletionTokens).
			Int("total_tokens", usage.TotalTokens).
			Float64("input_cost_usd", cost.Input).
			Float64("output_cost_usd", cost.Output).
			Float64("total_cost_usd", total).
			Msg("LLM usage")
	}
	if rec != nil {
		rec.ObserveModelCall(modelName, outcome, elapsed, usage, total)
	}
}
