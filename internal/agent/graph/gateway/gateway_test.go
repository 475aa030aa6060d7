package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	errx "github.com/triage-assist/server/internal/core/error"
)

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []string
	cost     float64
}

func (r *fakeRecorder) ObserveModelCall(_, outcome string, _ time.Duration, _ *schema.TokenUsage, cost float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
	r.cost += cost
}

func TestExtractText(t *testing.T) {
	assert.Equal(t, "hi", ExtractText(PlainText("hi")))
	assert.Equal(t, "second", ExtractText(StructuredBlocks{{Type: "image_url", URL: "u"}, {Type: "text", Text: "second"}}))
	assert.JSONEq(t, `[{"type":"image_url","url":"u"}]`, ExtractText(StructuredBlocks{{Type: "image_url", URL: "u"}}))
	assert.Equal(t, "", ExtractText(nil))
}

func TestFromMessage(t *testing.T) {
	msg := ToolCallMessage("c1", "ask_user_for_input", `{"query":"q"}`)
	msg.ToolCalls = append([]schema.ToolCall{{ID: "empty"}}, msg.ToolCalls...)
	msg.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{PromptTokens: 3}}

	r := FromMessage(msg)
	require.NotNil(t, r.ToolCall)
	assert.Equal(t, "c1", r.ToolCall.ID)
	assert.Equal(t, "ask_user_for_input", r.ToolCall.Name)
	assert.Equal(t, 3, r.Usage.PromptTokens)
	assert.Equal(t, PlainText(""), r.Content)

	blocks := FromMessage(&schema.Message{Role: schema.Assistant, MultiContent: []schema.ChatMessagePart{{Type: schema.ChatMessagePartTypeText, Text: "body"}}})
	assert.Equal(t, "body", blocks.Text())
	assert.Nil(t, blocks.ToolCall)
}

func TestEinoGatewayPassesToolsAndRecordsUsage(t *testing.T) {
	reply := schema.AssistantMessage("done", nil)
	reply.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{PromptTokens: 1_000_000, CompletionTokens: 0}}
	chat := NewScriptedModel(Sequence(reply))
	rec := &fakeRecorder{}
	g := NewEinoGateway(chat, "gemini-2.5-flash", WithRecorder(rec))

	tools := []*schema.ToolInfo{{Name: "signal_diagnosis_complete"}}
	r, err := g.Invoke(context.Background(), []*schema.Message{schema.UserMessage("x")}, tools)
	require.NoError(t, err)
	assert.Equal(t, "done", r.Text())

	calls := chat.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Tools, 1)
	assert.Equal(t, "signal_diagnosis_complete", calls[0].Tools[0].Name)
	assert.Equal(t, []string{"ok"}, rec.outcomes)
	assert.InDelta(t, 0.30, rec.cost, 1e-9)
}

func TestEinoGatewayRetries(t *testing.T) {
	attempts := 0
	chat := NewScriptedModel(func(context.Context, []*schema.Message, []*schema.ToolInfo) (*schema.Message, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("transient")
		}
		return schema.AssistantMessage("ok", nil), nil
	})
	rec := &fakeRecorder{}
	g := NewEinoGateway(chat, "m", WithRetry(RetryConfig{MaxAttempts: 2}), WithRecorder(rec))

	r, err := g.Invoke(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", r.Text())
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []string{"error", "ok"}, rec.outcomes)
}

func TestEinoGatewayGivesUp(t *testing.T) {
	chat := NewScriptedModel(func(context.Context, []*schema.Message, []*schema.ToolInfo) (*schema.Message, error) {
		return nil, errors.New("provider down")
	})
	g := NewEinoGateway(chat, "m", WithRetry(RetryConfig{MaxAttempts: 3}))

	_, err := g.Invoke(context.Background(), nil, nil)
	require.ErrorIs(t, err, errx.ErrModelGateway)
	assert.Equal(t, http.StatusBadGateway, errx.Status(err))
	assert.NotContains(t, errx.PublicMessage(err), "provider down")
	assert.Len(t, chat.Calls(), 3)
}

func TestEinoGatewayTimeout(t *testing.T) {
	chat := NewScriptedModel(func(ctx context.Context, _ []*schema.Message, _ []*schema.ToolInfo) (*schema.Message, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	g := NewEinoGateway(chat, "m", WithRetry(RetryConfig{MaxAttempts: 1, Timeout: 10 * time.Millisecond}))

	_, err := g.Invoke(context.Background(), nil, nil)
	require.ErrorIs(t, err, errx.ErrModelGateway)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOpenAIGateway(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "tool_calls",
				"message": map[string]any{
					"role":    "assistant",
					"content": "",
					"tool_calls": []map[string]any{{
						"id":       "call_1",
						"type":     "function",
						"function": map[string]any{"name": "ask_user_for_input", "arguments": `{"query":"When?"}`},
					}},
				},
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	defer srv.Close()

	g, err := NewOpenAIGateway(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "gpt-4o-mini"}, RetryConfig{}, nil)
	require.NoError(t, err)

	info := &schema.ToolInfo{
		Name: "ask_user_for_input",
		Desc: "ask",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {Type: schema.String, Required: true},
		}),
	}
	msgs := []*schema.Message{
		schema.SystemMessage("sys"),
		schema.UserMessage("hello"),
		ToolCallMessage("c0", "query_medical_history", `{"field_path":"a"}`),
		schema.ToolMessage("result", "c0"),
	}
	r, err := g.Invoke(context.Background(), msgs, []*schema.ToolInfo{info})
	require.NoError(t, err)
	require.NotNil(t, r.ToolCall)
	assert.Equal(t, "ask_user_for_input", r.ToolCall.Name)
	assert.Equal(t, `{"query":"When?"}`, r.ToolCall.Args)
	assert.Equal(t, 15, r.Usage.TotalTokens)

	req := gjson.ParseBytes(body)
	assert.Equal(t, "gpt-4o-mini", req.Get("model").String())
	assert.Equal(t, "tool", req.Get("messages.3.role").String())
	assert.Equal(t, "c0", req.Get("messages.3.tool_call_id").String())
	assert.Equal(t, "query_medical_history", req.Get("messages.2.tool_calls.0.function.name").String())
	assert.Equal(t, "ask_user_for_input", req.Get("tools.0.function.name").String())
	assert.Equal(t, "string", req.Get("tools.0.function.parameters.properties.query.type").String())
}

func TestNewOpenAIGatewayValidates(t *testing.T) {
	_, err := NewOpenAIGateway(OpenAIConfig{Model: "m"}, RetryConfig{}, nil)
	require.Error(t, err)
	_, err = NewOpenAIGateway(OpenAIConfig{APIKey: "k"}, RetryConfig{}, nil)
	require.Error(t, err)
}

func TestDemoModel(t *testing.T) {
	m := DemoModel()
	ctx := context.Background()
	ask := []*schema.ToolInfo{{Name: demoAskTool}}

	out, err := m.Generate(ctx, []*schema.Message{schema.SystemMessage("s")})
	require.NoError(t, err)
	assert.Contains(t, out.Content, "differential_diagnosis")

	g := NewEinoGateway(m, "demo")
	r, err := g.Invoke(ctx, []*schema.Message{
		schema.AssistantMessage("Can you help me understand: When?", nil),
		schema.UserMessage("today"),
	}, ask)
	require.NoError(t, err)
	require.NotNil(t, r.ToolCall)
	assert.Contains(t, r.ToolCall.Args, "How severe")
}
