package gateway

import (
	"context"
	"fmt"
	"sync"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// RespondFunc produces the next assistant message for a call.
type RespondFunc func(ctx context.Context, msgs []*schema.Message, tools []*schema.ToolInfo) (*schema.Message, error)

// Call is one recorded Generate invocation.
type Call struct {
	Messages []*schema.Message
	Tools    []*schema.ToolInfo
}

// ScriptedModel is an eino chat model driven by a function. It backs the
// offline mode of the CLI and the graph tests.
type ScriptedModel struct {
	respond RespondFunc

	mu    sync.Mutex
	calls []Call
}

func NewScriptedModel(respond RespondFunc) *ScriptedModel {
	return &ScriptedModel{respond: respond}
}

// Sequence replies with msgs in order and fails once they run out.
func Sequence(msgs ...*schema.Message) RespondFunc {
	var mu sync.Mutex
	i := 0
	return func(context.Context, []*schema.Message, []*schema.ToolInfo) (*schema.Message, error) {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(msgs) {
			return nil, fmt.Errorf("scripted model: no reply left after %d calls", i)
		}
		m := msgs[i]
		i++
		return m, nil
	}
}

func (m *ScriptedModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	options := einomodel.GetCommonOptions(&einomodel.Options{}, opts...)
	m.mu.Lock()
	m.calls = append(m.calls, Call{Messages: input, Tools: options.Tools})
	m.mu.Unlock()
	return m.respond(ctx, input, options.Tools)
}

func (m *ScriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	out, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{out}), nil
}

// Calls returns the recorded invocations.
func (m *ScriptedModel) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// ToolCallMessage builds an assistant message invoking one tool.
func ToolCallMessage(id, name, args string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       id,
		Type:     "function",
		Function: schema.FunctionCall{Name: name, Arguments: args},
	}})
}

var _ einomodel.BaseChatModel = (*ScriptedModel)(nil)
