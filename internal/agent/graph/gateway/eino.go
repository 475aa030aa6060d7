package gateway

import (
	"context"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EinoGateway adapts any eino chat model.
type EinoGateway struct {
	chat     einomodel.BaseChatModel
	name     string
	provider string
	retry    RetryConfig
	recorder UsageRecorder
}

type Option func(*EinoGateway)

func WithRetry(rc RetryConfig) Option {
	return func(g *EinoGateway) { g.retry = rc }
}

func WithRecorder(rec UsageRecorder) Option {
	return func(g *EinoGateway) { g.recorder = rec }
}

// WithProvider sets the component type reported to callbacks.
func WithProvider(p string) Option {
	return func(g *EinoGateway) { g.provider = p }
}

func NewEinoGateway(chat einomodel.BaseChatModel, modelName string, opts ...Option) *EinoGateway {
	g := &EinoGateway{chat: chat, name: modelName, provider: "ChatModel"}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *EinoGateway) ModelName() string {
	return g.name
}

func (g *EinoGateway) Invoke(ctx context.Context, msgs []*schema.Message, tools []*schema.ToolInfo) (*Reply, error) {
	// the call happens inside a lambda node, so report it as a chat model run
	ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
		Name:      g.name,
		Type:      g.provider,
		Component: components.ComponentOfChatModel,
	})
	var opts []einomodel.Option
	if len(tools) > 0 {
		opts = append(opts, einomodel.WithTools(tools))
	}
	return invoke(ctx, g.name, g.retry, g.recorder, func(ctx context.Context) (*Reply, error) {
		out, err := g.chat.Generate(ctx, msgs, opts...)
		if err != nil {
			return nil, err
		}
		return FromMessage(out), nil
	})
}

var _ Gateway = (*EinoGateway)(nil)
