package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"

	"github.com/triage-assist/server/internal/agent/graph/gateway"
	"github.com/triage-assist/server/internal/agent/graph/nodes"
	"github.com/triage-assist/server/internal/agent/graph/policy"
	"github.com/triage-assist/server/internal/agent/model"
	logx "github.com/triage-assist/server/pkg/logger"
)

// GraphConfig holds all configuration needed to build the graph
type GraphConfig struct {
	Interview gateway.Gateway
	Diagnosis gateway.Gateway
	Policy    *policy.Policy
	Clock     nodes.Clock
}

// GraphBuilder handles the construction of the interview graph
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[*model.Session, *model.Session]
}

// BuildGraph constructs and returns the compiled interview graph. One
// invocation is one external turn: it ends on a suspension or a diagnosis.
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[*model.Session, *model.Session], error) {
	// Basic config validation
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.Interview == nil || config.Diagnosis == nil {
		return nil, fmt.Errorf("model gateways are not properly initialized")
	}
	if config.Policy == nil {
		return nil, fmt.Errorf("interview policy is nil")
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[*model.Session, *model.Session](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	builder.addNodes()
	builder.addEdges()

	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() {
	b.graph.AddLambdaNode(nodes.NodeAgent,
		nodes.NewAgentNode(b.config.Interview, b.config.Policy, b.config.Clock),
		compose.WithStatePreHandler(nodes.NewEntryPreHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeHistoryLookup,
		nodes.NewHistoryLookupNode(b.config.Policy.MaxHistoryLookups()),
	)

	b.graph.AddLambdaNode(nodes.NodeFinalOutput,
		nodes.NewFinalOutputNode(b.config.Diagnosis),
		compose.WithStatePreHandler(nodes.NewEntryPreHandler()),
	)
}

// addEdges creates the fixed connections between nodes
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{nodes.NodeHistoryLookup, nodes.NodeAgent},
		{nodes.NodeFinalOutput, compose.END},
	}

	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	entryBranch := compose.NewGraphBranch(
		nodes.NewEntryCondition(),
		map[string]bool{
			nodes.NodeAgent:       true,
			nodes.NodeFinalOutput: true,
		},
	)
	if err := b.graph.AddBranch(compose.START, entryBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding entry branch")
		return fmt.Errorf("error adding entry branch: %w", err)
	}

	agentBranch := compose.NewGraphBranch(
		nodes.NewAgentCondition(),
		map[string]bool{
			nodes.NodeHistoryLookup: true,
			nodes.NodeFinalOutput:   true,
			compose.END:             true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeAgent, agentBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding agent branch")
		return fmt.Errorf("error adding agent branch: %w", err)
	}

	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[*model.Session, *model.Session], error) {
	// The lookup cap ends the loop first; run steps are a second backstop.
	maxSteps := 10 + b.config.Policy.MaxHistoryLookups()*2
	if maxSteps < 20 {
		maxSteps = 20
	}

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}
