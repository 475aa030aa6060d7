package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/triage-assist/server/internal/agent/graph/gateway"
	"github.com/triage-assist/server/internal/agent/graph/parsers"
	"github.com/triage-assist/server/internal/agent/graph/policy"
	"github.com/triage-assist/server/internal/agent/graph/prompts"
	"github.com/triage-assist/server/internal/agent/graph/tools"
	"github.com/triage-assist/server/internal/agent/model"
	errx "github.com/triage-assist/server/internal/core/error"
	logx "github.com/triage-assist/server/pkg/logger"
)

const (
	NodeAgent         = "agent"
	NodeHistoryLookup = "history_lookup"
	NodeFinalOutput   = "final_output"
)

// Clock is injected so suspensions carry deterministic timestamps in tests.
type Clock func() time.Time

// NewEntryPreHandler binds the session id into the graph local state and
// continues the synthesized tool-call id sequence from the transcript.
func NewEntryPreHandler() func(context.Context, *model.Session, *model.AppState) (*model.Session, error) {
	return func(ctx context.Context, in *model.Session, s *model.AppState) (*model.Session, error) {
		if s.SessionID == "" {
			s.SessionID = in.ID
			s.ToolCallIDSeq = countToolResults(in.State.Transcript)
		}
		return in, nil
	}
}

// NewEntryCondition routes a turn to final_output when the caller already
// approved diagnosis, otherwise to the agent.
func NewEntryCondition() func(context.Context, *model.Session) (string, error) {
	return func(ctx context.Context, in *model.Session) (string, error) {
		if in.Phase == model.PhaseDiagnosing {
			logx.Debug().Str("session_id", in.ID).Msg("Routing to final output")
			return NodeFinalOutput, nil
		}
		return NodeAgent, nil
	}
}

// NewAgentNode creates the agent node: one model round trip whose tool call
// is filtered through the interview policy.
func NewAgentNode(gw gateway.Gateway, pol *policy.Policy, now Clock) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, s *model.Session) (*model.Session, error) {
		a := pol.Assess(s)
		if a.AtCeiling() {
			logx.Info().
				Str("session_id", s.ID).
				Int("question_count", a.QuestionCount).
				Msg("Question limit reached - forcing diagnosis")
			s.Phase = model.PhaseDiagnosing
			return s, nil
		}

		withHistory := s.State.MedicalHistory != nil && len(s.State.MedicalHistory.Structured) > 0
		msgs, err := prompts.RenderInterview(ctx, prompts.InterviewInput{
			State:        &s.State,
			Coverage:     a.Coverage,
			HistoryFirst: a.HistorySubstantial,
			HistoryTool:  withHistory,
			MaxQuestions: a.MaxQuestions,
			MinQuestions: pol.Config().MinQuestions,
		})
		if err != nil {
			return nil, fmt.Errorf("render interview prompt: %w", err)
		}
		infos, err := tools.InterviewToolInfos(ctx, withHistory)
		if err != nil {
			return nil, err
		}

		reply, err := gw.Invoke(ctx, msgs, infos)
		if err != nil {
			return nil, err
		}

		intent := intentOf(reply)
		outcome := pol.Decide(a, intent)
		logx.Debug().
			Str("session_id", s.ID).
			Str("node", NodeAgent).
			Str("intent", intent.String()).
			Str("outcome", outcome.String()).
			Int("question_count", a.QuestionCount).
			Bool("sufficient", a.Sufficient).
			Strs("missing", topicNames(a)).
			Msg("Agent decision")

		switch outcome {
		case policy.OutcomeQuestion:
			q := tools.ParseQuestion(reply.ToolCall.Args)
			if q.Query == "" {
				logx.Warn().Str("session_id", s.ID).Msg("Model asked an empty question - using fallback")
				q = tools.Question{Query: pol.FallbackQuestion(a), Format: model.FormatFreeText}
			}
			suspendQuestion(s, q, now())
		case policy.OutcomeLookup:
			call := lookupMessage(reply)
			if err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
				ensureToolCallIDs(state, call)
				state.PendingLookup = call
				return nil
			}); err != nil {
				return nil, fmt.Errorf("failed to access state: %w", err)
			}
		case policy.OutcomeComplete:
			complete(s, pol, now())
		default:
			suspendQuestion(s, tools.Question{Query: pol.FallbackQuestion(a), Format: model.FormatFreeText}, now())
		}
		return s, nil
	})
}

// NewAgentCondition routes after the agent: a pending lookup loops through
// history_lookup, an approved completion goes to final_output, and any
// suspension ends the turn.
func NewAgentCondition() func(context.Context, *model.Session) (string, error) {
	return func(ctx context.Context, in *model.Session) (string, error) {
		var pending bool
		if err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			pending = state.PendingLookup != nil
			return nil
		}); err != nil {
			return "", fmt.Errorf("failed to access state: %w", err)
		}

		switch {
		case pending:
			logx.Debug().Str("session_id", in.ID).Msg("Routing to history lookup")
			return NodeHistoryLookup, nil
		case in.Phase == model.PhaseDiagnosing:
			logx.Debug().Str("session_id", in.ID).Msg("Routing to final output")
			return NodeFinalOutput, nil
		}
		logx.Debug().Str("session_id", in.ID).Str("phase", string(in.Phase)).Msg("Suspending turn")
		return compose.END, nil
	}
}

// NewHistoryLookupNode resolves the pending medical history query and
// appends the call and its result to the transcript.
func NewHistoryLookupNode(maxLookups int) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, s *model.Session) (*model.Session, error) {
		var (
			call     *schema.Message
			exceeded bool
			count    int
		)
		if err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			call = state.PendingLookup
			state.PendingLookup = nil
			exceeded = incrementLookupAndCheck(state, maxLookups)
			count = state.LookupCount
			return nil
		}); err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		if call == nil || len(call.ToolCalls) == 0 {
			return nil, errx.PolicyViolation("history lookup without a pending tool call")
		}
		if exceeded {
			logx.Warn().
				Str("session_id", s.ID).
				Int("lookup_count", count).
				Int("max_lookups", normalizeMaxLookups(maxLookups)).
				Msg("History lookup limit exceeded")
			return nil, errx.PolicyViolation(fmt.Sprintf("history lookups exceeded %d in one turn", normalizeMaxLookups(maxLookups)))
		}

		tc := call.ToolCalls[0]
		result := tools.RunMedicalHistory(ctx, s.State.MedicalHistory.Record(), tc.Function.Arguments)
		s.State.Transcript = append(s.State.Transcript,
			call,
			schema.ToolMessage(result, tc.ID, schema.WithToolName(tc.Function.Name)),
		)

		logx.Debug().
			Str("session_id", s.ID).
			Int("lookup_count", count).
			Msg("History lookup resolved")
		return s, nil
	})
}

// NewFinalOutputNode creates the diagnosis node: one tool-free model call
// whose text is normalized and stored on the session.
func NewFinalOutputNode(gw gateway.Gateway) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, s *model.Session) (*model.Session, error) {
		if s.State.Diagnosis != nil {
			return nil, errx.PolicyViolation("diagnosis already recorded for session " + s.ID)
		}
		msgs, err := prompts.RenderDiagnosis(ctx, &s.State)
		if err != nil {
			return nil, fmt.Errorf("render diagnosis prompt: %w", err)
		}

		reply, err := gw.Invoke(ctx, msgs, nil)
		if err != nil {
			return nil, err
		}

		norm := parsers.NormalizeDiagnosis(reply.Text())
		s.State.Diagnosis = norm.Result()
		s.Phase = model.PhaseComplete
		s.Suspension = nil

		ev := logx.Info().Str("session_id", s.ID).Int("question_count", s.State.QuestionCount())
		if norm.Structured != nil {
			ev = ev.Int("urgency_level", norm.Structured.UrgencyLevel).Int("conditions", len(norm.Structured.Differential))
		} else {
			ev = ev.Bool("raw_text", true)
		}
		ev.Msg("Diagnosis complete")
		return s, nil
	})
}

// ===== helpers =====

func intentOf(reply *gateway.Reply) policy.Intent {
	if reply == nil || reply.ToolCall == nil {
		return policy.IntentNone
	}
	switch reply.ToolCall.Name {
	case tools.ToolAskUser:
		return policy.IntentAsk
	case tools.ToolQueryMedicalHistory:
		return policy.IntentLookup
	case tools.ToolSignalComplete:
		return policy.IntentComplete
	}
	logx.Warn().Str("tool_name", reply.ToolCall.Name).Msg("Unknown tool call; treating as no tool call")
	return policy.IntentNone
}

// lookupMessage keeps only the routed tool call so every call in the
// transcript has a matching tool result.
func lookupMessage(reply *gateway.Reply) *schema.Message {
	msg := &schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{{
			ID:   reply.ToolCall.ID,
			Type: "function",
			Function: schema.FunctionCall{
				Name:      reply.ToolCall.Name,
				Arguments: reply.ToolCall.Args,
			},
		}},
	}
	if reply.Message != nil {
		msg.Content = reply.Message.Content
	}
	return msg
}

func suspendQuestion(s *model.Session, q tools.Question, at time.Time) {
	s.State.QuestionsAsked = append(s.State.QuestionsAsked, q.Query)
	s.Phase = model.PhaseSuspendedQuestion
	s.Suspension = &model.Suspension{
		Kind:      model.SuspendQuestion,
		Query:     q.Query,
		Options:   q.Options,
		Format:    q.Format,
		CreatedAt: at,
	}
}

func complete(s *model.Session, pol *policy.Policy, at time.Time) {
	if pol.RequireConfirmation() {
		s.Phase = model.PhaseSuspendedConfirm
		s.Suspension = &model.Suspension{
			Kind:      model.SuspendConfirmation,
			Message:   policy.ConfirmationMessage,
			CreatedAt: at,
		}
		return
	}
	s.Phase = model.PhaseDiagnosing
}

func topicNames(a policy.Assessment) []string {
	out := make([]string, len(a.Coverage.Missing))
	for i, t := range a.Coverage.Missing {
		out[i] = string(t)
	}
	return out
}
