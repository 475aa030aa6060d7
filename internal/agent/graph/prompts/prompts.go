package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/triage-assist/server/internal/agent/graph/coverage"
	"github.com/triage-assist/server/internal/agent/graph/tools"
	"github.com/triage-assist/server/internal/agent/model"
)

const (
	noSymptoms = "No symptoms provided"
	noHistory  = "No medical history provided"
)

//go:embed template/interview_system.txt
var interviewSystemPrompt string

//go:embed template/interview_user.txt
var interviewUserPrompt string

//go:embed template/diagnosis_system.txt
var diagnosisSystemPrompt string

//go:embed template/diagnosis_user.txt
var diagnosisUserPrompt string

// InterviewInput is everything the agent step prompt depends on.
type InterviewInput struct {
	State        *model.InterviewState
	Coverage     coverage.Report
	HistoryFirst bool
	HistoryTool  bool
	MaxQuestions int
	MinQuestions int
}

// RenderInterview builds the agent step messages: system instructions, the
// patient presentation with prior Q&A, then the running transcript.
func RenderInterview(ctx context.Context, in InterviewInput) ([]*schema.Message, error) {
	if in.State == nil {
		return nil, fmt.Errorf("interview prompt: state is nil")
	}
	historyTool := ""
	if in.HistoryTool {
		historyTool = tools.ToolQueryMedicalHistory
	}
	nextTopic := ""
	if len(in.Coverage.Missing) > 0 {
		nextTopic = string(in.Coverage.Missing[0])
	}

	// Render via Eino prompt component (Go template) to both format and emit callbacks
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(interviewSystemPrompt),
		schema.UserMessage(interviewUserPrompt),
		schema.MessagesPlaceholder("transcript", true),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"Symptoms":       SymptomList(in.State.Symptoms),
		"MedicalContext": MedicalContext(in.State.MedicalHistory),
		"Covered":        joinTopics(in.Coverage.Covered),
		"Missing":        joinTopics(in.Coverage.Missing),
		"NextTopic":      nextTopic,
		"HistoryFirst":   in.HistoryFirst,
		"QuestionCount":  in.State.QuestionCount(),
		"MaxQuestions":   in.MaxQuestions,
		"MinQuestions":   in.MinQuestions,
		"AskTool":        tools.ToolAskUser,
		"HistoryTool":    historyTool,
		"CompleteTool":   tools.ToolSignalComplete,
		"QA":             QATranscript(in.State, "\n"),
		"transcript":     in.State.Transcript,
	})
	if err != nil {
		return nil, fmt.Errorf("interview prompt render: %w", err)
	}
	if len(msgs) < 2 {
		return nil, fmt.Errorf("interview prompt render: empty result")
	}
	return msgs, nil
}

// RenderDiagnosis builds the single diagnostic request for final_output.
func RenderDiagnosis(ctx context.Context, state *model.InterviewState) ([]*schema.Message, error) {
	if state == nil {
		return nil, fmt.Errorf("diagnosis prompt: state is nil")
	}
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(diagnosisSystemPrompt),
		schema.UserMessage(diagnosisUserPrompt),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"Symptoms":       SymptomList(state.Symptoms),
		"MedicalContext": MedicalContext(state.MedicalHistory),
		"QA":             QATranscript(state, "\n\n"),
	})
	if err != nil {
		return nil, fmt.Errorf("diagnosis prompt render: %w", err)
	}
	if len(msgs) != 2 {
		return nil, fmt.Errorf("diagnosis prompt render: unexpected message count %d", len(msgs))
	}
	return msgs, nil
}

func SymptomList(symptoms []string) string {
	if len(symptoms) == 0 {
		return noSymptoms
	}
	return strings.Join(symptoms, ", ")
}

func MedicalContext(h *model.MedicalHistory) string {
	if h == nil || strings.TrimSpace(h.Text) == "" {
		return noHistory
	}
	return h.Text
}

// QATranscript pairs questions with their answers; an unanswered trailing
// question is left out.
func QATranscript(state *model.InterviewState, sep string) string {
	n := min(len(state.QuestionsAsked), len(state.Responses))
	pairs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		pairs = append(pairs, fmt.Sprintf("Q: %s\nA: %s", state.QuestionsAsked[i], state.Responses[i]))
	}
	return strings.Join(pairs, sep)
}

// QuestionMessage is the synthetic assistant turn recorded for an answered question.
func QuestionMessage(s *model.Suspension) *schema.Message {
	if s.Format == model.FormatFreeText || len(s.Options) == 0 {
		return schema.AssistantMessage("Can you help me understand: "+s.Query, nil)
	}
	labels := make([]string, 0, len(s.Options))
	for _, o := range s.Options {
		if o.Description != "" {
			labels = append(labels, o.Label+": "+o.Description)
		} else {
			labels = append(labels, o.Label)
		}
	}
	lead := " Please choose from: "
	if s.Format == model.FormatMultiSelect {
		lead = " You may choose one or more of: "
	}
	return schema.AssistantMessage("I need to clarify something: "+s.Query+lead+strings.Join(labels, ", "), nil)
}

func joinTopics(ts []coverage.Topic) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}
