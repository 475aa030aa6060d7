package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/tidwall/gjson"

	"github.com/triage-assist/server/internal/agent/model"
)

const (
	ToolAskUser             = "ask_user_for_input"
	ToolQueryMedicalHistory = "query_medical_history"
	ToolSignalComplete      = "signal_diagnosis_complete"
)

// ===================================
// Ask User Tool
// ===================================

// AskUserInfo declares the question tool. It is never executed; a call to it
// suspends the interview.
func AskUserInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: ToolAskUser,
		Desc: "Ask the patient ONE short, direct question (max 10-12 words) in everyday language. " +
			"Provide answer options for multiple choice questions; omit them for open ended questions.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "A clear, patient friendly question, e.g. \"When did this pain start?\"",
				Required: true,
			},
			"question_type": {
				Type: schema.String,
				Desc: "How the patient answers: multiple_choice (one option), select_multiple (one or more options) or open_ended (free text).",
				Enum: []string{"multiple_choice", "select_multiple", "open_ended"},
			},
			"options": {
				Type: schema.Array,
				Desc: "Answer choices in display order. Leave empty for open_ended questions.",
				ElemInfo: &schema.ParameterInfo{
					Type: schema.Object,
					SubParams: map[string]*schema.ParameterInfo{
						"label":       {Type: schema.String, Desc: "Short answer text", Required: true},
						"description": {Type: schema.String, Desc: "Optional clarification shown with the label"},
					},
				},
			},
		}),
	}
}

// SignalCompleteInfo declares the tool the model uses to ask for diagnosis.
func SignalCompleteInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: ToolSignalComplete,
		Desc: "Signal that enough information has been gathered to produce the differential diagnosis.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"reason": {Type: schema.String, Desc: "One sentence on why the information is sufficient."},
		}),
	}
}

// InterviewToolInfos returns the tools offered on an agent step. The history
// query is only offered when a record exists.
func InterviewToolInfos(ctx context.Context, withHistory bool) ([]*schema.ToolInfo, error) {
	infos := []*schema.ToolInfo{AskUserInfo(), SignalCompleteInfo()}
	if withHistory {
		info, err := NewMedicalHistoryTool("").Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("medical history tool info: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Question is a parsed ask_user_for_input call.
type Question struct {
	Query   string
	Options []model.AnswerOption
	Format  model.AnswerFormat
}

// ParseQuestion reads ask_user_for_input arguments. Options may arrive as a
// list of {label, description} objects, a list of strings, or a
// label-to-description object; order is preserved in every form.
func ParseQuestion(args string) Question {
	root := gjson.Parse(args)
	q := Question{Query: strings.TrimSpace(root.Get("query").String())}

	opts := root.Get("options")
	switch {
	case opts.IsArray():
		opts.ForEach(func(_, item gjson.Result) bool {
			var o model.AnswerOption
			if item.IsObject() {
				o = model.AnswerOption{
					Label:       strings.TrimSpace(item.Get("label").String()),
					Description: strings.TrimSpace(item.Get("description").String()),
				}
			} else {
				o.Label = strings.TrimSpace(item.String())
			}
			if o.Label != "" {
				q.Options = append(q.Options, o)
			}
			return true
		})
	case opts.IsObject():
		opts.ForEach(func(k, v gjson.Result) bool {
			if label := strings.TrimSpace(k.String()); label != "" {
				q.Options = append(q.Options, model.AnswerOption{Label: label, Description: strings.TrimSpace(v.String())})
			}
			return true
		})
	}

	q.Format = model.ParseAnswerFormat(root.Get("question_type").String(), len(q.Options) > 0)
	if q.Format == model.FormatFreeText {
		q.Options = nil
	}
	return q
}

// ===================================
// Medical History Tool
// ===================================

type MedicalHistoryInput struct {
	FieldPath string `json:"field_path"`
	Filter    string `json:"filter,omitempty"`
}

type MedicalHistoryOutput struct {
	Result string `json:"result"`
}

// NewMedicalHistoryTool binds QueryMedicalHistory to one patient's record.
func NewMedicalHistoryTool(record string) tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolQueryMedicalHistory,
			Desc: "Look up a field of the patient's structured medical record, e.g. medicalHistory.allergies, " +
				"medicalHistory.prescriptions or medicalHistory.labs.0. Use it to correlate symptoms with history before asking the patient.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"field_path": {
					Type:     schema.String,
					Desc:     "Dotted path into the record with optional numeric indices, e.g. medicalHistory.familyHistory",
					Required: true,
				},
				"filter": {
					Type: schema.String,
					Desc: "Optional key=value filter applied to list results, e.g. severity=severe",
				},
			}),
		},
		func(ctx context.Context, in *MedicalHistoryInput) (*MedicalHistoryOutput, error) {
			return &MedicalHistoryOutput{Result: QueryMedicalHistory(record, in.FieldPath, in.Filter)}, nil
		},
	)
}

// RunMedicalHistory executes one query_medical_history call against record
// and returns the text handed back to the model. Tool callbacks fire as they
// would inside a tools node. It never fails.
func RunMedicalHistory(ctx context.Context, record, arguments string) string {
	ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
		Name:      ToolQueryMedicalHistory,
		Type:      "MedicalHistory",
		Component: components.ComponentOfTool,
	})
	ctx = callbacks.OnStart(ctx, &tool.CallbackInput{ArgumentsInJSON: arguments})

	out, err := NewMedicalHistoryTool(record).InvokableRun(ctx, arguments)
	if err != nil {
		callbacks.OnError(ctx, err)
		return fmt.Sprintf("Unable to query medical history: invalid arguments (%v)", err)
	}
	callbacks.OnEnd(ctx, &tool.CallbackOutput{Response: out})
	if res := gjson.Get(out, "result"); res.Exists() {
		return res.String()
	}
	return out
}
