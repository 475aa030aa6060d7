package gateway

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"
)

const demoAskTool = "ask_user_for_input"

var demoQuestions = []string{
	`{"query":"When did the symptoms start?","question_type":"multiple_choice","options":[{"label":"Today"},{"label":"Yesterday"},{"label":"Several days ago"},{"label":"More than a week ago"}]}`,
	`{"query":"How severe is it on a scale of 1 to 10?","question_type":"multiple_choice","options":[{"label":"1-3","description":"mild"},{"label":"4-6","description":"moderate"},{"label":"7-10","description":"severe"}]}`,
	`{"query":"How would you describe the sensation?","question_type":"open_ended"}`,
	`{"query":"What makes it better or worse?","question_type":"select_multiple","options":[{"label":"Rest"},{"label":"Movement"},{"label":"Eating"},{"label":"Nothing changes it"}]}`,
	`{"query":"Any other symptoms along with this?","question_type":"open_ended"}`,
	`{"query":"Have you had this before?","question_type":"multiple_choice","options":[{"label":"Yes"},{"label":"No"}]}`,
}

const demoDiagnosis = `{
  "differential_diagnosis": [
    {"rank": 1, "diagnosis": "Viral syndrome", "probability_percent": 0.5, "reasoning": "Common presentation matching the reported symptoms", "key_features": ["recent onset"], "next_steps": ["rest", "fluids"]},
    {"rank": 2, "diagnosis": "Migraine", "probability_percent": "25%", "reasoning": "Pattern compatible with primary headache", "key_features": "headache", "next_steps": ["track triggers"]}
  ],
  "clinical_summary": "Offline demo assessment; no model was consulted.",
  "urgency_level": "moderate"
}`

// DemoModel returns a scripted model that walks a fixed interview and then
// answers with a canned diagnosis. It lets the service run without a
// provider key.
func DemoModel() *ScriptedModel {
	return NewScriptedModel(func(_ context.Context, msgs []*schema.Message, tools []*schema.ToolInfo) (*schema.Message, error) {
		if !offers(tools, demoAskTool) {
			return schema.AssistantMessage("```json\n"+demoDiagnosis+"\n```", nil), nil
		}
		asked := answeredQuestions(msgs)
		args := demoQuestions[asked%len(demoQuestions)]
		return ToolCallMessage(fmt.Sprintf("demo_%d", asked+1), demoAskTool, args), nil
	})
}

func offers(tools []*schema.ToolInfo, name string) bool {
	for _, t := range tools {
		if t != nil && t.Name == name {
			return true
		}
	}
	return false
}

// answeredQuestions counts the synthetic question turns in the transcript.
func answeredQuestions(msgs []*schema.Message) int {
	n := 0
	for _, m := range msgs {
		if m != nil && m.Role == schema.Assistant && len(m.ToolCalls) == 0 && m.Content != "" {
			n++
		}
	}
	return n
}
