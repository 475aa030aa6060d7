package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/triage-assist/server/internal/agent/model"
)

const sampleRecord = `{
  "firstName": "Ada",
  "medicalHistory": {
    "allergies": [
      {"name": "Penicillin", "reaction": "hives", "severity": "severe", "treatment": "antihistamine", "notes": ""},
      {"name": "Pollen", "reaction": "sneezing", "severity": "mild"}
    ],
    "prescriptions": [
      {"medication": [{"name": "Metformin", "dosageForm": "tablet", "strength": "500mg"}], "instructions": "twice daily", "startDate": "2021-03-01", "endDate": ""}
    ],
    "labs": [{"testName": "HbA1c", "result": "7.1%", "referenceRange": "<5.7%", "testDate": "2024-01-10"}],
    "imaging": [{"type": "MRI", "bodyRegion": "head", "studyDate": "2023-05-02", "report": {"impression": "no acute findings"}}],
    "familyHistory": [{"condition": "migraine", "category": "neurological", "relation": "mother", "diagnosisAge": "30"}],
    "visits": [{"date": "2024-02-01", "reason": "headache", "notes": "advised hydration"}],
    "surgeries": "appendectomy 2010",
    "personalHistory": [{"occupation": "nurse", "stressors": ["shift work"]}]
  }
}`

func TestQueryMedicalHistoryRenderers(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		filter string
		want   []string
	}{
		{name: "allergies", path: "medicalHistory.allergies", want: []string{"- Penicillin, reaction hives, severity severe, treatment antihistamine", "- Pollen, reaction sneezing, severity mild"}},
		{name: "filtered", path: "medicalHistory.allergies", filter: "severity=SEVERE", want: []string{"- Penicillin, reaction hives"}},
		{name: "indexed", path: "medicalHistory.allergies[1]", want: []string{"Pollen, reaction sneezing"}},
		{name: "prescriptions", path: "medicalHistory.prescriptions", want: []string{"- Metformin 500mg tablet, twice daily, from 2021-03-01"}},
		{name: "labs", path: "labs", want: []string{"- HbA1c: 7.1%, reference <5.7%, on 2024-01-10"}},
		{name: "imaging", path: "medicalHistory.imaging", want: []string{"- MRI of head, on 2023-05-02, impression no acute findings"}},
		{name: "family", path: "medicalHistory.familyHistory", want: []string{"- mother: migraine, category neurological, diagnosed at 30"}},
		{name: "visits", path: "medicalHistory.visits", want: []string{"- 2024-02-01: headache, notes advised hydration"}},
		{name: "scalar", path: "medicalHistory.surgeries", want: []string{"appendectomy 2010"}},
		{name: "generic", path: "medicalHistory.personalHistory.0", want: []string{"occupation: nurse", "stressors: [\"shift work\"]"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QueryMedicalHistory(sampleRecord, tt.path, tt.filter)
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
		})
	}
}

func TestQueryMedicalHistoryNeverFails(t *testing.T) {
	tests := []struct {
		name   string
		record string
		path   string
		filter string
		want   string
	}{
		{name: "plain text", record: "just plain text", path: "medicalHistory.allergies", want: "unstructured text"},
		{name: "empty", record: "  ", path: "medicalHistory.allergies", want: "No medical history"},
		{name: "broken json", record: `{"medicalHistory": {`, path: "medicalHistory.allergies", want: "could not be parsed"},
		{name: "missing path", record: sampleRecord, path: "medicalHistory.vaccines", want: "No data found"},
		{name: "no path", record: sampleRecord, path: "", want: "field path is required"},
		{name: "bad filter", record: sampleRecord, path: "medicalHistory.allergies", filter: "severe", want: "key=value"},
		{name: "no match", record: sampleRecord, path: "medicalHistory.allergies", filter: "name=latex", want: "No entries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, QueryMedicalHistory(tt.record, tt.path, tt.filter), tt.want)
		})
	}
}

func TestMedicalHistoryTool(t *testing.T) {
	ctx := context.Background()
	tl := NewMedicalHistoryTool(sampleRecord)

	info, err := tl.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, ToolQueryMedicalHistory, info.Name)

	out, err := tl.InvokableRun(ctx, `{"field_path":"medicalHistory.labs"}`)
	require.NoError(t, err)
	assert.Contains(t, gjson.Get(out, "result").String(), "HbA1c")
}

func TestRunMedicalHistory(t *testing.T) {
	ctx := context.Background()

	out := RunMedicalHistory(ctx, sampleRecord, `{"field_path":"medicalHistory.allergies","filter":"severity=severe"}`)
	assert.Contains(t, out, "Penicillin")
	assert.NotContains(t, out, "Pollen")

	out = RunMedicalHistory(ctx, sampleRecord, `not json`)
	assert.Contains(t, out, "Unable to query medical history")

	out = RunMedicalHistory(ctx, "", `{"field_path":"medicalHistory.allergies"}`)
	assert.NotEmpty(t, out)
}

func TestInterviewToolInfos(t *testing.T) {
	ctx := context.Background()
	infos, err := InterviewToolInfos(ctx, false)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, ToolAskUser, infos[0].Name)
	assert.Equal(t, ToolSignalComplete, infos[1].Name)

	infos, err = InterviewToolInfos(ctx, true)
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, ToolQueryMedicalHistory, infos[2].Name)
}

func TestParseQuestion(t *testing.T) {
	tests := []struct {
		name        string
		args        string
		wantQuery   string
		wantFormat  model.AnswerFormat
		wantOptions []model.AnswerOption
	}{
		{
			name:       "object list",
			args:       `{"query":" When did it start? ","question_type":"multiple_choice","options":[{"label":"Today"},{"label":"Last week","description":"7 days"}]}`,
			wantQuery:  "When did it start?",
			wantFormat: model.FormatSingleChoice,
			wantOptions: []model.AnswerOption{
				{Label: "Today"},
				{Label: "Last week", Description: "7 days"},
			},
		},
		{
			name:        "string list multi",
			args:        `{"query":"Which apply?","question_type":"select_multiple","options":["Fever","Chills",""]}`,
			wantQuery:   "Which apply?",
			wantFormat:  model.FormatMultiSelect,
			wantOptions: []model.AnswerOption{{Label: "Fever"}, {Label: "Chills"}},
		},
		{
			name:        "dict keeps order",
			args:        `{"query":"When?","options":{"Hours ago":"","Days ago":"more than a day"}}`,
			wantQuery:   "When?",
			wantFormat:  model.FormatSingleChoice,
			wantOptions: []model.AnswerOption{{Label: "Hours ago"}, {Label: "Days ago", Description: "more than a day"}},
		},
		{
			name:       "open ended drops options",
			args:       `{"query":"Describe it","question_type":"open_ended","options":["a"]}`,
			wantQuery:  "Describe it",
			wantFormat: model.FormatFreeText,
		},
		{
			name:       "garbage",
			args:       `not json`,
			wantFormat: model.FormatFreeText,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := ParseQuestion(tt.args)
			assert.Equal(t, tt.wantQuery, q.Query)
			assert.Equal(t, tt.wantFormat, q.Format)
			assert.Equal(t, tt.wantOptions, q.Options)
		})
	}
}
