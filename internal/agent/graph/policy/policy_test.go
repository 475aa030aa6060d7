package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triage-assist/server/internal/agent/graph/coverage"
	"github.com/triage-assist/server/internal/agent/model"
)

func newPolicy(t *testing.T, cfg Config) *Policy {
	t.Helper()
	p, err := New(cfg, nil)
	require.NoError(t, err)
	return p
}

func session(questions []string, history *model.MedicalHistory) *model.Session {
	return &model.Session{
		ID: "s",
		State: model.InterviewState{
			QuestionsAsked: questions,
			Responses:      make([]string, len(questions)),
			MedicalHistory: history,
		},
	}
}

var coreQuestions = []string{
	"When did it start?",
	"How severe is it?",
	"Can you describe the sensation?",
	"What makes it worse?",
}

func TestNewDefaultsAndValidation(t *testing.T) {
	p := newPolicy(t, Config{MinQuestions: 3})
	assert.Equal(t, DefaultMaxQuestions, p.Config().MaxQuestions)
	assert.Equal(t, DefaultMaxHistoryLookups, p.MaxHistoryLookups())
	assert.Equal(t, DefaultRequiredTopics, p.Config().RequiredTopics)

	_, err := New(Config{MaxQuestions: 2, MinQuestions: 3}, nil)
	require.Error(t, err)
	_, err = New(Config{MaxQuestions: -1}, nil)
	require.Error(t, err)
	_, err = New(Config{RequiredTopics: []coverage.Topic{"diet"}}, nil)
	require.Error(t, err)
}

func TestAssessSufficiency(t *testing.T) {
	p := newPolicy(t, Config{MaxQuestions: 8, MinQuestions: 3})
	history := model.NewMedicalHistory("type 2 diabetes, metformin")

	tests := []struct {
		name           string
		questions      []string
		history        *model.MedicalHistory
		wantSufficient bool
		wantContinue   bool
	}{
		{name: "below minimum", questions: coreQuestions[:2], wantSufficient: false, wantContinue: true},
		{name: "minimum met but core missing", questions: []string{"When?", "How severe?", "Anything else?"}, wantContinue: true},
		{name: "core covered", questions: coreQuestions, wantSufficient: true},
		{name: "history substantial but uncovered", questions: coreQuestions, history: history, wantContinue: true},
		{name: "history covered", questions: append([]string{"Have you had this before?"}, coreQuestions...), history: history, wantSufficient: true},
		{name: "sentinel history ignored", questions: coreQuestions, history: model.NewMedicalHistory("No medical history provided"), wantSufficient: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := p.Assess(session(tt.questions, tt.history))
			assert.Equal(t, tt.wantSufficient, a.Sufficient)
			assert.Equal(t, tt.wantContinue, a.ShouldContinue)
		})
	}
}

func TestAssessCeiling(t *testing.T) {
	p := newPolicy(t, Config{MaxQuestions: 3, MinQuestions: 2})
	a := p.Assess(session([]string{"a?", "b?", "c?"}, nil))
	assert.True(t, a.AtCeiling())
	assert.True(t, a.Sufficient)
	assert.False(t, a.ShouldContinue)
}

func TestDeclinedConfirmationGrantsAnotherQuestion(t *testing.T) {
	p := newPolicy(t, Config{MaxQuestions: 8, MinQuestions: 3, RequireConfirmation: true})
	s := session(coreQuestions, nil)
	declined := len(coreQuestions)
	s.ConfirmDeclinedAt = &declined

	a := p.Assess(s)
	assert.False(t, a.Sufficient)
	assert.True(t, a.ShouldContinue)

	s.State.QuestionsAsked = append(s.State.QuestionsAsked, "Anything else?")
	assert.True(t, p.Assess(s).Sufficient)
}

func TestDecide(t *testing.T) {
	p := newPolicy(t, Config{MaxQuestions: 8, MinQuestions: 3})
	open := Assessment{QuestionCount: 1, MaxQuestions: 8, ShouldContinue: true}
	done := Assessment{QuestionCount: 4, MaxQuestions: 8, Sufficient: true}

	assert.Equal(t, OutcomeQuestion, p.Decide(open, IntentAsk))
	assert.Equal(t, OutcomeComplete, p.Decide(done, IntentAsk))
	assert.Equal(t, OutcomeLookup, p.Decide(open, IntentLookup))
	assert.Equal(t, OutcomeFallback, p.Decide(open, IntentComplete))
	assert.Equal(t, OutcomeComplete, p.Decide(done, IntentComplete))
	assert.Equal(t, OutcomeFallback, p.Decide(open, IntentNone))
	assert.Equal(t, OutcomeComplete, p.Decide(done, IntentNone))
}

func TestFallbackQuestion(t *testing.T) {
	p := newPolicy(t, Config{})
	table := coverage.DefaultTable()

	a := p.Assess(session([]string{"When did it start?"}, nil))
	assert.Equal(t, table.Fallback(coverage.Severity), p.FallbackQuestion(a))

	a = p.Assess(session([]string{"When did it start?"}, model.NewMedicalHistory("asthma")))
	assert.Equal(t, table.Fallback(coverage.History), p.FallbackQuestion(a))

	assert.Equal(t, table.CatchAllQuestion(), p.FallbackQuestion(Assessment{}))
}

func TestFallbackQuestionsCoverTheirTopic(t *testing.T) {
	table := coverage.DefaultTable()
	for _, entry := range table.Topics {
		r := table.Analyze([]string{entry.Fallback}, false)
		assert.True(t, r.IsCovered(entry.Name), "fallback for %s does not cover it", entry.Name)
	}
}

func TestHistorySubstantial(t *testing.T) {
	assert.False(t, HistorySubstantial(nil))
	assert.False(t, HistorySubstantial(&model.MedicalHistory{Text: "  None. "}))
	assert.False(t, HistorySubstantial(&model.MedicalHistory{Text: "No medical history provided"}))
	assert.True(t, HistorySubstantial(&model.MedicalHistory{Text: "penicillin allergy"}))
	assert.True(t, HistorySubstantial(model.NewMedicalHistory(`{"medicalHistory":{}}`)))
}

func TestIsAffirmative(t *testing.T) {
	for _, s := range []string{"y", "YES", " true ", "Proceed"} {
		assert.True(t, IsAffirmative(s), s)
	}
	for _, s := range []string{"", "no", "sure", "yess", "1"} {
		assert.False(t, IsAffirmative(s), s)
	}
}

func TestParseTopics(t *testing.T) {
	assert.Equal(t, []coverage.Topic{coverage.Timing, coverage.History}, ParseTopics(" Timing, ,history "))
	assert.Empty(t, ParseTopics(""))
}
