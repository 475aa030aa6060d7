// Package policy decides when the interview keeps asking and when it moves
// to diagnosis. The model's tool calls are advisory; the policy has the
// final word.
package policy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/triage-assist/server/internal/agent/graph/coverage"
	"github.com/triage-assist/server/internal/agent/model"
)

const (
	DefaultMaxQuestions      = 8
	DefaultMinQuestions      = 3
	DefaultMaxHistoryLookups = 5

	ConfirmationMessage = "I have gathered enough information to suggest possible causes. Would you like me to proceed with the assessment?"
)

var DefaultRequiredTopics = []coverage.Topic{coverage.Timing, coverage.Severity, coverage.Quality, coverage.Triggers}

// Texts treated as "no history" even though they are non-empty.
var historySentinels = []string{
	"none",
	"n/a",
	"na",
	"no",
	"none provided",
	"no history",
	"no medical history",
	"no medical history provided",
	"no known medical history",
	"no significant medical history",
}

var affirmatives = map[string]bool{"y": true, "yes": true, "true": true, "proceed": true}

type Config struct {
	MaxQuestions        int
	MinQuestions        int
	RequiredTopics      []coverage.Topic
	RequireConfirmation bool
	MaxHistoryLookups   int
}

// FromModelConfig converts the env-bound interview settings.
func FromModelConfig(c model.InterviewConfig) Config {
	return Config{
		MaxQuestions:        c.MaxQuestions,
		MinQuestions:        c.MinQuestions,
		RequiredTopics:      ParseTopics(c.RequiredTopics),
		RequireConfirmation: c.RequireConfirmation,
		MaxHistoryLookups:   c.MaxHistoryLookups,
	}
}

// ParseTopics splits a comma separated topic list.
func ParseTopics(s string) []coverage.Topic {
	var out []coverage.Topic
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(strings.ToLower(part)); p != "" {
			out = append(out, coverage.Topic(p))
		}
	}
	return out
}

type Policy struct {
	cfg   Config
	table *coverage.Table
}

func New(cfg Config, table *coverage.Table) (*Policy, error) {
	if table == nil {
		table = coverage.DefaultTable()
	}
	if cfg.MaxQuestions == 0 {
		cfg.MaxQuestions = DefaultMaxQuestions
	}
	if cfg.MaxHistoryLookups == 0 {
		cfg.MaxHistoryLookups = DefaultMaxHistoryLookups
	}
	if len(cfg.RequiredTopics) == 0 {
		cfg.RequiredTopics = DefaultRequiredTopics
	}
	if cfg.MaxQuestions < 1 {
		return nil, fmt.Errorf("max questions must be at least 1, got %d", cfg.MaxQuestions)
	}
	if cfg.MinQuestions < 0 || cfg.MinQuestions > cfg.MaxQuestions {
		return nil, fmt.Errorf("min questions must be within [0, %d], got %d", cfg.MaxQuestions, cfg.MinQuestions)
	}
	if cfg.MaxHistoryLookups < 0 {
		return nil, fmt.Errorf("max history lookups must not be negative, got %d", cfg.MaxHistoryLookups)
	}
	for _, t := range cfg.RequiredTopics {
		if !table.Known(t) {
			return nil, fmt.Errorf("required topic %q is not in the topic table", t)
		}
	}
	return &Policy{cfg: cfg, table: table}, nil
}

func (p *Policy) Config() Config {
	return p.cfg
}

func (p *Policy) Table() *coverage.Table {
	return p.table
}

// Assessment is the policy view of a session at the start of an agent step.
type Assessment struct {
	Coverage           coverage.Report
	QuestionCount      int
	MaxQuestions       int
	HistorySubstantial bool
	Sufficient         bool
	ShouldContinue     bool
}

// AtCeiling reports whether the hard question limit has been reached.
func (a Assessment) AtCeiling() bool {
	return a.QuestionCount >= a.MaxQuestions
}

func (p *Policy) Assess(s *model.Session) Assessment {
	count := s.State.QuestionCount()
	substantial := HistorySubstantial(s.State.MedicalHistory)
	a := Assessment{
		Coverage:           p.table.Analyze(s.State.QuestionsAsked, substantial),
		QuestionCount:      count,
		MaxQuestions:       p.cfg.MaxQuestions,
		HistorySubstantial: substantial,
	}
	a.Sufficient = p.sufficient(a, s.ConfirmDeclinedAt)
	a.ShouldContinue = count < p.cfg.MaxQuestions && !a.Sufficient
	return a
}

func (p *Policy) sufficient(a Assessment, declinedAt *int) bool {
	if a.QuestionCount < p.cfg.MinQuestions {
		return false
	}
	// a declined confirmation buys at least one more question
	if declinedAt != nil && a.QuestionCount <= *declinedAt && !a.AtCeiling() {
		return false
	}
	if a.AtCeiling() {
		return true
	}
	for _, t := range p.cfg.RequiredTopics {
		if !a.Coverage.IsCovered(t) {
			return false
		}
	}
	if a.HistorySubstantial && p.table.Known(coverage.History) && !a.Coverage.IsCovered(coverage.History) {
		return false
	}
	return true
}

// Intent is what the model asked for in its reply.
type Intent int

const (
	IntentNone Intent = iota
	IntentAsk
	IntentLookup
	IntentComplete
)

func (i Intent) String() string {
	switch i {
	case IntentAsk:
		return "ask"
	case IntentLookup:
		return "lookup"
	case IntentComplete:
		return "complete"
	}
	return "none"
}

// Outcome is what the agent step does next.
type Outcome int

const (
	OutcomeQuestion Outcome = iota
	OutcomeLookup
	OutcomeComplete
	OutcomeFallback
)

func (o Outcome) String() string {
	switch o {
	case OutcomeQuestion:
		return "question"
	case OutcomeLookup:
		return "lookup"
	case OutcomeComplete:
		return "complete"
	}
	return "fallback"
}

func (p *Policy) Decide(a Assessment, intent Intent) Outcome {
	switch intent {
	case IntentAsk:
		if a.ShouldContinue {
			return OutcomeQuestion
		}
		return OutcomeComplete
	case IntentLookup:
		return OutcomeLookup
	case IntentComplete:
		if a.Sufficient || a.AtCeiling() {
			return OutcomeComplete
		}
		return OutcomeFallback
	}
	if !a.ShouldContinue {
		return OutcomeComplete
	}
	return OutcomeFallback
}

// FallbackQuestion picks the canned question for the highest priority
// missing topic, or the catch-all when everything is covered.
func (p *Policy) FallbackQuestion(a Assessment) string {
	if len(a.Coverage.Missing) == 0 {
		return p.table.CatchAllQuestion()
	}
	return p.table.Fallback(a.Coverage.Missing[0])
}

// RequireConfirmation reports whether completion pauses for the patient.
func (p *Policy) RequireConfirmation() bool {
	return p.cfg.RequireConfirmation
}

func (p *Policy) MaxHistoryLookups() int {
	return p.cfg.MaxHistoryLookups
}

// HistorySubstantial reports whether a record carries real history rather
// than an empty or "none provided" placeholder.
func HistorySubstantial(h *model.MedicalHistory) bool {
	if h == nil {
		return false
	}
	if len(h.Structured) > 0 {
		return true
	}
	text := strings.ToLower(strings.TrimSpace(h.Text))
	text = strings.TrimRight(text, ".!")
	return text != "" && !slices.Contains(historySentinels, text)
}

// IsAffirmative accepts only explicit yes tokens.
func IsAffirmative(s string) bool {
	return affirmatives[strings.ToLower(strings.TrimSpace(s))]
}
