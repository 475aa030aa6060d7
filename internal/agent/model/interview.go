package model

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
)

// Phase is the position of a session in the interview state machine.
type Phase string

const (
	PhaseCollecting        Phase = "collecting"
	PhaseSuspendedQuestion Phase = "suspended_question"
	PhaseSuspendedConfirm  Phase = "suspended_confirm"
	PhaseDiagnosing        Phase = "diagnosing"
	PhaseComplete          Phase = "complete"
)

// Terminal reports whether the phase accepts no further input.
func (p Phase) Terminal() bool {
	return p == PhaseComplete
}

// MedicalHistory is the patient's record as supplied at session start.
// Text always holds a printable form; Structured is set when the record
// is a JSON object or array.
type MedicalHistory struct {
	Text       string          `json:"text"`
	Structured json.RawMessage `json:"structured,omitempty"`
}

// ParseMedicalHistory accepts a JSON string, object or array.
// Empty input and JSON null yield nil.
func ParseMedicalHistory(raw json.RawMessage) *MedicalHistory {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return NewMedicalHistory(text)
	}
	if isStructured(raw) {
		var compact bytes.Buffer
		if err := json.Compact(&compact, raw); err == nil {
			raw = compact.Bytes()
		}
		return &MedicalHistory{Text: string(raw), Structured: append(json.RawMessage(nil), raw...)}
	}
	return NewMedicalHistory(string(raw))
}

// NewMedicalHistory wraps free text, promoting it to a structured record
// when the text itself is a JSON object or array.
func NewMedicalHistory(text string) *MedicalHistory {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	h := &MedicalHistory{Text: text}
	if isStructured([]byte(text)) {
		h.Structured = json.RawMessage(text)
	}
	return h
}

func isStructured(b []byte) bool {
	return len(b) > 0 && (b[0] == '{' || b[0] == '[') && json.Valid(b)
}

// Record returns the form handed to the history query tool.
func (h *MedicalHistory) Record() string {
	if h == nil {
		return ""
	}
	if len(h.Structured) > 0 {
		return string(h.Structured)
	}
	return h.Text
}

// InterviewState is the cumulative state of one triage interview. It is
// mutated only between turns by the state machine.
type InterviewState struct {
	Symptoms       []string          `json:"symptoms"`
	MedicalHistory *MedicalHistory   `json:"medical_history,omitempty"`
	QuestionsAsked []string          `json:"questions_asked"`
	Responses      []string          `json:"responses"`
	Transcript     []*schema.Message `json:"transcript,omitempty"`
	Diagnosis      *DiagnosisResult  `json:"diagnosis,omitempty"`
}

func (s *InterviewState) QuestionCount() int {
	return len(s.QuestionsAsked)
}

// AwaitingAnswer reports whether the last recorded question has no response yet.
func (s *InterviewState) AwaitingAnswer() bool {
	return len(s.QuestionsAsked) > len(s.Responses)
}

// AnswerFormat describes how a question expects to be answered.
type AnswerFormat string

const (
	FormatSingleChoice AnswerFormat = "single_choice"
	FormatMultiSelect  AnswerFormat = "multi_select"
	FormatFreeText     AnswerFormat = "free_text"
)

// ParseAnswerFormat maps the question types the model uses onto AnswerFormat.
// Unknown values default to single choice when options exist, free text otherwise.
func ParseAnswerFormat(v string, hasOptions bool) AnswerFormat {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "multiple_choice", "single_choice", "choice":
		if hasOptions {
			return FormatSingleChoice
		}
		return FormatFreeText
	case "select_multiple", "multi_select", "multiple_select":
		if hasOptions {
			return FormatMultiSelect
		}
		return FormatFreeText
	case "open_ended", "free_text", "open":
		return FormatFreeText
	}
	if hasOptions {
		return FormatSingleChoice
	}
	return FormatFreeText
}

// AnswerOption is one labelled choice of a question, in display order.
type AnswerOption struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

type SuspensionKind string

const (
	SuspendQuestion     SuspensionKind = "question"
	SuspendConfirmation SuspensionKind = "confirmation"
)

// Suspension marks a session paused for external input. It is consumed by
// exactly one resume.
type Suspension struct {
	Kind      SuspensionKind `json:"kind"`
	Query     string         `json:"query,omitempty"`
	Options   []AnswerOption `json:"options,omitempty"`
	Format    AnswerFormat   `json:"format,omitempty"`
	Message   string         `json:"message,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Session is the persisted snapshot of one interview.
type Session struct {
	ID         string         `json:"id"`
	Phase      Phase          `json:"phase"`
	State      InterviewState `json:"state"`
	Suspension *Suspension    `json:"suspension,omitempty"`
	// ConfirmDeclinedAt is the question count at which the patient last
	// declined to proceed to diagnosis.
	ConfirmDeclinedAt *int      `json:"confirm_declined_at,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Clone returns a deep copy so a turn can mutate it without touching the
// stored snapshot.
func (s *Session) Clone() (*Session, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out Session
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SessionStatus is the read-only view returned by status lookups.
type SessionStatus struct {
	SessionID     string   `json:"thread_id"`
	Phase         Phase    `json:"phase"`
	Symptoms      []string `json:"symptoms"`
	QuestionCount int      `json:"questions_asked"`
	HasDiagnosis  bool     `json:"has_diagnosis"`
	HasHistory    bool     `json:"medical_records_provided"`
}
