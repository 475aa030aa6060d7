package model

// TurnType tags the variant carried by a TurnResult.
type TurnType string

const (
	TurnQuestion     TurnType = "question"
	TurnConfirmation TurnType = "confirmation"
	TurnDiagnosis    TurnType = "diagnosis"
	TurnError        TurnType = "error"
)

// TurnResult is what one start/resume/confirm call returns to its caller.
// Exactly the fields of the tagged variant are populated.
type TurnResult struct {
	Type      TurnType         `json:"type"`
	SessionID string           `json:"thread_id,omitempty"`
	Query     string           `json:"query,omitempty"`
	Options   []AnswerOption   `json:"options,omitempty"`
	Format    AnswerFormat     `json:"format,omitempty"`
	Message   string           `json:"message,omitempty"`
	Diagnosis *DiagnosisResult `json:"diagnosis,omitempty"`
	Error     string           `json:"error,omitempty"`
	Status    string           `json:"status"`
}

func QuestionTurn(sessionID string, s *Suspension) *TurnResult {
	return &TurnResult{
		Type:      TurnQuestion,
		SessionID: sessionID,
		Query:     s.Query,
		Options:   s.Options,
		Format:    s.Format,
		Status:    "waiting_for_response",
	}
}

func ConfirmationTurn(sessionID string, s *Suspension) *TurnResult {
	return &TurnResult{
		Type:      TurnConfirmation,
		SessionID: sessionID,
		Message:   s.Message,
		Status:    "waiting_for_confirmation",
	}
}

func DiagnosisTurn(sessionID string, d *DiagnosisResult) *TurnResult {
	return &TurnResult{
		Type:      TurnDiagnosis,
		SessionID: sessionID,
		Diagnosis: d,
		Status:    "completed",
	}
}

func ErrorTurn(sessionID, message string) *TurnResult {
	return &TurnResult{
		Type:      TurnError,
		SessionID: sessionID,
		Error:     message,
		Status:    "error",
	}
}

// SuspensionTurn renders a pending suspension as the matching TurnResult.
func SuspensionTurn(sessionID string, s *Suspension) *TurnResult {
	if s.Kind == SuspendConfirmation {
		return ConfirmationTurn(sessionID, s)
	}
	return QuestionTurn(sessionID, s)
}
