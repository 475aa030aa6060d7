package conversations

import (
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/triage-assist/server/internal/agent/graph/policy"
	"github.com/triage-assist/server/internal/agent/graph/prompts"
	"github.com/triage-assist/server/internal/agent/model"
	errx "github.com/triage-assist/server/internal/core/error"
)

const declineReply = "Not yet. Please ask me a few more questions first."

// RecordAnswer consumes a question suspension: the answer is paired with
// its question and mirrored into the transcript as a synthetic exchange.
// originatingQuestion is recorded only when the suspending turn did not
// record the question itself.
func RecordAnswer(s *model.Session, answer, originatingQuestion string) error {
	sus := s.Suspension
	if sus == nil || sus.Kind != model.SuspendQuestion {
		return errx.NoPendingSuspension(s.ID, "no question is pending")
	}

	if !s.State.AwaitingAnswer() {
		q := strings.TrimSpace(originatingQuestion)
		if q == "" {
			q = sus.Query
		}
		s.State.QuestionsAsked = append(s.State.QuestionsAsked, q)
	}
	s.State.Responses = append(s.State.Responses, answer)
	s.State.Transcript = append(s.State.Transcript,
		prompts.QuestionMessage(sus),
		schema.UserMessage(answer),
	)

	s.Suspension = nil
	s.Phase = model.PhaseCollecting
	return nil
}

// RecordConfirmation consumes a confirmation suspension. Approval moves the
// session to diagnosis; anything else sends it back to the interview and
// marks the question count at which the patient declined.
func RecordConfirmation(s *model.Session, proceed bool) error {
	sus := s.Suspension
	if sus == nil || sus.Kind != model.SuspendConfirmation {
		return errx.NoPendingSuspension(s.ID, "no confirmation is pending")
	}
	s.Suspension = nil

	if proceed {
		s.Phase = model.PhaseDiagnosing
		return nil
	}

	declinedAt := s.State.QuestionCount()
	s.ConfirmDeclinedAt = &declinedAt
	message := sus.Message
	if message == "" {
		message = policy.ConfirmationMessage
	}
	s.State.Transcript = append(s.State.Transcript,
		schema.AssistantMessage(message, nil),
		schema.UserMessage(declineReply),
	)
	s.Phase = model.PhaseCollecting
	return nil
}
