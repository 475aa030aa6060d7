package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"

	"github.com/triage-assist/server/internal/agent/graph/conversations"
	"github.com/triage-assist/server/internal/agent/graph/gateway"
	"github.com/triage-assist/server/internal/agent/graph/nodes"
	"github.com/triage-assist/server/internal/agent/graph/observers"
	"github.com/triage-assist/server/internal/agent/graph/parsers"
	"github.com/triage-assist/server/internal/agent/graph/policy"
	"github.com/triage-assist/server/internal/agent/model"
	errx "github.com/triage-assist/server/internal/core/error"
	logx "github.com/triage-assist/server/pkg/logger"
)

const defaultSinkTimeout = 10 * time.Second

// TurnRecorder receives one observation per external turn.
type TurnRecorder interface {
	ObserveTurn(operation, outcome string, elapsed time.Duration)
}

// Config holds everything needed to run interviews end-to-end.
type Config struct {
	Interview   gateway.Gateway
	Diagnosis   gateway.Gateway
	Policy      *policy.Policy
	Sessions    model.SessionRepository
	Sink        model.TriageSink // optional
	SinkTimeout time.Duration
	Recorder    TurnRecorder // optional
	Clock       nodes.Clock
}

// Machine drives sessions through the compiled interview graph. Each call
// holds the session lock for one turn and commits the snapshot only when
// the turn succeeds.
type Machine struct {
	runnable    compose.Runnable[*model.Session, *model.Session]
	sessions    model.SessionRepository
	sink        model.TriageSink
	sinkTimeout time.Duration
	recorder    TurnRecorder
	now         nodes.Clock
	pending     sync.WaitGroup
}

func NewMachine(ctx context.Context, cfg Config) (*Machine, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session repository is nil")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}

	runnable, err := BuildGraph(ctx, &GraphConfig{
		Interview: cfg.Interview,
		Diagnosis: cfg.Diagnosis,
		Policy:    cfg.Policy,
		Clock:     cfg.Clock,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Interview machine built successfully")
	return &Machine{
		runnable:    runnable,
		sessions:    cfg.Sessions,
		sink:        cfg.Sink,
		sinkTimeout: cfg.SinkTimeout,
		recorder:    cfg.Recorder,
		now:         cfg.Clock,
	}, nil
}

// Start opens a session and runs its first turn. A completed session with
// the same id is replaced; any other existing session is a duplicate.
func (m *Machine) Start(ctx context.Context, sessionID string, symptoms []string, history *model.MedicalHistory) (res *model.TurnResult, err error) {
	defer m.observe("start", time.Now(), &res, &err)

	if strings.TrimSpace(sessionID) == "" {
		return nil, errx.InvalidInput("thread_id is required")
	}
	lock, err := m.sessions.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer m.release(ctx, sessionID, lock)

	existing, err := m.sessions.Load(ctx, sessionID)
	switch {
	case err == nil && !existing.Phase.Terminal():
		return nil, errx.DuplicateSession(sessionID)
	case err != nil && !errors.Is(err, errx.ErrUnknownSession):
		return nil, err
	}

	now := m.now()
	s := &model.Session{
		ID:    sessionID,
		Phase: model.PhaseCollecting,
		State: model.InterviewState{
			Symptoms:       cleanSymptoms(symptoms),
			MedicalHistory: history,
			QuestionsAsked: []string{},
			Responses:      []string{},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	logx.Info().
		Str("session_id", sessionID).
		Strs("symptoms", s.State.Symptoms).
		Bool("medical_history", history != nil).
		Msg("Starting triage interview")
	return m.run(ctx, lock, s)
}

// Resume answers the pending suspension. A pending confirmation accepts
// only an explicit affirmative answer as approval.
func (m *Machine) Resume(ctx context.Context, sessionID, answer, originatingQuestion string) (res *model.TurnResult, err error) {
	defer m.observe("resume", time.Now(), &res, &err)

	return m.turn(ctx, sessionID, func(s *model.Session) error {
		if s.Suspension == nil {
			return errx.NoPendingSuspension(sessionID, "phase "+string(s.Phase))
		}
		if s.Suspension.Kind == model.SuspendConfirmation {
			return conversations.RecordConfirmation(s, policy.IsAffirmative(answer))
		}
		return conversations.RecordAnswer(s, answer, originatingQuestion)
	})
}

// Confirm answers a pending confirmation.
func (m *Machine) Confirm(ctx context.Context, sessionID string, proceed bool) (res *model.TurnResult, err error) {
	defer m.observe("confirm", time.Now(), &res, &err)

	return m.turn(ctx, sessionID, func(s *model.Session) error {
		return conversations.RecordConfirmation(s, proceed)
	})
}

func (m *Machine) Status(ctx context.Context, sessionID string) (*model.SessionStatus, error) {
	s, err := m.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &model.SessionStatus{
		SessionID:     s.ID,
		Phase:         s.Phase,
		Symptoms:      s.State.Symptoms,
		QuestionCount: s.State.QuestionCount(),
		HasDiagnosis:  s.State.Diagnosis != nil,
		HasHistory:    s.State.MedicalHistory != nil,
	}, nil
}

// Delete abandons a session. It waits for no turn; a running turn makes it
// fail with errx.ErrSessionBusy.
func (m *Machine) Delete(ctx context.Context, sessionID string) error {
	lock, err := m.sessions.Lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer m.release(ctx, sessionID, lock)

	if err := m.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	logx.Info().Str("session_id", sessionID).Msg("Session deleted")
	return nil
}

// Wait blocks until pending sink writes finish.
func (m *Machine) Wait() {
	m.pending.Wait()
}

// turn loads a session, applies the caller's input to a private copy and
// runs the graph on it.
func (m *Machine) turn(ctx context.Context, sessionID string, apply func(*model.Session) error) (*model.TurnResult, error) {
	lock, err := m.sessions.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer m.release(ctx, sessionID, lock)

	stored, err := m.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s, err := stored.Clone()
	if err != nil {
		return nil, fmt.Errorf("clone session %s: %w", sessionID, err)
	}
	if err := apply(s); err != nil {
		return nil, err
	}
	return m.run(ctx, lock, s)
}

// run executes one turn and commits through lock, which rejects the
// snapshot if the lock was lost while the graph ran.
func (m *Machine) run(ctx context.Context, lock model.SessionLock, s *model.Session) (*model.TurnResult, error) {
	out, err := m.runnable.Invoke(ctx, s, compose.WithCallbacks(observers.NewAllCallbacks(s.ID)))
	if err != nil {
		logx.Error().Err(err).Str("session_id", s.ID).Msg("Turn failed; session left unchanged")
		return nil, err
	}
	if out == nil {
		return nil, errx.PolicyViolation("graph returned no session")
	}

	out.UpdatedAt = m.now()
	if err := lock.Save(ctx, out); err != nil {
		return nil, err
	}

	switch {
	case out.Suspension != nil:
		return model.SuspensionTurn(out.ID, out.Suspension), nil
	case out.Phase == model.PhaseComplete && out.State.Diagnosis != nil:
		m.appendRecord(ctx, out)
		return model.DiagnosisTurn(out.ID, out.State.Diagnosis), nil
	}
	return nil, errx.PolicyViolation(fmt.Sprintf("turn ended in phase %s without a result", out.Phase))
}

// appendRecord hands the finished session to the sink without blocking the
// caller. Failures are logged only.
func (m *Machine) appendRecord(ctx context.Context, s *model.Session) {
	if m.sink == nil {
		return
	}
	rec := triageRecord(s, m.now())

	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.sinkTimeout)
		defer cancel()

		if err := m.sink.Append(sinkCtx, rec); err != nil {
			logx.Error().
				Err(errx.SinkWrite(err)).
				Str("session_id", s.ID).
				Msg("Failed to append triage record")
			return
		}
		logx.Debug().Str("session_id", s.ID).Str("record_id", rec.ID).Msg("Triage record appended")
	}()
}

func (m *Machine) release(ctx context.Context, sessionID string, lock model.SessionLock) {
	if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
		logx.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to release session lock")
	}
}

func (m *Machine) observe(operation string, start time.Time, res **model.TurnResult, err *error) {
	if m.recorder == nil {
		return
	}
	outcome := "error"
	if *err == nil && *res != nil {
		outcome = string((*res).Type)
	}
	m.recorder.ObserveTurn(operation, outcome, time.Since(start))
}

func triageRecord(s *model.Session, at time.Time) model.TriageRecord {
	rec := model.TriageRecord{
		ID:            uuid.NewString(),
		SessionID:     s.ID,
		Symptoms:      strings.Join(s.State.Symptoms, ", "),
		UrgencyLevel:  parsers.DefaultUrgency,
		UrgencyLabel:  parsers.UrgencyLabel(parsers.DefaultUrgency),
		Diagnosis:     s.State.Diagnosis.Text(),
		QuestionCount: s.State.QuestionCount(),
		CreatedAt:     at,
	}
	if d := s.State.Diagnosis.Structured; d != nil {
		rec.UrgencyLevel = d.UrgencyLevel
		rec.UrgencyLabel = d.UrgencyLabel
		rec.ClinicalSummary = d.ClinicalSummary
	}
	return rec
}

func cleanSymptoms(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
