package model

import (
	"context"
	"time"
)

// SessionLock is a held single-writer lock on one session. Snapshots are
// committed through it so a holder that lost the lock cannot overwrite the
// next holder's work.
type SessionLock interface {
	// Save fails with errx.ErrLockLost once the lock is no longer held.
	Save(ctx context.Context, s *Session) error
	Unlock(ctx context.Context) error
}

// SessionRepository persists session snapshots and serialises writers per session.
type SessionRepository interface {
	// Load returns errx.ErrUnknownSession when no snapshot exists.
	Load(ctx context.Context, sessionID string) (*Session, error)
	Delete(ctx context.Context, sessionID string) error
	// Lock fails fast with errx.ErrSessionBusy when another turn holds the session.
	Lock(ctx context.Context, sessionID string) (SessionLock, error)
}

// TriageRecord is the outcome of a finished session as written to the sink.
type TriageRecord struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"thread_id"`
	Symptoms        string    `json:"symptoms"`
	UrgencyLevel    int       `json:"urgency_level"`
	UrgencyLabel    string    `json:"urgency_level_text"`
	ClinicalSummary string    `json:"clinical_summary"`
	Diagnosis       string    `json:"diagnosis"`
	QuestionCount   int       `json:"questions_asked"`
	CreatedAt       time.Time `json:"created_at"`
}

// TriageSink receives finished session outcomes.
type TriageSink interface {
	Append(ctx context.Context, rec TriageRecord) error
}

// RecordLister exposes the stored outcomes, most urgent first.
type RecordLister interface {
	List(ctx context.Context, limit int) ([]TriageRecord, error)
}
