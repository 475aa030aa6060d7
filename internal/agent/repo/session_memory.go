package repo

import (
	"context"
	"fmt"
	"sync"

	"github.com/triage-assist/server/internal/agent/model"
	errx "github.com/triage-assist/server/internal/core/error"
)

// MemorySessionRepository keeps snapshots in process. Used by the CLI and tests.
type MemorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	locks    map[string]uint64
	seq      uint64
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[string]*model.Session),
		locks:    make(map[string]uint64),
	}
}

func (r *MemorySessionRepository) Load(_ context.Context, sessionID string) (*model.Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok {
		return nil, errx.UnknownSession(sessionID)
	}
	return s.Clone()
}

func (r *MemorySessionRepository) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return errx.UnknownSession(sessionID)
	}
	delete(r.sessions, sessionID)
	return nil
}

func (r *MemorySessionRepository) Lock(_ context.Context, sessionID string) (model.SessionLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.locks[sessionID]; held {
		return nil, errx.SessionBusy(sessionID)
	}
	r.seq++
	r.locks[sessionID] = r.seq
	return &memoryLock{repo: r, sessionID: sessionID, token: r.seq}, nil
}

type memoryLock struct {
	repo      *MemorySessionRepository
	sessionID string
	token     uint64
}

func (l *memoryLock) Save(_ context.Context, s *model.Session) error {
	if s.ID != l.sessionID {
		return fmt.Errorf("lock on session %s cannot save session %s", l.sessionID, s.ID)
	}
	c, err := s.Clone()
	if err != nil {
		return err
	}
	r := l.repo
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.locks[l.sessionID] != l.token {
		return errx.LockLost(l.sessionID)
	}
	r.sessions[s.ID] = c
	return nil
}

func (l *memoryLock) Unlock(context.Context) error {
	r := l.repo
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.locks[l.sessionID] == l.token {
		delete(r.locks, l.sessionID)
	}
	return nil
}

var _ model.SessionRepository = (*MemorySessionRepository)(nil)
