package errx

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels for the triage interview. Match them with errors.Is; the
// constructors below wrap them in an AppError with the status and the
// message that is safe to show to callers.
var (
	ErrUnknownSession      = errors.New("unknown session")
	ErrNoPendingSuspension = errors.New("no pending suspension")
	ErrDuplicateSession    = errors.New("duplicate session")
	ErrSessionBusy         = errors.New("session busy")
	ErrLockLost            = errors.New("session lock lost")
	ErrPolicyViolation     = errors.New("policy violation")
	ErrModelGateway        = errors.New("model gateway failure")
	ErrSinkWrite           = errors.New("triage record write failed")
	ErrInvalidInput        = errors.New("invalid input")
)

func UnknownSession(sessionID string) error {
	return New(fmt.Errorf("%w: %s", ErrUnknownSession, sessionID), http.StatusNotFound, "session not found")
}

func NoPendingSuspension(sessionID, reason string) error {
	return New(fmt.Errorf("%w: %s: %s", ErrNoPendingSuspension, sessionID, reason), http.StatusConflict,
		"session is not awaiting input")
}

func DuplicateSession(sessionID string) error {
	return New(fmt.Errorf("%w: %s", ErrDuplicateSession, sessionID), http.StatusConflict,
		"session already in progress; use status or resume")
}

func SessionBusy(sessionID string) error {
	return New(fmt.Errorf("%w: %s", ErrSessionBusy, sessionID), http.StatusConflict,
		"session is processing another request")
}

// LockLost means the turn outlived its lock and its snapshot was discarded.
func LockLost(sessionID string) error {
	return New(fmt.Errorf("%w: %s", ErrLockLost, sessionID), http.StatusConflict,
		"session was taken over by another request")
}

// PolicyViolation keeps the detail in the wrapped error only.
func PolicyViolation(detail string) error {
	return New(fmt.Errorf("%w: %s", ErrPolicyViolation, detail), http.StatusInternalServerError, SystemErrorMessage)
}

func ModelGateway(err error) error {
	return New(errors.Join(ErrModelGateway, err), http.StatusBadGateway, "diagnosis service temporarily unavailable")
}

func SinkWrite(err error) error {
	return New(errors.Join(ErrSinkWrite, err), http.StatusInternalServerError, SystemErrorMessage)
}

func InvalidInput(msg string) error {
	return New(fmt.Errorf("%w: %s", ErrInvalidInput, msg), http.StatusBadRequest, msg)
}
