package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/triage-assist/server/internal/agent/model"
	errx "github.com/triage-assist/server/internal/core/error"
	logx "github.com/triage-assist/server/pkg/logger"
)

const (
	// SkipToken is sent by clients that skip a question.
	SkipToken    = "__skip__"
	skipResponse = "No Response"
)

// Interviewer is the part of the interview machine the handlers drive.
type Interviewer interface {
	Start(ctx context.Context, sessionID string, symptoms []string, history *model.MedicalHistory) (*model.TurnResult, error)
	Resume(ctx context.Context, sessionID, answer, originatingQuestion string) (*model.TurnResult, error)
	Confirm(ctx context.Context, sessionID string, proceed bool) (*model.TurnResult, error)
	Status(ctx context.Context, sessionID string) (*model.SessionStatus, error)
	Delete(ctx context.Context, sessionID string) error
}

type Handler struct {
	svc     Interviewer
	records model.RecordLister
}

// NewHandler wires the interview endpoints. records may be nil when no
// sink is configured.
func NewHandler(svc Interviewer, records model.RecordLister) *Handler {
	return &Handler{svc: svc, records: records}
}

type StartRequest struct {
	ThreadID       string          `json:"thread_id"`
	Symptoms       []string        `json:"symptoms"`
	MedicalRecords json.RawMessage `json:"medical_records,omitempty"`
}

type ResumeRequest struct {
	ThreadID string          `json:"thread_id"`
	Response json.RawMessage `json:"response"`
	Question string          `json:"question,omitempty"`
}

type ConfirmRequest struct {
	ThreadID string `json:"thread_id"`
	Proceed  *bool  `json:"proceed"`
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := decode(r, &req); err != nil {
		writeTurnError(w, "", err)
		return
	}
	if req.ThreadID == "" {
		req.ThreadID = uuid.NewString()
	}

	res, err := h.svc.Start(r.Context(), req.ThreadID, req.Symptoms, model.ParseMedicalHistory(req.MedicalRecords))
	if err != nil {
		writeTurnError(w, req.ThreadID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	var req ResumeRequest
	if err := decode(r, &req); err != nil {
		writeTurnError(w, "", err)
		return
	}
	if req.ThreadID == "" {
		writeTurnError(w, "", errx.InvalidInput("thread_id is required"))
		return
	}
	answer, err := ParseAnswer(req.Response)
	if err != nil {
		writeTurnError(w, req.ThreadID, err)
		return
	}

	res, err := h.svc.Resume(r.Context(), req.ThreadID, answer, req.Question)
	if err != nil {
		writeTurnError(w, req.ThreadID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if err := decode(r, &req); err != nil {
		writeTurnError(w, "", err)
		return
	}
	if req.ThreadID == "" || req.Proceed == nil {
		writeTurnError(w, req.ThreadID, errx.InvalidInput("thread_id and proceed are required"))
		return
	}

	res, err := h.svc.Confirm(r.Context(), req.ThreadID, *req.Proceed)
	if err != nil {
		writeTurnError(w, req.ThreadID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, err := h.svc.Status(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Records lists stored triage outcomes, most urgent first.
func (h *Handler) Records(w http.ResponseWriter, r *http.Request) {
	if h.records == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "triage record store is not configured"})
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, errx.InvalidInput("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	recs, err := h.records.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []model.TriageRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs, "count": len(recs)})
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "Medical Triage API",
	})
}

func (h *Handler) Example(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"start_request": map[string]any{
			"thread_id":       "patient-123",
			"symptoms":        []string{"headache", "nausea", "sensitivity to light"},
			"medical_records": "Patient has a history of migraines. Takes ibuprofen occasionally.",
		},
		"start_request_structured_records": map[string]any{
			"thread_id": "patient-456",
			"symptoms":  []string{"chest tightness"},
			"medical_records": map[string]any{
				"allergies":   []map[string]string{{"substance": "Penicillin", "severity": "severe"}},
				"medications": []map[string]string{{"name": "Lisinopril", "dose": "10mg"}},
			},
		},
		"resume_request": map[string]any{
			"thread_id": "patient-123",
			"response":  "It started this morning",
			"question":  "When did the headache start?",
		},
		"resume_request_multi_select": map[string]any{
			"thread_id": "patient-123",
			"response":  []string{"Rest", "Darkness"},
		},
		"resume_request_skip": map[string]any{
			"thread_id": "patient-123",
			"response":  SkipToken,
		},
		"confirm_request": map[string]any{
			"thread_id": "patient-123",
			"proceed":   true,
		},
	})
}

// ParseAnswer accepts a string or a list of strings. Lists come from
// multi-select questions and are joined with ", "; the skip token is
// recorded as "No Response".
func ParseAnswer(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", errx.InvalidInput("response is required")
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if strings.TrimSpace(single) == SkipToken {
			return skipResponse, nil
		}
		return single, nil
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return "", errx.InvalidInput("response must be a string or a list of strings")
	}
	picked := make([]string, 0, len(many))
	for _, s := range many {
		if s = strings.TrimSpace(s); s != "" && s != SkipToken {
			picked = append(picked, s)
		}
	}
	if len(picked) == 0 {
		return skipResponse, nil
	}
	return strings.Join(picked, ", "), nil
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errx.InvalidInput("invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Warn().Err(err).Msg("Failed to encode response")
	}
}

// writeTurnError renders a failed turn as an error TurnResult.
func writeTurnError(w http.ResponseWriter, sessionID string, err error) {
	status := errx.Status(err)
	logTurnError(sessionID, status, err)
	writeJSON(w, status, model.ErrorTurn(sessionID, errx.PublicMessage(err)))
}

func writeError(w http.ResponseWriter, err error) {
	status := errx.Status(err)
	logTurnError("", status, err)
	writeJSON(w, status, map[string]string{"error": errx.PublicMessage(err)})
}

func logTurnError(sessionID string, status int, err error) {
	ev := logx.Warn()
	if status >= http.StatusInternalServerError && !errors.Is(err, errx.ErrModelGateway) {
		ev = logx.Error()
	}
	ev.Err(err).Str("session_id", sessionID).Int("status", status).Msg("Request failed")
}
