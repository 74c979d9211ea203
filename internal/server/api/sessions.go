// Package api provides the JSON handlers for the journal.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ayusman/livecam/internal/journal"
	"github.com/gorilla/mux"
)

// SessionHandler serves the capture-session journal.
type SessionHandler struct {
	journal *journal.Journal
}

// NewSessionHandler creates a new SessionHandler backed by j.
func NewSessionHandler(j *journal.Journal) *SessionHandler {
	return &SessionHandler{journal: j}
}

// Register adds the session routes to r, which is expected to be mounted
// at /api.
func (h *SessionHandler) Register(r *mux.Router) {
	r.HandleFunc("/sessions", h.list).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", h.delete).Methods(http.MethodDelete)
}

type sessionResponse struct {
	ID          string `json:"id"`
	Backend     string `json:"backend"`
	CameraIndex int    `json:"camera_index"`
	CameraName  string `json:"camera_name"`
	StartedAt   string `json:"started_at"`
	StoppedAt   string `json:"stopped_at,omitempty"`
	Active      bool   `json:"active"`
	Produced    uint64 `json:"produced"`
	Dropped     uint64 `json:"dropped"`
	Fault       string `json:"fault,omitempty"`
}

type listSessionsResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func toResponse(s *journal.Session) sessionResponse {
	resp := sessionResponse{
		ID:          s.ID,
		Backend:     s.Backend,
		CameraIndex: s.CameraIndex,
		CameraName:  s.CameraName,
		StartedAt:   s.StartedAt.Format(timeLayout),
		Active:      s.Active(),
		Produced:    s.Produced,
		Dropped:     s.Dropped,
		Fault:       s.Fault,
	}
	if s.StoppedAt != nil {
		resp.StoppedAt = s.StoppedAt.Format(timeLayout)
	}
	return resp
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, errorResponse{Error: message})
}

// list handles GET /api/sessions?limit=N.
func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			WriteError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	sessions, err := h.journal.Sessions().List(limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	response := listSessionsResponse{
		Sessions: make([]sessionResponse, 0, len(sessions)),
	}
	for _, s := range sessions {
		response.Sessions = append(response.Sessions, toResponse(s))
	}

	WriteJSON(w, http.StatusOK, response)
}

// get handles GET /api/sessions/{id}.
func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request) {
	s, err := h.journal.Sessions().GetByID(mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, journal.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Session not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	WriteJSON(w, http.StatusOK, toResponse(s))
}

// delete handles DELETE /api/sessions/{id}. Active sessions cannot be deleted.
func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s, err := h.journal.Sessions().GetByID(id)
	if err != nil {
		if errors.Is(err, journal.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Session not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}
	if s.Active() {
		WriteError(w, http.StatusConflict, "Session is still active")
		return
	}

	if err := h.journal.Sessions().Delete(id); err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
