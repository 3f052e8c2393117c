package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Brain-Board-Development/BrainBoard/internal/app"
	"github.com/Brain-Board-Development/BrainBoard/internal/domain"
)

// SessionHandler is the REST surface for hosting and locating sessions.
type SessionHandler struct {
	coord *app.Coordinator
}

func NewSessionHandler(coord *app.Coordinator) *SessionHandler {
	return &SessionHandler{coord: coord}
}

type createSessionRequest struct {
	GameID             string `json:"gameId"`
	HostID             string `json:"hostId"`
	MaxPlayers         int    `json:"maxPlayers"`
	MinPlayers         int    `json:"minPlayers"`
	TimePerQuestionSec int    `json:"timePerQuestionSec"`
	AllowLateJoin      bool   `json:"allowLateJoin"`
	HostGraceSec       int    `json:"hostGraceSec"`
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	if req.GameID == "" || req.HostID == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "gameId and hostId are required")
		return
	}

	settings := domain.Settings{
		MaxPlayers:      req.MaxPlayers,
		MinPlayers:      req.MinPlayers,
		TimePerQuestion: time.Duration(req.TimePerQuestionSec) * time.Second,
		AllowLateJoin:   req.AllowLateJoin,
		HostGracePeriod: time.Duration(req.HostGraceSec) * time.Second,
	}
	sess, err := h.coord.Host(r.Context(), req.GameID, req.HostID, settings)
	if err != nil {
		writeRejection(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(sess))
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.coord.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeRejection(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (h *SessionHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	lb, err := h.coord.Leaderboard(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeRejection(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

// Abandon lets the host walk away cleanly; players observe the terminal
// status through their subscriptions.
func (h *SessionHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	hostID := r.URL.Query().Get("hostId")
	if hostID == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "hostId is required")
		return
	}
	sess, err := h.coord.Abandon(r.Context(), chi.URLParam(r, "sessionID"), hostID)
	if err != nil {
		writeRejection(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

type pinResolution struct {
	SessionID string        `json:"sessionId"`
	Status    domain.Status `json:"status"`
	Joinable  bool          `json:"joinable"`
}

func (h *SessionHandler) ResolvePIN(w http.ResponseWriter, r *http.Request) {
	sess, err := h.coord.ResolvePIN(r.Context(), chi.URLParam(r, "pin"))
	if err != nil {
		writeRejection(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pinResolution{
		SessionID: sess.ID,
		Status:    sess.Status,
		Joinable:  true,
	})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeRejection(w http.ResponseWriter, err error) {
	rej, msg := classify(err)
	writeError(w, rej.status, rej.code, msg)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
