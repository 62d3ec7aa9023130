package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/echoplay/echoplay/go/internal/match"
	"github.com/echoplay/echoplay/go/internal/models"
)

// MatchCreator is the slice of the core the REST surface needs beyond the
// command vocabulary.
type MatchCreator interface {
	CreateMatch(ctx context.Context, hostID uuid.UUID, mode models.Mode, topic string) (match.CreateMatchResult, error)
}

// RestHandler exposes the HTTP companion surface: match creation and
// join for clients that have not opened a socket yet, plus a read-only
// state endpoint.
type RestHandler struct {
	core     Core
	creator  MatchCreator
	verifier CredentialVerifier
}

// NewRestHandler creates the REST handler.
func NewRestHandler(core Core, creator MatchCreator, verifier CredentialVerifier) *RestHandler {
	return &RestHandler{core: core, creator: creator, verifier: verifier}
}

type createMatchRequest struct {
	Mode  models.Mode `json:"mode"`
	Topic string      `json:"topic,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleCreateMatch provisions a match with the caller as host.
func (h *RestHandler) HandleCreateMatch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req createMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	switch req.Mode {
	case models.ModeSolo, models.ModeFamily, models.ModeCouple, models.ModeGlobal:
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown mode"})
		return
	}

	res, err := h.creator.CreateMatch(r.Context(), id.UserID, req.Mode, req.Topic)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// HandleJoinMatch enrolls the caller in an existing match.
func (h *RestHandler) HandleJoinMatch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	matchID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid match id"})
		return
	}

	res, err := h.core.JoinMatch(r.Context(), matchID, id.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleMatchState returns the current room snapshot. No credential
// needed; the snapshot is what any observer would see over the socket.
func (h *RestHandler) HandleMatchState(w http.ResponseWriter, r *http.Request) {
	matchID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid match id"})
		return
	}

	snap, err := h.core.Snapshot(r.Context(), matchID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// RegisterRoutes registers REST routes with an HTTP mux.
func (h *RestHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/matches", h.HandleCreateMatch)
	mux.HandleFunc("POST /api/matches/{id}/join", h.HandleJoinMatch)
	mux.HandleFunc("GET /api/matches/{id}/state", h.HandleMatchState)
}

func (h *RestHandler) requireAuth(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" || token == r.Header.Get("Authorization") {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "bearer credential required"})
		return Identity{}, false
	}
	id, err := h.verifier.Verify(r.Context(), token)
	if err != nil {
		log.Debug().Err(err).Msg("credential rejected")
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid credential"})
		return Identity{}, false
	}
	return id, true
}

func (h *RestHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, match.ErrNotFound):
		status, msg = http.StatusNotFound, "match not found"
	case errors.Is(err, match.ErrUnauthorized):
		status, msg = http.StatusForbidden, "not allowed"
	case errors.Is(err, match.ErrInvalidTransition):
		status, msg = http.StatusConflict, "invalid match state"
	case errors.Is(err, match.ErrUpstreamFailure):
		status, msg = http.StatusBadGateway, "upstream failure"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
