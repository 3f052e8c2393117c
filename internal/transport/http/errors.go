package http

import (
	"errors"
	"net/http"

	"github.com/Brain-Board-Development/BrainBoard/internal/domain"
)

// rejection maps a business sentinel to a stable machine code and the HTTP
// status the REST surface uses. Anything unmapped is a fatal store failure
// and surfaces as a 500 with a generic message.
type rejection struct {
	code   string
	status int
}

var rejections = []struct {
	err error
	rejection
}{
	{domain.ErrSessionNotFound, rejection{"SESSION_NOT_FOUND", http.StatusNotFound}},
	{domain.ErrGameNotFound, rejection{"GAME_NOT_FOUND", http.StatusNotFound}},
	{domain.ErrPlayerNotFound, rejection{"PLAYER_NOT_FOUND", http.StatusNotFound}},
	{domain.ErrPinNotFound, rejection{"PIN_NOT_FOUND", http.StatusNotFound}},
	{domain.ErrNotJoinable, rejection{"NOT_JOINABLE", http.StatusConflict}},
	{domain.ErrGameAlreadyStarted, rejection{"GAME_ALREADY_STARTED", http.StatusConflict}},
	{domain.ErrNameTaken, rejection{"NAME_TAKEN", http.StatusConflict}},
	{domain.ErrInvalidName, rejection{"INVALID_NAME", http.StatusBadRequest}},
	{domain.ErrLobbyFull, rejection{"LOBBY_FULL", http.StatusConflict}},
	{domain.ErrNotHost, rejection{"NOT_HOST", http.StatusForbidden}},
	{domain.ErrNotEnoughPlayers, rejection{"NOT_ENOUGH_PLAYERS", http.StatusConflict}},
	{domain.ErrWrongPhase, rejection{"WRONG_PHASE", http.StatusConflict}},
	{domain.ErrTooLate, rejection{"TOO_LATE", http.StatusConflict}},
	{domain.ErrAlreadySubmitted, rejection{"ALREADY_SUBMITTED", http.StatusConflict}},
	{domain.ErrOptionNotFound, rejection{"OPTION_NOT_FOUND", http.StatusBadRequest}},
	{domain.ErrAllocationExhausted, rejection{"PIN_ALLOCATION_EXHAUSTED", http.StatusServiceUnavailable}},
}

func classify(err error) (rejection, string) {
	for _, entry := range rejections {
		if errors.Is(err, entry.err) {
			return entry.rejection, entry.err.Error()
		}
	}
	return rejection{"INTERNAL", http.StatusInternalServerError}, "internal error"
}
