package domain

import "errors"

// Business rejections are sentinel errors so callers can map each one to a
// specific, actionable message. Anything else escaping the coordinator is a
// fatal store/driver failure wrapped with context.
var (
	// ErrSessionNotFound is returned when a session id does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrGameNotFound indicates the quiz definition could not be loaded.
	ErrGameNotFound = errors.New("game not found")
	// ErrPlayerNotFound is returned when a player acts before joining.
	ErrPlayerNotFound = errors.New("player not found in session")
	// ErrPinNotFound is returned when a PIN resolves to no live session.
	ErrPinNotFound = errors.New("pin not found")
	// ErrPinTaken is returned by Create when the PIN is held by a live session.
	ErrPinTaken = errors.New("pin already held by a live session")
	// ErrAllocationExhausted means PIN sampling kept colliding; transient.
	ErrAllocationExhausted = errors.New("pin allocation exhausted")

	// ErrNotJoinable is returned when the session exists but admits no players.
	ErrNotJoinable = errors.New("session not joinable")
	// ErrGameAlreadyStarted rejects joins after start when late join is off.
	ErrGameAlreadyStarted = errors.New("game already started")
	// ErrNameTaken rejects a display name already used in the session.
	ErrNameTaken = errors.New("name already taken")
	// ErrInvalidName rejects names outside 3-20 characters after trimming.
	ErrInvalidName = errors.New("display name must be 3-20 characters")
	// ErrLobbyFull rejects joins at the configured player cap.
	ErrLobbyFull = errors.New("lobby is full")

	// ErrNotHost rejects lifecycle transitions from anyone but the host.
	ErrNotHost = errors.New("only the host may do that")
	// ErrNotEnoughPlayers rejects starting below the configured minimum.
	ErrNotEnoughPlayers = errors.New("not enough players to start")
	// ErrWrongPhase rejects an operation invalid for the current state.
	ErrWrongPhase = errors.New("wrong phase for this operation")
	// ErrTooLate rejects a submission after the question's deadline.
	ErrTooLate = errors.New("submission after time limit")
	// ErrAlreadySubmitted rejects a second submission for the same question.
	ErrAlreadySubmitted = errors.New("answer already submitted")
	// ErrOptionNotFound indicates a submitted option ID is invalid.
	ErrOptionNotFound = errors.New("option not found")

	// ErrConflict means a conditional update lost the race; the caller must
	// re-read and retry. The coordinator retries it internally a bounded
	// number of times before giving up.
	ErrConflict = errors.New("conditional update conflict")
)

// IsRejection reports whether err is an expected business rejection rather
// than a fatal infrastructure failure.
func IsRejection(err error) bool {
	for _, sentinel := range []error{
		ErrSessionNotFound, ErrGameNotFound, ErrPlayerNotFound,
		ErrPinNotFound, ErrPinTaken, ErrAllocationExhausted,
		ErrNotJoinable, ErrGameAlreadyStarted, ErrNameTaken,
		ErrInvalidName, ErrLobbyFull, ErrNotHost, ErrNotEnoughPlayers,
		ErrWrongPhase, ErrTooLate, ErrAlreadySubmitted, ErrOptionNotFound,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
