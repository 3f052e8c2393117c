package domain

import "time"

// Status is the lifecycle state of a session.
type Status string

const (
	StatusLobby     Status = "lobby"
	StatusPlaying   Status = "playing"
	StatusEnded     Status = "ended"
	StatusAbandoned Status = "abandoned"
)

// Terminal reports whether no further transitions are valid.
func (s Status) Terminal() bool {
	return s == StatusEnded || s == StatusAbandoned
}

// QuestionPhase is the sub-state of the current question while playing.
type QuestionPhase string

const (
	// PhaseActive means the current question accepts submissions.
	PhaseActive QuestionPhase = "active"
	// PhaseClosed means the time limit elapsed or the host advanced early.
	PhaseClosed QuestionPhase = "closed"
)

// Settings control one session. Zero values are replaced by server defaults
// when the session is created.
type Settings struct {
	MaxPlayers      int           `json:"maxPlayers"`
	MinPlayers      int           `json:"minPlayers"`
	TimePerQuestion time.Duration `json:"timePerQuestion"`
	AllowLateJoin   bool          `json:"allowLateJoin"`
	// HostGracePeriod is how long a closed question waits for the host to
	// advance before the server advances on its behalf.
	HostGracePeriod time.Duration `json:"hostGracePeriod"`
}

// Player is one roster entry. The ID is minted at join time and never changes
// for the session's duration; guests are allowed, so it is not tied to an
// account.
type Player struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	ClientRef   string    `json:"clientRef,omitempty"`
	JoinedAt    time.Time `json:"joinedAt"`
	Score       int       `json:"score"`
	// LastScoredAt is when the player last gained points; it breaks ties in
	// the ranking ahead of join order.
	LastScoredAt time.Time `json:"lastScoredAt,omitempty"`
}

// AnswerRecord is the accepted submission for one (player, question) pair.
// At most one exists per pair; later submissions never overwrite it.
type AnswerRecord struct {
	PlayerID      string        `json:"playerId"`
	QuestionIndex int           `json:"questionIndex"`
	OptionID      string        `json:"optionId"`
	Elapsed       time.Duration `json:"elapsed"`
	Correct       bool          `json:"correct"`
	Awarded       int           `json:"awarded"`
}

// Session is one hosted game instance. It is a versioned document: every
// mutation goes through the store's compare-and-swap on Version, so
// concurrent writers lose with ErrConflict instead of overwriting each other.
type Session struct {
	ID              string        `json:"id"`
	PIN             string        `json:"pin"`
	HostID          string        `json:"hostId"`
	GameID          string        `json:"gameId"`
	Status          Status        `json:"status"`
	Settings        Settings      `json:"settings"`
	CurrentQuestion int           `json:"currentQuestion"`
	QuestionPhase   QuestionPhase `json:"questionPhase,omitempty"`
	// QuestionStartedAt/QuestionDeadline come from the server clock when a
	// question opens; admission is judged against them, never against client
	// clocks.
	QuestionStartedAt time.Time      `json:"questionStartedAt,omitempty"`
	QuestionDeadline  time.Time      `json:"questionDeadline,omitempty"`
	Players           []Player       `json:"players"`
	Answers           []AnswerRecord `json:"answers,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	EndedAt           time.Time      `json:"endedAt,omitempty"`
	Version           int64          `json:"version"`
}

// PlayerByID returns a pointer into the session's roster, or nil.
func (s *Session) PlayerByID(id string) *Player {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i]
		}
	}
	return nil
}

// PlayerByName matches display names case-sensitively, per the join contract.
func (s *Session) PlayerByName(name string) *Player {
	for i := range s.Players {
		if s.Players[i].DisplayName == name {
			return &s.Players[i]
		}
	}
	return nil
}

// AnswerFor returns the accepted record for (playerID, questionIndex), or nil.
func (s *Session) AnswerFor(playerID string, questionIndex int) *AnswerRecord {
	for i := range s.Answers {
		if s.Answers[i].PlayerID == playerID && s.Answers[i].QuestionIndex == questionIndex {
			return &s.Answers[i]
		}
	}
	return nil
}

// Joinable reports whether the session admits new players right now.
func (s *Session) Joinable() bool {
	if s.Status == StatusLobby {
		return true
	}
	return s.Status == StatusPlaying && s.Settings.AllowLateJoin
}

// AnswerResult summarizes one submission outcome for the submitting player.
type AnswerResult struct {
	QuestionIndex int  `json:"questionIndex"`
	Correct       bool `json:"correct"`
	Awarded       int  `json:"awarded"`
	TotalScore    int  `json:"totalScore"`
}

// LeaderboardEntry is a snapshot-friendly view of a ranked player.
type LeaderboardEntry struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
	Rank        int    `json:"rank"`
}

// Leaderboard captures the ordered scoreboard for a session.
type Leaderboard struct {
	SessionID string             `json:"sessionId"`
	Entries   []LeaderboardEntry `json:"entries"`
	Final     bool               `json:"final"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models an MCQ question with exactly one correct option. Points
// defaults to 100 if zero; TimeLimit falls back to the game-level value.
type Question struct {
	ID        string        `json:"id"`
	Prompt    string        `json:"prompt"`
	Options   []Option      `json:"options"`
	Points    int           `json:"points"`
	TimeLimit time.Duration `json:"timeLimit,omitempty"`
}

// Game is an externally-owned quiz definition. The coordinator only reads it.
type Game struct {
	ID              string        `json:"id"`
	Title           string        `json:"title"`
	Questions       []Question    `json:"questions"`
	TimePerQuestion time.Duration `json:"timePerQuestion"`
}

// LimitFor resolves the time limit for the question at index: the question's
// own override first, then the game-level pacing. Zero means the game defines
// neither and the caller should fall back to its session setting.
func (g *Game) LimitFor(index int) time.Duration {
	if index >= 0 && index < len(g.Questions) && g.Questions[index].TimeLimit > 0 {
		return g.Questions[index].TimeLimit
	}
	return g.TimePerQuestion
}
