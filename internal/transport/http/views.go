package http

import (
	"time"

	"github.com/Brain-Board-Development/BrainBoard/internal/app"
	"github.com/Brain-Board-Development/BrainBoard/internal/domain"
)

// sessionView is the client-facing snapshot. The raw session document carries
// the answer log, which reveals the correct option once anyone answers right;
// the view strips it and exposes the scoreboard instead.
type sessionView struct {
	ID              string                    `json:"id"`
	PIN             string                    `json:"pin"`
	GameID          string                    `json:"gameId"`
	Status          domain.Status             `json:"status"`
	CurrentQuestion int                       `json:"currentQuestion"`
	QuestionPhase   domain.QuestionPhase      `json:"questionPhase,omitempty"`
	QuestionEndsAt  *time.Time                `json:"questionEndsAt,omitempty"`
	Players         []playerView              `json:"players"`
	Leaderboard     []domain.LeaderboardEntry `json:"leaderboard"`
}

type playerView struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
}

func viewOf(sess domain.Session) sessionView {
	players := make([]playerView, 0, len(sess.Players))
	for _, p := range sess.Players {
		players = append(players, playerView{ID: p.ID, DisplayName: p.DisplayName, Score: p.Score})
	}
	view := sessionView{
		ID:              sess.ID,
		PIN:             sess.PIN,
		GameID:          sess.GameID,
		Status:          sess.Status,
		CurrentQuestion: sess.CurrentQuestion,
		QuestionPhase:   sess.QuestionPhase,
		Players:         players,
		Leaderboard:     app.LeaderboardFor(sess, time.Now()).Entries,
	}
	if !sess.QuestionDeadline.IsZero() {
		deadline := sess.QuestionDeadline
		view.QuestionEndsAt = &deadline
	}
	return view
}
