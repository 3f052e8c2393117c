package app

import (
	"math"
	"sort"
	"time"

	"github.com/Brain-Board-Development/BrainBoard/internal/domain"
)

// defaultQuestionPoints is the base value for questions that carry none.
const defaultQuestionPoints = 100

// awardPoints computes the score for a correct answer. The award decays
// linearly from the full point value at t=0 to half of it at the time limit,
// floored at max(1, points/10), so any correct answer inside the limit earns
// something and an earlier answer never earns less than a later one.
func awardPoints(points int, elapsed, limit time.Duration) int {
	if points <= 0 {
		points = defaultQuestionPoints
	}
	if limit <= 0 {
		return points
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > limit {
		elapsed = limit
	}

	frac := float64(elapsed) / float64(limit)
	award := int(math.Round(float64(points) * (1 - frac/2)))

	floor := points / 10
	if floor < 1 {
		floor = 1
	}
	if award < floor {
		award = floor
	}
	return award
}

// LeaderboardFor ranks a session snapshot without another store read. The
// transport layer uses it to render the scoreboard for each watch update.
func LeaderboardFor(sess domain.Session, now time.Time) domain.Leaderboard {
	return buildLeaderboard(&sess, now)
}

// buildLeaderboard ranks the roster deterministically: score descending, then
// whoever reached their score earlier, then join order. Zero LastScoredAt
// means the player never scored, so equal-score players in that bucket fall
// through to join order.
func buildLeaderboard(s *domain.Session, now time.Time) domain.Leaderboard {
	players := make([]domain.Player, len(s.Players))
	copy(players, s.Players)

	sort.SliceStable(players, func(i, j int) bool {
		if players[i].Score != players[j].Score {
			return players[i].Score > players[j].Score
		}
		li, lj := players[i].LastScoredAt, players[j].LastScoredAt
		if !li.Equal(lj) {
			return li.Before(lj)
		}
		return players[i].JoinedAt.Before(players[j].JoinedAt)
	})

	entries := make([]domain.LeaderboardEntry, 0, len(players))
	for i, p := range players {
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID:    p.ID,
			DisplayName: p.DisplayName,
			Score:       p.Score,
			Rank:        i + 1,
		})
	}

	return domain.Leaderboard{
		SessionID: s.ID,
		Entries:   entries,
		Final:     s.Status.Terminal(),
		UpdatedAt: now,
	}
}
