package app_test

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/Brain-Board-Development/BrainBoard/internal/app"
	"github.com/Brain-Board-Development/BrainBoard/internal/domain"
	"github.com/Brain-Board-Development/BrainBoard/internal/infra/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testGame() domain.Game {
	question := func(id string) domain.Question {
		return domain.Question{
			ID:     id,
			Prompt: "Pick the right option",
			Options: []domain.Option{
				{ID: "o1", Text: "Wrong", Correct: false},
				{ID: "o2", Text: "Right", Correct: true},
				{ID: "o3", Text: "Also wrong", Correct: false},
			},
			Points: 100,
		}
	}
	return domain.Game{
		ID:              "game-1",
		Title:           "Test game",
		TimePerQuestion: time.Minute,
		Questions:       []domain.Question{question("q1"), question("q2"), question("q3")},
	}
}

func newTestCoordinator(t *testing.T, clock *fakeClock) *app.Coordinator {
	t.Helper()
	store := memory.NewSessionStore()
	games := memory.NewGameRepository(memory.NewStaticGameLoader(map[string]domain.Game{
		"game-1": testGame(),
	}), 5*time.Minute)
	return app.NewCoordinatorWithClock(store, games, domain.Settings{}, clock.Now)
}

func hostAndJoin(t *testing.T, coord *app.Coordinator, names ...string) (domain.Session, map[string]domain.Player) {
	t.Helper()
	ctx := context.Background()
	sess, err := coord.Host(ctx, "game-1", "host-1", domain.Settings{})
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	players := make(map[string]domain.Player, len(names))
	for _, name := range names {
		p, _, err := coord.Join(ctx, sess.ID, name, "")
		if err != nil {
			t.Fatalf("join %s: %v", name, err)
		}
		players[name] = p
	}
	return sess, players
}

func TestHostAllocatesSixDigitPin(t *testing.T) {
	ctx := context.Background()
	coord := newTestCoordinator(t, newFakeClock())

	sess, err := coord.Host(ctx, "game-1", "host-1", domain.Settings{})
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	if sess.Status != domain.StatusLobby {
		t.Fatalf("expected lobby, got %s", sess.Status)
	}
	if !regexp.MustCompile(`^\d{6}$`).MatchString(sess.PIN) {
		t.Fatalf("expected 6-digit pin, got %q", sess.PIN)
	}

	resolved, err := coord.ResolvePIN(ctx, sess.PIN)
	if err != nil {
		t.Fatalf("resolve pin: %v", err)
	}
	if resolved.ID != sess.ID {
		t.Fatalf("pin resolved to wrong session: %s != %s", resolved.ID, sess.ID)
	}
}

func TestHostUnknownGame(t *testing.T) {
	coord := newTestCoordinator(t, newFakeClock())
	_, err := coord.Host(context.Background(), "nope", "host-1", domain.Settings{})
	if !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected game not found, got %v", err)
	}
}

// pinHogStore refuses every Create so Host exhausts its sampling budget.
type pinHogStore struct {
	*memory.SessionStore
}

func (s *pinHogStore) Create(ctx context.Context, sess domain.Session) (domain.Session, error) {
	return domain.Session{}, domain.ErrPinTaken
}

func TestHostAllocationExhausted(t *testing.T) {
	games := memory.NewGameRepository(memory.NewStaticGameLoader(map[string]domain.Game{
		"game-1": testGame(),
	}), time.Minute)
	coord := app.NewCoordinator(&pinHogStore{memory.NewSessionStore()}, games, domain.Settings{})

	_, err := coord.Host(context.Background(), "game-1", "host-1", domain.Settings{})
	if !errors.Is(err, domain.ErrAllocationExhausted) {
		t.Fatalf("expected allocation exhausted, got %v", err)
	}
}

func TestJoinValidation(t *testing.T) {
	ctx := context.Background()
	coord := newTestCoordinator(t, newFakeClock())
	sess, _ := hostAndJoin(t, coord, "Ann")

	if _, _, err := coord.Join(ctx, sess.ID, "Jo", ""); !errors.Is(err, domain.ErrInvalidName) {
		t.Fatalf("expected invalid name for too-short, got %v", err)
	}
	if _, _, err := coord.Join(ctx, sess.ID, "this name is way beyond twenty", ""); !errors.Is(err, domain.ErrInvalidName) {
		t.Fatalf("expected invalid name for too-long, got %v", err)
	}
	if _, _, err := coord.Join(ctx, sess.ID, "Ann", ""); !errors.Is(err, domain.ErrNameTaken) {
		t.Fatalf("expected name taken, got %v", err)
	}
	// Case-sensitive match: "ann" is a different name.
	if _, _, err := coord.Join(ctx, sess.ID, "ann", ""); err != nil {
		t.Fatalf("lower-case variant should join: %v", err)
	}
}

func TestLobbyCapacity(t *testing.T) {
	ctx := context.Background()
	coord := newTestCoordinator(t, newFakeClock())
	sess, err := coord.Host(ctx, "game-1", "host-1", domain.Settings{MaxPlayers: 2})
	if err != nil {
		t.Fatalf("host: %v", err)
	}

	for _, name := range []string{"Ann", "Ben"} {
		if _, _, err := coord.Join(ctx, sess.ID, name, ""); err != nil {
			t.Fatalf("join %s: %v", name, err)
		}
	}
	if _, _, err := coord.Join(ctx, sess.ID, "Cid", ""); !errors.Is(err, domain.ErrLobbyFull) {
		t.Fatalf("expected lobby full for Cid, got %v", err)
	}
}

func TestConcurrentJoinsDistinctNames(t *testing.T) {
	ctx := context.Background()
	coord := newTestCoordinator(t, newFakeClock())
	sess, _ := hostAndJoin(t, coord)

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = coord.Join(ctx, sess.ID, fmt.Sprintf("Player%02d", i), "")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("join %d failed: %v", i, err)
		}
	}
	final, err := coord.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(final.Players) != n {
		t.Fatalf("expected %d players, got %d", n, len(final.Players))
	}
	seen := make(map[string]bool, n)
	for _, p := range final.Players {
		if seen[p.ID] {
			t.Fatalf("duplicate player id %s", p.ID)
		}
		seen[p.ID] = true
	}
}

func TestConcurrentJoinsSameName(t *testing.T) {
	ctx := context.Background()
	coord := newTestCoordinator(t, newFakeClock())
	sess, _ := hostAndJoin(t, coord)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = coord.Join(ctx, sess.ID, "Ann", "")
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, domain.ErrNameTaken):
		default:
			t.Fatalf("unexpected join error: %v", err)
		}
	}
	if accepted != 1 {
		t.Fatalf("expected exactly one accepted join, got %d", accepted)
	}
	final, _ := coord.GetSession(ctx, sess.ID)
	if len(final.Players) != 1 {
		t.Fatalf("expected 1 player, got %d", len(final.Players))
	}
}

func TestAutoNickname(t *testing.T) {
	ctx := context.Background()
	coord := newTestCoordinator(t, newFakeClock())
	sess, _ := hostAndJoin(t, coord)

	p1, _, err := coord.Join(ctx, sess.ID, "", "")
	if err != nil {
		t.Fatalf("join with empty name: %v", err)
	}
	if l := len(p1.DisplayName); l < 3 || l > 20 {
		t.Fatalf("nickname %q out of bounds", p1.DisplayName)
	}
	p2, _, err := coord.Join(ctx, sess.ID, "", "")
	if err != nil {
		t.Fatalf("second empty-name join: %v", err)
	}
	if p1.DisplayName == p2.DisplayName {
		t.Fatalf("nicknames collided: %q", p1.DisplayName)
	}
}

func TestRejoinIsIdempotent(t *testing.T) {
	ctx := context.Background()
	coord := newTestCoordinator(t, newFakeClock())
	sess, players := hostAndJoin(t, coord, "Ann")
	ann := players["Ann"]

	again, _, err := coord.Rejoin(ctx, sess.ID, ann.ID)
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if again.ID != ann.ID || again.DisplayName != ann.DisplayName {
		t.Fatalf("rejoin changed the player: %+v vs %+v", again, ann)
	}
	final, _ := coord.GetSession(ctx, sess.ID)
	if len(final.Players) != 1 {
		t.Fatalf("rejoin duplicated the player: %d entries", len(final.Players))
	}

	if _, _, err := coord.Rejoin(ctx, sess.ID, "ghost"); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected player not found, got %v", err)
	}
}

func TestStartGuards(t *testing.T) {
	ctx := context.Background()
	coord := newTestCoordinator(t, newFakeClock())
	sess, _ := hostAndJoin(t, coord)

	if _, err := coord.Start(ctx, sess.ID, "host-1"); !errors.Is(err, domain.ErrNotEnoughPlayers) {
		t.Fatalf("expected not enough players, got %v", err)
	}

	if _, _, err := coord.Join(ctx, sess.ID, "Ann", ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := coord.Start(ctx, sess.ID, "impostor"); !errors.Is(err, domain.ErrNotHost) {
		t.Fatalf("expected not host, got %v", err)
	}

	started, err := coord.Start(ctx, sess.ID, "host-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != domain.StatusPlaying || started.CurrentQuestion != 0 {
		t.Fatalf("unexpected state after start: %s q%d", started.Status, started.CurrentQuestion)
	}
	if started.QuestionPhase != domain.PhaseActive {
		t.Fatalf("expected active question, got %s", started.QuestionPhase)
	}
	if got := started.QuestionDeadline.Sub(started.QuestionStartedAt); got != time.Minute {
		t.Fatalf("expected 60s limit, got %s", got)
	}

	if _, err := coord.Start(ctx, sess.ID, "host-1"); !errors.Is(err, domain.ErrWrongPhase) {
		t.Fatalf("expected wrong phase for second start, got %v", err)
	}
}

func TestJoinAfterStart(t *testing.T) {
	ctx := context.Background()
	coord := newTestCoordinator(t, newFakeClock())
	sess, _ := hostAndJoin(t, coord, "Ann")
	if _, err := coord.Start(ctx, sess.ID, "host-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, _, err := coord.Join(ctx, sess.ID, "Late", ""); !errors.Is(err, domain.ErrGameAlreadyStarted) {
		t.Fatalf("expected game already started, got %v", err)
	}
}

func TestLateJoinEnabled(t *testing.T) {
	ctx := context.Background()
	coord := newTestCoordinator(t, newFakeClock())
	sess, err := coord.Host(ctx, "game-1", "host-1", domain.Settings{AllowLateJoin: true})
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	if _, _, err := coord.Join(ctx, sess.ID, "Ann", ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := coord.Start(ctx, sess.ID, "host-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := coord.Join(ctx, sess.ID, "Late", ""); err != nil {
		t.Fatalf("late join should be allowed: %v", err)
	}
}

func TestScoringRewardsSpeed(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	coord := newTestCoordinator(t, clock)
	sess, players := hostAndJoin(t, coord, "Ann", "Ben")
	if _, err := coord.Start(ctx, sess.ID, "host-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Ann answers at 20% of the 60s limit, Ben at 90%.
	clock.Advance(12 * time.Second)
	annResult, err := coord.SubmitAnswer(ctx, sess.ID, players["Ann"].ID, 0, "o2")
	if err != nil {
		t.Fatalf("ann submit: %v", err)
	}
	clock.Advance(42 * time.Second)
	benResult, err := coord.SubmitAnswer(ctx, sess.ID, players["Ben"].ID, 0, "o2")
	if err != nil {
		t.Fatalf("ben submit: %v", err)
	}

	if !annResult.Correct || !benResult.Correct {
		t.Fatalf("both answers should be correct: %+v %+v", annResult, benResult)
	}
	if annResult.Awarded <= benResult.Awarded {
		t.Fatalf("faster answer should score strictly more: ann=%d ben=%d", annResult.Awarded, benResult.Awarded)
	}
	if benResult.Awarded <= 0 {
		t.Fatalf("correct answer within the limit must score, got %d", benResult.Awarded)
	}

	lb, err := coord.Leaderboard(ctx, sess.ID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if lb.Entries[0].DisplayName != "Ann" {
		t.Fatalf("expected Ann leading, got %+v", lb.Entries)
	}
}

func TestSubmitRejections(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	coord := newTestCoordinator(t, clock)
	sess, players := hostAndJoin(t, coord, "Ann")
	ann := players["Ann"]

	// Before start: wrong phase.
	if _, err := coord.SubmitAnswer(ctx, sess.ID, ann.ID, 0, "o2"); !errors.Is(err, domain.ErrWrongPhase) {
		t.Fatalf("expected wrong phase before start, got %v", err)
	}

	if _, err := coord.Start(ctx, sess.ID, "host-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Stale question index while the session is still on question 0.
	if _, err := coord.SubmitAnswer(ctx, sess.ID, ann.ID, 2, "o2"); !errors.Is(err, domain.ErrWrongPhase) {
		t.Fatalf("expected wrong phase for stale index, got %v", err)
	}

	// Unknown option.
	if _, err := coord.SubmitAnswer(ctx, sess.ID, ann.ID, 0, "o9"); !errors.Is(err, domain.ErrOptionNotFound) {
		t.Fatalf("expected option not found, got %v", err)
	}

	// Unknown player.
	if _, err := coord.SubmitAnswer(ctx, sess.ID, "ghost", 0, "o2"); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected player not found, got %v", err)
	}

	// First submission wins; the second never alters the score.
	first, err := coord.SubmitAnswer(ctx, sess.ID, ann.ID, 0, "o2")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := coord.SubmitAnswer(ctx, sess.ID, ann.ID, 0, "o1"); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected already submitted, got %v", err)
	}
	final, _ := coord.GetSession(ctx, sess.ID)
	if got := final.PlayerByID(ann.ID).Score; got != first.Awarded {
		t.Fatalf("duplicate submit changed score: %d != %d", got, first.Awarded)
	}
}

func TestSubmitTooLate(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	coord := newTestCoordinator(t, clock)
	sess, players := hostAndJoin(t, coord, "Ann")
	if _, err := coord.Start(ctx, sess.ID, "host-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	clock.Advance(61 * time.Second)
	if _, err := coord.SubmitAnswer(ctx, sess.ID, players["Ann"].ID, 0, "o2"); !errors.Is(err, domain.ErrTooLate) {
		t.Fatalf("expected too late, got %v", err)
	}
}

func TestAdvanceThroughGameAndEnd(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	coord := newTestCoordinator(t, clock)
	sess, players := hostAndJoin(t, coord, "Ann")
	ann := players["Ann"]
	if _, err := coord.Start(ctx, sess.ID, "host-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	for q := 0; q < 3; q++ {
		clock.Advance(5 * time.Second)
		if _, err := coord.SubmitAnswer(ctx, sess.ID, ann.ID, q, "o2"); err != nil {
			t.Fatalf("submit q%d: %v", q, err)
		}
		sess, _ = coord.Advance(ctx, sess.ID, "host-1")
	}

	if sess.Status != domain.StatusEnded {
		t.Fatalf("expected ended after last question, got %s", sess.Status)
	}

	// Submissions after the end reject cleanly.
	if _, err := coord.SubmitAnswer(ctx, sess.ID, ann.ID, 2, "o2"); !errors.Is(err, domain.ErrWrongPhase) {
		t.Fatalf("expected wrong phase after end, got %v", err)
	}
	// Ending again is a no-op, not an error.
	if _, err := coord.End(ctx, sess.ID, "host-1"); err != nil {
		t.Fatalf("re-end should be idempotent: %v", err)
	}
	// Advancing out of a terminal state is invalid.
	if _, err := coord.Advance(ctx, sess.ID, "host-1"); !errors.Is(err, domain.ErrWrongPhase) {
		t.Fatalf("expected wrong phase advancing ended session, got %v", err)
	}
	// The PIN is released once the session ends.
	if _, err := coord.ResolvePIN(ctx, sess.PIN); !errors.Is(err, domain.ErrPinNotFound) {
		t.Fatalf("expected released pin, got %v", err)
	}

	lb, err := coord.Leaderboard(ctx, sess.ID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if !lb.Final || len(lb.Entries) != 1 || lb.Entries[0].Score <= 0 {
		t.Fatalf("unexpected final leaderboard: %+v", lb)
	}
}

func TestAbandonLobby(t *testing.T) {
	ctx := context.Background()
	coord := newTestCoordinator(t, newFakeClock())
	sess, _ := hostAndJoin(t, coord, "Ann")

	abandoned, err := coord.Abandon(ctx, sess.ID, "host-1")
	if err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if abandoned.Status != domain.StatusAbandoned {
		t.Fatalf("expected abandoned, got %s", abandoned.Status)
	}
	if _, _, err := coord.Join(ctx, sess.ID, "Ben", ""); !errors.Is(err, domain.ErrNotJoinable) {
		t.Fatalf("expected not joinable, got %v", err)
	}
	// Abandoning again stays a no-op.
	if _, err := coord.Abandon(ctx, sess.ID, "host-1"); err != nil {
		t.Fatalf("re-abandon should be idempotent: %v", err)
	}
}

func TestSubscribeReceivesRosterUpdates(t *testing.T) {
	ctx := context.Background()
	coord := newTestCoordinator(t, newFakeClock())
	sess, _ := hostAndJoin(t, coord)

	ch, cancel, err := coord.Subscribe(ctx, sess.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	<-ch // initial snapshot

	if _, _, err := coord.Join(ctx, sess.ID, "Ann", ""); err != nil {
		t.Fatalf("join: %v", err)
	}

	select {
	case update := <-ch:
		if len(update.Players) != 1 || update.Players[0].DisplayName != "Ann" {
			t.Fatalf("unexpected snapshot: %+v", update.Players)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot after join")
	}
}
