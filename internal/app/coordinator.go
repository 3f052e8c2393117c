package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Brain-Board-Development/BrainBoard/internal/domain"
)

// SessionStore is the single arbitration point for session state. Update is a
// compare-and-swap on Session.Version; Create atomically reserves the PIN.
type SessionStore interface {
	Create(ctx context.Context, sess domain.Session) (domain.Session, error)
	Get(ctx context.Context, id string) (domain.Session, error)
	ResolvePIN(ctx context.Context, pin string) (domain.Session, error)
	Update(ctx context.Context, sess domain.Session) (domain.Session, error)
	// Watch delivers advisory snapshots after each successful mutation. The
	// caller must invoke the returned cancel function to avoid leaks.
	Watch(id string) (<-chan domain.Session, func())
}

// GameRepository loads quiz definitions (from cache/backing store).
type GameRepository interface {
	GetGame(ctx context.Context, gameID string) (domain.Game, error)
}

const (
	pinAttempts     = 20
	conflictRetries = 5
)

// errUnchanged signals a mutation that turned out to be a no-op; the mutate
// loop skips the store write so idempotent calls do not bump the version.
var errUnchanged = errors.New("session unchanged")

// Coordinator owns the session lifecycle: hosting, PIN-based join, the
// lobby/playing/ended state machine, and timed answer scoring. All mutations
// run through a bounded read-modify-CAS loop so racing writers never
// overwrite each other.
type Coordinator struct {
	store    SessionStore
	games    GameRepository
	defaults domain.Settings
	clock    func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewCoordinator(store SessionStore, games GameRepository, defaults domain.Settings) *Coordinator {
	return NewCoordinatorWithClock(store, games, defaults, time.Now)
}

// NewCoordinatorWithClock allows deterministic timestamps in tests.
func NewCoordinatorWithClock(store SessionStore, games GameRepository, defaults domain.Settings, now func() time.Time) *Coordinator {
	return &Coordinator{
		store:    store,
		games:    games,
		defaults: applyDefaults(defaults),
		clock:    now,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func applyDefaults(s domain.Settings) domain.Settings {
	if s.MaxPlayers <= 0 {
		s.MaxPlayers = 50
	}
	if s.MinPlayers <= 0 {
		s.MinPlayers = 1
	}
	if s.TimePerQuestion <= 0 {
		s.TimePerQuestion = 30 * time.Second
	}
	if s.HostGracePeriod <= 0 {
		s.HostGracePeriod = 10 * time.Second
	}
	return s
}

// Host creates a session in the lobby state with a freshly allocated PIN.
// PIN allocation is sample-and-reserve: the store's Create refuses a PIN held
// by a live session, and the loop resamples up to pinAttempts times before
// reporting ErrAllocationExhausted.
func (c *Coordinator) Host(ctx context.Context, gameID, hostID string, settings domain.Settings) (domain.Session, error) {
	if _, err := c.games.GetGame(ctx, gameID); err != nil {
		return domain.Session{}, err
	}

	merged := settings
	if merged.MaxPlayers <= 0 {
		merged.MaxPlayers = c.defaults.MaxPlayers
	}
	if merged.MinPlayers <= 0 {
		merged.MinPlayers = c.defaults.MinPlayers
	}
	if merged.TimePerQuestion <= 0 {
		merged.TimePerQuestion = c.defaults.TimePerQuestion
	}
	if merged.HostGracePeriod <= 0 {
		merged.HostGracePeriod = c.defaults.HostGracePeriod
	}

	for attempt := 0; attempt < pinAttempts; attempt++ {
		sess := domain.Session{
			ID:        uuid.NewString(),
			PIN:       c.randomPIN(),
			HostID:    hostID,
			GameID:    gameID,
			Status:    domain.StatusLobby,
			Settings:  merged,
			Players:   []domain.Player{},
			CreatedAt: c.clock(),
		}
		created, err := c.store.Create(ctx, sess)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, domain.ErrPinTaken) {
			return domain.Session{}, err
		}
	}
	return domain.Session{}, domain.ErrAllocationExhausted
}

// randomPIN samples uniformly from 000000-999999.
func (c *Coordinator) randomPIN() string {
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return fmt.Sprintf("%06d", c.rnd.Intn(1_000_000))
}

// ResolvePIN maps a human-entered join code to its live session.
func (c *Coordinator) ResolvePIN(ctx context.Context, pin string) (domain.Session, error) {
	sess, err := c.store.ResolvePIN(ctx, pin)
	if err != nil {
		return domain.Session{}, err
	}
	if !sess.Joinable() {
		return sess, domain.ErrNotJoinable
	}
	return sess, nil
}

// GetSession returns the current snapshot of a session.
func (c *Coordinator) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	return c.store.Get(ctx, sessionID)
}

// Join validates and appends a new player. The uniqueness and capacity checks
// run inside the CAS loop, so two racing joins with the same name cannot both
// succeed. An empty displayName gets an auto-generated nickname.
func (c *Coordinator) Join(ctx context.Context, sessionID, displayName, clientRef string) (domain.Player, domain.Session, error) {
	var joined domain.Player
	sess, err := c.mutate(ctx, sessionID, func(s *domain.Session) error {
		switch {
		case s.Status == domain.StatusLobby:
		case s.Status == domain.StatusPlaying && s.Settings.AllowLateJoin:
		case s.Status == domain.StatusPlaying:
			return domain.ErrGameAlreadyStarted
		default:
			return domain.ErrNotJoinable
		}

		name := strings.TrimSpace(displayName)
		if name == "" {
			name = c.pickNickname(s)
		} else {
			if n := utf8.RuneCountInString(name); n < minNameLen || n > maxNameLen {
				return domain.ErrInvalidName
			}
			if s.PlayerByName(name) != nil {
				return domain.ErrNameTaken
			}
		}
		if len(s.Players) >= s.Settings.MaxPlayers {
			return domain.ErrLobbyFull
		}

		joined = domain.Player{
			ID:          uuid.NewString(),
			DisplayName: name,
			ClientRef:   clientRef,
			JoinedAt:    c.clock(),
		}
		s.Players = append(s.Players, joined)
		return nil
	})
	if err != nil {
		return domain.Player{}, domain.Session{}, err
	}
	return joined, sess, nil
}

// Rejoin is idempotent re-entry after a dropped connection: it returns the
// existing player unchanged rather than erroring or duplicating.
func (c *Coordinator) Rejoin(ctx context.Context, sessionID, playerID string) (domain.Player, domain.Session, error) {
	sess, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return domain.Player{}, domain.Session{}, err
	}
	player := sess.PlayerByID(playerID)
	if player == nil {
		return domain.Player{}, domain.Session{}, domain.ErrPlayerNotFound
	}
	return *player, sess, nil
}

// Start moves the session from lobby to playing and opens question 0. Only
// the host may start, and only with at least MinPlayers joined.
func (c *Coordinator) Start(ctx context.Context, sessionID, hostID string) (domain.Session, error) {
	sess, err := c.mutate(ctx, sessionID, func(s *domain.Session) error {
		if s.HostID != hostID {
			return domain.ErrNotHost
		}
		if s.Status != domain.StatusLobby {
			return domain.ErrWrongPhase
		}
		if len(s.Players) < s.Settings.MinPlayers {
			return domain.ErrNotEnoughPlayers
		}
		game, err := c.games.GetGame(ctx, s.GameID)
		if err != nil {
			return err
		}
		s.Status = domain.StatusPlaying
		if len(game.Questions) == 0 {
			c.finalize(s)
			return nil
		}
		c.openQuestion(s, &game, 0)
		return nil
	})
	if err == nil {
		c.scheduleDeadline(sess)
	}
	return sess, err
}

// Advance is the host's transition out of the current question: it closes it
// (possibly before the time limit) and opens the next one, or ends the
// session when no questions remain.
func (c *Coordinator) Advance(ctx context.Context, sessionID, hostID string) (domain.Session, error) {
	sess, err := c.mutate(ctx, sessionID, func(s *domain.Session) error {
		if s.HostID != hostID {
			return domain.ErrNotHost
		}
		return c.advanceLocked(ctx, s)
	})
	if err == nil {
		c.scheduleDeadline(sess)
	}
	return sess, err
}

func (c *Coordinator) advanceLocked(ctx context.Context, s *domain.Session) error {
	if s.Status != domain.StatusPlaying {
		return domain.ErrWrongPhase
	}
	game, err := c.games.GetGame(ctx, s.GameID)
	if err != nil {
		return err
	}
	next := s.CurrentQuestion + 1
	if next >= len(game.Questions) {
		c.finalize(s)
		return nil
	}
	c.openQuestion(s, &game, next)
	return nil
}

// End finalizes the session. Idempotent: ending an already-terminal session
// is a no-op so retried calls do not fail.
func (c *Coordinator) End(ctx context.Context, sessionID, hostID string) (domain.Session, error) {
	return c.mutate(ctx, sessionID, func(s *domain.Session) error {
		if s.HostID != hostID {
			return domain.ErrNotHost
		}
		if s.Status.Terminal() {
			return errUnchanged
		}
		c.finalize(s)
		return nil
	})
}

// Abandon is the host walking away. A lobby becomes abandoned so players'
// clients can detect it instead of polling an orphaned record; a running game
// is ended with scores finalized. Terminal sessions are left alone.
func (c *Coordinator) Abandon(ctx context.Context, sessionID, hostID string) (domain.Session, error) {
	return c.mutate(ctx, sessionID, func(s *domain.Session) error {
		if s.HostID != hostID {
			return domain.ErrNotHost
		}
		switch s.Status {
		case domain.StatusLobby:
			s.Status = domain.StatusAbandoned
			s.EndedAt = c.clock()
			return nil
		case domain.StatusPlaying:
			c.finalize(s)
			return nil
		default:
			return errUnchanged
		}
	})
}

// SubmitAnswer records a player's choice for the current question. The first
// accepted submission per (player, question) is final; admission is judged
// against the server clock and the question deadline, never the client's.
func (c *Coordinator) SubmitAnswer(ctx context.Context, sessionID, playerID string, questionIndex int, optionID string) (domain.AnswerResult, error) {
	var result domain.AnswerResult
	_, err := c.mutate(ctx, sessionID, func(s *domain.Session) error {
		if s.Status != domain.StatusPlaying {
			return domain.ErrWrongPhase
		}
		player := s.PlayerByID(playerID)
		if player == nil {
			return domain.ErrPlayerNotFound
		}
		if questionIndex != s.CurrentQuestion || s.QuestionPhase != domain.PhaseActive {
			return domain.ErrWrongPhase
		}
		if s.AnswerFor(playerID, questionIndex) != nil {
			return domain.ErrAlreadySubmitted
		}
		now := c.clock()
		if now.After(s.QuestionDeadline) {
			return domain.ErrTooLate
		}

		game, err := c.games.GetGame(ctx, s.GameID)
		if err != nil {
			return err
		}
		if questionIndex >= len(game.Questions) {
			return domain.ErrWrongPhase
		}
		question := game.Questions[questionIndex]
		var selected *domain.Option
		for i := range question.Options {
			if question.Options[i].ID == optionID {
				selected = &question.Options[i]
				break
			}
		}
		if selected == nil {
			return domain.ErrOptionNotFound
		}

		elapsed := now.Sub(s.QuestionStartedAt)
		limit := s.QuestionDeadline.Sub(s.QuestionStartedAt)
		awarded := 0
		if selected.Correct {
			awarded = awardPoints(question.Points, elapsed, limit)
			player.Score += awarded
			player.LastScoredAt = now
		}
		s.Answers = append(s.Answers, domain.AnswerRecord{
			PlayerID:      playerID,
			QuestionIndex: questionIndex,
			OptionID:      optionID,
			Elapsed:       elapsed,
			Correct:       selected.Correct,
			Awarded:       awarded,
		})
		result = domain.AnswerResult{
			QuestionIndex: questionIndex,
			Correct:       selected.Correct,
			Awarded:       awarded,
			TotalScore:    player.Score,
		}
		return nil
	})
	return result, err
}

// Leaderboard ranks the roster: score descending, then whoever reached their
// score first, then join order.
func (c *Coordinator) Leaderboard(ctx context.Context, sessionID string) (domain.Leaderboard, error) {
	sess, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return buildLeaderboard(&sess, c.clock()), nil
}

// Subscribe returns a channel of session snapshots. Snapshots are advisory:
// display staleness up to one notification is fine, but admission and scoring
// always re-read through the store.
func (c *Coordinator) Subscribe(ctx context.Context, sessionID string) (<-chan domain.Session, func(), error) {
	if _, err := c.store.Get(ctx, sessionID); err != nil {
		return nil, nil, err
	}
	ch, cancel := c.store.Watch(sessionID)
	return ch, cancel, nil
}

func (c *Coordinator) openQuestion(s *domain.Session, game *domain.Game, index int) {
	now := c.clock()
	// Per-question limit, then the game's own pacing; the session setting is
	// the fallback for games that define neither.
	limit := game.LimitFor(index)
	if limit <= 0 {
		limit = s.Settings.TimePerQuestion
	}
	s.CurrentQuestion = index
	s.QuestionPhase = domain.PhaseActive
	s.QuestionStartedAt = now
	s.QuestionDeadline = now.Add(limit)
}

func (c *Coordinator) finalize(s *domain.Session) {
	s.Status = domain.StatusEnded
	s.QuestionPhase = domain.PhaseClosed
	s.EndedAt = c.clock()
}

// mutate is the bounded read-modify-CAS loop every mutation runs through.
// Business rejections from fn abort immediately; ErrConflict triggers a fresh
// read and retry; errUnchanged returns the current record without a write.
func (c *Coordinator) mutate(ctx context.Context, sessionID string, fn func(*domain.Session) error) (domain.Session, error) {
	for attempt := 0; attempt < conflictRetries; attempt++ {
		sess, err := c.store.Get(ctx, sessionID)
		if err != nil {
			return domain.Session{}, err
		}
		if err := fn(&sess); err != nil {
			if errors.Is(err, errUnchanged) {
				return sess, nil
			}
			return domain.Session{}, err
		}
		updated, err := c.store.Update(ctx, sess)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return domain.Session{}, err
		}
	}
	return domain.Session{}, fmt.Errorf("update session %s: %w", sessionID, domain.ErrConflict)
}

// scheduleDeadline arms the server-side timers for the just-opened question:
// close at the deadline, then advance after the host grace period. The server
// process is the timer authority, so a disconnected host cannot stall the
// session. Both callbacks re-check the session state under CAS, so a stale
// timer firing after the host already advanced is a no-op.
func (c *Coordinator) scheduleDeadline(sess domain.Session) {
	if sess.Status != domain.StatusPlaying || sess.QuestionPhase != domain.PhaseActive {
		return
	}
	index := sess.CurrentQuestion
	id := sess.ID
	untilDeadline := sess.QuestionDeadline.Sub(c.clock())
	if untilDeadline < 0 {
		untilDeadline = 0
	}
	time.AfterFunc(untilDeadline, func() {
		c.expireQuestion(id, index)
	})
	time.AfterFunc(untilDeadline+sess.Settings.HostGracePeriod, func() {
		c.autoAdvance(id, index)
	})
}

// expireQuestion closes the question at index once its deadline has passed.
func (c *Coordinator) expireQuestion(sessionID string, index int) {
	ctx := context.Background()
	_, err := c.mutate(ctx, sessionID, func(s *domain.Session) error {
		if s.Status != domain.StatusPlaying || s.CurrentQuestion != index || s.QuestionPhase != domain.PhaseActive {
			return errUnchanged
		}
		if c.clock().Before(s.QuestionDeadline) {
			return errUnchanged
		}
		s.QuestionPhase = domain.PhaseClosed
		return nil
	})
	if err != nil && !domain.IsRejection(err) {
		log.Printf("expire question %d in session %s: %v", index, sessionID, err)
	}
}

// autoAdvance moves past a closed question the host never advanced.
func (c *Coordinator) autoAdvance(sessionID string, index int) {
	ctx := context.Background()
	advanced := false
	sess, err := c.mutate(ctx, sessionID, func(s *domain.Session) error {
		advanced = false
		if s.Status != domain.StatusPlaying || s.CurrentQuestion != index {
			return errUnchanged
		}
		if s.QuestionPhase == domain.PhaseActive && c.clock().Before(s.QuestionDeadline) {
			return errUnchanged
		}
		if err := c.advanceLocked(ctx, s); err != nil {
			return err
		}
		advanced = true
		return nil
	})
	if err != nil {
		if !domain.IsRejection(err) {
			log.Printf("auto-advance session %s past question %d: %v", sessionID, index, err)
		}
		return
	}
	if advanced {
		c.scheduleDeadline(sess)
	}
}
