package memory

import (
	"context"
	"sync"

	"github.com/Brain-Board-Development/BrainBoard/internal/app"
	"github.com/Brain-Board-Development/BrainBoard/internal/domain"
)

// SessionStore is the in-memory implementation of app.SessionStore. Sessions
// are versioned documents: Update refuses a stale Version with ErrConflict,
// and the PIN index only holds sessions that are still live.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	pins     map[string]string
	watchers map[string]map[chan domain.Session]struct{}
}

var _ app.SessionStore = (*SessionStore)(nil)

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]domain.Session),
		pins:     make(map[string]string),
		watchers: make(map[string]map[chan domain.Session]struct{}),
	}
}

// Create stores a new session and atomically reserves its PIN. A PIN held by
// a live session is refused with ErrPinTaken; the caller resamples.
func (s *SessionStore) Create(_ context.Context, sess domain.Session) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, held := s.pins[sess.PIN]; held {
		return domain.Session{}, domain.ErrPinTaken
	}
	sess.Version = 1
	s.sessions[sess.ID] = cloneSession(sess)
	s.pins[sess.PIN] = sess.ID
	return sess, nil
}

func (s *SessionStore) Get(_ context.Context, id string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return cloneSession(sess), nil
}

func (s *SessionStore) ResolvePIN(_ context.Context, pin string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.pins[pin]
	if !ok {
		return domain.Session{}, domain.ErrPinNotFound
	}
	return cloneSession(s.sessions[id]), nil
}

// Update is the compare-and-swap: the stored version must equal the version
// the caller read. On success the version is bumped, the PIN is released if
// the session became terminal, and watchers are notified.
func (s *SessionStore) Update(_ context.Context, sess domain.Session) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[sess.ID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if current.Version != sess.Version {
		return domain.Session{}, domain.ErrConflict
	}

	sess.Version++
	s.sessions[sess.ID] = cloneSession(sess)
	if sess.Status.Terminal() {
		if holder, held := s.pins[sess.PIN]; held && holder == sess.ID {
			delete(s.pins, sess.PIN)
		}
	}
	s.notifyLocked(sess)
	return sess, nil
}

// Watch registers a snapshot channel for the session. The current snapshot,
// if any, is delivered first. Slow watchers have their stale snapshot dropped
// rather than blocking the writer.
func (s *SessionStore) Watch(id string) (<-chan domain.Session, func()) {
	ch := make(chan domain.Session, 8)

	s.mu.Lock()
	if s.watchers[id] == nil {
		s.watchers[id] = make(map[chan domain.Session]struct{})
	}
	s.watchers[id][ch] = struct{}{}
	sess, ok := s.sessions[id]
	if ok {
		ch <- cloneSession(sess)
	}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if set, exists := s.watchers[id]; exists {
			if _, registered := set[ch]; registered {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(s.watchers, id)
			}
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *SessionStore) notifyLocked(sess domain.Session) {
	for ch := range s.watchers[sess.ID] {
		snapshot := cloneSession(sess)
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}

// cloneSession deep-copies the slices so callers never share backing arrays
// with the stored record.
func cloneSession(sess domain.Session) domain.Session {
	out := sess
	out.Players = make([]domain.Player, len(sess.Players))
	copy(out.Players, sess.Players)
	if len(sess.Answers) > 0 {
		out.Answers = make([]domain.AnswerRecord, len(sess.Answers))
		copy(out.Answers, sess.Answers)
	} else {
		out.Answers = nil
	}
	return out
}
