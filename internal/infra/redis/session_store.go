package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Brain-Board-Development/BrainBoard/internal/app"
	"github.com/Brain-Board-Development/BrainBoard/internal/domain"
)

// SessionStore keeps each session as a JSON document in Redis and implements
// the conditional-update contract with WATCH/MULTI optimistic transactions:
// a concurrent writer invalidates the watched key and the losing Update
// returns ErrConflict instead of overwriting.
//
// Keys:
//   - session:doc:{id}   JSON session document
//   - session:pin:{pin}  PIN index entry, present only while the session is live
//
// Change notifications fan out over pub/sub channel session:events:{id}.
// Cross-instance write ownership is out of scope; the TTL guards against
// leaked keys if a process dies mid-session.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ app.SessionStore = (*SessionStore)(nil)

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) Create(ctx context.Context, sess domain.Session) (domain.Session, error) {
	sess.Version = 1
	payload, err := json.Marshal(sess)
	if err != nil {
		return domain.Session{}, fmt.Errorf("marshal session: %w", err)
	}

	reserved, err := s.client.SetNX(ctx, s.pinKey(sess.PIN), sess.ID, s.ttl).Result()
	if err != nil {
		return domain.Session{}, fmt.Errorf("reserve pin: %w", err)
	}
	if !reserved {
		return domain.Session{}, domain.ErrPinTaken
	}

	if err := s.client.Set(ctx, s.docKey(sess.ID), payload, s.ttl).Err(); err != nil {
		return domain.Session{}, fmt.Errorf("store session: %w", err)
	}
	s.publish(ctx, sess.ID, payload)
	return sess, nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (domain.Session, error) {
	raw, err := s.client.Get(ctx, s.docKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return domain.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) ResolvePIN(ctx context.Context, pin string) (domain.Session, error) {
	id, err := s.client.Get(ctx, s.pinKey(pin)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrPinNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("resolve pin: %w", err)
	}
	sess, err := s.Get(ctx, id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return domain.Session{}, domain.ErrPinNotFound
	}
	return sess, err
}

func (s *SessionStore) Update(ctx context.Context, sess domain.Session) (domain.Session, error) {
	key := s.docKey(sess.ID)
	var updated domain.Session

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		var current domain.Session
		if err := json.Unmarshal(raw, &current); err != nil {
			return fmt.Errorf("unmarshal session: %w", err)
		}
		if current.Version != sess.Version {
			return domain.ErrConflict
		}

		// The pin index may have expired and been reallocated to a newer
		// session; only touch it while this session still holds it.
		holder, err := tx.Get(ctx, s.pinKey(sess.PIN)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("load pin: %w", err)
		}
		ownsPin := holder == sess.ID

		updated = sess
		updated.Version++
		payload, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			if ownsPin {
				if updated.Status.Terminal() {
					pipe.Del(ctx, s.pinKey(updated.PIN))
				} else {
					pipe.Expire(ctx, s.pinKey(updated.PIN), s.ttl)
				}
			}
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txf, key, s.pinKey(sess.PIN))
	if errors.Is(err, redis.TxFailedErr) {
		return domain.Session{}, domain.ErrConflict
	}
	if err != nil {
		return domain.Session{}, err
	}

	if payload, err := json.Marshal(updated); err == nil {
		s.publish(ctx, updated.ID, payload)
	}
	return updated, nil
}

// Watch subscribes to the session's event channel. The current snapshot is
// delivered first; cancel closes the subscription and drains the channel.
func (s *SessionStore) Watch(id string) (<-chan domain.Session, func()) {
	ctx := context.Background()
	out := make(chan domain.Session, 8)
	pubsub := s.client.Subscribe(ctx, s.eventsKey(id))

	go func() {
		defer close(out)
		if sess, err := s.Get(ctx, id); err == nil {
			out <- sess
		}
		for msg := range pubsub.Channel() {
			var sess domain.Session
			if err := json.Unmarshal([]byte(msg.Payload), &sess); err != nil {
				continue
			}
			select {
			case out <- sess:
			default:
				select {
				case <-out:
				default:
				}
				out <- sess
			}
		}
	}()

	cancel := func() {
		_ = pubsub.Close()
	}
	return out, cancel
}

func (s *SessionStore) publish(ctx context.Context, id string, payload []byte) {
	// best-effort; write-path correctness never depends on delivery
	_ = s.client.Publish(ctx, s.eventsKey(id), payload).Err()
}

func (s *SessionStore) docKey(id string) string {
	return "session:doc:" + id
}

func (s *SessionStore) pinKey(pin string) string {
	return "session:pin:" + pin
}

func (s *SessionStore) eventsKey(id string) string {
	return "session:events:" + id
}
