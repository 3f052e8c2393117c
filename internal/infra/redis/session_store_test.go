package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Brain-Board-Development/BrainBoard/internal/domain"
)

func newTestStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewSessionStore(client, time.Hour), mr
}

func testSession(id, pin string) domain.Session {
	return domain.Session{
		ID:        id,
		PIN:       pin,
		HostID:    "host-1",
		GameID:    "game-1",
		Status:    domain.StatusLobby,
		CreatedAt: time.Now().UTC(),
	}
}

func TestSessionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	created, err := store.Create(ctx, testSession("s1", "482913"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Version != 1 {
		t.Fatalf("expected version 1, got %d", created.Version)
	}
	if !mr.Exists("session:doc:s1") || !mr.Exists("session:pin:482913") {
		t.Fatal("expected doc and pin keys in redis")
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PIN != "482913" || got.Status != domain.StatusLobby {
		t.Fatalf("unexpected session %+v", got)
	}

	resolved, err := store.ResolvePIN(ctx, "482913")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ID != "s1" {
		t.Fatalf("resolved wrong session %s", resolved.ID)
	}

	if _, err := store.Create(ctx, testSession("s2", "482913")); !errors.Is(err, domain.ErrPinTaken) {
		t.Fatalf("expected pin taken, got %v", err)
	}
}

func TestSessionStoreConflictOnStaleVersion(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	created, _ := store.Create(ctx, testSession("s1", "111111"))

	first := created
	first.Players = []domain.Player{{ID: "p1", DisplayName: "Ann"}}
	second := created
	second.Players = []domain.Player{{ID: "p2", DisplayName: "Ben"}}

	if _, err := store.Update(ctx, first); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if _, err := store.Update(ctx, second); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	final, _ := store.Get(ctx, "s1")
	if len(final.Players) != 1 || final.Players[0].ID != "p1" {
		t.Fatalf("lost-update protection failed: %+v", final.Players)
	}
}

func TestSessionStoreDropsPinOnTerminal(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	created, _ := store.Create(ctx, testSession("s1", "222222"))

	created.Status = domain.StatusEnded
	if _, err := store.Update(ctx, created); err != nil {
		t.Fatalf("update: %v", err)
	}
	if mr.Exists("session:pin:222222") {
		t.Fatal("expected pin key removed for ended session")
	}
	if _, err := store.ResolvePIN(ctx, "222222"); !errors.Is(err, domain.ErrPinNotFound) {
		t.Fatalf("expected pin not found, got %v", err)
	}
	// The pin is free for a new session.
	if _, err := store.Create(ctx, testSession("s2", "222222")); err != nil {
		t.Fatalf("pin reuse after end: %v", err)
	}
}

func TestSessionStoreRefreshesPinTTLOnUpdate(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	created, _ := store.Create(ctx, testSession("s1", "482913"))

	mr.FastForward(40 * time.Minute)
	created.Players = []domain.Player{{ID: "p1", DisplayName: "Ann"}}
	if _, err := store.Update(ctx, created); err != nil {
		t.Fatalf("update: %v", err)
	}

	// The pin index must live as long as the doc it points at.
	if ttl := mr.TTL("session:pin:482913"); ttl < 59*time.Minute {
		t.Fatalf("pin ttl not refreshed with the doc: %s", ttl)
	}
}

func TestSessionStoreEndLeavesReallocatedPinAlone(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	first, _ := store.Create(ctx, testSession("s1", "482913"))

	// The pin index expired while the session doc lived on, and the pin got
	// handed to a new session.
	mr.Del("session:pin:482913")
	if _, err := store.Create(ctx, testSession("s2", "482913")); err != nil {
		t.Fatalf("create s2: %v", err)
	}

	first.Status = domain.StatusEnded
	if _, err := store.Update(ctx, first); err != nil {
		t.Fatalf("end s1: %v", err)
	}

	resolved, err := store.ResolvePIN(ctx, "482913")
	if err != nil {
		t.Fatalf("live session lost its pin: %v", err)
	}
	if resolved.ID != "s2" {
		t.Fatalf("pin resolved to %s, want s2", resolved.ID)
	}
}

func TestSessionStoreWatchDeliversUpdates(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	created, _ := store.Create(ctx, testSession("s1", "333333"))

	ch, cancel := store.Watch("s1")
	defer cancel()

	select {
	case initial := <-ch:
		if initial.ID != "s1" {
			t.Fatalf("unexpected initial snapshot %+v", initial)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	created.Players = []domain.Player{{ID: "p1", DisplayName: "Ann"}}
	if _, err := store.Update(ctx, created); err != nil {
		t.Fatalf("update: %v", err)
	}

	select {
	case update := <-ch:
		if len(update.Players) != 1 || update.Players[0].DisplayName != "Ann" {
			t.Fatalf("unexpected snapshot %+v", update.Players)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after update")
	}
}
