package conversation

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/intelguy8000/loopera-whatsapp-ai-rails/pkg/logging"
)

func newStoreForTest(t *testing.T, maxMessages int) (*HistoryStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewHistoryStore(client, 24*time.Hour, maxMessages, logging.Default()), mr
}

func turn(role ChatRole, content string) ChatMessage {
	return ChatMessage{Role: role, Content: content, Timestamp: time.Unix(1700000000, 0).UTC()}
}

func TestHistoryRoundTripPreservesOrder(t *testing.T) {
	store, _ := newStoreForTest(t, 20)
	ctx := context.Background()

	store.Append(ctx, "15550001111", turn(ChatRoleUser, "hola"), turn(ChatRoleAssistant, "¡Hola! 👋"))
	store.Append(ctx, "15550001111", turn(ChatRoleUser, "precios?"))

	history := store.Load(ctx, "15550001111")
	if len(history) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(history))
	}
	want := []string{"hola", "¡Hola! 👋", "precios?"}
	for i, w := range want {
		if history[i].Content != w {
			t.Fatalf("turn %d: expected %q, got %q", i, w, history[i].Content)
		}
	}
}

func TestHistoryExpiresAfterTTL(t *testing.T) {
	store, mr := newStoreForTest(t, 20)
	ctx := context.Background()

	store.Append(ctx, "15550001111", turn(ChatRoleUser, "hola"))
	if got := store.Load(ctx, "15550001111"); len(got) != 1 {
		t.Fatalf("expected stored turn, got %d", len(got))
	}

	mr.FastForward(25 * time.Hour)

	if got := store.Load(ctx, "15550001111"); len(got) != 0 {
		t.Fatalf("expected empty session after TTL, got %d turns", len(got))
	}
}

func TestHistoryTruncatesOldestAtBoundary(t *testing.T) {
	store, _ := newStoreForTest(t, 4)
	ctx := context.Background()

	store.Append(ctx, "s",
		turn(ChatRoleUser, "m1"), turn(ChatRoleAssistant, "m2"),
		turn(ChatRoleUser, "m3"), turn(ChatRoleAssistant, "m4"),
	)
	// At the ceiling: one more append drops exactly the oldest turn.
	store.Append(ctx, "s", turn(ChatRoleUser, "m5"))

	history := store.Load(ctx, "s")
	if len(history) != 4 {
		t.Fatalf("expected window of 4, got %d", len(history))
	}
	want := []string{"m2", "m3", "m4", "m5"}
	for i, w := range want {
		if history[i].Content != w {
			t.Fatalf("turn %d: expected %q, got %q", i, w, history[i].Content)
		}
	}
}

func TestHistorySendersAreIndependent(t *testing.T) {
	store, _ := newStoreForTest(t, 20)
	ctx := context.Background()

	store.Append(ctx, "a", turn(ChatRoleUser, "de a"))
	store.Append(ctx, "b", turn(ChatRoleUser, "de b"))

	if got := store.Load(ctx, "a"); len(got) != 1 || got[0].Content != "de a" {
		t.Fatalf("unexpected history for a: %+v", got)
	}
	if got := store.Load(ctx, "b"); len(got) != 1 || got[0].Content != "de b" {
		t.Fatalf("unexpected history for b: %+v", got)
	}
}

func TestHistoryUnreachableBackendDegrades(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	store := NewHistoryStore(client, time.Hour, 20, logging.Default())
	ctx := context.Background()

	// Both operations must be silent no-ops, never errors or panics.
	store.Append(ctx, "s", turn(ChatRoleUser, "hola"))
	if got := store.Load(ctx, "s"); got != nil {
		t.Fatalf("expected empty session when backend is down, got %+v", got)
	}
}

func TestHistoryDisabledWithoutBackend(t *testing.T) {
	store := NewHistoryStore(nil, time.Hour, 20, logging.Default())
	if store.Enabled() {
		t.Fatal("expected disabled store")
	}
	store.Append(context.Background(), "s", turn(ChatRoleUser, "hola"))
	if got := store.Load(context.Background(), "s"); got != nil {
		t.Fatalf("expected nil history, got %+v", got)
	}
}
