package events

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// ProcessedStore is the dedup window: it records webhook message IDs that
// were already handled so at-least-once redeliveries produce no side
// effects. Entries expire after a bounded retention period.
type ProcessedStore interface {
	// MarkProcessed records the event ID, returning false when it was
	// already present within the retention window.
	MarkProcessed(ctx context.Context, eventID string) (bool, error)
	// AlreadyProcessed reports whether the event ID is in the window.
	AlreadyProcessed(ctx context.Context, eventID string) (bool, error)
}

// CompositeKey derives a dedup key for events that carry no platform
// message ID: sender + content hash + minute bucket.
func CompositeKey(senderID, content string, receivedAt time.Time) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%s:%s:%d", senderID, hex.EncodeToString(sum[:8]), receivedAt.Unix()/60)
}

// MemoryStore is an in-process ProcessedStore with time-based eviction.
// Suitable for single-instance deployments and tests.
type MemoryStore struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	retention time.Duration
	now       func() time.Time
}

// NewMemoryStore creates a MemoryStore with the given retention window.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &MemoryStore{
		seen:      make(map[string]time.Time),
		retention: retention,
		now:       time.Now,
	}
}

func (s *MemoryStore) MarkProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.prune(now)
	if expiry, ok := s.seen[eventID]; ok && now.Before(expiry) {
		return false, nil
	}
	s.seen[eventID] = now.Add(s.retention)
	return true, nil
}

func (s *MemoryStore) AlreadyProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.seen[eventID]
	return ok && s.now().Before(expiry), nil
}

// prune drops expired entries. Called under the lock on every mark so the
// map never grows unbounded.
func (s *MemoryStore) prune(now time.Time) {
	for id, expiry := range s.seen {
		if !now.Before(expiry) {
			delete(s.seen, id)
		}
	}
}
