package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/intelguy8000/loopera-whatsapp-ai-rails/pkg/logging"
)

const (
	defaultSessionTTL  = 24 * time.Hour
	defaultMaxMessages = 20
)

// HistoryStore keeps per-sender conversation history in Redis with a
// sliding window and TTL. Conversational memory is an enhancement, never a
// hard dependency: a nil client or an unreachable Redis yields empty
// sessions and silently skipped appends, not request failures.
type HistoryStore struct {
	redis  *redis.Client
	ttl    time.Duration
	max    int
	logger *logging.Logger
	tracer trace.Tracer
}

// NewHistoryStore creates a HistoryStore. client may be nil to disable
// memory entirely (the service still answers, context-free).
func NewHistoryStore(client *redis.Client, ttl time.Duration, maxMessages int, logger *logging.Logger) *HistoryStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if maxMessages <= 0 {
		maxMessages = defaultMaxMessages
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &HistoryStore{
		redis:  client,
		ttl:    ttl,
		max:    maxMessages,
		logger: logger,
		tracer: otel.Tracer("cami.internal.conversation.history"),
	}
}

// Enabled reports whether a session backend is configured.
func (s *HistoryStore) Enabled() bool {
	return s.redis != nil
}

// Load returns the sender's conversation history. Missing sessions and
// backend failures both come back as an empty history.
func (s *HistoryStore) Load(ctx context.Context, senderID string) []ChatMessage {
	if s.redis == nil {
		return nil
	}
	ctx, span := s.tracer.Start(ctx, "conversation.load_history")
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(senderID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			span.RecordError(err)
			s.logger.Warn("session load failed, continuing without context", "sender", senderID, "error", err)
		}
		return nil
	}

	var history []ChatMessage
	if err := json.Unmarshal(data, &history); err != nil {
		span.RecordError(err)
		s.logger.Warn("session decode failed, continuing without context", "sender", senderID, "error", err)
		return nil
	}
	return history
}

// Append adds turns to the sender's history, truncating from the oldest end
// beyond the configured maximum, and refreshes the TTL. Backend failures
// are logged and swallowed.
func (s *HistoryStore) Append(ctx context.Context, senderID string, turns ...ChatMessage) {
	if s.redis == nil || len(turns) == 0 {
		return
	}
	ctx, span := s.tracer.Start(ctx, "conversation.append_history")
	defer span.End()

	history := append(s.Load(ctx, senderID), turns...)
	if len(history) > s.max {
		history = history[len(history)-s.max:]
	}

	data, err := json.Marshal(history)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("session encode failed", "sender", senderID, "error", err)
		return
	}
	if err := s.redis.Set(ctx, sessionKey(senderID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		s.logger.Warn("session save failed", "sender", senderID, "error", err)
	}
}

func sessionKey(senderID string) string {
	return fmt.Sprintf("conv:%s", senderID)
}
