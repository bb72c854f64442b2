package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/intelguy8000/loopera-whatsapp-ai-rails/internal/events"
	"github.com/intelguy8000/loopera-whatsapp-ai-rails/internal/observability/metrics"
	"github.com/intelguy8000/loopera-whatsapp-ai-rails/pkg/logging"
)

// WebhookHandler handles the Meta webhook verification handshake and
// inbound WhatsApp messages.
type WebhookHandler struct {
	verifyToken string
	appSecret   string
	processed   events.ProcessedStore
	publish     func(ctx context.Context, msg InboundMessage) error
	logger      *logging.Logger
	metrics     *metrics.WebhookMetrics
}

// NewWebhookHandler creates a webhook handler. publish is called once per
// deduplicated inbound message and must not block for long.
func NewWebhookHandler(
	verifyToken, appSecret string,
	processed events.ProcessedStore,
	publish func(ctx context.Context, msg InboundMessage) error,
	logger *logging.Logger,
	m *metrics.WebhookMetrics,
) *WebhookHandler {
	if processed == nil {
		panic("whatsapp: processed store required")
	}
	if publish == nil {
		panic("whatsapp: publish func required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		verifyToken: verifyToken,
		appSecret:   appSecret,
		processed:   processed,
		publish:     publish,
		logger:      logger,
		metrics:     m,
	}
}

// HandleVerification handles the GET webhook verification challenge from
// Meta: the challenge is echoed verbatim when the verify token matches.
func (h *WebhookHandler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, challenge)
		return
	}

	h.logger.Warn("webhook verification failed", "mode", mode)
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleInbound handles POST webhook events. Meta retries aggressively on
// slow or non-2xx responses, so the event is acknowledged as soon as the
// signature checks out; enrichment and replies happen on the job queue.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if !VerifySignature(h.appSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		h.logger.Warn("webhook signature rejected")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)

	// The request context is cancelled once the handler returns; the
	// dedup mark and enqueue below must outlive it.
	ctx := context.WithoutCancel(r.Context())
	for _, msg := range ParseWebhookEvent(event) {
		h.dispatch(ctx, msg)
		h.metrics.ObserveAckLatency(string(msg.Kind), time.Since(start).Seconds())
	}
}

func (h *WebhookHandler) dispatch(ctx context.Context, msg InboundMessage) {
	fresh, err := h.processed.MarkProcessed(ctx, dedupKey(msg))
	if err != nil {
		// Prefer a possible duplicate reply over a dropped message.
		h.logger.Warn("dedup store unavailable, processing anyway", "error", err)
		fresh = true
	}
	if !fresh {
		h.logger.Info("duplicate webhook suppressed", "message_id", msg.MessageID)
		h.metrics.ObserveSuppressed()
		return
	}

	if err := h.publish(ctx, msg); err != nil {
		h.logger.Error("failed to enqueue inbound message", "message_id", msg.MessageID, "error", err)
		h.metrics.ObserveInbound(string(msg.Kind), "enqueue_failed")
		return
	}
	h.metrics.ObserveInbound(string(msg.Kind), "queued")
}

// dedupKey prefers the platform message ID; events without one fall back to
// a sender+content+minute composite.
func dedupKey(msg InboundMessage) string {
	if msg.MessageID != "" {
		return msg.MessageID
	}
	content := msg.Text
	if content == "" {
		content = msg.MediaID
	}
	return events.CompositeKey(msg.SenderID, content, msg.Timestamp)
}

// ParseWebhookEvent extracts normalized InboundMessages from a webhook
// event. Status-only notifications yield nothing.
func ParseWebhookEvent(event WebhookEvent) []InboundMessage {
	var messages []InboundMessage

	for _, entry := range event.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				parsed := InboundMessage{
					MessageID: m.ID,
					SenderID:  m.From,
					Timestamp: parseTimestamp(m.Timestamp),
				}

				switch {
				case m.Type == "text" && m.Text != nil:
					parsed.Kind = KindText
					parsed.Text = m.Text.Body
				case m.Type == "audio" && m.Audio != nil:
					parsed.Kind = KindAudio
					parsed.MediaID = m.Audio.ID
					parsed.MimeType = m.Audio.MimeType
				case m.Type == "image" && m.Image != nil:
					parsed.Kind = KindImage
					parsed.MediaID = m.Image.ID
					parsed.MimeType = m.Image.MimeType
					parsed.Caption = m.Image.Caption
				default:
					parsed.Kind = KindUnknown
					parsed.Text = m.Type
				}

				messages = append(messages, parsed)
			}
		}
	}

	return messages
}

func parseTimestamp(s string) time.Time {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Now().UTC()
	}
	return time.Unix(secs, 0).UTC()
}

// VerifySignature verifies the X-Hub-Signature-256 header over the exact
// raw request body. Returns false on any malformed input, never panics.
func VerifySignature(appSecret string, body []byte, signature string) bool {
	if appSecret == "" || signature == "" {
		return false
	}

	// Signature format: "sha256=<hex>"
	const prefix = "sha256="
	if len(signature) <= len(prefix) {
		return false
	}
	sigHex := signature[len(prefix):]

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(sigHex))
}
