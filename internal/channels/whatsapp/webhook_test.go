package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/intelguy8000/loopera-whatsapp-ai-rails/internal/events"
	"github.com/intelguy8000/loopera-whatsapp-ai-rails/pkg/logging"
)

const textEventBody = `{
	"object": "whatsapp_business_account",
	"entry": [{
		"id": "104500000000000",
		"changes": [{
			"field": "messages",
			"value": {
				"messaging_product": "whatsapp",
				"metadata": {"display_phone_number": "15550009999", "phone_number_id": "949507764911133"},
				"messages": [{
					"from": "15550001111",
					"id": "wamid.text1",
					"timestamp": "1700000000",
					"type": "text",
					"text": {"body": "hola"}
				}]
			}
		}]
	}]
}`

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "test_app_secret"
	body := []byte(`{"object":"whatsapp_business_account","entry":[]}`)
	validSig := sign(secret, body)

	tests := []struct {
		name      string
		secret    string
		body      []byte
		signature string
		want      bool
	}{
		{"valid signature", secret, body, validSig, true},
		{"wrong signature", secret, body, "sha256=0000000000000000000000000000000000000000000000000000000000000000", false},
		{"empty signature", secret, body, "", false},
		{"empty secret", "", body, validSig, false},
		{"missing prefix", secret, body, "abcdef", false},
		{"tampered body", secret, []byte(`tampered`), validSig, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VerifySignature(tt.secret, tt.body, tt.signature)
			if got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

type capturePublisher struct {
	messages []InboundMessage
}

func (c *capturePublisher) publish(_ context.Context, msg InboundMessage) error {
	c.messages = append(c.messages, msg)
	return nil
}

func newTestHandler(t *testing.T) (*WebhookHandler, *capturePublisher) {
	t.Helper()
	pub := &capturePublisher{}
	h := NewWebhookHandler("my_verify_token", "secret", events.NewMemoryStore(time.Hour), pub.publish, logging.Default(), nil)
	return h, pub
}

func TestHandleVerification(t *testing.T) {
	h, _ := newTestHandler(t)

	t.Run("valid challenge", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/webhook?hub.mode=subscribe&hub.verify_token=my_verify_token&hub.challenge=CHALLENGE_123",
			nil)
		w := httptest.NewRecorder()
		h.HandleVerification(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if w.Body.String() != "CHALLENGE_123" {
			t.Fatalf("expected challenge echo, got %q", w.Body.String())
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=CHALLENGE_123",
			nil)
		w := httptest.NewRecorder()
		h.HandleVerification(w, req)

		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", w.Code)
		}
		if strings.Contains(w.Body.String(), "CHALLENGE_123") {
			t.Fatal("challenge must not leak on failed verification")
		}
	})
}

func TestHandleInboundRejectsTamperedSignature(t *testing.T) {
	h, pub := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(textEventBody))
	req.Header.Set("X-Hub-Signature-256", sign("secret", []byte("different body")))
	w := httptest.NewRecorder()
	h.HandleInbound(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if len(pub.messages) != 0 {
		t.Fatalf("expected no downstream work on bad signature, got %d messages", len(pub.messages))
	}
}

func TestHandleInboundQueuesTextMessage(t *testing.T) {
	h, pub := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(textEventBody))
	req.Header.Set("X-Hub-Signature-256", sign("secret", []byte(textEventBody)))
	w := httptest.NewRecorder()
	h.HandleInbound(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected one queued message, got %d", len(pub.messages))
	}
	msg := pub.messages[0]
	if msg.Kind != KindText || msg.Text != "hola" || msg.SenderID != "15550001111" {
		t.Fatalf("unexpected parsed message: %+v", msg)
	}
	if msg.Timestamp.Unix() != 1700000000 {
		t.Fatalf("unexpected timestamp: %v", msg.Timestamp)
	}
}

func TestHandleInboundSuppressesRedelivery(t *testing.T) {
	h, pub := newTestHandler(t)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(textEventBody))
		req.Header.Set("X-Hub-Signature-256", sign("secret", []byte(textEventBody)))
		w := httptest.NewRecorder()
		h.HandleInbound(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("redelivery %d: expected 200 ack, got %d", i, w.Code)
		}
	}

	if len(pub.messages) != 1 {
		t.Fatalf("expected exactly one processed message across redeliveries, got %d", len(pub.messages))
	}
}

func TestHandleInboundAcksStatusOnlyPayload(t *testing.T) {
	h, pub := newTestHandler(t)
	body := `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{"statuses":[{"id":"wamid.x","status":"delivered"}]}}]}]}`

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign("secret", []byte(body)))
	w := httptest.NewRecorder()
	h.HandleInbound(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(pub.messages) != 0 {
		t.Fatalf("status updates must not enqueue work, got %d", len(pub.messages))
	}
}

func TestParseWebhookEventKinds(t *testing.T) {
	event := WebhookEvent{
		Object: "whatsapp_business_account",
		Entry: []Entry{{
			Changes: []Change{{
				Field: "messages",
				Value: Value{Messages: []Message{
					{From: "1", ID: "wamid.a", Timestamp: "1700000000", Type: "audio", Audio: &MediaRef{ID: "media-1", MimeType: "audio/ogg; codecs=opus", Voice: true}},
					{From: "1", ID: "wamid.b", Timestamp: "1700000001", Type: "image", Image: &MediaRef{ID: "media-2", MimeType: "image/jpeg", Caption: "un plano"}},
					{From: "1", ID: "wamid.c", Timestamp: "1700000002", Type: "sticker"},
				}},
			}},
		}},
	}

	msgs := ParseWebhookEvent(event)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Kind != KindAudio || msgs[0].MediaID != "media-1" {
		t.Fatalf("unexpected audio parse: %+v", msgs[0])
	}
	if msgs[1].Kind != KindImage || msgs[1].Caption != "un plano" {
		t.Fatalf("unexpected image parse: %+v", msgs[1])
	}
	if msgs[2].Kind != KindUnknown {
		t.Fatalf("unexpected fallback parse: %+v", msgs[2])
	}
}
