package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/intelguy8000/loopera-whatsapp-ai-rails/internal/media"
	"github.com/intelguy8000/loopera-whatsapp-ai-rails/internal/observability/metrics"
	"github.com/intelguy8000/loopera-whatsapp-ai-rails/pkg/logging"
)

const (
	sendRetries    = 1
	sendRetryDelay = 2 * time.Second
)

// Dispatcher sends replies through WhatsApp. Audio outside the platform's
// allow-list is transcoded first; any audio failure degrades the reply to
// text rather than dropping it. Transient send failures get one retry.
type Dispatcher struct {
	messenger  Messenger
	transcoder media.Transcoder
	logger     *logging.Logger
	metrics    *metrics.WebhookMetrics
	retryDelay time.Duration
}

// NewDispatcher creates a Dispatcher. transcoder may be nil, in which case
// non-compliant audio degrades to text immediately.
func NewDispatcher(messenger Messenger, transcoder media.Transcoder, logger *logging.Logger, m *metrics.WebhookMetrics) *Dispatcher {
	if messenger == nil {
		panic("conversation: messenger cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		messenger:  messenger,
		transcoder: transcoder,
		logger:     logger,
		metrics:    m,
		retryDelay: sendRetryDelay,
	}
}

// Send delivers the reply. The returned error is terminal: the caller logs
// it and moves on, it never propagates to the webhook response.
func (d *Dispatcher) Send(ctx context.Context, reply Reply) error {
	if reply.Kind == ReplyAudio {
		err := d.sendAudio(ctx, reply)
		if err == nil {
			d.metrics.ObserveOutbound(string(ReplyAudio), "sent")
			return nil
		}
		d.logger.Warn("audio reply degraded to text", "to", reply.To, "error", err)
		d.metrics.ObserveOutbound(string(ReplyAudio), "degraded")
	}

	if reply.Text == "" {
		d.metrics.ObserveOutbound(string(reply.Kind), "failed")
		return fmt.Errorf("conversation: reply to %s has no text content", reply.To)
	}
	if err := d.withRetry(ctx, func() error {
		return d.messenger.SendText(ctx, reply.To, reply.Text)
	}); err != nil {
		d.metrics.ObserveOutbound(string(ReplyText), "failed")
		return fmt.Errorf("conversation: deliver text reply: %w", err)
	}
	d.metrics.ObserveOutbound(string(ReplyText), "sent")
	return nil
}

func (d *Dispatcher) sendAudio(ctx context.Context, reply Reply) error {
	audio, mime := reply.Audio, reply.MimeType
	if len(audio) == 0 {
		return fmt.Errorf("conversation: audio reply has no payload")
	}

	if !media.OutboundAllowed(mime) {
		if d.transcoder == nil {
			return fmt.Errorf("conversation: format %s not allowed and no transcoder configured", mime)
		}
		converted, err := d.transcoder.ToMP3(ctx, audio, extensionHint(mime))
		if err != nil {
			return fmt.Errorf("conversation: transcode %s: %w", mime, err)
		}
		audio, mime = converted, "audio/mpeg"
	}

	return d.withRetry(ctx, func() error {
		return d.messenger.SendAudio(ctx, reply.To, audio, mime)
	})
}

func (d *Dispatcher) withRetry(ctx context.Context, send func() error) error {
	err := send()
	for attempt := 0; err != nil && attempt < sendRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.retryDelay):
		}
		err = send()
	}
	return err
}

func extensionHint(mime string) string {
	switch mime {
	case "audio/wav", "audio/x-wav":
		return "wav"
	case "audio/webm":
		return "webm"
	case "audio/flac":
		return "flac"
	default:
		return "ogg"
	}
}
