package conversation

import (
	"context"
	"fmt"

	"github.com/intelguy8000/loopera-whatsapp-ai-rails/internal/channels/whatsapp"
	"github.com/intelguy8000/loopera-whatsapp-ai-rails/pkg/logging"
)

// Publisher enqueues inbound messages for asynchronous processing so the
// webhook handler can acknowledge without waiting on external calls.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// EnqueueInbound publishes a reply job for one inbound message.
func (p *Publisher) EnqueueInbound(ctx context.Context, msg whatsapp.InboundMessage) error {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, body, err := encodePayload(msg)
	if err != nil {
		return err
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("conversation: failed to enqueue job: %w", err)
	}

	p.logger.Debug("reply job enqueued", "job_id", payload.ID, "kind", msg.Kind)
	return nil
}
