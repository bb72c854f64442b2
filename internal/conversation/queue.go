package conversation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/intelguy8000/loopera-whatsapp-ai-rails/internal/channels/whatsapp"
)

// Queue is the transport for background reply jobs. Backed by an in-memory
// channel in single-process deployments and SQS otherwise.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// queuePayload is one unit of background work: reply to one inbound
// WhatsApp message.
type queuePayload struct {
	ID      string                  `json:"id"`
	Inbound whatsapp.InboundMessage `json:"inbound"`
}

func encodePayload(msg whatsapp.InboundMessage) (queuePayload, string, error) {
	payload := queuePayload{
		ID:      uuid.NewString(),
		Inbound: msg,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return queuePayload{}, "", fmt.Errorf("conversation: failed to encode payload: %w", err)
	}
	return payload, string(body), nil
}
