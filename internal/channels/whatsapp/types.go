package whatsapp

import "time"

// MessageKind classifies an inbound message for dispatch.
type MessageKind string

const (
	KindText    MessageKind = "text"
	KindAudio   MessageKind = "audio"
	KindImage   MessageKind = "image"
	KindUnknown MessageKind = "unknown"
)

// WebhookEvent is the top-level structure received from the WhatsApp Cloud
// API webhook.
type WebhookEvent struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry represents a single entry in the webhook payload.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change carries one value object per notification field.
type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

// Value holds the inbound messages (or delivery statuses, which this
// service ignores).
type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Metadata         Metadata  `json:"metadata"`
	Messages         []Message `json:"messages"`
	Statuses         []Status  `json:"statuses"`
}

// Metadata identifies the receiving business number.
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// Message is a single inbound message.
type Message struct {
	From      string      `json:"from"`
	ID        string      `json:"id"`
	Timestamp string      `json:"timestamp"`
	Type      string      `json:"type"`
	Text      *TextBody   `json:"text,omitempty"`
	Audio     *MediaRef   `json:"audio,omitempty"`
	Image     *MediaRef   `json:"image,omitempty"`
}

// TextBody is the body of a text message.
type TextBody struct {
	Body string `json:"body"`
}

// MediaRef references uploaded media by ID.
type MediaRef struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
	Voice    bool   `json:"voice,omitempty"`
}

// Status is a delivery status update. Present so status-only webhooks
// decode cleanly; otherwise unused.
type Status struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// InboundMessage is the normalized result of parsing a webhook event.
type InboundMessage struct {
	MessageID string      `json:"message_id"`
	SenderID  string      `json:"sender_id"`
	Kind      MessageKind `json:"kind"`
	Text      string      `json:"text,omitempty"`
	MediaID   string      `json:"media_id,omitempty"`
	MimeType  string      `json:"mime_type,omitempty"`
	Caption   string      `json:"caption,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// sendTextRequest is the Graph API payload for a text message.
type sendTextRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

// sendAudioRequest sends previously uploaded audio by media ID.
type sendAudioRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Audio            mediaRef `json:"audio"`
}

type mediaRef struct {
	ID string `json:"id"`
}

// markReadRequest acknowledges an inbound message as read.
type markReadRequest struct {
	MessagingProduct string `json:"messaging_product"`
	Status           string `json:"status"`
	MessageID        string `json:"message_id"`
}

// graphError is the error envelope returned by the Graph API.
type graphError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *graphError `json:"error,omitempty"`
}

type uploadResponse struct {
	ID    string      `json:"id"`
	Error *graphError `json:"error,omitempty"`
}

type mediaLookupResponse struct {
	URL      string      `json:"url"`
	MimeType string      `json:"mime_type"`
	Error    *graphError `json:"error,omitempty"`
}
