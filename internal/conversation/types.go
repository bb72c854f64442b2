package conversation

import (
	"context"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/intelguy8000/loopera-whatsapp-ai-rails/internal/channels/whatsapp"
)

// ChatRole identifies who produced a conversation turn.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one turn of a stored conversation.
type ChatMessage struct {
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ReplyKind is the media kind of an outbound reply.
type ReplyKind string

const (
	ReplyText  ReplyKind = "text"
	ReplyAudio ReplyKind = "audio"
)

// Reply is a single outbound message, consumed exactly once by the
// dispatcher. Text is always set: audio replies degrade to it when
// conversion or upload fails.
type Reply struct {
	To       string
	Kind     ReplyKind
	Text     string
	Audio    []byte
	MimeType string
}

// LLMClient is the Groq surface the worker depends on.
type LLMClient interface {
	Complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error)
	DescribeImage(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error)
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// VoiceSynthesizer renders reply text to audio bytes plus their MIME type.
type VoiceSynthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, string, error)
}

// Messenger is the outbound WhatsApp surface used by the dispatcher.
type Messenger interface {
	SendText(ctx context.Context, to, text string) error
	SendAudio(ctx context.Context, to string, audio []byte, mimeType string) error
	MarkRead(ctx context.Context, messageID string) error
	DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error)
}

// toOpenAI converts stored history into the request shape Groq expects.
func toOpenAI(history []ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		out = append(out, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return out
}

var _ Messenger = (*whatsapp.Client)(nil)
