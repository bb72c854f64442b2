// Package groq wraps Groq's OpenAI-compatible API: Llama chat completion,
// Llama vision, Whisper transcription and PlayAI speech synthesis.
package groq

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultBaseURL = "https://api.groq.com/openai/v1"

	// Short replies keep WhatsApp messages readable on a phone screen.
	maxTokens   = 500
	temperature = 0.7
)

type openAIAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
	CreateSpeech(ctx context.Context, req openai.CreateSpeechRequest) (openai.RawResponse, error)
}

// Models selects which Groq model serves each capability.
type Models struct {
	Chat    string
	Vision  string
	Whisper string
	Speech  string
	Voice   string
}

func (m *Models) applyDefaults() {
	if m.Chat == "" {
		m.Chat = "llama-3.3-70b-versatile"
	}
	if m.Vision == "" {
		m.Vision = "meta-llama/llama-4-scout-17b-16e-instruct"
	}
	if m.Whisper == "" {
		m.Whisper = "whisper-large-v3-turbo"
	}
	if m.Speech == "" {
		m.Speech = "playai-tts"
	}
	if m.Voice == "" {
		m.Voice = "Arista-PlayAI"
	}
}

// Client calls Groq. All methods are safe for concurrent use.
type Client struct {
	api    openAIAPI
	models Models
}

// NewClient builds a Groq client. baseURL is overridable for tests.
func NewClient(apiKey, baseURL string, models Models) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	models.applyDefaults()
	return &Client{
		api:    openai.NewClientWithConfig(cfg),
		models: models,
	}
}

func newClientWithAPI(api openAIAPI, models Models) *Client {
	models.applyDefaults()
	return &Client{api: api, models: models}
}

// Complete generates a chat reply for the given message history.
func (c *Client) Complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	return c.complete(ctx, c.models.Chat, messages)
}

// DescribeImage runs the vision model over a multimodal message history.
func (c *Client) DescribeImage(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	return c.complete(ctx, c.models.Vision, messages)
}

func (c *Client) complete(ctx context.Context, model string, messages []openai.ChatCompletionMessage) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("groq: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("groq: chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Transcribe runs Whisper over the audio bytes. filename hints the
// container format to the API (e.g. "audio.mp3").
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if filename == "" {
		filename = "audio.mp3"
	}
	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.models.Whisper,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		return "", fmt.Errorf("groq: transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// Speak synthesizes English speech as WAV bytes. PlayAI only supports
// English; Spanish goes through Google TTS instead.
func (c *Client) Speak(ctx context.Context, text string) ([]byte, error) {
	resp, err := c.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(c.models.Speech),
		Input:          text,
		Voice:          openai.SpeechVoice(c.models.Voice),
		ResponseFormat: openai.SpeechResponseFormatWav,
	})
	if err != nil {
		return nil, fmt.Errorf("groq: speech synthesis: %w", err)
	}
	defer resp.Close()
	wav, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("groq: read speech response: %w", err)
	}
	return wav, nil
}
