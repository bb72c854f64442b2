package speech

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/intelguy8000/loopera-whatsapp-ai-rails/pkg/logging"
	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1"
)

// Spanish and English Wavenet voices. The Spanish one is a Latin American
// female voice matching the bot persona.
const (
	spanishVoiceName = "es-US-Wavenet-B"
	spanishLanguage  = "es-US"
	englishVoiceName = "en-US-Wavenet-F"
	englishLanguage  = "en-US"
)

// EnglishSpeaker produces WAV audio for English text. Implemented by the
// Groq PlayAI TTS client; PlayAI does not support Spanish.
type EnglishSpeaker interface {
	Speak(ctx context.Context, text string) ([]byte, error)
}

// Synthesizer turns reply text into a voice note. Spanish goes through
// Google Cloud TTS (MP3 directly), English through PlayAI (WAV, converted
// downstream before sending).
type Synthesizer struct {
	google  *texttospeech.Service
	english EnglishSpeaker
	logger  *logging.Logger
}

// NewSynthesizer builds a Synthesizer. credentialsJSON is the Google
// service-account JSON passed through the environment; when empty the
// Spanish voice is disabled. english may be nil to disable the English
// voice. A Synthesizer with neither is still valid and always reports
// Unavailable.
func NewSynthesizer(ctx context.Context, credentialsJSON string, english EnglishSpeaker, logger *logging.Logger) (*Synthesizer, error) {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Synthesizer{english: english, logger: logger}
	if credentialsJSON != "" {
		svc, err := texttospeech.NewService(ctx, option.WithCredentialsJSON([]byte(credentialsJSON)))
		if err != nil {
			return nil, fmt.Errorf("speech: init google tts: %w", err)
		}
		s.google = svc
	}
	return s, nil
}

// Synthesize renders text to audio, picking the engine by detected language.
// Returns the audio bytes and their MIME type.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	switch DetectLanguage(text) {
	case "es":
		audio, err := s.synthesizeGoogle(ctx, text, spanishLanguage, spanishVoiceName)
		return audio, "audio/mpeg", err
	default:
		if s.english != nil {
			wav, err := s.english.Speak(ctx, text)
			if err == nil {
				return wav, "audio/wav", nil
			}
			s.logger.Warn("playai tts failed, trying google", "error", err)
		}
		audio, err := s.synthesizeGoogle(ctx, text, englishLanguage, englishVoiceName)
		return audio, "audio/mpeg", err
	}
}

func (s *Synthesizer) synthesizeGoogle(ctx context.Context, text, language, voice string) ([]byte, error) {
	if s.google == nil {
		return nil, fmt.Errorf("speech: google tts not configured")
	}
	resp, err := s.google.Text.Synthesize(&texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: language,
			Name:         voice,
			SsmlGender:   "FEMALE",
		},
		AudioConfig: &texttospeech.AudioConfig{AudioEncoding: "MP3"},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("speech: google synthesize: %w", err)
	}
	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("speech: decode audio content: %w", err)
	}
	return audio, nil
}
