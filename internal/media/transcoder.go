package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const transcodeTimeout = 30 * time.Second

// Transcoder converts audio between container formats.
type Transcoder interface {
	// ToMP3 converts audio bytes in the given source container (file
	// extension without dot, e.g. "ogg", "wav") to MP3.
	ToMP3(ctx context.Context, audio []byte, srcFormat string) ([]byte, error)
}

// FFmpeg shells out to the ffmpeg binary for conversions. WhatsApp voice
// notes arrive as OGG/Opus and Whisper prefers MP3; PlayAI TTS emits WAV
// which WhatsApp rejects.
type FFmpeg struct {
	bin string
}

// NewFFmpeg returns a Transcoder backed by the given ffmpeg binary.
func NewFFmpeg(bin string) *FFmpeg {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpeg{bin: bin}
}

func (f *FFmpeg) ToMP3(ctx context.Context, audio []byte, srcFormat string) ([]byte, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("media: empty audio input")
	}
	if srcFormat == "" {
		srcFormat = "ogg"
	}

	dir, err := os.MkdirTemp("", "transcode")
	if err != nil {
		return nil, fmt.Errorf("media: create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "in."+srcFormat)
	dst := filepath.Join(dir, "out.mp3")
	if err := os.WriteFile(src, audio, 0o600); err != nil {
		return nil, fmt.Errorf("media: write source file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, transcodeTimeout)
	defer cancel()

	// Mono 16kHz keeps voice-note uploads small and is what Whisper expects.
	cmd := exec.CommandContext(ctx, f.bin,
		"-i", src,
		"-acodec", "libmp3lame", "-ar", "16000", "-ac", "1",
		dst, "-y",
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("media: ffmpeg failed: %w: %s", err, truncate(out, 256))
	}

	converted, err := os.ReadFile(dst)
	if err != nil {
		return nil, fmt.Errorf("media: read converted file: %w", err)
	}
	return converted, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// AllowedOutboundMIME is the set of audio containers the WhatsApp Cloud API
// accepts for voice notes.
var AllowedOutboundMIME = map[string]bool{
	"audio/aac":  true,
	"audio/mpeg": true,
	"audio/mp4":  true,
	"audio/ogg":  true,
	"audio/opus": true,
	"audio/amr":  true,
}

// OutboundAllowed reports whether the given MIME type can be sent to
// WhatsApp without conversion.
func OutboundAllowed(mime string) bool {
	return AllowedOutboundMIME[mime]
}
