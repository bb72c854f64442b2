package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/intelguy8000/loopera-whatsapp-ai-rails/pkg/logging"
)

type sentText struct {
	to, text string
}

type sentAudio struct {
	to, mime string
	audio    []byte
}

// fakeMessenger records outbound calls and can fail a configurable number
// of times per method. Safe for concurrent use so worker tests can poll it.
type fakeMessenger struct {
	mu     sync.Mutex
	texts  []sentText
	audios []sentAudio

	textFailures  int
	audioFailures int

	downloads map[string]downloadResult
	marked    []string
}

type downloadResult struct {
	data []byte
	mime string
	err  error
}

func (m *fakeMessenger) SendText(_ context.Context, to, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.textFailures > 0 {
		m.textFailures--
		return errors.New("temporary send failure")
	}
	m.texts = append(m.texts, sentText{to: to, text: text})
	return nil
}

func (m *fakeMessenger) SendAudio(_ context.Context, to string, audio []byte, mime string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.audioFailures > 0 {
		m.audioFailures--
		return errors.New("temporary send failure")
	}
	m.audios = append(m.audios, sentAudio{to: to, audio: audio, mime: mime})
	return nil
}

func (m *fakeMessenger) MarkRead(_ context.Context, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marked = append(m.marked, messageID)
	return nil
}

func (m *fakeMessenger) textCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.texts)
}

func (m *fakeMessenger) DownloadMedia(_ context.Context, mediaID string) ([]byte, string, error) {
	res, ok := m.downloads[mediaID]
	if !ok {
		return nil, "", errors.New("media not found")
	}
	return res.data, res.mime, res.err
}

type fakeTranscoder struct {
	out []byte
	err error
}

func (t *fakeTranscoder) ToMP3(_ context.Context, _ []byte, _ string) ([]byte, error) {
	return t.out, t.err
}

func newTestDispatcher(m *fakeMessenger, tc *fakeTranscoder) *Dispatcher {
	d := NewDispatcher(m, nil, logging.Default(), nil)
	if tc != nil {
		d.transcoder = tc
	}
	d.retryDelay = time.Millisecond
	return d
}

func TestDispatcherSendsText(t *testing.T) {
	m := &fakeMessenger{}
	d := newTestDispatcher(m, nil)

	err := d.Send(context.Background(), Reply{To: "1", Kind: ReplyText, Text: "hola"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(m.texts) != 1 || m.texts[0].text != "hola" {
		t.Fatalf("unexpected sends: %+v", m.texts)
	}
}

func TestDispatcherRetriesTransientTextFailure(t *testing.T) {
	m := &fakeMessenger{textFailures: 1}
	d := newTestDispatcher(m, nil)

	if err := d.Send(context.Background(), Reply{To: "1", Kind: ReplyText, Text: "hola"}); err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if len(m.texts) != 1 {
		t.Fatalf("expected one delivered text, got %d", len(m.texts))
	}
}

func TestDispatcherSurfacesTerminalTextFailure(t *testing.T) {
	m := &fakeMessenger{textFailures: 5}
	d := newTestDispatcher(m, nil)

	if err := d.Send(context.Background(), Reply{To: "1", Kind: ReplyText, Text: "hola"}); err == nil {
		t.Fatal("expected terminal delivery error")
	}
	if len(m.texts) != 0 {
		t.Fatalf("expected no delivered texts, got %d", len(m.texts))
	}
}

func TestDispatcherSendsAllowedAudioDirectly(t *testing.T) {
	m := &fakeMessenger{}
	d := newTestDispatcher(m, nil)

	err := d.Send(context.Background(), Reply{
		To: "1", Kind: ReplyAudio, Text: "hola",
		Audio: []byte("mp3"), MimeType: "audio/mpeg",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(m.audios) != 1 || m.audios[0].mime != "audio/mpeg" {
		t.Fatalf("unexpected audio sends: %+v", m.audios)
	}
	if len(m.texts) != 0 {
		t.Fatal("audio reply must not also send text")
	}
}

func TestDispatcherTranscodesDisallowedFormat(t *testing.T) {
	m := &fakeMessenger{}
	d := newTestDispatcher(m, &fakeTranscoder{out: []byte("mp3-bytes")})

	err := d.Send(context.Background(), Reply{
		To: "1", Kind: ReplyAudio, Text: "hello",
		Audio: []byte("wav-bytes"), MimeType: "audio/wav",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(m.audios) != 1 {
		t.Fatalf("expected one audio send, got %d", len(m.audios))
	}
	if m.audios[0].mime != "audio/mpeg" || string(m.audios[0].audio) != "mp3-bytes" {
		t.Fatalf("expected transcoded payload, got %+v", m.audios[0])
	}
}

func TestDispatcherDegradesToTextWhenConversionFails(t *testing.T) {
	m := &fakeMessenger{}
	d := newTestDispatcher(m, &fakeTranscoder{err: errors.New("ffmpeg exploded")})

	err := d.Send(context.Background(), Reply{
		To: "1", Kind: ReplyAudio, Text: "hello",
		Audio: []byte("wav-bytes"), MimeType: "audio/wav",
	})
	if err != nil {
		t.Fatalf("degraded send should succeed: %v", err)
	}
	if len(m.audios) != 0 {
		t.Fatal("expected no audio send")
	}
	if len(m.texts) != 1 || m.texts[0].text != "hello" {
		t.Fatalf("expected degraded text reply, got %+v", m.texts)
	}
}

func TestDispatcherDegradesToTextWhenAudioSendFails(t *testing.T) {
	m := &fakeMessenger{audioFailures: 5}
	d := newTestDispatcher(m, nil)

	err := d.Send(context.Background(), Reply{
		To: "1", Kind: ReplyAudio, Text: "hola",
		Audio: []byte("mp3"), MimeType: "audio/mpeg",
	})
	if err != nil {
		t.Fatalf("degraded send should succeed: %v", err)
	}
	if len(m.texts) != 1 {
		t.Fatalf("expected degraded text reply, got %+v", m.texts)
	}
}
