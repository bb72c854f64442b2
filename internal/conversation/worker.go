package conversation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/intelguy8000/loopera-whatsapp-ai-rails/internal/channels/whatsapp"
	"github.com/intelguy8000/loopera-whatsapp-ai-rails/internal/media"
	"github.com/intelguy8000/loopera-whatsapp-ai-rails/pkg/logging"
)

const (
	defaultWorkerCount = 2
	defaultWaitSeconds = 2
	defaultBatchSize   = 5
	jobTimeout         = 3 * time.Minute
)

// Worker drains the job queue and produces replies: it classifies each
// inbound message by kind, performs the external enrichment calls
// (download, transcription, vision, chat completion, speech synthesis) and
// hands the result to the dispatcher. All failures end in a fallback reply;
// none propagate.
type Worker struct {
	queue      Queue
	llm        LLMClient
	synth      VoiceSynthesizer
	history    *HistoryStore
	messenger  Messenger
	dispatcher *Dispatcher
	transcoder media.Transcoder
	logger     *logging.Logger

	workers   int
	waitSecs  int
	batchSize int
	wg        sync.WaitGroup
}

// NewWorker wires the reply pipeline. synth may be nil (voice notes are
// answered with text); transcoder may be nil (voice notes fail into the
// transcription fallback).
func NewWorker(
	queue Queue,
	llm LLMClient,
	synth VoiceSynthesizer,
	history *HistoryStore,
	messenger Messenger,
	dispatcher *Dispatcher,
	transcoder media.Transcoder,
	logger *logging.Logger,
) *Worker {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if llm == nil {
		panic("conversation: llm client cannot be nil")
	}
	if history == nil {
		panic("conversation: history store cannot be nil")
	}
	if messenger == nil {
		panic("conversation: messenger cannot be nil")
	}
	if dispatcher == nil {
		panic("conversation: dispatcher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Worker{
		queue:      queue,
		llm:        llm,
		synth:      synth,
		history:    history,
		messenger:  messenger,
		dispatcher: dispatcher,
		transcoder: transcoder,
		logger:     logger,
		workers:    defaultWorkerCount,
		waitSecs:   defaultWaitSeconds,
		batchSize:  defaultBatchSize,
	}
}

// WithWorkerCount overrides the number of concurrent consumers.
func (w *Worker) WithWorkerCount(n int) *Worker {
	if n > 0 {
		w.workers = n
	}
	return w
}

// Start launches the consumer goroutines. They run until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.run(ctx)
		}()
	}
}

// Wait blocks until all consumers have drained after cancellation.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		messages, err := w.queue.Receive(ctx, w.batchSize, w.waitSecs)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue receive failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		for _, qm := range messages {
			w.handle(ctx, qm)
		}
	}
}

func (w *Worker) handle(ctx context.Context, qm queueMessage) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(qm.Body), &payload); err != nil {
		w.logger.Error("discarding malformed job", "queue_message_id", qm.ID, "error", err)
		_ = w.queue.Delete(ctx, qm.ReceiptHandle)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	w.process(jobCtx, payload.Inbound)
	if err := w.queue.Delete(ctx, qm.ReceiptHandle); err != nil {
		w.logger.Warn("failed to delete queue message", "queue_message_id", qm.ID, "error", err)
	}
}

// process runs one inbound message through its kind handler and dispatches
// the resulting reply.
func (w *Worker) process(ctx context.Context, msg whatsapp.InboundMessage) {
	if msg.MessageID != "" {
		if err := w.messenger.MarkRead(ctx, msg.MessageID); err != nil {
			w.logger.Debug("mark read failed", "message_id", msg.MessageID, "error", err)
		}
	}

	reply, turns := w.handlerFor(msg.Kind)(ctx, msg)

	if err := w.dispatcher.Send(ctx, reply); err != nil {
		w.logger.Error("reply delivery failed", "to", msg.SenderID, "error", err)
		return
	}
	w.history.Append(ctx, msg.SenderID, turns...)
}

type handlerFunc func(ctx context.Context, msg whatsapp.InboundMessage) (Reply, []ChatMessage)

// handlerFor is the classifier: pure dispatch on message kind with a
// mandatory fallback arm.
func (w *Worker) handlerFor(kind whatsapp.MessageKind) handlerFunc {
	switch kind {
	case whatsapp.KindText:
		return w.handleText
	case whatsapp.KindAudio:
		return w.handleAudio
	case whatsapp.KindImage:
		return w.handleImage
	default:
		return w.handleUnsupported
	}
}

func (w *Worker) handleText(ctx context.Context, msg whatsapp.InboundMessage) (Reply, []ChatMessage) {
	return w.textReply(ctx, msg.SenderID, msg.Text, msg.Text)
}

// textReply runs the shared text path: prompt the LLM with session context,
// fall back to an apology when generation fails. historyLabel is what gets
// recorded as the user turn (voice notes record "[Audio] <transcript>").
func (w *Worker) textReply(ctx context.Context, senderID, userText, historyLabel string) (Reply, []ChatMessage) {
	history := w.history.Load(ctx, senderID)

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	messages = append(messages, toOpenAI(history)...)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userText})

	replyText, err := w.llm.Complete(ctx, messages)
	if err != nil {
		w.logger.Error("chat completion failed", "sender", senderID, "error", err)
		return Reply{To: senderID, Kind: ReplyText, Text: fallbackEnrichment}, nil
	}

	now := time.Now().UTC()
	turns := []ChatMessage{
		{Role: ChatRoleUser, Content: historyLabel, Timestamp: now},
		{Role: ChatRoleAssistant, Content: replyText, Timestamp: now},
	}
	return Reply{To: senderID, Kind: ReplyText, Text: replyText}, turns
}

func (w *Worker) handleAudio(ctx context.Context, msg whatsapp.InboundMessage) (Reply, []ChatMessage) {
	transcript, err := w.transcribe(ctx, msg)
	if err != nil {
		w.logger.Warn("voice note transcription failed", "sender", msg.SenderID, "error", err)
		return Reply{To: msg.SenderID, Kind: ReplyText, Text: fallbackTranscription}, nil
	}
	if transcript == "" {
		return Reply{To: msg.SenderID, Kind: ReplyText, Text: fallbackTranscription}, nil
	}

	reply, turns := w.textReply(ctx, msg.SenderID, transcript, "[Audio] "+transcript)
	if turns == nil || w.synth == nil {
		// Generation already fell back, or no voice configured.
		return reply, turns
	}

	// Voice in, voice out. TTS failure keeps the text reply.
	audio, mime, err := w.synth.Synthesize(ctx, reply.Text)
	if err != nil {
		w.logger.Warn("speech synthesis failed, replying with text", "sender", msg.SenderID, "error", err)
		return reply, turns
	}
	reply.Kind = ReplyAudio
	reply.Audio = audio
	reply.MimeType = mime
	return reply, turns
}

func (w *Worker) transcribe(ctx context.Context, msg whatsapp.InboundMessage) (string, error) {
	audio, _, err := w.messenger.DownloadMedia(ctx, msg.MediaID)
	if err != nil {
		return "", fmt.Errorf("download voice note: %w", err)
	}
	if w.transcoder == nil {
		return "", fmt.Errorf("no transcoder configured")
	}
	// WhatsApp voice notes are OGG/Opus; Whisper handles MP3 more reliably.
	mp3, err := w.transcoder.ToMP3(ctx, audio, "ogg")
	if err != nil {
		return "", fmt.Errorf("convert voice note: %w", err)
	}
	return w.llm.Transcribe(ctx, mp3, "audio.mp3")
}

func (w *Worker) handleImage(ctx context.Context, msg whatsapp.InboundMessage) (Reply, []ChatMessage) {
	image, mime, err := w.messenger.DownloadMedia(ctx, msg.MediaID)
	if err != nil {
		w.logger.Warn("image download failed", "sender", msg.SenderID, "error", err)
		return Reply{To: msg.SenderID, Kind: ReplyText, Text: fallbackMediaDownload}, nil
	}
	if mime == "" {
		mime = msg.MimeType
	}
	if mime == "" {
		mime = "image/jpeg"
	}

	history := w.history.Load(ctx, msg.SenderID)
	if len(history) > visionHistoryTail {
		history = history[len(history)-visionHistoryTail:]
	}

	caption := msg.Caption
	if caption == "" {
		caption = "¿Qué ves en esta imagen? Descríbela detalladamente."
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(image))

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: visionPrompt})
	messages = append(messages, toOpenAI(history)...)
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
			{Type: openai.ChatMessagePartTypeText, Text: caption},
		},
	})

	replyText, err := w.llm.DescribeImage(ctx, messages)
	if err != nil {
		w.logger.Error("vision analysis failed", "sender", msg.SenderID, "error", err)
		return Reply{To: msg.SenderID, Kind: ReplyText, Text: fallbackVision}, nil
	}

	label := "[Imagen enviada]"
	if msg.Caption != "" {
		label += ": " + msg.Caption
	}
	now := time.Now().UTC()
	turns := []ChatMessage{
		{Role: ChatRoleUser, Content: label, Timestamp: now},
		{Role: ChatRoleAssistant, Content: replyText, Timestamp: now},
	}
	return Reply{To: msg.SenderID, Kind: ReplyText, Text: replyText}, turns
}

func (w *Worker) handleUnsupported(_ context.Context, msg whatsapp.InboundMessage) (Reply, []ChatMessage) {
	return Reply{To: msg.SenderID, Kind: ReplyText, Text: fallbackUnsupported}, nil
}
