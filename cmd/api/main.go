package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/intelguy8000/loopera-whatsapp-ai-rails/internal/api/router"
	"github.com/intelguy8000/loopera-whatsapp-ai-rails/internal/channels/whatsapp"
	appconfig "github.com/intelguy8000/loopera-whatsapp-ai-rails/internal/config"
	"github.com/intelguy8000/loopera-whatsapp-ai-rails/internal/conversation"
	"github.com/intelguy8000/loopera-whatsapp-ai-rails/internal/events"
	"github.com/intelguy8000/loopera-whatsapp-ai-rails/internal/groq"
	"github.com/intelguy8000/loopera-whatsapp-ai-rails/internal/media"
	"github.com/intelguy8000/loopera-whatsapp-ai-rails/internal/observability/metrics"
	"github.com/intelguy8000/loopera-whatsapp-ai-rails/internal/speech"
	"github.com/intelguy8000/loopera-whatsapp-ai-rails/pkg/logging"
)

func main() {
	// Load .env when present; real deployments set env vars directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting whatsapp assistant API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	// Prometheus registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	webhookMetrics := metrics.NewWebhookMetrics(registry)

	// Session memory is optional: without Redis the bot answers context-free.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable at startup, continuing degraded", "error", err)
		}
	} else {
		logger.Warn("REDIS_URL not set, conversational memory disabled")
	}

	processed, pool := newProcessedStore(ctx, cfg, redisClient, logger)
	if pool != nil {
		defer pool.Close()
	}

	// Background job queue: in-memory by default, SQS when configured.
	conversationQueue, err := newQueue(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize job queue", "error", err)
		os.Exit(1)
	}
	publisher := conversation.NewPublisher(conversationQueue, logger)

	// Outbound WhatsApp client
	waClient := whatsapp.NewClient(cfg.WhatsAppToken, cfg.PhoneNumberID)
	if cfg.GraphAPIBase != "" {
		waClient.SetGraphAPIBase(cfg.GraphAPIBase)
	}

	// Groq: chat, vision, transcription and English speech.
	llm := groq.NewClient(cfg.GroqAPIKey, cfg.GroqBaseURL, groq.Models{
		Chat:    cfg.ChatModel,
		Vision:  cfg.VisionModel,
		Whisper: cfg.WhisperModel,
		Speech:  cfg.SpeechModel,
		Voice:   cfg.SpeechVoice,
	})

	// Voice replies need Google Cloud TTS credentials; without them voice
	// notes are answered with text.
	var synth conversation.VoiceSynthesizer
	if cfg.GoogleCredentialsJSON != "" {
		s, err := speech.NewSynthesizer(ctx, cfg.GoogleCredentialsJSON, llm, logger)
		if err != nil {
			logger.Error("failed to initialize speech synthesizer", "error", err)
			os.Exit(1)
		}
		synth = s
	} else {
		logger.Warn("google credentials not set, voice replies disabled")
	}

	transcoder := media.NewFFmpeg(cfg.FFmpegBin)
	history := conversation.NewHistoryStore(redisClient, cfg.SessionTTL, cfg.MaxHistoryTurns, logger)
	dispatcher := conversation.NewDispatcher(waClient, transcoder, logger, webhookMetrics)

	worker := conversation.NewWorker(
		conversationQueue, llm, synth, history, waClient, dispatcher, transcoder, logger,
	).WithWorkerCount(cfg.WorkerCount)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	worker.Start(workerCtx)

	webhook := whatsapp.NewWebhookHandler(
		cfg.VerifyToken,
		cfg.AppSecret,
		processed,
		publisher.EnqueueInbound,
		logger,
		webhookMetrics,
	)

	r := router.New(&router.Config{
		Logger:         logger,
		Webhook:        webhook,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Env:            cfg.Env,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Let in-flight reply jobs finish before exiting.
	stopWorkers()
	worker.Wait()

	logger.Info("server stopped")
}

// newProcessedStore selects the webhook dedup backend: Postgres when
// DATABASE_URL is set, otherwise Redis when available, otherwise in-memory.
func newProcessedStore(ctx context.Context, cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (events.ProcessedStore, *pgxpool.Pool) {
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		store := events.NewPostgresStore(pool, cfg.DedupTTL)
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare dedup table", "error", err)
			os.Exit(1)
		}
		logger.Info("webhook dedup store: postgres")
		return store, pool
	}
	if redisClient != nil {
		logger.Info("webhook dedup store: redis")
		return events.NewRedisStore(redisClient, cfg.DedupTTL), nil
	}
	logger.Info("webhook dedup store: in-memory")
	return events.NewMemoryStore(cfg.DedupTTL), nil
}

// newQueue builds the conversation job queue. SQS requires both
// USE_MEMORY_QUEUE=false and a queue URL.
func newQueue(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (conversation.Queue, error) {
	if cfg.UseMemoryQueue || cfg.ConversationQueueURL == "" {
		logger.Info("job queue: in-memory")
		return conversation.NewMemoryQueue(128), nil
	}

	loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, err
	}
	if endpoint := cfg.AWSEndpointOverride; endpoint != "" {
		awsCfg.EndpointResolverWithOptions = aws.EndpointResolverWithOptionsFunc(
			func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
				if service == sqs.ServiceID {
					return aws.Endpoint{
						URL:           endpoint,
						PartitionID:   "aws",
						SigningRegion: cfg.AWSRegion,
					}, nil
				}
				return aws.Endpoint{}, &aws.EndpointNotFoundError{}
			},
		)
	}

	logger.Info("job queue: sqs", "queue_url", cfg.ConversationQueueURL)
	return conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ConversationQueueURL), nil
}
