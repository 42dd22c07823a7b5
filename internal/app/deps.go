package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/openai/openai-go/v3"

	"doc-chat/internal/cache"
	"doc-chat/internal/chat"
	"doc-chat/internal/chunker"
	"doc-chat/internal/config"
	"doc-chat/internal/events"
	"doc-chat/internal/llm"
	"doc-chat/internal/logger"
	"doc-chat/internal/pdftext"
	"doc-chat/internal/session"
)

// Deps bundles the runtime dependencies of the server.
type Deps struct {
	Config   config.Config
	Log      *slog.Logger
	Sessions *session.Manager
	Chat     *chat.Service
	Cache    cache.Cache
	Events   events.Publisher

	closers []func() error
}

// Build loads env, config, and shared components.
func Build() (Deps, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Deps{}, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg := config.Load()
	return BuildFromConfig(cfg, logger.New(cfg.LogLevel, cfg.LogFormat))
}

// BuildFromConfig wires every component from cfg. A missing credential fails
// before any client is created.
func BuildFromConfig(cfg config.Config, log *slog.Logger) (Deps, error) {
	if err := cfg.Validate(); err != nil {
		return Deps{}, err
	}

	llmClient, err := buildLLM(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize LLM: %w", err)
	}
	deps := Deps{
		Config:   cfg,
		Log:      log,
		Sessions: session.NewManager(cfg.SessionTTL, log),
		Cache:    buildCache(cfg, log),
	}
	deps.closers = append(deps.closers, deps.Cache.Close)

	pub, err := buildEvents(cfg, log)
	if err != nil {
		deps.Close()
		return Deps{}, fmt.Errorf("failed to initialize events: %w", err)
	}
	deps.Events = pub
	if c, ok := pub.(interface{ Close() error }); ok {
		deps.closers = append(deps.closers, c.Close)
	}

	svc, err := chat.NewService(chat.Options{
		Mode:          chat.Mode(cfg.ChatMode),
		Chunking:      chunker.Options{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap},
		MaxChunks:     cfg.MaxChunks,
		ResetOnUpload: cfg.ResetOnUpload,
		Model:         cfg.LLMModel,
		CacheTTL:      cfg.CacheTTL,
	}, chat.Deps{
		Log:       log,
		Extractor: pdftext.Extractor{},
		Generator: llmClient,
		Files:     llmClient,
		Cache:     deps.Cache,
		Events:    deps.Events,
	})
	if err != nil {
		deps.Close()
		return Deps{}, fmt.Errorf("failed to initialize chat service: %w", err)
	}
	deps.Chat = svc
	releaseOnRemove(deps.Sessions, svc)
	log.Info("chat service ready", "mode", cfg.ChatMode, "model", cfg.LLMModel)
	return deps, nil
}

// releaseOnRemove frees the provider resources of every deleted or expired session.
func releaseOnRemove(sessions *session.Manager, svc *chat.Service) {
	sessions.OnRemove(func(s *session.Session) {
		svc.Release(context.Background(), s)
	})
}

// Close releases connections opened by Build, in reverse order.
func (d Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil && d.Log != nil {
			d.Log.Warn("failed to close dependency", "err", err)
		}
	}
}

func buildLLM(cfg config.Config, log *slog.Logger) (*llm.OpenAIClient, error) {
	switch cfg.LLMProvider {
	case "openai":
		key, err := cfg.APIKey()
		if err != nil {
			return nil, err
		}
		client, err := llm.NewOpenAIClient(key, openai.ChatModel(cfg.LLMModel), cfg.OpenAIBaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
		}
		log.Info("using OpenAI LLM client", "model", cfg.LLMModel)
		return client, nil
	default:
		return nil, fmt.Errorf("invalid LLM_PROVIDER: %s (valid option: openai)", cfg.LLMProvider)
	}
}

func buildCache(cfg config.Config, log *slog.Logger) cache.Cache {
	switch cfg.CacheProvider {
	case "redis":
		c, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Warn("redis unavailable, answer cache disabled", "err", err, "addr", cfg.RedisAddr)
			return cache.NewNoOpCache()
		}
		log.Info("using Redis answer cache", "addr", cfg.RedisAddr)
		return c
	default:
		return cache.NewNoOpCache()
	}
}

func buildEvents(cfg config.Config, log *slog.Logger) (events.Publisher, error) {
	switch cfg.EventsProvider {
	case "", "none":
		return events.NoOpPublisher{}, nil
	case "nats":
		if cfg.QueueURL == "" {
			return nil, fmt.Errorf("QUEUE_URL is required when EVENTS_PROVIDER=nats")
		}
		nc, err := nats.Connect(cfg.QueueURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		log.Info("using NATS event publisher")
		return events.NewNATS(log, nc), nil
	default:
		return nil, fmt.Errorf("invalid EVENTS_PROVIDER: %s (valid options: none, nats)", cfg.EventsProvider)
	}
}
