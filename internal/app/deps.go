package app

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/openai/openai-go/v3"

	"finqa/internal/cache"
	"finqa/internal/config"
	"finqa/internal/embeddings"
	"finqa/internal/llm"
	"finqa/internal/logger"
	"finqa/internal/queue"
	"finqa/internal/store"
)

// Deps bundles common runtime dependencies for the gateway and worker.
type Deps struct {
	Config   config.Config
	Log      *slog.Logger
	Store    store.Store
	Queue    queue.Queue
	Cache    cache.Cache
	Embedder embeddings.Embedder

	// LLMs holds one client per configured provider, keyed by provider name.
	// Requests may pick either; cfg.LLMProvider names the default.
	LLMs map[string]llm.Client
}

// ClientFor returns the client for the named provider, or the default client
// when name is empty.
func (d Deps) ClientFor(name string) (llm.Client, error) {
	if name == "" {
		name = d.Config.LLMProvider
	}
	if c, ok := d.LLMs[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("provider %q not configured", name)
}

// Build loads env, config, and shared components.
func Build() (Deps, error) {
	// A missing .env is fine in deployed environments; config falls back to
	// real environment variables.
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	st, err := buildStore(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize store: %w", err)
	}
	q, err := buildQueue(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize queue: %w", err)
	}
	c := buildCache(cfg, log)
	clients, err := BuildLLMs(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize LLM clients: %w", err)
	}
	embedder, err := buildEmbedder(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	return Deps{
		Config:   cfg,
		Log:      log,
		Store:    st,
		Queue:    q,
		Cache:    c,
		Embedder: embedder,
		LLMs:     clients,
	}, nil
}

func buildStore(cfg config.Config, log *slog.Logger) (store.Store, error) {
	switch cfg.StoreProvider {
	case "postgres":
		if cfg.DBURL == "" {
			return nil, fmt.Errorf("DB_URL is required when STORE_PROVIDER=postgres")
		}
		db, err := store.NewPostgres(cfg.DBURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres: %w", err)
		}
		log.Info("using Postgres store")
		return db, nil
	default:
		return nil, fmt.Errorf("invalid STORE_PROVIDER: %s (valid option: postgres)", cfg.StoreProvider)
	}
}

func buildQueue(cfg config.Config, log *slog.Logger) (queue.Queue, error) {
	switch cfg.QueueProvider {
	case "nats":
		if cfg.QueueURL == "" {
			return nil, fmt.Errorf("QUEUE_URL is required when QUEUE_PROVIDER=nats")
		}
		nc, err := nats.Connect(cfg.QueueURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		log.Info("using NATS queue")
		return queue.NewNATS(log, nc), nil
	default:
		return nil, fmt.Errorf("invalid QUEUE_PROVIDER: %s (valid option: nats)", cfg.QueueProvider)
	}
}

// buildCache degrades to a no-op cache when Redis is unreachable; answering
// questions matters more than caching them.
func buildCache(cfg config.Config, log *slog.Logger) cache.Cache {
	switch cfg.CacheProvider {
	case "redis":
		c, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Warn("redis unavailable, caching disabled", "err", err)
			return cache.NewNoOpCache()
		}
		log.Info("using Redis cache", "addr", cfg.RedisAddr)
		return c
	default:
		log.Info("caching disabled")
		return cache.NewNoOpCache()
	}
}

// BuildLLMs constructs a client per provider with a configured API key.
// At least one provider must be usable.
func BuildLLMs(cfg config.Config, log *slog.Logger) (map[string]llm.Client, error) {
	clients := map[string]llm.Client{}
	if cfg.OpenAIKey != "" {
		c, err := llm.NewFromConfig(cfg, llm.ProviderOpenAI)
		if err != nil {
			return nil, err
		}
		clients[llm.ProviderOpenAI] = c
		log.Info("OpenAI client configured", "model", cfg.OpenAIModel)
	}
	if cfg.GroqKey != "" {
		c, err := llm.NewFromConfig(cfg, llm.ProviderGroq)
		if err != nil {
			return nil, err
		}
		clients[llm.ProviderGroq] = c
		log.Info("Groq client configured", "model", cfg.GroqModel)
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("no LLM provider configured (set OPENAI_API_KEY or GROQ_API_KEY)")
	}
	if _, ok := clients[cfg.LLMProvider]; !ok {
		return nil, fmt.Errorf("default provider %q has no API key configured", cfg.LLMProvider)
	}
	return clients, nil
}

// buildEmbedder is optional: without an OpenAI key the service still answers
// questions, it just cannot ingest or retrieve context documents.
func buildEmbedder(cfg config.Config, log *slog.Logger) (embeddings.Embedder, error) {
	if cfg.OpenAIKey == "" {
		log.Warn("OPENAI_API_KEY not set; document retrieval disabled")
		return nil, nil
	}
	embedder, err := embeddings.NewOpenAIEmbedder(cfg.OpenAIKey, openai.EmbeddingModel(cfg.EmbeddingModel))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenAI embedder: %w", err)
	}
	log.Info("using OpenAI embedder", "model", cfg.EmbeddingModel)
	return embedder, nil
}
