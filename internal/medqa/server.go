// Package medqa provides the MedQA server implementation.
package medqa

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/medqa/internal/medqa/biz"
	"github.com/kart-io/medqa/internal/medqa/handler"
	"github.com/kart-io/medqa/internal/medqa/router"
	"github.com/kart-io/medqa/internal/medqa/store"
	"github.com/kart-io/medqa/pkg/app"
	"github.com/kart-io/medqa/pkg/component/milvus"
	"github.com/kart-io/medqa/pkg/llm"

	// Register LLM providers.
	_ "github.com/kart-io/medqa/pkg/llm/ollama"
	_ "github.com/kart-io/medqa/pkg/llm/openai"

	cacheopts "github.com/kart-io/medqa/pkg/options/cache"
	httpopts "github.com/kart-io/medqa/pkg/options/http"
	llmopts "github.com/kart-io/medqa/pkg/options/llm"
	logopts "github.com/kart-io/medqa/pkg/options/logger"
	milvusopts "github.com/kart-io/medqa/pkg/options/milvus"
	pipelineopts "github.com/kart-io/medqa/pkg/options/pipeline"
	"github.com/kart-io/medqa/pkg/pool"
)

// Name is the name of the application.
const Name = "medqa"

// Config contains application-related configurations.
type Config struct {
	HTTPOptions      *httpopts.Options
	LogOptions       *logopts.Options
	MilvusOptions    *milvusopts.Options
	EmbeddingOptions *llmopts.ProviderOptions
	ChatOptions      *llmopts.ProviderOptions
	PipelineOptions  *pipelineopts.Options
	CacheOptions     *cacheopts.Options
	ShutdownTimeout  time.Duration
}

// Server represents the MedQA server.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	milvusClose     func()
	redisClose      func()
	poolClose       func()
}

// NewServer initializes and returns a new Server instance.
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	cfg.LogOptions.AddInitialField("service.name", Name)
	cfg.LogOptions.AddInitialField("service.version", app.GetVersion())
	if err := cfg.LogOptions.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting MedQA service...")

	milvusClient, err := milvus.New(cfg.MilvusOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize milvus: %w", err)
	}
	logger.Info("Milvus client initialized")

	vectorStore := store.NewMilvusStore(milvusClient)
	logger.Info("Vector store initialized")

	if err := store.EnsureCollection(ctx, vectorStore, cfg.PipelineOptions.Collection, cfg.PipelineOptions.EmbeddingDim); err != nil {
		return nil, fmt.Errorf("failed to ensure chunk collection: %w", err)
	}
	logger.Infow("Chunk collection ready",
		"collection", cfg.PipelineOptions.Collection,
		"dimension", cfg.PipelineOptions.EmbeddingDim,
	)

	var answerCache *biz.AnswerCache
	var redisClose func()
	if cfg.CacheOptions.Enabled {
		redisOpts := cfg.CacheOptions.Redis
		if redisOpts == nil {
			logger.Warn("Cache is enabled but no Redis configuration provided")
		} else {
			redisClient := goredis.NewClient(&goredis.Options{
				Addr:         redisOpts.Addr(),
				Password:     redisOpts.Password,
				DB:           redisOpts.Database,
				MaxRetries:   redisOpts.MaxRetries,
				PoolSize:     redisOpts.PoolSize,
				MinIdleConns: redisOpts.MinIdleConns,
			})

			if err := redisClient.Ping(context.Background()).Err(); err != nil {
				logger.Warnw("failed to connect to redis, cache will be disabled", "error", err.Error())
				_ = redisClient.Close()
			} else {
				answerCache = biz.NewAnswerCache(redisClient, &biz.AnswerCacheConfig{
					Enabled:   true,
					TTL:       cfg.CacheOptions.TTL,
					KeyPrefix: cfg.CacheOptions.KeyPrefix,
				})
				redisClose = func() { _ = redisClient.Close() }
				logger.Infow("Redis cache initialized",
					"addr", redisOpts.Addr(),
					"ttl", cfg.CacheOptions.TTL,
				)
			}
		}
	} else {
		logger.Info("Cache is disabled")
	}

	embedProvider, err := llm.NewEmbeddingProvider(cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	logger.Infow("Embedding provider initialized",
		"provider", cfg.EmbeddingOptions.Provider,
		"model", cfg.EmbeddingOptions.Model,
	)

	chatProvider, err := llm.NewChatProvider(cfg.ChatOptions.Provider, cfg.ChatOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	logger.Infow("Chat provider initialized",
		"provider", cfg.ChatOptions.Provider,
		"model", cfg.ChatOptions.Model,
	)

	workers, err := pool.New("retrieval-fanout", &pool.Config{
		Capacity: cfg.PipelineOptions.FanOutWorkers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize worker pool: %w", err)
	}

	serviceConfig := &biz.ServiceConfig{
		Collection:  cfg.PipelineOptions.Collection,
		DirectTopK:  cfg.PipelineOptions.DirectTopK,
		SectionTopK: cfg.PipelineOptions.SectionTopK,
		RetrieverConfig: &biz.RetrieverConfig{
			Collection: cfg.PipelineOptions.Collection,
			Timeout:    cfg.PipelineOptions.RetrievalTimeout,
		},
		DeduperConfig: &biz.DeduperConfig{
			MaxSources: cfg.PipelineOptions.MaxSources,
		},
		AssemblerConfig: &biz.AssemblerConfig{
			Budget:         cfg.PipelineOptions.ContextBudget,
			PerSourceChars: cfg.PipelineOptions.PerSourceChars,
		},
		PipelineConfig: &biz.PipelineConfig{
			MaxSources:        cfg.PipelineOptions.MaxSources,
			ExpansionTopK:     cfg.PipelineOptions.ExpansionTopK,
			GenerationTimeout: cfg.PipelineOptions.GenerationTimeout,
		},
	}
	qaService := biz.NewQAService(vectorStore, embedProvider, chatProvider, workers, answerCache, serviceConfig)
	logger.Infow("MedQA service initialized",
		"collection", cfg.PipelineOptions.Collection,
		"max_sources", cfg.PipelineOptions.MaxSources,
		"cache.enabled", cfg.CacheOptions.Enabled,
	)

	qaHandler := handler.NewQAHandler(qaService, cfg.HTTPOptions.RequestTimeout)
	logger.Info("Handler layer initialized")

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	router.Register(engine, qaHandler)

	httpServer := &http.Server{
		Addr:         cfg.HTTPOptions.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.HTTPOptions.ReadTimeout,
		WriteTimeout: cfg.HTTPOptions.WriteTimeout,
		IdleTimeout:  cfg.HTTPOptions.IdleTimeout,
	}

	logger.Info("MedQA service is ready")
	return &Server{
		httpServer:      httpServer,
		shutdownTimeout: cfg.ShutdownTimeout,
		milvusClose:     func() { _ = milvusClient.Close(context.Background()) },
		redisClose:      redisClose,
		poolClose:       func() { workers.Release() },
	}, nil
}

// Run starts the HTTP server and shuts it down when ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		if s.poolClose != nil {
			s.poolClose()
		}
		if s.redisClose != nil {
			s.redisClose()
		}
		if s.milvusClose != nil {
			s.milvusClose()
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP server listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("Shutting down MedQA service...")
		timeout := s.shutdownTimeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
