package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/quarry-ai/quarry/internal/cache"
	"github.com/quarry-ai/quarry/internal/chunker"
	"github.com/quarry-ai/quarry/internal/config"
	dbRedis "github.com/quarry-ai/quarry/internal/db/redis"
	logpkg "github.com/quarry-ai/quarry/internal/logger"
	"github.com/quarry-ai/quarry/internal/metrics"
	"github.com/quarry-ai/quarry/internal/ratelimit"
	"github.com/quarry-ai/quarry/internal/repository/analytics"
	"github.com/quarry-ai/quarry/internal/repository/chunkindex"
	"github.com/quarry-ai/quarry/internal/repository/embcache"
	feedbackrepo "github.com/quarry-ai/quarry/internal/repository/feedback"
	chiTransport "github.com/quarry-ai/quarry/internal/transport/chi"
	openaiTransport "github.com/quarry-ai/quarry/internal/transport/openai"
	answeruc "github.com/quarry-ai/quarry/internal/usecase/answer"
	classifyuc "github.com/quarry-ai/quarry/internal/usecase/classify"
	decomposeuc "github.com/quarry-ai/quarry/internal/usecase/decompose"
	enrichuc "github.com/quarry-ai/quarry/internal/usecase/enrich"
	ingestuc "github.com/quarry-ai/quarry/internal/usecase/ingest"
	rerankuc "github.com/quarry-ai/quarry/internal/usecase/rerank"
	retrieveuc "github.com/quarry-ai/quarry/internal/usecase/retrieve"
	"github.com/quarry-ai/quarry/internal/version"
)

// ingestPoolSize bounds concurrent embedding requests across all in-flight
// document ingestions.
const ingestPoolSize = 8

func main() {
	// Local development convenience; a missing .env is fine.
	_ = godotenv.Load()

	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting quarry API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init()).
	metrics.Register()

	keyPrefix := cfg.Database.KeyPrefix
	kvCache := cache.NewKV(store, keyPrefix+"cache:", logger)

	generator := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Logger:    logger,
	})

	baseEmbedder := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	embedder := embcache.New(
		baseEmbedder, kvCache,
		cfg.Embedding.Provider+"|"+cfg.Embedding.Model,
		metrics.CacheTotal, logger,
	)
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	chunkRepo := chunkindex.New(store, chunkindex.Config{
		KeyPrefix:       keyPrefix,
		IndexName:       strings.TrimSuffix(keyPrefix, ":") + "-chunks",
		Dimensions:      cfg.Embedding.Dimensions,
		HNSWM:           cfg.Index.HNSWM,
		HNSWEFConstruct: cfg.Index.HNSWEFConstruct,
	}, logger)
	if err := chunkRepo.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure chunk index", zap.Error(err))
	}

	feedbackRepo := feedbackrepo.New(store, keyPrefix)
	analyticsRec := analytics.New(store, keyPrefix, logger)

	classifySvc := classifyuc.NewService(generator, kvCache, logger)
	decomposeSvc := decomposeuc.NewService(generator, logger)
	rerankSvc := rerankuc.NewService(generator, feedbackRepo, logger)
	retrieveSvc := retrieveuc.NewService(embedder, chunkRepo, rerankSvc, logger)
	enrichSvc := enrichuc.NewService(
		generator,
		cfg.Pipeline.EnrichBatchSize,
		time.Duration(cfg.Pipeline.EnrichBatchDelayMs)*time.Millisecond,
		logger,
	)

	pool, err := ants.NewPool(ingestPoolSize)
	if err != nil {
		logger.Fatal("Failed to create worker pool", zap.Error(err))
	}
	defer pool.Release()

	ingestSvc := ingestuc.NewService(enrichSvc, embedder, chunkRepo, pool, chunker.Options{
		TargetTokens:  cfg.Pipeline.ChunkTargetTokens,
		MaxTokens:     cfg.Pipeline.ChunkMaxTokens,
		OverlapTokens: cfg.Pipeline.ChunkOverlapTokens,
	}, logger)

	answerSvc := answeruc.NewService(classifySvc, decomposeSvc, retrieveSvc, generator, analyticsRec, logger)

	limiter := ratelimit.New(store, keyPrefix+"rl:")

	server := chiTransport.NewServer(
		answerSvc, ingestSvc, feedbackRepo, limiter, store,
		chiTransport.RateLimitSettings{
			MaxRequests: cfg.RateLimit.MaxRequests,
			Window:      time.Duration(cfg.RateLimit.WindowMs) * time.Millisecond,
		},
		cfg.Auth.APIKeys, logger,
	)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}
