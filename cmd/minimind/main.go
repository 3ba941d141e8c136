package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/minimind-ai/minimind/internal/api"
	"github.com/minimind-ai/minimind/internal/buildconfig"
	"github.com/minimind-ai/minimind/internal/config"
	"github.com/minimind-ai/minimind/internal/llm"
	"github.com/minimind-ai/minimind/internal/service"
	"github.com/minimind-ai/minimind/internal/store"
	"github.com/minimind-ai/minimind/internal/world"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}

	logger := newLogger(config.LogLevel())
	defer func() { _ = logger.Sync() }()

	logger.Info("minimind starting",
		zap.String("version", buildconfig.Version()),
		zap.String("commit", buildconfig.Commit()),
	)

	ctx := context.Background()

	storage, err := store.Open(ctx, store.Options{
		Driver:        config.StorageDriver(),
		DatabaseURL:   config.DatabaseURL(),
		SQLitePath:    config.SQLitePath(),
		EmbeddingDims: config.EmbeddingDims(),
	})
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer func() { _ = storage.Close() }()
	logger.Info("storage ready", zap.String("driver", config.StorageDriver()))

	client, err := llm.NewClient(llm.Options{
		Provider:       config.LLMProvider(),
		APIKey:         config.LLMAPIKey(),
		BaseURL:        config.OllamaBaseURL(),
		ChatModel:      config.ChatModel(),
		EmbeddingModel: config.EmbeddingModel(),
		EmbeddingDims:  config.EmbeddingDims(),
	})
	if err != nil {
		logger.Fatal("failed to build inference client", zap.Error(err))
	}
	logger.Info("inference client ready", zap.String("provider", config.LLMProvider()))

	sched := service.NewScheduler(client, config.SchedulerMaxRetries(), config.SchedulerRetryDelay(), config.ProbeInterval(), logger)
	summarizer := service.NewSchedulerSummarizer(sched)

	w, err := world.New(world.DefaultRooms(), logger)
	if err != nil {
		logger.Fatal("failed to build world", zap.Error(err))
	}

	registry := service.NewRegistry()

	for _, name := range config.Agents() {
		memory := service.NewMemoryService(name, storage, summarizer, client, service.MemoryConfig{
			ImmediateWindow: config.ImmediateWindow(),
			MidTermWindow:   config.MidTermWindow(),
			MaxMemories:     config.MaxMemories(),
			MinSimilarity:   config.RecallMinSimilarity(),
		}, logger)
		notes := service.NewNoteService(name, storage, client, config.RecallMinSimilarity(), logger)
		loop := service.NewAgentLoop(name, service.LoadProfile(config.ProfileDir(), name), sched, memory, notes, w, w, service.LoopConfig{
			ThinkInterval: time.Duration(config.ThinkInterval() * float64(time.Second)),
			Temperature:   config.Temperature(),
			Stop:          config.StopSequences(),
			GuardRetries:  config.GuardMaxRetries(),
		}, logger)

		if err := w.Place(name, config.StartRoom()); err != nil {
			logger.Fatal("failed to place agent", zap.String("agent_id", name), zap.Error(err))
		}
		w.RegisterObserver(name, loop.Observe)

		// Restore durable state before the first tick so the agent wakes up
		// with its history instead of rebuilding it from scratch.
		if err := memory.Bootstrap(ctx); err != nil {
			logger.Warn("memory restore failed, starting fresh", zap.String("agent_id", name), zap.Error(err))
		}
		if err := notes.Load(ctx); err != nil {
			logger.Warn("note restore failed, starting fresh", zap.String("agent_id", name), zap.Error(err))
		}

		if err := registry.Add(&service.Agent{ID: name, Loop: loop, Memory: memory, Notes: notes}); err != nil {
			logger.Fatal("failed to register agent", zap.String("agent_id", name), zap.Error(err))
		}
		logger.Info("agent awake", zap.String("agent_id", name), zap.String("room", config.StartRoom()))
	}

	sched.Start()

	indexer := service.NewIndexerService(registry, logger)
	indexer.SetInterval(config.IndexerInterval())
	indexer.RunOnce(ctx)
	indexer.Start()

	runner := service.NewRunner(registry, logger)
	runner.SetInterval(config.TickInterval())
	runner.Start()

	app := api.NewApp(api.Deps{
		Registry:  registry,
		Scheduler: sched,
		World:     w,
		Storage:   storage,
		Logger:    logger,
	})

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:    addr,
		Handler: app.Router,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down")

	// Stop the cognition machinery before the HTTP surface so no new jobs
	// race the scheduler drain.
	runner.Stop()
	indexer.Stop()
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
