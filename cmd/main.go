package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	fiber "github.com/gofiber/fiber/v2"
	"gorm.io/gorm/logger"

	"github.com/elecmate/rams/internal/agents"
	"github.com/elecmate/rams/internal/api/middleware"
	"github.com/elecmate/rams/internal/cache"
	"github.com/elecmate/rams/internal/config"
	"github.com/elecmate/rams/internal/db"
	"github.com/elecmate/rams/internal/db/models"
	"github.com/elecmate/rams/internal/db/repos"
	"github.com/elecmate/rams/internal/events"
	log "github.com/elecmate/rams/internal/logger"
	"github.com/elecmate/rams/internal/orchestrator"
	"github.com/elecmate/rams/internal/rag"
	"github.com/elecmate/rams/internal/services"
	"github.com/elecmate/rams/pkg/api/v1/handlers"
	"github.com/elecmate/rams/pkg/api/v1/routes"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.InitializeAndConfigure(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	DB, err := db.New(db.Options{
		Driver:     cfg.Database.Driver,
		Host:       cfg.Database.Host,
		User:       cfg.Database.User,
		Password:   cfg.Database.Password,
		DBName:     cfg.Database.Name,
		Port:       cfg.Database.Port,
		SSLMode:    cfg.Database.SSLMode,
		SQLitePath: cfg.Database.SQLitePath,
		LogLevel:   logger.Warn,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Initialize repositories
	jobRepo := repos.NewJobRepository(DB)
	cacheRepo := repos.NewPartialCacheRepository(DB)

	// Initialize model and knowledge base clients
	openaiClient := rag.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	embedder := rag.NewOpenAIEmbedder(openaiClient, cfg.OpenAI.EmbeddingModel)
	invoker := rag.NewOpenAIInvoker(openaiClient, rag.InvokerOptions{
		Model:             cfg.OpenAI.ChatModel,
		MaxTokens:         cfg.OpenAI.MaxTokens,
		RequestsPerMinute: cfg.OpenAI.RequestsPerMinute,
	})
	knowledge, err := rag.NewKnowledgeClient(rag.KnowledgeOptions{
		BaseURL:    cfg.Knowledge.BaseURL,
		ServiceKey: cfg.Knowledge.ServiceKey,
		Timeout:    cfg.Knowledge.Timeout,
	}, embedder)
	if err != nil {
		log.Fatalf("Failed to create knowledge base client: %v", err)
	}
	searchers := knowledge.Searchers(cfg.Knowledge.MatchCount)

	// Initialize agents, optionally behind the partial cache
	var hsAgent agents.Agent = agents.NewHealthSafetyAgent(searchers, embedder, invoker, cfg.OpenAI.MaxTokens)
	var installerAgent agents.Agent = agents.NewInstallerAgent(searchers, invoker, cfg.OpenAI.MaxTokens)
	var reaper services.CacheReaper
	if cfg.Cache.Enabled {
		partialCache := cache.New(cacheRepo, embedder, cache.Options{
			SimilarityThreshold: cfg.Cache.SimilarityThreshold,
			TTL:                 cfg.Cache.TTL,
		})
		hsAgent = agents.NewCachedAgent(hsAgent, partialCache)
		installerAgent = agents.NewCachedAgent(installerAgent, partialCache)
		reaper = cacheRepo
	}

	// Initialize the event bus and orchestrator
	bus := events.NewBus(events.EventChannelSize)
	orch := orchestrator.New(jobRepo, hsAgent, installerAgent, knowledge.Regulations(cfg.Knowledge.SharedMatchCount), orchestrator.Options{
		AgentTimeout:    cfg.Generation.AgentTimeout,
		InitialProgress: cfg.Generation.InitialProgress,
		OnFinish: func(jobID string, status models.JobStatus) {
			bus.Publish(events.Event{Type: events.EventJobFinished, JobID: jobID, Status: status})
		},
	})

	// Initialize services
	jobService := services.NewJobService(jobRepo, orch, bus)
	services.RegisterEventHandlers(bus, jobService, cfg.Server.Dispatch == config.DispatchEvents)
	bus.Start(ctx)

	var wg sync.WaitGroup
	if cfg.Server.Dispatch == config.DispatchWorker {
		wg.Add(1)
		go services.LaunchWorker(ctx, &wg, jobService, cfg.Generation.PollInterval, cfg.Generation.BatchSize)
	}
	if reaper != nil {
		wg.Add(1)
		go services.LaunchCacheReaper(ctx, &wg, reaper, cfg.Cache.ReapInterval)
	}

	// Initialize handlers and the HTTP server
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          handlers.ErrorHandler,
		WriteTimeout:          cfg.Generation.AgentTimeout + time.Minute,
	})
	app.Use(middleware.Logger())
	routes.RegisterRoutes(app, handlers.NewJobHandler(jobService))

	go func() {
		<-ctx.Done()
		log.Info("Shutting down server...")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.Errorf("Server shutdown failed: %v", err)
		}
	}()

	log.InfoWithFields("Starting server", map[string]interface{}{
		"address":  cfg.Server.Address,
		"dispatch": cfg.Server.Dispatch,
		"cache":    cfg.Cache.Enabled,
	})
	if err := app.Listen(cfg.Server.Address); err != nil {
		log.Fatalf("Server failed: %v", err)
	}

	stop()
	wg.Wait()
	log.Info("Server stopped")
}
