package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"

	"easyform/internal/agents"
	"easyform/internal/config"
	"easyform/internal/db"
	"easyform/internal/handlers"
	"easyform/internal/log"
	"easyform/internal/repositories"
	"easyform/internal/routes"
	"easyform/internal/scheduler"
	"easyform/internal/services"
	"easyform/internal/workers"
)

// Server owns the HTTP listener and the background machinery (task registry,
// cleanup scheduler) whose lifecycles are tied to it.
type Server struct {
	httpServer      *http.Server
	requests        *services.RequestService
	scheduler       *scheduler.Scheduler
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// corsMiddleware adds CORS headers to all responses
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// New wires the full application from configuration.
func New(cfg *config.Config) (*Server, error) {
	logger := log.WithModule("server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Redis is the request, chunk, file and user store; startup fails
	// without it.
	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis client: %w", err)
	}
	if err := redisClient.Ping(ctx); err != nil {
		return nil, fmt.Errorf("Redis connection failed: %w", err)
	}
	logger.Info("Redis connected", "addr", cfg.Redis.Addr())

	chromaClient := db.NewChromaDBClient(db.ChromaDBConfig{
		Host:     cfg.Chroma.Host,
		Port:     cfg.Chroma.Port,
		Tenant:   cfg.Chroma.Tenant,
		Database: cfg.Chroma.Database,
		Timeout:  cfg.Chroma.Timeout,
	})
	if err := chromaClient.Heartbeat(ctx); err != nil {
		// Retrieval degrades to empty context without the vector store;
		// the server still starts.
		logger.Warn("ChromaDB unreachable, retrieval will be degraded", "error", err)
	} else {
		logger.Info("ChromaDB connected", "host", cfg.Chroma.Host, "port", cfg.Chroma.Port)
	}

	// Repositories
	requestRepo := repositories.NewRedisFormRequestRepository(redisClient.GetClient())
	chunkRepo := repositories.NewRedisChunkRepository(redisClient.GetClient())
	fileRepo := repositories.NewRedisFileRepository(redisClient.GetClient())
	userRepo := repositories.NewRedisUserRepository(redisClient.GetClient())
	textIndex := repositories.NewChromaVectorRepository(chromaClient, cfg.Chroma.TextCollection)
	imageIndex := repositories.NewChromaVectorRepository(chromaClient, cfg.Chroma.ImgCollection)

	// LLM and embedding clients
	llmClient := agents.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.BaseURL)
	textEmbedder := services.NewOpenAITextEmbedder(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.Embed.TextModel)

	var gateway services.EmbedGatewayInterface
	if cfg.Embed.GatewayURL != "" {
		gateway = services.NewEmbedGatewayClientWithOptions(cfg.Embed.GatewayURL, cfg.Embed.Timeout, 3)
		logger.Info("image embedding gateway enabled", "url", cfg.Embed.GatewayURL)
	} else {
		logger.Info("image embedding gateway not configured, image index disabled")
	}
	imageEmbedder := services.NewGatewayImageEmbedder(gateway)

	// Ingestion and retrieval
	chunker := services.NewChunker(cfg.Pipeline.ChunkSize, cfg.Pipeline.ChunkOverlap)
	ocr := services.NewLLMOCRProvider(llmClient, cfg.LLM.OCRModel)
	processor := services.NewDocumentProcessor(chunker, ocr)
	rag := services.NewRAGService(chunkRepo, fileRepo, textIndex, imageIndex,
		textEmbedder, imageEmbedder, processor, cfg.Pipeline.TopK)
	if err := rag.EnsureCollections(ctx); err != nil {
		logger.Warn("failed to ensure vector collections", "error", err)
	}

	// Agents
	parser := agents.NewParserAgent(llmClient, cfg.LLM.MaxRetries, cfg.LLM.RetryDelay, cfg.LLM.MaxOutputToks)
	solver := agents.NewSolutionAgent(llmClient, cfg.LLM.MaxRetries, cfg.LLM.RetryDelay, cfg.LLM.MaxOutputToks)
	action := agents.NewActionAgent(llmClient, cfg.LLM.MaxRetries, cfg.LLM.RetryDelay, cfg.LLM.MaxOutputToks)

	// Services
	registry := workers.NewRegistry()
	requestService := services.NewRequestService(requestRepo, registry)
	debugRuns := services.NewDebugRunLogger(cfg.Debug.Enabled, cfg.Debug.Dir)
	pipeline := services.NewFormPipelineService(requestRepo, rag, parser, solver, action,
		cfg.LLM.SmallModel, cfg.LLM.LargeModel,
		cfg.Pipeline.SolverConcurrency, cfg.Pipeline.ActionBatchSize, debugRuns)
	fileService := services.NewFileService(fileRepo, rag, cfg.Files.MaxUploadBytes)
	userService := services.NewUserService(userRepo, cfg.Pipeline.PersonalInstructionsMax)

	// HTTP layer
	h := &routes.Handlers{
		Health: handlers.NewHealthHandler(requestRepo, textIndex),
		Form:   handlers.NewFormHandler(requestService, pipeline, userService),
		File:   handlers.NewFileHandler(fileService),
		User:   handlers.NewUserHandler(userService),
		Auth:   handlers.NewAuthMiddleware(userService),
	}

	router := mux.NewRouter()
	routes.RegisterRoutes(router, h)

	router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL(fmt.Sprintf("http://localhost:%d/swagger/doc.json", cfg.Server.Port)),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("none"),
		httpSwagger.DomID("swagger-ui"),
	))

	cleanupAge := time.Duration(cfg.Pipeline.CleanupAfterHours) * time.Hour
	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: corsMiddleware(router),
		},
		requests:        requestService,
		scheduler:       scheduler.New(requestService, cleanupAge),
		shutdownTimeout: cfg.Server.ShutdownTimeout,
		logger:          logger,
	}, nil
}

// Start launches the cleanup scheduler and serves HTTP until Shutdown.
func (s *Server) Start() error {
	if err := s.scheduler.Start(); err != nil {
		return err
	}
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, winds down running pipelines and the
// scheduler. Pipelines that outlive the deadline are marked failed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")

	err := s.httpServer.Shutdown(ctx)

	s.requests.Shutdown(context.Background(), s.shutdownTimeout)
	s.scheduler.Stop()

	s.logger.Info("shutdown complete")
	return err
}
