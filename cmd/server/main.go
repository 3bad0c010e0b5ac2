package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smilemakc/degflow/internal/application/deg"
	"github.com/smilemakc/degflow/internal/application/registry"
	"github.com/smilemakc/degflow/internal/application/tools"
	"github.com/smilemakc/degflow/internal/infrastructure/api/rest"
	"github.com/smilemakc/degflow/internal/infrastructure/config"
	"github.com/smilemakc/degflow/internal/infrastructure/eventbus"
	"github.com/smilemakc/degflow/internal/infrastructure/llm"
	"github.com/smilemakc/degflow/internal/infrastructure/logger"
	"github.com/smilemakc/degflow/internal/infrastructure/storage"
	"github.com/smilemakc/degflow/internal/infrastructure/websocket"
)

func main() {
	var (
		port        = flag.String("port", "", "Server port (overrides config)")
		apiKey      = flag.String("openai-api-key", "", "OpenAI API key (overrides OPENAI_API_KEY)")
		model       = flag.String("model", "gpt-4o-mini", "OpenAI model used for planning")
		planTimeout = flag.Duration("plan-timeout", 60*time.Second, "Per-call timeout for planner requests")
	)
	flag.Parse()

	cfg := config.Load()
	if *port != "" {
		cfg.Port = *port
	}

	log := logger.Setup(cfg.LogLevel)
	log.Info("starting degflow task engine", "port", cfg.Port)

	key := *apiKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}

	toolRegistry := tools.NewStubRegistry()
	bus := eventbus.New()

	var logStore storage.LogStore = storage.NewMemoryLogStore()
	if cfg.DatabaseDSN != "" {
		bunStore := storage.NewBunLogStore(cfg.DatabaseDSN)
		if err := bunStore.InitSchema(context.Background()); err != nil {
			log.Error("failed to initialize log store schema, falling back to memory", "error", err)
		} else {
			logStore = bunStore
			log.Info("using Postgres-backed log store")
		}
	}
	sink := deg.MultiSink{bus, storage.NewLoggingSink(logStore, log)}

	if key == "" {
		log.Error("OPENAI_API_KEY is required (or pass -openai-api-key)")
		os.Exit(1)
	}
	var planner llm.Planner = llm.NewOpenAIPlanner(key, *model, *planTimeout)

	hub := websocket.NewHub(log)
	go hub.Run()

	reg := registry.New(
		func() *deg.Planner { return deg.NewPlanner(planner) },
		func() *deg.Dispatcher { return deg.NewDispatcher(toolRegistry) },
		func(taskID string) *tools.CallContext { return &tools.CallContext{TaskID: taskID} },
		sink,
		func(taskID string) func() { return eventbus.BridgeToBroadcaster(bus, taskID, hub) },
	)

	restServer := rest.NewServer(reg, log)
	wsHandler := websocket.NewHandler(hub, websocket.NewNoAuth(), log)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", restServer)
	mux.Handle("/health", restServer)
	mux.Handle("/ws", wsHandler)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("available endpoints",
		"health", "GET /health",
		"create_task", "POST /api/v1/tasks",
		"list_tasks", "GET /api/v1/tasks",
		"get_task", "GET /api/v1/tasks/{id}",
		"stop_task", "POST /api/v1/tasks/{id}/stop",
		"screenshot", "GET /api/v1/tasks/{id}/screenshot",
		"graph", "GET /api/v1/tasks/{id}/graph",
		"websocket", "GET /ws",
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server exited gracefully")
}
