package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okapihq/okapi/internal/adapters/duckdb"
	"github.com/okapihq/okapi/internal/adapters/llm"
	"github.com/okapihq/okapi/internal/adapters/sandbox"
	"github.com/okapihq/okapi/internal/adapters/toolfw"
	"github.com/okapihq/okapi/internal/config"
	"github.com/okapihq/okapi/internal/core/services"
	"github.com/okapihq/okapi/pkg/gateway"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger.Info("starting okapi kernel")

	if err := run(logger); err != nil {
		logger.Error("kernel startup failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		cancel()
	}()

	cfg := config.Load()

	store, err := duckdb.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer store.Close()

	registry := toolfw.NewRegistry(logger)
	registerTools(ctx, logger, cfg, registry)

	router := services.NewProviderRouter(logger, services.RouterConfig{
		Priority: cfg.ProviderPriority,
	})
	registerProviders(ctx, logger, cfg, router)

	eventBus := services.NewEventBus(logger)
	states := services.NewStateManager(logger, store, store, cfg.MaxIterations)
	invoker := services.NewToolInvoker(logger, registry, cfg.ToolTimeout)
	engine := services.NewReasoningEngine(
		logger,
		router,
		invoker,
		services.NewPromptBuilder(),
		services.NewResponseParser(),
		states,
		eventBus,
		services.EngineConfig{
			MaxIterations: cfg.MaxIterations,
			LLMTimeout:    cfg.LLMTimeout,
		},
	)

	apiServer := gateway.NewServer(logger, engine, router, states, invoker, eventBus)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: apiServer.Handler(),
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting api server", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// registerProviders wires every backend that has credentials configured.
// A kernel with zero providers still boots; turns fail with a routing error.
func registerProviders(ctx context.Context, logger *slog.Logger, cfg *config.Config, router *services.ProviderRouter) {
	if cfg.OpenAIAPIKey != "" {
		adapter := llm.NewOpenAIAdapter("openai", cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, "", nil)
		if err := router.Register(adapter); err != nil {
			logger.Warn("failed to register openai provider", "error", err)
		}
	}
	if cfg.OllamaURL != "" {
		adapter, err := llm.NewOllamaAdapter("ollama", cfg.OllamaURL, "", nil)
		if err != nil {
			logger.Warn("failed to init ollama provider", "error", err)
		} else if err := router.Register(adapter); err != nil {
			logger.Warn("failed to register ollama provider", "error", err)
		}
	}
	if cfg.GeminiAPIKey != "" {
		adapter, err := llm.NewGeminiAdapter(ctx, "gemini", cfg.GeminiAPIKey, "", nil)
		if err != nil {
			logger.Warn("failed to init gemini provider", "error", err)
		} else if err := router.Register(adapter); err != nil {
			logger.Warn("failed to register gemini provider", "error", err)
		}
	}
	if len(router.Providers()) == 0 {
		logger.Warn("no providers configured, turns will fail until one is registered")
	}
}

// registerTools populates the built-in catalog. The sandbox exec tool is
// skipped when no Docker daemon is reachable.
func registerTools(ctx context.Context, logger *slog.Logger, cfg *config.Config, registry *toolfw.Registry) {
	mustRegister := func(name string, err error) {
		if err != nil {
			logger.Warn("failed to register tool", "tool", name, "error", err)
		}
	}

	calcDef, calcExec := toolfw.CalculatorTool()
	mustRegister(calcDef.Name, registry.Register(calcDef, calcExec))

	clockDef, clockExec := toolfw.ClockTool()
	mustRegister(clockDef.Name, registry.Register(clockDef, clockExec))

	runner, err := sandbox.NewRunner(cfg.SandboxImage, cfg.SandboxTimeout)
	if err != nil {
		logger.Warn("sandbox exec tool unavailable", "error", err)
		return
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := runner.Ping(pingCtx); err != nil {
		logger.Warn("docker daemon unreachable, sandbox exec tool disabled", "error", err)
		return
	}
	execDef, execExec := sandbox.ExecTool(runner)
	mustRegister(execDef.Name, registry.Register(execDef, execExec))
}
