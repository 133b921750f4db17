// annad - the Anna daemon. Serves the evidence-grounded question
// pipeline over a unix socket and a localhost health surface.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jjgarcianorway/anna/pkg/agent"
	"github.com/jjgarcianorway/anna/pkg/api"
	"github.com/jjgarcianorway/anna/pkg/config"
	"github.com/jjgarcianorway/anna/pkg/factstore"
	"github.com/jjgarcianorway/anna/pkg/llm"
	"github.com/jjgarcianorway/anna/pkg/orchestrator"
	"github.com/jjgarcianorway/anna/pkg/probe"
	"github.com/jjgarcianorway/anna/pkg/queue"
	"github.com/jjgarcianorway/anna/pkg/rpc"
	"github.com/jjgarcianorway/anna/pkg/translator"
	"github.com/jjgarcianorway/anna/pkg/version"
)

func main() {
	configDir := flag.String("config-dir", getEnv("ANNA_CONFIG_DIR", "/etc/anna"),
		"Path to configuration directory")
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg)

	slog.Info("Starting annad", "version", version.Full(), "socket", cfg.Socket)

	// Process-wide capabilities, created once and passed by reference.
	registry := probe.NewRegistry()
	executor := probe.NewExecutor(cfg.ProbeParallelism)
	llmClient := llm.NewOpenAIClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model)
	defer llmClient.Close()

	var facts orchestrator.FactSource
	if cfg.FactStorePath != "" {
		store, err := factstore.Open(cfg.FactStorePath)
		if err != nil {
			slog.Warn("Fact store unavailable, continuing without cache", "error", err)
		} else {
			defer store.Close()
			facts = store
		}
	}

	orch := orchestrator.New(
		registry,
		executor,
		translator.New(llmClient, registry),
		agent.NewDrafter(llmClient, registry),
		agent.NewAuditor(llmClient, registry),
		facts,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := queue.NewWorkerPool(orch, cfg.Queue.WorkerCount, cfg.Queue.QueueDepth)
	pool.Start(ctx)

	rpcServer := rpc.NewServer(cfg.Socket, pool, cfg.RequestDeadline.Std())
	if err := rpcServer.Listen(); err != nil {
		slog.Error("Failed to bind RPC socket", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rpcServer.Serve(gctx)
	})

	var httpServer *api.Server
	if cfg.HTTPAddr != "" {
		httpServer = api.NewServer(cfg.HTTPAddr, pool)
		g.Go(func() error {
			return httpServer.Start()
		})
	}

	// Shutdown sequencing: stop accepting, drain workers, close the
	// socket file.
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if httpServer != nil {
			_ = httpServer.Shutdown(shutdownCtx)
		}
		_ = rpcServer.Close()
		pool.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("Daemon exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("annad stopped")
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
