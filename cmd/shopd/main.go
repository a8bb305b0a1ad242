// Shopd is a conversational shopping agent daemon.
//
// It serves a chat API that routes user messages to task-specific executors
// (product search, reviews, cart, checkout, customer support), runs them in a
// bounded tool-use loop against the commerce domain services, and gates
// purchase commitment on explicit user approval.
//
// Configuration is loaded from a YAML file and SHOPD_* environment variables.
// See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	SHOPD_ENGINE_API_KEY=sk-... shopd
//
//	# Configure via file and environment
//	SHOPD_SERVER_PORT=8090 shopd -config /etc/shopd/config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/shopd/internal/agent"
	"github.com/fyrsmithlabs/shopd/internal/config"
	"github.com/fyrsmithlabs/shopd/internal/engine"
	"github.com/fyrsmithlabs/shopd/internal/events"
	shopdhttp "github.com/fyrsmithlabs/shopd/internal/http"
	"github.com/fyrsmithlabs/shopd/internal/logging"
	"github.com/fyrsmithlabs/shopd/internal/memory"
	"github.com/fyrsmithlabs/shopd/internal/shopping"
	"github.com/fyrsmithlabs/shopd/internal/telemetry"
	"github.com/fyrsmithlabs/shopd/internal/tools"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  shopd           Start the shopd daemon\n")
			fmt.Fprintf(os.Stderr, "  shopd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("shopd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the shopd server and blocks until the context is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	logger.Info("Starting shopd",
		zap.Int("port", cfg.Server.Port),
		zap.String("service", cfg.Observability.ServiceName),
		zap.String("model", cfg.Engine.Model))

	tel, err := telemetry.New(ctx, cfg.Observability)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	store, err := memory.NewStore(ctx, memory.Config{
		URL:         cfg.Redis.URL,
		ContextTTL:  cfg.Redis.ContextTTL.Duration(),
		CartTTL:     cfg.Redis.CartTTL.Duration(),
		ApprovalTTL: cfg.Redis.ApprovalTTL.Duration(),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer store.Close()

	var publisher *events.Publisher
	if cfg.NATS.Enabled {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name(cfg.Observability.ServiceName),
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(1*time.Second),
		)
		if err != nil {
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		defer nc.Close()
		publisher = events.NewPublisher(nc, cfg.Observability.ServiceName, logger)
		logger.Info("nats connected", zap.String("url", cfg.NATS.URL))
	} else {
		publisher = events.NewPublisher(nil, cfg.Observability.ServiceName, logger)
	}

	eng, err := engine.NewOpenAI(engine.OpenAIConfig{
		APIKey:            cfg.Engine.APIKey.Value(),
		Model:             cfg.Engine.Model,
		BaseURL:           cfg.Engine.BaseURL,
		Timeout:           cfg.Engine.Timeout.Duration(),
		RequestsPerSecond: cfg.Engine.RequestsPerSecond,
		Burst:             cfg.Engine.Burst,
		MaxRetries:        cfg.Engine.MaxRetries,
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	clients := shopping.NewClients(shopping.Config{
		ProductURL:   cfg.Services.ProductURL,
		ReviewURL:    cfg.Services.ReviewURL,
		OrderURL:     cfg.Services.OrderURL,
		InventoryURL: cfg.Services.InventoryURL,
		Timeout:      cfg.Services.Timeout.Duration(),
		MaxRetries:   cfg.Services.MaxRetries,
	}, logger)

	registry := tools.NewRegistry(clients)
	invoker := tools.NewInvoker(registry, logger)

	graph := agent.NewGraph(eng, invoker, agent.GraphConfig{
		MaxIterations: cfg.Agent.MaxIterations,
	}, logger)
	runner := agent.NewRunner(graph, store, clients, publisher, logger)

	srv, err := shopdhttp.NewServer(runner, logger, &shopdhttp.Config{
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	return nil
}
