// Conductord is a workflow orchestration daemon.
//
// It decomposes a goal submitted by a connected executor into a plan of
// verifiable steps, generates executable instructions for each step via
// a reasoning provider, delivers them to the executor over WebSocket,
// validates the reported outcomes and repairs failures within a bounded
// retry budget.
//
// Configuration is loaded from an optional YAML file and environment
// variables. See internal/config for details.
//
// Usage:
//
//	# Start the daemon with defaults
//	ORACLE_API_KEY=sk-... conductord
//
//	# Configure via file and environment
//	SERVER_PORT=9090 conductord -config conductord.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/conductord/internal/config"
	"github.com/fyrsmithlabs/conductord/internal/events"
	"github.com/fyrsmithlabs/conductord/internal/logging"
	"github.com/fyrsmithlabs/conductord/internal/oracle"
	"github.com/fyrsmithlabs/conductord/internal/server"
	"github.com/fyrsmithlabs/conductord/internal/workflow"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
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
			fmt.Fprintf(os.Stderr, "  conductord           Start the conductord daemon\n")
			fmt.Fprintf(os.Stderr, "  conductord version   Show version information\n")
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
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

// printVersion prints version information
func printVersion() {
	fmt.Printf("conductord by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the conductord server and blocks until context is
// cancelled.
//
//  1. Loads and validates configuration
//  2. Initializes the logger
//  3. Creates the reasoning provider client
//  4. Creates the workflow engine
//  5. Connects the optional NATS event sink
//  6. Starts the HTTP server and waits for shutdown
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info(ctx, "starting conductord",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("oracle_provider", cfg.Oracle.Provider),
		zap.String("oracle_model", cfg.Oracle.Model),
	)

	client, err := oracle.NewClient(ctx, cfg.Oracle, logger)
	if err != nil {
		return fmt.Errorf("failed to create oracle client: %w", err)
	}

	engine, err := workflow.NewEngine(client, workflow.Config{
		MaxRetries:      cfg.Workflow.MaxRetries,
		ExecutorTimeout: cfg.Workflow.ExecutorTimeout.Duration(),
		Prechecks:       cfg.Workflow.Prechecks,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create workflow engine: %w", err)
	}

	// Every run is logged; NATS publishing is added when configured.
	sinks := workflow.MultiSink{workflow.NewLogSink(logger)}
	if cfg.Events.NATSURL != "" {
		natsSink, err := events.NewNATSSink(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, logger)
		if err != nil {
			return fmt.Errorf("failed to connect event sink: %w", err)
		}
		defer natsSink.Close()
		sinks = append(sinks, natsSink)
		logger.Info(ctx, "nats event sink connected",
			zap.String("subject_prefix", cfg.Events.SubjectPrefix))
	}

	srv, err := server.NewServer(engine, sinks, logger, &server.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
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
	return srv.Shutdown(shutdownCtx)
}
