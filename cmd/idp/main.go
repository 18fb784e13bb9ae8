// Command idp is the identifier-provider CLI entry point (spec §6):
// `idp request_id <source_list> <result_log>` and `idp get_xml <v3>`.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/google/uuid"

	"github.com/scieloorg/id-provider/internal/config"
	"github.com/scieloorg/id-provider/internal/idp/allocator"
	"github.com/scieloorg/id-provider/internal/idp/pipeline"
	"github.com/scieloorg/id-provider/internal/idp/resolver"
	"github.com/scieloorg/id-provider/internal/idp/xmladapter"
	"github.com/scieloorg/id-provider/internal/queue"
	"github.com/scieloorg/id-provider/internal/repository/postgres"
)

// app bundles the wiring every idp subcommand needs.
type app struct {
	cfg    *config.Config
	store  *postgres.DocumentStore
	pipe   *pipeline.Pipeline
	queues queue.Set
	logger *slog.Logger
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger, closeLog := setupLogger()
	if closeLog != nil {
		defer closeLog()
	}
	logger = logger.With("run_id", uuid.NewString())

	if len(args) == 0 {
		printUsage(os.Stderr)
		return 1
	}

	a, err := newApp(ctx, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer a.queues.StopWait()

	verb, rest := args[0], args[1:]
	switch verb {
	case "request_id":
		return a.cmdRequestId(ctx, rest)
	case "get_xml":
		return a.cmdGetXML(ctx, rest)
	case "-h", "--help", "help":
		printUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "idp: unknown command %q\n", verb)
		printUsage(os.Stderr)
		return 1
	}
}

func printUsage(w *os.File) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  idp request_id <source_list> <result_log>")
	fmt.Fprintln(w, "  idp get_xml <v3>")
}

func setupLogger() (*slog.Logger, func() error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	dir := os.Getenv("LOG_FILE")
	if dir == "" {
		return logger, nil
	}
	f, err := config.SetupLogFile(dir, "idp", 20)
	if err != nil {
		logger.Warn("could not open log file, logging to stdout only", "error", err)
		return logger, nil
	}
	multi := slog.New(slog.NewJSONHandler(f, nil))
	return multi, f.Close
}

func newApp(ctx context.Context, logger *slog.Logger) (*app, error) {
	cfg := config.Load()

	pool, err := postgres.CreateConnectionPool(ctx, cfg.IDPDatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to id-provider database: %w", err)
	}

	tables := postgres.NewTableNames(cfg.TablePrefix)
	repoCfg := &postgres.RepositoryConfig{Pool: pool, Tables: tables, Logger: logger}

	store := postgres.NewDocumentStore(repoCfg)
	res := resolver.New(store)
	alloc := allocator.New(store, cfg.V3AllocMaxAttempts)
	pipe := pipeline.New(res, alloc, xmladapter.RewriteIds, store, cfg.V2AllocMaxAttempts)

	var queues queue.Set
	if cfg.ConcurrencyEnabled {
		queues = queue.NewWorkerPoolSet(4, 4, 2)
	} else {
		queues = queue.NewSynchronousSet()
	}

	return &app{cfg: cfg, store: store, pipe: pipe, queues: queues, logger: logger}, nil
}
