// Command migr is the migration-orchestrator CLI entry point (spec
// §6): register_migration, migrate, request_id, undo_id_request,
// get_xml.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/scieloorg/id-provider/internal/config"
	"github.com/scieloorg/id-provider/internal/idp/allocator"
	"github.com/scieloorg/id-provider/internal/idp/pipeline"
	"github.com/scieloorg/id-provider/internal/idp/resolver"
	"github.com/scieloorg/id-provider/internal/idp/xmladapter"
	"github.com/scieloorg/id-provider/internal/migration"
	"github.com/scieloorg/id-provider/internal/queue"
	"github.com/scieloorg/id-provider/internal/repository/postgres"
	"github.com/scieloorg/id-provider/internal/source"
	"github.com/scieloorg/id-provider/internal/source/articlemeta"
	"github.com/scieloorg/id-provider/internal/source/filesystem"
	"github.com/scieloorg/id-provider/internal/source/website"
)

// app bundles the wiring every migr subcommand needs.
type app struct {
	cfg    *config.Config
	idp    *postgres.DocumentStore
	mstore *postgres.MigrationStore
	orch   *migration.Orchestrator
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

	verb, rest := args[0], args[1:]

	xmlFolder, collection, skipUpdate, rest := parseFlags(rest)

	a, err := newApp(ctx, logger, xmlFolder, collection)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer a.queues.StopWait()

	switch verb {
	case "register_migration":
		return a.cmdRegisterMigration(ctx, rest, skipUpdate)
	case "migrate":
		return a.cmdMigrate(ctx, rest)
	case "request_id":
		return a.cmdRequestId(ctx, rest)
	case "undo_id_request":
		return a.cmdUndoIdRequest(ctx, rest)
	case "get_xml":
		return a.cmdGetXML(ctx, rest)
	case "-h", "--help", "help":
		printUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "migr: unknown command %q\n", verb)
		printUsage(os.Stderr)
		return 1
	}
}

func printUsage(w *os.File) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  migr register_migration [--skip_update] <jsonl> <issn_out>")
	fmt.Fprintln(w, "  migr migrate <issn_list> [--xml_folder_path P] [--collection C]")
	fmt.Fprintln(w, "  migr request_id <issn_list>")
	fmt.Fprintln(w, "  migr undo_id_request <issn_list>")
	fmt.Fprintln(w, "  migr get_xml <v2>")
}

// parseFlags parses the full set of flags any migr verb accepts —
// --xml_folder_path/--collection (folded into the pull sources that
// migrate uses) and --skip_update (register_migration) — wherever they
// appear in args, returning the remaining positional args. One
// FlagSet for every verb keeps pflag from mistaking an unknown flag's
// neighboring positional arg for its value.
func parseFlags(args []string) (xmlFolder, collection string, skipUpdate bool, rest []string) {
	fs := pflag.NewFlagSet("migr", pflag.ContinueOnError)
	fs.Usage = func() {}
	xmlFolderFlag := fs.String("xml_folder_path", "", "legacy XML root override")
	collectionFlag := fs.String("collection", "", "article-meta collection override")
	skipUpdateFlag := fs.Bool("skip_update", false, "leave existing migration rows untouched")
	_ = fs.Parse(args)
	return *xmlFolderFlag, *collectionFlag, *skipUpdateFlag, fs.Args()
}

func setupLogger() (*slog.Logger, func() error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	dir := os.Getenv("LOG_FILE")
	if dir == "" {
		return logger, nil
	}
	f, err := config.SetupLogFile(dir, "migr", 20)
	if err != nil {
		logger.Warn("could not open log file, logging to stdout only", "error", err)
		return logger, nil
	}
	return slog.New(slog.NewJSONHandler(f, nil)), f.Close
}

func newApp(ctx context.Context, logger *slog.Logger, xmlFolder, collection string) (*app, error) {
	cfg := config.Load()
	if xmlFolder == "" {
		xmlFolder = cfg.LegacyXMLRoot
	}
	if collection == "" {
		collection = cfg.ArticleMetaCollection
	}

	idpPool, err := postgres.CreateConnectionPool(ctx, cfg.IDPDatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to id-provider database: %w", err)
	}
	websitePool, err := postgres.CreateConnectionPool(ctx, cfg.WebsiteDatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to website database: %w", err)
	}

	tables := postgres.NewTableNames(cfg.TablePrefix)
	idpRepoCfg := &postgres.RepositoryConfig{Pool: idpPool, Tables: tables, Logger: logger}
	websiteRepoCfg := &postgres.RepositoryConfig{Pool: websitePool, Tables: tables, Logger: logger}

	idpStore := postgres.NewDocumentStore(idpRepoCfg)
	mstore := postgres.NewMigrationStore(websiteRepoCfg)

	res := resolver.New(idpStore)
	alloc := allocator.New(idpStore, cfg.V3AllocMaxAttempts)
	pipe := pipeline.New(res, alloc, xmladapter.RewriteIds, idpStore, cfg.V2AllocMaxAttempts)

	client := source.NewRetryingClient(cfg.HTTPTimeout, cfg.HTTPMaxRetries, 0)
	sources := []source.Named{
		{Name: source.Website, Fetcher: website.New(cfg.WebsiteBaseURL, client)},
		{Name: source.Filesystem, Fetcher: filesystem.New(xmlFolder)},
		{Name: source.ArticleMeta, Fetcher: articlemeta.New("", collection, client)},
	}
	orch := migration.New(mstore, sources, pipe)

	var queues queue.Set
	if cfg.ConcurrencyEnabled {
		queues = queue.NewWorkerPoolSet(4, 4, 2)
	} else {
		queues = queue.NewSynchronousSet()
	}

	return &app{cfg: cfg, idp: idpStore, mstore: mstore, orch: orch, queues: queues, logger: logger}, nil
}
