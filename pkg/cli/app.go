package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"ddl-cache/internal/config"
	"ddl-cache/internal/db"
	"ddl-cache/internal/db/repository"
	"ddl-cache/internal/declarative"
	"ddl-cache/internal/domain"
	"ddl-cache/internal/service/cache"
)

// Database is the cache-owning PostgreSQL database as the commands use it.
type Database interface {
	domain.Querier
	domain.Execer
	Close() error
}

// ReportStore is the scan report repository plus its close hook.
type ReportStore interface {
	domain.ScanReportRepository
	Close() error
}

// app carries what PersistentPreRunE resolves for the subcommands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer

	allowUnknownFields bool

	openDB      func(ctx context.Context, url string, maxOpen int) (Database, error)
	openReports func(path string) (ReportStore, error)
}

func newApp() *app {
	return &app{
		cfg:         &config.Config{},
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		openDB:      openPostgres,
		openReports: openReportStore,
	}
}

func openPostgres(ctx context.Context, url string, maxOpen int) (Database, error) {
	p, err := db.OpenPostgres(ctx, url, maxOpen)
	if err != nil {
		return nil, err
	}
	return p, nil
}

type sqliteReports struct {
	*repository.ScanReportRepo
	close func() error
}

func (s sqliteReports) Close() error { return s.close() }

func openReportStore(path string) (ReportStore, error) {
	conn, err := db.OpenReportStore(path)
	if err != nil {
		return nil, err
	}
	return sqliteReports{ScanReportRepo: repository.NewScanReportRepo(conn), close: conn.Close}, nil
}

// aggregators returns the built-in aggregate functions plus configured ones.
func (a *app) aggregators() []string {
	out := append([]string(nil), cache.DefaultAggregators...)
	return append(out, a.cfg.Aggregators...)
}

// loadGraph loads the rules from the cache directory and builds the graph.
func (a *app) loadGraph() (*cache.Graph, error) {
	state, err := declarative.LoadDirectoryWithOptions(a.cfg.CacheDir, declarative.LoadOptions{
		AllowUnknownFields: a.allowUnknownFields,
	})
	if err != nil {
		return nil, fmt.Errorf("load cache rules: %w", err)
	}
	caches, err := declarative.Compile(state)
	if err != nil {
		return nil, err
	}
	g := cache.Build(a.aggregators(), caches)
	a.logger.Debug("cache graph built", "caches", len(caches), "columns", len(g.Columns()), "levels", len(g.Levels()))
	return g, nil
}

// connect opens the cache database.
func (a *app) connect(ctx context.Context, maxOpen int) (Database, error) {
	conn, err := a.openDB(ctx, a.cfg.DatabaseURL, maxOpen)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return conn, nil
}
