// Command flowsolve runs the water-treatment flowsheet engine: an HTTP
// service with persistence and scheduled re-solves, a one-shot solve CLI,
// and an MCP stdio server for agent integrations.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hydrolab/flowsolve/internal/expressions"
	"github.com/hydrolab/flowsolve/internal/logging"
	"github.com/hydrolab/flowsolve/internal/metrics"
	"github.com/hydrolab/flowsolve/internal/scheduler"
	"github.com/hydrolab/flowsolve/internal/server"
	"github.com/hydrolab/flowsolve/internal/solver"
	"github.com/hydrolab/flowsolve/internal/store"
	"github.com/hydrolab/flowsolve/internal/units"
	"github.com/hydrolab/flowsolve/internal/validation"
	"github.com/hydrolab/flowsolve/pkg/mcp"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe()
	case "solve":
		err = runSolve(os.Args[2:])
	case "validate":
		err = runValidate(os.Args[2:])
	case "mcp":
		err = runMCP()
	case "version":
		printVersion()
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "flowsolve:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: flowsolve <command>

commands:
  serve      start the HTTP API with persistence and the scheduler
  solve      solve a flowsheet document from a file or stdin
  validate   validate a flowsheet document without solving
  mcp        serve the MCP tool interface over stdio
  version    print the build version`)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

// buildEngine wires the calculation core shared by every command.
func buildEngine(cfg Config) (*units.Registry, *validation.Validator, *solver.Solver, error) {
	registry := units.NewRegistry()
	limits := units.Limits{
		MaxRecovery: cfg.MaxRecovery,
		MaxFlux:     cfg.MaxFlux,
		MaxTMP:      cfg.MaxTMP,
	}
	if err := units.RegisterBuiltins(registry, limits, expressions.NewExprEngine()); err != nil {
		return nil, nil, nil, fmt.Errorf("register calculators: %w", err)
	}

	v, err := validation.NewValidator()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("compile flowsheet schema: %w", err)
	}

	celEngine, err := expressions.NewCELEngine()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build constraint engine: %w", err)
	}

	slv := solver.New(registry, solver.Options{
		Tolerance:     cfg.Tolerance,
		MaxIterations: cfg.MaxIterations,
		Strict:        cfg.Strict,
	}).WithConstraints(celEngine)

	return registry, v, slv, nil
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	registry, v, slv, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	slv.WithLogger(logger)

	if err := os.MkdirAll(flowsolveDir(), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	var reg *metrics.Registry
	if cfg.Metrics {
		reg = metrics.NewRegistry()
	}

	srv := server.NewServer(server.Deps{
		Store:     st,
		Registry:  registry,
		Validator: v,
		Solver:    slv,
		Query:     expressions.NewGoJQEngine(),
		Metrics:   reg,
		Logger:    logger,
		Version:   version,
	})

	sched := scheduler.NewScheduler(st, srv, logger)
	if reg != nil {
		sched.WithMetrics(reg)
	}
	if err := sched.RecoverMissed(ctx); err != nil {
		logger.Warn("missed-run recovery failed", slog.String("error", err.Error()))
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}
	go func() {
		<-ctx.Done()
		httpSrv.Shutdown(context.Background())
	}()

	logger.Info("flowsolve serving",
		slog.String("addr", cfg.ListenAddr),
		slog.String("db", cfg.DBPath),
		slog.String("version", version),
	)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func runMCP() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)

	registry, v, slv, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	slv.WithLogger(logger)

	// Persistence is optional for the MCP surface: stored-flowsheet solves
	// work only when the database already exists.
	var st store.Store
	if libsql, err := store.NewLibSQLStore("file:" + cfg.DBPath); err == nil {
		if err := libsql.Migrate(context.Background()); err == nil {
			st = libsql
			defer libsql.Close()
		} else {
			libsql.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := mcp.NewFlowsolveServer(mcp.FlowsolveServerDeps{
		Registry:  registry,
		Validator: v,
		Solver:    slv,
		Store:     st,
		Logger:    logger,
	})
	return srv.Serve(ctx)
}
