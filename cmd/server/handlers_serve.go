package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/galdaer/clinical-orchestrator/internal/agents"
	"github.com/galdaer/clinical-orchestrator/internal/audit"
	"github.com/galdaer/clinical-orchestrator/internal/config"
	"github.com/galdaer/clinical-orchestrator/internal/llmclient"
	"github.com/galdaer/clinical-orchestrator/internal/models"
	"github.com/galdaer/clinical-orchestrator/internal/nerclient"
	"github.com/galdaer/clinical-orchestrator/internal/orchestrator"
	"github.com/galdaer/clinical-orchestrator/internal/reactloop"
	"github.com/galdaer/clinical-orchestrator/internal/respcache"
	"github.com/galdaer/clinical-orchestrator/internal/safety"
	"github.com/galdaer/clinical-orchestrator/internal/telemetry"
	"github.com/galdaer/clinical-orchestrator/internal/toolpool"
	"github.com/galdaer/clinical-orchestrator/internal/toolregistry"
)

// app holds every long-lived dependency the orchestration core needs,
// assembled once at startup and torn down once at shutdown.
type app struct {
	cfg    *config.Config
	pool   *toolpool.Pool
	audit  *audit.Logger
	orch   *orchestrator.Orchestrator
	logger *slog.Logger

	shutdownTracing telemetry.Shutdown
}

// newApp wires C1-C9 together per cfg. The registry refresh below
// touches every configured category once, so each category's tool
// server subprocess is spawned and warmed during startup rather than
// on the first query.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		SamplingRate:   telemetrySamplingRate(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry setup: %w", err)
	}

	specs := make([]toolpool.ServerSpec, 0, len(cfg.Pool.Servers))
	for _, s := range cfg.Pool.Servers {
		specs = append(specs, toolpool.ServerSpec{
			ID:       s.ID,
			Command:  s.Command,
			Args:     s.Args,
			Env:      s.Env,
			WorkDir:  s.WorkDir,
			Category: s.Category,
		})
	}

	pool := toolpool.New(toolpool.Options{
		Capacity:       cfg.Pool.Capacity,
		AcquireTimeout: cfg.Pool.AcquireTimeout(),
		CallTimeout:    cfg.Timeouts.PerTool(),
		ShutdownGrace:  cfg.Timeouts.GracefulShutdown(),
		Specs:          specs,
		Logger:         logger,
	})

	registry := toolregistry.New(pool, logger)
	for _, category := range []models.ToolCategory{
		models.CategorySearch, models.CategoryPharmaceutical, models.CategoryClinical,
		models.CategoryNER, models.CategoryGeneral,
	} {
		registry.Refresh(ctx, category)
	}

	cache := respcache.New(respcache.Options{MaxEntries: cfg.Cache.PerSessionMaxEntries})

	scanner := safety.NewScanner(safety.Mode(cfg.Safety.Mode), cfg.Safety.ExtendedPHI)

	llm := llmclient.New(llmclient.Options{BaseURL: cfg.LLM.BaseURL})
	ner := nerclient.New(nerclient.Options{BaseURL: cfg.NER.BaseURL})
	_ = ner // not invoked here; ner_analyze is reached through the tool pool by the agents that list it

	catalog := reactloop.ToolCatalog{
		CategoryOf: func(toolName string) (models.ToolCategory, bool) {
			d, ok := registry.Descriptor(toolName)
			if !ok {
				return "", false
			}
			return d.Category, true
		},
		OutputKeyOf: registry.OutputKeyOf,
		ParseInto:   toolregistry.ParseEnvelope,
	}

	controller := reactloop.New(reactloop.Config{
		PerToolTimeout: cfg.Timeouts.PerTool(),
	}, llm, pool, cache, catalog, logger)

	auditLogger, err := audit.NewLogger(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		Output:     cfg.Audit.Output,
		SampleRate: cfg.Audit.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("audit logger: %w", err)
	}
	metrics := audit.NewMetrics()
	controller.SetMetrics(metrics)

	registryAgents := agents.NewDefaultRegistry(cfg.Timeouts.PerAgentDefault())

	orch := orchestrator.New(cfg, llm, controller, scanner, registryAgents, auditLogger, logger)
	orch.SetMetrics(metrics)

	return &app{
		cfg:             cfg,
		pool:            pool,
		audit:           auditLogger,
		orch:            orch,
		logger:          logger,
		shutdownTracing: shutdownTracing,
	}, nil
}

func telemetrySamplingRate(cfg *config.Config) float64 {
	if !cfg.Telemetry.Enabled {
		return telemetry.NeverSample
	}
	return 1.0
}

// run drives the orchestration core from newline-delimited JSON queries
// on stdin until ctx is cancelled or stdin reaches EOF, writing one JSON
// Response per line to stdout. This is the minimal process lifecycle
// spec.md §1 calls for in place of an HTTP front-end: a caller that
// wants a network transport puts one in front of Orchestrator.Handle.
func (a *app) run(ctx context.Context) error {
	type lineResult struct {
		resp models.Response
		err  error
	}
	results := make(chan lineResult)

	go func() {
		defer close(results)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var query models.Query
			if err := json.Unmarshal(line, &query); err != nil {
				results <- lineResult{err: fmt.Errorf("decode query: %w", err)}
				continue
			}
			resp := a.orch.Handle(ctx, query)
			results <- lineResult{resp: resp}
		}
	}()

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-results:
			if !ok {
				return nil
			}
			if r.err != nil {
				a.logger.Error("query decode failed", "error", r.err)
				continue
			}
			payload, err := json.Marshal(r.resp)
			if err != nil {
				a.logger.Error("response encode failed", "error", err)
				continue
			}
			out.Write(payload)
			out.WriteString("\n")
			out.Flush()
		}
	}
}

// stop drains the tool pool's subprocesses and flushes the audit log and
// tracer provider. Best-effort: a failure in one stage doesn't skip the
// rest.
func (a *app) stop(ctx context.Context) error {
	a.pool.Shutdown()

	var errs []error
	if err := a.audit.Close(); err != nil {
		errs = append(errs, fmt.Errorf("audit close: %w", err))
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// runServe implements the serve command: load config, assemble the app,
// run until a shutdown signal arrives, then shut down gracefully.
func runServe(ctx context.Context, configPath string, debug bool) error {
	logger := slog.Default()
	if debug {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		slog.SetDefault(logger)
	}

	logger.Info("starting clinical orchestration core",
		"version", version, "commit", commit, "config", configPath, "debug", debug)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("configuration loaded",
		"pool_capacity", cfg.Pool.Capacity,
		"safety_mode", cfg.Safety.Mode,
		"llm_base_url", cfg.LLM.BaseURL,
	)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.run(ctx)
	}()

	logger.Info("clinical orchestration core started")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	logger.Info("shutdown signal received, draining tool pool")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Timeouts.GracefulShutdown())
	defer shutdownCancel()

	if err := a.stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("clinical orchestration core stopped gracefully")
	return nil
}

// runHealthcheck verifies the local LLM and NER HTTP dependencies
// respond before a deployment starts routing traffic.
func runHealthcheck(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ner := nerclient.New(nerclient.Options{BaseURL: cfg.NER.BaseURL, Timeout: 5 * time.Second})
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := ner.Analyze(checkCtx, "healthcheck probe", false); err != nil {
		return fmt.Errorf("ner service unreachable at %s: %w", cfg.NER.BaseURL, err)
	}

	llm := llmclient.New(llmclient.Options{BaseURL: cfg.LLM.BaseURL, Timeout: 5 * time.Second})
	llmCtx, llmCancel := context.WithTimeout(ctx, 5*time.Second)
	defer llmCancel()
	if _, err := llm.Complete(llmCtx, "respond with OK", llmclient.Params{MaxTokens: 4}); err != nil {
		return fmt.Errorf("llm unreachable at %s: %w", cfg.LLM.BaseURL, err)
	}

	fmt.Println("ok")
	return nil
}
