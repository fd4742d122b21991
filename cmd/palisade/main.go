package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel"

	"github.com/palisade-db/palisade/internal/adapter/mcp"
	"github.com/palisade-db/palisade/internal/adapter/policy"
	"github.com/palisade-db/palisade/internal/adapter/postgres"
	"github.com/palisade-db/palisade/internal/audit"
	"github.com/palisade-db/palisade/internal/config"
	"github.com/palisade-db/palisade/internal/core/domain"
	"github.com/palisade-db/palisade/internal/core/port"
	"github.com/palisade-db/palisade/internal/core/service"
	"github.com/palisade-db/palisade/internal/ratelimit"
	"github.com/palisade-db/palisade/internal/resilience"
	"github.com/palisade-db/palisade/internal/telemetry"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	overrides, err := parseFlags(os.Args[1:])
	if err != nil {
		return err
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Logs go to stderr — stdout is reserved for the MCP stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	logger.Info("starting palisade",
		slog.String("version", version),
		slog.String("log_level", cfg.LogLevel.String()),
		slog.String("database_url", redactDSN(cfg.DatabaseURL)),
		slog.Bool("read_only", cfg.ReadOnly),
		slog.Int("max_rows", cfg.MaxRows),
		slog.String("query_timeout", cfg.QueryTimeout.String()),
		slog.String("transport", cfg.Transport),
	)

	// Access policy: env settings first, then the policy file section
	// overrides them wholesale when present.
	compiled, masks, filePol, err := buildPolicy(cfg)
	if err != nil {
		return err
	}
	store := domain.NewStore(compiled)
	validator := domain.NewValidator(store)

	logger.Info("access policy compiled",
		slog.Any("allowed_statements", compiled.AllowedKindNames()),
		slog.Int("blocked_tables", len(compiled.BlockedTables)),
		slog.Int("allowed_tables", len(compiled.AllowedTables)),
		slog.Int("masked_columns", len(masks)),
	)

	if cfg.DryRun {
		logger.Info("configuration valid, exiting (dry run)")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Telemetry.
	tracer := telemetry.NoopTracer()
	inst := telemetry.NoopInstruments()
	if cfg.OTelEnabled {
		provider, err := telemetry.Init(ctx, "palisade", version)
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown", slog.String("error", err.Error()))
			}
		}()
		tracer = otel.Tracer("palisade")
		inst = telemetry.NewInstruments()
		logger.Info("telemetry enabled")
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolSettings{
		MaxConns:        cfg.PoolMaxConns,
		MinConns:        cfg.PoolMinConns,
		MaxConnLifetime: cfg.PoolMaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	logger.Info("database pool connected", slog.String("db.system", "postgresql"))

	// Adapters.
	var explorer port.SchemaExplorer = postgres.NewExplorer(pool, cfg.Schemas)
	if filePol != nil {
		explorer = policy.NewPolicyExplorer(explorer, filePol)
	}

	var executor port.QueryExecutor = postgres.NewExecutor(pool, cfg.ReadOnly, cfg.MaxRows, cfg.QueryTimeout)
	if cfg.BreakerEnabled {
		breaker := resilience.NewBreaker("postgres", resilience.Config{
			FailureThreshold: cfg.BreakerFailureThreshold,
			SuccessThreshold: cfg.BreakerSuccessThreshold,
			OpenTimeout:      cfg.BreakerOpenTimeout,
			SamplingWindow:   resilience.DefaultConfig().SamplingWindow,
			VolumeThreshold:  resilience.DefaultConfig().VolumeThreshold,
		}, logger)
		executor = resilience.NewBreakerExecutor(executor, breaker)
	}
	if cfg.ExplainOnly {
		executor = postgres.NewExplainOnlyExecutor(executor)
		logger.Info("explain-only mode: all queries run under EXPLAIN")
	}

	var auditor port.QueryAuditor = audit.NoopAuditor{}
	if cfg.AuditLog != "" {
		fileAuditor, err := audit.NewFileAuditor(cfg.AuditLog)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer func() { _ = fileAuditor.Close() }()
		auditor = fileAuditor
		logger.Info("audit log enabled", slog.String("path", cfg.AuditLog))
	}

	var limiter *ratelimit.SlidingWindow
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewSlidingWindow(
			cfg.RateLimitRequests, cfg.RateLimitWindow, cfg.RateLimitBlockDuration)
	}

	// Services.
	explorerSvc := service.NewExplorerService(explorer, logger, tracer)
	querySvc := service.NewQueryService(validator, executor, auditor, logger, masks, tracer, inst)

	// SIGHUP swaps in a freshly compiled policy without dropping
	// connections or restarting the server.
	if cfg.PolicyFile != "" {
		go reloadOnSIGHUP(ctx, cfg, store, logger)
	}

	// MCP server with tool handlers.
	mcpServer := mcp.NewServer(version, explorerSvc, querySvc, logger, tracer, inst, limiter)

	switch cfg.Transport {
	case "http":
		return serveHTTP(ctx, mcpServer, cfg, logger)
	default:
		return serveStdio(ctx, mcpServer, logger)
	}
}

// buildPolicy compiles the validation policy from config, letting a
// policy file's access section take precedence. It also returns the
// column masks and the loaded file policy (nil when no file is set).
func buildPolicy(cfg *config.Config) (*domain.Policy, map[string]domain.MaskType, *policy.Policy, error) {
	access := policy.AccessConfig{
		AllowedStatements:    cfg.AllowedStatements,
		SystemSchemaPrefixes: cfg.SystemSchemaPrefixes,
		AllowedTables:        cfg.AllowedTables,
		BlockedTables:        cfg.BlockedTables,
		BlockedColumns:       cfg.BlockedColumns,
	}

	var filePol *policy.Policy
	var masks map[string]domain.MaskType
	if cfg.PolicyFile != "" {
		pol, err := policy.LoadFromFile(cfg.PolicyFile)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("loading policy: %w", err)
		}
		filePol = pol
		masks = policy.MaskSpec(pol.Context)
		if !pol.Access.Empty() {
			access = pol.Access
		}
	}

	compiled, err := access.Compile()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("compiling access policy: %w", err)
	}
	return compiled, masks, filePol, nil
}

// reloadOnSIGHUP re-reads the policy file on SIGHUP and swaps the
// compiled policy into the store. A broken file logs an error and keeps
// the running policy.
func reloadOnSIGHUP(ctx context.Context, cfg *config.Config, store *domain.Store, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			pol, err := policy.LoadFromFile(cfg.PolicyFile)
			if err != nil {
				logger.Error("policy reload failed, keeping current policy",
					slog.String("file", cfg.PolicyFile),
					slog.String("error", err.Error()),
				)
				continue
			}
			compiled, err := pol.Access.Compile()
			if err != nil {
				logger.Error("policy reload failed, keeping current policy",
					slog.String("file", cfg.PolicyFile),
					slog.String("error", err.Error()),
				)
				continue
			}
			store.Swap(compiled)
			logger.Info("policy reloaded",
				slog.String("file", cfg.PolicyFile),
				slog.Any("allowed_statements", compiled.AllowedKindNames()),
			)
		}
	}
}

func serveStdio(ctx context.Context, mcpServer *mcpserver.MCPServer, logger *slog.Logger) error {
	stdioServer := mcpserver.NewStdioServer(mcpServer)

	logger.Info("serving MCP over stdio")
	if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func serveHTTP(ctx context.Context, mcpServer *mcpserver.MCPServer, cfg *config.Config, logger *slog.Logger) error {
	streamable := mcpserver.NewStreamableHTTPServer(mcpServer)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/mcp", bearerAuthMiddleware(streamable, cfg.HTTPBearerToken))

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           recoveryMiddleware(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving MCP over HTTP", slog.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// redactDSN masks the password in a database URL for safe logging.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "***"
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
