package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/palisade-db/palisade/internal/config"
)

// parseFlags parses CLI arguments into config overrides. Only flags the
// user actually passed are set, so env vars keep their values otherwise.
func parseFlags(args []string) (config.Overrides, error) {
	fs := flag.NewFlagSet("palisade", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	databaseURL := fs.String("database-url", "", "PostgreSQL connection URL (overrides DATABASE_URL)")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error")
	maxRows := fs.Int("max-rows", 0, "maximum rows returned per query")
	queryTimeout := fs.Duration("query-timeout", 0, "per-query timeout")
	policyFile := fs.String("policy-file", "", "path to policy YAML file")
	transport := fs.String("transport", "", `transport: "stdio" or "http"`)
	httpAddr := fs.String("http-addr", "", "listen address for HTTP transport")
	httpBearerToken := fs.String("http-bearer-token", "", "bearer token required on HTTP requests")
	otelEnabled := fs.Bool("otel", false, "enable OpenTelemetry tracing and metrics")
	dryRun := fs.Bool("dry-run", false, "validate configuration and policy, then exit")
	explainOnly := fs.Bool("explain-only", false, "run every query under EXPLAIN instead of executing it")
	auditLog := fs.String("audit-log", "", "path to NDJSON audit log file")

	poolMaxConns := fs.Int("pool-max-conns", 0, "maximum pool connections")
	poolMinConns := fs.Int("pool-min-conns", -1, "minimum pool connections")
	poolMaxConnLifetime := fs.Duration("pool-max-conn-lifetime", 0, "maximum connection lifetime")

	if err := fs.Parse(args); err != nil {
		return config.Overrides{}, fmt.Errorf("parsing flags: %w", err)
	}

	o := config.Overrides{
		OTelEnabled: *otelEnabled,
		DryRun:      *dryRun,
		ExplainOnly: *explainOnly,
		AuditLog:    *auditLog,
	}

	// Only record flags that were explicitly set.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "database-url":
			o.DatabaseURL = databaseURL
		case "log-level":
			o.LogLevel = logLevel
		case "max-rows":
			o.MaxRows = maxRows
		case "query-timeout":
			o.QueryTimeout = queryTimeout
		case "policy-file":
			o.PolicyFile = policyFile
		case "transport":
			o.Transport = transport
		case "http-addr":
			o.HTTPAddr = httpAddr
		case "http-bearer-token":
			o.HTTPBearerToken = httpBearerToken
		case "pool-max-conns":
			v := int32(*poolMaxConns)
			o.PoolMaxConns = &v
		case "pool-min-conns":
			v := int32(*poolMinConns)
			o.PoolMinConns = &v
		case "pool-max-conn-lifetime":
			o.PoolMaxConnLifetime = poolMaxConnLifetime
		}
	})

	return o, nil
}
