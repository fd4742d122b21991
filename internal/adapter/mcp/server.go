package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"

	"github.com/palisade-db/palisade/internal/core/port"
	"github.com/palisade-db/palisade/internal/core/service"
	"github.com/palisade-db/palisade/internal/ratelimit"
)

// NewServer creates an MCPServer with tools and logging hooks. The rate
// limiter is optional; pass nil to disable per-client throttling.
func NewServer(
	version string,
	explorer *service.ExplorerService,
	query *service.QueryService,
	logger *slog.Logger,
	tracer trace.Tracer,
	inst port.Instrumentation,
	limiter *ratelimit.SlidingWindow,
) *server.MCPServer {
	hooks := ToolCallHooks(logger, tracer, inst)
	if limiter != nil {
		// Sessions are the rate-limit key; drop their window history
		// when the client disconnects.
		hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
			limiter.Reset(session.SessionID())
		})
	}

	s := server.NewMCPServer(
		serverName,
		version,
		server.WithHooks(hooks),
	)

	RegisterTools(s, explorer, query, logger, limiter)

	return s
}
