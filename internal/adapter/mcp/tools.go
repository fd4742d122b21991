package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/palisade-db/palisade/internal/core/domain"
	"github.com/palisade-db/palisade/internal/core/service"
	"github.com/palisade-db/palisade/internal/ratelimit"
)

// Server metadata
const serverName = "palisade"

// Tool descriptions
const (
	descListSchemas = "List all available database schemas. " +
		"Call this first to discover what schemas exist before listing tables or describing them."

	descDiscover = "Return a full overview of the database: every schema with its tables, " +
		"including estimated row counts, sizes, and comments. " +
		"Use this for a one-shot orientation instead of calling list_schemas and list_tables separately."

	descListTables = "List all tables and views with schema, type, estimated row count, total size, column count, " +
		"and whether indexes exist. Use this to understand the database landscape — " +
		"table sizes tell you which tables are large (avoid SELECT * on them) and " +
		"row estimates help you plan queries with appropriate LIMIT clauses."

	descDescribeTable = "Describe a table's full structure including: columns with types, nullability, defaults, and comments; " +
		"primary keys; foreign keys with referenced tables; indexes; check constraints; " +
		"row estimate; and table size. " +
		"Use this to understand a table before writing queries. " +
		"Pay attention to foreign keys for JOIN paths, check constraints for the allowed values, " +
		"and nullability to handle NULLs correctly in filters and JOINs."

	descDescribeTableParam = "Name of the table to describe"

	descQuery = "Execute a SQL query against the database and return results as a JSON array of objects. " +
		"Every statement is checked against the access policy before execution: statement kinds, " +
		"referenced tables, and columns must all be permitted, and system catalogs are off limits. " +
		"Rejected queries return the violation code and reason. " +
		"A server-side row limit and query timeout are enforced. " +
		"Always use specific column names instead of SELECT *. " +
		"Use JOINs based on foreign keys discovered via describe_table."

	descQueryParam = "SQL query to execute"

	descValidateSQL = "Check a SQL statement against the access policy WITHOUT executing it. " +
		"Returns the verdict (accepted or rejected), the violation code and reason when rejected, " +
		"and the tables the statement references. " +
		"Use this to pre-flight a generated query before running it with the query tool, " +
		"or to explain to a user why a query would be refused."

	descValidateSQLParam = "SQL statement to check (it will not be executed)"

	descExplainQuery = "Show the PostgreSQL execution plan for a SQL query. " +
		"Returns the query planner's strategy including scan types, join methods, and cost estimates. " +
		"The query is validated against the access policy first, like the query tool. " +
		"Use this to understand query performance before or after running a query. " +
		"Supports ANALYZE to include actual execution statistics (the query WILL be executed)."

	descExplainQuerySQL = "The SELECT query to explain (without the EXPLAIN keyword)"
)

func RegisterTools(s *server.MCPServer, explorer *service.ExplorerService, query *service.QueryService, logger *slog.Logger, limiter *ratelimit.SlidingWindow) {
	s.AddTool(
		mcp.NewTool("list_schemas",
			mcp.WithDescription(descListSchemas),
		),
		throttled(limiter, logger, listSchemasHandler(explorer, logger)),
	)

	s.AddTool(
		mcp.NewTool("list_tables",
			mcp.WithDescription(descListTables),
		),
		throttled(limiter, logger, listTablesHandler(explorer, logger)),
	)

	s.AddTool(
		mcp.NewTool("discover",
			mcp.WithDescription(descDiscover),
		),
		throttled(limiter, logger, discoverHandler(explorer, logger)),
	)

	s.AddTool(
		mcp.NewTool("describe_table",
			mcp.WithDescription(descDescribeTable),
			mcp.WithString("table_name",
				mcp.Required(),
				mcp.Description(descDescribeTableParam),
			),
			mcp.WithString("schema",
				mcp.Description("Schema name (optional, resolves automatically if omitted)"),
			),
		),
		throttled(limiter, logger, describeTableHandler(explorer, logger)),
	)

	s.AddTool(
		mcp.NewTool("query",
			mcp.WithDescription(descQuery),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description(descQueryParam),
			),
		),
		throttled(limiter, logger, queryHandler(query, logger)),
	)

	s.AddTool(
		mcp.NewTool("validate_sql",
			mcp.WithDescription(descValidateSQL),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description(descValidateSQLParam),
			),
		),
		throttled(limiter, logger, validateSQLHandler(query)),
	)

	s.AddTool(
		mcp.NewTool("explain_query",
			mcp.WithDescription(descExplainQuery),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description(descExplainQuerySQL),
			),
			mcp.WithBoolean("analyze",
				mcp.Description("Include actual execution statistics (executes the query). Defaults to false."),
			),
		),
		throttled(limiter, logger, explainQueryHandler(query, logger)),
	)
}

// throttled wraps a tool handler with per-client rate limiting. Clients
// are keyed by MCP session; calls without a session share one bucket.
func throttled(limiter *ratelimit.SlidingWindow, logger *slog.Logger, h server.ToolHandlerFunc) server.ToolHandlerFunc {
	if limiter == nil {
		return h
	}
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		clientID := "default"
		if session := server.ClientSessionFromContext(ctx); session != nil {
			clientID = session.SessionID()
		}

		d := limiter.Allow(clientID)
		if !d.Allowed {
			logger.WarnContext(ctx, "rate limit exceeded",
				slog.String("client_id", clientID),
				slog.String("tool", request.Params.Name),
				slog.String("retry_after", d.RetryAfter.Round(time.Second).String()),
			)
			return mcp.NewToolResultError(fmt.Sprintf(
				"rate limit exceeded, retry in %s", d.RetryAfter.Round(time.Second))), nil
		}
		logger.DebugContext(ctx, "rate limit check",
			slog.String("client_id", clientID),
			slog.Int("remaining", d.Remaining),
		)
		return h(ctx, request)
	}
}

func listSchemasHandler(explorer *service.ExplorerService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		schemas, err := explorer.ListSchemas(ctx)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "list schemas")), nil
		}
		return marshalResult(schemas)
	}
}

func listTablesHandler(explorer *service.ExplorerService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tables, err := explorer.ListTables(ctx)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "list tables")), nil
		}
		return marshalResult(tables)
	}
}

func discoverHandler(explorer *service.ExplorerService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := explorer.Discover(ctx)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "discover")), nil
		}
		return marshalResult(result)
	}
}

func describeTableHandler(explorer *service.ExplorerService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tableName, ok := request.GetArguments()["table_name"].(string)
		if !ok || tableName == "" {
			return mcp.NewToolResultError("table_name is required"), nil
		}

		schema, _ := request.GetArguments()["schema"].(string)

		detail, err := explorer.DescribeTable(ctx, schema, tableName)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "describe table")), nil
		}
		return marshalResult(detail)
	}
}

func queryHandler(query *service.QueryService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, ok := request.GetArguments()["sql"].(string)
		if !ok || sql == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}

		ctx = service.WithToolName(ctx, "query")
		results, err := query.Execute(ctx, sql)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "query")), nil
		}
		return marshalResult(results)
	}
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// verdict is the wire form of a validation result.
type verdict struct {
	Outcome string   `json:"outcome"`
	Code    string   `json:"code,omitempty"`
	Message string   `json:"message,omitempty"`
	Tables  []string `json:"tables,omitempty"`
}

func newVerdict(r domain.Result) verdict {
	v := verdict{
		Outcome: string(r.Outcome),
		Code:    string(r.Code),
		Message: r.Message,
	}
	for _, t := range r.Tables {
		v.Tables = append(v.Tables, t.String())
	}
	return v
}

func validateSQLHandler(query *service.QueryService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, ok := request.GetArguments()["sql"].(string)
		if !ok || sql == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}

		ctx = service.WithToolName(ctx, "validate_sql")
		return marshalResult(newVerdict(query.Inspect(ctx, sql)))
	}
}

func explainQueryHandler(query *service.QueryService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, ok := request.GetArguments()["sql"].(string)
		if !ok || sql == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}

		analyze, _ := request.GetArguments()["analyze"].(bool)

		prefix := "EXPLAIN "
		if analyze {
			prefix = "EXPLAIN ANALYZE "
		}

		ctx = service.WithToolName(ctx, "explain_query")
		results, err := query.Execute(ctx, prefix+sql)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "explain")), nil
		}
		return marshalResult(results)
	}
}
