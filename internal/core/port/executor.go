package port

import "context"

// QueryExecutor runs an already-validated SQL statement against the
// database and returns the result rows as column-name -> value maps.
type QueryExecutor interface {
	Execute(ctx context.Context, sql string) ([]map[string]any, error)
}
