package postgres_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palisade-db/palisade/internal/adapter/postgres"
)

func TestExecute_Explain(t *testing.T) {
	pool := setupTestDB(t)
	executor := postgres.NewExecutor(pool, true, 100, 10*time.Second)
	ctx := context.Background()

	results, err := executor.Execute(ctx, "EXPLAIN SELECT * FROM customers")
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestExecute_Select_RowLimit(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := pool.Exec(ctx, "INSERT INTO customers (name, email) VALUES ($1, $2)",
			"user", nil)
		require.NoError(t, err)
	}

	executor := postgres.NewExecutor(pool, true, 3, 10*time.Second)

	results, err := executor.Execute(ctx, "SELECT id, name FROM customers")
	require.NoError(t, err)
	assert.Len(t, results, 3, "should be limited to maxRows=3")
}

func TestExecute_WithQuery(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	_, err := pool.Exec(ctx, "INSERT INTO customers (name) VALUES ('a'), ('b')")
	require.NoError(t, err)

	executor := postgres.NewExecutor(pool, true, 1, 10*time.Second)

	// WITH queries run unwrapped; the limit is applied while reading.
	results, err := executor.Execute(ctx, "WITH c AS (SELECT name FROM customers) SELECT * FROM c")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestExecute_ReadOnlyRejectsWrites(t *testing.T) {
	pool := setupTestDB(t)
	executor := postgres.NewExecutor(pool, true, 100, 10*time.Second)

	_, err := executor.Execute(context.Background(),
		"INSERT INTO customers (name) VALUES ('x') RETURNING id")
	require.Error(t, err)
	assert.Contains(t, strings.ToLower(err.Error()), "read-only")
}

func TestExecute_ReadWriteMutation(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	executor := postgres.NewExecutor(pool, false, 100, 10*time.Second)

	results, err := executor.Execute(ctx,
		"INSERT INTO customers (name) VALUES ('x') RETURNING id, name")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "x", results[0]["name"])

	// The mutation must be committed, not rolled back.
	var count int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM customers WHERE name = 'x'").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestExecute_StatementTimeout(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	// Use a 1-second timeout; pg_sleep(30) should be cancelled by statement_timeout.
	executor := postgres.NewExecutor(pool, true, 100, 1*time.Second)

	_, err := executor.Execute(ctx, "SELECT pg_sleep(30)")
	require.Error(t, err)

	// PostgreSQL cancels with SQLSTATE 57014 (query_canceled), or the Go
	// context expires first ("context deadline exceeded" / "timeout").
	errMsg := strings.ToLower(err.Error())
	assert.True(t,
		strings.Contains(errMsg, "statement timeout") ||
			strings.Contains(errMsg, "cancel") ||
			strings.Contains(errMsg, "57014") ||
			strings.Contains(errMsg, "deadline exceeded") ||
			strings.Contains(errMsg, "timeout"),
		"expected timeout-related error, got: %s", err,
	)
}
