package postgres_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palisade-db/palisade/internal/adapter/postgres"
	"github.com/palisade-db/palisade/internal/core/domain"
	"github.com/palisade-db/palisade/internal/core/port"
)

func TestExplorer_ListSchemas(t *testing.T) {
	pool := setupTestDB(t)
	explorer := postgres.NewExplorer(pool, nil)

	schemas, err := explorer.ListSchemas(context.Background())
	require.NoError(t, err)

	names := make([]string, len(schemas))
	for i, s := range schemas {
		names[i] = s.Name
	}
	assert.Contains(t, names, "public")
	assert.NotContains(t, names, "pg_catalog")
	assert.NotContains(t, names, "information_schema")
}

func TestExplorer_ListTables(t *testing.T) {
	pool := setupTestDB(t)
	explorer := postgres.NewExplorer(pool, []string{"public"})

	tables, err := explorer.ListTables(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 2)

	byName := make(map[string]port.TableInfo)
	for _, tbl := range tables {
		byName[tbl.Name] = tbl
	}

	customers, ok := byName["customers"]
	require.True(t, ok)
	assert.Equal(t, "public", customers.Schema)
	assert.Equal(t, "table", customers.Type)
	assert.Equal(t, 5, customers.ColumnCount)
	assert.True(t, customers.HasIndexes)
	assert.Equal(t, "Registered customers", customers.Comment)
}

func TestExplorer_DescribeTable(t *testing.T) {
	pool := setupTestDB(t)
	explorer := postgres.NewExplorer(pool, nil)

	detail, err := explorer.DescribeTable(context.Background(), "public", "customers")
	require.NoError(t, err)

	assert.Equal(t, "public", detail.Schema)
	assert.Equal(t, "customers", detail.Name)
	assert.Equal(t, "Registered customers", detail.Comment)
	require.Len(t, detail.Columns, 5)

	byName := make(map[string]port.ColumnInfo)
	for _, col := range detail.Columns {
		byName[col.Name] = col
	}
	assert.True(t, byName["id"].IsPrimaryKey)
	assert.False(t, byName["email"].IsPrimaryKey)
	assert.True(t, byName["email"].IsNullable)
	assert.Equal(t, "Unique contact address", byName["email"].Comment)
	assert.Contains(t, byName["tier"].DefaultValue, "free")

	// tier CHECK constraint shows up.
	require.NotEmpty(t, detail.CheckConstraints)
	assert.Contains(t, detail.CheckConstraints[0].Expression, "tier")
}

func TestExplorer_DescribeTable_SchemaInferred(t *testing.T) {
	pool := setupTestDB(t)
	explorer := postgres.NewExplorer(pool, nil)

	detail, err := explorer.DescribeTable(context.Background(), "", "orders")
	require.NoError(t, err)

	assert.Equal(t, "public", detail.Schema)
	require.Len(t, detail.ForeignKeys, 1)
	assert.Equal(t, "customer_id", detail.ForeignKeys[0].ColumnName)
	assert.Equal(t, "customers", detail.ForeignKeys[0].ReferencedTable)

	var idxNames []string
	for _, idx := range detail.Indexes {
		idxNames = append(idxNames, idx.Name)
	}
	assert.Contains(t, idxNames, "idx_orders_customer")
}

func TestExplorer_DescribeTable_NotFound(t *testing.T) {
	pool := setupTestDB(t)
	explorer := postgres.NewExplorer(pool, nil)

	_, err := explorer.DescribeTable(context.Background(), "", "no_such_table")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestExplorer_Discover(t *testing.T) {
	pool := setupTestDB(t)
	explorer := postgres.NewExplorer(pool, []string{"public"})

	result, err := explorer.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Schemas, 1)
	assert.Equal(t, "public", result.Schemas[0].Name)
	assert.Len(t, result.Schemas[0].Tables, 2)
}
