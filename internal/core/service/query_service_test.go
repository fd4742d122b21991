package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/palisade-db/palisade/internal/audit"
	"github.com/palisade-db/palisade/internal/core/domain"
	"github.com/palisade-db/palisade/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- mock QueryExecutor ---

type mockExecutor struct {
	executeCalled bool
	lastSQL       string
	result        []map[string]any
	err           error
}

func (m *mockExecutor) Execute(_ context.Context, sql string) ([]map[string]any, error) {
	m.executeCalled = true
	m.lastSQL = sql
	return m.result, m.err
}

// --- recording auditor ---

type recordingAuditor struct {
	entries []port.AuditEntry
}

func (r *recordingAuditor) Record(_ context.Context, entry port.AuditEntry) {
	r.entries = append(r.entries, entry)
}

func (r *recordingAuditor) Close() error { return nil }

func newService(exec *mockExecutor, auditor port.QueryAuditor, masks map[string]domain.MaskType) *QueryService {
	if auditor == nil {
		auditor = audit.NoopAuditor{}
	}
	return NewQueryService(domain.NewValidator(nil), exec, auditor, testLogger(), masks, nil, nil)
}

// --- tests ---

func TestQueryService_ValidSelect(t *testing.T) {
	exec := &mockExecutor{
		result: []map[string]any{{"id": 1, "name": "alice"}},
	}
	svc := newService(exec, nil, nil)

	rows, err := svc.Execute(context.Background(), "SELECT id, name FROM users")
	require.NoError(t, err)
	assert.True(t, exec.executeCalled)
	assert.Equal(t, "SELECT id, name FROM users", exec.lastSQL)
	require.Len(t, rows, 1)
	assert.Equal(t, "alice", rows[0]["name"])
}

func TestQueryService_RejectsInsert(t *testing.T) {
	exec := &mockExecutor{}
	svc := newService(exec, nil, nil)

	_, err := svc.Execute(context.Background(), "INSERT INTO users (name) VALUES ('bob')")
	require.Error(t, err)
	assert.False(t, exec.executeCalled, "executor should not be called for rejected queries")

	var vErr *domain.ViolationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, domain.CodeForbiddenStatementKind, vErr.Code)
}

func TestQueryService_RejectsDrop(t *testing.T) {
	exec := &mockExecutor{}
	svc := newService(exec, nil, nil)

	_, err := svc.Execute(context.Background(), "DROP TABLE users")
	require.Error(t, err)
	assert.False(t, exec.executeCalled)
}

func TestQueryService_RejectsMultiStatement(t *testing.T) {
	exec := &mockExecutor{}
	svc := newService(exec, nil, nil)

	_, err := svc.Execute(context.Background(), "SELECT 1; SELECT 2")
	require.Error(t, err)
	assert.False(t, exec.executeCalled)

	var vErr *domain.ViolationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, domain.CodeMultiStatement, vErr.Code)
}

func TestQueryService_RejectsSystemCatalog(t *testing.T) {
	exec := &mockExecutor{}
	svc := newService(exec, nil, nil)

	_, err := svc.Execute(context.Background(), "SELECT * FROM pg_catalog.pg_tables")
	require.Error(t, err)
	assert.False(t, exec.executeCalled)
}

func TestQueryService_AllowsExplain(t *testing.T) {
	exec := &mockExecutor{
		result: []map[string]any{{"QUERY PLAN": "Seq Scan"}},
	}
	svc := newService(exec, nil, nil)

	rows, err := svc.Execute(context.Background(), "EXPLAIN SELECT 1")
	require.NoError(t, err)
	assert.True(t, exec.executeCalled)
	require.Len(t, rows, 1)
}

func TestQueryService_ExecutorError(t *testing.T) {
	exec := &mockExecutor{err: fmt.Errorf("connection refused")}
	svc := newService(exec, nil, nil)

	_, err := svc.Execute(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestQueryService_EmptyQuery(t *testing.T) {
	exec := &mockExecutor{}
	svc := newService(exec, nil, nil)

	_, err := svc.Execute(context.Background(), "")
	require.Error(t, err)
	assert.False(t, exec.executeCalled)
}

func TestQueryService_WithMasks(t *testing.T) {
	exec := &mockExecutor{
		result: []map[string]any{
			{"id": 1, "email": "alice@example.com", "name": "Alice"},
			{"id": 2, "email": "bob@example.com", "name": "Bob"},
		},
	}
	masks := map[string]domain.MaskType{"email": domain.MaskRedact}
	svc := newService(exec, nil, masks)

	rows, err := svc.Execute(context.Background(), "SELECT id, email, name FROM users")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "***", rows[0]["email"])
	assert.Equal(t, "***", rows[1]["email"])
	assert.Equal(t, "Alice", rows[0]["name"])
}

func TestQueryService_MasksFollowAliases(t *testing.T) {
	exec := &mockExecutor{
		result: []map[string]any{
			{"id": 1, "contact": "alice@example.com"},
		},
	}
	masks := map[string]domain.MaskType{"email": domain.MaskRedact}
	svc := newService(exec, nil, masks)

	rows, err := svc.Execute(context.Background(), "SELECT id, email AS contact FROM users")
	require.NoError(t, err)
	assert.Equal(t, "***", rows[0]["contact"])
}

func TestQueryService_NoMasks(t *testing.T) {
	exec := &mockExecutor{
		result: []map[string]any{
			{"id": 1, "email": "alice@example.com"},
		},
	}
	svc := newService(exec, nil, nil)

	rows, err := svc.Execute(context.Background(), "SELECT id, email FROM users")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", rows[0]["email"])
}

func TestQueryService_AuditsAcceptedQuery(t *testing.T) {
	exec := &mockExecutor{result: []map[string]any{{"id": 1}}}
	auditor := &recordingAuditor{}
	svc := newService(exec, auditor, nil)

	ctx := WithToolName(context.Background(), "query")
	_, err := svc.Execute(ctx, "SELECT id FROM users")
	require.NoError(t, err)

	require.Len(t, auditor.entries, 1)
	entry := auditor.entries[0]
	assert.Equal(t, "query", entry.Tool)
	assert.Equal(t, domain.Accepted, entry.Outcome)
	assert.Equal(t, []domain.TableRef{{Name: "users"}}, entry.Tables)
	assert.Equal(t, 1, entry.RowsReturned)
	assert.NoError(t, entry.Err)
}

func TestQueryService_AuditsRejectedQuery(t *testing.T) {
	exec := &mockExecutor{}
	auditor := &recordingAuditor{}
	svc := newService(exec, auditor, nil)

	_, err := svc.Execute(context.Background(), "DELETE FROM users")
	require.Error(t, err)

	require.Len(t, auditor.entries, 1)
	entry := auditor.entries[0]
	assert.Equal(t, domain.Rejected, entry.Outcome)
	assert.Equal(t, domain.CodeForbiddenStatementKind, entry.ViolationCode)
	assert.Equal(t, []domain.TableRef{{Name: "users"}}, entry.Tables)
	assert.Error(t, entry.Err)
}

func TestQueryService_Inspect(t *testing.T) {
	exec := &mockExecutor{}
	auditor := &recordingAuditor{}
	svc := newService(exec, auditor, nil)

	verdict := svc.Inspect(context.Background(), "SELECT id FROM users")
	assert.True(t, verdict.Accepted())
	assert.False(t, exec.executeCalled, "Inspect must never execute")

	verdict = svc.Inspect(context.Background(), "DROP TABLE users")
	assert.Equal(t, domain.Rejected, verdict.Outcome)
	assert.Equal(t, domain.CodeForbiddenStatementKind, verdict.Code)
	assert.False(t, exec.executeCalled)

	assert.Len(t, auditor.entries, 2)
}
