package port

import (
	"context"

	"github.com/palisade-db/palisade/internal/core/domain"
)

// AuditEntry represents a single auditable query event. Rejected
// statements are audited too: Outcome and ViolationCode record the
// verdict, Tables the relations the statement referenced.
type AuditEntry struct {
	Tool          string
	SQL           string
	Outcome       domain.Outcome
	ViolationCode domain.ViolationCode
	Tables        []domain.TableRef
	RowsReturned  int
	DurationMS    int64
	Err           error
}

// QueryAuditor records query audit events.
type QueryAuditor interface {
	Record(ctx context.Context, entry AuditEntry)
	Close() error
}
