package port

import "github.com/palisade-db/palisade/internal/core/domain"

// QueryValidator gates SQL statements before execution. The returned
// Result carries the verdict, the violation code on rejection, and the
// referenced tables for audit logging either way.
type QueryValidator interface {
	Validate(sql string) domain.Result
}
