package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound marks lookups for database objects that do not exist, so
// adapters can distinguish "no such table" from infrastructure failures.
var ErrNotFound = errors.New("not found")

// Outcome is the validator's verdict on a SQL statement.
type Outcome string

const (
	Accepted Outcome = "accepted"
	Rejected Outcome = "rejected"
)

// ViolationCode identifies why a statement was rejected.
type ViolationCode string

const (
	// CodeSyntaxError — the text does not parse under the Postgres grammar.
	CodeSyntaxError ViolationCode = "syntax_error"
	// CodeMultiStatement — more than one top-level statement.
	CodeMultiStatement ViolationCode = "multi_statement"
	// CodeForbiddenStatementKind — a top-level or nested statement's kind
	// is not in the policy's allow-set.
	CodeForbiddenStatementKind ViolationCode = "forbidden_statement_kind"
	// CodeForbiddenKeyword — backstop keyword match outside of literals.
	CodeForbiddenKeyword ViolationCode = "forbidden_keyword"
	// CodeSystemObjectAccess — a referenced table lies in a denied namespace.
	CodeSystemObjectAccess ViolationCode = "system_object_access"
	// CodeTableAccessDenied — a referenced table fails the allow/deny check.
	CodeTableAccessDenied ViolationCode = "table_access_denied"
	// CodeColumnAccessDenied — a referenced or wildcard-implied column is blocked.
	CodeColumnAccessDenied ViolationCode = "column_access_denied"
)

// Result is the validator's structured verdict. Tables is populated on a
// best-effort basis whenever parsing succeeded, so callers can audit-log
// the touched tables even for rejected statements.
type Result struct {
	Outcome Outcome
	Code    ViolationCode // set only when Outcome == Rejected
	Message string
	Tables  []TableRef
}

// Accepted reports whether the statement may be executed.
func (r Result) Accepted() bool {
	return r.Outcome == Accepted
}

// Err returns nil for accepted results, or an error carrying the
// violation code and message for rejected ones.
func (r Result) Err() error {
	if r.Outcome == Accepted {
		return nil
	}
	return &ViolationError{Code: r.Code, Message: r.Message}
}

// ViolationError is the error form of a rejected Result.
type ViolationError struct {
	Code    ViolationCode
	Message string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func accept(tables []TableRef) Result {
	return Result{Outcome: Accepted, Tables: tables}
}

func reject(code ViolationCode, tables []TableRef, format string, args ...any) Result {
	return Result{
		Outcome: Rejected,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Tables:  tables,
	}
}
