package domain

import "strings"

// Validator is the safety gate between generated SQL and a live
// connection. It is a pure function of the statement text and the policy
// snapshot loaded at call time: no I/O, no shared mutable state, safe for
// concurrent use from any number of goroutines.
type Validator struct {
	policies *Store
}

// NewValidator creates a Validator reading policy snapshots from store.
func NewValidator(store *Store) *Validator {
	if store == nil {
		store = NewStore(nil)
	}
	return &Validator{policies: store}
}

// Validate runs the full pipeline against the currently active policy.
func (v *Validator) Validate(sql string) Result {
	return ValidateWithPolicy(sql, v.policies.Load())
}

// ValidateWithPolicy runs the pipeline against an explicit policy
// snapshot. Stages run in fixed order — preprocess, parse, statement
// count, statement kinds, keyword backstop, system object guard, table
// and column access — and the first failing stage decides the verdict.
// Rejected results still carry every referenced table the parser managed
// to extract, so callers can audit-log denied attempts.
func ValidateWithPolicy(sql string, pol *Policy) Result {
	if pol == nil {
		pol = DefaultPolicy()
	}

	normalized, err := StripComments(sql)
	if err != nil {
		return reject(CodeSyntaxError, nil, "%v", err)
	}
	if strings.TrimSpace(normalized) == "" {
		return reject(CodeSyntaxError, nil, "empty statement")
	}

	stmts, err := parseStatements(normalized)
	if err != nil {
		return reject(CodeSyntaxError, nil, "%v", err)
	}
	if len(stmts) == 0 {
		return reject(CodeSyntaxError, nil, "empty statement")
	}

	// Best-effort table set across all statements, so even a
	// multi-statement rejection reports everything it touched.
	var tables []TableRef
	seen := make(map[string]bool)
	for _, st := range stmts {
		for _, t := range st.Tables {
			if !seen[t.key()] {
				seen[t.key()] = true
				tables = append(tables, t)
			}
		}
	}

	if res, ok := checkStatementCount(stmts, tables); !ok {
		return res
	}
	st := stmts[0]

	if res, ok := checkKinds(st, pol, tables); !ok {
		return res
	}
	if res, ok := checkKeywords(normalized, pol, tables); !ok {
		return res
	}
	if res, ok := checkSystemObjects(tables, pol); !ok {
		return res
	}
	if res, ok := checkTableAccess(tables, pol); !ok {
		return res
	}
	if res, ok := checkColumnAccess(st, pol, tables); !ok {
		return res
	}

	return accept(tables)
}
