package domain

import (
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// kindKeywords maps each statement kind to the keywords that introduce
// it. The scanner's backstop only hunts keywords for kinds the policy
// disallows, so an allowed mutation policy does not trip over DELETE
// inside a data-modifying CTE.
var kindKeywords = map[StatementKind][]string{
	KindMutation:       {"INSERT", "UPDATE", "DELETE", "MERGE", "TRUNCATE"},
	KindDefinition:     {"CREATE", "DROP", "ALTER"},
	KindAdministrative: {"GRANT", "REVOKE"},
	KindProcedural:     {"EXECUTE", "CALL", "DO"},
}

// checkStatementCount enforces the single-statement rule. A trailing
// delimiter with nothing after it never counts as a second statement —
// the grammar already collapsed it.
func checkStatementCount(stmts []*Statement, tables []TableRef) (Result, bool) {
	if len(stmts) > 1 {
		return reject(CodeMultiStatement, tables,
			"%d statements found; only a single statement is allowed", len(stmts)), false
	}
	return Result{}, true
}

// checkKinds verifies every node of the tree — top-level and nested —
// against the policy's allowed kinds. Nested rejections name their
// location, so a data-modifying CTE is called out as such even though
// the outer statement looks like a plain query.
func checkKinds(st *Statement, pol *Policy, tables []TableRef) (Result, bool) {
	if !pol.kindAllowed(st.Kind) {
		if st.Location == "" {
			return reject(CodeForbiddenStatementKind, tables,
				"%s statement is not allowed (allowed kinds: %s)", st.Kind, pol.AllowedKindNames()), false
		}
		return reject(CodeForbiddenStatementKind, tables,
			"%s statement inside %s is not allowed", st.Kind, st.Location), false
	}
	for _, child := range st.Children {
		if res, ok := checkKinds(child, pol, tables); !ok {
			return res, false
		}
	}
	return Result{}, true
}

// checkKeywords is the defense-in-depth backstop: it lexes the normalized
// text and rejects if a keyword belonging to a disallowed kind appears as
// an actual keyword token. String constants and quoted identifiers lex as
// non-keyword tokens, so they can never trip this check. Structural
// checks remain authoritative; this only closes residual parser gaps.
func checkKeywords(normalized string, pol *Policy, tables []TableRef) (Result, bool) {
	forbidden := make(map[string]bool)
	for kind, kws := range kindKeywords {
		if pol.kindAllowed(kind) {
			continue
		}
		for _, kw := range kws {
			forbidden[kw] = true
		}
	}
	if len(forbidden) == 0 {
		return Result{}, true
	}

	scanned, err := pg_query.Scan(normalized)
	if err != nil {
		// Parse succeeded but the lexer disagrees: fail closed.
		return reject(CodeSyntaxError, tables, "lexing SQL: %v", err), false
	}

	for _, tok := range scanned.Tokens {
		if tok.KeywordKind == pg_query.KeywordKind_NO_KEYWORD {
			continue
		}
		word := strings.ToUpper(normalized[tok.Start:tok.End])
		if forbidden[word] {
			return reject(CodeForbiddenKeyword, tables, "forbidden keyword %s", word), false
		}
	}
	return Result{}, true
}
