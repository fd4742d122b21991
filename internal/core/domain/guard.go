package domain

import "strings"

// checkSystemObjects denies any reference into a system namespace,
// regardless of statement kind — catalog tables can leak credentials and
// schema internals even through a plain read. Matching is a
// case-insensitive prefix match on the schema qualifier; an unqualified
// name is matched directly, since pg_tables and friends resolve into
// pg_catalog through the search path.
func checkSystemObjects(tables []TableRef, pol *Policy) (Result, bool) {
	for _, t := range tables {
		target := strings.ToLower(t.Schema)
		if target == "" {
			target = strings.ToLower(t.Name)
		}
		for _, prefix := range pol.SystemPrefixes {
			if strings.HasPrefix(target, strings.ToLower(prefix)) {
				return reject(CodeSystemObjectAccess, tables,
					"access to system object %q is not allowed", t.String()), false
			}
		}
	}
	return Result{}, true
}

// checkTableAccess applies the allow/deny table policy. A non-empty
// allow-list means deny by default; only then is the deny-list ignored.
func checkTableAccess(tables []TableRef, pol *Policy) (Result, bool) {
	for _, t := range tables {
		if !pol.tableAllowed(t) {
			return reject(CodeTableAccessDenied, tables,
				"access to table %q is not allowed", t.String()), false
		}
	}
	return Result{}, true
}

// checkColumnAccess rejects any resolvable reference to a blocked column,
// and conservatively rejects selections it cannot resolve — a wildcard
// (or an ambiguous unqualified column) over a table with blocked columns
// could leak them, so uncertainty fails closed.
func checkColumnAccess(st *Statement, pol *Policy, tables []TableRef) (Result, bool) {
	if len(pol.BlockedColumns) == 0 {
		return Result{}, true
	}

	for t, cols := range st.columns {
		blocked := pol.blockedColumnsFor(t)
		if len(blocked) == 0 {
			continue
		}
		for col := range cols {
			if blocked[col] {
				return reject(CodeColumnAccessDenied, tables,
					"access to column %q of table %q is not allowed", col, t.String()), false
			}
		}
	}

	for _, lc := range st.loose {
		for _, t := range lc.candidates {
			if pol.blockedColumnsFor(t)[lc.name] {
				return reject(CodeColumnAccessDenied, tables,
					"column %q may resolve to restricted table %q", lc.name, t.String()), false
			}
		}
	}

	for _, w := range st.wildcards {
		for _, t := range w.tables {
			if len(pol.blockedColumnsFor(t)) > 0 {
				return reject(CodeColumnAccessDenied, tables,
					"wildcard selection over restricted table %q", t.String()), false
			}
		}
	}

	return Result{}, true
}
