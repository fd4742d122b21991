package domain

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// ExtractAliasMap parses a SELECT statement and returns original column
// name -> alias for every target that uses an AS clause. Only simple
// column references are considered (e.g. "Email" AS email, c."Email" AS
// email); expressions are skipped because they cannot match a mask key.
// Returns an empty map on parse error — by the time this runs the
// statement has already passed validation, so a parse failure here only
// means no aliases to resolve.
func ExtractAliasMap(sql string) map[string]string {
	aliases := make(map[string]string)

	tree, err := pg_query.Parse(sql)
	if err != nil || len(tree.Stmts) == 0 {
		return aliases
	}

	stmt := tree.Stmts[0].Stmt
	if stmt == nil {
		return aliases
	}

	sel, ok := stmt.Node.(*pg_query.Node_SelectStmt)
	if !ok {
		return aliases
	}

	for _, target := range sel.SelectStmt.TargetList {
		rt, ok := target.Node.(*pg_query.Node_ResTarget)
		if !ok || rt.ResTarget == nil || rt.ResTarget.Name == "" {
			continue
		}

		val := rt.ResTarget.Val
		if val == nil {
			continue
		}
		cr, ok := val.Node.(*pg_query.Node_ColumnRef)
		if !ok || cr.ColumnRef == nil || len(cr.ColumnRef.Fields) == 0 {
			continue
		}

		// The bare column name is the last field of the ColumnRef:
		// "Email" -> [Email], c."Email" -> [c, Email].
		last := cr.ColumnRef.Fields[len(cr.ColumnRef.Fields)-1]
		str, ok := last.Node.(*pg_query.Node_String_)
		if !ok || str.String_ == nil {
			continue
		}

		if col := str.String_.Sval; col != "" && col != rt.ResTarget.Name {
			aliases[col] = rt.ResTarget.Name
		}
	}

	return aliases
}
