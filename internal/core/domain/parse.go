package domain

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// TableRef is a table reference as written in the statement, with the
// schema qualifier when one was given.
type TableRef struct {
	Schema string
	Name   string
}

func (t TableRef) String() string {
	if t.Schema != "" {
		return t.Schema + "." + t.Name
	}
	return t.Name
}

// key is the case-folded identity used for dedup and policy lookups.
func (t TableRef) key() string {
	return strings.ToLower(t.String())
}

// Statement is one node of the classified statement tree. Children are
// nested statements: CTE bodies, subqueries, and set-operation branches.
// Reference analysis (tables, columns, wildcards) is accumulated on the
// top-level statement for the whole subtree.
type Statement struct {
	Kind     StatementKind
	Location string // "" for top-level, otherwise e.g. `CTE "x"` or "subquery"
	Children []*Statement

	Tables    []TableRef
	columns   map[TableRef]map[string]bool // referenced column names per table
	loose     []looseColumn
	wildcards []wildcard
}

// looseColumn is an unqualified column reference that could not be pinned
// to a single table (multi-table scope). candidates are the tables it may
// belong to; the access-control engine treats it conservatively.
type looseColumn struct {
	name       string
	candidates []TableRef
}

// wildcard is a star selection and the set of tables it may expand over.
type wildcard struct {
	tables []TableRef
}

// analysis accumulates reference data while walking one top-level tree.
type analysis struct {
	tables    []TableRef
	tableSeen map[string]bool
	columns   map[TableRef]map[string]bool
	loose     []looseColumn
	wildcards []wildcard
}

func newAnalysis() *analysis {
	return &analysis{
		tableSeen: make(map[string]bool),
		columns:   make(map[TableRef]map[string]bool),
	}
}

func (a *analysis) addTable(t TableRef) {
	if a.tableSeen[t.key()] {
		return
	}
	a.tableSeen[t.key()] = true
	a.tables = append(a.tables, t)
}

func (a *analysis) addColumn(t TableRef, col string) {
	if a.columns[t] == nil {
		a.columns[t] = make(map[string]bool)
	}
	a.columns[t][strings.ToLower(col)] = true
}

// scope tracks what names are visible in one query block. Real tables
// resolve column references; derived names (CTEs, subquery aliases, set
// returning functions) do not, because their columns are computed.
type scope struct {
	parent  *scope
	byAlias map[string]TableRef
	tables  []TableRef
	derived map[string]bool
}

func newScope(parent *scope) *scope {
	return &scope{
		parent:  parent,
		byAlias: make(map[string]TableRef),
		derived: make(map[string]bool),
	}
}

func (s *scope) addTable(t TableRef, alias string) {
	name := alias
	if name == "" {
		name = t.Name
	}
	s.byAlias[strings.ToLower(name)] = t
	s.tables = append(s.tables, t)
}

func (s *scope) addDerived(name string) {
	if name != "" {
		s.derived[strings.ToLower(name)] = true
	}
}

// resolve walks the scope chain for a qualifier. The bool results are
// (found as real table, found as derived relation).
func (s *scope) resolve(name string) (TableRef, bool, bool) {
	key := strings.ToLower(name)
	for sc := s; sc != nil; sc = sc.parent {
		if sc.derived[key] {
			return TableRef{}, false, true
		}
		if t, ok := sc.byAlias[key]; ok {
			return t, true, false
		}
	}
	return TableRef{}, false, false
}

// parseStatements parses normalized SQL into the classified statement
// list. A trailing semicolon does not produce an extra statement; the
// grammar simply ignores it.
func parseStatements(sql string) ([]*Statement, error) {
	tree, err := pg_query.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("parsing SQL: %w", err)
	}

	stmts := make([]*Statement, 0, len(tree.Stmts))
	for _, raw := range tree.Stmts {
		if raw.Stmt == nil {
			continue
		}
		a := newAnalysis()
		st := buildStatement(raw.Stmt, "", a, nil)
		st.Tables = a.tables
		st.columns = a.columns
		st.loose = a.loose
		st.wildcards = a.wildcards
		stmts = append(stmts, st)
	}
	return stmts, nil
}

// buildStatement classifies node and recursively builds its nested
// statement blocks, recording table and column references into a.
func buildStatement(node *pg_query.Node, loc string, a *analysis, outer *scope) *Statement {
	st := &Statement{Kind: classifyNode(node), Location: loc}

	switch n := node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		st.Children = buildSelect(n.SelectStmt, a, outer)

	case *pg_query.Node_InsertStmt:
		ins := n.InsertStmt
		sc := newScope(outer)
		collectCTEs(ins.WithClause, st, a, sc)
		if ins.Relation != nil {
			addRangeVar(ins.Relation, a, sc)
		}
		if ins.SelectStmt != nil {
			st.Children = append(st.Children, buildStatement(ins.SelectStmt, "subquery", a, sc))
		}
		collectExprList(ins.ReturningList, st, a, sc)

	case *pg_query.Node_UpdateStmt:
		upd := n.UpdateStmt
		sc := newScope(outer)
		collectCTEs(upd.WithClause, st, a, sc)
		if upd.Relation != nil {
			addRangeVar(upd.Relation, a, sc)
		}
		collectFromItems(upd.FromClause, st, a, sc)
		collectExprList(upd.TargetList, st, a, sc)
		collectExpr(upd.WhereClause, st, a, sc)
		collectExprList(upd.ReturningList, st, a, sc)

	case *pg_query.Node_DeleteStmt:
		del := n.DeleteStmt
		sc := newScope(outer)
		collectCTEs(del.WithClause, st, a, sc)
		if del.Relation != nil {
			addRangeVar(del.Relation, a, sc)
		}
		collectFromItems(del.UsingClause, st, a, sc)
		collectExpr(del.WhereClause, st, a, sc)
		collectExprList(del.ReturningList, st, a, sc)

	case *pg_query.Node_MergeStmt:
		mrg := n.MergeStmt
		sc := newScope(outer)
		collectCTEs(mrg.WithClause, st, a, sc)
		if mrg.Relation != nil {
			addRangeVar(mrg.Relation, a, sc)
		}
		if mrg.SourceRelation != nil {
			collectFromItem(mrg.SourceRelation, st, a, sc)
		}
		collectExpr(mrg.JoinCondition, st, a, sc)

	case *pg_query.Node_ExplainStmt:
		// EXPLAIN is transparent: the wrapped statement is analysed in
		// place and determines the kind (see classifyNode).
		if q := n.ExplainStmt.Query; q != nil {
			inner := buildStatement(q, loc, a, outer)
			st.Children = inner.Children
		}

	case *pg_query.Node_CopyStmt:
		cp := n.CopyStmt
		sc := newScope(outer)
		if cp.Relation != nil {
			addRangeVar(cp.Relation, a, sc)
		}
		if cp.Query != nil {
			st.Children = append(st.Children, buildStatement(cp.Query, "subquery", a, sc))
		}

	case *pg_query.Node_TruncateStmt:
		sc := newScope(outer)
		for _, rel := range n.TruncateStmt.Relations {
			if rv, ok := rel.Node.(*pg_query.Node_RangeVar); ok {
				addRangeVar(rv.RangeVar, a, sc)
			}
		}
	}

	return st
}

// buildSelect walks one SELECT block: CTEs first (their names shadow real
// tables for the whole statement), then set-operation branches or the
// FROM/target/filter clauses of a plain block.
func buildSelect(sel *pg_query.SelectStmt, a *analysis, outer *scope) []*Statement {
	sc := newScope(outer)
	st := &Statement{}
	collectCTEs(sel.WithClause, st, a, sc)

	if sel.Op != pg_query.SetOperation_SETOP_NONE {
		for _, branch := range []*pg_query.SelectStmt{sel.Larg, sel.Rarg} {
			if branch == nil {
				continue
			}
			child := &Statement{Kind: KindQuery, Location: "set operation branch"}
			child.Children = buildSelect(branch, a, sc)
			st.Children = append(st.Children, child)
		}
		return st.Children
	}

	collectFromItems(sel.FromClause, st, a, sc)
	collectExprList(sel.TargetList, st, a, sc)
	collectExpr(sel.WhereClause, st, a, sc)
	collectExprList(sel.GroupClause, st, a, sc)
	collectExpr(sel.HavingClause, st, a, sc)
	collectExprList(sel.SortClause, st, a, sc)
	collectExprList(sel.WindowClause, st, a, sc)
	for _, row := range sel.ValuesLists {
		collectExpr(row, st, a, sc)
	}

	return st.Children
}

// collectCTEs registers every CTE name as a derived relation and builds a
// child statement for each body, labelled with the CTE name so rejection
// messages can point at it.
func collectCTEs(with *pg_query.WithClause, st *Statement, a *analysis, sc *scope) {
	if with == nil {
		return
	}
	// Names first: a recursive CTE may reference itself, and later CTEs
	// may reference earlier ones.
	for _, cte := range with.Ctes {
		if c, ok := cte.Node.(*pg_query.Node_CommonTableExpr); ok {
			sc.addDerived(c.CommonTableExpr.Ctename)
		}
	}
	for _, cte := range with.Ctes {
		c, ok := cte.Node.(*pg_query.Node_CommonTableExpr)
		if !ok || c.CommonTableExpr.Ctequery == nil {
			continue
		}
		loc := fmt.Sprintf("CTE %q", c.CommonTableExpr.Ctename)
		st.Children = append(st.Children, buildStatement(c.CommonTableExpr.Ctequery, loc, a, sc))
	}
}

func collectFromItems(items []*pg_query.Node, st *Statement, a *analysis, sc *scope) {
	for _, item := range items {
		collectFromItem(item, st, a, sc)
	}
}

func collectFromItem(item *pg_query.Node, st *Statement, a *analysis, sc *scope) {
	if item == nil {
		return
	}
	switch n := item.Node.(type) {
	case *pg_query.Node_RangeVar:
		addRangeVar(n.RangeVar, a, sc)

	case *pg_query.Node_JoinExpr:
		collectFromItem(n.JoinExpr.Larg, st, a, sc)
		collectFromItem(n.JoinExpr.Rarg, st, a, sc)
		collectExpr(n.JoinExpr.Quals, st, a, sc)

	case *pg_query.Node_RangeSubselect:
		if n.RangeSubselect.Alias != nil {
			sc.addDerived(n.RangeSubselect.Alias.Aliasname)
		}
		if n.RangeSubselect.Subquery != nil {
			st.Children = append(st.Children, buildStatement(n.RangeSubselect.Subquery, "subquery", a, sc))
		}

	case *pg_query.Node_RangeFunction:
		if n.RangeFunction.Alias != nil {
			sc.addDerived(n.RangeFunction.Alias.Aliasname)
		}
		for _, fn := range n.RangeFunction.Functions {
			collectExpr(fn, st, a, sc)
		}
	}
}

// addRangeVar records a table reference unless the name resolves to a CTE
// or other derived relation in the enclosing scope chain.
func addRangeVar(rv *pg_query.RangeVar, a *analysis, sc *scope) {
	if rv == nil || rv.Relname == "" {
		return
	}
	if rv.Schemaname == "" {
		if _, _, derived := sc.resolve(rv.Relname); derived {
			return
		}
	}
	t := TableRef{Schema: rv.Schemaname, Name: rv.Relname}
	alias := ""
	if rv.Alias != nil {
		alias = rv.Alias.Aliasname
	}
	sc.addTable(t, alias)
	a.addTable(t)
}

func collectExprList(exprs []*pg_query.Node, st *Statement, a *analysis, sc *scope) {
	for _, e := range exprs {
		collectExpr(e, st, a, sc)
	}
}

// collectExpr walks an expression tree recording column references and
// descending into subquery expressions as child statements.
func collectExpr(expr *pg_query.Node, st *Statement, a *analysis, sc *scope) {
	if expr == nil {
		return
	}
	switch n := expr.Node.(type) {
	case *pg_query.Node_ResTarget:
		collectExpr(n.ResTarget.Val, st, a, sc)
	case *pg_query.Node_ColumnRef:
		recordColumnRef(n.ColumnRef, a, sc)
	case *pg_query.Node_SubLink:
		collectExpr(n.SubLink.Testexpr, st, a, sc)
		if n.SubLink.Subselect != nil {
			st.Children = append(st.Children, buildStatement(n.SubLink.Subselect, "subquery", a, sc))
		}
	case *pg_query.Node_AExpr:
		collectExpr(n.AExpr.Lexpr, st, a, sc)
		collectExpr(n.AExpr.Rexpr, st, a, sc)
	case *pg_query.Node_BoolExpr:
		collectExprList(n.BoolExpr.Args, st, a, sc)
	case *pg_query.Node_FuncCall:
		collectExprList(n.FuncCall.Args, st, a, sc)
		if n.FuncCall.AggFilter != nil {
			collectExpr(n.FuncCall.AggFilter, st, a, sc)
		}
	case *pg_query.Node_TypeCast:
		collectExpr(n.TypeCast.Arg, st, a, sc)
	case *pg_query.Node_CaseExpr:
		collectExpr(n.CaseExpr.Arg, st, a, sc)
		collectExprList(n.CaseExpr.Args, st, a, sc)
		collectExpr(n.CaseExpr.Defresult, st, a, sc)
	case *pg_query.Node_CaseWhen:
		collectExpr(n.CaseWhen.Expr, st, a, sc)
		collectExpr(n.CaseWhen.Result, st, a, sc)
	case *pg_query.Node_CoalesceExpr:
		collectExprList(n.CoalesceExpr.Args, st, a, sc)
	case *pg_query.Node_MinMaxExpr:
		collectExprList(n.MinMaxExpr.Args, st, a, sc)
	case *pg_query.Node_NullTest:
		collectExpr(n.NullTest.Arg, st, a, sc)
	case *pg_query.Node_BooleanTest:
		collectExpr(n.BooleanTest.Arg, st, a, sc)
	case *pg_query.Node_RowExpr:
		collectExprList(n.RowExpr.Args, st, a, sc)
	case *pg_query.Node_AArrayExpr:
		collectExprList(n.AArrayExpr.Elements, st, a, sc)
	case *pg_query.Node_AIndirection:
		collectExpr(n.AIndirection.Arg, st, a, sc)
	case *pg_query.Node_SortBy:
		collectExpr(n.SortBy.Node, st, a, sc)
	case *pg_query.Node_WindowDef:
		collectExprList(n.WindowDef.PartitionClause, st, a, sc)
		collectExprList(n.WindowDef.OrderClause, st, a, sc)
	case *pg_query.Node_GroupingSet:
		collectExprList(n.GroupingSet.Content, st, a, sc)
	case *pg_query.Node_NamedArgExpr:
		collectExpr(n.NamedArgExpr.Arg, st, a, sc)
	case *pg_query.Node_List:
		collectExprList(n.List.Items, st, a, sc)
	}
}

// recordColumnRef resolves one column reference against the scope chain.
// Qualified references resolve through table aliases; unqualified ones
// are pinned to the block's only table when there is exactly one, and
// otherwise recorded as loose with every candidate table. Stars become
// wildcard records over the tables they may expand.
func recordColumnRef(cr *pg_query.ColumnRef, a *analysis, sc *scope) {
	fields := cr.Fields
	if len(fields) == 0 {
		return
	}

	star := false
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		switch fn := f.Node.(type) {
		case *pg_query.Node_String_:
			parts = append(parts, fn.String_.Sval)
		case *pg_query.Node_AStar:
			star = true
		}
	}

	if star {
		switch len(parts) {
		case 0: // bare *
			if len(sc.tables) > 0 {
				a.wildcards = append(a.wildcards, wildcard{tables: append([]TableRef(nil), sc.tables...)})
			}
		default: // t.* or schema.t.*
			if t, real, _ := sc.resolve(parts[len(parts)-1]); real {
				a.wildcards = append(a.wildcards, wildcard{tables: []TableRef{t}})
			}
		}
		return
	}

	col := parts[len(parts)-1]
	switch {
	case len(parts) >= 2:
		if t, real, _ := sc.resolve(parts[len(parts)-2]); real {
			a.addColumn(t, col)
		}
	case len(sc.tables) == 1 && len(sc.derived) == 0:
		a.addColumn(sc.tables[0], col)
	case len(sc.tables) >= 1:
		// The column may come from any real table in scope, or from a
		// derived relation shadowing one. Either way it could resolve
		// into a real table, so record every real table as a candidate.
		a.loose = append(a.loose, looseColumn{
			name:       strings.ToLower(col),
			candidates: append([]TableRef(nil), sc.tables...),
		})
	}
}
