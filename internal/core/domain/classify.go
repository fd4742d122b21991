package domain

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// classifyNode assigns a StatementKind from the node's grammar variant.
// The switch is over parser-produced types, so a new or exotic construct
// can only ever fall through to KindUnknown, which no policy allows.
func classifyNode(node *pg_query.Node) StatementKind {
	if node == nil {
		return KindUnknown
	}

	switch n := node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		// SELECT INTO creates a table and is a definition in disguise.
		if n.SelectStmt.IntoClause != nil {
			return KindDefinition
		}
		return KindQuery

	case *pg_query.Node_ExplainStmt:
		// EXPLAIN inherits the kind of the statement it wraps, so
		// EXPLAIN DELETE is still a mutation.
		return classifyNode(n.ExplainStmt.Query)

	case *pg_query.Node_InsertStmt,
		*pg_query.Node_UpdateStmt,
		*pg_query.Node_DeleteStmt,
		*pg_query.Node_MergeStmt,
		*pg_query.Node_TruncateStmt,
		*pg_query.Node_CopyStmt,
		*pg_query.Node_RefreshMatViewStmt:
		return KindMutation

	case *pg_query.Node_CreateStmt,
		*pg_query.Node_CreateTableAsStmt,
		*pg_query.Node_CreateSchemaStmt,
		*pg_query.Node_CreateSeqStmt,
		*pg_query.Node_AlterSeqStmt,
		*pg_query.Node_CreateExtensionStmt,
		*pg_query.Node_CreateFunctionStmt,
		*pg_query.Node_CreateTrigStmt,
		*pg_query.Node_CreateDomainStmt,
		*pg_query.Node_CompositeTypeStmt,
		*pg_query.Node_CreateEnumStmt,
		*pg_query.Node_CreatePolicyStmt,
		*pg_query.Node_ViewStmt,
		*pg_query.Node_IndexStmt,
		*pg_query.Node_RuleStmt,
		*pg_query.Node_DropStmt,
		*pg_query.Node_AlterTableStmt,
		*pg_query.Node_AlterDomainStmt,
		*pg_query.Node_RenameStmt,
		*pg_query.Node_CommentStmt,
		*pg_query.Node_CreatedbStmt,
		*pg_query.Node_DropdbStmt:
		return KindDefinition

	case *pg_query.Node_GrantStmt,
		*pg_query.Node_GrantRoleStmt,
		*pg_query.Node_AlterDefaultPrivilegesStmt,
		*pg_query.Node_CreateRoleStmt,
		*pg_query.Node_AlterRoleStmt,
		*pg_query.Node_AlterRoleSetStmt,
		*pg_query.Node_DropRoleStmt,
		*pg_query.Node_AlterOwnerStmt,
		*pg_query.Node_SecLabelStmt,
		*pg_query.Node_VariableSetStmt,
		*pg_query.Node_VariableShowStmt,
		*pg_query.Node_AlterSystemStmt,
		*pg_query.Node_AlterDatabaseStmt,
		*pg_query.Node_AlterDatabaseSetStmt,
		*pg_query.Node_TransactionStmt,
		*pg_query.Node_LockStmt,
		*pg_query.Node_VacuumStmt,
		*pg_query.Node_ClusterStmt,
		*pg_query.Node_ReindexStmt,
		*pg_query.Node_CheckPointStmt,
		*pg_query.Node_DiscardStmt,
		*pg_query.Node_ListenStmt,
		*pg_query.Node_UnlistenStmt,
		*pg_query.Node_NotifyStmt,
		*pg_query.Node_DeclareCursorStmt,
		*pg_query.Node_FetchStmt,
		*pg_query.Node_ClosePortalStmt:
		return KindAdministrative

	case *pg_query.Node_CallStmt,
		*pg_query.Node_DoStmt,
		*pg_query.Node_PrepareStmt,
		*pg_query.Node_ExecuteStmt,
		*pg_query.Node_DeallocateStmt:
		return KindProcedural
	}

	return KindUnknown
}
