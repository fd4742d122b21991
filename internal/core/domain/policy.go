package domain

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
)

// StatementKind is the structural category of a SQL statement, determined
// by its leading clause — never by keyword presence elsewhere in the text.
type StatementKind string

const (
	KindQuery          StatementKind = "query"          // SELECT, VALUES, EXPLAIN <query>
	KindMutation       StatementKind = "mutation"       // INSERT, UPDATE, DELETE, MERGE, TRUNCATE, COPY
	KindDefinition     StatementKind = "definition"     // CREATE/ALTER/DROP of any object
	KindAdministrative StatementKind = "administrative" // GRANT, SET, VACUUM, transaction control, ...
	KindProcedural     StatementKind = "procedural"     // CALL, DO, PREPARE/EXECUTE
	KindUnknown        StatementKind = "unknown"        // anything the classifier does not recognise
)

// ParseStatementKind converts a config-supplied name into a StatementKind.
// KindUnknown is not accepted: it exists so unclassified constructs fail
// closed, not so operators can allow them.
func ParseStatementKind(s string) (StatementKind, error) {
	switch StatementKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindQuery:
		return KindQuery, nil
	case KindMutation:
		return KindMutation, nil
	case KindDefinition:
		return KindDefinition, nil
	case KindAdministrative:
		return KindAdministrative, nil
	case KindProcedural:
		return KindProcedural, nil
	}
	return "", fmt.Errorf("invalid statement kind %q: must be query, mutation, definition, administrative, or procedural", s)
}

// Policy is the validator's access-control input. A Policy is immutable
// after construction; hot reload replaces the whole snapshot through a
// Store rather than mutating fields in place.
type Policy struct {
	// AllowedKinds is the set of permitted statement kinds, applied to
	// top-level and nested statements alike.
	AllowedKinds map[StatementKind]bool

	// SystemPrefixes are namespace (schema) name prefixes that are always
	// denied, regardless of statement kind. Matched case-insensitively.
	SystemPrefixes []string

	// AllowedTables, when non-empty, is an allow-list: any table not in it
	// is denied. When empty, BlockedTables acts as a deny-list.
	AllowedTables map[string]bool

	// BlockedTables is consulted only when AllowedTables is empty.
	BlockedTables map[string]bool

	// BlockedColumns maps a table name to the set of column names that may
	// never be selected from it, regardless of table-level permission.
	BlockedColumns map[string]map[string]bool
}

// DefaultPolicy permits single read-only queries and denies the Postgres
// catalog namespaces, mirroring a fresh deployment with no overrides.
func DefaultPolicy() *Policy {
	return &Policy{
		AllowedKinds:   map[StatementKind]bool{KindQuery: true},
		SystemPrefixes: []string{"pg_", "information_schema"},
	}
}

// kindAllowed treats a nil AllowedKinds map as "query only" so a
// zero-value Policy still fails closed for everything else.
func (p *Policy) kindAllowed(kind StatementKind) bool {
	if len(p.AllowedKinds) == 0 {
		return kind == KindQuery
	}
	return p.AllowedKinds[kind]
}

// tableAllowed applies the deny-list first, then the allow-list (which,
// when non-empty, means deny by default). A table named in both sets is
// denied — the stricter set always wins. Both the qualified
// (schema.table) and bare name forms are consulted.
func (p *Policy) tableAllowed(t TableRef) bool {
	if p.BlockedTables[lowerName(t.String())] || p.BlockedTables[lowerName(t.Name)] {
		return false
	}
	if len(p.AllowedTables) > 0 {
		return p.AllowedTables[lowerName(t.String())] || p.AllowedTables[lowerName(t.Name)]
	}
	return true
}

// blockedColumnsFor returns the blocked column set for a table, matching
// both the qualified (schema.table) and bare table name forms.
func (p *Policy) blockedColumnsFor(t TableRef) map[string]bool {
	if cols, ok := p.BlockedColumns[lowerName(t.String())]; ok {
		return cols
	}
	return p.BlockedColumns[lowerName(t.Name)]
}

func lowerName(s string) string {
	return strings.ToLower(s)
}

// AllowedKindNames lists the permitted kinds in stable order, for messages.
func (p *Policy) AllowedKindNames() string {
	kinds := p.AllowedKinds
	if len(kinds) == 0 {
		kinds = map[StatementKind]bool{KindQuery: true}
	}
	names := make([]string, 0, len(kinds))
	for k, ok := range kinds {
		if ok {
			names = append(names, string(k))
		}
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// Store holds the active Policy snapshot. Swaps are atomic: in-flight
// validations keep the snapshot they loaded, new calls see the new one.
type Store struct {
	current atomic.Pointer[Policy]
}

// NewStore returns a Store seeded with pol (or DefaultPolicy if nil).
func NewStore(pol *Policy) *Store {
	s := &Store{}
	if pol == nil {
		pol = DefaultPolicy()
	}
	s.current.Store(pol)
	return s
}

// Load returns the active snapshot.
func (s *Store) Load() *Policy {
	return s.current.Load()
}

// Swap replaces the active snapshot.
func (s *Store) Swap(pol *Policy) {
	if pol == nil {
		pol = DefaultPolicy()
	}
	s.current.Store(pol)
}
