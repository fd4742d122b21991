package policy

import (
	"fmt"
	"strings"

	"github.com/palisade-db/palisade/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// Policy holds operator-controlled configuration loaded from a YAML file:
// access control rules for the validator, data dictionary context, and
// column-level PII masking.
type Policy struct {
	Access  AccessConfig  `yaml:"access"`
	Context ContextConfig `yaml:"context"`
}

// AccessConfig is the access-control section. When present it overrides
// the equivalent environment settings wholesale.
type AccessConfig struct {
	AllowedStatements    []string            `yaml:"allowed_statements"`
	SystemSchemaPrefixes []string            `yaml:"system_schema_prefixes"`
	AllowedTables        []string            `yaml:"allowed_tables"`
	BlockedTables        []string            `yaml:"blocked_tables"`
	BlockedColumns       map[string][]string `yaml:"blocked_columns"`
}

// Empty reports whether the section was absent from the file.
func (a AccessConfig) Empty() bool {
	return len(a.AllowedStatements) == 0 &&
		len(a.SystemSchemaPrefixes) == 0 &&
		len(a.AllowedTables) == 0 &&
		len(a.BlockedTables) == 0 &&
		len(a.BlockedColumns) == 0
}

// Compile converts the config lists into an immutable validation policy
// snapshot. Table and column names are case-folded; statement kind names
// must parse or the whole policy is rejected.
func (a AccessConfig) Compile() (*domain.Policy, error) {
	pol := domain.DefaultPolicy()

	if len(a.AllowedStatements) > 0 {
		pol.AllowedKinds = make(map[domain.StatementKind]bool, len(a.AllowedStatements))
		for _, name := range a.AllowedStatements {
			kind, err := domain.ParseStatementKind(name)
			if err != nil {
				return nil, fmt.Errorf("allowed_statements: %w", err)
			}
			pol.AllowedKinds[kind] = true
		}
	}

	if len(a.SystemSchemaPrefixes) > 0 {
		pol.SystemPrefixes = append([]string(nil), a.SystemSchemaPrefixes...)
	}

	if len(a.AllowedTables) > 0 {
		pol.AllowedTables = lowerSet(a.AllowedTables)
	}
	if len(a.BlockedTables) > 0 {
		pol.BlockedTables = lowerSet(a.BlockedTables)
	}

	if len(a.BlockedColumns) > 0 {
		pol.BlockedColumns = make(map[string]map[string]bool, len(a.BlockedColumns))
		for table, cols := range a.BlockedColumns {
			if table == "" {
				return nil, fmt.Errorf("blocked_columns contains an empty table key")
			}
			pol.BlockedColumns[strings.ToLower(table)] = lowerSet(cols)
		}
	}

	return pol, nil
}

func lowerSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" {
			set[strings.ToLower(n)] = true
		}
	}
	return set
}

// ContextConfig maps fully-qualified table names (schema.table) to
// business descriptions that are merged into MCP tool responses.
type ContextConfig struct {
	Tables map[string]TableContext `yaml:"tables"`
}

// TableContext provides business descriptions and masking rules for a table and its columns.
type TableContext struct {
	Description string                   `yaml:"description"`
	Columns     map[string]ColumnContext `yaml:"columns"`
}

// ColumnContext holds a column's business description and optional mask directive.
type ColumnContext struct {
	Description string          `yaml:"description"`
	Mask        domain.MaskType `yaml:"mask,omitempty"`
}

// UnmarshalYAML supports both the struct format and the legacy plain-string format.
//
//	columns:
//	  email: "User email"           # legacy: plain string → ColumnContext{Description: "User email"}
//	  ssn:                          # struct with optional mask
//	    description: "SSN"
//	    mask: "redact"
func (cc *ColumnContext) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		cc.Description = value.Value
		return nil
	}
	// Decode as struct (avoid infinite recursion by using an alias type).
	type alias ColumnContext
	var a alias
	if err := value.Decode(&a); err != nil {
		return fmt.Errorf("decoding column context: %w", err)
	}
	*cc = ColumnContext(a)
	return nil
}
