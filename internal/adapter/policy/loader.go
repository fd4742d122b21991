package policy

import (
	"fmt"
	"os"

	"github.com/palisade-db/palisade/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// LoadFromFile reads a YAML policy file and returns a validated Policy.
func LoadFromFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	var pol Policy
	if err := yaml.Unmarshal(data, &pol); err != nil {
		return nil, fmt.Errorf("parsing policy YAML: %w", err)
	}

	if err := validate(&pol); err != nil {
		return nil, fmt.Errorf("validating policy: %w", err)
	}

	return &pol, nil
}

func validate(pol *Policy) error {
	for _, name := range pol.Access.AllowedStatements {
		if _, err := domain.ParseStatementKind(name); err != nil {
			return fmt.Errorf("access.allowed_statements: %w", err)
		}
	}
	for table := range pol.Access.BlockedColumns {
		if table == "" {
			return fmt.Errorf("access.blocked_columns contains an empty table key")
		}
	}

	// Masks are applied by output column name, so the same column name
	// carrying different masks in different tables is ambiguous.
	seenMasks := make(map[string]domain.MaskType)

	for key, tc := range pol.Context.Tables {
		if key == "" {
			return fmt.Errorf("context.tables contains an empty key")
		}
		for col, cc := range tc.Columns {
			if col == "" {
				return fmt.Errorf("context.tables[%q].columns contains an empty key", key)
			}
			if !cc.Mask.Valid() {
				return fmt.Errorf("context.tables[%q].columns[%q].mask: invalid value %q (allowed: redact, hash, partial, null)", key, col, cc.Mask)
			}
			if cc.Mask == "" {
				continue
			}
			if prev, ok := seenMasks[col]; ok && prev != cc.Mask {
				return fmt.Errorf("conflicting masks for column %q: %q and %q", col, prev, cc.Mask)
			}
			seenMasks[col] = cc.Mask
		}
	}
	return nil
}
