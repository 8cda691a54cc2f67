// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sentinel

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Data Store Schema
// =============================================================================
//
// The planner prompts the model with a static description of the store's
// tables. The description comes from configuration, never from the live
// database: introspecting a production store on every planning call would
// be slow and would let a misconfigured DSN leak table inventories into
// prompts for the wrong tenant.

//go:embed schema_default.yaml
var defaultSchemaYAML []byte

// Column is one column in a schema description.
type Column struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"`
	Constraints string `yaml:"constraints,omitempty" json:"constraints,omitempty"`
}

// Table is one table in a schema description.
type Table struct {
	Name    string   `yaml:"name" json:"name"`
	Note    string   `yaml:"note,omitempty" json:"note,omitempty"`
	Columns []Column `yaml:"columns" json:"columns"`
}

// Schema describes the investigated data store for the planning prompt.
type Schema struct {
	Store         string   `yaml:"store" json:"store"`
	Tables        []Table  `yaml:"tables" json:"tables"`
	Relationships []string `yaml:"relationships,omitempty" json:"relationships,omitempty"`
}

var (
	cachedDefaultSchema *Schema
	defaultSchemaOnce   sync.Once
	defaultSchemaErr    error
)

// DefaultSchema returns the embedded record-store demo schema. The result
// is parsed once and cached; callers must treat it as immutable.
func DefaultSchema() (*Schema, error) {
	defaultSchemaOnce.Do(func() {
		cachedDefaultSchema, defaultSchemaErr = parseSchema(defaultSchemaYAML)
		if defaultSchemaErr != nil {
			defaultSchemaErr = fmt.Errorf("parsing embedded schema: %w", defaultSchemaErr)
		}
	})
	return cachedDefaultSchema, defaultSchemaErr
}

// LoadSchema loads a schema description from the given YAML file, or the
// embedded default when path is empty.
func LoadSchema(path string) (*Schema, error) {
	if path == "" {
		return DefaultSchema()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}
	schema, err := parseSchema(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing schema file %s: %w", path, err)
	}
	return schema, nil
}

func parseSchema(raw []byte) (*Schema, error) {
	var schema Schema
	if err := yaml.Unmarshal(raw, &schema); err != nil {
		return nil, err
	}
	if schema.Store == "" {
		return nil, fmt.Errorf("schema is missing a store name")
	}
	if len(schema.Tables) == 0 {
		return nil, fmt.Errorf("schema describes no tables")
	}
	for _, table := range schema.Tables {
		if table.Name == "" {
			return nil, fmt.Errorf("schema contains a table without a name")
		}
		if len(table.Columns) == 0 {
			return nil, fmt.Errorf("table %s has no columns", table.Name)
		}
	}
	return &schema, nil
}

// TableNames returns the table names in declaration order.
func (s *Schema) TableNames() []string {
	names := make([]string, len(s.Tables))
	for i, table := range s.Tables {
		names[i] = table.Name
	}
	return names
}

// PromptBlock renders the schema as the markdown block embedded in the
// planner's system prompt.
func (s *Schema) PromptBlock() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s - Database Schema\n\n", s.Store)
	b.WriteString("## Tables\n\n")
	for _, table := range s.Tables {
		fmt.Fprintf(&b, "### %s\n", table.Name)
		for _, col := range table.Columns {
			if col.Constraints != "" {
				fmt.Fprintf(&b, "- %s (%s, %s)\n", col.Name, col.Type, col.Constraints)
			} else {
				fmt.Fprintf(&b, "- %s (%s)\n", col.Name, col.Type)
			}
		}
		if table.Note != "" {
			fmt.Fprintf(&b, "Note: %s\n", table.Note)
		}
		b.WriteString("\n")
	}
	if len(s.Relationships) > 0 {
		b.WriteString("## Key Relationships\n")
		for _, rel := range s.Relationships {
			fmt.Fprintf(&b, "- %s\n", rel)
		}
	}
	return b.String()
}
