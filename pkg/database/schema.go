package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator checks that the live database matches what the project store expects
// ARCHITECTURAL DISCOVERY: Separate validation component enables deployment
// verification against a store the broker does not own
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	for _, table := range []string{"projects", "schema_migrations"} {
		exists, err := v.exists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}
	return nil
}

// ValidateTableStructure verifies the projects columns and their declared types
func (v *SchemaValidator) ValidateTableStructure() error {
	projectColumns := map[string]string{
		"code":        "TEXT",
		"name":        "TEXT",
		"description": "TEXT",
		"is_active":   "INTEGER",
		"create_date": "DATETIME",
		"update_date": "DATETIME",
	}

	if err := v.validateColumns("projects", projectColumns); err != nil {
		return fmt.Errorf("projects table structure invalid: %w", err)
	}
	return nil
}

// ValidateIndexes verifies the active-project lookup index exists
func (v *SchemaValidator) ValidateIndexes() error {
	exists, err := v.exists("index", "idx_projects_active")
	if err != nil {
		return fmt.Errorf("error checking index idx_projects_active: %w", err)
	}
	if !exists {
		return fmt.Errorf("required index idx_projects_active does not exist")
	}
	return nil
}

// ValidateConstraints verifies the code length check is enforced
func (v *SchemaValidator) ValidateConstraints() error {
	_, err := v.db.Exec(`INSERT INTO projects (code, name) VALUES ('', 'constraint probe')`)
	if err == nil {
		_, _ = v.db.Exec(`DELETE FROM projects WHERE code = ''`)
		return fmt.Errorf("check constraint not enforced: projects.code length")
	}
	return nil
}

func (v *SchemaValidator) exists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type=? AND name=?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]string)
	for rows.Next() {
		var (
			cid          int
			name, typ    string
			notNull, pk  int
			defaultValue any
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		found[name] = typ
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for col, want := range expectedColumns {
		got, ok := found[col]
		if !ok {
			return fmt.Errorf("column %s not found", col)
		}
		if got != want {
			return fmt.Errorf("column %s has type %s, expected %s", col, got, want)
		}
	}
	return nil
}
