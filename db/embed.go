// Package db carries the embedded schema migrations.
package db

import (
	"embed"
	"io/fs"
	"sort"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MigrationFiles returns the embedded migration scripts in lexical order,
// so numbered files apply oldest first.
func MigrationFiles() ([]string, error) {
	entries, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(entries)
	return entries, nil
}

// ReadMigration returns the DDL contents of one migration script.
func ReadMigration(name string) (string, error) {
	b, err := migrations.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
