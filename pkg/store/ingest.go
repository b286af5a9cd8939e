package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// LoadDir ingests every supported file in dir (non-recursive) and returns
// the created table names. CSV files go through DuckDB's read_csv_auto, JSON
// row files through read_json_auto.
func (s *Store) LoadDir(ctx context.Context, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data dir: %w", err)
	}
	var tables []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		var table string
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".csv":
			table, err = s.LoadCSV(ctx, path)
		case ".json", ".ndjson", ".jsonl":
			table, err = s.LoadJSON(ctx, path)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	return tables, nil
}

// LoadCSV ingests one CSV file into a table named after its stem.
func (s *Store) LoadCSV(ctx context.Context, path string) (string, error) {
	table := tableNameFromPath(path)
	stmt := fmt.Sprintf(
		`CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv_auto('%s')`,
		table, escapeSingleQuotes(path),
	)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return "", fmt.Errorf("failed to ingest CSV %s: %w", path, err)
	}
	s.log.Info("ingested CSV file", "path", path, "table", table)
	return table, nil
}

// LoadJSON ingests one JSON row file (array or newline-delimited) into a
// table named after its stem.
func (s *Store) LoadJSON(ctx context.Context, path string) (string, error) {
	table := tableNameFromPath(path)
	stmt := fmt.Sprintf(
		`CREATE OR REPLACE TABLE %s AS SELECT * FROM read_json_auto('%s')`,
		table, escapeSingleQuotes(path),
	)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return "", fmt.Errorf("failed to ingest JSON %s: %w", path, err)
	}
	s.log.Info("ingested JSON file", "path", path, "table", table)
	return table, nil
}

// tableNameFromPath converts a file stem into a safe identifier: lowercase,
// non-alphanumerics collapsed to underscores, digit-leading names prefixed.
func tableNameFromPath(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(stem) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	name := strings.TrimSuffix(b.String(), "_")
	if name == "" {
		name = "dataset"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "t_" + name
	}
	return name
}

func escapeSingleQuotes(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
