// Package store wraps an embedded DuckDB database holding ingested datasets
// and exposes bounded, read-only query execution for generated SQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

const defaultStatementTimeout = 30 * time.Second

type Config struct {
	Logger *slog.Logger

	// Path is the database file. Empty means in-memory.
	Path string

	// StatementTimeout bounds each query. Exceeding it surfaces the stable
	// "statement timed out" error text that execution-failure classification
	// keys on.
	StatementTimeout time.Duration
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.StatementTimeout == 0 {
		c.StatementTimeout = defaultStatementTimeout
	}
	return nil
}

type Store struct {
	log         *slog.Logger
	db          *sql.DB
	stmtTimeout time.Duration
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate store config: %w", err)
	}
	db, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}
	return &Store{
		log:         cfg.Logger,
		db:          db,
		stmtTimeout: cfg.StatementTimeout,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Result is the raw outcome of one successful query.
type Result struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"rowCount"`
}

// Query executes sqlText under the statement timeout and materializes every
// row. Timeout expiry is reported with a stable "statement timed out"
// message rather than the driver's own wording.
func (s *Store) Query(ctx context.Context, sqlText string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.stmtTimeout)
	defer cancel()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return Result{}, s.classify(ctx, fmt.Errorf("failed to get connection: %w", err))
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return Result{}, s.classify(ctx, fmt.Errorf("failed to execute query: %w", err))
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("failed to get columns: %w", err)
	}

	var resultRows []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return Result{}, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			switch v := values[i].(type) {
			case []byte:
				row[col] = string(v)
			default:
				row[col] = values[i]
			}
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, s.classify(ctx, fmt.Errorf("failed to read rows: %w", err))
	}

	return Result{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

func (s *Store) classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("statement timed out after %s", s.stmtTimeout)
	}
	return err
}

// Tables lists the ingested dataset tables.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	res, err := s.Query(ctx, `SELECT table_name FROM duckdb_tables() WHERE schema_name = 'main' ORDER BY table_name`)
	if err != nil {
		return nil, err
	}
	tables := make([]string, 0, res.RowCount)
	for _, row := range res.Rows {
		if name, ok := row["table_name"].(string); ok {
			tables = append(tables, name)
		}
	}
	return tables, nil
}
