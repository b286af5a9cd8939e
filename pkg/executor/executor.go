// Package executor runs generated SQL against the row store and drives the
// bounded LLM repair loop on failure.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lakeglass/lakeglass/pkg/metrics"
	"github.com/lakeglass/lakeglass/pkg/store"
)

const defaultMaxAttempts = 3

// Querier executes one read-only statement. Satisfied by *store.Store.
type Querier interface {
	Query(ctx context.Context, sqlText string) (store.Result, error)
}

// Repairer asks a text-generation backend to patch a failing statement.
// Satisfied by *compiler.Compiler.
type Repairer interface {
	RepairSQL(ctx context.Context, question, failingSQL, dbError string) (string, error)
}

// QueryResult is the outcome of one execution attempt. Failed attempts keep
// only their error text; the repair loop discards prior row data.
type QueryResult struct {
	Success  bool             `json:"success"`
	Columns  []string         `json:"columns,omitempty"`
	Rows     []map[string]any `json:"rows,omitempty"`
	RowCount int              `json:"rowCount"`
	Error    string           `json:"error,omitempty"`
}

type Config struct {
	Logger   *slog.Logger
	Querier  Querier
	Repairer Repairer

	// MaxAttempts bounds executions per statement, including the first.
	MaxAttempts int
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Querier == nil {
		return errors.New("querier is required")
	}
	if c.Repairer == nil {
		return errors.New("repairer is required")
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	return nil
}

type Executor struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate executor config: %w", err)
	}
	return &Executor{log: cfg.Logger, cfg: cfg}, nil
}

// ExecuteWithRepair runs sqlText, asking the backend to patch it on
// non-timeout failures, up to the attempt budget. It returns the final
// result, the SQL that produced it (callers persist repaired SQL back onto
// the plan), whether any repair was applied, and how many executions ran.
// Timeout failures stop immediately without a repair call. Label names the
// panel for logging only.
func (e *Executor) ExecuteWithRepair(ctx context.Context, question, sqlText, label string) (QueryResult, string, bool, int) {
	current := sqlText
	repaired := false
	var last QueryResult

	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if err := GuardReadOnly(current); err != nil {
			metrics.PanelExecutionsTotal.WithLabelValues("rejected").Inc()
			e.log.Warn("statement rejected by read-only guard", "label", label, "error", err)
			return QueryResult{Success: false, Error: err.Error()}, current, repaired, attempt
		}

		res, err := e.cfg.Querier.Query(ctx, current)
		if err == nil {
			metrics.PanelExecutionsTotal.WithLabelValues("success").Inc()
			if repaired {
				e.log.Info("statement succeeded after repair", "label", label, "attempt", attempt)
			}
			return QueryResult{
				Success:  true,
				Columns:  res.Columns,
				Rows:     res.Rows,
				RowCount: res.RowCount,
			}, current, repaired, attempt
		}

		last = QueryResult{Success: false, Error: err.Error()}
		if IsTimeout(err.Error()) {
			metrics.PanelExecutionsTotal.WithLabelValues("timeout").Inc()
			e.log.Warn("statement timed out, not repairing", "label", label, "attempt", attempt)
			return last, current, repaired, attempt
		}
		metrics.PanelExecutionsTotal.WithLabelValues("failure").Inc()
		e.log.Warn("statement failed", "label", label, "attempt", attempt, "error", err)

		if attempt == e.cfg.MaxAttempts {
			break
		}

		metrics.RepairCallsTotal.Inc()
		fixed, repairErr := e.cfg.Repairer.RepairSQL(ctx, question, current, err.Error())
		if repairErr != nil {
			e.log.Warn("repair unavailable, stopping", "label", label, "attempt", attempt, "error", repairErr)
			return last, current, repaired, attempt
		}
		e.log.Info("applying repaired statement", "label", label, "attempt", attempt)
		current = fixed
		repaired = true
	}

	return last, current, repaired, e.cfg.MaxAttempts
}
