// Package orchestrator composes compilation, execution, forecasting, and
// summarization into the answer pipeline behind the HTTP surface.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alitto/pond/v2"

	"github.com/lakeglass/lakeglass/pkg/compiler"
	"github.com/lakeglass/lakeglass/pkg/executor"
	"github.com/lakeglass/lakeglass/pkg/forecast"
	"github.com/lakeglass/lakeglass/pkg/plan"
)

const (
	defaultPanelPoolSize = 4
	digestRowLimit       = 10
)

// SchemaContexter supplies the rendered schema document fed to compilation.
// Satisfied by *profile.Provider.
type SchemaContexter interface {
	Context(ctx context.Context) (string, error)
}

// Compiler is the compilation and text-synthesis surface the pipeline needs.
// Satisfied by *compiler.Compiler.
type Compiler interface {
	CompileQuestion(ctx context.Context, question, schemaContext string) *plan.AnalyticalPlan
	GenerateOverview(ctx context.Context, schemaContext string) (*plan.Dashboard, error)
	ExplainFailure(ctx context.Context, question, failedSQL, dbError string) (compiler.Explanation, error)
	Summarize(ctx context.Context, question, resultsDigest string) (string, error)
}

// PanelRunner executes one statement with repair. Satisfied by
// *executor.Executor.
type PanelRunner interface {
	ExecuteWithRepair(ctx context.Context, question, sqlText, label string) (executor.QueryResult, string, bool, int)
}

// Forecaster projects a panel's series forward. Satisfied by
// *forecast.Engine.
type Forecaster interface {
	Forecast(ctx context.Context, rows []map[string]any, columns []string, xField, yField string, spec *plan.ForecastSpec) (*forecast.Result, error)
}

type Config struct {
	Logger     *slog.Logger
	Schema     SchemaContexter
	Compiler   Compiler
	Runner     PanelRunner
	Forecaster Forecaster

	// PanelPoolSize bounds how many panels execute concurrently across all
	// in-flight requests.
	PanelPoolSize int
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Schema == nil {
		return errors.New("schema contexter is required")
	}
	if c.Compiler == nil {
		return errors.New("compiler is required")
	}
	if c.Runner == nil {
		return errors.New("panel runner is required")
	}
	if c.PanelPoolSize == 0 {
		c.PanelPoolSize = defaultPanelPoolSize
	}
	return nil
}

// PanelResult pairs a panel spec with its execution outcome. SQL is the
// statement that actually produced the result, which differs from Spec.SQL
// when a repair was applied.
type PanelResult struct {
	Spec          plan.PanelSpec        `json:"spec"`
	Result        executor.QueryResult  `json:"result"`
	SQL           string                `json:"sql"`
	Repaired      bool                  `json:"repaired,omitempty"`
	Attempts      int                   `json:"attempts"`
	Forecast      *forecast.Result      `json:"forecast,omitempty"`
	ForecastError string                `json:"forecastError,omitempty"`
	Explanation   *compiler.Explanation `json:"explanation,omitempty"`
}

// Answer is the full response to one question: the compiled plan (with
// repaired SQL and the executive summary spliced back in) plus per-panel
// results.
type Answer struct {
	Plan   *plan.AnalyticalPlan `json:"plan"`
	Panels []PanelResult        `json:"panels,omitempty"`
}

// Overview is a generated dashboard with its executed panels.
type Overview struct {
	Dashboard *plan.Dashboard `json:"dashboard"`
	Panels    []PanelResult   `json:"panels"`
}

type Orchestrator struct {
	log  *slog.Logger
	cfg  Config
	pool pond.ResultPool[PanelResult]
}

func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate orchestrator config: %w", err)
	}
	return &Orchestrator{
		log:  cfg.Logger,
		cfg:  cfg,
		pool: pond.NewResultPool[PanelResult](cfg.PanelPoolSize),
	}, nil
}

// Answer compiles a question and runs the resulting plan. Infeasible plans
// come back as-is with no panels; execution and forecast failures are
// reported per panel, never as a pipeline error.
func (o *Orchestrator) Answer(ctx context.Context, question string) (*Answer, error) {
	schemaCtx, err := o.cfg.Schema.Context(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build schema context: %w", err)
	}

	p := o.cfg.Compiler.CompileQuestion(ctx, question, schemaCtx)
	if !p.Feasible {
		o.log.Info("question refused", "question", question, "reason", p.Reason)
		return &Answer{Plan: p}, nil
	}
	if !p.Executable() {
		return &Answer{Plan: plan.Refusal(question, "the compiled plan carried no statement to run", p.SuggestedFollowUps)}, nil
	}

	panels := effectivePanels(p)
	results := o.runPanels(ctx, question, panels)

	// Repaired SQL becomes the plan's source of truth.
	for i, r := range results {
		if r.Repaired {
			if i < len(p.Panels) {
				p.Panels[i].SQL = r.SQL
			} else if p.SQL != "" {
				p.SQL = r.SQL
			}
		}
	}

	if summary, err := o.cfg.Compiler.Summarize(ctx, question, renderDigest(results)); err != nil {
		o.log.Warn("executive summary failed", "question", question, "error", err)
	} else {
		p.ExecutiveSummary = summary
	}

	return &Answer{Plan: p, Panels: results}, nil
}

// Overview generates a dashboard over the current schema and executes its
// panels.
func (o *Orchestrator) Overview(ctx context.Context) (*Overview, error) {
	schemaCtx, err := o.cfg.Schema.Context(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build schema context: %w", err)
	}
	dash, err := o.cfg.Compiler.GenerateOverview(ctx, schemaCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate overview: %w", err)
	}

	results := o.runPanels(ctx, dash.Title, dash.Panels)
	for i, r := range results {
		if r.Repaired && i < len(dash.Panels) {
			dash.Panels[i].SQL = r.SQL
		}
	}
	return &Overview{Dashboard: dash, Panels: results}, nil
}

// effectivePanels resolves what actually runs: the plan's panels, each
// falling back to the plan-level statement when it has none of its own, or a
// synthesized table panel when the plan only carries top-level SQL.
func effectivePanels(p *plan.AnalyticalPlan) []plan.PanelSpec {
	if len(p.Panels) == 0 {
		return []plan.PanelSpec{{
			Type:  plan.PanelTable,
			Title: p.Question,
			SQL:   p.SQL,
		}}
	}
	panels := make([]plan.PanelSpec, len(p.Panels))
	copy(panels, p.Panels)
	for i := range panels {
		if panels[i].SQL == "" {
			panels[i].SQL = p.SQL
		}
	}
	return panels
}

func (o *Orchestrator) runPanels(ctx context.Context, question string, panels []plan.PanelSpec) []PanelResult {
	group := o.pool.NewGroupContext(ctx)
	for _, spec := range panels {
		spec := spec
		group.SubmitErr(func() (PanelResult, error) {
			return o.runPanel(ctx, question, spec), nil
		})
	}
	results, err := group.Wait()
	if err != nil {
		// Workers never return errors; a group error means the context died.
		o.log.Warn("panel group aborted", "error", err)
	}
	return results
}

func (o *Orchestrator) runPanel(ctx context.Context, question string, spec plan.PanelSpec) PanelResult {
	res, finalSQL, repaired, attempts := o.cfg.Runner.ExecuteWithRepair(ctx, question, spec.SQL, spec.Title)
	out := PanelResult{
		Spec:     spec,
		Result:   res,
		SQL:      finalSQL,
		Repaired: repaired,
		Attempts: attempts,
	}

	if !res.Success {
		if expl, err := o.cfg.Compiler.ExplainFailure(ctx, question, finalSQL, res.Error); err != nil {
			o.log.Warn("failure explanation unavailable", "panel", spec.Title, "error", err)
		} else {
			out.Explanation = &expl
		}
		return out
	}

	if spec.Forecast != nil && o.cfg.Forecaster != nil {
		fc, err := o.cfg.Forecaster.Forecast(ctx, res.Rows, res.Columns, spec.X, spec.Y, spec.Forecast)
		if err != nil {
			// A broken overlay leaves the panel's rows intact.
			o.log.Warn("forecast overlay failed", "panel", spec.Title, "error", err)
			out.ForecastError = err.Error()
		} else {
			out.Forecast = fc
		}
	}
	return out
}

// renderDigest flattens executed panels into the compact text block the
// summarization prompt consumes.
func renderDigest(results []PanelResult) string {
	type panelDigest struct {
		Title    string           `json:"title"`
		RowCount int              `json:"rowCount"`
		Error    string           `json:"error,omitempty"`
		Rows     []map[string]any `json:"rows,omitempty"`
	}

	digest := make([]panelDigest, 0, len(results))
	for _, r := range results {
		d := panelDigest{Title: r.Spec.Title, RowCount: r.Result.RowCount, Error: r.Result.Error}
		if n := len(r.Result.Rows); n > 0 {
			if n > digestRowLimit {
				n = digestRowLimit
			}
			d.Rows = r.Result.Rows[:n]
		}
		digest = append(digest, d)
	}
	data, err := json.Marshal(digest)
	if err != nil {
		return ""
	}
	return string(data)
}
