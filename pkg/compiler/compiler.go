// Package compiler turns a free-text analytical question into an executable
// AnalyticalPlan by driving a text-generation backend through a bounded
// retry state machine.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lakeglass/lakeglass/pkg/llm"
	"github.com/lakeglass/lakeglass/pkg/metrics"
	"github.com/lakeglass/lakeglass/pkg/notation"
	"github.com/lakeglass/lakeglass/pkg/plan"
)

const (
	defaultTemperature = 0.1
	defaultMaxTokens   = 2048
	defaultMaxAttempts = 3
)

type Config struct {
	Logger    *slog.Logger
	Generator llm.TextGenerator

	Temperature float64
	MaxTokens   int64

	// MaxAttempts bounds backend calls per compile request, counting format
	// and refusal retries alike.
	MaxAttempts int
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Generator == nil {
		return errors.New("generator is required")
	}
	if c.Temperature == 0 {
		c.Temperature = defaultTemperature
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	return nil
}

type Compiler struct {
	log     *slog.Logger
	gen     llm.TextGenerator
	prompts *Prompts
	cfg     Config
}

func New(cfg Config) (*Compiler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate compiler config: %w", err)
	}
	p, err := LoadPrompts()
	if err != nil {
		return nil, err
	}
	return &Compiler{
		log:     cfg.Logger,
		gen:     cfg.Generator,
		prompts: p,
		cfg:     cfg,
	}, nil
}

// retryReason discriminates why the state machine loops back into another
// attempt. Each reason appends its own prompt hint.
type retryReason int

const (
	retryNone retryReason = iota
	retryFormat
	retryRefusal
	retrySchema
	retryBackend
)

const formatHint = `

IMPORTANT: Your previous reply could not be parsed. You must emit EXACTLY one
plan-notation document: @plan{...} or @refusal{...}. No prose before or after
it, no JSON, no explanation. Quote every string value.`

const forecastOverrideHint = `

IMPORTANT: Forecasting IS supported by this system. Do NOT refuse the
question on forecasting grounds. Produce a feasible @plan with a line panel
over the historical series and attach
forecast:@forecast{ strategy:auto horizon:<n> } to it.`

const schemaHintPrefix = `

IMPORTANT: Your previous plan referenced tables or columns that do not exist
in the schema: `

const schemaHintSuffix = `. Use ONLY the tables and columns listed in the
schema document above.`

var genericFollowUps = []string{
	"What tables are available and how large are they?",
	"Show an overview of the most recent data.",
	"What are the top categories by record count?",
}

// CompileQuestion runs the bounded attempt loop and always returns a
// well-formed plan: a feasible plan on success, a refusal carrying the last
// error otherwise. It never returns an error to the caller.
func (c *Compiler) CompileQuestion(ctx context.Context, question, schemaContext string) *plan.AnalyticalPlan {
	base := fill(c.prompts.Compile, map[string]string{"SCHEMA": schemaContext}) +
		"\n\n## Question\n\n" + question

	catalog := parseSchemaCatalog(schemaContext)

	var (
		reason       = retryNone
		lastErr      error
		formatHints  bool
		refusalHints bool
		schemaHint   string
	)

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		metrics.CompileAttemptsTotal.Inc()

		prompt := base
		if formatHints {
			prompt += formatHint
		}
		if refusalHints {
			prompt += forecastOverrideHint
		}
		if schemaHint != "" {
			prompt += schemaHintPrefix + schemaHint + schemaHintSuffix
		}

		raw, err := c.gen.GenerateText(ctx, prompt, c.cfg.Temperature, c.cfg.MaxTokens)
		if err != nil {
			// Transport failure: nothing about the prompt caused it, retry
			// as-is with the remaining budget.
			lastErr, reason = err, retryBackend
			c.log.Warn("compile attempt failed at backend", "attempt", attempt, "error", err)
			continue
		}

		obj, err := notation.Parse(raw)
		if err != nil {
			lastErr, reason, formatHints = err, retryFormat, true
			metrics.CompileFormatRetriesTotal.Inc()
			c.log.Warn("compile attempt produced unparseable output", "attempt", attempt, "error", err)
			continue
		}
		compiled, err := plan.Decode(obj)
		if err != nil {
			lastErr, reason, formatHints = err, retryFormat, true
			metrics.CompileFormatRetriesTotal.Inc()
			c.log.Warn("compile attempt produced invalid plan", "attempt", attempt, "error", err)
			continue
		}
		if compiled.Question == "" {
			compiled.Question = question
		}

		if catalog != nil {
			if err := catalog.validatePlan(compiled); err != nil {
				lastErr, reason, schemaHint = err, retrySchema, err.Error()
				metrics.CompileSchemaRetriesTotal.Inc()
				c.log.Warn("compile attempt referenced unknown schema objects", "attempt", attempt, "error", err)
				continue
			}
		}

		if !compiled.Feasible && WantsForecast(question) && looksLikeForecastRefusal(compiled.Reason) {
			lastErr = fmt.Errorf("model refused a forecast-capable question: %s", compiled.Reason)
			reason, refusalHints = retryRefusal, true
			metrics.CompileRefusalRetriesTotal.Inc()
			c.log.Warn("compile attempt refused forecasting", "attempt", attempt, "reason", compiled.Reason)
			continue
		}

		c.log.Info("compiled question", "attempt", attempt, "feasible", compiled.Feasible, "panels", len(compiled.Panels))
		return compiled
	}

	msg := "the question could not be compiled"
	if lastErr != nil {
		msg = lastErr.Error()
	}
	c.log.Error("compile budget exhausted", "attempts", c.cfg.MaxAttempts, "lastRetryReason", int(reason), "error", msg)
	return plan.Refusal(question, msg, genericFollowUps)
}

// GenerateOverview asks for a first-look dashboard. Unlike CompileQuestion
// there is no refusal synthesis: an exhausted budget is an error.
func (c *Compiler) GenerateOverview(ctx context.Context, schemaContext string) (*plan.Dashboard, error) {
	base := fill(c.prompts.Overview, map[string]string{"SCHEMA": schemaContext})

	var lastErr error
	hinted := false
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		prompt := base
		if hinted {
			prompt += formatHint
		}
		raw, err := c.gen.GenerateText(ctx, prompt, c.cfg.Temperature, c.cfg.MaxTokens)
		if err != nil {
			lastErr = err
			continue
		}
		obj, err := notation.Parse(raw)
		if err != nil {
			lastErr, hinted = err, true
			continue
		}
		dashboard, err := plan.DecodeDashboard(obj)
		if err != nil {
			lastErr, hinted = err, true
			continue
		}
		return dashboard, nil
	}
	return nil, fmt.Errorf("failed to generate overview after %d attempts: %w", c.cfg.MaxAttempts, lastErr)
}

// RepairSQL asks the backend to patch a failing statement. An empty result
// with nil error never happens: unusable output is an error so the repair
// loop can stop.
func (c *Compiler) RepairSQL(ctx context.Context, question, failingSQL, dbError string) (string, error) {
	prompt := fill(c.prompts.Repair, map[string]string{
		"QUESTION": question,
		"SQL":      failingSQL,
		"ERROR":    dbError,
	})
	raw, err := c.gen.GenerateText(ctx, prompt, c.cfg.Temperature, c.cfg.MaxTokens)
	if err != nil {
		return "", fmt.Errorf("repair request failed: %w", err)
	}
	if strings.Contains(strings.ToUpper(raw), "UNFIXABLE") {
		return "", fmt.Errorf("backend declined to repair the statement")
	}
	repaired := ExtractSQL(raw)
	if repaired == "" {
		return "", fmt.Errorf("repair response contained no SQL")
	}
	return repaired, nil
}

// Explanation is the user-facing rendering of an execution failure.
type Explanation struct {
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// ExplainFailure turns a database error into a plain-language explanation
// with alternative questions. Falls back to the raw backend text when the
// response is not parseable notation.
func (c *Compiler) ExplainFailure(ctx context.Context, question, failedSQL, dbError string) (Explanation, error) {
	prompt := fill(c.prompts.Explain, map[string]string{
		"QUESTION": question,
		"SQL":      failedSQL,
		"ERROR":    dbError,
	})
	raw, err := c.gen.GenerateText(ctx, prompt, c.cfg.Temperature, c.cfg.MaxTokens)
	if err != nil {
		return Explanation{}, fmt.Errorf("explain request failed: %w", err)
	}
	if obj, err := notation.Parse(raw); err == nil && obj.Type == notation.TypeRefusal {
		return Explanation{
			Message:     obj.Str("reason"),
			Suggestions: obj.Strings("suggestedInvestigations"),
		}, nil
	}
	return Explanation{Message: strings.TrimSpace(raw)}, nil
}

// Summarize produces the executive summary spliced onto the plan after
// execution. resultsDigest is a caller-rendered compact view of the rows.
func (c *Compiler) Summarize(ctx context.Context, question, resultsDigest string) (string, error) {
	prompt := fill(c.prompts.Summarize, map[string]string{
		"QUESTION": question,
		"RESULTS":  resultsDigest,
	})
	raw, err := c.gen.GenerateText(ctx, prompt, c.cfg.Temperature, c.cfg.MaxTokens)
	if err != nil {
		return "", fmt.Errorf("summarize request failed: %w", err)
	}
	return strings.TrimSpace(raw), nil
}

var forecastKeywords = []string{
	"forecast", "predict", "projection", "project forward", "extrapolate",
	"next month", "next quarter", "next year", "next week", "trend",
	"going forward", "future",
}

// WantsForecast reports whether a question implies a future projection,
// which gates the refusal-override retry.
func WantsForecast(question string) bool {
	q := strings.ToLower(question)
	for _, kw := range forecastKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

var refusalNegations = []string{
	"not supported", "unsupported", "cannot", "can't", "can not", "unable",
	"no support", "not possible", "do not support", "don't support",
	"not available", "beyond", "outside",
}

func looksLikeForecastRefusal(reason string) bool {
	r := strings.ToLower(reason)
	if !strings.Contains(r, "forecast") && !strings.Contains(r, "predict") && !strings.Contains(r, "project") {
		return false
	}
	for _, neg := range refusalNegations {
		if strings.Contains(r, neg) {
			return true
		}
	}
	return false
}
