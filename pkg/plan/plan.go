// Package plan defines the analytical plan produced by compilation: what to
// query, how to visualize it, and optionally how to project it forward.
package plan

import "fmt"

// PanelType enumerates the visualization intents a plan may carry.
type PanelType string

const (
	PanelBar       PanelType = "bar"
	PanelLine      PanelType = "line"
	PanelStat      PanelType = "stat"
	PanelTable     PanelType = "table"
	PanelPie       PanelType = "pie"
	PanelGauge     PanelType = "gauge"
	PanelHeatmap   PanelType = "heatmap"
	PanelHistogram PanelType = "histogram"
	PanelInsight   PanelType = "insight"
)

func validPanelType(t PanelType) bool {
	switch t {
	case PanelBar, PanelLine, PanelStat, PanelTable, PanelPie, PanelGauge, PanelHeatmap, PanelHistogram, PanelInsight:
		return true
	}
	return false
}

// Strategy enumerates forecast model choices.
type Strategy string

const (
	StrategyAuto          Strategy = "auto"
	StrategyLinear        Strategy = "linear"
	StrategyDrift         Strategy = "drift"
	StrategyMovingAverage Strategy = "moving_average"
	StrategyExpSmoothing  Strategy = "exp_smoothing"
	StrategySeasonalNaive Strategy = "seasonal_naive"
)

// ValidStrategy reports whether s names a concrete or auto strategy.
func ValidStrategy(s Strategy) bool {
	switch s {
	case StrategyAuto, StrategyLinear, StrategyDrift, StrategyMovingAverage, StrategyExpSmoothing, StrategySeasonalNaive:
		return true
	}
	return false
}

// Confidence selects the forecast interval width.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ForecastSpec describes how a panel's series should be projected forward.
// Zero-valued optional fields (Window, Alpha, SeasonLength, IntervalPct) mean
// "unset"; the forecasting engine resolves defaults.
type ForecastSpec struct {
	Strategy     Strategy   `json:"strategy"`
	Horizon      int        `json:"horizon"`
	Window       int        `json:"window,omitempty"`
	Alpha        float64    `json:"alpha,omitempty"`
	SeasonLength int        `json:"seasonLength,omitempty"`
	Confidence   Confidence `json:"confidence,omitempty"`
	IntervalPct  float64    `json:"intervalPct,omitempty"`
}

// PanelSpec is one visualization in a plan.
type PanelSpec struct {
	Type        PanelType     `json:"type"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	SQL         string        `json:"sql,omitempty"`
	X           string        `json:"x,omitempty"`
	Y           string        `json:"y,omitempty"`
	Columns     []string      `json:"columns,omitempty"`
	Value       string        `json:"value,omitempty"`
	Forecast    *ForecastSpec `json:"forecast,omitempty"`
}

// AnalyticalPlan is the compilation output. It is immutable once returned
// except for splicing in repaired SQL or an executive summary after
// execution.
type AnalyticalPlan struct {
	Question           string      `json:"question"`
	Feasible           bool        `json:"feasible"`
	Reason             string      `json:"reason,omitempty"`
	Tables             []string    `json:"tables,omitempty"`
	SQL                string      `json:"sql,omitempty"`
	Panels             []PanelSpec `json:"panels,omitempty"`
	SuggestedFollowUps []string    `json:"suggestedFollowUps,omitempty"`
	ExecutiveSummary   string      `json:"executiveSummary,omitempty"`
}

// Executable reports whether the plan carries anything to run: a top-level
// SQL statement or at least one panel with its own.
func (p *AnalyticalPlan) Executable() bool {
	if p.SQL != "" {
		return true
	}
	for _, panel := range p.Panels {
		if panel.SQL != "" {
			return true
		}
	}
	return false
}

// Dashboard is a compiled overview: a titled set of panels with no single
// driving question.
type Dashboard struct {
	Title  string      `json:"title"`
	Panels []PanelSpec `json:"panels"`
}

// Refusal builds a well-formed infeasible plan. Compilation failures resolve
// to this rather than an error.
func Refusal(question, reason string, followUps []string) *AnalyticalPlan {
	return &AnalyticalPlan{
		Question:           question,
		Feasible:           false,
		Reason:             reason,
		SuggestedFollowUps: followUps,
	}
}

// ValidationError reports a structurally parseable document whose content
// violates a plan invariant, for example a feasible plan with no SQL.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("plan: %s", e.Msg)
}
