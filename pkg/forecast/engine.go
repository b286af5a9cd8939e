package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/lakeglass/lakeglass/pkg/llm"
	"github.com/lakeglass/lakeglass/pkg/metrics"
	"github.com/lakeglass/lakeglass/pkg/plan"
)

const (
	defaultHorizon     = 6
	defaultTemperature = 0.1
	defaultMaxTokens   = 512
)

// Point is one forecast observation with its uncertainty band.
type Point struct {
	X    string  `json:"x"`
	Y    float64 `json:"y"`
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Result is the full forecast overlay for one panel.
type Result struct {
	Strategy       plan.Strategy `json:"strategy"`
	AutoSelected   bool          `json:"autoSelected"`
	Horizon        int           `json:"horizon"`
	Points         []Point       `json:"points"`
	Format         XFormat       `json:"xFormat"`
	Cadence        CadenceInfo   `json:"cadence"`
	Trend          TrendStats    `json:"trend"`
	Season         Seasonality   `json:"season,omitempty"`
	ResidualStdDev float64       `json:"residualStdDev"`
}

type Config struct {
	Logger *slog.Logger

	// Generator drives auto strategy selection. Nil means selection always
	// takes the deterministic fallback.
	Generator llm.TextGenerator

	Temperature float64
	MaxTokens   int64
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Temperature == 0 {
		c.Temperature = defaultTemperature
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = defaultMaxTokens
	}
	return nil
}

type Engine struct {
	log            *slog.Logger
	gen            llm.TextGenerator
	cfg            Config
	strategyPrompt string
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate forecast config: %w", err)
	}
	prompt, err := loadStrategyPrompt()
	if err != nil {
		return nil, err
	}
	return &Engine{
		log:            cfg.Logger,
		gen:            cfg.Generator,
		cfg:            cfg,
		strategyPrompt: prompt,
	}, nil
}

// Forecast runs the full pipeline for one panel's resolved series: x-format
// classification, cadence and seasonality inference, strategy resolution,
// model fitting, residual-scaled bands, and label projection.
func (e *Engine) Forecast(ctx context.Context, rows []map[string]any, columns []string, xField, yField string, spec *plan.ForecastSpec) (*Result, error) {
	xField, yField, err := ResolveFields(rows, columns, xField, yField)
	if err != nil {
		return nil, err
	}
	points, format, err := BuildSeries(rows, xField, yField)
	if err != nil {
		return nil, err
	}

	values := ys(points)
	cad := InferCadence(points, format)
	trend := ComputeTrend(values)
	season := DetectSeasonality(values, cad)

	strategy := spec.Strategy
	horizon := spec.Horizon
	window := spec.Window
	alpha := spec.Alpha
	seasonLen := spec.SeasonLength
	autoSelected := false

	if strategy == plan.StrategyAuto || strategy == "" {
		sel := e.selectStrategy(ctx, trend, season, cad, points)
		strategy = sel.Strategy
		autoSelected = true
		if horizon == 0 {
			horizon = sel.Horizon
		}
		if window == 0 {
			window = sel.Window
		}
		if alpha == 0 {
			alpha = sel.Alpha
		}
		if seasonLen == 0 {
			seasonLen = sel.SeasonLength
		}
	}
	if horizon <= 0 {
		horizon = defaultHorizon
	}
	if seasonLen == 0 {
		seasonLen = season.Length
	}
	if strategy == plan.StrategySeasonalNaive && (seasonLen < 1 || seasonLen >= len(values)) {
		e.log.Warn("seasonal_naive without a usable season, falling back", "seasonLength", seasonLen, "points", len(values))
		strategy = fallbackStrategy(trend)
	}

	var preds []float64
	switch strategy {
	case plan.StrategyLinear:
		preds = forecastLinear(values, horizon)
	case plan.StrategyDrift:
		preds = forecastDrift(values, horizon)
	case plan.StrategyMovingAverage:
		preds = forecastMovingAverage(values, horizon, window)
	case plan.StrategyExpSmoothing:
		preds = forecastExpSmoothing(values, horizon, alpha)
	case plan.StrategySeasonalNaive:
		preds = forecastSeasonalNaive(values, horizon, seasonLen)
	default:
		return nil, &InputError{Msg: fmt.Sprintf("unknown strategy %q", strategy)}
	}

	residuals := fittedResiduals(string(strategy), values, window, seasonLen, alpha)
	resSD := residualStdDev(residuals, trend.StdDev)
	labels := ProjectLabels(points[len(points)-1], format, cad, horizon)

	out := make([]Point, horizon)
	for i, pred := range preds {
		margin := e.margin(pred, resSD, i, spec)
		out[i] = Point{X: labels[i], Y: pred, Low: pred - margin, High: pred + margin}
	}

	metrics.ForecastsTotal.WithLabelValues(string(strategy)).Inc()
	e.log.Info("forecast computed",
		"strategy", strategy, "autoSelected", autoSelected, "horizon", horizon,
		"cadence", cad.Unit, "step", cad.Step, "r2", trend.R2, "residualStdDev", resSD)

	return &Result{
		Strategy:       strategy,
		AutoSelected:   autoSelected,
		Horizon:        horizon,
		Points:         out,
		Format:         format,
		Cadence:        cad,
		Trend:          trend,
		Season:         season,
		ResidualStdDev: resSD,
	}, nil
}

// margin derives the half-width of the band at horizon index i. An explicit
// intervalPct overrides the residual-based width; otherwise the residual
// stddev is scaled by the confidence multiplier and grows with the square
// root of the horizon distance.
func (e *Engine) margin(pred, resSD float64, i int, spec *plan.ForecastSpec) float64 {
	if spec.IntervalPct > 0 {
		return math.Abs(pred) * spec.IntervalPct
	}
	return confidenceZ(spec.Confidence) * resSD * math.Sqrt(float64(i+1))
}

func confidenceZ(c plan.Confidence) float64 {
	switch c {
	case plan.ConfidenceHigh:
		return 1.96
	case plan.ConfidenceLow:
		return 0.674
	default:
		return 1.28
	}
}
