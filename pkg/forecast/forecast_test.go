package forecast_test

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lakeglass/lakeglass/pkg/forecast"
	"github.com/lakeglass/lakeglass/pkg/logger"
	"github.com/lakeglass/lakeglass/pkg/plan"
)

type cannedGenerator struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (g *cannedGenerator) GenerateText(context.Context, string, float64, int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.text, g.err
}

func newEngine(t *testing.T, gen *cannedGenerator) *forecast.Engine {
	t.Helper()
	cfg := forecast.Config{Logger: logger.NewTest()}
	if gen != nil {
		cfg.Generator = gen
	}
	e, err := forecast.New(cfg)
	require.NoError(t, err)
	return e
}

func monthlyRows(n int, f func(i int) float64) []map[string]any {
	rows := make([]map[string]any, n)
	for i := 0; i < n; i++ {
		rows[i] = map[string]any{
			"month": fmt.Sprintf("%04d-%02d", 2022+i/12, i%12+1),
			"value": f(i),
		}
	}
	return rows
}

func TestForecast_CadenceInference(t *testing.T) {
	t.Parallel()

	t.Run("24_yearmonth_points_infer_month_step_1", func(t *testing.T) {
		t.Parallel()

		rows := monthlyRows(24, func(i int) float64 { return float64(i) })
		points, format, err := forecast.BuildSeries(rows, "month", "value")
		require.NoError(t, err)
		require.Equal(t, forecast.XYearMonth, format)

		cad := forecast.InferCadence(points, format)
		require.Equal(t, forecast.UnitMonth, cad.Unit)
		require.Equal(t, 1, cad.Step)
	})

	t.Run("seven_day_gaps_infer_week", func(t *testing.T) {
		t.Parallel()

		dates := []string{"2024-01-01", "2024-01-08", "2024-01-15", "2024-01-22", "2024-01-29", "2024-02-05", "2024-02-12", "2024-02-19", "2024-02-26", "2024-03-04"}
		rows := make([]map[string]any, len(dates))
		for i, d := range dates {
			rows[i] = map[string]any{"day": d, "n": float64(i)}
		}

		points, format, err := forecast.BuildSeries(rows, "day", "n")
		require.NoError(t, err)
		require.Equal(t, forecast.XDate, format)

		cad := forecast.InferCadence(points, format)
		require.Equal(t, forecast.UnitWeek, cad.Unit)
		require.Equal(t, 1, cad.Step)
	})

	t.Run("quarterly_yearmonth_points_infer_quarter", func(t *testing.T) {
		t.Parallel()

		rows := []map[string]any{
			{"month": "2023-01", "v": 1.0},
			{"month": "2023-04", "v": 2.0},
			{"month": "2023-07", "v": 3.0},
			{"month": "2023-10", "v": 4.0},
		}
		points, format, err := forecast.BuildSeries(rows, "month", "v")
		require.NoError(t, err)

		cad := forecast.InferCadence(points, format)
		require.Equal(t, forecast.UnitQuarter, cad.Unit)
		require.Equal(t, 1, cad.Step)
	})

	t.Run("numeric_series_uses_median_delta", func(t *testing.T) {
		t.Parallel()

		rows := []map[string]any{
			{"x": 10.0, "y": 1.0},
			{"x": 20.0, "y": 2.0},
			{"x": 30.0, "y": 3.0},
		}
		points, format, err := forecast.BuildSeries(rows, "x", "y")
		require.NoError(t, err)
		require.Equal(t, forecast.XNumber, format)

		cad := forecast.InferCadence(points, format)
		require.Equal(t, forecast.UnitNumber, cad.Unit)
		require.Equal(t, 10, cad.Step)
	})
}

func TestForecast_Seasonality(t *testing.T) {
	t.Parallel()

	t.Run("monthly_sine_detects_season_12", func(t *testing.T) {
		t.Parallel()

		rows := monthlyRows(36, func(i int) float64 {
			return math.Sin(2 * math.Pi * float64(i) / 12)
		})
		points, format, err := forecast.BuildSeries(rows, "month", "value")
		require.NoError(t, err)
		cad := forecast.InferCadence(points, format)

		values := make([]float64, len(points))
		for i, p := range points {
			values[i] = p.Y
		}
		season := forecast.DetectSeasonality(values, cad)
		require.Equal(t, 12, season.Length)
		require.Greater(t, season.Strength, 0.9)
	})

	t.Run("short_series_reports_no_season", func(t *testing.T) {
		t.Parallel()

		values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
		season := forecast.DetectSeasonality(values, forecast.CadenceInfo{Unit: forecast.UnitMonth, Step: 1})
		require.Zero(t, season.Length)
	})
}

func TestForecast_Strategies(t *testing.T) {
	t.Parallel()

	t.Run("linear_projects_exact_fit_forward", func(t *testing.T) {
		t.Parallel()

		rows := []map[string]any{
			{"month": "2024-01", "revenue": 100.0},
			{"month": "2024-02", "revenue": 110.0},
			{"month": "2024-03", "revenue": 120.0},
		}
		e := newEngine(t, nil)
		res, err := e.Forecast(context.Background(), rows, []string{"month", "revenue"}, "month", "revenue", &plan.ForecastSpec{
			Strategy: plan.StrategyLinear,
			Horizon:  2,
		})
		require.NoError(t, err)
		require.Equal(t, plan.StrategyLinear, res.Strategy)
		require.False(t, res.AutoSelected)
		require.Len(t, res.Points, 2)
		require.InDelta(t, 130, res.Points[0].Y, 1e-9)
		require.InDelta(t, 140, res.Points[1].Y, 1e-9)
		require.Equal(t, "2024-04", res.Points[0].X)
		require.Equal(t, "2024-05", res.Points[1].X)
		// Perfect fit: residuals collapse the band onto the point forecast.
		require.InDelta(t, res.Points[0].Y, res.Points[0].Low, 1e-9)
		require.InDelta(t, res.Points[0].Y, res.Points[0].High, 1e-9)
	})

	t.Run("strategies_are_deterministic", func(t *testing.T) {
		t.Parallel()

		rows := monthlyRows(30, func(i int) float64 {
			return 50 + 3*float64(i) + 10*math.Sin(2*math.Pi*float64(i)/12)
		})
		e := newEngine(t, nil)

		for _, strategy := range []plan.Strategy{
			plan.StrategyLinear,
			plan.StrategyDrift,
			plan.StrategyMovingAverage,
			plan.StrategyExpSmoothing,
			plan.StrategySeasonalNaive,
		} {
			spec := &plan.ForecastSpec{Strategy: strategy, Horizon: 5, SeasonLength: 12, Window: 4, Alpha: 0.3}
			first, err := e.Forecast(context.Background(), rows, []string{"month", "value"}, "month", "value", spec)
			require.NoError(t, err, "strategy %s", strategy)
			second, err := e.Forecast(context.Background(), rows, []string{"month", "value"}, "month", "value", spec)
			require.NoError(t, err, "strategy %s", strategy)
			require.Equal(t, first.Points, second.Points, "strategy %s", strategy)
		}
	})

	t.Run("drift_extrapolates_first_to_last_line", func(t *testing.T) {
		t.Parallel()

		rows := []map[string]any{
			{"x": 1.0, "y": 10.0},
			{"x": 2.0, "y": 30.0},
			{"x": 3.0, "y": 20.0},
			{"x": 4.0, "y": 40.0},
		}
		e := newEngine(t, nil)
		res, err := e.Forecast(context.Background(), rows, []string{"x", "y"}, "x", "y", &plan.ForecastSpec{
			Strategy: plan.StrategyDrift,
			Horizon:  2,
		})
		require.NoError(t, err)
		// slope = (40-10)/3 = 10
		require.InDelta(t, 50, res.Points[0].Y, 1e-9)
		require.InDelta(t, 60, res.Points[1].Y, 1e-9)
		require.Equal(t, "5", res.Points[0].X)
		require.Equal(t, "6", res.Points[1].X)
	})

	t.Run("exp_smoothing_projects_flat", func(t *testing.T) {
		t.Parallel()

		rows := []map[string]any{
			{"x": 1.0, "y": 10.0},
			{"x": 2.0, "y": 20.0},
			{"x": 3.0, "y": 30.0},
		}
		e := newEngine(t, nil)
		res, err := e.Forecast(context.Background(), rows, []string{"x", "y"}, "x", "y", &plan.ForecastSpec{
			Strategy: plan.StrategyExpSmoothing,
			Horizon:  3,
			Alpha:    0.5,
		})
		require.NoError(t, err)
		// level = 0.5*30 + 0.5*(0.5*20 + 0.5*10) = 22.5
		for _, p := range res.Points {
			require.InDelta(t, 22.5, p.Y, 1e-9)
		}
	})

	t.Run("seasonal_naive_cycles_one_season_back", func(t *testing.T) {
		t.Parallel()

		rows := []map[string]any{
			{"x": 1.0, "y": 1.0},
			{"x": 2.0, "y": 2.0},
			{"x": 3.0, "y": 3.0},
			{"x": 4.0, "y": 1.0},
			{"x": 5.0, "y": 2.0},
			{"x": 6.0, "y": 3.0},
		}
		e := newEngine(t, nil)
		res, err := e.Forecast(context.Background(), rows, []string{"x", "y"}, "x", "y", &plan.ForecastSpec{
			Strategy:     plan.StrategySeasonalNaive,
			Horizon:      4,
			SeasonLength: 3,
		})
		require.NoError(t, err)
		require.InDelta(t, 1, res.Points[0].Y, 1e-9)
		require.InDelta(t, 2, res.Points[1].Y, 1e-9)
		require.InDelta(t, 3, res.Points[2].Y, 1e-9)
		require.InDelta(t, 1, res.Points[3].Y, 1e-9)
	})

	t.Run("moving_average_smooths_toward_recent_mean", func(t *testing.T) {
		t.Parallel()

		rows := []map[string]any{
			{"x": 1.0, "y": 10.0},
			{"x": 2.0, "y": 20.0},
			{"x": 3.0, "y": 30.0},
			{"x": 4.0, "y": 40.0},
		}
		e := newEngine(t, nil)
		res, err := e.Forecast(context.Background(), rows, []string{"x", "y"}, "x", "y", &plan.ForecastSpec{
			Strategy: plan.StrategyMovingAverage,
			Horizon:  2,
			Window:   2,
		})
		require.NoError(t, err)
		// step 1: mean(30,40) = 35; step 2: mean(40,35) = 37.5
		require.InDelta(t, 35, res.Points[0].Y, 1e-9)
		require.InDelta(t, 37.5, res.Points[1].Y, 1e-9)
	})
}

func TestForecast_InputErrors(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)

	t.Run("fewer_than_two_points_is_hard_failure", func(t *testing.T) {
		t.Parallel()

		rows := []map[string]any{{"x": "2024-01", "y": 1.0}}
		_, err := e.Forecast(context.Background(), rows, []string{"x", "y"}, "x", "y", &plan.ForecastSpec{Strategy: plan.StrategyLinear, Horizon: 1})
		var inErr *forecast.InputError
		require.ErrorAs(t, err, &inErr)
	})

	t.Run("mixed_x_formats_are_rejected", func(t *testing.T) {
		t.Parallel()

		rows := []map[string]any{
			{"x": "2024-01", "y": 1.0},
			{"x": "not-a-month", "y": 2.0},
		}
		_, err := e.Forecast(context.Background(), rows, []string{"x", "y"}, "x", "y", &plan.ForecastSpec{Strategy: plan.StrategyLinear, Horizon: 1})
		var inErr *forecast.InputError
		require.ErrorAs(t, err, &inErr)
	})

	t.Run("non_numeric_y_is_rejected", func(t *testing.T) {
		t.Parallel()

		rows := []map[string]any{
			{"x": "2024-01", "y": "high"},
			{"x": "2024-02", "y": "low"},
		}
		_, err := e.Forecast(context.Background(), rows, []string{"x", "y"}, "x", "y", &plan.ForecastSpec{Strategy: plan.StrategyLinear, Horizon: 1})
		var inErr *forecast.InputError
		require.ErrorAs(t, err, &inErr)
	})
}

func TestForecast_StringOrdinalFallback(t *testing.T) {
	t.Parallel()

	rows := []map[string]any{
		{"x": "alpha", "y": 10.0},
		{"x": "beta", "y": 20.0},
		{"x": "gamma", "y": 30.0},
	}
	e := newEngine(t, nil)
	res, err := e.Forecast(context.Background(), rows, []string{"x", "y"}, "x", "y", &plan.ForecastSpec{
		Strategy: plan.StrategyDrift,
		Horizon:  2,
	})
	require.NoError(t, err)
	require.Equal(t, forecast.XString, res.Format)
	require.Equal(t, "t+1", res.Points[0].X)
	require.Equal(t, "t+2", res.Points[1].X)
}

func TestForecast_AutoSelection(t *testing.T) {
	t.Parallel()

	linearRows := monthlyRows(12, func(i int) float64 { return 100 + 10*float64(i) })

	t.Run("valid_backend_selection_is_applied", func(t *testing.T) {
		t.Parallel()

		gen := &cannedGenerator{text: `{"strategy":"drift","horizon":4,"window":0,"alpha":0,"season_length":0}`}
		e := newEngine(t, gen)

		res, err := e.Forecast(context.Background(), linearRows, []string{"month", "value"}, "month", "value", &plan.ForecastSpec{Strategy: plan.StrategyAuto})
		require.NoError(t, err)
		require.Equal(t, plan.StrategyDrift, res.Strategy)
		require.True(t, res.AutoSelected)
		require.Equal(t, 4, res.Horizon)
		require.Equal(t, 1, gen.calls)
	})

	t.Run("malformed_selection_falls_back_deterministically", func(t *testing.T) {
		t.Parallel()

		for _, text := range []string{
			"definitely use the best model",
			`{"strategy":"oracle","horizon":4}`,
			`{"strategy":"auto","horizon":4}`,
			`{"strategy":"exp_smoothing","alpha":3.5}`,
		} {
			gen := &cannedGenerator{text: text}
			e := newEngine(t, gen)

			res, err := e.Forecast(context.Background(), linearRows, []string{"month", "value"}, "month", "value", &plan.ForecastSpec{Strategy: plan.StrategyAuto})
			require.NoError(t, err, "response %q", text)
			// Perfectly linear history: the conservative default is linear.
			require.Equal(t, plan.StrategyLinear, res.Strategy, "response %q", text)
		}
	})

	t.Run("nil_generator_uses_fallback_without_calls", func(t *testing.T) {
		t.Parallel()

		e := newEngine(t, nil)
		noisyRows := monthlyRows(12, func(i int) float64 {
			if i%2 == 0 {
				return 100
			}
			return 200
		})
		res, err := e.Forecast(context.Background(), noisyRows, []string{"month", "value"}, "month", "value", &plan.ForecastSpec{Strategy: plan.StrategyAuto})
		require.NoError(t, err)
		require.Equal(t, plan.StrategyMovingAverage, res.Strategy)
	})
}

func TestForecast_Bands(t *testing.T) {
	t.Parallel()

	noisyRows := monthlyRows(12, func(i int) float64 {
		if i%2 == 0 {
			return 100
		}
		return 120
	})
	e := newEngine(t, nil)

	t.Run("bands_widen_with_horizon", func(t *testing.T) {
		t.Parallel()

		res, err := e.Forecast(context.Background(), noisyRows, []string{"month", "value"}, "month", "value", &plan.ForecastSpec{
			Strategy: plan.StrategyMovingAverage,
			Horizon:  3,
		})
		require.NoError(t, err)
		w0 := res.Points[0].High - res.Points[0].Low
		w2 := res.Points[2].High - res.Points[2].Low
		require.Greater(t, w0, 0.0)
		require.Greater(t, w2, w0)
	})

	t.Run("interval_pct_overrides_residual_band", func(t *testing.T) {
		t.Parallel()

		res, err := e.Forecast(context.Background(), noisyRows, []string{"month", "value"}, "month", "value", &plan.ForecastSpec{
			Strategy:    plan.StrategyMovingAverage,
			Horizon:     1,
			IntervalPct: 0.1,
		})
		require.NoError(t, err)
		p := res.Points[0]
		require.InDelta(t, p.Y*0.9, p.Low, 1e-9)
		require.InDelta(t, p.Y*1.1, p.High, 1e-9)
	})

	t.Run("higher_confidence_widens_band", func(t *testing.T) {
		t.Parallel()

		low, err := e.Forecast(context.Background(), noisyRows, []string{"month", "value"}, "month", "value", &plan.ForecastSpec{
			Strategy: plan.StrategyMovingAverage, Horizon: 1, Confidence: plan.ConfidenceLow,
		})
		require.NoError(t, err)
		high, err := e.Forecast(context.Background(), noisyRows, []string{"month", "value"}, "month", "value", &plan.ForecastSpec{
			Strategy: plan.StrategyMovingAverage, Horizon: 1, Confidence: plan.ConfidenceHigh,
		})
		require.NoError(t, err)
		require.Greater(t, high.Points[0].High-high.Points[0].Low, low.Points[0].High-low.Points[0].Low)
	})
}

func TestForecast_SeriesSorting(t *testing.T) {
	t.Parallel()

	rows := []map[string]any{
		{"month": "2024-03", "v": 120.0},
		{"month": "2024-01", "v": 100.0},
		{"month": "2024-02", "v": 110.0},
	}
	points, _, err := forecast.BuildSeries(rows, "month", "v")
	require.NoError(t, err)
	require.Equal(t, "2024-01", points[0].X)
	require.Equal(t, "2024-03", points[2].X)
}
