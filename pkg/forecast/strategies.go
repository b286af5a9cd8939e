package forecast

// Model strategies are pure functions from (history, horizon, params) to
// future point values. No hidden randomness: identical input produces
// bit-identical output.

const (
	defaultWindow = 3
	defaultAlpha  = 0.3
)

func forecastLinear(values []float64, horizon int) []float64 {
	st := ComputeTrend(values)
	n := len(values)
	out := make([]float64, horizon)
	for i := 0; i < horizon; i++ {
		out[i] = st.Intercept + st.Slope*float64(n+1+i)
	}
	return out
}

// forecastDrift extrapolates the straight line through the first and last
// observed point.
func forecastDrift(values []float64, horizon int) []float64 {
	n := len(values)
	slope := 0.0
	if n > 1 {
		slope = (values[n-1] - values[0]) / float64(n-1)
	}
	out := make([]float64, horizon)
	for i := 0; i < horizon; i++ {
		out[i] = values[n-1] + slope*float64(i+1)
	}
	return out
}

// forecastMovingAverage iteratively averages the trailing window, appending
// each average as the next observation so forecasts smooth toward the recent
// mean.
func forecastMovingAverage(values []float64, horizon, window int) []float64 {
	window = clampWindow(window, len(values))
	work := make([]float64, len(values), len(values)+horizon)
	copy(work, values)
	out := make([]float64, horizon)
	for i := 0; i < horizon; i++ {
		avg := mean(work[len(work)-window:])
		out[i] = avg
		work = append(work, avg)
	}
	return out
}

// forecastExpSmoothing projects the final smoothed level flat across the
// horizon.
func forecastExpSmoothing(values []float64, horizon int, alpha float64) []float64 {
	if alpha <= 0 || alpha > 1 {
		alpha = defaultAlpha
	}
	level := values[0]
	for _, y := range values[1:] {
		level = alpha*y + (1-alpha)*level
	}
	out := make([]float64, horizon)
	for i := range out {
		out[i] = level
	}
	return out
}

// forecastSeasonalNaive repeats the value observed exactly one season back,
// cycling for horizons beyond one season.
func forecastSeasonalNaive(values []float64, horizon, season int) []float64 {
	n := len(values)
	if season < 1 || season > n {
		season = clampWindow(season, n)
	}
	out := make([]float64, horizon)
	for i := 0; i < horizon; i++ {
		out[i] = values[n-season+(i%season)]
	}
	return out
}

// fittedResiduals re-derives each strategy's one-step-ahead fitted value
// across the history and diffs it against the actual.
func fittedResiduals(strategy string, values []float64, window, season int, alpha float64) []float64 {
	n := len(values)
	var residuals []float64
	switch strategy {
	case "linear":
		st := ComputeTrend(values)
		for i, y := range values {
			residuals = append(residuals, y-(st.Intercept+st.Slope*float64(i+1)))
		}
	case "drift":
		slope := 0.0
		if n > 1 {
			slope = (values[n-1] - values[0]) / float64(n-1)
		}
		for i, y := range values {
			residuals = append(residuals, y-(values[0]+slope*float64(i)))
		}
	case "moving_average":
		window = clampWindow(window, n)
		for i := 1; i < n; i++ {
			lo := i - window
			if lo < 0 {
				lo = 0
			}
			residuals = append(residuals, values[i]-mean(values[lo:i]))
		}
	case "exp_smoothing":
		if alpha <= 0 || alpha > 1 {
			alpha = defaultAlpha
		}
		level := values[0]
		for i := 1; i < n; i++ {
			residuals = append(residuals, values[i]-level)
			level = alpha*values[i] + (1-alpha)*level
		}
	case "seasonal_naive":
		if season >= 1 && season < n {
			for i := season; i < n; i++ {
				residuals = append(residuals, values[i]-values[i-season])
			}
		}
	}
	return residuals
}

func clampWindow(window, n int) int {
	if window < 2 {
		window = defaultWindow
	}
	if window > n {
		window = n
	}
	if window < 2 {
		window = 2
	}
	return window
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
