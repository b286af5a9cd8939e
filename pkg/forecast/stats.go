package forecast

import "math"

// TrendStats summarizes a series for model selection and interval width.
// The OLS fit regresses y against the index sequence 1..n.
type TrendStats struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	R2        float64 `json:"r2"`
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"stdDev"`
	CoefVar   float64 `json:"coefVar"`
}

// ComputeTrend fits ordinary least squares over (1..n, y).
func ComputeTrend(values []float64) TrendStats {
	n := float64(len(values))
	if len(values) == 0 {
		return TrendStats{}
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i + 1)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	meanX := sumX / n
	meanY := sumY / n

	varX := sumXX - n*meanX*meanX
	slope := 0.0
	if varX != 0 {
		slope = (sumXY - n*meanX*meanY) / varX
	}
	intercept := meanY - slope*meanX

	var ssRes, ssTot, ssDev float64
	for i, y := range values {
		fitted := intercept + slope*float64(i+1)
		ssRes += (y - fitted) * (y - fitted)
		ssTot += (y - meanY) * (y - meanY)
		ssDev += (y - meanY) * (y - meanY)
	}
	r2 := 0.0
	switch {
	case ssTot > 0:
		r2 = 1 - ssRes/ssTot
	case ssRes == 0:
		r2 = 1
	}

	stdDev := 0.0
	if len(values) > 1 {
		stdDev = math.Sqrt(ssDev / (n - 1))
	}
	coefVar := 0.0
	if meanY != 0 {
		coefVar = stdDev / math.Abs(meanY)
	}

	return TrendStats{
		Slope:     slope,
		Intercept: intercept,
		R2:        r2,
		Mean:      meanY,
		StdDev:    stdDev,
		CoefVar:   coefVar,
	}
}

// Seasonality is a detected repeating pattern. The zero value means none.
type Seasonality struct {
	Length   int     `json:"length"`
	Strength float64 `json:"strength"`
}

// DetectSeasonality tries the cadence-appropriate candidate season length
// and scores it with the Pearson correlation between the series and its
// lag-shifted self. A season is only reported when the candidate length is
// strictly shorter than the series.
func DetectSeasonality(values []float64, cad CadenceInfo) Seasonality {
	n := len(values)
	var candidate int
	switch cad.Unit {
	case UnitMonth:
		if n >= 24 {
			candidate = 12
		}
	case UnitWeek:
		if n >= 104 {
			candidate = 52
		} else if n >= 26 {
			candidate = 13
		}
	case UnitDay:
		if n >= 21 {
			candidate = 7
		}
	}
	if candidate == 0 || candidate >= n {
		return Seasonality{}
	}
	strength := pearson(values[candidate:], values[:n-candidate])
	if math.IsNaN(strength) {
		return Seasonality{}
	}
	return Seasonality{Length: candidate, Strength: strength}
}

func pearson(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return math.NaN()
	}
	var meanA, meanB float64
	for i := 0; i < n; i++ {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= float64(n)
	meanB /= float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da, db := a[i]-meanA, b[i]-meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return math.NaN()
	}
	return cov / math.Sqrt(varA*varB)
}

// residualStdDev computes the Bessel-corrected standard deviation of
// one-step-ahead residuals, falling back to the series standard deviation
// when fewer than 2 residuals exist.
func residualStdDev(residuals []float64, seriesStdDev float64) float64 {
	if len(residuals) < 2 {
		return seriesStdDev
	}
	var mean float64
	for _, r := range residuals {
		mean += r
	}
	mean /= float64(len(residuals))
	var ss float64
	for _, r := range residuals {
		ss += (r - mean) * (r - mean)
	}
	return math.Sqrt(ss / float64(len(residuals)-1))
}
