package forecast

import (
	"math"
	"sort"
)

// CadenceUnit names the regular step between observations.
type CadenceUnit string

const (
	UnitDay     CadenceUnit = "day"
	UnitWeek    CadenceUnit = "week"
	UnitMonth   CadenceUnit = "month"
	UnitQuarter CadenceUnit = "quarter"
	UnitYear    CadenceUnit = "year"
	UnitNumber  CadenceUnit = "number"
	UnitUnknown CadenceUnit = "unknown"
)

// CadenceInfo is derived once per series and drives how far forward each
// forecast step advances on the x axis.
type CadenceInfo struct {
	Unit CadenceUnit `json:"unit"`
	Step int         `json:"step"`
}

// Day-step thresholds for bucketing a date series' median gap.
const (
	yearStepDays    = 300
	quarterStepDays = 80
	monthStepDays   = 27
	weekStepDays    = 6
)

// InferCadence buckets the median step between consecutive sort keys into a
// calendar unit (for date-like series) or a numeric step.
func InferCadence(points []SeriesPoint, format XFormat) CadenceInfo {
	if len(points) < 2 {
		return CadenceInfo{Unit: UnitUnknown, Step: 1}
	}
	deltas := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		deltas = append(deltas, points[i].SortKey-points[i-1].SortKey)
	}
	med := median(deltas)

	switch format {
	case XYearMonth:
		months := int(math.Round(med))
		if months < 1 {
			months = 1
		}
		switch {
		case months%12 == 0:
			return CadenceInfo{Unit: UnitYear, Step: months / 12}
		case months%3 == 0:
			return CadenceInfo{Unit: UnitQuarter, Step: months / 3}
		default:
			return CadenceInfo{Unit: UnitMonth, Step: months}
		}
	case XDate:
		switch {
		case med >= yearStepDays:
			return CadenceInfo{Unit: UnitYear, Step: roundStep(med / 365.25)}
		case med >= quarterStepDays:
			return CadenceInfo{Unit: UnitQuarter, Step: roundStep(med / 91.3)}
		case med >= monthStepDays:
			return CadenceInfo{Unit: UnitMonth, Step: roundStep(med / 30.44)}
		case med >= weekStepDays:
			return CadenceInfo{Unit: UnitWeek, Step: roundStep(med / 7)}
		default:
			return CadenceInfo{Unit: UnitDay, Step: roundStep(med)}
		}
	case XNumber:
		return CadenceInfo{Unit: UnitNumber, Step: roundStep(med)}
	}
	return CadenceInfo{Unit: UnitUnknown, Step: 1}
}

func roundStep(v float64) int {
	step := int(math.Round(v))
	if step < 1 {
		step = 1
	}
	return step
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
