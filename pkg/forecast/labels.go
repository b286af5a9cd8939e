package forecast

import (
	"fmt"
	"strconv"
)

func unitMonths(unit CadenceUnit) int {
	switch unit {
	case UnitQuarter:
		return 3
	case UnitYear:
		return 12
	}
	return 1
}

// ProjectLabels generates future x-axis labels by advancing the last
// observed point one cadence step per horizon index, preserving the input
// series' x format.
func ProjectLabels(last SeriesPoint, format XFormat, cad CadenceInfo, horizon int) []string {
	labels := make([]string, horizon)
	for i := 1; i <= horizon; i++ {
		switch format {
		case XYearMonth:
			next := last.ParsedDate.AddDate(0, cad.Step*unitMonths(cad.Unit)*i, 0)
			labels[i-1] = next.Format("2006-01")
		case XDate:
			var next = last.ParsedDate
			switch cad.Unit {
			case UnitDay:
				next = next.AddDate(0, 0, cad.Step*i)
			case UnitWeek:
				next = next.AddDate(0, 0, 7*cad.Step*i)
			default:
				next = next.AddDate(0, cad.Step*unitMonths(cad.Unit)*i, 0)
			}
			labels[i-1] = next.Format("2006-01-02")
		case XNumber:
			labels[i-1] = formatNumber(last.ParsedNumber + float64(cad.Step*i))
		default:
			labels[i-1] = fmt.Sprintf("t+%d", i)
		}
	}
	return labels
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
