// Package forecast infers a time series' cadence and seasonality, fits one
// of several candidate models, and emits point forecasts with uncertainty
// bands.
package forecast

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"
)

// XFormat classifies how a series encodes its x axis. Classification is
// per-series from the first point; mixed encodings within one series are an
// upstream data error, not something to reconcile row by row.
type XFormat string

const (
	XYearMonth XFormat = "yearmonth"
	XDate      XFormat = "date"
	XNumber    XFormat = "number"
	XString    XFormat = "string"
)

// SeriesPoint is one normalized observation. Constructed fresh per forecast
// request from query result rows; never persisted.
type SeriesPoint struct {
	X            string
	Y            float64
	SortKey      float64
	ParsedDate   time.Time
	ParsedNumber float64
}

// InputError reports series that cannot be forecast: too few points or an
// unusable x axis. It fails the panel's forecast overlay, never the whole
// plan.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("forecast input: %s", e.Msg)
}

var yearMonthRe = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
}

// BuildSeries normalizes raw (x,y) rows into a sorted series, classifying
// the x format from the first point and parsing every point with it.
func BuildSeries(rows []map[string]any, xField, yField string) ([]SeriesPoint, XFormat, error) {
	if len(rows) < 2 {
		return nil, "", &InputError{Msg: fmt.Sprintf("need at least 2 points, got %d", len(rows))}
	}

	format := classifyX(rows[0][xField])
	points := make([]SeriesPoint, 0, len(rows))
	for i, row := range rows {
		p, err := parsePoint(row[xField], row[yField], format, i)
		if err != nil {
			return nil, "", err
		}
		points = append(points, p)
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].SortKey < points[j].SortKey })
	return points, format, nil
}

// ResolveFields picks the x and y columns for a panel: explicit axis names
// win, otherwise the first column is x and the first numeric-valued other
// column is y.
func ResolveFields(rows []map[string]any, columns []string, xField, yField string) (string, string, error) {
	if len(columns) < 2 {
		return "", "", &InputError{Msg: "series needs at least two columns"}
	}
	if xField == "" {
		xField = columns[0]
	}
	if yField == "" {
		for _, col := range columns {
			if col == xField || len(rows) == 0 {
				continue
			}
			if _, ok := toFloat(rows[0][col]); ok {
				yField = col
				break
			}
		}
		if yField == "" {
			yField = columns[1]
		}
	}
	return xField, yField, nil
}

func classifyX(raw any) XFormat {
	switch v := raw.(type) {
	case time.Time:
		return XDate
	case int, int32, int64, float32, float64:
		return XNumber
	case string:
		if yearMonthRe.MatchString(v) {
			return XYearMonth
		}
		for _, layout := range dateLayouts {
			if _, err := time.Parse(layout, v); err == nil {
				return XDate
			}
		}
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			return XNumber
		}
	}
	return XString
}

func parsePoint(rawX, rawY any, format XFormat, index int) (SeriesPoint, error) {
	y, ok := toFloat(rawY)
	if !ok {
		return SeriesPoint{}, &InputError{Msg: fmt.Sprintf("y value %v at row %d is not numeric", rawY, index)}
	}
	p := SeriesPoint{X: stringifyX(rawX), Y: y}

	switch format {
	case XYearMonth:
		if !yearMonthRe.MatchString(p.X) {
			return SeriesPoint{}, &InputError{Msg: fmt.Sprintf("x value %q at row %d does not match the series YYYY-MM format", p.X, index)}
		}
		t, err := time.Parse("2006-01", p.X)
		if err != nil {
			return SeriesPoint{}, &InputError{Msg: fmt.Sprintf("x value %q at row %d: %v", p.X, index, err)}
		}
		p.ParsedDate = t
		p.SortKey = float64(t.Year()*12 + int(t.Month()) - 1)
	case XDate:
		t, ok := parseDate(rawX, p.X)
		if !ok {
			return SeriesPoint{}, &InputError{Msg: fmt.Sprintf("x value %q at row %d is not a date", p.X, index)}
		}
		p.ParsedDate = t
		p.SortKey = float64(t.Unix()) / 86400.0
	case XNumber:
		n, ok := toFloat(rawX)
		if !ok {
			return SeriesPoint{}, &InputError{Msg: fmt.Sprintf("x value %q at row %d is not numeric", p.X, index)}
		}
		p.ParsedNumber = n
		p.SortKey = n
	case XString:
		p.SortKey = float64(index)
	}
	return p, nil
}

func parseDate(raw any, s string) (time.Time, bool) {
	if t, ok := raw.(time.Time); ok {
		return t, true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func stringifyX(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case time.Time:
		return v.Format("2006-01-02")
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func ys(points []SeriesPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Y
	}
	return out
}
