package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lakeglass/lakeglass/pkg/forecast/prompts"
	"github.com/lakeglass/lakeglass/pkg/plan"
)

// selection is the decoded strategy-selection response. The backend's output
// is untyped at the boundary; decodeSelection models it as a tagged union
// with an explicit invalid variant so the deterministic fallback is a branch,
// not an exception handler.
type selection struct {
	Strategy     plan.Strategy `json:"strategy"`
	Horizon      int           `json:"horizon"`
	Window       int           `json:"window"`
	Alpha        float64       `json:"alpha"`
	SeasonLength int           `json:"season_length"`
}

func (e *Engine) selectStrategy(ctx context.Context, trend TrendStats, season Seasonality, cad CadenceInfo, tail []SeriesPoint) selection {
	fallback := selection{Strategy: fallbackStrategy(trend)}
	if e.gen == nil {
		return fallback
	}

	prompt := strings.ReplaceAll(e.strategyPrompt, "{{STATS}}", renderStats(trend, season, cad))
	prompt = strings.ReplaceAll(prompt, "{{TAIL}}", renderTail(tail))

	raw, err := e.gen.GenerateText(ctx, prompt, e.cfg.Temperature, e.cfg.MaxTokens)
	if err != nil {
		e.log.Warn("strategy selection call failed, using fallback", "error", err, "fallback", fallback.Strategy)
		return fallback
	}
	sel, ok := decodeSelection(raw)
	if !ok {
		e.log.Warn("strategy selection response invalid, using fallback", "fallback", fallback.Strategy)
		return fallback
	}
	return sel
}

// fallbackStrategy is the deterministic default when selection is
// unavailable or invalid: follow the trend when it explains the series,
// otherwise smooth.
func fallbackStrategy(trend TrendStats) plan.Strategy {
	if trend.R2 >= 0.5 {
		return plan.StrategyLinear
	}
	return plan.StrategyMovingAverage
}

// decodeSelection parses the response and validates every field. Any
// out-of-enum strategy or out-of-range parameter makes the whole response
// invalid.
func decodeSelection(raw string) (selection, bool) {
	payload := extractJSON(raw)
	if payload == "" {
		return selection{}, false
	}
	var sel selection
	if err := json.Unmarshal([]byte(payload), &sel); err != nil {
		return selection{}, false
	}
	if sel.Strategy == plan.StrategyAuto || !plan.ValidStrategy(sel.Strategy) {
		return selection{}, false
	}
	if sel.Horizon < 0 || sel.Window < 0 || sel.SeasonLength < 0 {
		return selection{}, false
	}
	if sel.Alpha < 0 || sel.Alpha > 1 {
		return selection{}, false
	}
	return sel, true
}

func renderStats(trend TrendStats, season Seasonality, cad CadenceInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "cadence: %s (step %d)\n", cad.Unit, cad.Step)
	fmt.Fprintf(&b, "slope: %.6g\nintercept: %.6g\nr2: %.4f\n", trend.Slope, trend.Intercept, trend.R2)
	fmt.Fprintf(&b, "mean: %.6g\nstddev: %.6g\ncoefficient_of_variation: %.4f\n", trend.Mean, trend.StdDev, trend.CoefVar)
	if season.Length > 0 {
		fmt.Fprintf(&b, "season_length: %d\nseason_strength: %.4f\n", season.Length, season.Strength)
	} else {
		b.WriteString("season_length: none\n")
	}
	return b.String()
}

const tailSampleSize = 12

func renderTail(points []SeriesPoint) string {
	start := 0
	if len(points) > tailSampleSize {
		start = len(points) - tailSampleSize
	}
	var b strings.Builder
	for _, p := range points[start:] {
		fmt.Fprintf(&b, "%s: %.6g\n", p.X, p.Y)
	}
	return b.String()
}

// extractJSON pulls a JSON object out of backend output: a ```json fence if
// present, otherwise the first balanced brace span.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	if start := strings.Index(response, "```json"); start != -1 {
		start += 7
		if end := strings.Index(response[start:], "```"); end != -1 {
			return strings.TrimSpace(response[start : start+end])
		}
	}
	if start := strings.Index(response, "{"); start != -1 {
		return extractJSONObject(response, start)
	}
	return ""
}

// extractJSONObject extracts a complete JSON object starting at the given
// position, handling strings that may contain braces.
func extractJSONObject(s string, start int) string {
	if start >= len(s) || s[start] != '{' {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func loadStrategyPrompt() (string, error) {
	data, err := prompts.PromptsFS.ReadFile("STRATEGY.md")
	if err != nil {
		return "", fmt.Errorf("failed to read STRATEGY prompt: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
