package plan

import (
	"fmt"

	"github.com/lakeglass/lakeglass/pkg/notation"
)

// Decode converts a parsed notation document into an AnalyticalPlan. A
// @refusal document becomes an infeasible plan; a bare @panel document is
// wrapped in a single-panel plan. Feasible plans with nothing to execute are
// a validation error.
func Decode(obj *notation.Object) (*AnalyticalPlan, error) {
	switch obj.Type {
	case notation.TypePlan:
		return decodePlan(obj)
	case notation.TypeRefusal:
		return Refusal(obj.Str("q"), obj.Str("reason"), obj.Strings("suggestedInvestigations")), nil
	case notation.TypePanel:
		panel, err := decodePanel(obj)
		if err != nil {
			return nil, err
		}
		if panel.SQL == "" {
			return nil, &ValidationError{Msg: "standalone panel missing sql"}
		}
		return &AnalyticalPlan{Feasible: true, Panels: []PanelSpec{panel}}, nil
	}
	return nil, &ValidationError{Msg: fmt.Sprintf("document type %q is not a plan", obj.Type)}
}

// DecodeDashboard converts a parsed @dashboard document.
func DecodeDashboard(obj *notation.Object) (*Dashboard, error) {
	if obj.Type != notation.TypeDashboard {
		return nil, &ValidationError{Msg: fmt.Sprintf("document type %q is not a dashboard", obj.Type)}
	}
	d := &Dashboard{Title: obj.Str("title")}
	for _, p := range obj.Objects("panels") {
		panel, err := decodePanel(p)
		if err != nil {
			return nil, err
		}
		if panel.SQL == "" {
			return nil, &ValidationError{Msg: fmt.Sprintf("dashboard panel %q missing sql", panel.Title)}
		}
		d.Panels = append(d.Panels, panel)
	}
	if len(d.Panels) == 0 {
		return nil, &ValidationError{Msg: "dashboard has no panels"}
	}
	return d, nil
}

func decodePlan(obj *notation.Object) (*AnalyticalPlan, error) {
	p := &AnalyticalPlan{
		Question:           obj.Str("q"),
		Feasible:           obj.Bool("feasible"),
		Reason:             obj.Str("reason"),
		Tables:             obj.Strings("tables"),
		SQL:                obj.Str("sql"),
		SuggestedFollowUps: obj.Strings("suggestedInvestigations"),
	}
	for _, v := range obj.Objects("viz") {
		panel, err := decodePanel(v)
		if err != nil {
			return nil, err
		}
		p.Panels = append(p.Panels, panel)
	}
	if p.Feasible && !p.Executable() {
		return nil, &ValidationError{Msg: "feasible plan missing sql"}
	}
	return p, nil
}

func decodePanel(obj *notation.Object) (PanelSpec, error) {
	if obj.Type != notation.TypePanel {
		return PanelSpec{}, &ValidationError{Msg: fmt.Sprintf("expected panel object, got %q", obj.Type)}
	}
	panel := PanelSpec{
		Type:        PanelType(obj.Str("type")),
		Title:       obj.Str("title"),
		Description: obj.Str("description"),
		SQL:         obj.Str("sql"),
		X:           obj.Str("x"),
		Y:           obj.Str("y"),
		Columns:     obj.Strings("columns"),
		Value:       obj.Str("value"),
	}
	if !validPanelType(panel.Type) {
		return PanelSpec{}, &ValidationError{Msg: fmt.Sprintf("panel %q has unknown type %q", panel.Title, panel.Type)}
	}
	if f := obj.Child("forecast"); f != nil {
		spec, err := decodeForecast(f)
		if err != nil {
			return PanelSpec{}, err
		}
		panel.Forecast = spec
	}
	return panel, nil
}

func decodeForecast(obj *notation.Object) (*ForecastSpec, error) {
	spec := &ForecastSpec{
		Strategy:   Strategy(obj.Str("strategy")),
		Confidence: Confidence(obj.Str("confidence")),
	}
	if spec.Strategy == "" {
		spec.Strategy = StrategyAuto
	}
	if !ValidStrategy(spec.Strategy) {
		return nil, &ValidationError{Msg: fmt.Sprintf("unknown forecast strategy %q", spec.Strategy)}
	}
	if h, ok := obj.Int("horizon"); ok {
		spec.Horizon = int(h)
	}
	if w, ok := obj.Int("window"); ok {
		spec.Window = int(w)
	}
	if a, ok := obj.Float("alpha"); ok {
		if a < 0 || a > 1 {
			return nil, &ValidationError{Msg: fmt.Sprintf("forecast alpha %v outside [0,1]", a)}
		}
		spec.Alpha = a
	}
	if s, ok := obj.Int("seasonLength"); ok {
		spec.SeasonLength = int(s)
	}
	if pct, ok := obj.Float("intervalPct"); ok {
		spec.IntervalPct = pct
	}
	return spec, nil
}

// Encode renders the plan back into a notation document, the inverse of
// Decode for every populated field.
func Encode(p *AnalyticalPlan) *notation.Object {
	fields := map[string]any{
		"q":        p.Question,
		"feasible": p.Feasible,
	}
	if p.Reason != "" {
		fields["reason"] = p.Reason
	}
	if len(p.Tables) > 0 {
		fields["tables"] = toAnySlice(p.Tables)
	}
	if p.SQL != "" {
		fields["sql"] = p.SQL
	}
	if len(p.SuggestedFollowUps) > 0 {
		fields["suggestedInvestigations"] = toAnySlice(p.SuggestedFollowUps)
	}
	if len(p.Panels) > 0 {
		viz := make([]any, 0, len(p.Panels))
		for i := range p.Panels {
			viz = append(viz, encodePanel(&p.Panels[i]))
		}
		fields["viz"] = viz
	}
	return &notation.Object{Type: notation.TypePlan, Fields: fields}
}

func encodePanel(panel *PanelSpec) *notation.Object {
	fields := map[string]any{
		"type":  string(panel.Type),
		"title": panel.Title,
	}
	if panel.Description != "" {
		fields["description"] = panel.Description
	}
	if panel.SQL != "" {
		fields["sql"] = panel.SQL
	}
	if panel.X != "" {
		fields["x"] = panel.X
	}
	if panel.Y != "" {
		fields["y"] = panel.Y
	}
	if len(panel.Columns) > 0 {
		fields["columns"] = toAnySlice(panel.Columns)
	}
	if panel.Value != "" {
		fields["value"] = panel.Value
	}
	if panel.Forecast != nil {
		fields["forecast"] = encodeForecast(panel.Forecast)
	}
	return &notation.Object{Type: notation.TypePanel, Fields: fields}
}

func encodeForecast(spec *ForecastSpec) *notation.Object {
	fields := map[string]any{
		"strategy": string(spec.Strategy),
		"horizon":  int64(spec.Horizon),
	}
	if spec.Window > 0 {
		fields["window"] = int64(spec.Window)
	}
	if spec.Alpha > 0 {
		fields["alpha"] = spec.Alpha
	}
	if spec.SeasonLength > 0 {
		fields["seasonLength"] = int64(spec.SeasonLength)
	}
	if spec.Confidence != "" {
		fields["confidence"] = string(spec.Confidence)
	}
	if spec.IntervalPct > 0 {
		fields["intervalPct"] = spec.IntervalPct
	}
	return &notation.Object{Type: "forecast", Fields: fields}
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
