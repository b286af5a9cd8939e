package profile

import (
	"context"

	"github.com/lakeglass/lakeglass/pkg/notation"
)

// SchemaContext renders table profiles into the notation-formatted schema
// description embedded in compiler prompts. Keeping the schema in the same
// notation the model must emit reinforces the output format.
func SchemaContext(profiles []TableProfile) string {
	tables := make([]any, 0, len(profiles))
	for i := range profiles {
		tables = append(tables, encodeTable(&profiles[i]))
	}
	fields := map[string]any{"tables": tables}
	if rels := Relationships(profiles); len(rels) > 0 {
		encoded := make([]any, 0, len(rels))
		for _, rel := range rels {
			encoded = append(encoded, encodeRelationship(rel))
		}
		fields["relationships"] = encoded
	}
	return notation.Serialize(&notation.Object{Type: "schemas", Fields: fields})
}

// Context profiles the store and renders the schema context in one step.
func (p *Provider) Context(ctx context.Context) (string, error) {
	profiles, err := p.Profiles(ctx)
	if err != nil {
		return "", err
	}
	return SchemaContext(profiles), nil
}

func encodeTable(tp *TableProfile) *notation.Object {
	cols := make([]any, 0, len(tp.Columns))
	var timeCols, metricCols, categoryCols []any
	for i := range tp.Columns {
		col := &tp.Columns[i]
		cols = append(cols, encodeColumn(col))
		switch {
		case col.IsTimestamp:
			timeCols = append(timeCols, col.Name)
		case col.IsMetric:
			metricCols = append(metricCols, col.Name)
		case col.IsCategorical:
			categoryCols = append(categoryCols, col.Name)
		}
	}
	fields := map[string]any{
		"name":    tp.Name,
		"rows":    tp.RowCount,
		"columns": cols,
	}
	if len(timeCols) > 0 {
		fields["timeColumns"] = timeCols
	}
	if len(metricCols) > 0 {
		fields["metricColumns"] = metricCols
	}
	if len(categoryCols) > 0 {
		fields["categoryColumns"] = categoryCols
	}
	return &notation.Object{Type: "table", Fields: fields}
}

func encodeColumn(col *ColumnProfile) *notation.Object {
	fields := map[string]any{
		"name": col.Name,
		"type": col.Dtype,
	}
	if col.Nullable {
		fields["nullable"] = true
	}
	var roles []any
	if col.IsTimestamp {
		roles = append(roles, "timestamp")
	}
	if col.IsMetric {
		roles = append(roles, "metric")
	}
	if col.IsEntityID {
		roles = append(roles, "entity_id")
	}
	if col.IsCategorical {
		roles = append(roles, "categorical")
	}
	if len(roles) > 0 {
		fields["roles"] = roles
	}
	if col.DistinctCount > 0 {
		fields["distinct"] = col.DistinctCount
	}
	if len(col.Samples) > 0 {
		samples := make([]any, 0, len(col.Samples))
		for _, s := range col.Samples {
			samples = append(samples, s)
		}
		fields["samples"] = samples
	}
	if col.Min != "" || col.Max != "" {
		fields["min"] = col.Min
		fields["max"] = col.Max
	}
	return &notation.Object{Type: "col", Fields: fields}
}

func encodeRelationship(rel Relationship) *notation.Object {
	fields := map[string]any{
		"from": rel.FromTable + "." + rel.FromColumn,
		"to":   rel.ToTable + "." + rel.ToColumn,
	}
	if rel.Polymorphic {
		fields["polymorphic"] = true
	}
	return &notation.Object{Type: "rel", Fields: fields}
}
