// Package profile computes dataset column profiles and renders them into the
// textual schema context the compiler prompt consumes.
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/lakeglass/lakeglass/pkg/store"
)

const (
	// Columns with fewer distinct values than this are treated as
	// categorical dimensions.
	categoricalDistinctMax = 50

	sampleValueLimit = 5

	profilesCacheKey = "profiles"
)

// ColumnProfile describes one column: physical type plus inferred analytical
// roles and a small value sketch.
type ColumnProfile struct {
	Name          string   `json:"name"`
	Dtype         string   `json:"dtype"`
	Nullable      bool     `json:"nullable"`
	IsTimestamp   bool     `json:"isTimestamp"`
	IsMetric      bool     `json:"isMetric"`
	IsEntityID    bool     `json:"isEntityId"`
	IsCategorical bool     `json:"isCategorical"`
	DistinctCount int64    `json:"distinctCount"`
	Samples       []string `json:"samples,omitempty"`
	Min           string   `json:"min,omitempty"`
	Max           string   `json:"max,omitempty"`
}

// TableProfile describes one ingested dataset table.
type TableProfile struct {
	Name     string          `json:"name"`
	RowCount int64           `json:"rowCount"`
	Columns  []ColumnProfile `json:"columns"`
}

// Relationship is an inferred join edge between two tables.
type Relationship struct {
	FromTable   string `json:"fromTable"`
	FromColumn  string `json:"fromColumn"`
	ToTable     string `json:"toTable"`
	ToColumn    string `json:"toColumn"`
	Polymorphic bool   `json:"polymorphic,omitempty"`
}

// Provider profiles the store's tables on demand and caches the results;
// profiling runs one distinct-count and one sample query per column.
type Provider struct {
	log   *slog.Logger
	store *store.Store
	ttl   time.Duration
	cache *ttlcache.Cache[string, []TableProfile]
}

func NewProvider(log *slog.Logger, st *store.Store, ttl time.Duration) *Provider {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, []TableProfile](ttl),
	)
	return &Provider{log: log, store: st, ttl: ttl, cache: cache}
}

// Profiles returns cached table profiles, recomputing them on expiry.
func (p *Provider) Profiles(ctx context.Context) ([]TableProfile, error) {
	if cached := p.cache.Get(profilesCacheKey); cached != nil {
		return cached.Value(), nil
	}
	tables, err := p.store.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	profiles := make([]TableProfile, 0, len(tables))
	for _, table := range tables {
		tp, err := p.profileTable(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("failed to profile table %s: %w", table, err)
		}
		profiles = append(profiles, tp)
	}
	p.cache.Set(profilesCacheKey, profiles, p.ttl)
	return profiles, nil
}

// Invalidate drops cached profiles, forcing the next Profiles call to
// recompute. Called after re-ingestion.
func (p *Provider) Invalidate() {
	p.cache.Delete(profilesCacheKey)
}

func (p *Provider) profileTable(ctx context.Context, table string) (TableProfile, error) {
	tp := TableProfile{Name: table}

	res, err := p.store.Query(ctx, fmt.Sprintf(`SELECT count(*) AS n FROM %s`, quoteIdent(table)))
	if err != nil {
		return tp, err
	}
	if res.RowCount == 1 {
		tp.RowCount = toInt64(res.Rows[0]["n"])
	}

	cols, err := p.store.Query(ctx, fmt.Sprintf(
		`SELECT column_name, data_type, is_nullable FROM information_schema.columns WHERE table_name = '%s' ORDER BY ordinal_position`,
		strings.ReplaceAll(table, "'", "''"),
	))
	if err != nil {
		return tp, err
	}
	for _, row := range cols.Rows {
		col := ColumnProfile{
			Name:     toString(row["column_name"]),
			Dtype:    toString(row["data_type"]),
			Nullable: strings.EqualFold(toString(row["is_nullable"]), "YES"),
		}
		if err := p.sketchColumn(ctx, table, &col, tp.RowCount); err != nil {
			return tp, err
		}
		inferRoles(&col, tp.RowCount)
		tp.Columns = append(tp.Columns, col)
	}
	return tp, nil
}

func (p *Provider) sketchColumn(ctx context.Context, table string, col *ColumnProfile, rowCount int64) error {
	qt, qc := quoteIdent(table), quoteIdent(col.Name)

	res, err := p.store.Query(ctx, fmt.Sprintf(`SELECT count(DISTINCT %s) AS n FROM %s`, qc, qt))
	if err != nil {
		return err
	}
	if res.RowCount == 1 {
		col.DistinctCount = toInt64(res.Rows[0]["n"])
	}

	res, err = p.store.Query(ctx, fmt.Sprintf(
		`SELECT DISTINCT CAST(%s AS VARCHAR) AS v FROM %s WHERE %s IS NOT NULL ORDER BY v LIMIT %d`,
		qc, qt, qc, sampleValueLimit,
	))
	if err != nil {
		return err
	}
	for _, row := range res.Rows {
		col.Samples = append(col.Samples, toString(row["v"]))
	}

	if isNumericDtype(col.Dtype) || isTemporalDtype(col.Dtype) {
		res, err = p.store.Query(ctx, fmt.Sprintf(
			`SELECT CAST(min(%s) AS VARCHAR) AS lo, CAST(max(%s) AS VARCHAR) AS hi FROM %s`,
			qc, qc, qt,
		))
		if err != nil {
			return err
		}
		if res.RowCount == 1 {
			col.Min = toString(res.Rows[0]["lo"])
			col.Max = toString(res.Rows[0]["hi"])
		}
	}
	return nil
}

var datelikeSample = regexp.MustCompile(`^\d{4}-\d{2}(-\d{2})?([ T]|$)`)

func inferRoles(col *ColumnProfile, rowCount int64) {
	name := strings.ToLower(col.Name)

	col.IsEntityID = name == "id" || name == "uuid" || strings.HasSuffix(name, "_id") || strings.HasSuffix(name, "_key")

	col.IsTimestamp = isTemporalDtype(col.Dtype) ||
		strings.HasSuffix(name, "_at") || strings.HasSuffix(name, "_date") ||
		name == "date" || name == "month" || name == "week" || name == "day" || name == "timestamp"
	if !col.IsTimestamp && len(col.Samples) > 0 && datelikeSample.MatchString(col.Samples[0]) {
		col.IsTimestamp = true
	}

	col.IsMetric = isNumericDtype(col.Dtype) && !col.IsEntityID && !col.IsTimestamp

	col.IsCategorical = !col.IsEntityID && !col.IsTimestamp && !col.IsMetric &&
		col.DistinctCount > 0 && col.DistinctCount < categoricalDistinctMax &&
		(rowCount == 0 || col.DistinctCount < rowCount)
}

func isNumericDtype(dtype string) bool {
	d := strings.ToUpper(dtype)
	for _, kind := range []string{"INT", "DECIMAL", "NUMERIC", "FLOAT", "DOUBLE", "REAL", "HUGEINT"} {
		if strings.Contains(d, kind) {
			return true
		}
	}
	return false
}

func isTemporalDtype(dtype string) bool {
	d := strings.ToUpper(dtype)
	return strings.Contains(d, "DATE") || strings.Contains(d, "TIMESTAMP") || strings.Contains(d, "TIME")
}

// Relationships infers join edges: <base>_id columns pointing at a table
// named base or base+"s" that carries an id column, plus polymorphic
// entity_id/entity_type pairs.
func Relationships(profiles []TableProfile) []Relationship {
	hasID := map[string]bool{}
	for _, tp := range profiles {
		for _, col := range tp.Columns {
			if strings.EqualFold(col.Name, "id") {
				hasID[tp.Name] = true
			}
		}
	}

	var rels []Relationship
	for _, tp := range profiles {
		colNames := map[string]bool{}
		for _, col := range tp.Columns {
			colNames[strings.ToLower(col.Name)] = true
		}
		for _, col := range tp.Columns {
			name := strings.ToLower(col.Name)
			if !strings.HasSuffix(name, "_id") || name == "entity_id" {
				continue
			}
			base := strings.TrimSuffix(name, "_id")
			for _, target := range []string{base, base + "s", base + "es"} {
				if target != tp.Name && hasID[target] {
					rels = append(rels, Relationship{
						FromTable:  tp.Name,
						FromColumn: col.Name,
						ToTable:    target,
						ToColumn:   "id",
					})
					break
				}
			}
		}
		if colNames["entity_id"] && colNames["entity_type"] {
			rels = append(rels, Relationship{
				FromTable:   tp.Name,
				FromColumn:  "entity_id",
				ToTable:     "*",
				ToColumn:    "id",
				Polymorphic: true,
			})
		}
	}
	return rels
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case uint64:
		return int64(n)
	}
	return 0
}
