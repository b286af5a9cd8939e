package compiler

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/lakeglass/lakeglass/pkg/notation"
	"github.com/lakeglass/lakeglass/pkg/plan"
)

// schemaCatalog is the table and column universe extracted from a rendered
// schema context, used to catch hallucinated references before any SQL
// reaches the store.
type schemaCatalog struct {
	tables  map[string]struct{}
	columns map[string]struct{}
}

// parseSchemaCatalog rebuilds the catalog from the schema document embedded
// in the prompt. A context that does not carry a parseable schema yields
// nil, which disables reference validation rather than failing compilation.
func parseSchemaCatalog(schemaContext string) *schemaCatalog {
	obj, err := notation.ParseAny(schemaContext)
	if err != nil {
		return nil
	}
	cat := &schemaCatalog{
		tables:  make(map[string]struct{}),
		columns: make(map[string]struct{}),
	}
	for _, table := range obj.Objects("tables") {
		name := table.Str("name")
		if name == "" {
			continue
		}
		cat.tables[strings.ToLower(name)] = struct{}{}
		for _, col := range table.Objects("columns") {
			if colName := col.Str("name"); colName != "" {
				cat.columns[strings.ToLower(colName)] = struct{}{}
			}
		}
	}
	if len(cat.tables) == 0 {
		return nil
	}
	return cat
}

// validatePlan checks a feasible plan's table references, and the column
// references of every statement it carries, against the catalog. The
// returned error names the unknown references so it can be fed back as a
// retry hint.
func (cat *schemaCatalog) validatePlan(p *plan.AnalyticalPlan) error {
	if !p.Feasible {
		return nil
	}
	for _, table := range p.Tables {
		if _, ok := cat.tables[strings.ToLower(table)]; !ok {
			return fmt.Errorf("table %q not found; available tables: %s", table, cat.tableList())
		}
	}
	if p.SQL != "" {
		if err := cat.validateColumnRefs(p.SQL); err != nil {
			return err
		}
	}
	for i := range p.Panels {
		if sqlText := p.Panels[i].SQL; sqlText != "" {
			if err := cat.validateColumnRefs(sqlText); err != nil {
				return err
			}
		}
	}
	return nil
}

func (cat *schemaCatalog) tableList() string {
	names := make([]string, 0, len(cat.tables))
	for name := range cat.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// Identifiers appearing in generated SQL that are never schema references.
var sqlVocabulary = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"select", "from", "where", "group", "by", "order", "having",
		"and", "or", "not", "in", "is", "null", "as", "on", "join",
		"left", "right", "inner", "outer", "full", "cross", "limit",
		"offset", "asc", "desc", "distinct", "count", "sum", "avg",
		"min", "max", "case", "when", "then", "else", "end", "like",
		"ilike", "between", "exists", "union", "all", "any", "true",
		"false", "coalesce", "cast", "extract", "date", "time",
		"timestamp", "year", "month", "day", "hour", "minute", "second",
		"interval", "round", "floor", "ceil", "abs", "lower", "upper",
		"trim", "length", "substr", "substring", "concat", "strftime",
		"date_trunc", "now", "current_date", "with", "over", "partition",
		"row_number", "rank", "lag", "lead", "nulls", "first", "last",
		"using", "filter", "varchar", "integer", "bigint", "double",
	} {
		sqlVocabulary[w] = struct{}{}
	}
}

var (
	sqlStringLit  = regexp.MustCompile(`'[^']*'`)
	sqlQuotedID   = regexp.MustCompile(`"[^"]*"`)
	sqlIdentifier = regexp.MustCompile(`\b[a-zA-Z_][a-zA-Z0-9_]*\b`)
)

// validateColumnRefs scans the statement for bare identifiers that are
// neither SQL vocabulary, known columns, known tables, nor short aliases.
// The threshold is deliberately lenient: a few strays are tolerated as
// aliases or functions this list misses, a pile of them means the model
// invented a schema.
func (cat *schemaCatalog) validateColumnRefs(sqlText string) error {
	cleaned := sqlStringLit.ReplaceAllString(sqlText, "")
	cleaned = sqlQuotedID.ReplaceAllString(cleaned, "")

	var unknown []string
	seen := make(map[string]struct{})
	for _, word := range sqlIdentifier.FindAllString(cleaned, -1) {
		lower := strings.ToLower(word)
		if len(word) <= 2 {
			continue
		}
		if _, ok := sqlVocabulary[lower]; ok {
			continue
		}
		if _, ok := cat.columns[lower]; ok {
			continue
		}
		if _, ok := cat.tables[lower]; ok {
			continue
		}
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		unknown = append(unknown, word)
	}
	if len(unknown) > 3 {
		if len(unknown) > 5 {
			unknown = unknown[:5]
		}
		return fmt.Errorf("statement may reference unknown columns: %s", strings.Join(unknown, ", "))
	}
	return nil
}
