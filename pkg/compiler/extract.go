package compiler

import "strings"

// ExtractSQL pulls a SQL statement out of backend output: a ```sql fence if
// present, otherwise the raw text when it already looks like a statement.
// Returns "" when nothing usable is found.
func ExtractSQL(raw string) string {
	if block := fencedBlock(raw, "sql"); block != "" {
		return cleanSQL(block)
	}
	if block := fencedBlock(raw, ""); block != "" && looksLikeSQL(block) {
		return cleanSQL(block)
	}
	if looksLikeSQL(raw) {
		return cleanSQL(raw)
	}
	// Last resort: take from the first SELECT/WITH keyword at a line start.
	for _, kw := range []string{"SELECT", "WITH"} {
		upper := strings.ToUpper(raw)
		if idx := strings.Index(upper, kw); idx >= 0 && (idx == 0 || upper[idx-1] == '\n') {
			return cleanSQL(raw[idx:])
		}
	}
	return ""
}

// fencedBlock returns the contents of the first ``` fence, optionally
// requiring a language tag.
func fencedBlock(text, lang string) string {
	marker := "```" + lang
	start := strings.Index(text, marker)
	if start == -1 {
		return ""
	}
	rest := text[start+len(marker):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end == -1 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}

func looksLikeSQL(text string) bool {
	upper := strings.ToUpper(strings.TrimSpace(text))
	for _, kw := range []string{"SELECT", "WITH"} {
		if strings.HasPrefix(upper, kw) {
			return true
		}
	}
	return false
}

// cleanSQL normalizes SQL by trimming whitespace and a trailing semicolon.
func cleanSQL(sql string) string {
	sql = strings.TrimSpace(sql)
	sql = strings.TrimSuffix(sql, ";")
	return strings.TrimSpace(sql)
}
