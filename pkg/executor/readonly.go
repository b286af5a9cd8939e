package executor

import (
	"fmt"
	"regexp"
	"strings"
)

// mutationKeywords rejects generated SQL carrying write verbs before it ever
// reaches the store. The store itself is the primary safety mechanism; this
// is defense in depth.
var mutationKeywords = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|REPLACE|MERGE|GRANT|ATTACH)\b`)

// GuardReadOnly returns an error when sqlText contains a mutation keyword at
// a word boundary.
func GuardReadOnly(sqlText string) error {
	if match := mutationKeywords.FindString(sqlText); match != "" {
		return fmt.Errorf("statement rejected: mutation keyword %s is not allowed", strings.ToUpper(match))
	}
	return nil
}

// timeoutPatterns classify resource failures the repair loop must not spend
// repair attempts on. Matching is substring-based against known engine
// wordings; the store maps context deadline expiry onto "statement timed
// out" so this does not depend on driver internals.
var timeoutPatterns = []string{
	"timed out",
	"statement timeout",
	"canceling statement due to statement timeout",
}

// IsTimeout reports whether errText describes a statement timeout.
func IsTimeout(errText string) bool {
	lower := strings.ToLower(errText)
	for _, p := range timeoutPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
