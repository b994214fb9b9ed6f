package searcher

import (
	"strings"
	"unicode"
)

// BuildFTSQuery compiles free text into an FTS5 MATCH expression. The
// result ORs the exact phrase with the individually quoted terms:
//
//	react hooks  ->  "react hooks" OR ("react" OR "hooks")
//
// A query that already contains double quotes is treated as deliberate
// and matched as one escaped phrase. An empty result means nothing can
// match and no query should run.
func BuildFTSQuery(query string) string {
	q := strings.TrimSpace(query)
	if q == "" {
		return ""
	}

	if strings.Contains(q, `"`) {
		if !hasSearchableRune(q) {
			return ""
		}
		return quote(q)
	}

	var terms []string
	for _, field := range strings.Fields(q) {
		if hasSearchableRune(field) {
			terms = append(terms, quote(field))
		}
	}
	switch len(terms) {
	case 0:
		return ""
	case 1:
		return terms[0]
	}
	return quote(strings.Join(strings.Fields(q), " ")) + " OR (" + strings.Join(terms, " OR ") + ")"
}

// quote wraps s as an FTS5 string, doubling embedded quotes
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// hasSearchableRune reports whether the tokenizer would keep anything of s
func hasSearchableRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
