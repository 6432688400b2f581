package searcher

import "strings"

// booleanOperators are FTS5 operators preserved verbatim when the caller
// writes an explicit boolean query.
var booleanOperators = map[string]bool{
	"AND": true,
	"OR":  true,
	"NOT": true,
}

// PrepareQuery turns free-form user input into an FTS5 MATCH expression.
//
// Terms are double-quoted so characters with FTS5 meaning cannot derail the
// parser. A multi-word query becomes an implicit AND of per-term prefix
// matches. Explicit AND/OR/NOT operators and parenthesized grouping pass
// through with only the bare terms quoted. A query that looks like a file
// path is matched exactly, without the trailing prefix wildcard.
func PrepareQuery(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return `""`
	}

	if isPathPattern(query) {
		return quoteTerm(query)
	}

	tokens := tokenize(query)
	if hasBooleanOperators(tokens) {
		out := make([]string, 0, len(tokens))
		for _, tok := range tokens {
			if booleanOperators[tok] || tok == "(" || tok == ")" {
				out = append(out, tok)
				continue
			}
			out = append(out, quoteTerm(tok))
		}
		return strings.Join(out, " ")
	}

	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if tok == "(" || tok == ")" {
			continue
		}
		terms = append(terms, quoteTerm(tok)+"*")
	}
	return strings.Join(terms, " AND ")
}

// tokenize splits on whitespace and peels parentheses into their own tokens.
func tokenize(query string) []string {
	var tokens []string
	for _, field := range strings.Fields(query) {
		for strings.HasPrefix(field, "(") {
			tokens = append(tokens, "(")
			field = field[1:]
		}
		var trailing int
		for strings.HasSuffix(field, ")") {
			trailing++
			field = field[:len(field)-1]
		}
		if field != "" {
			tokens = append(tokens, field)
		}
		for i := 0; i < trailing; i++ {
			tokens = append(tokens, ")")
		}
	}
	return tokens
}

func hasBooleanOperators(tokens []string) bool {
	for _, tok := range tokens {
		if booleanOperators[tok] {
			return true
		}
	}
	return false
}

// isPathPattern reports whether the query targets a file path rather than
// content terms. Path queries match exactly; a prefix wildcard would turn a
// precise lookup into a sweep.
func isPathPattern(query string) bool {
	if strings.ContainsAny(query, " \t") {
		return false
	}
	return strings.Contains(query, "/")
}

// quoteTerm wraps a term in FTS5 string quotes, doubling embedded quotes.
func quoteTerm(term string) string {
	return `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
}
