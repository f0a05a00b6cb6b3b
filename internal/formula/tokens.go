package formula

import "regexp"

// Raw source field codes look like B17001_002E or DP4_0125C: one to three
// table prefix letters, optional digits, an underscore, a four-digit field
// number, and an optional suffix letter. Alias names deliberately fall
// outside this shape.
var (
	tokenRE      = regexp.MustCompile(`\b[A-Z]{1,3}[0-9]{0,3}_[0-9]{4}[A-Z]?\b`)
	tokenExactRE = regexp.MustCompile(`^[A-Z]{1,3}[0-9]{0,3}_[0-9]{4}[A-Z]?$`)
)

// ExtractTokens returns every raw field code referenced by an expression,
// deduplicated in order of first appearance. First-seen order decides which
// config row gets blamed first when a field is missing, so it must be
// stable.
func ExtractTokens(expression string) []string {
	matches := tokenRE.FindAllString(expression, -1)
	seen := make(map[string]bool, len(matches))
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		if !seen[m] {
			seen[m] = true
			tokens = append(tokens, m)
		}
	}
	return tokens
}

// IsRawToken reports whether s is exactly one raw field code.
func IsRawToken(s string) bool {
	return tokenExactRE.MatchString(s)
}
