// Package expr implements the symbolic expression engine: whole-token
// identifier extraction, a tokenizer and recursive-descent parser over the
// fixed operator grammar, and a tree-walking evaluator producing affine
// expressions, constraints and objectives.
package expr

import (
	"errors"
	"regexp"
)

// Expression engine errors
var (
	ErrUnresolvedToken = errors.New("expression token does not resolve to a known variable or operator")
	ErrUnknownFunction = errors.New("unknown function")
	ErrSyntax          = errors.New("expression syntax error")
	ErrArity           = errors.New("wrong number of arguments")
	ErrBadOperand      = errors.New("invalid operand")
)

// identifierPattern matches whole identifier tokens only: the \b anchors
// prevent a skip-list entry from eating substrings of longer tokens.
//
//nolint:gochecknoglobals // compiled once, read-only
var identifierPattern = regexp.MustCompile(`\b[a-zA-Z_][a-zA-Z0-9_]*\b`)

// ExtractTokens returns the identifier tokens of an expression in order of
// first appearance, excluding whole-token matches of the skip list and
// duplicates.
func ExtractTokens(expression string, skip []string) []string {
	skipSet := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipSet[s] = true
	}

	matches := identifierPattern.FindAllString(expression, -1)
	out := make([]string, 0, len(matches))
	seen := make(map[string]bool, len(matches))

	for _, token := range matches {
		if skipSet[token] || seen[token] {
			continue
		}
		seen[token] = true
		out = append(out, token)
	}

	return out
}

// ReservedTokens lists every identifier of the fixed grammar: function names
// that can never be variable references.
func ReservedTokens() []string {
	return []string{
		"tran", "diag", "sum", "mult", "shift",
		"pow", "minv", "weib", "annuity",
		"Minimize", "Maximize",
	}
}

// VariableTokens extracts the tokens of an expression that must resolve to
// catalog variables, excluding the reserved grammar identifiers.
func VariableTokens(expression string) []string {
	return ExtractTokens(expression, ReservedTokens())
}
