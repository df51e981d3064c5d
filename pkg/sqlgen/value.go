package sqlgen

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/txn2/mcp-query-builder/pkg/querymodel"
)

// numericLiteral accepts plain decimal numbers with an optional exponent.
// Hex, infinity and NaN spellings are deliberately not numbers here.
var numericLiteral = regexp.MustCompile(`^[+-]?(?:\d+(?:\.\d*)?|\.\d+)(?:[eE][+-]?\d+)?$`)

// isNumeric reports whether v can be emitted unquoted.
func isNumeric(v string) bool {
	if !numericLiteral.MatchString(v) {
		return false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return false
	}
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

// escapeString doubles every single quote.
func escapeString(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

// formatLiteral renders one token as a bare number or a quoted string.
func formatLiteral(v string) string {
	if isNumeric(v) {
		return v
	}
	return "'" + escapeString(v) + "'"
}

// FormatConditionValue renders the right-hand side of a condition.
//
// Null tests have no value and return "". IN splits the raw value on commas,
// trims and drops empty tokens, and renders "(a, b, ...)", or "" when no
// token survives. Every other operator treats the whole value as one
// literal; an empty value renders as an empty quoted string.
func FormatConditionValue(cond querymodel.Condition) string {
	raw := cond.RawValue()

	if cond.Operator.IsNullTest() {
		return ""
	}

	if cond.Operator == querymodel.OpIn {
		tokens := strings.Split(raw, ",")
		parts := make([]string, 0, len(tokens))
		for _, tok := range tokens {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			parts = append(parts, formatLiteral(tok))
		}
		if len(parts) == 0 {
			return ""
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}

	return formatLiteral(raw)
}
