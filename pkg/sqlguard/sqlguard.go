// Package sqlguard is the gate every piece of SQL text passes before it can
// reach a database: SELECT only, no blocked keywords, no statement stacking,
// balanced parentheses and a bounded LIMIT.
//
// The same checks are exposed twice. Validate is the producing-side entry
// point and reports warnings alongside errors. ValidateStatement is the
// consuming-side entry point used immediately before execution; it returns
// the sanitized statement or a *ValidationError and never accepts a verdict
// reached upstream.
package sqlguard

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Row cap bounds. Any requested cap is clamped into [MinRows, MaxRows].
const (
	DefaultMaxRows = 1000
	MinRows        = 1
	MaxRows        = 1000
)

// BlockedKeywords may not appear as whole words anywhere in a statement.
var BlockedKeywords = []string{
	"DROP",
	"DELETE",
	"UPDATE",
	"INSERT",
	"ALTER",
	"TRUNCATE",
	"CREATE",
}

// ErrValidationFailed is the sentinel wrapped by *ValidationError.
var ErrValidationFailed = errors.New("sql validation failed")

var (
	trailingSemicolons = regexp.MustCompile(`;+$`)
	// Unicode spaces (NBSP, line and paragraph separators, BOM) collapse
	// along with ASCII whitespace.
	whitespaceRun   = regexp.MustCompile(`[\s\v\p{Zs}\x{2028}\x{2029}\x{FEFF}]+`)
	limitClause     = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)`)
	blockedPatterns = compileBlocked(BlockedKeywords)
)

func compileBlocked(keywords []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(keywords))
	for i, kw := range keywords {
		out[i] = regexp.MustCompile(`(?i)\b` + kw + `\b`)
	}
	return out
}

// messages holds the wording of each check. The producing and consuming
// sides phrase a few of them differently.
type messages struct {
	empty      string
	notSelect  string
	keyword    string
	stacked    string
	unbalanced string
}

var (
	clientMessages = messages{
		empty:      "Query cannot be empty.",
		notSelect:  "Only SELECT queries are allowed.",
		keyword:    "Dangerous SQL keyword blocked: %s",
		stacked:    "Multiple statements are not allowed.",
		unbalanced: "Unbalanced parentheses in SQL query.",
	}
	serverMessages = messages{
		empty:      "Query cannot be empty.",
		notSelect:  "Only SELECT queries are allowed.",
		keyword:    "Dangerous keyword blocked: %s",
		stacked:    "Multiple SQL statements are not allowed.",
		unbalanced: "Unbalanced parentheses in SQL statement.",
	}
)

// Result is the outcome of Validate.
type Result struct {
	Valid        bool     `json:"valid"`
	Errors       []string `json:"errors"`
	Warnings     []string `json:"warnings"`
	SanitizedSQL string   `json:"sanitizedSql"`
}

// ValidationError carries every reason a statement was rejected.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Reasons, " ")
}

// Unwrap returns ErrValidationFailed.
func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// ClampRows bounds a requested row cap. Zero or negative requests fall back
// to DefaultMaxRows before clamping.
func ClampRows(maxRows int) int {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return min(max(maxRows, MinRows), MaxRows)
}

// Validate checks sql and returns all errors and warnings at once. The
// sanitized text is produced even when the statement is invalid.
func Validate(sql string, maxRows int) Result {
	sanitized, errs, limitApplied := check(sql, ClampRows(maxRows), clientMessages)

	res := Result{
		Valid:        len(errs) == 0,
		Errors:       errs,
		Warnings:     []string{},
		SanitizedSQL: sanitized,
	}
	if res.Errors == nil {
		res.Errors = []string{}
	}
	if limitApplied {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("No LIMIT provided. Applied LIMIT %d automatically.", ClampRows(maxRows)))
	}
	return res
}

// ValidateStatement runs the checks on the consuming side and returns the
// statement that may be executed.
func ValidateStatement(sql string, maxRows int) (string, error) {
	sanitized, errs, _ := check(sql, ClampRows(maxRows), serverMessages)
	if len(errs) > 0 {
		return "", &ValidationError{Reasons: errs}
	}
	return sanitized, nil
}

// check runs every rule against sql. limitApplied reports whether a LIMIT
// clause had to be appended.
func check(sql string, maxRows int, msg messages) (sanitized string, errs []string, limitApplied bool) {
	stmt := trailingSemicolons.ReplaceAllString(strings.TrimSpace(sql), "")
	stmt = strings.TrimSpace(stmt)

	if stmt == "" {
		return stmt, []string{msg.empty}, false
	}

	if !strings.HasPrefix(strings.ToUpper(stmt), "SELECT") {
		errs = append(errs, msg.notSelect)
	}

	for i, re := range blockedPatterns {
		if re.MatchString(stmt) {
			errs = append(errs, fmt.Sprintf(msg.keyword, BlockedKeywords[i]))
		}
	}

	if strings.Contains(stmt, ";") {
		errs = append(errs, msg.stacked)
	}

	if !balancedParens(stmt) {
		errs = append(errs, msg.unbalanced)
	}

	collapsed := whitespaceRun.ReplaceAllString(stmt, " ")
	sanitized, limitApplied = enforceLimit(collapsed, maxRows)
	return sanitized, errs, limitApplied
}

// balancedParens fails as soon as a close appears before its open.
func balancedParens(s string) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// enforceLimit appends LIMIT maxRows when no LIMIT clause is present and
// rewrites the first one in place when it exceeds maxRows.
func enforceLimit(sql string, maxRows int) (string, bool) {
	loc := limitClause.FindStringSubmatchIndex(sql)
	if loc == nil {
		return fmt.Sprintf("%s LIMIT %d", sql, maxRows), true
	}

	n, err := strconv.Atoi(sql[loc[2]:loc[3]])
	if err == nil && n <= maxRows {
		return sql, false
	}
	return sql[:loc[0]] + "LIMIT " + strconv.Itoa(maxRows) + sql[loc[1]:], false
}
