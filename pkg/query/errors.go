package query

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strings"

	"github.com/lib/pq"
)

// ErrExecutionFailed is the sentinel matched by every *ExecutionError.
var ErrExecutionFailed = errors.New("execution failed")

// Category classifies an execution failure.
type Category string

// Execution failure categories.
const (
	CategoryCredentials Category = "credentials"
	CategoryTimeout     Category = "timeout"
	CategorySyntax      Category = "syntax"
	CategoryPermission  Category = "permission"
	CategoryConnection  Category = "connection"
	CategoryUnknown     Category = "unknown"
)

// Safe messages shown to users for each category.
const (
	MsgCredentials = "Invalid credentials. Could not connect to database."
	MsgTimeout     = "Query took too long (>30s). Try adding more filters."
	MsgPermission  = "User doesn't have permission to access this table."
	MsgConnection  = "Could not connect. Check your credentials."
	MsgUnknown     = "Query execution failed."
	syntaxPrefix   = "Invalid query: "
)

// ExecutionError is a driver failure reduced to a user-safe message. Only
// syntax errors carry driver text in Message; Err keeps the original for
// logging.
type ExecutionError struct {
	Category Category
	Message  string
	Err      error
}

func (e *ExecutionError) Error() string {
	return e.Message
}

// Unwrap exposes both ErrExecutionFailed and the original error.
func (e *ExecutionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrExecutionFailed}
	}
	return []error{ErrExecutionFailed, e.Err}
}

var (
	credentialsPattern = regexp.MustCompile(`(?i)password authentication failed|invalid password`)
	timeoutPattern     = regexp.MustCompile(`(?i)timeout|canceling statement`)
	syntaxPattern      = regexp.MustCompile(`(?i)syntax error`)
	permissionPattern  = regexp.MustCompile(`(?i)permission denied`)
	connectionPattern  = regexp.MustCompile(`(?i)ECONNREFUSED|ENOTFOUND|connection refused|no such host|connect`)
)

// MapError classifies err into one of the fixed categories. It returns nil
// for a nil error and err itself when it is already an *ExecutionError.
func MapError(err error) *ExecutionError {
	if err == nil {
		return nil
	}

	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return newExecutionError(CategoryTimeout, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if c, ok := categoryForCode(pqErr.Code); ok {
			e := newExecutionError(c, err)
			if c == CategorySyntax {
				e.Message = syntaxPrefix + pqErr.Message
			}
			return e
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return newExecutionError(CategoryConnection, err)
	}

	msg := err.Error()
	switch {
	case credentialsPattern.MatchString(msg):
		return newExecutionError(CategoryCredentials, err)
	case timeoutPattern.MatchString(msg):
		return newExecutionError(CategoryTimeout, err)
	case syntaxPattern.MatchString(msg):
		e := newExecutionError(CategorySyntax, err)
		e.Message = syntaxPrefix + strings.TrimPrefix(msg, "pq: ")
		return e
	case permissionPattern.MatchString(msg):
		return newExecutionError(CategoryPermission, err)
	case connectionPattern.MatchString(msg):
		return newExecutionError(CategoryConnection, err)
	}
	return newExecutionError(CategoryUnknown, err)
}

// categoryForCode maps a PostgreSQL SQLSTATE onto a category. Class 42
// other than insufficient_privilege is reported as a syntax error so the
// user sees what to fix.
func categoryForCode(code pq.ErrorCode) (Category, bool) {
	switch code {
	case "28P01", "28000":
		return CategoryCredentials, true
	case "57014":
		return CategoryTimeout, true
	case "42501":
		return CategoryPermission, true
	}
	switch code.Class() {
	case "42":
		return CategorySyntax, true
	case "08":
		return CategoryConnection, true
	}
	return "", false
}

func newExecutionError(c Category, err error) *ExecutionError {
	return &ExecutionError{Category: c, Message: messageFor(c), Err: err}
}

func messageFor(c Category) string {
	switch c {
	case CategoryCredentials:
		return MsgCredentials
	case CategoryTimeout:
		return MsgTimeout
	case CategoryPermission:
		return MsgPermission
	case CategoryConnection:
		return MsgConnection
	default:
		return MsgUnknown
	}
}
