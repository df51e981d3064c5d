// Package sqlgen compiles a querymodel.Config into PostgreSQL SELECT text.
//
// Identifiers cannot be bound as placeholders, so every table and column
// name is checked against a strict pattern and double-quoted before it is
// concatenated. Literal values are either emitted as bare numbers or
// single-quote escaped. The compiler is a pure function: it performs no I/O
// and keeps no state between calls.
package sqlgen

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnsafeIdentifier is matched by every UnsafeIdentifierError.
var ErrUnsafeIdentifier = errors.New("unsafe SQL identifier")

// UnsafeIdentifierError names the raw identifier that failed the check.
type UnsafeIdentifierError struct {
	Identifier string
}

func (e *UnsafeIdentifierError) Error() string {
	return "Unsafe SQL identifier: " + e.Identifier
}

// Unwrap returns ErrUnsafeIdentifier.
func (*UnsafeIdentifierError) Unwrap() error {
	return ErrUnsafeIdentifier
}

// safeIdentifier is the only shape allowed into generated SQL.
var safeIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// maxIdentifierSegments allows "table.column" or "schema.table".
const maxIdentifierSegments = 2

// QuoteIdentifier validates a plain or dotted identifier and returns it with
// every segment double-quoted, e.g. users.id becomes "users"."id".
func QuoteIdentifier(name string) (string, error) {
	parts := strings.Split(name, ".")
	if len(parts) > maxIdentifierSegments {
		return "", &UnsafeIdentifierError{Identifier: name}
	}

	quoted := make([]string, len(parts))
	for i, part := range parts {
		if !safeIdentifier.MatchString(part) {
			return "", &UnsafeIdentifierError{Identifier: name}
		}
		quoted[i] = `"` + part + `"`
	}
	return strings.Join(quoted, "."), nil
}

// quoteName quotes a single identifier segment; dots are rejected.
func quoteName(name string) (string, error) {
	if !safeIdentifier.MatchString(name) {
		return "", &UnsafeIdentifierError{Identifier: name}
	}
	return `"` + name + `"`, nil
}

// quoteColumnSelection renders "table"."column" for the SELECT list.
func quoteColumnSelection(table, column string) (string, error) {
	t, err := quoteName(table)
	if err != nil {
		return "", err
	}
	c, err := quoteName(column)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.%s", t, c), nil
}
