package querymodel

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is returned when a config holds an unsupported keyword.
var ErrInvalidConfig = errors.New("invalid query config")

// IsNullTest reports whether the operator takes no value.
func (o Operator) IsNullTest() bool {
	return o == OpIsNull || o == OpIsNotNull
}

// Valid reports whether o is a supported operator.
func (o Operator) Valid() bool {
	switch o {
	case OpEqual, OpNotEqual, OpGreater, OpLess, OpGreaterEqual, OpLessEqual,
		OpLike, OpIn, OpIsNull, OpIsNotNull:
		return true
	}
	return false
}

// Valid reports whether c is AND or OR.
func (c Connector) Valid() bool {
	return c == ConnectorAnd || c == ConnectorOr
}

// Valid reports whether j is a supported join type.
func (j JoinType) Valid() bool {
	return j == InnerJoin || j == LeftJoin || j == RightJoin
}

// Valid reports whether d is ASC or DESC.
func (d Direction) Valid() bool {
	return d == Asc || d == Desc
}

// Validate checks that every enumerated field holds a supported keyword.
// These keywords are emitted into SQL verbatim, so anything else is
// rejected. Entries the compiler skips as incomplete (no column, or a join
// missing its table or columns, or HAVING without GROUP BY) are not
// checked. Identifier safety is
// enforced by the compiler, not here. All problems are reported together.
func (c Config) Validate() error {
	var errs []string

	errs = append(errs, validateConditions("whereConditions", c.WhereConditions)...)
	if len(c.GroupBy) > 0 {
		errs = append(errs, validateConditions("havingConditions", c.HavingConditions)...)
	}

	for i, j := range c.Joins {
		if j.Table == "" || j.LeftColumn == "" || j.RightColumn == "" {
			continue
		}
		if !j.JoinType.Valid() {
			errs = append(errs, fmt.Sprintf("joins[%d]: unsupported join type %q", i, j.JoinType))
		}
	}
	for i, o := range c.OrderBy {
		if o.Column != "" && !o.Direction.Valid() {
			errs = append(errs, fmt.Sprintf("orderBy[%d]: unsupported direction %q", i, o.Direction))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

func validateConditions(field string, conds []Condition) []string {
	var errs []string
	for i, cond := range conds {
		if cond.Column == "" {
			continue
		}
		if !cond.Operator.Valid() {
			errs = append(errs, fmt.Sprintf("%s[%d]: unsupported operator %q", field, i, cond.Operator))
		}
		if cond.Connector != "" && !cond.Connector.Valid() {
			errs = append(errs, fmt.Sprintf("%s[%d]: unsupported connector %q", field, i, cond.Connector))
		}
	}
	return errs
}
