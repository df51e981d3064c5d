package sqlgen

import (
	"sort"
	"strings"

	"github.com/txn2/mcp-query-builder/pkg/querymodel"
)

// conditionSQL builds the atomic fragment for one condition. It returns ""
// for conditions that are not fully specified yet.
func conditionSQL(cond querymodel.Condition) (string, error) {
	if cond.Column == "" {
		return "", nil
	}

	column, err := QuoteIdentifier(cond.Column)
	if err != nil {
		return "", err
	}

	if cond.Operator.IsNullTest() {
		return column + " " + string(cond.Operator), nil
	}

	value := FormatConditionValue(cond)
	if value == "" {
		return "", nil
	}
	return column + " " + string(cond.Operator) + " " + value, nil
}

type groupedFragment struct {
	sql       string
	connector querymodel.Connector
}

// BuildConditions turns a flat list of conditions into one boolean
// expression.
//
// Conditions are bucketed by Group, keeping arrival order inside a bucket.
// Buckets are rendered in ascending group order; inside a bucket each
// condition after the first is prefixed by its own connector. A single
// surviving bucket is returned bare, several are parenthesized and joined
// with AND. The connector of a bucket's first condition is never used, so
// there is no way to OR two groups together.
func BuildConditions(conds []querymodel.Condition) (string, error) {
	buckets := make(map[int][]groupedFragment)
	var groups []int

	for _, cond := range conds {
		frag, err := conditionSQL(cond)
		if err != nil {
			return "", err
		}
		if frag == "" {
			continue
		}
		if _, seen := buckets[cond.Group]; !seen {
			groups = append(groups, cond.Group)
		}
		buckets[cond.Group] = append(buckets[cond.Group], groupedFragment{sql: frag, connector: cond.Connector})
	}

	if len(groups) == 0 {
		return "", nil
	}
	sort.Ints(groups)

	exprs := make([]string, 0, len(groups))
	for _, g := range groups {
		var b strings.Builder
		for i, f := range buckets[g] {
			if i > 0 {
				b.WriteString(" ")
				b.WriteString(string(connectorOrDefault(f.connector)))
				b.WriteString(" ")
			}
			b.WriteString(f.sql)
		}
		exprs = append(exprs, b.String())
	}

	if len(exprs) == 1 {
		return exprs[0], nil
	}
	for i, e := range exprs {
		exprs[i] = "(" + e + ")"
	}
	return strings.Join(exprs, " AND "), nil
}

// connectorOrDefault treats an unset connector as AND.
func connectorOrDefault(c querymodel.Connector) querymodel.Connector {
	if c == "" {
		return querymodel.ConnectorAnd
	}
	return c
}
