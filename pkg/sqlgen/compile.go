package sqlgen

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/mcp-query-builder/pkg/querymodel"
)

// EmptySelect is returned for a config with no tables selected.
const EmptySelect = "SELECT *"

// Compile renders cfg as a single SELECT statement.
//
// Clauses are emitted in the order SELECT, FROM, JOIN, WHERE, GROUP BY,
// HAVING, ORDER BY, LIMIT, OFFSET. Incomplete joins, conditions and order
// terms are skipped. HAVING is only emitted together with GROUP BY. A zero
// LIMIT is emitted, a zero OFFSET is not. Any identifier that fails the
// safe-identifier check aborts compilation with an *UnsafeIdentifierError.
func Compile(cfg querymodel.Config) (string, error) {
	if len(cfg.SelectedTables) == 0 {
		return EmptySelect, nil
	}

	if err := cfg.Validate(); err != nil {
		return "", err
	}

	columns, err := selectList(cfg.SelectedColumns)
	if err != nil {
		return "", err
	}

	from, err := QuoteIdentifier(cfg.SelectedTables[0])
	if err != nil {
		return "", err
	}

	qb := sq.Select(columns...).From(from)

	joins, err := joinClauses(cfg.Joins)
	if err != nil {
		return "", err
	}
	for _, j := range joins {
		qb = qb.JoinClause(j)
	}

	where, err := BuildConditions(cfg.WhereConditions)
	if err != nil {
		return "", err
	}
	if where != "" {
		qb = qb.Where(where)
	}

	if len(cfg.GroupBy) > 0 {
		groupBy := make([]string, len(cfg.GroupBy))
		for i, col := range cfg.GroupBy {
			if groupBy[i], err = QuoteIdentifier(col); err != nil {
				return "", err
			}
		}
		qb = qb.GroupBy(groupBy...)

		having, err := BuildConditions(cfg.HavingConditions)
		if err != nil {
			return "", err
		}
		if having != "" {
			qb = qb.Having(having)
		}
	}

	orderBy, err := orderTerms(cfg.OrderBy)
	if err != nil {
		return "", err
	}
	if len(orderBy) > 0 {
		qb = qb.OrderBy(orderBy...)
	}

	if cfg.Limit != nil && *cfg.Limit >= 0 {
		qb = qb.Limit(uint64(*cfg.Limit))
	}
	if cfg.Offset != nil && *cfg.Offset > 0 {
		qb = qb.Offset(uint64(*cfg.Offset))
	}

	sql, _, err := qb.ToSql()
	if err != nil {
		return "", fmt.Errorf("building select: %w", err)
	}
	return strings.TrimSpace(sql), nil
}

func selectList(cols []querymodel.ColumnSelection) ([]string, error) {
	if len(cols) == 0 {
		return []string{"*"}, nil
	}
	out := make([]string, len(cols))
	for i, c := range cols {
		q, err := quoteColumnSelection(c.Table, c.Column)
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}

func joinClauses(joins []querymodel.Join) ([]string, error) {
	var out []string
	for _, j := range joins {
		if j.Table == "" || j.LeftColumn == "" || j.RightColumn == "" {
			continue
		}
		table, err := QuoteIdentifier(j.Table)
		if err != nil {
			return nil, err
		}
		left, err := QuoteIdentifier(j.LeftColumn)
		if err != nil {
			return nil, err
		}
		right, err := QuoteIdentifier(j.RightColumn)
		if err != nil {
			return nil, err
		}
		out = append(out, fmt.Sprintf("%s %s ON %s = %s", j.JoinType, table, left, right))
	}
	return out, nil
}

func orderTerms(terms []querymodel.OrderBy) ([]string, error) {
	var out []string
	for _, o := range terms {
		if o.Column == "" {
			continue
		}
		col, err := QuoteIdentifier(o.Column)
		if err != nil {
			return nil, err
		}
		out = append(out, col+" "+string(o.Direction))
	}
	return out, nil
}
