package postgres

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/mcp-query-builder/pkg/audit"
)

// Overview returns aggregate execution statistics for the filter.
func (s *Store) Overview(ctx context.Context, filter audit.OverviewFilter) (*audit.Overview, error) {
	qb := psq.Select(
		"COUNT(*) AS total_executions",
		"CASE WHEN COUNT(*) > 0 THEN CAST(COUNT(*) FILTER (WHERE success = true) AS FLOAT) / COUNT(*) ELSE 0 END AS success_rate",
		"COALESCE(AVG(execution_time_ms), 0) AS avg_execution_ms",
		"COALESCE(SUM(rows_returned), 0) AS total_rows",
		"COUNT(*) FILTER (WHERE success = false) AS error_count",
		"MAX(executed_at) AS last_executed_at",
	).From(table)

	if filter.UserID != "" {
		qb = qb.Where(sq.Eq{"user_id": filter.UserID})
	}
	if filter.StartTime != nil {
		qb = qb.Where(sq.GtOrEq{"executed_at": *filter.StartTime})
	}
	if filter.EndTime != nil {
		qb = qb.Where(sq.LtOrEq{"executed_at": *filter.EndTime})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building overview query: %w", err)
	}

	var (
		o    audit.Overview
		last sql.NullTime
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&o.TotalExecutions,
		&o.SuccessRate,
		&o.AvgExecutionMS,
		&o.TotalRows,
		&o.ErrorCount,
		&last,
	)
	if err != nil {
		return nil, fmt.Errorf("querying overview: %w", err)
	}
	if last.Valid {
		t := last.Time
		o.LastExecutedAt = &t
	}
	return &o, nil
}

// Verify interface compliance.
var _ audit.MetricsQuerier = (*Store)(nil)
