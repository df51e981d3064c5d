package audit

import (
	"context"
	"time"
)

// Overview holds aggregate execution statistics for one user.
type Overview struct {
	TotalExecutions int        `json:"totalExecutions"`
	SuccessRate     float64    `json:"successRate"`
	AvgExecutionMS  float64    `json:"avgExecutionMs"`
	TotalRows       int64      `json:"totalRows"`
	ErrorCount      int        `json:"errorCount"`
	LastExecutedAt  *time.Time `json:"lastExecutedAt"`
}

// OverviewFilter selects the executions an Overview covers.
type OverviewFilter struct {
	UserID    string
	StartTime *time.Time
	EndTime   *time.Time
}

// MetricsQuerier computes aggregate statistics over audit events.
type MetricsQuerier interface {
	Overview(ctx context.Context, filter OverviewFilter) (*Overview, error)
}
