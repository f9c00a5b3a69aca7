package domain

import (
	"context"
	"time"
)

// Row is one result row keyed by column name. JSON and JSONB values arrive
// as their text form.
type Row map[string]any

// Querier runs a read statement bounded by timeout.
// Implemented by db.Postgres.
type Querier interface {
	Query(ctx context.Context, sql string, timeout time.Duration) ([]Row, error)
}

// Execer runs a write statement bounded by timeout and returns the number of
// affected rows. Implemented by db.Postgres.
type Execer interface {
	Exec(ctx context.Context, sql string, timeout time.Duration) (int64, error)
}

// ScanReportRepository persists scan runs and their per-column outcomes.
// Implemented by repository.ScanReportRepo.
type ScanReportRepository interface {
	CreateRun(ctx context.Context, run *ScanRun) error
	FinishRun(ctx context.Context, run *ScanRun) error
	InsertReport(ctx context.Context, report *ScanReport) error
	ListReports(ctx context.Context, filter ScanReportFilter) ([]ScanReport, error)
	ListRuns(ctx context.Context, limit int) ([]ScanRun, error)
}
