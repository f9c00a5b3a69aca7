// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase. This follows the Go convention of a
// shared test utility package (like net/http/httptest).
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"ddl-cache/internal/domain"
)

// === Querier Mock ===

// MockQuerier implements domain.Querier for testing.
type MockQuerier struct {
	QueryFn func(ctx context.Context, sql string, timeout time.Duration) ([]domain.Row, error)

	mu       sync.Mutex
	Queries  []string        // collected statements for assertions
	Timeouts []time.Duration // timeout passed with each statement
}

// Query implements the interface method for testing.
func (m *MockQuerier) Query(ctx context.Context, sql string, timeout time.Duration) ([]domain.Row, error) {
	m.mu.Lock()
	m.Queries = append(m.Queries, sql)
	m.Timeouts = append(m.Timeouts, timeout)
	m.mu.Unlock()
	if m.QueryFn != nil {
		return m.QueryFn(ctx, sql, timeout)
	}
	return nil, nil
}

// === Execer Mock ===

// MockExecer implements domain.Execer for testing. It is safe for
// concurrent use.
type MockExecer struct {
	ExecFn func(ctx context.Context, sql string, timeout time.Duration) (int64, error)

	mu         sync.Mutex
	Statements []string // collected statements for assertions
}

// Exec implements the interface method for testing.
func (m *MockExecer) Exec(ctx context.Context, sql string, timeout time.Duration) (int64, error) {
	m.mu.Lock()
	m.Statements = append(m.Statements, sql)
	m.mu.Unlock()
	if m.ExecFn != nil {
		return m.ExecFn(ctx, sql, timeout)
	}
	return 0, nil
}

// Executed returns a copy of the collected statements.
func (m *MockExecer) Executed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Statements))
	copy(out, m.Statements)
	return out
}

// === Scan Report Repository Mock ===

// MockScanReportRepo implements domain.ScanReportRepository in memory.
type MockScanReportRepo struct {
	CreateRunFn    func(ctx context.Context, run *domain.ScanRun) error
	InsertReportFn func(ctx context.Context, report *domain.ScanReport) error

	mu      sync.Mutex
	Runs    []*domain.ScanRun    // collected runs for assertions
	Reports []*domain.ScanReport // collected reports for assertions
}

// CreateRun implements the interface method for testing.
func (m *MockScanReportRepo) CreateRun(ctx context.Context, run *domain.ScanRun) error {
	if m.CreateRunFn != nil {
		if err := m.CreateRunFn(ctx, run); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Runs = append(m.Runs, run)
	return nil
}

// FinishRun implements the interface method for testing.
func (m *MockScanReportRepo) FinishRun(_ context.Context, run *domain.ScanRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.Runs {
		if r.ID == run.ID {
			m.Runs[i] = run
			return nil
		}
	}
	return domain.ErrNotFound("scan run %s not found", run.ID)
}

// InsertReport implements the interface method for testing.
func (m *MockScanReportRepo) InsertReport(ctx context.Context, report *domain.ScanReport) error {
	if m.InsertReportFn != nil {
		if err := m.InsertReportFn(ctx, report); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reports = append(m.Reports, report)
	return nil
}

// ListReports implements the interface method for testing.
func (m *MockScanReportRepo) ListReports(_ context.Context, filter domain.ScanReportFilter) ([]domain.ScanReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ScanReport
	for _, r := range m.Reports {
		if filter.RunID != nil && r.RunID != *filter.RunID {
			continue
		}
		if filter.Column != nil && r.Column != *filter.Column {
			continue
		}
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		out = append(out, *r)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// ListRuns implements the interface method for testing.
func (m *MockScanReportRepo) ListRuns(_ context.Context, limit int) ([]domain.ScanRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ScanRun, 0, len(m.Runs))
	for _, r := range m.Runs {
		out = append(out, *r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// HasStatus returns true if any collected report has the given status.
func (m *MockScanReportRepo) HasStatus(status string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.Reports {
		if r.Status == status {
			return true
		}
	}
	return false
}
