package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ddl-cache/internal/domain"
	"ddl-cache/internal/service/scan"
	"ddl-cache/internal/testutil"
)

// fakeScanner replays fixed outcomes through the scan callbacks.
type fakeScanner struct {
	results []domain.ScanColumnResult
	errs    []domain.ScanColumnError
	err     error
	calls   atomic.Int32
	last    scan.Options
}

func (f *fakeScanner) Scan(_ context.Context, opts scan.Options) ([]domain.ScanColumnResult, error) {
	f.calls.Add(1)
	f.last = opts
	var broken []domain.ScanColumnResult
	for _, r := range f.results {
		if r.HasWrongValues {
			broken = append(broken, r)
		}
		opts.OnScanColumn(r)
	}
	for _, e := range f.errs {
		opts.OnScanError(e)
	}
	return broken, f.err
}

func span() domain.TimeRange {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return domain.NewTimeRange(start, start.Add(time.Second))
}

func newService(s Scanner, repo domain.ScanReportRepository) *Service {
	return NewService(s, repo, slog.New(slog.DiscardHandler))
}

func TestRun_PersistsEveryColumn(t *testing.T) {
	scanner := &fakeScanner{
		results: []domain.ScanColumnResult{
			{Column: "public.companies.total_profit", Time: span()},
			{Column: "public.orders.percent", HasWrongValues: true, Time: span(), WrongExample: &domain.WrongExample{RowID: int64(7), Actual: 1.0, Expected: 2.0}},
		},
		errs: []domain.ScanColumnError{
			{Column: "public.users.n", Err: errors.New("relation does not exist"), Time: span()},
		},
	}
	repo := &testutil.MockScanReportRepo{}

	var seen []string
	run, err := newService(scanner, repo).Run(context.Background(), scan.Options{
		Only:         "public",
		OnScanColumn: func(r domain.ScanColumnResult) { seen = append(seen, r.Column) },
	})
	require.NoError(t, err)

	assert.Equal(t, "public", run.Filter)
	assert.Equal(t, 3, run.ColumnsScanned)
	assert.Equal(t, 1, run.BrokenCount)
	assert.Equal(t, 1, run.ErrorCount)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, []string{"public.companies.total_profit", "public.orders.percent"}, seen)

	require.Len(t, repo.Runs, 1)
	require.Len(t, repo.Reports, 3)
	assert.Equal(t, domain.ScanStatusOK, repo.Reports[0].Status)
	assert.Equal(t, domain.ScanStatusBroken, repo.Reports[1].Status)
	assert.Equal(t, int64(7), repo.Reports[1].WrongExample.RowID)
	assert.Equal(t, domain.ScanStatusError, repo.Reports[2].Status)
	require.NotNil(t, repo.Reports[2].ErrorMessage)
	assert.Equal(t, "relation does not exist", *repo.Reports[2].ErrorMessage)
	for _, r := range repo.Reports {
		assert.Equal(t, run.ID, r.RunID)
	}
}

func TestRun_CreateRunFails(t *testing.T) {
	scanner := &fakeScanner{}
	repo := &testutil.MockScanReportRepo{
		CreateRunFn: func(context.Context, *domain.ScanRun) error { return errors.New("disk full") },
	}

	_, err := newService(scanner, repo).Run(context.Background(), scan.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create scan run")
	assert.Zero(t, scanner.calls.Load())
}

func TestRun_InsertFailureIsReported(t *testing.T) {
	scanner := &fakeScanner{results: []domain.ScanColumnResult{{Column: "a"}, {Column: "b"}}}
	repo := &testutil.MockScanReportRepo{
		InsertReportFn: func(context.Context, *domain.ScanReport) error { return errors.New("locked") },
	}

	run, err := newService(scanner, repo).Run(context.Background(), scan.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert report for a")
	assert.NotContains(t, err.Error(), "insert report for b")
	assert.Equal(t, 2, run.ColumnsScanned)
	require.NotNil(t, repo.Runs[0].FinishedAt)
}

func TestRun_ScanErrorStillFinishesRun(t *testing.T) {
	scanner := &fakeScanner{err: context.Canceled}
	repo := &testutil.MockScanReportRepo{}

	run, err := newService(scanner, repo).Run(context.Background(), scan.Options{})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, run)
	require.NotNil(t, repo.Runs[0].FinishedAt)
}

func TestLatestBroken(t *testing.T) {
	repo := &testutil.MockScanReportRepo{}
	svc := newService(&fakeScanner{}, repo)

	run, reports, err := svc.LatestBroken(context.Background())
	require.NoError(t, err)
	assert.Nil(t, run)
	assert.Nil(t, reports)

	scanner := &fakeScanner{results: []domain.ScanColumnResult{
		{Column: "ok"},
		{Column: "bad", HasWrongValues: true, WrongExample: &domain.WrongExample{}},
	}}
	svc = newService(scanner, repo)
	first, err := svc.Run(context.Background(), scan.Options{})
	require.NoError(t, err)

	run, reports, err = svc.LatestBroken(context.Background())
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, first.ID, run.ID)
	require.Len(t, reports, 1)
	assert.Equal(t, "bad", reports[0].Column)

	runs, err := svc.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	all, err := svc.ListReports(context.Background(), domain.ScanReportFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestScheduler(t *testing.T) {
	scanner := &fakeScanner{results: []domain.ScanColumnResult{{Column: "bad", HasWrongValues: true, WrongExample: &domain.WrongExample{}}}}
	repo := &testutil.MockScanReportRepo{}
	sched := NewScheduler(newService(scanner, repo), scan.Options{Only: "public.orders"}, slog.New(slog.DiscardHandler))

	_, ok := sched.Next()
	assert.False(t, ok)

	require.Error(t, sched.Start(context.Background(), "not a schedule"))
	require.NoError(t, sched.Start(context.Background(), "@every 1h"))
	require.Error(t, sched.Start(context.Background(), "@every 1h"))

	next, ok := sched.Next()
	assert.True(t, ok)
	assert.NotEmpty(t, next)

	sched.tick()
	sched.Stop()

	assert.Equal(t, int32(1), scanner.calls.Load())
	assert.Equal(t, "public.orders", scanner.last.Only)
	assert.True(t, repo.HasStatus(domain.ScanStatusBroken))
}
