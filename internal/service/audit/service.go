// Package audit runs cache scans and keeps their outcomes: every run and
// every scanned column is written to a ScanReportRepository so broken
// columns can be reviewed after the fact.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ddl-cache/internal/domain"
	"ddl-cache/internal/service/scan"
)

// Scanner is the part of scan.Scanner the service drives.
type Scanner interface {
	Scan(ctx context.Context, opts scan.Options) ([]domain.ScanColumnResult, error)
}

// Service records scan runs.
type Service struct {
	scanner Scanner
	repo    domain.ScanReportRepository
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates an audit service.
func NewService(scanner Scanner, repo domain.ScanReportRepository, logger *slog.Logger) *Service {
	return &Service{scanner: scanner, repo: repo, logger: logger, now: time.Now}
}

// Run scans the columns selected by opts.Only and persists the run with one
// report per scanned column. Callbacks already set on opts still fire.
// The run is finished even when the scan is cancelled midway.
func (s *Service) Run(ctx context.Context, opts scan.Options) (*domain.ScanRun, error) {
	run := &domain.ScanRun{
		ID:        domain.NewID(),
		Filter:    opts.Only,
		StartedAt: s.now().UTC(),
	}
	if err := s.repo.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create scan run: %w", err)
	}

	var persistErr error
	insert := func(report *domain.ScanReport) {
		if persistErr != nil {
			return
		}
		if err := s.repo.InsertReport(ctx, report); err != nil {
			persistErr = fmt.Errorf("insert report for %s: %w", report.Column, err)
		}
	}

	onColumn := opts.OnScanColumn
	opts.OnScanColumn = func(res domain.ScanColumnResult) {
		run.ColumnsScanned++
		status := domain.ScanStatusOK
		if res.HasWrongValues {
			status = domain.ScanStatusBroken
			run.BrokenCount++
		}
		insert(&domain.ScanReport{
			ID:           domain.NewID(),
			RunID:        run.ID,
			Column:       res.Column,
			Status:       status,
			WrongExample: res.WrongExample,
			StartedAt:    res.Time.Start.UTC(),
			FinishedAt:   res.Time.End.UTC(),
		})
		if onColumn != nil {
			onColumn(res)
		}
	}

	onError := opts.OnScanError
	opts.OnScanError = func(scanErr domain.ScanColumnError) {
		run.ColumnsScanned++
		run.ErrorCount++
		msg := scanErr.Err.Error()
		insert(&domain.ScanReport{
			ID:           domain.NewID(),
			RunID:        run.ID,
			Column:       scanErr.Column,
			Status:       domain.ScanStatusError,
			ErrorMessage: &msg,
			StartedAt:    scanErr.Time.Start.UTC(),
			FinishedAt:   scanErr.Time.End.UTC(),
		})
		if onError != nil {
			onError(scanErr)
		}
	}

	_, scanErr := s.scanner.Scan(ctx, opts)

	finished := s.now().UTC()
	run.FinishedAt = &finished
	// Close the run even when ctx was cancelled.
	if err := s.repo.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		persistErr = errors.Join(persistErr, fmt.Errorf("finish scan run: %w", err))
	}

	s.logger.Info("scan run finished",
		"run_id", run.ID,
		"columns", run.ColumnsScanned,
		"broken", run.BrokenCount,
		"errors", run.ErrorCount,
		"duration", finished.Sub(run.StartedAt),
	)

	if err := errors.Join(scanErr, persistErr); err != nil {
		return run, err
	}
	return run, nil
}

// ListRuns returns the most recent runs first.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]domain.ScanRun, error) {
	return s.repo.ListRuns(ctx, limit)
}

// ListReports returns persisted column reports.
func (s *Service) ListReports(ctx context.Context, filter domain.ScanReportFilter) ([]domain.ScanReport, error) {
	return s.repo.ListReports(ctx, filter)
}

// LatestBroken returns the broken reports of the most recent run, or nil
// when nothing was ever scanned.
func (s *Service) LatestBroken(ctx context.Context) (*domain.ScanRun, []domain.ScanReport, error) {
	runs, err := s.repo.ListRuns(ctx, 1)
	if err != nil {
		return nil, nil, err
	}
	if len(runs) == 0 {
		return nil, nil, nil
	}
	status := domain.ScanStatusBroken
	reports, err := s.repo.ListReports(ctx, domain.ScanReportFilter{RunID: &runs[0].ID, Status: &status})
	if err != nil {
		return nil, nil, err
	}
	return &runs[0], reports, nil
}
