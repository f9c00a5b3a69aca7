// Package repository implements domain repository interfaces using SQLite.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ddl-cache/internal/domain"
)

// timeLayout has a fixed width so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ScanReportRepo implements domain.ScanReportRepository.
type ScanReportRepo struct {
	db *sql.DB
}

// NewScanReportRepo creates a ScanReportRepo over a migrated report store.
func NewScanReportRepo(db *sql.DB) *ScanReportRepo {
	return &ScanReportRepo{db: db}
}

func (r *ScanReportRepo) CreateRun(ctx context.Context, run *domain.ScanRun) error {
	if run.ID == "" {
		run.ID = domain.NewID()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scan_runs (id, filter, started_at, finished_at, columns_scanned, broken_count, error_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Filter, formatTime(run.StartedAt), formatTimePtr(run.FinishedAt),
		run.ColumnsScanned, run.BrokenCount, run.ErrorCount)
	return mapDBError(err)
}

func (r *ScanReportRepo) FinishRun(ctx context.Context, run *domain.ScanRun) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE scan_runs
		SET finished_at = ?, columns_scanned = ?, broken_count = ?, error_count = ?
		WHERE id = ?`,
		formatTimePtr(run.FinishedAt), run.ColumnsScanned, run.BrokenCount, run.ErrorCount, run.ID)
	if err != nil {
		return mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound("scan run %s not found", run.ID)
	}
	return nil
}

func (r *ScanReportRepo) InsertReport(ctx context.Context, report *domain.ScanReport) error {
	if report.ID == "" {
		report.ID = domain.NewID()
	}
	var example *string
	if report.WrongExample != nil {
		b, err := json.Marshal(report.WrongExample)
		if err != nil {
			return fmt.Errorf("encode wrong example: %w", err)
		}
		s := string(b)
		example = &s
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scan_reports (id, run_id, column_name, status, wrong_example, error_message, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.RunID, report.Column, report.Status, example, report.ErrorMessage,
		formatTime(report.StartedAt), formatTime(report.FinishedAt))
	return mapDBError(err)
}

func (r *ScanReportRepo) ListReports(ctx context.Context, filter domain.ScanReportFilter) ([]domain.ScanReport, error) {
	var where []string
	var args []any
	if filter.RunID != nil {
		where = append(where, "run_id = ?")
		args = append(args, *filter.RunID)
	}
	if filter.Column != nil {
		where = append(where, "column_name = ?")
		args = append(args, *filter.Column)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *filter.Status)
	}

	query := `SELECT id, run_id, column_name, status, wrong_example, error_message, started_at, finished_at FROM scan_reports`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, column_name"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ScanReport
	for rows.Next() {
		var rep domain.ScanReport
		var example, errMsg sql.NullString
		var started, finished string
		if err := rows.Scan(&rep.ID, &rep.RunID, &rep.Column, &rep.Status, &example, &errMsg, &started, &finished); err != nil {
			return nil, err
		}
		if example.Valid {
			rep.WrongExample = &domain.WrongExample{}
			dec := json.NewDecoder(strings.NewReader(example.String))
			dec.UseNumber()
			if err := dec.Decode(rep.WrongExample); err != nil {
				return nil, fmt.Errorf("decode wrong example of %s: %w", rep.ID, err)
			}
		}
		if errMsg.Valid {
			rep.ErrorMessage = &errMsg.String
		}
		if rep.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if rep.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func (r *ScanReportRepo) ListRuns(ctx context.Context, limit int) ([]domain.ScanRun, error) {
	query := `SELECT id, filter, started_at, finished_at, columns_scanned, broken_count, error_count
		FROM scan_runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ScanRun
	for rows.Next() {
		var run domain.ScanRun
		var started string
		var finished sql.NullString
		if err := rows.Scan(&run.ID, &run.Filter, &started, &finished, &run.ColumnsScanned, &run.BrokenCount, &run.ErrorCount); err != nil {
			return nil, err
		}
		if run.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if finished.Valid {
			t, err := parseTime(finished.String)
			if err != nil {
				return nil, err
			}
			run.FinishedAt = &t
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
