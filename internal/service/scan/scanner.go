// Package scan checks cache columns against a live database. For every
// column it recomputes the value with the column's own select and reports
// the first row whose stored value disagrees.
package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"ddl-cache/internal/domain"
	"ddl-cache/internal/service/cache"
)

// DefaultTimeout bounds one column's query when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Options configures one scan.
type Options struct {
	// Timeout bounds each column's query.
	Timeout time.Duration
	// Only restricts the scan to a comma-separated list of "schema.table"
	// or "schema.table.column" tokens. Empty scans every column.
	Only string

	OnStartScanColumn func(domain.ScanColumnStart)
	OnScanColumn      func(domain.ScanColumnResult)
	OnScanError       func(domain.ScanColumnError)
	OnFinish          func(broken []domain.ScanColumnResult)
}

// Scanner compares stored cache values with freshly recomputed ones.
type Scanner struct {
	graph  *cache.Graph
	db     domain.Querier
	logger *slog.Logger
	now    func() time.Time
}

// NewScanner creates a Scanner over graph reading through db.
func NewScanner(graph *cache.Graph, db domain.Querier, logger *slog.Logger) *Scanner {
	return &Scanner{graph: graph, db: db, logger: logger, now: time.Now}
}

// Scan checks the selected columns one after another and returns the
// broken ones. A failing column query is reported through OnScanError and
// does not stop the scan; only cancellation of ctx does.
func (s *Scanner) Scan(ctx context.Context, opts Options) ([]domain.ScanColumnResult, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var broken []domain.ScanColumnResult
	for _, col := range s.graph.FindColumnsForTablesOrColumns(opts.Only) {
		if err := ctx.Err(); err != nil {
			return broken, err
		}

		start := s.now()
		if opts.OnStartScanColumn != nil {
			opts.OnStartScanColumn(domain.ScanColumnStart{Column: col.String(), Start: start})
		}

		example, err := s.scanColumn(ctx, col, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return broken, ctx.Err()
			}
			scanErr := domain.ScanColumnError{Column: col.String(), Err: err, Time: domain.NewTimeRange(start, s.now())}
			s.logger.Warn("scan column failed", "column", col.String(), "error", err)
			if opts.OnScanError != nil {
				opts.OnScanError(scanErr)
			}
			continue
		}

		result := domain.ScanColumnResult{
			Column:         col.String(),
			HasWrongValues: example != nil,
			WrongExample:   example,
			Time:           domain.NewTimeRange(start, s.now()),
		}
		if result.HasWrongValues {
			s.logger.Info("broken cache column", "column", col.String(), "row_id", example.RowID)
			broken = append(broken, result)
		}
		if opts.OnScanColumn != nil {
			opts.OnScanColumn(result)
		}
	}

	if opts.OnFinish != nil {
		opts.OnFinish(broken)
	}
	return broken, nil
}

// scanColumn returns the first wrong row of col, or nil when there is none.
func (s *Scanner) scanColumn(ctx context.Context, col *cache.Column, timeout time.Duration) (*domain.WrongExample, error) {
	q, err := newColumnQuery(col)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, q.scanSQL(), timeout)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	row := rows[0]

	example := &domain.WrongExample{
		Table:                    col.For.Table.String(),
		RowID:                    row[colID],
		SelectExpectedForThatRow: q.diagnosticSQL(row[colID]),
	}
	if example.Actual, err = decodeJSON(row[colActual]); err != nil {
		return nil, fmt.Errorf("decode %s: %w", colActual, err)
	}
	if example.Expected, err = decodeJSON(row[colExpected]); err != nil {
		return nil, fmt.Errorf("decode %s: %w", colExpected, err)
	}
	if err := decodeInto(row[colRow], &example.Row); err != nil {
		return nil, fmt.Errorf("decode %s: %w", colRow, err)
	}
	if q.evidence != "" {
		if err := decodeInto(row[colSourceRows], &example.SourceRows); err != nil {
			return nil, fmt.Errorf("decode %s: %w", colSourceRows, err)
		}
	}
	return example, nil
}

// decodeJSON decodes a json/jsonb result value. Drivers return them as text.
// Numbers stay json.Number so bigint and numeric values keep every digit.
func decodeJSON(v any) (any, error) {
	var out any
	if err := decodeInto(v, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeInto(v any, dst any) error {
	var raw []byte
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		raw = []byte(val)
	case []byte:
		raw = val
	default:
		// Already decoded by the driver or a test double.
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		raw = b
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON value")
	}
	return nil
}
