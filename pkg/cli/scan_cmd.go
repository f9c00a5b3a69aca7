package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ddl-cache/internal/domain"
	"ddl-cache/internal/service/scan"
)

const valueWidth = 40

type scanOutcome struct {
	Column       string               `json:"column"`
	Status       string               `json:"status"`
	WrongExample *domain.WrongExample `json:"wrong_example,omitempty"`
	Error        string               `json:"error,omitempty"`
	Duration     time.Duration        `json:"duration"`
}

// scanFlags are shared by scan and audit.
type scanFlags struct {
	only    string
	timeout time.Duration
}

func (f *scanFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.only, "only", "", "Comma-separated tables or columns (schema.table[.column]) to scan")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Query budget per column (env SCAN_TIMEOUT)")
}

func (f *scanFlags) options(a *app) scan.Options {
	timeout := f.timeout
	if timeout <= 0 {
		timeout = a.cfg.ScanTimeout
	}
	return scan.Options{Only: f.only, Timeout: timeout}
}

// collect wires callbacks that log progress and gather every outcome.
func collect(a *app, opts *scan.Options) *[]scanOutcome {
	var outcomes []scanOutcome
	opts.OnStartScanColumn = func(s domain.ScanColumnStart) {
		a.logger.Debug("scanning", "column", s.Column)
	}
	opts.OnScanColumn = func(r domain.ScanColumnResult) {
		status := domain.ScanStatusOK
		if r.HasWrongValues {
			status = domain.ScanStatusBroken
		}
		outcomes = append(outcomes, scanOutcome{Column: r.Column, Status: status, WrongExample: r.WrongExample, Duration: r.Time.Duration})
	}
	opts.OnScanError = func(e domain.ScanColumnError) {
		outcomes = append(outcomes, scanOutcome{Column: e.Column, Status: domain.ScanStatusError, Error: e.Err.Error(), Duration: e.Time.Duration})
	}
	return &outcomes
}

func printOutcomes(a *app, cmd *cobra.Command, outcomes []scanOutcome) error {
	if getOutputFormat(cmd) == "json" {
		return PrintJSON(a.stdout, outcomes)
	}
	rows := make([][]string, len(outcomes))
	for i, o := range outcomes {
		row := []string{o.Column, o.Status, "", "", "", o.Duration.Round(time.Millisecond).String()}
		if o.WrongExample != nil {
			row[2] = formatValue(o.WrongExample.RowID)
			row[3] = truncate(formatValue(o.WrongExample.Actual), valueWidth)
			row[4] = truncate(formatValue(o.WrongExample.Expected), valueWidth)
		}
		if o.Error != "" {
			row[3] = truncate(o.Error, valueWidth)
		}
		rows[i] = row
	}
	PrintTable(a.stdout, []string{"column", "status", "row id", "actual", "expected", "took"}, rows)

	for _, o := range outcomes {
		if o.WrongExample != nil {
			_, _ = fmt.Fprintf(a.stdout, "\n-- %s, row %s\n%s;\n", o.Column, formatValue(o.WrongExample.RowID), o.WrongExample.SelectExpectedForThatRow)
		}
	}
	return nil
}

// brokenError summarises a scan that found problems.
func brokenError(outcomes []scanOutcome) error {
	var broken, failed int
	for _, o := range outcomes {
		switch o.Status {
		case domain.ScanStatusBroken:
			broken++
		case domain.ScanStatusError:
			failed++
		}
	}
	if broken == 0 && failed == 0 {
		return nil
	}
	return fmt.Errorf("%d broken cache column(s), %d failed scan(s)", broken, failed)
}

func newScanCmd(a *app) *cobra.Command {
	var flags scanFlags

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Check stored cache values against freshly computed ones",
		Long: `For every selected cache column, recomputes the value with the column's
own SELECT and reports the first row (lowest id) whose stored value differs.
Array and string_agg columns are compared ignoring element order. The command
fails when any column is broken or could not be scanned.`,
		Example: `  ddl-cache scan
  ddl-cache scan --only public.companies.total_profit --timeout 2m -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, err := a.loadGraph()
			if err != nil {
				return err
			}
			conn, err := a.connect(cmd.Context(), 1)
			if err != nil {
				return err
			}
			defer conn.Close() //nolint:errcheck

			opts := flags.options(a)
			outcomes := collect(a, &opts)
			if _, err := scan.NewScanner(g, conn, a.logger).Scan(cmd.Context(), opts); err != nil {
				return err
			}
			if err := printOutcomes(a, cmd, *outcomes); err != nil {
				return err
			}
			return brokenError(*outcomes)
		},
	}
	flags.register(cmd)
	return cmd
}
