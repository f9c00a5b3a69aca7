package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ddl-cache/internal/domain"
)

func newReportsCmd(a *app) *cobra.Command {
	var (
		runID  string
		column string
		status string
		latest bool
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List persisted scan reports",
		Example: `  ddl-cache reports --latest --status broken
  ddl-cache reports --column public.companies.total_profit -o json
  ddl-cache reports runs`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openReports(a.cfg.ReportDBPath)
			if err != nil {
				return fmt.Errorf("open report store: %w", err)
			}
			defer store.Close() //nolint:errcheck

			filter := domain.ScanReportFilter{Limit: limit}
			if latest {
				runs, err := store.ListRuns(cmd.Context(), 1)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					return domain.ErrNotFound("no scan runs recorded in %s", a.cfg.ReportDBPath)
				}
				runID = runs[0].ID
			}
			if runID != "" {
				filter.RunID = &runID
			}
			if column != "" {
				filter.Column = &column
			}
			if status != "" {
				s := strings.ToUpper(status)
				switch s {
				case domain.ScanStatusOK, domain.ScanStatusBroken, domain.ScanStatusError:
				default:
					return domain.ErrValidation("unknown status %q: use ok, broken or error", status)
				}
				filter.Status = &s
			}

			reports, err := store.ListReports(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(a.stdout, reports)
			}
			rows := make([][]string, len(reports))
			for i, r := range reports {
				detail := ""
				switch {
				case r.WrongExample != nil:
					detail = fmt.Sprintf("row %s: %s != %s",
						formatValue(r.WrongExample.RowID),
						truncate(formatValue(r.WrongExample.Actual), valueWidth),
						truncate(formatValue(r.WrongExample.Expected), valueWidth))
				case r.ErrorMessage != nil:
					detail = truncate(*r.ErrorMessage, 2*valueWidth)
				}
				rows[i] = []string{r.RunID, r.Column, r.Status, r.StartedAt.Format("2006-01-02 15:04:05"), detail}
			}
			PrintTable(a.stdout, []string{"run", "column", "status", "started", "detail"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Only reports of this run")
	cmd.Flags().BoolVar(&latest, "latest", false, "Only reports of the most recent run")
	cmd.Flags().StringVar(&column, "column", "", "Only reports of this column (schema.table.column)")
	cmd.Flags().StringVar(&status, "status", "", "Only reports with this status: ok, broken, error")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of reports")
	cmd.MarkFlagsMutuallyExclusive("run", "latest")

	cmd.AddCommand(newReportRunsCmd(a))
	return cmd
}

func newReportRunsCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded scan runs, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openReports(a.cfg.ReportDBPath)
			if err != nil {
				return fmt.Errorf("open report store: %w", err)
			}
			defer store.Close() //nolint:errcheck

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(a.stdout, runs)
			}
			printRuns(a, runs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")
	return cmd
}
