package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"ddl-cache/internal/domain"
	"ddl-cache/internal/service/audit"
	"ddl-cache/internal/service/scan"
)

func newAuditCmd(a *app) *cobra.Command {
	var (
		flags    scanFlags
		schedule string
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Scan cache columns and record the outcome in the report store",
		Long: `Runs a scan and stores the run plus one report per column in the SQLite
report store. With --schedule (or AUDIT_SCHEDULE) the command keeps running
and audits on that cron schedule until interrupted.`,
		Example: `  ddl-cache audit --only public.orders
  ddl-cache audit --schedule "0 3 * * *"`,
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

			store, err := a.openReports(a.cfg.ReportDBPath)
			if err != nil {
				return fmt.Errorf("open report store: %w", err)
			}
			defer store.Close() //nolint:errcheck

			svc := audit.NewService(scan.NewScanner(g, conn, a.logger), store, a.logger)
			opts := flags.options(a)

			if !cmd.Flags().Changed("schedule") {
				schedule = a.cfg.AuditSchedule
			}
			if schedule != "" {
				return runScheduled(cmd.Context(), a, svc, opts, schedule)
			}

			run, err := svc.Run(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				if err := PrintJSON(a.stdout, run); err != nil {
					return err
				}
			} else {
				printRuns(a, []domain.ScanRun{*run})
			}
			if run.BrokenCount > 0 || run.ErrorCount > 0 {
				return fmt.Errorf("%d broken cache column(s), %d failed scan(s)", run.BrokenCount, run.ErrorCount)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron schedule (5 fields) to audit on repeatedly (env AUDIT_SCHEDULE)")
	return cmd
}

func runScheduled(ctx context.Context, a *app, svc *audit.Service, opts scan.Options, schedule string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := audit.NewScheduler(svc, opts, a.logger)
	if err := sched.Start(ctx, schedule); err != nil {
		return err
	}
	if next, ok := sched.Next(); ok {
		a.logger.Info("next audit", "at", next)
	}
	<-ctx.Done()
	sched.Stop()
	return nil
}

func printRuns(a *app, runs []domain.ScanRun) {
	rows := make([][]string, len(runs))
	for i, r := range runs {
		finished := "-"
		if r.FinishedAt != nil {
			finished = r.FinishedAt.Format("2006-01-02 15:04:05")
		}
		rows[i] = []string{
			r.ID,
			r.StartedAt.Format("2006-01-02 15:04:05"),
			finished,
			r.Filter,
			strconv.Itoa(r.ColumnsScanned),
			strconv.Itoa(r.BrokenCount),
			strconv.Itoa(r.ErrorCount),
		}
	}
	PrintTable(a.stdout, []string{"run", "started", "finished", "filter", "columns", "broken", "errors"}, rows)
}
