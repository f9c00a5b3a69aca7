package cli

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"ddl-cache/internal/domain"
	"ddl-cache/internal/service/refresh"
)

func newRefreshCmd(a *app) *cobra.Command {
	var (
		only        string
		dryRun      bool
		batchSize   int64
		parallelism int
		rateLimit   float64
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Recompute cache columns in dependency order",
		Long: `Issues one UPDATE per table and level, level after level, touching only
rows whose stored value differs. With --only, refreshes the named columns and
everything depending on them.`,
		Example: `  ddl-cache refresh --dry-run
  ddl-cache refresh --only public.companies --batch-size 10000 --rate 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, err := a.loadGraph()
			if err != nil {
				return err
			}

			opts := refresh.Options{
				Parallelism: a.cfg.RefreshParallelism,
				Rate:        a.cfg.RefreshRate,
				Timeout:     a.cfg.RefreshTimeout,
				BatchSize:   batchSize,
				DryRun:      dryRun,
			}
			if cmd.Flags().Changed("parallelism") {
				opts.Parallelism = parallelism
			}
			if cmd.Flags().Changed("rate") {
				opts.Rate = rateLimit
			}
			if dryRun {
				var mu sync.Mutex
				opts.OnStatement = func(st refresh.Statement) {
					mu.Lock()
					defer mu.Unlock()
					_, _ = fmt.Fprintf(a.stdout, "-- %s\n%s;\n\n", st.Update, st.SQL)
				}
			}

			var conn refresh.DB
			if !dryRun {
				db, err := a.connect(cmd.Context(), opts.Parallelism)
				if err != nil {
					return err
				}
				defer db.Close() //nolint:errcheck
				conn = db
			}

			exec := refresh.NewExecutor(g, conn, a.logger)
			var res *refresh.Result
			if only == "" {
				res, err = exec.RefreshAll(cmd.Context(), opts)
			} else {
				cols := g.FindColumnsForTablesOrColumns(only)
				if len(cols) == 0 {
					return domain.ErrNotFound("no cache column matches %s", only)
				}
				res, err = exec.RefreshFor(cmd.Context(), cols, opts)
			}
			if err != nil {
				return err
			}
			if dryRun {
				return nil
			}

			if getOutputFormat(cmd) == "json" {
				return PrintJSON(a.stdout, res)
			}
			_, _ = fmt.Fprintf(a.stdout, "%d statement(s), %d row(s) updated in %s\n",
				res.Statements, res.Rows, res.Duration.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVar(&only, "only", "", "Comma-separated tables or columns (schema.table[.column]) to refresh with their dependents")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the statements without executing them")
	cmd.Flags().Int64Var(&batchSize, "batch-size", 0, "Update rows in id ranges of this width (0 = whole table)")
	cmd.Flags().IntVar(&parallelism, "parallelism", 0, "Concurrent statements per level (env REFRESH_PARALLELISM)")
	cmd.Flags().Float64Var(&rateLimit, "rate", 0, "Statements per second, 0 = unlimited (env REFRESH_RATE)")
	return cmd
}
