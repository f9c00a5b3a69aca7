// Package cli implements the ddl-cache command line: inspecting the cache
// dependency graph, scanning cache columns for stale values, refreshing them
// and keeping an audit trail of scans.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"ddl-cache/internal/config"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd(newApp())
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			_ = PrintJSON(os.Stdout, map[string]any{"error": err.Error()})
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	var (
		envFile     string
		cacheDir    string
		databaseURL string
		reportDB    string
		logLevel    string
		logJSON     bool
		output      string
	)

	rootCmd := &cobra.Command{
		Use:   "ddl-cache",
		Short: "Cache column dependency graph and correctness scanner",
		Long: `ddl-cache reads declarative cache rules (YAML files holding one SELECT
each), orders the cache columns they define by dependency, and checks or
refreshes the stored values in PostgreSQL.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutputFormat(output); err != nil {
				return err
			}
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}

			// Apply precedence: flag > env > default
			flags := cmd.Flags()
			if flags.Changed("cache-dir") {
				cfg.CacheDir = cacheDir
			}
			if flags.Changed("database-url") {
				cfg.DatabaseURL = databaseURL
			}
			if flags.Changed("report-db") {
				cfg.ReportDBPath = reportDB
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			a.cfg = cfg
			a.logger = newLogger(a.stderr, cfg.SlogLevel(), logJSON)

			for _, w := range cfg.Warnings {
				a.logger.Warn("config", "warning", w)
			}
			return nil
		},
	}
	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&envFile, "env-file", ".env", "File of KEY=VALUE defaults loaded before the environment is read")
	pf.StringVar(&cacheDir, "cache-dir", config.DefaultCacheDir, "Directory of cache rule YAML files (env CACHE_DIR)")
	pf.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string (env DATABASE_URL)")
	pf.StringVar(&reportDB, "report-db", config.DefaultReportDBPath, "SQLite file holding scan reports (env REPORT_DB_PATH)")
	pf.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error (env LOG_LEVEL)")
	pf.BoolVar(&logJSON, "log-json", false, "Write logs as JSON")
	pf.BoolVar(&a.allowUnknownFields, "allow-unknown-fields", false, "Allow unknown YAML fields in cache rules")
	pf.StringVarP(&output, "output", "o", "table", "Output format (table, json)")

	// Graph inspection
	rootCmd.AddCommand(newGraphCmd(a))
	rootCmd.AddCommand(newUpdatesCmd(a))
	rootCmd.AddCommand(newDependentsCmd(a))
	rootCmd.AddCommand(newValidateCmd(a))

	// Database commands
	rootCmd.AddCommand(newScanCmd(a))
	rootCmd.AddCommand(newRefreshCmd(a))
	rootCmd.AddCommand(newAuditCmd(a))
	rootCmd.AddCommand(newReportsCmd(a))

	rootCmd.AddCommand(newVersionCmd(a))
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

func newLogger(w io.Writer, level slog.Level, asJSON bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if asJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func newCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(cmd.OutOrStdout())
			case "zsh":
				return cmd.Root().GenZshCompletion(cmd.OutOrStdout())
			case "fish":
				return cmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
	return cmd
}
