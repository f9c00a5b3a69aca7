package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ddl-cache/internal/declarative"
)

func newValidateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate cache rule files offline",
		Long:  "Reads the YAML cache rules and checks them for errors without contacting the database.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// 1. Load desired state from YAML files.
			desired, err := declarative.LoadDirectoryWithOptions(a.cfg.CacheDir, declarative.LoadOptions{
				AllowUnknownFields: a.allowUnknownFields,
			})
			if err != nil {
				return fmt.Errorf("load cache rules: %w", err)
			}

			// 2. Validate the desired state.
			validationErrs := declarative.Validate(desired)
			if len(validationErrs) > 0 {
				errMsgs := make([]string, len(validationErrs))
				for i, ve := range validationErrs {
					errMsgs[i] = ve.Error()
				}
				if getOutputFormat(cmd) == "json" {
					if err := PrintJSON(a.stdout, map[string]any{
						"valid":  false,
						"errors": errMsgs,
					}); err != nil {
						return err
					}
				} else {
					_, _ = fmt.Fprintf(a.stderr, "Cache rules have %d validation error(s):\n", len(validationErrs))
					for _, msg := range errMsgs {
						_, _ = fmt.Fprintf(a.stderr, "  - %s\n", msg)
					}
				}
				return fmt.Errorf("%d validation error(s)", len(validationErrs))
			}

			// 3. Build the graph so helper columns and levels are checked too.
			g, err := a.loadGraph()
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				return PrintJSON(a.stdout, map[string]any{
					"valid":   true,
					"caches":  len(desired.Caches),
					"columns": len(g.Columns()),
					"levels":  len(g.Levels()),
				})
			}
			_, _ = fmt.Fprintf(a.stdout, "Cache rules are valid: %d cache(s), %d column(s), %d level(s).\n",
				len(desired.Caches), len(g.Columns()), len(g.Levels()))
			return nil
		},
	}
	return cmd
}
