package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"ddl-cache/internal/domain"
	"ddl-cache/internal/service/cache"
	"ddl-cache/internal/service/refresh"
)

type columnView struct {
	Column      string   `json:"column"`
	Cache       string   `json:"cache"`
	Kind        string   `json:"kind"`
	Level       int      `json:"level"`
	Equivalence string   `json:"equivalence"`
	DependsOn   []string `json:"depends_on,omitempty"`
}

func viewColumn(g *cache.Graph, c *cache.Column) columnView {
	v := columnView{
		Column:      c.String(),
		Cache:       c.CacheName,
		Kind:        c.Kind.String(),
		Level:       g.DependencyLevel(c),
		Equivalence: c.Equivalence.String(),
	}
	for _, dep := range g.Dependencies(c) {
		v.DependsOn = append(v.DependsOn, dep.String())
	}
	return v
}

func printColumns(a *app, cmd *cobra.Command, g *cache.Graph, cols []*cache.Column) error {
	views := make([]columnView, len(cols))
	for i, c := range cols {
		views[i] = viewColumn(g, c)
	}
	if getOutputFormat(cmd) == "json" {
		return PrintJSON(a.stdout, views)
	}
	rows := make([][]string, len(views))
	for i, v := range views {
		rows[i] = []string{strconv.Itoa(v.Level), v.Column, v.Cache, v.Kind, v.Equivalence, strings.Join(v.DependsOn, ", ")}
	}
	PrintTable(a.stdout, []string{"level", "column", "cache", "kind", "equivalence", "depends on"}, rows)
	return nil
}

func newGraphCmd(a *app) *cobra.Command {
	var only string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "List cache columns in dependency order",
		Long: `Builds the dependency graph of all cache rules and prints every column,
roots first. A column only depends on columns of a lower level.`,
		Example: `  ddl-cache graph
  ddl-cache graph --only public.orders -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, err := a.loadGraph()
			if err != nil {
				return err
			}
			cols := g.ColumnsFromRootToDeps()
			if only != "" {
				cols = g.FindColumnsForTablesOrColumns(only)
			}
			return printColumns(a, cmd, g, cols)
		},
	}
	cmd.Flags().StringVar(&only, "only", "", "Comma-separated tables or columns (schema.table[.column])")
	return cmd
}

func newDependentsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dependents <table>",
		Short: "List cache columns stored on or computed from a table",
		Example: `  ddl-cache dependents public.orders
  ddl-cache dependents orders -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.loadGraph()
			if err != nil {
				return err
			}
			return printColumns(a, cmd, g, g.FindColumnsDependentOn(domain.ParseTableID(args[0])))
		},
	}
}

type updateView struct {
	Level   int      `json:"level"`
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
	SQL     string   `json:"sql,omitempty"`
}

func newUpdatesCmd(a *app) *cobra.Command {
	var withSQL bool

	cmd := &cobra.Command{
		Use:   "updates [table-or-column...]",
		Short: "Show the ordered updates needed after columns change",
		Long: `Without arguments, prints the updates that recompute every cache column.
With arguments, prints only the updates needed after the named columns (or
every cache column of the named tables) changed: the columns themselves plus
everything that transitively depends on them.`,
		Example: `  ddl-cache updates
  ddl-cache updates public.companies.total_profit --sql`,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.loadGraph()
			if err != nil {
				return err
			}
			var updates []cache.Update
			if len(args) == 0 {
				updates = g.GenerateAllUpdates()
			} else {
				changed := g.FindColumnsForTablesOrColumns(strings.Join(args, ","))
				if len(changed) == 0 {
					return domain.ErrNotFound("no cache column matches %s", strings.Join(args, " "))
				}
				updates = g.GenerateUpdatesFor(changed)
			}

			views := make([]updateView, len(updates))
			for i, u := range updates {
				views[i] = updateView{Level: u.Level, Table: u.Table.String(), Columns: u.ColumnNames()}
				if withSQL {
					if views[i].SQL, err = refresh.RenderUpdate(u); err != nil {
						return err
					}
				}
			}

			if getOutputFormat(cmd) == "json" {
				return PrintJSON(a.stdout, views)
			}
			if withSQL {
				for _, v := range views {
					_, _ = fmt.Fprintf(a.stdout, "-- level %d: %s\n%s;\n\n", v.Level, v.Table, v.SQL)
				}
				return nil
			}
			rows := make([][]string, len(views))
			for i, v := range views {
				rows[i] = []string{strconv.Itoa(v.Level), v.Table, strings.Join(v.Columns, ", ")}
			}
			PrintTable(a.stdout, []string{"level", "table", "columns"}, rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&withSQL, "sql", false, "Print the UPDATE statement of each step")
	return cmd
}
