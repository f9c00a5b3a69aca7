// Package refresh recomputes cache columns in dependency order by issuing one
// UPDATE per cache.Update. Levels run one after another; the updates of a
// level touch independent columns and run concurrently.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"ddl-cache/internal/ddl"
	"ddl-cache/internal/domain"
	"ddl-cache/internal/service/cache"
)

// Defaults applied to zero Options fields.
const (
	DefaultParallelism = 4
	DefaultTimeout     = 5 * time.Minute
	idColumn           = "id"
)

// DB is what the executor needs from the database. Querier is only used to
// find id bounds when batching.
type DB interface {
	domain.Querier
	domain.Execer
}

// Options control a refresh.
type Options struct {
	// Parallelism bounds concurrent statements within one level.
	Parallelism int
	// Rate limits statements per second across the whole refresh; 0 means
	// unlimited.
	Rate float64
	// Timeout bounds each statement.
	Timeout time.Duration
	// BatchSize splits each update into id ranges of this width; 0 updates
	// the whole table at once.
	BatchSize int64
	// DryRun renders statements without executing them.
	DryRun bool
	// OnStatement is called after every statement. It may be called from
	// several goroutines at once.
	OnStatement func(Statement)
}

// Statement is one rendered (and possibly executed) UPDATE.
type Statement struct {
	Update   cache.Update
	SQL      string
	Rows     int64
	Duration time.Duration
}

// Result summarises a refresh.
type Result struct {
	Statements int
	Rows       int64
	Duration   time.Duration
}

// Executor applies cache updates to a database.
type Executor struct {
	graph  *cache.Graph
	db     DB
	logger *slog.Logger
}

// NewExecutor creates an Executor over graph.
func NewExecutor(graph *cache.Graph, db DB, logger *slog.Logger) *Executor {
	return &Executor{graph: graph, db: db, logger: logger}
}

// RefreshAll recomputes every cache column.
func (e *Executor) RefreshAll(ctx context.Context, opts Options) (*Result, error) {
	return e.Apply(ctx, e.graph.GenerateAllUpdates(), opts)
}

// RefreshFor recomputes the given columns and everything depending on them.
func (e *Executor) RefreshFor(ctx context.Context, columns []*cache.Column, opts Options) (*Result, error) {
	return e.Apply(ctx, e.graph.GenerateUpdatesFor(columns), opts)
}

// Apply runs updates level by level. The first failing statement cancels
// the rest of its level and stops the refresh.
func (e *Executor) Apply(ctx context.Context, updates []cache.Update, opts Options) (*Result, error) {
	opts = withDefaults(opts)
	var limiter *rate.Limiter
	if opts.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.Rate), 1)
	}

	start := time.Now()
	res := &Result{}
	var mu sync.Mutex
	record := func(st Statement) {
		mu.Lock()
		res.Statements++
		res.Rows += st.Rows
		mu.Unlock()
		if opts.OnStatement != nil {
			opts.OnStatement(st)
		}
	}

	for _, level := range byLevel(updates) {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Parallelism)
		for _, u := range level {
			g.Go(func() error {
				return e.applyUpdate(gctx, u, opts, limiter, record)
			})
		}
		if err := g.Wait(); err != nil {
			res.Duration = time.Since(start)
			return res, err
		}
	}

	res.Duration = time.Since(start)
	e.logger.Info("refresh finished",
		"statements", res.Statements,
		"rows", res.Rows,
		"duration", res.Duration,
		"dry_run", opts.DryRun,
	)
	return res, nil
}

func (e *Executor) applyUpdate(ctx context.Context, u cache.Update, opts Options, limiter *rate.Limiter, record func(Statement)) error {
	ranges := []string{""}
	if opts.BatchSize > 0 && !opts.DryRun {
		var err error
		ranges, err = e.idRanges(ctx, u.Table, opts)
		if err != nil {
			return fmt.Errorf("%s: %w", u, err)
		}
	}

	for _, extra := range ranges {
		sql, err := Statement{Update: u}.render(extra)
		if err != nil {
			return fmt.Errorf("%s: %w", u, err)
		}
		st := Statement{Update: u, SQL: sql}
		if opts.DryRun {
			record(st)
			continue
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}

		began := time.Now()
		rows, err := e.db.Exec(ctx, sql, opts.Timeout)
		st.Duration = time.Since(began)
		if err != nil {
			e.logger.Warn("cache update failed", "update", u.String(), "error", err)
			return fmt.Errorf("%s: %w", u, err)
		}
		st.Rows = rows
		e.logger.Debug("cache update applied", "update", u.String(), "rows", rows, "duration", st.Duration)
		record(st)
	}
	return nil
}

// render builds the UPDATE for the statement's batch, narrowed by extra.
func (s Statement) render(extra string) (string, error) {
	assignments := make([]ddl.Assignment, len(s.Update.Columns))
	for i, c := range s.Update.Columns {
		sel, err := c.Select.SQL()
		if err != nil {
			return "", fmt.Errorf("render %s: %w", c, err)
		}
		assignments[i] = ddl.Assignment{Column: c.Name, Select: sel}
	}
	return ddl.UpdateStatement(s.Update.Table, assignments, extra)
}

// RenderUpdate returns the UPDATE statement that recomputes u.
func RenderUpdate(u cache.Update) (string, error) {
	return Statement{Update: u}.render("")
}

// idRanges splits the table's id span into ranges of BatchSize ids.
// An empty table yields no ranges.
func (e *Executor) idRanges(ctx context.Context, table domain.TableReference, opts Options) ([]string, error) {
	ref := ddl.QuoteIdentifier(table.Name())
	sql := fmt.Sprintf("select min(%s.%s) as lo, max(%s.%s) as hi from %s",
		ref, idColumn, ref, idColumn, ddl.TableWithAlias(table))
	rows, err := e.db.Query(ctx, sql, opts.Timeout)
	if err != nil {
		return nil, fmt.Errorf("id bounds: %w", err)
	}
	if len(rows) == 0 || rows[0]["lo"] == nil {
		return nil, nil
	}
	lo, err := toInt64(rows[0]["lo"])
	if err != nil {
		return nil, fmt.Errorf("id bounds: %w", err)
	}
	hi, err := toInt64(rows[0]["hi"])
	if err != nil {
		return nil, fmt.Errorf("id bounds: %w", err)
	}

	return batchRanges(table, lo, hi, opts.BatchSize), nil
}

// batchRanges covers [lo, hi] with inclusive ranges of at most size ids.
// The span is measured unsigned so ids near either end of int64 do not wrap.
func batchRanges(table domain.TableReference, lo, hi, size int64) []string {
	if size <= 0 || lo > hi {
		return nil
	}
	var out []string
	for from := lo; ; {
		to := hi
		if uint64(hi-from) >= uint64(size) {
			to = from + size - 1
		}
		out = append(out, ddl.IDRangePredicate(table, idColumn, from, to))
		if to == hi {
			return out
		}
		from = to + 1
	}
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	default:
		return 0, fmt.Errorf("id is %T, batching needs an integer id", v)
	}
}

// byLevel groups updates by Level, keeping their order.
func byLevel(updates []cache.Update) [][]cache.Update {
	var out [][]cache.Update
	for i, u := range updates {
		if i == 0 || u.Level != updates[i-1].Level {
			out = append(out, nil)
		}
		out[len(out)-1] = append(out[len(out)-1], u)
	}
	return out
}

func withDefaults(opts Options) Options {
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return opts
}
