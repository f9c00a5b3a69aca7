package refresh

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ddl-cache/internal/domain"
	"ddl-cache/internal/service/cache"
	"ddl-cache/internal/testutil"
)

type fakeDB struct {
	*testutil.MockQuerier
	*testutil.MockExecer
}

func newFakeDB() fakeDB {
	return fakeDB{MockQuerier: &testutil.MockQuerier{}, MockExecer: &testutil.MockExecer{}}
}

func newCache(t *testing.T, name, forTable, sql string) *cache.Cache {
	t.Helper()
	sel, err := cache.ParseSelect(sql)
	require.NoError(t, err)
	return &cache.Cache{
		Name:   name,
		For:    domain.NewTableReference(domain.ParseTableID(forTable), ""),
		Select: sel,
	}
}

func testGraph(t *testing.T) *cache.Graph {
	return cache.Build(cache.DefaultAggregators, []*cache.Cache{
		newCache(t, "totals", "companies", `
			select sum(orders.profit) as total_profit, count(*) as orders_count
			from orders
			where orders.id_client = companies.id`),
		newCache(t, "percent", "orders", `
			select orders.profit / nullif(companies.total_profit, 0) as percent_of_client_profit
			from companies
			where companies.id = orders.id_client`),
	})
}

func newExecutor(g *cache.Graph, db DB) *Executor {
	return NewExecutor(g, db, slog.New(slog.DiscardHandler))
}

func TestApply_LevelsRunInOrder(t *testing.T) {
	db := newFakeDB()
	db.ExecFn = func(_ context.Context, _ string, _ time.Duration) (int64, error) { return 3, nil }

	res, err := newExecutor(testGraph(t), db).RefreshAll(context.Background(), Options{})
	require.NoError(t, err)

	stmts := db.Executed()
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "update public.companies as companies")
	assert.Contains(t, stmts[0], "total_profit")
	assert.Contains(t, stmts[0], "orders_count")
	assert.Contains(t, stmts[0], "is distinct from")
	assert.Contains(t, stmts[1], "update public.orders as orders")
	assert.Contains(t, stmts[1], "percent_of_client_profit")

	assert.Equal(t, 2, res.Statements)
	assert.Equal(t, int64(6), res.Rows)
}

func TestApply_UsesTimeout(t *testing.T) {
	db := newFakeDB()
	var seen time.Duration
	db.ExecFn = func(_ context.Context, _ string, timeout time.Duration) (int64, error) {
		seen = timeout
		return 0, nil
	}

	_, err := newExecutor(testGraph(t), db).RefreshAll(context.Background(), Options{Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, time.Second, seen)
}

func TestRefreshFor_OnlyDependents(t *testing.T) {
	g := testGraph(t)
	percent, ok := g.Column(domain.NewTableID("", "orders"), "percent_of_client_profit")
	require.True(t, ok)

	db := newFakeDB()
	_, err := newExecutor(g, db).RefreshFor(context.Background(), []*cache.Column{percent}, Options{})
	require.NoError(t, err)

	stmts := db.Executed()
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "percent_of_client_profit")
}

func TestApply_DryRunExecutesNothing(t *testing.T) {
	db := newFakeDB()
	var mu sync.Mutex
	var rendered []Statement

	res, err := newExecutor(testGraph(t), db).RefreshAll(context.Background(), Options{
		DryRun:    true,
		BatchSize: 100,
		OnStatement: func(st Statement) {
			mu.Lock()
			rendered = append(rendered, st)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	assert.Empty(t, db.Executed())
	assert.Empty(t, db.Queries)
	assert.Equal(t, 2, res.Statements)
	require.Len(t, rendered, 2)
	assert.True(t, strings.HasPrefix(rendered[0].SQL, "update "))
}

func TestApply_ErrorStopsLaterLevels(t *testing.T) {
	db := newFakeDB()
	db.ExecFn = func(_ context.Context, sql string, _ time.Duration) (int64, error) {
		if strings.Contains(sql, "companies as companies") {
			return 0, errors.New("deadlock detected")
		}
		return 1, nil
	}

	_, err := newExecutor(testGraph(t), db).RefreshAll(context.Background(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock detected")
	assert.Contains(t, err.Error(), "level 0")
	assert.Len(t, db.Executed(), 1)
}

func TestApply_ParallelismIsBounded(t *testing.T) {
	var caches []*cache.Cache
	for _, table := range []string{"a", "b", "c", "d", "e", "f"} {
		caches = append(caches, newCache(t, "c_"+table, table, "select count(*) as n from items where items.owner = "+table+".id"))
	}
	g := cache.Build(cache.DefaultAggregators, caches)

	var running, peak atomic.Int32
	db := newFakeDB()
	db.ExecFn = func(_ context.Context, _ string, _ time.Duration) (int64, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return 0, nil
	}

	res, err := newExecutor(g, db).RefreshAll(context.Background(), Options{Parallelism: 2})
	require.NoError(t, err)
	assert.Equal(t, 6, res.Statements)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestApply_BatchesByIDRange(t *testing.T) {
	g := cache.Build(cache.DefaultAggregators, []*cache.Cache{
		newCache(t, "totals", "companies", `
			select sum(orders.profit) as total_profit
			from orders
			where orders.id_client = companies.id`),
	})

	db := newFakeDB()
	db.QueryFn = func(_ context.Context, sql string, _ time.Duration) ([]domain.Row, error) {
		assert.Contains(t, sql, "min(companies.id)")
		return []domain.Row{{"lo": int64(1), "hi": int64(250)}}, nil
	}

	res, err := newExecutor(g, db).RefreshAll(context.Background(), Options{BatchSize: 100})
	require.NoError(t, err)

	stmts := db.Executed()
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[0], "companies.id >= 1 and companies.id <= 100")
	assert.Contains(t, stmts[2], "companies.id >= 201 and companies.id <= 250")
	assert.Equal(t, 3, res.Statements)
}

func TestBatchRanges(t *testing.T) {
	ref := domain.NewTableReference(domain.NewTableID("", "companies"), "")
	tests := []struct {
		name   string
		lo, hi int64
		size   int64
		first  string
		last   string
		count  int
	}{
		{name: "exact fit", lo: 1, hi: 20, size: 10, count: 2,
			first: "companies.id >= 1 and companies.id <= 10",
			last:  "companies.id >= 11 and companies.id <= 20"},
		{name: "single id", lo: 5, hi: 5, size: 10, count: 1,
			first: "companies.id >= 5 and companies.id <= 5",
			last:  "companies.id >= 5 and companies.id <= 5"},
		{name: "near max int64", lo: math.MaxInt64 - 5, hi: math.MaxInt64, size: 10, count: 1,
			first: "companies.id >= 9223372036854775802 and companies.id <= 9223372036854775807",
			last:  "companies.id >= 9223372036854775802 and companies.id <= 9223372036854775807"},
		{name: "last batch ends at max int64", lo: math.MaxInt64 - 14, hi: math.MaxInt64, size: 10, count: 2,
			first: "companies.id >= 9223372036854775793 and companies.id <= 9223372036854775802",
			last:  "companies.id >= 9223372036854775803 and companies.id <= 9223372036854775807"},
		{name: "negative ids", lo: -15, hi: -1, size: 10, count: 2,
			first: "companies.id >= -15 and companies.id <= -6",
			last:  "companies.id >= -5 and companies.id <= -1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := batchRanges(ref, tt.lo, tt.hi, tt.size)
			require.Len(t, got, tt.count)
			assert.Equal(t, tt.first, got[0])
			assert.Equal(t, tt.last, got[len(got)-1])
		})
	}

	assert.Nil(t, batchRanges(ref, 10, 1, 5))
	assert.Nil(t, batchRanges(ref, 1, 10, 0))
}

func TestApply_BatchingNearMaxID(t *testing.T) {
	g := cache.Build(cache.DefaultAggregators, []*cache.Cache{
		newCache(t, "totals", "companies", `
			select sum(orders.profit) as total_profit
			from orders
			where orders.id_client = companies.id`),
	})

	db := newFakeDB()
	db.QueryFn = func(context.Context, string, time.Duration) ([]domain.Row, error) {
		return []domain.Row{{"lo": int64(math.MaxInt64 - 5), "hi": int64(math.MaxInt64)}}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	res, err := newExecutor(g, db).RefreshAll(ctx, Options{BatchSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Statements)
	require.Len(t, db.Executed(), 1)
	assert.Contains(t, db.Executed()[0], "companies.id <= 9223372036854775807")
}

func TestApply_BatchingEmptyTable(t *testing.T) {
	db := newFakeDB()
	db.QueryFn = func(_ context.Context, _ string, _ time.Duration) ([]domain.Row, error) {
		return []domain.Row{{"lo": nil, "hi": nil}}, nil
	}

	res, err := newExecutor(testGraph(t), db).RefreshAll(context.Background(), Options{BatchSize: 10})
	require.NoError(t, err)
	assert.Empty(t, db.Executed())
	assert.Zero(t, res.Statements)
}

func TestApply_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	db := newFakeDB()
	_, err := newExecutor(testGraph(t), db).RefreshAll(ctx, Options{Rate: 1})
	require.Error(t, err)
	assert.Empty(t, db.Executed())
}

func TestRenderUpdate(t *testing.T) {
	updates := testGraph(t).GenerateAllUpdates()
	require.Len(t, updates, 2)

	sql, err := RenderUpdate(updates[1])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sql, "update public.orders as orders\nset percent_of_client_profit = ("), sql)
}

func TestToInt64(t *testing.T) {
	for _, v := range []any{int64(7), 7, int32(7), float64(7), "7", []byte("7")} {
		n, err := toInt64(v)
		require.NoError(t, err)
		assert.Equal(t, int64(7), n)
	}
	_, err := toInt64(true)
	assert.Error(t, err)
}
