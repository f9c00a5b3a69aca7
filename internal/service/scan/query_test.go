package scan

import (
	"strings"
	"testing"

	"ddl-cache/internal/domain"
	"ddl-cache/internal/service/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func onlyColumn(t *testing.T, c *cache.Cache, table, name string) *cache.Column {
	t.Helper()
	g := cache.Build(cache.DefaultAggregators, []*cache.Cache{c})
	col, ok := g.Column(domain.ParseTableID(table), name)
	require.True(t, ok)
	return col
}

func TestBrokenPredicate(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		want    []string
		notWant []string
	}{
		{
			name: "plain",
			sql:  `select companies.name as company_name from companies where companies.id = orders.id_client`,
			want: []string{"orders.company_name is distinct from __expected.company_name"},
		},
		{
			name: "sum treats null as zero",
			sql:  `select sum(companies.profit) as company_name from companies where companies.id = orders.id_client`,
			want: []string{"coalesce(orders.company_name, 0) is distinct from coalesce(__expected.company_name, 0)"},
		},
		{
			name: "array_agg ignores order",
			sql:  `select array_agg(companies.id) as company_name from companies where companies.id = orders.id_client`,
			want: []string{
				"orders.company_name is distinct from __expected.company_name",
				"not coalesce(orders.company_name @> __expected.company_name and orders.company_name <@ __expected.company_name, false)",
			},
		},
		{
			name: "string_agg splits by delimiter",
			sql:  `select string_agg(companies.name, ', ') as company_name from companies where companies.id = orders.id_client`,
			want: []string{
				"string_to_array(orders.company_name, ', ') @> string_to_array(__expected.company_name, ', ')",
				"string_to_array(orders.company_name, ', ') <@ string_to_array(__expected.company_name, ', ')",
			},
		},
		{
			name:    "ordered string_agg compares as text",
			sql:     `select string_agg(companies.name, ', ' order by companies.name) as company_name from companies where companies.id = orders.id_client`,
			want:    []string{"orders.company_name is distinct from __expected.company_name"},
			notWant: []string{"string_to_array", "@>"},
		},
		{
			name:    "string_agg without delimiter compares as text",
			sql:     `select string_agg(companies.name) as company_name from companies where companies.id = orders.id_client`,
			want:    []string{"orders.company_name is distinct from __expected.company_name"},
			notWant: []string{"string_to_array", "@>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col := onlyColumn(t, newCache(t, "c", "orders", tt.sql), "orders", "company_name")
			got := brokenPredicate(col, "orders.company_name", "__expected.company_name")
			for _, want := range tt.want {
				assert.Contains(t, got, want)
			}
			for _, unwanted := range tt.notWant {
				assert.NotContains(t, got, unwanted)
			}
		})
	}
}

func TestBrokenPredicate_JSONHelper(t *testing.T) {
	c := newCache(t, "names", "companies", `
		select string_agg(distinct orders.name, ', ') as order_names
		from orders
		where orders.company_id = companies.id`)
	col := onlyColumn(t, c, "companies", "__names_json")
	got := brokenPredicate(col, "a", "e")
	assert.Equal(t, "coalesce(a, '{}'::jsonb) is distinct from coalesce(e, '{}'::jsonb)", got)
}

func TestScanSQL(t *testing.T) {
	c := newCache(t, "totals", "companies", `
		select sum(orders.profit) as orders_profit
		from orders
		where orders.id_client = companies.id`)
	col := onlyColumn(t, c, "companies", "orders_profit")

	q, err := newColumnQuery(col)
	require.NoError(t, err)
	sql := q.scanSQL()

	assert.True(t, strings.HasPrefix(sql, "select\n    companies.id as id,"))
	assert.Contains(t, sql, "to_jsonb(companies.orders_profit) as actual")
	assert.Contains(t, sql, "to_jsonb(__expected.orders_profit) as expected")
	assert.Contains(t, sql, "to_jsonb(companies.*) as broken_row")
	assert.Contains(t, sql, "from public.companies as companies\nleft join lateral (")
	assert.Contains(t, sql, ") as __expected on true")
	assert.Contains(t, sql, "coalesce(companies.orders_profit, 0) is distinct from coalesce(__expected.orders_profit, 0)")
	assert.True(t, strings.HasSuffix(sql, "order by companies.id\nlimit 1"))

	diag := q.diagnosticSQL("abc")
	assert.Contains(t, diag, "as is_broken")
	assert.True(t, strings.HasSuffix(diag, "where companies.id = 'abc'"))
}

func TestEvidence(t *testing.T) {
	tests := []struct {
		name    string
		forT    string
		sql     string
		column  string
		want    string
		wantNil bool
	}{
		{
			name:   "aggregate collects all rows",
			forT:   "companies",
			sql:    `select sum(orders.profit) as total from orders where orders.id_client = companies.id`,
			column: "total",
			want:   "(select jsonb_agg(to_jsonb(orders.*)) from public.orders as orders where ",
		},
		{
			name:   "order by keeps the order",
			forT:   "companies",
			sql:    `select orders.id as last_id from orders where orders.id_client = companies.id order by orders.id desc limit 1`,
			column: "last_id",
			want:   "(select jsonb_agg(to_jsonb(orders.*) order by orders.id DESC) from public.orders as orders where ",
		},
		{
			name:   "plain takes one row",
			forT:   "orders",
			sql:    `select c.name as company_name from companies as c where c.id = orders.id_client`,
			column: "company_name",
			want:   "(select jsonb_build_array(to_jsonb(c.*)) from public.companies as c where ",
		},
		{
			name:    "multi-table has no evidence",
			forT:    "orders",
			sql:     `select companies.name as company_name from companies join users on users.id = companies.owner_id where companies.id = orders.id_client`,
			column:  "company_name",
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col := onlyColumn(t, newCache(t, "c", tt.forT, tt.sql), tt.forT, tt.column)
			got, err := evidence(col)
			require.NoError(t, err)
			if tt.wantNil {
				assert.Empty(t, got)
				return
			}
			assert.True(t, strings.HasPrefix(got, tt.want), got)
		})
	}
}
