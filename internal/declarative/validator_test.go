package declarative

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ddl-cache/internal/domain"
)

func cacheRes(name, forTable, sql string) CacheResource {
	return CacheResource{
		Path: name + ".yaml",
		Doc: CacheDoc{
			APIVersion: SupportedAPIVersion,
			Kind:       KindNameCache,
			Metadata:   ObjectMeta{Name: name},
			Spec:       CacheSpec{For: forTable, Select: sql},
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		caches  func() []CacheResource
		wantErr string
	}{
		{
			name: "valid",
			caches: func() []CacheResource {
				return []CacheResource{cacheRes("a", "public.companies", "select count(*) as n from orders where orders.id_client = companies.id")}
			},
		},
		{
			name: "bad name",
			caches: func() []CacheResource {
				return []CacheResource{cacheRes("Bad-Name", "companies", "select 1 as x")}
			},
			wantErr: "metadata.name",
		},
		{
			name: "duplicate name",
			caches: func() []CacheResource {
				return []CacheResource{cacheRes("a", "t1", "select 1 as x"), cacheRes("a", "t2", "select 1 as y")}
			},
			wantErr: "duplicate cache name",
		},
		{
			name: "missing for",
			caches: func() []CacheResource {
				return []CacheResource{cacheRes("a", "", "select 1 as x")}
			},
			wantErr: "spec.for: table is required",
		},
		{
			name: "too many dots",
			caches: func() []CacheResource {
				return []CacheResource{cacheRes("a", "db.public.t", "select 1 as x")}
			},
			wantErr: "must be schema.table or table",
		},
		{
			name: "missing select",
			caches: func() []CacheResource {
				return []CacheResource{cacheRes("a", "t", "  ")}
			},
			wantErr: "spec.select is required",
		},
		{
			name: "select does not parse",
			caches: func() []CacheResource {
				return []CacheResource{cacheRes("a", "t", "select from where")}
			},
			wantErr: "spec.select",
		},
		{
			name: "expression without alias",
			caches: func() []CacheResource {
				return []CacheResource{cacheRes("a", "t", "select count(*) from orders")}
			},
			wantErr: "needs an alias",
		},
		{
			name: "column declared twice",
			caches: func() []CacheResource {
				return []CacheResource{cacheRes("a", "t", "select 1 as x"), cacheRes("b", "public.t", "select 2 as x")}
			},
			wantErr: "column public.t.x is already declared by cache a",
		},
		{
			name: "bad index",
			caches: func() []CacheResource {
				r := cacheRes("a", "t", "select 1 as x")
				r.Doc.Spec.Indexes = []IndexSpec{{Method: "bitmap", On: []string{"y"}}}
				return []CacheResource{r}
			},
			wantErr: "unknown method",
		},
		{
			name: "index on foreign column",
			caches: func() []CacheResource {
				r := cacheRes("a", "t", "select 1 as x")
				r.Doc.Spec.Indexes = []IndexSpec{{On: []string{"y"}}}
				return []CacheResource{r}
			},
			wantErr: `"y" is not a column of this cache`,
		},
		{
			name: "bad alias",
			caches: func() []CacheResource {
				r := cacheRes("a", "t", "select 1 as x")
				r.Doc.Spec.Alias = "1x"
				return []CacheResource{r}
			},
			wantErr: "spec.alias",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(&DesiredState{Caches: tt.caches()})
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			require.NotEmpty(t, errs)
			var found bool
			for _, e := range errs {
				found = found || strings.Contains(e.Error(), tt.wantErr)
			}
			assert.True(t, found, "want %q in %v", tt.wantErr, errs)
		})
	}
}

func TestCompile_ReturnsValidationError(t *testing.T) {
	_, err := Compile(&DesiredState{Caches: []CacheResource{cacheRes("a", "", "select 1 as x")}})
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Contains(t, err.Error(), "1 invalid cache rule(s)")
	assert.Contains(t, err.Error(), "a.yaml: cache[a]: spec.for")
}
