package declarative

import (
	"fmt"
	"strings"

	"ddl-cache/internal/domain"
	"ddl-cache/internal/service/cache"
)

// Compile validates state and turns it into cache rules. Validation
// problems are returned together as a *domain.ValidationError.
func Compile(state *DesiredState) ([]*cache.Cache, error) {
	if errs := Validate(state); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, domain.ErrValidation("%d invalid cache rule(s):\n  %s", len(errs), strings.Join(msgs, "\n  "))
	}

	caches := make([]*cache.Cache, 0, len(state.Caches))
	for _, res := range state.Caches {
		spec := res.Doc.Spec
		sel, err := cache.ParseSelect(spec.Select)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", res.Path, err)
		}

		c := &cache.Cache{
			Name:   res.Doc.Metadata.Name,
			For:    domain.NewTableReference(domain.ParseTableID(spec.For), spec.Alias),
			Select: sel,
		}
		for _, t := range spec.WithoutTriggersOn {
			c.WithoutTriggersOn = append(c.WithoutTriggersOn, domain.ParseTableID(t))
		}
		for _, idx := range spec.Indexes {
			method := strings.ToLower(idx.Method)
			if method == "" {
				method = "btree"
			}
			cols := make([]string, len(idx.On))
			for i, col := range idx.On {
				cols[i] = strings.ToLower(col)
			}
			c.Indexes = append(c.Indexes, cache.Index{Method: method, Columns: cols})
		}
		caches = append(caches, c)
	}
	return caches, nil
}

// LoadCaches loads, validates and compiles the rules under dir.
func LoadCaches(dir string) ([]*cache.Cache, error) {
	state, err := LoadDirectory(dir)
	if err != nil {
		return nil, err
	}
	return Compile(state)
}
