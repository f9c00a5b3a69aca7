// Package declarative loads cache rules from YAML documents:
//
//	apiVersion: ddl-cache/v1
//	kind: Cache
//	metadata:
//	  name: totals
//	spec:
//	  for: public.companies
//	  select: |
//	    select sum(orders.profit) as orders_profit
//	    from orders
//	    where orders.id_client = companies.id
//
// Documents are validated and compiled into cache.Cache values.
package declarative

// SupportedAPIVersion is the current API version for YAML documents.
const SupportedAPIVersion = "ddl-cache/v1"

// KindNameCache is the only document kind.
const KindNameCache = "Cache"

// Document is the generic envelope parsed first to determine Kind.
type Document struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
}

// ObjectMeta holds common metadata for named resources.
type ObjectMeta struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// CacheDoc declares one cache rule.
type CacheDoc struct {
	APIVersion string     `yaml:"apiVersion"`
	Kind       string     `yaml:"kind"`
	Metadata   ObjectMeta `yaml:"metadata"`
	Spec       CacheSpec  `yaml:"spec"`
}

// CacheSpec is the body of a cache rule.
type CacheSpec struct {
	// For is the target table, "schema.table" or "table".
	For string `yaml:"for"`
	// Alias names the target table inside Select when it differs from the
	// table name, e.g. for self joins.
	Alias             string      `yaml:"alias,omitempty"`
	Select            string      `yaml:"select"`
	WithoutTriggersOn []string    `yaml:"without_triggers_on,omitempty"`
	Indexes           []IndexSpec `yaml:"indexes,omitempty"`
}

// IndexSpec requests an index over cache columns.
type IndexSpec struct {
	Method string   `yaml:"method,omitempty"`
	On     []string `yaml:"on"`
}

// CacheResource is a loaded document and the file it came from.
type CacheResource struct {
	Path string
	Doc  CacheDoc
}

// DesiredState is every cache rule found under a directory.
type DesiredState struct {
	Caches []CacheResource
}
