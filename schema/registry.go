package schema

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gmn-data-platform/gmntraj/gmnerr"
)

// Registry maps version identifiers to immutable Version definitions.
type Registry struct {
	mu       sync.RWMutex
	versions map[string]*Version
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		versions: make(map[string]*Version),
	}
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	r := NewRegistry()
	if err := r.Register(V2()); err != nil {
		panic(fmt.Sprintf("register built-in schema version: %v", err))
	}
	return r
})

// Default returns the process-wide registry holding the built-in versions.
func Default() *Registry {
	return defaultRegistry()
}

// Register adds a version. Registering the same columns twice is a no-op;
// changing the columns of an existing version is an error.
func (r *Registry) Register(v *Version) error {
	if err := v.Validate(); err != nil {
		return err
	}
	if v.Hash == "" {
		v.Hash = ComputeHash(append([]ColumnSpec{v.Index}, v.Columns...))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.versions[v.ID]; ok {
		if existing.Hash == v.Hash {
			return nil
		}
		return fmt.Errorf("schema version %s already registered with different columns", v.ID)
	}
	r.versions[v.ID] = v
	return nil
}

// Resolve returns the version with exactly the given identifier.
func (r *Registry) Resolve(id string) (*Version, error) {
	r.mu.RLock()
	v, ok := r.versions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, &gmnerr.UnknownSchemaVersionError{Version: id, Known: r.IDs()}
	}
	return v, nil
}

// Latest returns the highest registered version.
func (r *Registry) Latest() (*Version, error) {
	all := r.List()
	if len(all) == 0 {
		return nil, &gmnerr.UnknownSchemaVersionError{Version: "latest"}
	}
	return all[len(all)-1], nil
}

// List returns all versions in ascending order.
func (r *Registry) List() []*Version {
	r.mu.RLock()
	out := make([]*Version, 0, len(r.versions))
	for _, v := range r.versions {
		out = append(out, v)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return CompareIDs(out[i].ID, out[j].ID) < 0 })
	return out
}

// IDs returns the registered identifiers in ascending order.
func (r *Registry) IDs() []string {
	all := r.List()
	ids := make([]string, len(all))
	for i, v := range all {
		ids[i] = v.ID
	}
	return ids
}

// InferByFileColumns finds the version whose data directory files carry n
// columns after the index. Exactly one version must match.
func (r *Registry) InferByFileColumns(n int) (*Version, error) {
	var match []*Version
	for _, v := range r.List() {
		if len(v.FileColumns()) == n {
			match = append(match, v)
		}
	}
	return r.single(match, fmt.Sprintf("<%d file columns>", n))
}

// InferByHeader finds the version whose camel-case names, index first,
// equal the given header tokens.
func (r *Registry) InferByHeader(tokens []string) (*Version, error) {
	var match []*Version
	for _, v := range r.List() {
		if v.MatchesHeader(tokens) {
			match = append(match, v)
		}
	}
	return r.single(match, fmt.Sprintf("<header of %d columns>", len(tokens)))
}

func (r *Registry) single(match []*Version, desc string) (*Version, error) {
	if len(match) != 1 {
		return nil, &gmnerr.UnknownSchemaVersionError{Version: desc, Known: r.IDs()}
	}
	return match[0], nil
}

// MatchesHeader reports whether tokens is exactly v's REST header: the
// camel-case index name followed by every column's camel-case name in order.
func (v *Version) MatchesHeader(tokens []string) bool {
	return v.HeaderMismatch(tokens) < 0
}

// HeaderMismatch returns the position of the first header token that
// differs from v's camel-case names, or -1 if none does. Position 0 is the
// index; a header shorter or longer than v mismatches at the first missing
// or surplus position.
func (v *Version) HeaderMismatch(tokens []string) int {
	if len(tokens) == 0 || tokens[0] != v.Index.CamelCaseName {
		return 0
	}
	for i, c := range v.Columns {
		if i+1 >= len(tokens) || tokens[i+1] != c.CamelCaseName {
			return i + 1
		}
	}
	if len(tokens) > len(v.Columns)+1 {
		return len(v.Columns) + 1
	}
	return -1
}
