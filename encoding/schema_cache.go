package encoding

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/gmn-data-platform/gmntraj/metrics"
	"github.com/gmn-data-platform/gmntraj/schema"
)

// columnHashProp is the top-level schema attribute recording the column
// definitions hash a cached file was synthesized from.
const columnHashProp = "gmntraj.column_hash"

// SchemaCache is a thread-safe in-memory cache of synthesized schemas,
// keyed by schema version.
type SchemaCache struct {
	mu      sync.RWMutex
	entries map[string]*Artifact
}

// NewSchemaCache creates an empty schema cache.
func NewSchemaCache() *SchemaCache {
	return &SchemaCache{
		entries: make(map[string]*Artifact),
	}
}

// Get returns the cached artifact and true, or nil and false.
func (c *SchemaCache) Get(version string) (*Artifact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.entries[version]
	return a, ok
}

// Put stores an artifact in the cache.
func (c *SchemaCache) Put(a *Artifact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[a.Version] = a
}

// Cache keeps synthesized schemas in memory and, when dir is set, as
// .avsc files in dir. Concurrent writers of the same version race; the
// last rename wins and every reader sees a complete file.
type Cache struct {
	dir       string
	camelCase bool
	mem       *SchemaCache
	logger    *slog.Logger
}

// NewCache creates a cache persisting to dir. An empty dir disables the
// disk layer. Disk entries are checked against the version's column hash
// and against the field names a schema for the version must carry, in
// camel case when camelCase is set.
func NewCache(dir string, camelCase bool, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		dir:       dir,
		camelCase: camelCase,
		mem:       NewSchemaCache(),
		logger:    logger.With("component", "schema_cache"),
	}
}

// Path returns the file holding the schema of version.
func (c *Cache) Path(version string) string {
	return filepath.Join(c.dir, fmt.Sprintf("trajectory_summary_schema_%s.avsc", version))
}

// Get returns a valid cached artifact for v. A disk entry that fails to
// parse, lacks v's column hash or whose fields differ from v's columns is
// stale and ignored.
func (c *Cache) Get(v *schema.Version) (*Artifact, bool) {
	if a, ok := c.mem.Get(v.ID); ok {
		metrics.SchemaCacheHits.WithLabelValues("memory").Inc()
		return a, true
	}
	if c.dir == "" {
		return nil, false
	}

	path := c.Path(v.ID)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("read cached schema", "path", path, "error", err)
		}
		return nil, false
	}

	hash, data := splitColumnHash(data)
	a, err := NewArtifact(v.ID, data)
	if err != nil {
		metrics.SchemaCacheStale.Inc()
		c.logger.Info("cached schema is stale", "path", path, "error", err)
		return nil, false
	}
	if hash != v.Hash {
		metrics.SchemaCacheStale.Inc()
		c.logger.Info("cached schema is stale", "path", path, "column_hash", hash, "want_column_hash", v.Hash)
		return nil, false
	}
	a.ColumnHash = hash
	if want := FieldNames(v, c.camelCase); !slices.Equal(a.Fields(), want) {
		metrics.SchemaCacheStale.Inc()
		c.logger.Info("cached schema is stale", "path", path, "fields", len(a.Fields()), "want_fields", len(want))
		return nil, false
	}

	c.mem.Put(a)
	metrics.SchemaCacheHits.WithLabelValues("disk").Inc()
	return a, true
}

// Put stores a in memory and, when the disk layer is enabled, writes it
// to Path(a.Version) through a temp file and rename. The file carries
// a.ColumnHash as a schema attribute; without one Get treats it as stale.
func (c *Cache) Put(a *Artifact) error {
	c.mem.Put(a)
	if c.dir == "" {
		return nil
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create schema cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, ".trajectory_summary_schema_*.tmp")
	if err != nil {
		return fmt.Errorf("create temp schema file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp schema file: %w", err)
	}
	if _, err := tmp.Write(withColumnHash(a.JSON, a.ColumnHash)); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp schema file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp schema file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.Path(a.Version)); err != nil {
		return fmt.Errorf("rename schema file: %w", err)
	}
	c.logger.Debug("cached schema", "path", c.Path(a.Version), "fingerprint", a.Fingerprint)
	return nil
}

// withColumnHash prepends the column hash attribute to a record schema.
// Other schemas are returned unchanged.
func withColumnHash(data []byte, hash string) []byte {
	if hash == "" || len(data) < 2 || data[0] != '{' || bytes.HasPrefix(bytes.TrimSpace(data[1:]), []byte("}")) {
		return data
	}
	out := make([]byte, 0, len(data)+len(columnHashProp)+len(hash)+8)
	out = fmt.Appendf(out, "{%q:%q,", columnHashProp, hash)
	return append(out, data[1:]...)
}

// splitColumnHash reverses withColumnHash. It returns an empty hash and
// data unchanged when the attribute is absent.
func splitColumnHash(data []byte) (string, []byte) {
	rest, ok := bytes.CutPrefix(data, fmt.Appendf(nil, "{%q:\"", columnHashProp))
	if !ok {
		return "", data
	}
	hash, body, ok := bytes.Cut(rest, []byte(`",`))
	if !ok {
		return "", data
	}
	return string(hash), append([]byte{'{'}, body...)
}
