package gmntraj

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/gmn-data-platform/gmntraj/encoding"
	"github.com/gmn-data-platform/gmntraj/encoding/registry"
	"github.com/gmn-data-platform/gmntraj/model"
	"github.com/gmn-data-platform/gmntraj/reader"
	"github.com/gmn-data-platform/gmntraj/schema"
	"github.com/gmn-data-platform/gmntraj/table"
)

// SchemaProvider serves the Avro schema of each summary format version.
// Schemas are synthesized from the embedded model file, read in the data
// directory dialect with camel-case names, and cached.
type SchemaProvider struct {
	registry *schema.Registry
	synth    *encoding.Synthesizer
	cache    *encoding.Cache
	cacheDir string
	logger   *slog.Logger
	group    singleflight.Group
}

// ProviderOption configures a SchemaProvider.
type ProviderOption func(*SchemaProvider)

// WithCacheDir persists synthesized schemas as .avsc files in dir.
func WithCacheDir(dir string) ProviderOption {
	return func(p *SchemaProvider) { p.cacheDir = dir }
}

// WithSynthesizer replaces the default synthesizer.
func WithSynthesizer(s *encoding.Synthesizer) ProviderOption {
	return func(p *SchemaProvider) { p.synth = s }
}

// WithProviderRegistry resolves versions against r instead of schema.Default().
func WithProviderRegistry(r *schema.Registry) ProviderOption {
	return func(p *SchemaProvider) { p.registry = r }
}

// WithProviderLogger sets the logger. If not set, slog.Default() is used.
func WithProviderLogger(l *slog.Logger) ProviderOption {
	return func(p *SchemaProvider) { p.logger = l }
}

// NewSchemaProvider creates a SchemaProvider.
func NewSchemaProvider(opts ...ProviderOption) *SchemaProvider {
	p := &SchemaProvider{
		registry: schema.Default(),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.synth == nil {
		p.synth = encoding.NewSynthesizer(p.logger)
	}
	p.cache = encoding.NewCache(p.cacheDir, true, p.logger)
	p.logger = p.logger.With("component", "schema_provider")
	return p
}

// Schema returns the Avro schema of version. Concurrent calls for the
// same version share one synthesis.
func (p *SchemaProvider) Schema(version string) (*encoding.Artifact, error) {
	v, err := p.registry.Resolve(version)
	if err != nil {
		return nil, err
	}
	if a, ok := p.cache.Get(v); ok {
		return a, nil
	}

	res, err, _ := p.group.Do(v.ID, func() (any, error) {
		if a, ok := p.cache.Get(v); ok {
			return a, nil
		}
		a, err := p.synthesize(v)
		if err != nil {
			return nil, err
		}
		if err := p.cache.Put(a); err != nil {
			// The artifact is still valid; only persistence failed.
			p.logger.Warn("persist schema", "version", v.ID, "error", err)
		}
		return a, nil
	})
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", version, err)
	}
	return res.(*encoding.Artifact), nil
}

// CachePath returns the disk cache file of version, or "" when the disk
// layer is disabled.
func (p *SchemaProvider) CachePath(version string) string {
	if p.cacheDir == "" {
		return ""
	}
	return p.cache.Path(version)
}

// Publish registers the schema of version with a schema registry under
// subject and returns the registry's schema ID. A schema that is not
// compatible with the subject's latest version is not registered.
func (p *SchemaProvider) Publish(ctx context.Context, c *registry.Client, subject, version string) (int, error) {
	a, err := p.Schema(version)
	if err != nil {
		return 0, err
	}
	ok, err := c.CheckCompatibility(ctx, subject, string(a.JSON))
	if err != nil {
		return 0, fmt.Errorf("publish schema %s: %w", a.Version, err)
	}
	if !ok {
		return 0, fmt.Errorf("publish schema %s to %s: %w", a.Version, subject, registry.ErrIncompatible)
	}
	id, err := c.Register(ctx, subject, string(a.JSON))
	if err != nil {
		return 0, fmt.Errorf("publish schema %s: %w", a.Version, err)
	}
	p.logger.Info("published schema", "version", a.Version, "subject", subject, "id", id)
	return id, nil
}

func (p *SchemaProvider) synthesize(v *schema.Version) (*encoding.Artifact, error) {
	data, err := model.TrajectorySummary(v.ID)
	if err != nil {
		return nil, err
	}
	rec, err := reader.Normalize(data, reader.DataDirectory,
		reader.WithVersion(v.ID),
		reader.WithRegistry(p.registry),
		reader.WithLogger(p.logger),
	)
	if err != nil {
		return nil, err
	}
	t, err := table.Coerce(rec, table.Options{CamelCase: true, SerializationSafe: true, Logger: p.logger})
	if err != nil {
		return nil, err
	}
	a, err := p.synth.Synthesize(t)
	if err != nil {
		return nil, err
	}
	p.logger.Info("synthesized schema", "version", v.ID, "fingerprint", a.Fingerprint)
	return a, nil
}
