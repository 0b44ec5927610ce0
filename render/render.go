// Package render ties the pieces together: it reads templates from a
// Source, compiles them through the AST cache, splices their inlines and
// serializes the result.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/leafkit/cache"
	"github.com/chazu/leafkit/compiler"
	"github.com/chazu/leafkit/manifest"
	"github.com/chazu/leafkit/vm"
)

var (
	ErrInlineCycle       = errors.New("render: inline cycle")
	ErrRawInlineTooLarge = errors.New("render: raw inline exceeds limit")
)

// Config assembles a Renderer.
type Config struct {
	Source Source
	// Compiler defaults to one bound to Options.Registry.
	Compiler *compiler.Compiler
	// Cache defaults to an in-memory cache with cache.DefaultPolicy.
	Cache *cache.Cache
	// Options is used as is; start from vm.DefaultOptions.
	Options vm.Options
	// RawInlineLimit caps raw inlines, in bytes, when the cache policy
	// limits them. Zero means manifest.DefaultRawInlineLimit.
	RawInlineLimit int64
}

// Renderer renders named templates. It is safe for concurrent use.
type Renderer struct {
	source     Source
	compiler   *compiler.Compiler
	cache      *cache.Cache
	serializer *vm.Serializer
	rawLimit   int64
	closer     io.Closer
	log        commonlog.Logger
}

// New creates a renderer from cfg.
func New(cfg Config) (*Renderer, error) {
	if cfg.Source == nil {
		return nil, errors.New("render: no source")
	}
	c := cfg.Compiler
	if c == nil {
		c = compiler.New(cfg.Options.Registry)
	}
	opts := cfg.Options
	if opts.Registry == nil {
		opts.Registry = c.Registry()
	}
	cc := cfg.Cache
	if cc == nil {
		cc = cache.New(nil, cache.DefaultPolicy)
	}
	limit := cfg.RawInlineLimit
	if limit <= 0 {
		limit = manifest.DefaultRawInlineLimit
	}
	return &Renderer{
		source:     cfg.Source,
		compiler:   c,
		cache:      cc,
		serializer: vm.NewSerializer(opts),
		rawLimit:   limit,
		log:        commonlog.GetLogger("leafkit.render"),
	}, nil
}

// Open builds a renderer for the project described by m: its template
// libraries are resolved, and a SQLite cache is opened when the manifest
// names one. Close releases it.
func Open(ctx context.Context, m *manifest.Manifest) (*Renderer, error) {
	var deps []manifest.ResolvedDep
	if len(m.Dependencies) > 0 {
		var err error
		if deps, err = manifest.NewResolver(m).Resolve(ctx); err != nil {
			return nil, err
		}
	}

	policy, err := m.CachePolicy()
	if err != nil {
		return nil, err
	}
	reg := vm.DefaultRegistry()
	opts, err := m.Options(reg)
	if err != nil {
		return nil, err
	}

	var store cache.Store
	var closer io.Closer
	if p := m.CachePath(); p != "" && policy != cache.Bypass {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return nil, fmt.Errorf("render: creating cache dir: %w", err)
		}
		s, err := cache.OpenSQLite(p, reg)
		if err != nil {
			return nil, err
		}
		store, closer = s, s
	}

	r, err := New(Config{
		Source:         ManifestSource(m, deps),
		Compiler:       compiler.New(reg),
		Cache:          cache.New(store, policy),
		Options:        opts,
		RawInlineLimit: m.Cache.RawInlineLimit,
	})
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, err
	}
	r.closer = closer
	return r, nil
}

// Close releases the cache database, if any.
func (r *Renderer) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Cache returns the renderer's AST cache.
func (r *Renderer) Cache() *cache.Cache { return r.cache }

// Render serializes the named template against vctx. A nil context is
// empty.
func (r *Renderer) Render(ctx context.Context, name string, vctx *vm.Context) ([]byte, error) {
	id := uuid.New()
	start := time.Now()

	ast, err := r.load(ctx, id, name)
	if err != nil {
		r.log.Errorf("[%s] %s: %v", id, name, err)
		return nil, err
	}
	if vctx == nil {
		vctx = vm.NewContext()
	}
	buf, err := r.serializer.Serialize(ast, vctx)
	if err != nil {
		r.log.Errorf("[%s] %s: %v", id, name, err)
		return nil, fmt.Errorf("render: %s: %w", name, err)
	}
	r.log.Debugf("[%s] rendered %s in %s", id, name, time.Since(start))
	return buf.Bytes(), nil
}

// Load returns the named template compiled, with every inline resolved.
func (r *Renderer) Load(ctx context.Context, name string) (*vm.AST, error) {
	return r.load(ctx, uuid.New(), name)
}

func (r *Renderer) load(ctx context.Context, id uuid.UUID, name string) (*vm.AST, error) {
	l := &loader{r: r, id: id, done: make(map[string]*vm.AST)}
	return l.load(ctx, name)
}

// ---------------------------------------------------------------------------
// Inline resolution
// ---------------------------------------------------------------------------

// loader resolves one template tree. Each template is loaded once; active
// holds the chain of templates being resolved.
type loader struct {
	r      *Renderer
	id     uuid.UUID
	done   map[string]*vm.AST
	active []string
}

func (l *loader) load(ctx context.Context, name string) (*vm.AST, error) {
	if ast, ok := l.done[name]; ok {
		return ast, nil
	}
	if slices.Contains(l.active, name) {
		chain := append(slices.Clone(l.active), name)
		return nil, fmt.Errorf("%w: %s", ErrInlineCycle, strings.Join(chain, " -> "))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.active = append(l.active, name)
	defer func() { l.active = l.active[:len(l.active)-1] }()

	src, err := l.r.source.Template(ctx, name)
	if err != nil {
		return nil, err
	}
	ast, err := l.r.cache.Fetch(ctx, cache.KeyOf(name, src), func() (*vm.AST, error) {
		l.r.log.Infof("[%s] compiling %s", l.id, name)
		return l.r.compiler.Compile(name, string(src))
	})
	if err != nil {
		return nil, err
	}

	if len(ast.Inlines) > 0 {
		templates := make(map[string]*vm.AST)
		raws := make(map[string][]byte)
		for _, ref := range ast.Inlines {
			if ref.Raw {
				if _, ok := raws[ref.Name]; ok {
					continue
				}
				p, err := l.raw(ctx, ref.Name)
				if err != nil {
					return nil, fmt.Errorf("render: %s: %w", name, err)
				}
				raws[ref.Name] = p
				continue
			}
			if _, ok := templates[ref.Name]; ok {
				continue
			}
			dep, err := l.load(ctx, ref.Name)
			if err != nil {
				return nil, err
			}
			templates[ref.Name] = dep
		}
		l.r.log.Debugf("[%s] %s: resolved %d templates, %d raw", l.id, name, len(templates), len(raws))
		ast = ast.Resolve(templates, raws)
	}

	l.done[name] = ast
	return ast, nil
}

func (l *loader) raw(ctx context.Context, name string) ([]byte, error) {
	p, err := l.r.source.Raw(ctx, name)
	if err != nil {
		return nil, err
	}
	if l.r.cache.Policy().Has(cache.PolicyLimitRawInlines) && int64(len(p)) > l.r.rawLimit {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrRawInlineTooLarge, name, len(p), l.r.rawLimit)
	}
	return p, nil
}
