// Package manifest handles leaf.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/chazu/leafkit/cache"
	"github.com/chazu/leafkit/vm"
)

// FileName is the manifest file looked up in project directories.
const FileName = "leaf.toml"

// Manifest represents a leaf.toml project configuration.
type Manifest struct {
	Project      Project               `toml:"project"`
	Source       Source                `toml:"source"`
	Render       Render                `toml:"render"`
	Cache        Cache                 `toml:"cache"`
	Dependencies map[string]Dependency `toml:"dependencies"`

	// Dir is the directory containing the leaf.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name string `toml:"name"`
	// Namespace prefixes this project's templates when another project
	// depends on it.
	Namespace string `toml:"namespace"`
}

// Source configures template locations.
type Source struct {
	Dirs      []string `toml:"dirs"`
	Extension string   `toml:"extension"`
}

// Render configures serialization.
type Render struct {
	// Timeout is a Go duration string such as "50ms".
	Timeout string `toml:"timeout"`
	// MissingVariable is "throw" or "nil".
	MissingVariable string `toml:"missing-variable"`
	Encoding        string `toml:"encoding"`
	// Buffer is the output buffer kind, "text" or "html".
	Buffer  string `toml:"buffer"`
	NilText string `toml:"nil-text"`
}

// Cache configures the compiled template cache.
type Cache struct {
	// Policy lists "read", "store" and "limit-raw-inlines"; an empty list
	// bypasses the cache.
	Policy []string `toml:"policy"`
	// SQLite is a database path; empty keeps the cache in memory.
	SQLite         string `toml:"sqlite"`
	RawInlineLimit int64  `toml:"raw-inline-limit"`
}

// Dependency is a template library, from a local path or a git repository.
type Dependency struct {
	Git       string `toml:"git"`
	Tag       string `toml:"tag"`
	Path      string `toml:"path"`
	Namespace string `toml:"namespace"`
}

// DefaultRawInlineLimit caps raw inlines when the cache limits them.
const DefaultRawInlineLimit = 1 << 20

// Load parses a leaf.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: cannot read %s: %w", path, err)
	}

	m := Manifest{Cache: Cache{Policy: []string{"read", "store", "limit-raw-inlines"}}}
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("manifest: parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("manifest: unknown key %s in %s", undecoded[0], path)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("manifest: cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"templates"}
	}
	if m.Source.Extension == "" {
		m.Source.Extension = "leaf"
	}
	m.Source.Extension = strings.TrimPrefix(m.Source.Extension, ".")
	if m.Cache.RawInlineLimit == 0 {
		m.Cache.RawInlineLimit = DefaultRawInlineLimit
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a leaf.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		if filepath.IsAbs(d) {
			paths = append(paths, d)
			continue
		}
		paths = append(paths, filepath.Join(m.Dir, d))
	}
	return paths
}

// DepsDir returns the path to the .leaf/deps directory.
func (m *Manifest) DepsDir() string {
	return filepath.Join(m.Dir, ".leaf", "deps")
}

// LockFilePath returns the path to .leaf/lock.toml.
func (m *Manifest) LockFilePath() string {
	return filepath.Join(m.Dir, ".leaf", "lock.toml")
}

// CachePath returns the absolute SQLite cache path, or "" for an
// in-memory cache.
func (m *Manifest) CachePath() string {
	if m.Cache.SQLite == "" || filepath.IsAbs(m.Cache.SQLite) {
		return m.Cache.SQLite
	}
	return filepath.Join(m.Dir, m.Cache.SQLite)
}

// Options freezes the [render] section into serializer options bound to r.
func (m *Manifest) Options(r *vm.Registry) (vm.Options, error) {
	opts := vm.DefaultOptions()
	opts.Registry = r

	if m.Render.Timeout != "" {
		d, err := time.ParseDuration(m.Render.Timeout)
		if err != nil {
			return opts, fmt.Errorf("manifest: render.timeout: %w", err)
		}
		opts.Timeout = max(d, vm.MinimumTimeout)
	}

	switch m.Render.MissingVariable {
	case "", "throw":
		opts.MissingVariableThrows = true
	case "nil":
		opts.MissingVariableThrows = false
	default:
		return opts, fmt.Errorf("manifest: render.missing-variable must be \"throw\" or \"nil\", got %q", m.Render.MissingVariable)
	}

	if m.Render.Encoding != "" {
		enc, err := vm.ParseEncoding(m.Render.Encoding)
		if err != nil {
			return opts, fmt.Errorf("manifest: render.encoding: %w", err)
		}
		opts.Encoding = enc
	}

	if m.Render.Buffer != "" {
		if r == nil {
			r = vm.DefaultRegistry()
		}
		if _, ok := r.Buffer(m.Render.Buffer); !ok {
			return opts, fmt.Errorf("manifest: render.buffer: unknown buffer kind %q", m.Render.Buffer)
		}
		opts.Buffer = m.Render.Buffer
	}

	if m.Render.NilText != "" {
		text := m.Render.NilText
		opts.Formatters.Nil = func() string { return text }
	}
	return opts, nil
}

// CachePolicy parses the [cache] policy list.
func (m *Manifest) CachePolicy() (cache.Policy, error) {
	p := cache.Bypass
	for _, name := range m.Cache.Policy {
		switch name {
		case "read":
			p |= cache.PolicyRead
		case "store":
			p |= cache.PolicyStore
		case "limit-raw-inlines":
			p |= cache.PolicyLimitRawInlines
		case "bypass":
		default:
			return p, fmt.Errorf("manifest: unknown cache policy %q", name)
		}
	}
	return p, nil
}
