package render

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/chazu/leafkit/manifest"
)

// ErrNotFound is returned when a Source has no template or raw file by the
// requested name.
var ErrNotFound = errors.New("render: not found")

// Source supplies template text by name. Template names carry no
// extension; raw names are file names as written in #inline(..., as: raw).
type Source interface {
	Template(ctx context.Context, name string) ([]byte, error)
	Raw(ctx context.Context, name string) ([]byte, error)
}

// ---------------------------------------------------------------------------
// FileSource
// ---------------------------------------------------------------------------

// FileSource reads templates from directories on disk. Roots maps a
// namespace to its directories; the empty namespace holds unprefixed
// names. A name like "ui/button" is looked up under the "ui" namespace
// when one exists, and as a plain path otherwise.
type FileSource struct {
	roots map[string][]string
	ext   string
}

// NewFileSource returns a source over roots; ext is appended to template
// names.
func NewFileSource(roots map[string][]string, ext string) *FileSource {
	return &FileSource{roots: roots, ext: strings.TrimPrefix(ext, ".")}
}

// ManifestSource returns a FileSource over the project's source dirs and
// its resolved template libraries.
func ManifestSource(m *manifest.Manifest, deps []manifest.ResolvedDep) *FileSource {
	return NewFileSource(manifest.Roots(m, deps), m.Source.Extension)
}

func (s *FileSource) Template(ctx context.Context, name string) ([]byte, error) {
	return s.read(ctx, name, "."+s.ext)
}

func (s *FileSource) Raw(ctx context.Context, name string) ([]byte, error) {
	return s.read(ctx, name, "")
}

func (s *FileSource) read(ctx context.Context, name, suffix string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dirs, rel := s.locate(name)
	for _, dir := range dirs {
		p := filepath.Join(dir, filepath.FromSlash(rel)+suffix)
		data, err := os.ReadFile(p)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("render: reading %s: %w", p, err)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Path returns the file a template name resolves to.
func (s *FileSource) Path(name string) (string, bool) {
	dirs, rel := s.locate(name)
	for _, dir := range dirs {
		p := filepath.Join(dir, filepath.FromSlash(rel)+"."+s.ext)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
	}
	return "", false
}

// locate picks the directories for name and the path inside them. The
// path is cleaned against a virtual root so it cannot climb out.
func (s *FileSource) locate(name string) ([]string, string) {
	dirs := s.roots[""]
	if ns, rest := manifest.SplitNamespace(name); ns != "" {
		if nsDirs, ok := s.roots[ns]; ok {
			dirs, name = nsDirs, rest
		}
	}
	return dirs, strings.TrimPrefix(path.Clean("/"+name), "/")
}

// ---------------------------------------------------------------------------
// MapSource
// ---------------------------------------------------------------------------

// MapSource serves templates from memory.
type MapSource struct {
	Templates map[string]string
	Raws      map[string][]byte
}

func (s MapSource) Template(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, ok := s.Templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return []byte(src), nil
}

func (s MapSource) Raw(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := s.Raws[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return p, nil
}
