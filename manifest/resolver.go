package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/tliron/commonlog"
)

// ResolvedDep is a template library resolved to a local directory.
type ResolvedDep struct {
	Name      string
	LocalPath string
	// Namespace prefixes the library's template names: "ui/button".
	Namespace string
	// Manifest is the library's own leaf.toml, nil when it has none.
	Manifest *Manifest
}

// SourceDirs returns the directories holding the library's templates:
// its manifest's source dirs, or its root when it has no manifest.
func (rd ResolvedDep) SourceDirs() []string {
	if rd.Manifest == nil {
		return []string{rd.LocalPath}
	}
	return rd.Manifest.SourceDirPaths()
}

// Roots maps each namespace to its template directories. The empty
// namespace is the project's own source dirs.
func Roots(m *Manifest, deps []ResolvedDep) map[string][]string {
	roots := map[string][]string{"": m.SourceDirPaths()}
	for _, rd := range deps {
		roots[rd.Namespace] = rd.SourceDirs()
	}
	return roots
}

// Resolver fetches template libraries named in [dependencies].
type Resolver struct {
	manifest *Manifest
	lock     *LockFile
	log      commonlog.Logger
}

// NewResolver creates a dependency resolver for m.
func NewResolver(m *Manifest) *Resolver {
	return &Resolver{
		manifest: m,
		log:      commonlog.GetLogger("leafkit.manifest"),
	}
}

// Resolve resolves all dependencies and returns them in load order
// (dependencies before dependents), then rewrites the lock file.
func (r *Resolver) Resolve(ctx context.Context) ([]ResolvedDep, error) {
	lock, err := ReadLock(r.manifest.LockFilePath())
	if err != nil {
		return nil, fmt.Errorf("manifest: reading lock file: %w", err)
	}
	r.lock = lock

	if err := os.MkdirAll(r.manifest.DepsDir(), 0755); err != nil {
		return nil, fmt.Errorf("manifest: creating deps dir: %w", err)
	}

	resolved := make(map[string]*ResolvedDep)
	order, err := r.resolveAll(ctx, r.manifest.Dir, r.manifest.Dependencies, resolved)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]string)
	for _, rd := range order {
		if other, ok := seen[rd.Namespace]; ok {
			return nil, fmt.Errorf("manifest: dependencies %q and %q share namespace %q", other, rd.Name, rd.Namespace)
		}
		seen[rd.Namespace] = rd.Name
	}

	if err := r.writeLock(resolved); err != nil {
		return nil, fmt.Errorf("manifest: writing lock file: %w", err)
	}
	return order, nil
}

// resolveAll resolves deps, declared in the manifest in base, and their
// transitive dependencies in dependency order. Names are visited sorted so
// the order is stable.
func (r *Resolver) resolveAll(ctx context.Context, base string, deps map[string]Dependency, resolved map[string]*ResolvedDep) ([]ResolvedDep, error) {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	var order []ResolvedDep
	for _, name := range names {
		if _, ok := resolved[name]; ok {
			continue
		}

		rd, err := r.resolveOne(ctx, base, name, deps[name])
		if err != nil {
			return nil, fmt.Errorf("manifest: resolving %s: %w", name, err)
		}
		resolved[name] = rd

		if rd.Manifest != nil && len(rd.Manifest.Dependencies) > 0 {
			transitive, err := r.resolveAll(ctx, rd.Manifest.Dir, rd.Manifest.Dependencies, resolved)
			if err != nil {
				return nil, err
			}
			order = append(order, transitive...)
		}
		order = append(order, *rd)
	}
	return order, nil
}

// resolveNamespace picks a dependency's namespace:
//  1. Consumer override (dep.Namespace)
//  2. Producer manifest (Project.Namespace)
//  3. The dependency name, via ToNamespace
func resolveNamespace(name string, dep Dependency, depManifest *Manifest) (string, error) {
	var ns string
	switch {
	case dep.Namespace != "":
		ns = dep.Namespace
	case depManifest != nil && depManifest.Project.Namespace != "":
		ns = depManifest.Project.Namespace
	default:
		ns = ToNamespace(name)
	}

	if err := CheckNamespace(ns); err != nil {
		return "", fmt.Errorf("dependency %q: %w; add namespace = \"...\" in [dependencies]", name, err)
	}
	return ns, nil
}

func (r *Resolver) resolveOne(ctx context.Context, base, name string, dep Dependency) (*ResolvedDep, error) {
	var dir string
	switch {
	case dep.Path != "":
		localPath := dep.Path
		if !filepath.IsAbs(localPath) {
			localPath = filepath.Join(base, localPath)
		}
		localPath, err := filepath.Abs(localPath)
		if err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", dep.Path, err)
		}
		if _, err := os.Stat(localPath); err != nil {
			return nil, fmt.Errorf("local dependency not found at %s: %w", localPath, err)
		}
		dir = localPath

	case dep.Git != "":
		dir = filepath.Join(r.manifest.DepsDir(), name)
		if err := r.fetchGit(ctx, name, dep, dir); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("dependency %q has no git or path specified", name)
	}

	// A library without its own leaf.toml serves templates from its root.
	var depManifest *Manifest
	if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
		if depManifest, err = Load(dir); err != nil {
			return nil, err
		}
	}

	ns, err := resolveNamespace(name, dep, depManifest)
	if err != nil {
		return nil, err
	}
	r.log.Debugf("resolved %s -> %s as %q", name, dir, ns)
	return &ResolvedDep{
		Name:      name,
		LocalPath: dir,
		Namespace: ns,
		Manifest:  depManifest,
	}, nil
}

func (r *Resolver) fetchGit(ctx context.Context, name string, dep Dependency, dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		r.log.Infof("cloning %s from %s", name, dep.Git)
		if err := gitClone(ctx, dep.Git, dir); err != nil {
			return err
		}
	} else {
		clean, err := gitIsClean(dir)
		if err != nil {
			return err
		}
		if !clean {
			return fmt.Errorf("%s has local changes", dir)
		}
		// Already at the locked version; skip the fetch.
		locked := r.lock.FindLockedDep(name)
		if locked == nil || locked.Tag != dep.Tag {
			r.log.Infof("fetching %s", name)
			if err := gitFetch(ctx, dir); err != nil {
				return err
			}
		}
	}

	if dep.Tag != "" {
		return gitCheckout(dir, dep.Tag)
	}
	return nil
}

func (r *Resolver) writeLock(resolved map[string]*ResolvedDep) error {
	lf := &LockFile{}
	for _, rd := range resolved {
		ld := LockedDep{Name: rd.Name}

		// Transitive dependencies are not in this manifest and are
		// recorded by name only.
		dep := r.manifest.Dependencies[rd.Name]
		if dep.Git != "" {
			ld.Git = dep.Git
			ld.Tag = dep.Tag
			if commit, err := gitCurrentCommit(rd.LocalPath); err == nil {
				ld.Commit = commit
			}
		} else if dep.Path != "" {
			ld.Path = dep.Path
		}
		lf.Deps = append(lf.Deps, ld)
	}
	sort.Slice(lf.Deps, func(i, j int) bool { return lf.Deps[i].Name < lf.Deps[j].Name })

	if err := os.MkdirAll(filepath.Dir(r.manifest.LockFilePath()), 0755); err != nil {
		return err
	}
	return WriteLock(r.manifest.LockFilePath(), lf)
}
