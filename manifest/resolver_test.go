package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func TestResolveNamespace(t *testing.T) {
	tests := []struct {
		name        string
		depName     string
		dep         Dependency
		depManifest *Manifest
		wantNS      string
		wantErr     bool
	}{
		{
			name:    "consumer override wins",
			depName: "ui",
			dep:     Dependency{Path: "../ui", Namespace: "widgets"},
			depManifest: &Manifest{
				Project: Project{Namespace: "ui"},
			},
			wantNS: "widgets",
		},
		{
			name:    "producer namespace when no consumer override",
			depName: "ui-kit",
			dep:     Dependency{Path: "../ui"},
			depManifest: &Manifest{
				Project: Project{Namespace: "ui"},
			},
			wantNS: "ui",
		},
		{
			name:        "name fallback when no manifest",
			depName:     "MailKit",
			dep:         Dependency{Path: "../mail"},
			depManifest: nil,
			wantNS:      "mail-kit",
		},
		{
			name:    "name fallback when manifest has no namespace",
			depName: "mail_kit",
			dep:     Dependency{Path: "../mail"},
			depManifest: &Manifest{
				Project: Project{Name: "mail"},
			},
			wantNS: "mail-kit",
		},
		{
			name:        "multi-segment namespace rejected",
			depName:     "ui",
			dep:         Dependency{Path: "../ui", Namespace: "vendor/ui"},
			depManifest: nil,
			wantErr:     true,
		},
		{
			name:        "reserved namespace rejected",
			depName:     "up",
			dep:         Dependency{Path: "../up", Namespace: ".."},
			depManifest: nil,
			wantErr:     true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ns, err := resolveNamespace(tc.depName, tc.dep, tc.depManifest)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got namespace %q", ns)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ns != tc.wantNS {
				t.Errorf("namespace = %q, want %q", ns, tc.wantNS)
			}
		})
	}
}

func TestResolvePathDependencies(t *testing.T) {
	root := t.TempDir()
	app := filepath.Join(root, "app")
	ui := filepath.Join(root, "ui")
	icons := filepath.Join(root, "icons")
	for _, d := range []string{app, filepath.Join(ui, "views"), icons} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	writeManifest(t, app, `
[project]
name = "app"

[dependencies]
ui-kit = { path = "../ui" }
`)
	writeManifest(t, ui, `
[project]
name = "ui-kit"
namespace = "ui"

[source]
dirs = ["views"]

[dependencies]
icons = { path = "../icons" }
`)

	m, err := Load(app)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	deps, err := NewResolver(m).Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// Dependencies come before their dependents.
	if len(deps) != 2 || deps[0].Name != "icons" || deps[1].Name != "ui-kit" {
		t.Fatalf("deps = %+v, want [icons ui-kit]", deps)
	}
	if deps[0].Namespace != "icons" || deps[1].Namespace != "ui" {
		t.Errorf("namespaces = %q, %q; want icons, ui", deps[0].Namespace, deps[1].Namespace)
	}

	roots := Roots(m, deps)
	if got := roots["ui"]; len(got) != 1 || got[0] != filepath.Join(ui, "views") {
		t.Errorf("roots[ui] = %v", got)
	}
	if got := roots["icons"]; len(got) != 1 || got[0] != icons {
		t.Errorf("roots[icons] = %v, want the library root", got)
	}
	if got := roots[""]; len(got) != 1 || got[0] != filepath.Join(m.Dir, "templates") {
		t.Errorf("roots[\"\"] = %v", got)
	}

	lock, err := ReadLock(m.LockFilePath())
	if err != nil || lock == nil {
		t.Fatalf("ReadLock = %v, %v", lock, err)
	}
	if len(lock.Deps) != 2 || lock.Deps[0].Name != "icons" {
		t.Errorf("lock deps = %+v", lock.Deps)
	}
	if ld := lock.FindLockedDep("ui-kit"); ld == nil || ld.Path != "../ui" {
		t.Errorf("locked ui-kit = %+v", ld)
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name string
		deps string
	}{
		{"missing path", `gone = { path = "../nowhere" }`},
		{"no source", `empty = { tag = "v1" }`},
		{"shared namespace", "a = { path = \".\", namespace = \"x\" }\nb = { path = \".\", namespace = \"x\" }"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, "[project]\nname = \"app\"\n\n[dependencies]\n"+tc.deps+"\n")
			m, err := Load(dir)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if _, err := NewResolver(m).Resolve(context.Background()); err == nil {
				t.Error("Resolve should fail")
			}
		})
	}
}

// initLibrary creates a git repository holding one template and tags its
// only commit.
func initLibrary(t *testing.T, dir, tag string) string {
	t.Helper()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "card.leaf"), []byte("[#(title)]"), 0644); err != nil {
		t.Fatal(err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wt.Add("card.leaf"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	hash, err := wt.Commit("add card", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := repo.CreateTag(tag, hash, nil); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	return hash.String()
}

func TestResolveGitDependency(t *testing.T) {
	root := t.TempDir()
	lib := filepath.Join(root, "cards")
	commit := initLibrary(t, lib, "v1.0.0")

	app := filepath.Join(root, "app")
	if err := os.MkdirAll(app, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, app, "[project]\nname = \"app\"\n\n[dependencies]\nCardKit = { git = \""+lib+"\", tag = \"v1.0.0\" }\n")
	m, err := Load(app)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// The second pass finds the clone and the lock entry in place.
	for pass := 0; pass < 2; pass++ {
		deps, err := NewResolver(m).Resolve(context.Background())
		if err != nil {
			t.Fatalf("pass %d: Resolve: %v", pass, err)
		}
		if len(deps) != 1 || deps[0].Namespace != "card-kit" {
			t.Fatalf("pass %d: deps = %+v", pass, deps)
		}
		if deps[0].LocalPath != filepath.Join(m.DepsDir(), "CardKit") {
			t.Errorf("pass %d: LocalPath = %s", pass, deps[0].LocalPath)
		}
		if _, err := os.Stat(filepath.Join(deps[0].LocalPath, "card.leaf")); err != nil {
			t.Errorf("pass %d: cloned template missing: %v", pass, err)
		}
	}

	lock, err := ReadLock(m.LockFilePath())
	if err != nil {
		t.Fatalf("ReadLock: %v", err)
	}
	ld := lock.FindLockedDep("CardKit")
	if ld == nil || ld.Commit != commit || ld.Tag != "v1.0.0" || ld.Git != lib {
		t.Errorf("locked CardKit = %+v, want commit %s", ld, commit)
	}
}
