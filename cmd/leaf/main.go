// Leaf CLI - renders a template of the current project to stdout
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"gopkg.in/yaml.v3"

	"github.com/chazu/leafkit/compiler"
	"github.com/chazu/leafkit/manifest"
	"github.com/chazu/leafkit/render"
	"github.com/chazu/leafkit/server"
	"github.com/chazu/leafkit/vm"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output (debug logging)")
	dir := flag.String("C", ".", "Project directory; leaf.toml is looked up from here")
	dumpAST := flag.Bool("ast", false, "Print the resolved scope tables instead of rendering")
	listCache := flag.Bool("cache-keys", false, "List the keys held by the AST cache after rendering")
	serveLSP := flag.Bool("lsp", false, "Start the template language server on stdio")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: leaf [options] template [context.yaml|context.json|-]\n\n")
		fmt.Fprintf(os.Stderr, "Renders a template with values from a YAML or JSON context file.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  leaf page ctx.yaml        # Render templates/page.leaf\n")
		fmt.Fprintf(os.Stderr, "  leaf ui/button ctx.json   # Render a template from the ui dependency\n")
		fmt.Fprintf(os.Stderr, "  leaf -ast page            # Show the compiled tables\n")
		fmt.Fprintf(os.Stderr, "  leaf -lsp                 # Serve editor features on stdio\n")
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	if *serveLSP {
		if err := runLSP(context.Background(), *dir); err != nil {
			fmt.Fprintf(os.Stderr, "leaf: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if flag.NArg() < 1 || flag.NArg() > 2 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(context.Background(), *dir, flag.Args(), *dumpAST, *listCache, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "leaf: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dir string, args []string, dumpAST, listCache bool, out io.Writer) error {
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return err
	}

	var r *render.Renderer
	ext := "leaf"
	if m != nil {
		ext = m.Source.Extension
		if r, err = render.Open(ctx, m); err != nil {
			return err
		}
	} else {
		// No project: templates are looked up relative to dir.
		r, err = render.New(render.Config{
			Source:  render.NewFileSource(map[string][]string{"": {dir}}, ext),
			Options: vm.DefaultOptions(),
		})
		if err != nil {
			return err
		}
	}
	defer r.Close()

	name := templateName(args[0], ext)
	if dumpAST {
		ast, err := r.Load(ctx, name)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(out, ast.String())
		return err
	}

	var values map[string]any
	if len(args) == 2 {
		if values, err = loadContext(args[1]); err != nil {
			return err
		}
	}
	vctx, err := vm.ContextFrom(values)
	if err != nil {
		return err
	}

	result, err := r.Render(ctx, name, vctx)
	if err != nil {
		return err
	}
	if _, err := out.Write(result); err != nil {
		return err
	}

	if listCache {
		keys, err := r.Cache().Store().Keys(ctx)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintln(os.Stderr, k)
		}
	}
	return nil
}

// runLSP serves the project's templates to an editor. Without a
// leaf.toml, #inline targets are looked up in dir.
func runLSP(ctx context.Context, dir string) error {
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return err
	}
	source := render.NewFileSource(map[string][]string{"": {dir}}, "leaf")
	if m != nil {
		var deps []manifest.ResolvedDep
		if len(m.Dependencies) > 0 {
			if deps, err = manifest.NewResolver(m).Resolve(ctx); err != nil {
				return err
			}
		}
		source = render.ManifestSource(m, deps)
	}
	return server.NewLSP(compiler.New(nil), source).Run()
}

// templateName accepts "page", "page.leaf" or "./page.leaf".
func templateName(arg, ext string) string {
	name := filepath.ToSlash(filepath.Clean(arg))
	return strings.TrimSuffix(name, "."+ext)
}

// loadContext reads a context file. YAML is a superset of JSON, so one
// decoder serves both; "-" reads stdin.
func loadContext(path string) (map[string]any, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading context: %w", err)
	}

	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parsing context %s: %w", path, err)
	}
	return values, nil
}
