package vm

import (
	"errors"
	"fmt"
	"sort"
)

// ErrAmbiguousOverload is returned when a registration would make some
// argument list match two overloads.
var ErrAmbiguousOverload = errors.New("vm: ambiguous overload")

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// Registry maps names to blocks, functions, methods and buffer kinds.
// It is populated before compiling or rendering and only read afterwards.
type Registry struct {
	blocks    map[string]BlockKind
	functions map[string][]Function
	methods   map[string][]Function
	buffers   map[string]BufferFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		blocks:    make(map[string]BlockKind),
		functions: make(map[string][]Function),
		methods:   make(map[string][]Function),
		buffers:   make(map[string]BufferFactory),
	}
}

// DefaultRegistry returns a registry with the built-in blocks, functions,
// methods and buffer kinds.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, k := range builtinBlocks() {
		if err := r.RegisterBlock(k); err != nil {
			panic(err)
		}
	}
	registerBuiltinFunctions(r)
	r.buffers[TextBufferKind] = NewTextBuffer
	r.buffers[HTMLBufferKind] = NewHTMLBuffer
	return r
}

// RegisterBlock adds a block kind under its name.
func (r *Registry) RegisterBlock(k BlockKind) error {
	name := k.Name()
	if !validIdentifier(name) {
		return fmt.Errorf("vm: invalid block name %q", name)
	}
	if _, dup := r.blocks[name]; dup {
		return fmt.Errorf("vm: block %s already registered", name)
	}
	r.blocks[name] = k
	return nil
}

// RegisterFunction adds an overload of a free function.
func (r *Registry) RegisterFunction(name string, f Function) error {
	return registerOverload(r.functions, name, f)
}

// RegisterMethod adds an overload callable as receiver.name(...). The
// receiver binds to the first parameter.
func (r *Registry) RegisterMethod(name string, f Function) error {
	if len(f.Signature()) == 0 {
		return fmt.Errorf("vm: method %s needs a receiver parameter", name)
	}
	return registerOverload(r.methods, name, f)
}

// RegisterBuffer adds an output buffer kind for raw switching.
func (r *Registry) RegisterBuffer(kind string, f BufferFactory) error {
	if _, dup := r.buffers[kind]; dup {
		return fmt.Errorf("vm: buffer kind %s already registered", kind)
	}
	r.buffers[kind] = f
	return nil
}

func registerOverload(m map[string][]Function, name string, f Function) error {
	if !validIdentifier(name) {
		return fmt.Errorf("vm: invalid function name %q", name)
	}
	sig := f.Signature()
	for _, existing := range m[name] {
		if existing.Signature().overlaps(sig) {
			return fmt.Errorf("%w: %s%s overlaps %s%s", ErrAmbiguousOverload,
				name, sig, name, existing.Signature())
		}
	}
	m[name] = append(m[name], f)
	return nil
}

// Block returns the block kind registered as name.
func (r *Registry) Block(name string) (BlockKind, bool) {
	k, ok := r.blocks[name]
	return k, ok
}

// Functions returns the overloads of name.
func (r *Registry) Functions(name string) []Function { return r.functions[name] }

// Methods returns the method overloads of name.
func (r *Registry) Methods(name string) []Function { return r.methods[name] }

// Buffer returns the factory for a buffer kind.
func (r *Registry) Buffer(kind string) (BufferFactory, bool) {
	f, ok := r.buffers[kind]
	return f, ok
}

// BlockNames returns the registered block names in order.
func (r *Registry) BlockNames() []string {
	names := make([]string, 0, len(r.blocks))
	for n := range r.blocks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FunctionNames returns the names of registered functions and methods,
// sorted and without duplicates.
func (r *Registry) FunctionNames() []string {
	seen := make(map[string]bool, len(r.functions)+len(r.methods))
	var names []string
	for _, m := range []map[string][]Function{r.functions, r.methods} {
		for n := range m {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	sort.Strings(names)
	return names
}
