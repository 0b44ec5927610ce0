// Package cache stores compiled template ASTs, in memory or in SQLite,
// and makes sure each template is compiled at most once at a time.
package cache

import (
	"context"
	"errors"
	"strings"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/singleflight"

	"github.com/chazu/leafkit/vm"
)

// Policy selects how a Cache is used.
type Policy uint8

const (
	// PolicyRead serves ASTs from the store.
	PolicyRead Policy = 1 << iota
	// PolicyStore writes freshly compiled ASTs back.
	PolicyStore
	// PolicyLimitRawInlines caps the size of raw inlines embedded into
	// rendered ASTs.
	PolicyLimitRawInlines

	DefaultPolicy = PolicyRead | PolicyStore | PolicyLimitRawInlines
	// Bypass compiles every time and keeps nothing.
	Bypass Policy = 0
)

// Has reports whether every flag in f is set.
func (p Policy) Has(f Policy) bool { return p&f == f }

func (p Policy) String() string {
	var parts []string
	for _, f := range []struct {
		flag Policy
		name string
	}{{PolicyRead, "read"}, {PolicyStore, "store"}, {PolicyLimitRawInlines, "limit-raw-inlines"}} {
		if p.Has(f.flag) {
			parts = append(parts, f.name)
		}
	}
	if len(parts) == 0 {
		return "bypass"
	}
	return strings.Join(parts, "|")
}

// ErrNilAST is returned when a compile function yields no AST and no error.
var ErrNilAST = errors.New("cache: compile returned no AST")

// Cache fronts a Store with a Policy. Concurrent fetches of one key share
// a single compile.
type Cache struct {
	store  Store
	policy Policy
	group  singleflight.Group
	log    commonlog.Logger
}

// New creates a cache over store. A nil store means a fresh MemoryStore.
func New(store Store, policy Policy) *Cache {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Cache{store: store, policy: policy, log: commonlog.GetLogger("leafkit.cache")}
}

// Policy returns the cache's policy.
func (c *Cache) Policy() Policy { return c.policy }

// Store returns the backing store.
func (c *Cache) Store() Store { return c.store }

// Fetch returns the AST for k, calling compile on a miss. The result is
// either a complete AST or an error; a failed compile stores nothing.
func (c *Cache) Fetch(ctx context.Context, k Key, compile func() (*vm.AST, error)) (*vm.AST, error) {
	if c.policy.Has(PolicyRead) {
		ast, ok, err := c.store.Get(ctx, k)
		switch {
		case err != nil:
			c.log.Warningf("read %s: %v", k, err)
		case ok:
			c.log.Debugf("hit %s (%s)", k, ast.Name)
			return ast, nil
		}
	}

	v, err, shared := c.group.Do(k.String(), func() (any, error) {
		// A compile for k may have finished since the read above.
		if c.policy.Has(PolicyRead) {
			if ast, ok, err := c.store.Get(ctx, k); err == nil && ok {
				return ast, nil
			}
		}
		ast, err := compile()
		if err != nil {
			return nil, err
		}
		if ast == nil {
			return nil, ErrNilAST
		}
		if c.policy.Has(PolicyStore) {
			if err := c.store.Put(ctx, k, ast); err != nil {
				c.log.Warningf("store %s (%s): %v", k, ast.Name, err)
			}
		}
		return ast, nil
	})
	if err != nil {
		return nil, err
	}
	ast := v.(*vm.AST)
	c.log.Debugf("miss %s (%s), shared=%v", k, ast.Name, shared)
	return ast, nil
}

// Drop removes k from the store.
func (c *Cache) Drop(ctx context.Context, k Key) error {
	return c.store.Remove(ctx, k)
}
