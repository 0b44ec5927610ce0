package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/chazu/leafkit/vm"
)

// ---------------------------------------------------------------------------
// Keys
// ---------------------------------------------------------------------------

// Key addresses a compiled template by the hash of its name and source,
// so an edited template never hits a stale entry.
type Key [32]byte

// KeyOf returns the key of a template.
func KeyOf(name string, src []byte) Key {
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write(src)
	var k Key
	copy(k[:], h.Sum(nil))
	return k
}

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// ParseKey decodes the hex form of a key.
func ParseKey(s string) (Key, error) {
	var k Key
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(k) {
		return k, fmt.Errorf("cache: invalid key %q", s)
	}
	copy(k[:], b)
	return k, nil
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
}

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

// Store holds compiled ASTs. Implementations must be safe for concurrent
// use and must only ever return fully built ASTs.
type Store interface {
	Get(ctx context.Context, k Key) (*vm.AST, bool, error)
	Put(ctx context.Context, k Key, ast *vm.AST) error
	Remove(ctx context.Context, k Key) error
	// Keys returns every stored key in ascending order.
	Keys(ctx context.Context) ([]Key, error)
}

// MemoryStore is an in-process Store. ASTs are immutable, so entries are
// shared with callers rather than copied.
type MemoryStore struct {
	mu   sync.RWMutex
	asts map[Key]*vm.AST
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{asts: make(map[Key]*vm.AST)}
}

// Get returns the AST stored under k.
func (s *MemoryStore) Get(_ context.Context, k Key) (*vm.AST, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ast, ok := s.asts[k]
	return ast, ok, nil
}

// Put stores ast under k, replacing any previous entry.
func (s *MemoryStore) Put(_ context.Context, k Key, ast *vm.AST) error {
	if ast == nil {
		return fmt.Errorf("cache: put %s: nil AST", k)
	}
	s.mu.Lock()
	s.asts[k] = ast
	s.mu.Unlock()
	return nil
}

// Remove drops k. Removing a missing key is not an error.
func (s *MemoryStore) Remove(_ context.Context, k Key) error {
	s.mu.Lock()
	delete(s.asts, k)
	s.mu.Unlock()
	return nil
}

// Keys returns all keys in the store.
func (s *MemoryStore) Keys(context.Context) ([]Key, error) {
	s.mu.RLock()
	keys := make([]Key, 0, len(s.asts))
	for k := range s.asts {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sortKeys(keys)
	return keys, nil
}

// Len returns the number of stored ASTs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.asts)
}
