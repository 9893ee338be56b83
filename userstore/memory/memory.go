// Package memory is an in-memory userstore.Store reference
// implementation, used in tests in the same role Carmen's
// backend/depot/memory plays for its own Depot interface: a minimal,
// obviously-correct stand-in for the real (out-of-scope) persistence
// engine backing user data.
package memory

import (
	"sync"

	"github.com/kvsync/hashtree/common"
	"github.com/kvsync/hashtree/userstore"
)

// Store is a mutex-guarded, in-memory userstore.Store. Every key is
// assumed to belong to a single logical tree, recorded separately so
// Iterator can enumerate a tree's key set; callers that only ever use
// one tree may pass treeId 0 throughout.
type Store struct {
	mu      sync.RWMutex
	values  map[string][]byte
	byTree  map[common.TreeId]map[string]struct{}
	treeOf  map[string]common.TreeId
}

// New creates an empty in-memory user store.
func New() *Store {
	return &Store{
		values: map[string][]byte{},
		byTree: map[common.TreeId]map[string]struct{}{},
		treeOf: map[string]common.TreeId{},
	}
}

func (s *Store) Get(key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[string(key)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *Store) Contains(key []byte) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[string(key)]
	return ok, nil
}

// PutForTree records which tree a key belongs to, so Iterator can later
// enumerate it. Put files a key it has not seen before under tree 0;
// the engine's SPut calls PutForTree instead, passing the tree being
// synced.
func (s *Store) PutForTree(treeId common.TreeId, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(treeId, key, value)
	return nil
}

func (s *Store) putLocked(treeId common.TreeId, key, value []byte) {
	k := string(key)
	s.values[k] = append([]byte(nil), value...)
	s.treeOf[k] = treeId
	tree, ok := s.byTree[treeId]
	if !ok {
		tree = map[string]struct{}{}
		s.byTree[treeId] = tree
	}
	tree[k] = struct{}{}
}

func (s *Store) Put(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := string(key)
	treeId, known := s.treeOf[k]
	if !known {
		treeId = 0
	}
	s.putLocked(treeId, key, value)
	return nil
}

func (s *Store) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := string(key)
	delete(s.values, k)
	if treeId, ok := s.treeOf[k]; ok {
		delete(s.byTree[treeId], k)
		delete(s.treeOf, k)
	}
	return nil
}

type iterator struct {
	keys []string
	pos  int
	s    *Store
}

func (it *iterator) Next() bool {
	if it.pos >= len(it.keys) {
		return false
	}
	it.pos++
	return true
}

func (it *iterator) Entry() userstore.KV {
	k := it.keys[it.pos-1]
	it.s.mu.RLock()
	defer it.s.mu.RUnlock()
	return userstore.KV{Key: []byte(k), Value: append([]byte(nil), it.s.values[k]...)}
}

func (it *iterator) Err() error  { return nil }
func (it *iterator) Release()    {}

func (s *Store) Iterator(treeId common.TreeId) (userstore.Iterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tree := s.byTree[treeId]
	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	return &iterator{keys: keys, s: s}, nil
}
