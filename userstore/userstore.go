// Package userstore defines the external key/value store contract the
// hash-tree engine consumes: Get/Contains/Iterate read-only, plus
// Put/Delete used when this engine's tree is acting as the remote side
// of a sync (sPut/sRemove/deleteTreeNode). The underlying store's own
// persistence engine is out of scope -- only this contract is assumed.
package userstore

import "github.com/kvsync/hashtree/common"

// KV pairs a raw key with its raw value, as produced by Iterator and
// consumed by Put.
type KV struct {
	Key   []byte
	Value []byte
}

// Iterator enumerates a tree's full key set exactly once, in no
// particular order.
type Iterator interface {
	Next() bool
	Entry() KV
	Err() error
	Release()
}

// Store is the user-facing key/value store contract.
type Store interface {
	// Get returns the value for key, or ok=false if absent.
	Get(key []byte) (value []byte, ok bool, err error)
	// Contains reports whether key is present.
	Contains(key []byte) (bool, error)
	// Iterator enumerates every key belonging to treeId exactly once.
	Iterator(treeId common.TreeId) (Iterator, error)
	// Put inserts or overwrites key's value.
	Put(key, value []byte) error
	// Delete removes key, if present.
	Delete(key []byte) error
}
