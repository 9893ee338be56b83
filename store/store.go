// Package store defines the digest-store contract: a persistent,
// ordered key/value backend holding per-segment data,
// per-node hashes, dirty-segment markers, and a per-tree rebuild
// timestamp, addressable by composite (treeId, segId[, key]) keys.
//
// Implementations live in sibling packages: store/memory (an in-memory
// reference implementation used as the default and in tests) and
// store/ldb (a github.com/syndtr/goleveldb-backed persistent one).
package store

import (
	"time"

	"github.com/kvsync/hashtree/common"
	"github.com/kvsync/hashtree/digest"
)

// NodeHash pairs a node id with its currently stored hash, as returned
// by the batched Store.GetSegmentHashes.
type NodeHash struct {
	NodeId common.NodeId
	Hash   common.Digest
}

// DataIterator lazily walks segment-data rows in ascending key order
// within the range it was created for. It is restartable only by
// discarding it and calling Store.GetSegmentDataIterator again.
type DataIterator interface {
	// Next advances to the next row, returning false once the range is
	// exhausted or an error occurred (check Err to distinguish the two).
	Next() bool
	// SegmentId returns the segment id of the row Next most recently
	// advanced to.
	SegmentId() common.SegmentId
	// Datum returns the (key, digest) pair Next most recently advanced to.
	Datum() digest.SegmentDatum
	// Err returns the first error encountered, if any.
	Err() error
	// Release frees resources held by the iterator. Must be called
	// exactly once, whether or not the range was exhausted.
	Release()
}

// Store is the persistent digest store contract consumed by the
// hash-tree engine. Every method either returns the requested
// value/iterator, reports absence, or fails with a storage error that
// propagates unchanged.
type Store interface {
	// PutSegmentData writes (or overwrites) the digest for key in
	// segment (treeId, segId). The write is durable before return.
	PutSegmentData(treeId common.TreeId, segId common.SegmentId, key []byte, d common.Digest) error
	// DeleteSegmentData removes key's datum from segment (treeId, segId),
	// if present.
	DeleteSegmentData(treeId common.TreeId, segId common.SegmentId, key []byte) error
	// GetSegmentData performs an exact lookup, reporting absence via ok=false.
	GetSegmentData(treeId common.TreeId, segId common.SegmentId, key []byte) (d common.Digest, ok bool, err error)
	// GetSegment returns all data currently in segment (treeId, segId),
	// ordered by key ascending, as a snapshot-consistent view.
	GetSegment(treeId common.TreeId, segId common.SegmentId) ([]digest.SegmentDatum, error)
	// GetSegmentDataIterator returns a lazy iterator over every row of
	// treeId whose segment id falls in [fromSeg, toSeg), ordered by
	// (segId, key) ascending.
	GetSegmentDataIterator(treeId common.TreeId, fromSeg, toSeg common.SegmentId) (DataIterator, error)

	// PutSegmentHash (re)writes the stored hash of a tree node. Only the
	// engine's rebuild is expected to call this.
	PutSegmentHash(treeId common.TreeId, nodeId common.NodeId, h common.Digest) error
	// GetSegmentHash performs an exact lookup of a single node's hash.
	GetSegmentHash(treeId common.TreeId, nodeId common.NodeId) (h common.Digest, ok bool, err error)
	// GetSegmentHashes returns the hashes of the requested node ids that
	// currently have a stored value, in nodeId-ascending order; node ids
	// with no stored hash are silently omitted from the result.
	GetSegmentHashes(treeId common.TreeId, nodeIds []common.NodeId) ([]NodeHash, error)

	// SetDirtySegment marks segId as dirty for treeId.
	SetDirtySegment(treeId common.TreeId, segId common.SegmentId) error
	// ClearDirtySegment atomically tests and clears segId's dirty bit,
	// returning whether it was set beforehand.
	ClearDirtySegment(treeId common.TreeId, segId common.SegmentId) (wasSet bool, err error)
	// GetDirtySegments returns a snapshot of the currently dirty segment
	// ids of treeId, in ascending order.
	GetDirtySegments(treeId common.TreeId) ([]common.SegmentId, error)
	// ClearAndGetDirtySegments is equivalent to GetDirtySegments followed
	// by clearing exactly the segments returned, atomic against readers
	// that might concurrently set new dirty bits.
	ClearAndGetDirtySegments(treeId common.TreeId) ([]common.SegmentId, error)
	// MarkSegments idempotently (re-)marks the given segments dirty; used
	// by rebuild to restore dirty bits on failure.
	MarkSegments(treeId common.TreeId, segIds []common.SegmentId) error
	// UnmarkSegments clears the dirty bit of exactly the given segments,
	// regardless of whether it was set.
	UnmarkSegments(treeId common.TreeId, segIds []common.SegmentId) error

	// GetLastFullRebuild returns the wall-clock of treeId's last full
	// rebuild, or the zero time if none has happened yet.
	GetLastFullRebuild(treeId common.TreeId) (time.Time, error)
	// SetLastFullRebuild records the wall-clock of a completed full rebuild.
	SetLastFullRebuild(treeId common.TreeId, at time.Time) error

	// Close releases resources held by the store.
	Close() error
}
