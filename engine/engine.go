// Package engine implements the hash-tree engine: it owns the
// data-model invariants of the digest store and exposes hPut/hRemove,
// segment and node lookup, rebuild, and synch. It is grounded on the
// shape of Carmen's database/mpt tree (a write path that marks dirty
// state and defers expensive recomputation to a separate rebuild pass)
// and on database/mpt/write_buffer.go for the optional non-blocking
// write path built on top of the queue package.
package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/sync/errgroup"

	"github.com/kvsync/hashtree/common"
	"github.com/kvsync/hashtree/digest"
	"github.com/kvsync/hashtree/lock"
	"github.com/kvsync/hashtree/observer"
	"github.com/kvsync/hashtree/queue"
	"github.com/kvsync/hashtree/store"
	"github.com/kvsync/hashtree/treearith"
	"github.com/kvsync/hashtree/userstore"
)

// rebuildFanout bounds how many dirty segments are rebuilt concurrently
// within a single rebuildHashTree call.
const rebuildFanout = 32

// DefaultNoOfSegments is the default segment count of a newly
// configured engine (2^17).
const DefaultNoOfSegments = 1 << 17

// MaxNoOfSegments is the largest segment count an engine may be
// configured with (2^30); see treearith.MaxSegments.
const MaxNoOfSegments = treearith.MaxSegments

// TreeIdProvider maps a user key to the logical tree it belongs to.
type TreeIdProvider func(key []byte) common.TreeId

// SegIdProvider maps a user key to its segment id, deterministically
// and independently of NoOfSegments changes across restarts of the
// same configuration.
type SegIdProvider func(key []byte, noOfSegments int) common.SegmentId

// Status is the lifecycle state of an Engine.
type Status int

const (
	Created Status = iota
	Started
	Stopped
)

func (s Status) String() string {
	switch s {
	case Created:
		return "created"
	case Started:
		return "started"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config configures an Engine. TreeIdProvider is required; every other
// field has a documented default applied by New.
type Config struct {
	// NoOfSegments must be a power of two in [1, MaxNoOfSegments].
	// Defaults to DefaultNoOfSegments.
	NoOfSegments int
	// EnableNonBlockingCalls routes hPut/hRemove through the queue
	// package instead of performing the digest-store write inline.
	// New does not change this field: its zero value, false, leaves
	// non-blocking calls disabled.
	EnableNonBlockingCalls bool
	// NonBlockingQueueSize bounds the queue when non-blocking calls are
	// enabled. <=0 selects the queue package's own default.
	NonBlockingQueueSize int
	// SegIdProvider maps keys to segments. Defaults to a modulo of the
	// key's SHA-1 digest.
	SegIdProvider SegIdProvider
	// TreeIdProvider maps keys to trees. Required.
	TreeIdProvider TreeIdProvider
	// LockProvider serializes rebuild/synch per tree. Defaults to a
	// fresh lock.NewProvider[common.TreeId]().
	LockProvider lock.Provider[common.TreeId]
	// Store is the persistent digest store. Required.
	Store store.Store
	// UserStore is the external key/value store this engine shadows.
	// Required.
	UserStore userstore.Store
	// Observers receives lifecycle notifications; may be nil.
	Observers *observer.Registry
	// Log receives diagnostic lines; defaults to common.NewLog().
	Log *common.Log
}

func defaultSegIdProvider(key []byte, noOfSegments int) common.SegmentId {
	h := digest.OfValue(key)
	var v uint32
	for _, b := range h[:4] {
		v = v<<8 | uint32(b)
	}
	return common.SegmentId(v % uint32(noOfSegments))
}

func isPowerOfTwo(n int) bool { return n > 0 && n&(n-1) == 0 }

func (c *Config) withDefaults() error {
	if c.TreeIdProvider == nil {
		return fmt.Errorf("%w: TreeIdProvider is required", common.ErrInvalidConfig)
	}
	if c.Store == nil {
		return fmt.Errorf("%w: Store is required", common.ErrInvalidConfig)
	}
	if c.UserStore == nil {
		return fmt.Errorf("%w: UserStore is required", common.ErrInvalidConfig)
	}
	if c.NoOfSegments == 0 {
		c.NoOfSegments = DefaultNoOfSegments
	}
	if !isPowerOfTwo(c.NoOfSegments) || c.NoOfSegments > MaxNoOfSegments {
		return fmt.Errorf("%w: NoOfSegments must be a power of two <= %d, got %d", common.ErrInvalidConfig, MaxNoOfSegments, c.NoOfSegments)
	}
	if c.SegIdProvider == nil {
		c.SegIdProvider = defaultSegIdProvider
	}
	if c.LockProvider == nil {
		c.LockProvider = lock.NewProvider[common.TreeId]()
	}
	if c.Log == nil {
		c.Log = common.NewLog()
	}
	if c.Observers == nil {
		c.Observers = observer.NewRegistry(c.Log)
	}
	return nil
}

// MaxPutBatch bounds the size of an sPut batch emitted while walking a
// local-only subtree during synch.
const MaxPutBatch = 5000

// Engine is the hash-tree engine.
type Engine struct {
	cfg    Config
	height int

	statusMu sync.Mutex
	status   Status

	q *queue.Queue
}

// New validates cfg, applying defaults, and returns an Engine in the
// Created state. It performs no I/O.
func New(cfg Config) (*Engine, error) {
	if err := cfg.withDefaults(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:    cfg,
		height: treearith.Height(cfg.NoOfSegments),
		status: Created,
	}, nil
}

// Status returns the engine's current lifecycle state.
func (e *Engine) Status() Status {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	return e.status
}

// Start transitions Created -> Started, launching the non-blocking
// worker if configured. It is a no-op if already Started.
func (e *Engine) Start() error {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	if e.status == Stopped {
		return common.ErrEngineStopped
	}
	if e.status == Started {
		return nil
	}
	if e.cfg.EnableNonBlockingCalls {
		e.q = queue.New(e.cfg.NonBlockingQueueSize, e.applyQueueItem, e.cfg.Log)
	}
	e.status = Started
	return nil
}

// Stop transitions to Stopped, draining the non-blocking queue (if
// any) before returning.
func (e *Engine) Stop() error {
	e.statusMu.Lock()
	q := e.q
	e.status = Stopped
	e.statusMu.Unlock()
	if q != nil {
		q.Stop()
		q.Await()
	}
	return nil
}

func (e *Engine) nonBlockingEnabled() bool {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	return e.cfg.EnableNonBlockingCalls && e.status == Started
}

func (e *Engine) applyQueueItem(item queue.Item) error {
	switch item.Op {
	case queue.Put, queue.PutIfAbsent:
		return e.writeHPut(item.Key, item.Value)
	case queue.Remove, queue.RemoveIfAbsent:
		return e.writeHRemove(item.Key)
	default:
		return nil
	}
}

// HPut notifies observers, computes (treeId, segId), writes
// (key, SHA-1(value)) to the digest store, and marks segId dirty. When
// non-blocking calls are enabled and the engine is Started, the write
// is enqueued and HPut returns once accepted onto the queue rather than
// once the write lands.
func (e *Engine) HPut(key, value []byte) error {
	treeId := e.cfg.TreeIdProvider(key)
	e.cfg.Observers.NotifyPreHPut(treeId, key)
	var err error
	if e.nonBlockingEnabled() {
		err = e.q.Put(key, value)
	} else {
		err = e.writeHPut(key, value)
	}
	e.cfg.Observers.NotifyPostHPut(treeId, key, err)
	return err
}

// HRemove is HPut's symmetric counterpart: it deletes the datum and
// marks its segment dirty.
func (e *Engine) HRemove(key []byte) error {
	treeId := e.cfg.TreeIdProvider(key)
	e.cfg.Observers.NotifyPreHRemove(treeId, key)
	var err error
	if e.nonBlockingEnabled() {
		err = e.q.Remove(key)
	} else {
		err = e.writeHRemove(key)
	}
	e.cfg.Observers.NotifyPostHRemove(treeId, key, err)
	return err
}

// hPutIfAbsent issues a PUT_IF_ABSENT: when the non-blocking queue is
// active this coalesces against a PUT already in flight for the same
// key, so a concurrent ordinary write always wins over the stale read
// a full rebuild's reconciliation scan is acting on; once the op is
// actually applied (queued or not) it writes exactly like HPut.
func (e *Engine) hPutIfAbsent(key, value []byte) error {
	if e.nonBlockingEnabled() {
		return e.q.PutIfAbsent(key, value)
	}
	return e.writeHPut(key, value)
}

// hRemoveIfAbsent is hPutIfAbsent's symmetric counterpart for deletes.
func (e *Engine) hRemoveIfAbsent(key []byte) error {
	if e.nonBlockingEnabled() {
		return e.q.RemoveIfAbsent(key)
	}
	return e.writeHRemove(key)
}

func (e *Engine) segIdOf(key []byte) common.SegmentId {
	return e.cfg.SegIdProvider(key, e.cfg.NoOfSegments)
}

// writeHPut performs the actual digest-store write. PUT and
// PUT_IF_ABSENT execute it identically; only the enqueue-time
// coalescing in the queue package distinguishes them.
func (e *Engine) writeHPut(key, value []byte) error {
	treeId := e.cfg.TreeIdProvider(key)
	segId := e.segIdOf(key)
	if err := e.cfg.Store.PutSegmentData(treeId, segId, key, digest.OfValue(value)); err != nil {
		return err
	}
	return e.cfg.Store.SetDirtySegment(treeId, segId)
}

// writeHRemove performs the actual digest-store delete. REMOVE and
// REMOVE_IF_ABSENT execute it identically; only the enqueue-time
// coalescing in the queue package distinguishes them.
func (e *Engine) writeHRemove(key []byte) error {
	treeId := e.cfg.TreeIdProvider(key)
	segId := e.segIdOf(key)
	if err := e.cfg.Store.DeleteSegmentData(treeId, segId, key); err != nil {
		return err
	}
	return e.cfg.Store.SetDirtySegment(treeId, segId)
}

// GetSegmentHash passes through to the digest store.
func (e *Engine) GetSegmentHash(treeId common.TreeId, nodeId common.NodeId) (common.Digest, bool, error) {
	return e.cfg.Store.GetSegmentHash(treeId, nodeId)
}

// GetSegmentHashes passes through to the digest store.
func (e *Engine) GetSegmentHashes(treeId common.TreeId, nodeIds []common.NodeId) ([]store.NodeHash, error) {
	return e.cfg.Store.GetSegmentHashes(treeId, nodeIds)
}

// GetSegmentData passes through to the digest store.
func (e *Engine) GetSegmentData(treeId common.TreeId, segId common.SegmentId, key []byte) (common.Digest, bool, error) {
	return e.cfg.Store.GetSegmentData(treeId, segId, key)
}

// GetSegment passes through to the digest store.
func (e *Engine) GetSegment(treeId common.TreeId, segId common.SegmentId) ([]digest.SegmentDatum, error) {
	return e.cfg.Store.GetSegment(treeId, segId)
}

// SPut is the batched user-store mutation used by a peer when this
// engine's tree is acting as the remote side of a synch. It mutates
// only the user store; the digest store is reconciled against it by
// the next full RebuildHashTree, rather than updated inline here. When
// the user store has a PutForTree(treeId, key, value) method, SPut
// uses it so that the store's Iterator(treeId) enumerates the new keys.
func (e *Engine) SPut(treeId common.TreeId, kvs []userstore.KV) error {
	e.cfg.Observers.NotifyPreSPut(treeId, len(kvs))
	treePutter, hasTreePut := e.cfg.UserStore.(interface {
		PutForTree(treeId common.TreeId, key, value []byte) error
	})
	var err error
	for _, kv := range kvs {
		var perr error
		if hasTreePut {
			perr = treePutter.PutForTree(treeId, kv.Key, kv.Value)
		} else {
			perr = e.cfg.UserStore.Put(kv.Key, kv.Value)
		}
		if perr != nil {
			err = perr
			break
		}
	}
	e.cfg.Observers.NotifyPostSPut(treeId, len(kvs), err)
	return err
}

// SRemove is SPut's symmetric counterpart for deletions.
func (e *Engine) SRemove(treeId common.TreeId, keys [][]byte) error {
	e.cfg.Observers.NotifyPreSRemove(treeId, len(keys))
	var err error
	for _, k := range keys {
		if derr := e.cfg.UserStore.Delete(k); derr != nil {
			err = derr
			break
		}
	}
	e.cfg.Observers.NotifyPostSRemove(treeId, len(keys), err)
	return err
}

// DeleteTreeNode deletes every user-store key whose segment falls
// under nodeId, as instructed by a peer that found this tree holds an
// extrinsic subtree during an UPDATE synch.
func (e *Engine) DeleteTreeNode(treeId common.TreeId, nodeId common.NodeId) error {
	from := treearith.LeftMostLeaf(nodeId, e.height)
	to := treearith.RightMostLeaf(nodeId, e.height)
	fromSeg := treearith.SegmentOfLeaf(from, e.height)
	toSeg := treearith.SegmentOfLeaf(to, e.height) + 1

	it, err := e.cfg.Store.GetSegmentDataIterator(treeId, fromSeg, toSeg)
	if err != nil {
		return err
	}
	defer it.Release()

	var keys [][]byte
	for it.Next() {
		keys = append(keys, append([]byte(nil), it.Datum().Key...))
	}
	if err := it.Err(); err != nil {
		return err
	}
	return e.SRemove(treeId, keys)
}

// RebuildHashTree recomputes dirty segment and node hashes. fullRebuild
// forces the scan-reconciliation pass regardless of
// fullRebuildPeriodMs; pass fullRebuildPeriodMs<0 to never trigger it
// on elapsed-time alone.
func (e *Engine) RebuildHashTree(treeId common.TreeId, fullRebuild bool, fullRebuildPeriodMs int64) (int, error) {
	releaser, ok := e.cfg.LockProvider.TryAcquire(treeId)
	if !ok {
		return 0, nil
	}
	defer releaser.Release()

	e.cfg.Observers.NotifyPreRebuild(treeId)
	processed, err := e.rebuildLocked(treeId, e.shouldFullRebuild(treeId, fullRebuild, fullRebuildPeriodMs))
	e.cfg.Observers.NotifyPostRebuild(treeId, processed, err)
	return processed, err
}

func (e *Engine) shouldFullRebuild(treeId common.TreeId, forced bool, periodMs int64) bool {
	if forced {
		return true
	}
	last, err := e.cfg.Store.GetLastFullRebuild(treeId)
	if err != nil || last.IsZero() {
		return true
	}
	if periodMs >= 0 && time.Since(last) > time.Duration(periodMs)*time.Millisecond {
		return true
	}
	return false
}

func (e *Engine) rebuildLocked(treeId common.TreeId, full bool) (int, error) {
	if full {
		if err := e.reconcileWithUserStore(treeId); err != nil {
			return 0, err
		}
	}

	dirty, err := e.cfg.Store.GetDirtySegments(treeId)
	if err != nil {
		return 0, err
	}
	if len(dirty) == 0 {
		if full {
			_ = e.cfg.Store.SetLastFullRebuild(treeId, time.Now())
		}
		return 0, nil
	}
	if err := e.cfg.Store.MarkSegments(treeId, dirty); err != nil {
		return 0, err
	}

	leaves, err := e.rebuildDirtyLeaves(treeId, dirty)
	if err != nil {
		_ = e.cfg.Store.MarkSegments(treeId, dirty)
		return 0, err
	}

	if err := e.propagateUpward(treeId, leaves); err != nil {
		_ = e.cfg.Store.MarkSegments(treeId, dirty)
		return 0, err
	}

	if err := e.cfg.Store.UnmarkSegments(treeId, dirty); err != nil {
		return 0, err
	}
	if full {
		if err := e.cfg.Store.SetLastFullRebuild(treeId, time.Now()); err != nil {
			return 0, err
		}
	}
	return len(dirty), nil
}

// reconcileWithUserStore is step 1 of a full rebuild: scan the user
// store for treeId and PUT_IF_ABSENT every entry, then scan the digest
// store and REMOVE_IF_ABSENT every key no longer present in the user
// store.
func (e *Engine) reconcileWithUserStore(treeId common.TreeId) error {
	uit, err := e.cfg.UserStore.Iterator(treeId)
	if err != nil {
		return err
	}
	defer uit.Release()
	for uit.Next() {
		kv := uit.Entry()
		if err := e.hPutIfAbsent(kv.Key, kv.Value); err != nil {
			return err
		}
	}
	if err := uit.Err(); err != nil {
		return err
	}

	dit, err := e.cfg.Store.GetSegmentDataIterator(treeId, 0, common.SegmentId(e.cfg.NoOfSegments))
	if err != nil {
		return err
	}
	defer dit.Release()
	for dit.Next() {
		key := dit.Datum().Key
		present, err := e.cfg.UserStore.Contains(key)
		if err != nil {
			return err
		}
		if !present {
			if err := e.hRemoveIfAbsent(key); err != nil {
				return err
			}
		}
	}
	return dit.Err()
}

// rebuildDirtyLeaves test-and-clears each snapshot segment's dirty bit
// and, if it was still set, recomputes and stores its leaf hash. Each
// segment is independent of its siblings, so the batch is fanned out
// across a bounded group of goroutines; the returned leaf node ids are
// in no particular order.
func (e *Engine) rebuildDirtyLeaves(treeId common.TreeId, segIds []common.SegmentId) ([]common.NodeId, error) {
	g := new(errgroup.Group)
	g.SetLimit(rebuildFanout)

	var mu sync.Mutex
	var leaves []common.NodeId

	for _, segId := range segIds {
		segId := segId
		g.Go(func() error {
			wasSet, err := e.cfg.Store.ClearDirtySegment(treeId, segId)
			if err != nil {
				return err
			}
			if !wasSet {
				return nil
			}
			data, err := e.cfg.Store.GetSegment(treeId, segId)
			if err != nil {
				return err
			}
			h := digest.LeafHash(data)
			leafId := treearith.LeafId(segId, e.height)
			if err := e.cfg.Store.PutSegmentHash(treeId, leafId, h); err != nil {
				return err
			}
			mu.Lock()
			leaves = append(leaves, leafId)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return leaves, nil
}

// propagateUpward recomputes and stores the hash of every ancestor of
// frontier, level by level, until the root has been written or the
// frontier is exhausted.
func (e *Engine) propagateUpward(treeId common.TreeId, frontier []common.NodeId) error {
	for len(frontier) > 0 {
		// A frontier of exactly [0] means the root itself was just
		// written as a leaf (the single-segment, height-0 tree, where
		// the root is also the only leaf); there is no internal node
		// above it to recompute.
		if len(frontier) == 1 && frontier[0] == 0 {
			return nil
		}
		parentSet := make(map[common.NodeId]struct{}, len(frontier))
		for _, id := range frontier {
			parentSet[treearith.Parent(id)] = struct{}{}
		}
		parents := maps.Keys(parentSet)
		sort.Slice(parents, func(i, j int) bool { return parents[i] < parents[j] })
		for _, p := range parents {
			children := treearith.ImmediateChildren(p)
			hashes, err := e.cfg.Store.GetSegmentHashes(treeId, children)
			if err != nil {
				return err
			}
			childHashes := make([]common.Digest, len(hashes))
			for i, nh := range hashes {
				childHashes[i] = nh.Hash
			}
			h := digest.InternalHash(childHashes)
			if err := e.cfg.Store.PutSegmentHash(treeId, p, h); err != nil {
				return err
			}
		}
		frontier = parents
	}
	return nil
}

// Height returns the summarizing tree's height, derived from
// NoOfSegments.
func (e *Engine) Height() int { return e.height }

// NoOfSegments returns the engine's configured segment count.
func (e *Engine) NoOfSegments() int { return e.cfg.NoOfSegments }

// UserStore exposes the engine's backing user store, for callers (the
// reconcile package, peer/local) that need read access to it directly.
func (e *Engine) UserStore() userstore.Store { return e.cfg.UserStore }

// Store exposes the engine's digest store, for the same reason.
func (e *Engine) Store() store.Store { return e.cfg.Store }

// Observers exposes the engine's observer registry.
func (e *Engine) Observers() *observer.Registry { return e.cfg.Observers }

// LockProvider exposes the engine's per-tree lock provider, so a caller
// driving synch against this engine's tree can serialize it against a
// concurrent RebuildHashTree the same way RebuildHashTree serializes
// against itself.
func (e *Engine) LockProvider() lock.Provider[common.TreeId] { return e.cfg.LockProvider }
