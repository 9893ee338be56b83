// Package reconcile implements the tree-walk reconciliation protocol:
// a top-down merge-walk over two engines' node hashes that finds the
// minimal set of differing segments, followed by a
// per-segment key-level diff that turns the difference into sPut/
// sRemove/deleteTreeNode calls against a remote peer. It generalizes
// the structural tree-diff pattern of Carmen's database/mpt/diff.go
// (a worklist of node ids, replaced level by level) to a two-peer
// hash-only comparison.
package reconcile

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kvsync/hashtree/common"
	"github.com/kvsync/hashtree/engine"
	"github.com/kvsync/hashtree/peer"
	"github.com/kvsync/hashtree/treearith"
	"github.com/kvsync/hashtree/userstore"
)

// SyncType selects whether Synch mutates the remote side or only
// computes differences.
type SyncType int

const (
	// Update mutates the remote side to converge it toward local.
	Update SyncType = iota
	// LocalOnly computes differences without writing to remote.
	LocalOnly
)

// Result reports the outcome of a Synch call.
type Result struct {
	// KeyDifferences is the number of individual keys that differed
	// (or were local-only) across every segment visited.
	KeyDifferences int
	// ExtrinsicSegments is the number of subtrees present on the
	// remote side but absent locally.
	ExtrinsicSegments int
}

// Synch walks local's and remote's hash trees for treeId top-down,
// descending only into mismatching subtrees, and returns the minimal
// diff. Local is authoritative: remote converges toward it when
// syncType is Update. Synch serializes against a concurrent
// RebuildHashTree (or Synch) of the same tree via local's per-tree
// lock; if the lock is already held it is a no-op, returning a
// zero-value Result and no error.
func Synch(treeId common.TreeId, local *engine.Engine, remote peer.Peer, syncType SyncType) (Result, error) {
	releaser, ok := local.LockProvider().TryAcquire(treeId)
	if !ok {
		return Result{}, nil
	}
	defer releaser.Release()

	local.Observers().NotifyPreSync(treeId)
	result, err := synchLocked(treeId, local, remote, syncType)
	local.Observers().NotifyPostSync(treeId, result.KeyDifferences, result.ExtrinsicSegments, err)
	return result, err
}

func synchLocked(treeId common.TreeId, local *engine.Engine, remote peer.Peer, syncType SyncType) (Result, error) {
	doUpdate := syncType == Update
	height := local.Height()

	var result Result
	var resultMu sync.Mutex
	worklist := []common.NodeId{0}
	for len(worklist) > 0 {
		localHashes, err := local.GetSegmentHashes(treeId, worklist)
		if err != nil {
			return result, err
		}
		remoteHashes, err := remote.GetSegmentHashes(treeId, worklist)
		if err != nil {
			return result, err
		}

		// The merge-walk itself is pure bookkeeping; the I/O-bound work
		// it schedules for this round (local-only subtree export,
		// remote-only deletion, per-leaf key diff) is independent across
		// nodes, so it is fanned out and awaited together.
		var next []common.NodeId
		g := new(errgroup.Group)
		li, ri := 0, 0
		for li < len(localHashes) || ri < len(remoteHashes) {
			switch {
			case ri >= len(remoteHashes) || (li < len(localHashes) && localHashes[li].NodeId < remoteHashes[ri].NodeId):
				nodeId := localHashes[li].NodeId
				g.Go(func() error {
					n, err := localOnlySubtree(treeId, nodeId, height, local, remote, doUpdate)
					if err != nil {
						return err
					}
					resultMu.Lock()
					result.KeyDifferences += n
					resultMu.Unlock()
					return nil
				})
				li++

			case li >= len(localHashes) || remoteHashes[ri].NodeId < localHashes[li].NodeId:
				nodeId := remoteHashes[ri].NodeId
				g.Go(func() error {
					if doUpdate {
						if err := remote.DeleteTreeNode(treeId, nodeId); err != nil {
							return err
						}
					}
					resultMu.Lock()
					result.ExtrinsicSegments++
					resultMu.Unlock()
					return nil
				})
				ri++

			default:
				lh, rh := localHashes[li], remoteHashes[ri]
				if lh.Hash != rh.Hash {
					if treearith.IsLeaf(lh.NodeId, height) {
						nodeId := lh.NodeId
						g.Go(func() error {
							n, err := syncSegment(treeId, treearith.SegmentOfLeaf(nodeId, height), local, remote, doUpdate)
							if err != nil {
								return err
							}
							resultMu.Lock()
							result.KeyDifferences += n
							resultMu.Unlock()
							return nil
						})
					} else {
						next = append(next, treearith.ImmediateChildren(lh.NodeId)...)
					}
				}
				li++
				ri++
			}
		}
		if err := g.Wait(); err != nil {
			return result, err
		}
		worklist = next
	}
	return result, nil
}

// localOnlySubtree handles a node present locally but entirely absent
// from remote's hash stream (remote has no subtree there): every
// user-store-backed key under it is sent to remote as sPut batches of
// at most engine.MaxPutBatch when doUpdate is set.
func localOnlySubtree(treeId common.TreeId, nodeId common.NodeId, height int, local *engine.Engine, remote peer.Peer, doUpdate bool) (int, error) {
	fromSeg := treearith.SegmentOfLeaf(treearith.LeftMostLeaf(nodeId, height), height)
	toSeg := treearith.SegmentOfLeaf(treearith.RightMostLeaf(nodeId, height), height) + 1

	it, err := local.Store().GetSegmentDataIterator(treeId, fromSeg, toSeg)
	if err != nil {
		return 0, err
	}
	defer it.Release()

	count := 0
	var batch []userstore.KV
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if doUpdate {
			if err := remote.SPut(treeId, batch); err != nil {
				return err
			}
		}
		batch = nil
		return nil
	}

	for it.Next() {
		key := it.Datum().Key
		value, ok, err := local.UserStore().Get(key)
		if err != nil {
			return count, err
		}
		if !ok {
			// Concurrent delete between hash computation and this scan;
			// treated as already reconciled, not a difference.
			continue
		}
		count++
		batch = append(batch, userstore.KV{Key: append([]byte(nil), key...), Value: value})
		if len(batch) >= engine.MaxPutBatch {
			if err := flush(); err != nil {
				return count, err
			}
		}
	}
	if err := it.Err(); err != nil {
		return count, err
	}
	if err := flush(); err != nil {
		return count, err
	}
	return count, nil
}

// syncSegment resolves a single differing leaf at the key level,
// merge-walking local's and remote's segment contents by key.
func syncSegment(treeId common.TreeId, segId common.SegmentId, local *engine.Engine, remote peer.Peer, doUpdate bool) (int, error) {
	localData, err := local.GetSegment(treeId, segId)
	if err != nil {
		return 0, err
	}
	remoteData, err := remote.GetSegment(treeId, segId)
	if err != nil {
		return 0, err
	}

	var kvsForAddition []userstore.KV
	var keysForRemoval [][]byte

	addLocal := func(key []byte) error {
		value, ok, err := local.UserStore().Get(key)
		if err != nil {
			return err
		}
		if !ok {
			// Concurrent delete between hash computation and sync; skip.
			return nil
		}
		kvsForAddition = append(kvsForAddition, userstore.KV{Key: append([]byte(nil), key...), Value: value})
		return nil
	}

	li, ri := 0, 0
	for li < len(localData) || ri < len(remoteData) {
		switch {
		case ri >= len(remoteData) || (li < len(localData) && string(localData[li].Key) < string(remoteData[ri].Key)):
			if err := addLocal(localData[li].Key); err != nil {
				return 0, err
			}
			li++

		case li >= len(localData) || string(remoteData[ri].Key) < string(localData[li].Key):
			keysForRemoval = append(keysForRemoval, append([]byte(nil), remoteData[ri].Key...))
			ri++

		default:
			if localData[li].Digest != remoteData[ri].Digest {
				if err := addLocal(localData[li].Key); err != nil {
					return 0, err
				}
			}
			li++
			ri++
		}
	}

	if doUpdate && (len(kvsForAddition) > 0 || len(keysForRemoval) > 0) {
		if len(kvsForAddition) > 0 {
			if err := remote.SPut(treeId, kvsForAddition); err != nil {
				return 0, err
			}
		}
		if len(keysForRemoval) > 0 {
			if err := remote.SRemove(treeId, keysForRemoval); err != nil {
				return 0, err
			}
		}
	}
	return len(kvsForAddition) + len(keysForRemoval), nil
}
