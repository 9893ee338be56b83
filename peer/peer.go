// Package peer defines the remote engine contract: the
// read surface (getSegmentHash, getSegmentHashes, getSegment) and the
// write surface (sPut, sRemove, deleteTreeNode) a reconciliation walker
// needs from "the other side" of a synch, whether that side lives
// in-process (peer/local) or across an RPC boundary (peer/rpc).
package peer

import (
	"github.com/kvsync/hashtree/common"
	"github.com/kvsync/hashtree/digest"
	"github.com/kvsync/hashtree/store"
	"github.com/kvsync/hashtree/userstore"
)

// Peer is the contract the reconciliation walker (package reconcile)
// depends on for "the other side" of a synch.
type Peer interface {
	GetSegmentHash(treeId common.TreeId, nodeId common.NodeId) (common.Digest, bool, error)
	GetSegmentHashes(treeId common.TreeId, nodeIds []common.NodeId) ([]store.NodeHash, error)
	GetSegment(treeId common.TreeId, segId common.SegmentId) ([]digest.SegmentDatum, error)
	SPut(treeId common.TreeId, kvs []userstore.KV) error
	SRemove(treeId common.TreeId, keys [][]byte) error
	DeleteTreeNode(treeId common.TreeId, nodeId common.NodeId) error
}
