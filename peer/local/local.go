// Package local adapts an in-process *engine.Engine to the peer.Peer
// contract, for synch calls whose remote side happens to run in the
// same process -- the same role Carmen's examples/client_sync demo's
// direct-engine path plays before it switches to a network client.
package local

import (
	"github.com/kvsync/hashtree/common"
	"github.com/kvsync/hashtree/digest"
	"github.com/kvsync/hashtree/engine"
	"github.com/kvsync/hashtree/store"
	"github.com/kvsync/hashtree/userstore"
)

// Peer wraps a local engine so it can be passed wherever a peer.Peer is
// expected, with no network involved.
type Peer struct {
	Engine *engine.Engine
}

// New wraps e as an in-process peer.Peer.
func New(e *engine.Engine) *Peer {
	return &Peer{Engine: e}
}

func (p *Peer) GetSegmentHash(treeId common.TreeId, nodeId common.NodeId) (common.Digest, bool, error) {
	return p.Engine.GetSegmentHash(treeId, nodeId)
}

func (p *Peer) GetSegmentHashes(treeId common.TreeId, nodeIds []common.NodeId) ([]store.NodeHash, error) {
	return p.Engine.GetSegmentHashes(treeId, nodeIds)
}

func (p *Peer) GetSegment(treeId common.TreeId, segId common.SegmentId) ([]digest.SegmentDatum, error) {
	return p.Engine.GetSegment(treeId, segId)
}

func (p *Peer) SPut(treeId common.TreeId, kvs []userstore.KV) error {
	return p.Engine.SPut(treeId, kvs)
}

func (p *Peer) SRemove(treeId common.TreeId, keys [][]byte) error {
	return p.Engine.SRemove(treeId, keys)
}

func (p *Peer) DeleteTreeNode(treeId common.TreeId, nodeId common.NodeId) error {
	return p.Engine.DeleteTreeNode(treeId, nodeId)
}
