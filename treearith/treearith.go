// Package treearith provides the pure, total functions over node ids of
// a balanced binary tree (branching factor k=2) used to summarize a
// tree's segments: height, parent, children, leftmost/rightmost leaf,
// and the node<->segment mapping. None of these functions perform I/O
// or can fail.
package treearith

import "github.com/kvsync/hashtree/common"

// K is the branching factor of the summarizing tree, fixed at 2.
const K = 2

// MaxSegments is the largest number of segments an engine may be
// configured with (2^30), bounding the tree height.
const MaxSegments = 1 << 30

// Height returns the smallest h such that K^h >= leafCount, after
// coercing leafCount up to the next power of two and clamping it to
// MaxSegments. A leafCount of 0 or 1 yields height 0 (a tree with a
// single leaf, which is also the root).
func Height(leafCount int) int {
	n := NextPowerOfTwo(leafCount)
	h := 0
	for size := 1; size < n; size *= K {
		h++
	}
	return h
}

// NextPowerOfTwo rounds n up to the next power of two, clamped to
// [1, MaxSegments].
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	if n > MaxSegments {
		return MaxSegments
	}
	p := 1
	for p < n {
		p *= K
	}
	return p
}

// InternalNodeCount returns I = (K^h - 1)/(K-1), the number of internal
// (non-leaf) nodes of a full binary tree of the given height.
func InternalNodeCount(height int) int {
	total := 0
	size := 1
	for i := 0; i < height; i++ {
		total += size
		size *= K
	}
	return total
}

// Parent returns the parent of node n: (n-1)/K for n>0, and 0 for the
// root itself (which has no real parent).
func Parent(n common.NodeId) common.NodeId {
	if n <= 0 {
		return 0
	}
	return (n - 1) / K
}

// ImmediateChildren returns the K children of node n: [K*n+1, ..., K*n+K].
func ImmediateChildren(n common.NodeId) []common.NodeId {
	first := K*n + 1
	children := make([]common.NodeId, K)
	for i := 0; i < K; i++ {
		children[i] = first + common.NodeId(i)
	}
	return children
}

// LeftMostLeaf descends through the leftmost child (K*n+1) repeatedly
// until a leaf of the tree with the given height is reached.
func LeftMostLeaf(n common.NodeId, height int) common.NodeId {
	internal := common.NodeId(InternalNodeCount(height))
	for n < internal {
		n = K*n + 1
	}
	return n
}

// RightMostLeaf descends through the rightmost child (K*n+K) repeatedly
// until a leaf of the tree with the given height is reached.
func RightMostLeaf(n common.NodeId, height int) common.NodeId {
	internal := common.NodeId(InternalNodeCount(height))
	for n < internal {
		n = K*n + K
	}
	return n
}

// LeafId maps a segment id to its leaf node id: I + segId, where I is
// the internal-node count of the tree with the given height.
func LeafId(segId common.SegmentId, height int) common.NodeId {
	return common.NodeId(InternalNodeCount(height)) + common.NodeId(segId)
}

// SegmentOfLeaf is the inverse of LeafId: it subtracts the internal
// node count to recover the segment id. The caller is responsible for
// ensuring nodeId is actually a leaf (IsLeaf returns true).
func SegmentOfLeaf(nodeId common.NodeId, height int) common.SegmentId {
	return common.SegmentId(nodeId - common.NodeId(InternalNodeCount(height)))
}

// IsLeaf reports whether nodeId is a leaf of the tree with the given
// height, i.e. its id is at least the internal-node count.
func IsLeaf(nodeId common.NodeId, height int) bool {
	return nodeId >= common.NodeId(InternalNodeCount(height))
}
