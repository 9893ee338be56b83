// Package common holds the small set of types and helpers shared across
// the hash-tree engine's packages: tree/segment identifiers, the fixed-size
// digest type, sentinel errors, and composite on-disk key encoding.
package common

// TreeId identifies a logical sub-tree hosted by an engine. Trees are
// independent of one another; there is no cross-tree invariant.
type TreeId int64

// SegmentId identifies one of the S segments a tree's key space is
// partitioned into. 0 <= SegmentId < S.
type SegmentId int32

// NodeId is the pre-order index of a node in the balanced binary tree
// summarizing a tree's segments. The root is 0.
type NodeId int32

// Digest is a SHA-1 digest, used for both per-key digests and
// tree-node hashes.
type Digest [20]byte

// IsZero reports whether d is the zero digest (used to distinguish an
// absent hash from a real one in places where a map lookup is awkward).
func (d Digest) IsZero() bool {
	return d == Digest{}
}
