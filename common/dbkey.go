package common

import "encoding/binary"

// KeySpace separates the four logical maps a digest store multiplexes
// onto one lexicographically ordered key/value backend.
type KeySpace byte

const (
	SegmentDataSpace  KeySpace = 0x01
	SegmentHashSpace  KeySpace = 0x02
	DirtySegmentSpace KeySpace = 0x03
	MetaSpace         KeySpace = 0x04
)

// MetaLastFullRebuild is the meta-space scope byte holding the
// unix-millisecond timestamp of a tree's last full rebuild.
const MetaLastFullRebuild byte = 0x01

// SegmentDataKey builds the on-disk key for a (treeId, segId, key) datum:
// 0x01 | treeId(8B BE) | segId(4B BE) | key.
func SegmentDataKey(treeId TreeId, segId SegmentId, key []byte) []byte {
	out := make([]byte, 0, 1+8+4+len(key))
	out = append(out, byte(SegmentDataSpace))
	out = appendTreeId(out, treeId)
	out = appendSegId(out, segId)
	out = append(out, key...)
	return out
}

// SegmentDataPrefix returns the fixed-width prefix shared by every key
// of a given (treeId, segId) segment, used both as the exact start of a
// ranged scan and, via SegmentDataUpperBound, to bound its end.
func SegmentDataPrefix(treeId TreeId, segId SegmentId) []byte {
	return SegmentDataKey(treeId, segId, nil)
}

// SegmentDataUpperBound returns the exclusive upper bound of the
// contiguous leaf range [fromSeg, toSeg) within treeId's segment-data
// map; fromSeg==toSeg yields an empty range.
func SegmentDataUpperBound(treeId TreeId, toSeg SegmentId) []byte {
	return SegmentDataPrefix(treeId, toSeg)
}

// SegmentHashKey builds the on-disk key for a (treeId, nodeId) hash:
// 0x02 | treeId(8B BE) | nodeId(4B BE).
func SegmentHashKey(treeId TreeId, nodeId NodeId) []byte {
	out := make([]byte, 0, 1+8+4)
	out = append(out, byte(SegmentHashSpace))
	out = appendTreeId(out, treeId)
	out = appendNodeId(out, nodeId)
	return out
}

// SegmentHashPrefix returns the prefix shared by all node-hash keys of
// treeId, used to bound a ranged scan over the whole tree.
func SegmentHashPrefix(treeId TreeId) []byte {
	out := make([]byte, 0, 1+8)
	out = append(out, byte(SegmentHashSpace))
	out = appendTreeId(out, treeId)
	return out
}

// DirtySegmentKey builds the on-disk key marking (treeId, segId) dirty:
// 0x03 | treeId(8B BE) | segId(4B BE).
func DirtySegmentKey(treeId TreeId, segId SegmentId) []byte {
	out := make([]byte, 0, 1+8+4)
	out = append(out, byte(DirtySegmentSpace))
	out = appendTreeId(out, treeId)
	out = appendSegId(out, segId)
	return out
}

// DirtySegmentPrefix returns the prefix shared by all dirty-segment
// markers of treeId.
func DirtySegmentPrefix(treeId TreeId) []byte {
	out := make([]byte, 0, 1+8)
	out = append(out, byte(DirtySegmentSpace))
	out = appendTreeId(out, treeId)
	return out
}

// DirtySegmentUpperBound returns the exclusive upper bound following
// treeId's dirty-segment range, i.e. the prefix of treeId+1.
func DirtySegmentUpperBound(treeId TreeId) []byte {
	return DirtySegmentPrefix(treeId + 1)
}

// MetaKey builds the on-disk key for a per-tree meta scope value:
// 0x04 | treeId(8B BE) | scope(1B).
func MetaKey(treeId TreeId, scope byte) []byte {
	out := make([]byte, 0, 1+8+1)
	out = append(out, byte(MetaSpace))
	out = appendTreeId(out, treeId)
	out = append(out, scope)
	return out
}

func appendTreeId(out []byte, treeId TreeId) []byte {
	return binary.BigEndian.AppendUint64(out, uint64(treeId))
}

func appendSegId(out []byte, segId SegmentId) []byte {
	return binary.BigEndian.AppendUint32(out, uint32(segId))
}

func appendNodeId(out []byte, nodeId NodeId) []byte {
	return binary.BigEndian.AppendUint32(out, uint32(nodeId))
}

// SegIdOfDataKey extracts the SegmentId encoded in a segment-data key
// produced by SegmentDataKey, and the trailing user key bytes.
func SegIdOfDataKey(dbKey []byte) (segId SegmentId, userKey []byte) {
	segId = SegmentId(binary.BigEndian.Uint32(dbKey[9:13]))
	userKey = dbKey[13:]
	return
}

// NodeIdOfHashKey extracts the NodeId encoded in a segment-hash key
// produced by SegmentHashKey.
func NodeIdOfHashKey(dbKey []byte) NodeId {
	return NodeId(binary.BigEndian.Uint32(dbKey[9:13]))
}
