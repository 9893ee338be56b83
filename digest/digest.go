// Package digest implements the hashing rules of the hash tree:
// per-value digests, leaf-node hashes over a segment's (key, digest)
// stream, and internal-node hashes over present child hashes. The
// CONCAT_LINES format and the distinct treatment of leaves (always
// hash the full key-ordered stream) versus internal nodes (hash only
// the children that currently have a stored hash) are deliberately
// not interchangeable.
package digest

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"

	"github.com/kvsync/hashtree/common"
)

// SegmentDatum is a single (key, digest) pair belonging to a segment.
type SegmentDatum struct {
	Key    []byte
	Digest common.Digest
}

// OfValue computes the per-key digest stored alongside a value:
// SHA-1(value).
func OfValue(value []byte) common.Digest {
	return common.Digest(sha1.Sum(value))
}

// concatLines joins lines with '\n', appending a trailing '\n' after
// every element including the last one. An empty input yields an
// empty byte slice, which SHA-1's to the well-defined empty-content
// digest.
func concatLines(lines []string) []byte {
	if len(lines) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// LeafHash computes a leaf node's hash from its segment's (key, digest)
// data, which must already be in ascending key order. Each element
// contributes one line "hex(key),hex(digest)".
func LeafHash(data []SegmentDatum) common.Digest {
	lines := make([]string, len(data))
	for i, d := range data {
		lines[i] = hex.EncodeToString(d.Key) + "," + hex.EncodeToString(d.Digest[:])
	}
	return common.Digest(sha1.Sum(concatLines(lines)))
}

// InternalHash computes an internal node's hash from the hashes of the
// children that currently have a stored digest, in child-id ascending
// order. Children with no stored hash are omitted entirely -- they are
// NOT treated as an empty-string placeholder.
func InternalHash(childHashes []common.Digest) common.Digest {
	lines := make([]string, len(childHashes))
	for i, h := range childHashes {
		lines[i] = hex.EncodeToString(h[:])
	}
	return common.Digest(sha1.Sum(concatLines(lines)))
}
