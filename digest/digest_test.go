package digest

import (
	"crypto/sha1"
	"encoding/hex"
	"testing"

	"github.com/kvsync/hashtree/common"
)

func TestOfValue(t *testing.T) {
	v := []byte("hello")
	want := sha1.Sum(v)
	if got := OfValue(v); got != want {
		t.Errorf("OfValue(%q) = %x, want %x", v, got, want)
	}
}

func TestLeafHashMatchesWorkedExample(t *testing.T) {
	// hPut("1", V) with seg("1")=1, then rebuild.
	// leaf-2 hash = SHA-1("<hex("1")>,<hex(SHA-1(V))>\n")
	v := []byte("some-value")
	vd := OfValue(v)

	expectedLine := hex.EncodeToString([]byte("1")) + "," + hex.EncodeToString(vd[:]) + "\n"
	want := sha1.Sum([]byte(expectedLine))

	got := LeafHash([]SegmentDatum{{Key: []byte("1"), Digest: vd}})
	if got != want {
		t.Errorf("LeafHash mismatch:\n got  %x\n want %x", got, want)
	}
}

func TestLeafHashEmptySegment(t *testing.T) {
	want := sha1.Sum(nil)
	if got := LeafHash(nil); got != want {
		t.Errorf("LeafHash(nil) = %x, want %x", got, want)
	}
}

func TestInternalHashSkipsAbsentChildren(t *testing.T) {
	a := OfValue([]byte("a"))
	b := OfValue([]byte("b"))

	// Only two of (conceptually) three children are present; the
	// caller must omit the absent one rather than pass a zero digest.
	withTwo := InternalHash([]common.Digest{a, b})
	withZeroPlaceholder := InternalHash([]common.Digest{a, b, common.Digest{}})
	if withTwo == withZeroPlaceholder {
		t.Errorf("internal hash must distinguish an absent child from a zero-value child")
	}
}
