package ldb

import (
	"testing"
	"time"

	"github.com/kvsync/hashtree/common"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open digest store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLdbSegmentDataRoundTrip(t *testing.T) {
	s := openTestStore(t)

	treeId := common.TreeId(1)
	segId := common.SegmentId(7)
	key := []byte("alpha")
	d := common.Digest{1, 2, 3}

	if err := s.PutSegmentData(treeId, segId, key, d); err != nil {
		t.Fatalf("PutSegmentData: %v", err)
	}
	got, ok, err := s.GetSegmentData(treeId, segId, key)
	if err != nil || !ok || got != d {
		t.Fatalf("GetSegmentData = %x, ok=%v, err=%v", got, ok, err)
	}

	if err := s.DeleteSegmentData(treeId, segId, key); err != nil {
		t.Fatalf("DeleteSegmentData: %v", err)
	}
	_, ok, err = s.GetSegmentData(treeId, segId, key)
	if err != nil || ok {
		t.Fatalf("expected absence after delete, ok=%v err=%v", ok, err)
	}
}

func TestLdbSegmentRangeDoesNotLeakNeighboringSegments(t *testing.T) {
	s := openTestStore(t)

	treeId := common.TreeId(1)
	if err := s.PutSegmentData(treeId, 4, []byte("k"), common.Digest{1}); err != nil {
		t.Fatalf("PutSegmentData: %v", err)
	}
	if err := s.PutSegmentData(treeId, 5, []byte("k"), common.Digest{2}); err != nil {
		t.Fatalf("PutSegmentData: %v", err)
	}
	if err := s.PutSegmentData(treeId, 6, []byte("k"), common.Digest{3}); err != nil {
		t.Fatalf("PutSegmentData: %v", err)
	}

	data, err := s.GetSegment(treeId, 5)
	if err != nil {
		t.Fatalf("GetSegment: %v", err)
	}
	if len(data) != 1 || data[0].Digest != (common.Digest{2}) {
		t.Fatalf("GetSegment(5) = %v, want exactly the segment-5 datum", data)
	}
}

func TestLdbDirtySegmentsAreScopedPerTree(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetDirtySegment(1, 3); err != nil {
		t.Fatalf("SetDirtySegment: %v", err)
	}
	if err := s.SetDirtySegment(2, 3); err != nil {
		t.Fatalf("SetDirtySegment: %v", err)
	}

	dirty1, err := s.GetDirtySegments(1)
	if err != nil || len(dirty1) != 1 {
		t.Fatalf("GetDirtySegments(1) = %v, err=%v", dirty1, err)
	}
	dirty2, err := s.GetDirtySegments(2)
	if err != nil || len(dirty2) != 1 {
		t.Fatalf("GetDirtySegments(2) = %v, err=%v", dirty2, err)
	}
}

func TestLdbLastFullRebuildPersists(t *testing.T) {
	s := openTestStore(t)

	now := time.UnixMilli(1_700_000_000_000)
	if err := s.SetLastFullRebuild(1, now); err != nil {
		t.Fatalf("SetLastFullRebuild: %v", err)
	}
	got, err := s.GetLastFullRebuild(1)
	if err != nil {
		t.Fatalf("GetLastFullRebuild: %v", err)
	}
	if !got.Equal(now) {
		t.Errorf("GetLastFullRebuild = %v, want %v", got, now)
	}
}
