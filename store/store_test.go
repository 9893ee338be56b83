package store_test

import (
	"testing"

	"github.com/kvsync/hashtree/common"
	memstore "github.com/kvsync/hashtree/store/memory"
)

func TestSegmentDataRoundTrip(t *testing.T) {
	s := memstore.New()
	defer s.Close()

	treeId := common.TreeId(1)
	segId := common.SegmentId(7)
	key := []byte("alpha")
	d := common.Digest{1, 2, 3}

	if err := s.PutSegmentData(treeId, segId, key, d); err != nil {
		t.Fatalf("PutSegmentData: %v", err)
	}
	got, ok, err := s.GetSegmentData(treeId, segId, key)
	if err != nil || !ok {
		t.Fatalf("GetSegmentData: ok=%v err=%v", ok, err)
	}
	if got != d {
		t.Errorf("GetSegmentData = %x, want %x", got, d)
	}

	if err := s.DeleteSegmentData(treeId, segId, key); err != nil {
		t.Fatalf("DeleteSegmentData: %v", err)
	}
	_, ok, err = s.GetSegmentData(treeId, segId, key)
	if err != nil || ok {
		t.Fatalf("expected absence after delete, ok=%v err=%v", ok, err)
	}
}

func TestGetSegmentOrderedByKey(t *testing.T) {
	s := memstore.New()
	defer s.Close()

	treeId := common.TreeId(1)
	segId := common.SegmentId(0)
	keys := []string{"charlie", "alpha", "bravo"}
	for i, k := range keys {
		if err := s.PutSegmentData(treeId, segId, []byte(k), common.Digest{byte(i)}); err != nil {
			t.Fatalf("PutSegmentData: %v", err)
		}
	}
	data, err := s.GetSegment(treeId, segId)
	if err != nil {
		t.Fatalf("GetSegment: %v", err)
	}
	if len(data) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(data))
	}
	for i := 1; i < len(data); i++ {
		if string(data[i-1].Key) >= string(data[i].Key) {
			t.Errorf("rows not in ascending key order: %s >= %s", data[i-1].Key, data[i].Key)
		}
	}
}

func TestDirtySegmentLifecycle(t *testing.T) {
	s := memstore.New()
	defer s.Close()

	treeId := common.TreeId(2)
	if err := s.SetDirtySegment(treeId, 3); err != nil {
		t.Fatalf("SetDirtySegment: %v", err)
	}
	if err := s.SetDirtySegment(treeId, 5); err != nil {
		t.Fatalf("SetDirtySegment: %v", err)
	}

	dirty, err := s.GetDirtySegments(treeId)
	if err != nil || len(dirty) != 2 {
		t.Fatalf("GetDirtySegments = %v, err=%v", dirty, err)
	}

	wasSet, err := s.ClearDirtySegment(treeId, 3)
	if err != nil || !wasSet {
		t.Fatalf("ClearDirtySegment(3) wasSet=%v err=%v", wasSet, err)
	}
	wasSet, err = s.ClearDirtySegment(treeId, 3)
	if err != nil || wasSet {
		t.Fatalf("ClearDirtySegment(3) second call wasSet=%v err=%v", wasSet, err)
	}

	remaining, err := s.ClearAndGetDirtySegments(treeId)
	if err != nil || len(remaining) != 1 || remaining[0] != 5 {
		t.Fatalf("ClearAndGetDirtySegments = %v, err=%v", remaining, err)
	}
	remaining, err = s.GetDirtySegments(treeId)
	if err != nil || len(remaining) != 0 {
		t.Fatalf("expected empty dirty set after clear, got %v", remaining)
	}
}

func TestSegmentDataIteratorRange(t *testing.T) {
	s := memstore.New()
	defer s.Close()

	treeId := common.TreeId(1)
	for segId := common.SegmentId(0); segId < 4; segId++ {
		if err := s.PutSegmentData(treeId, segId, []byte("k"), common.Digest{byte(segId)}); err != nil {
			t.Fatalf("PutSegmentData: %v", err)
		}
	}

	it, err := s.GetSegmentDataIterator(treeId, 1, 3)
	if err != nil {
		t.Fatalf("GetSegmentDataIterator: %v", err)
	}
	defer it.Release()

	var seen []common.SegmentId
	for it.Next() {
		seen = append(seen, it.SegmentId())
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterator error: %v", err)
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("GetSegmentDataIterator(1,3) visited %v, want [1 2]", seen)
	}
}

func TestLastFullRebuildDefaultsToZero(t *testing.T) {
	s := memstore.New()
	defer s.Close()

	ts, err := s.GetLastFullRebuild(common.TreeId(99))
	if err != nil {
		t.Fatalf("GetLastFullRebuild: %v", err)
	}
	if !ts.IsZero() {
		t.Errorf("expected zero time for a never-rebuilt tree, got %v", ts)
	}
}
