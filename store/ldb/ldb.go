// Package ldb is a github.com/syndtr/goleveldb-backed store.Store,
// following the composite big-endian key encoding and iterator usage
// of Carmen's backend/store/ldb and backend/hashtree/htldb packages,
// generalized to this engine's four key families.
package ldb

import (
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/kvsync/hashtree/common"
	"github.com/kvsync/hashtree/digest"
	"github.com/kvsync/hashtree/store"
)

// Store is a LevelDB-backed store.Store implementation.
type Store struct {
	db *leveldb.DB
}

// Open opens (creating if absent) a LevelDB database at path to back
// the digest store.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open digest store at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Wrap adapts an already-open LevelDB handle, allowing the digest
// store to share a database instance with other components.
func Wrap(db *leveldb.DB) *Store {
	return &Store{db: db}
}

func (s *Store) PutSegmentData(treeId common.TreeId, segId common.SegmentId, key []byte, d common.Digest) error {
	if err := s.db.Put(common.SegmentDataKey(treeId, segId, key), d[:], nil); err != nil {
		return fmt.Errorf("failed to put segment data: %w", err)
	}
	return nil
}

func (s *Store) DeleteSegmentData(treeId common.TreeId, segId common.SegmentId, key []byte) error {
	if err := s.db.Delete(common.SegmentDataKey(treeId, segId, key), nil); err != nil {
		return fmt.Errorf("failed to delete segment data: %w", err)
	}
	return nil
}

func (s *Store) GetSegmentData(treeId common.TreeId, segId common.SegmentId, key []byte) (common.Digest, bool, error) {
	value, err := s.db.Get(common.SegmentDataKey(treeId, segId, key), nil)
	if err == leveldb.ErrNotFound {
		return common.Digest{}, false, nil
	}
	if err != nil {
		return common.Digest{}, false, fmt.Errorf("failed to get segment data: %w", err)
	}
	var d common.Digest
	copy(d[:], value)
	return d, true, nil
}

func (s *Store) GetSegment(treeId common.TreeId, segId common.SegmentId) ([]digest.SegmentDatum, error) {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot digest store: %w", err)
	}
	defer snap.Release()

	start := common.SegmentDataPrefix(treeId, segId)
	limit := common.SegmentDataUpperBound(treeId, segId+1)
	iter := snap.NewIterator(&util.Range{Start: start, Limit: limit}, nil)
	defer iter.Release()

	var out []digest.SegmentDatum
	for iter.Next() {
		_, userKey := common.SegIdOfDataKey(iter.Key())
		var d common.Digest
		copy(d[:], iter.Value())
		out = append(out, digest.SegmentDatum{Key: append([]byte(nil), userKey...), Digest: d})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to scan segment: %w", err)
	}
	return out, nil
}

// dataIterator implements store.DataIterator atop a LevelDB iterator
// scoped to a contiguous segment range.
type dataIterator struct {
	snap *leveldb.Snapshot
	iter iterator
	err  error
}

// iterator narrows the goleveldb iterator.Iterator surface used here,
// so dataIterator can be constructed without importing the iterator
// package purely for this local alias.
type iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Release()
}

func (it *dataIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.iter.Next() {
		it.err = it.iter.Error()
		return false
	}
	return true
}

func (it *dataIterator) SegmentId() common.SegmentId {
	segId, _ := common.SegIdOfDataKey(it.iter.Key())
	return segId
}

func (it *dataIterator) Datum() digest.SegmentDatum {
	_, userKey := common.SegIdOfDataKey(it.iter.Key())
	var d common.Digest
	copy(d[:], it.iter.Value())
	return digest.SegmentDatum{Key: append([]byte(nil), userKey...), Digest: d}
}

func (it *dataIterator) Err() error { return it.err }

func (it *dataIterator) Release() {
	it.iter.Release()
	if it.snap != nil {
		it.snap.Release()
	}
}

func (s *Store) GetSegmentDataIterator(treeId common.TreeId, fromSeg, toSeg common.SegmentId) (store.DataIterator, error) {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot digest store: %w", err)
	}
	start := common.SegmentDataPrefix(treeId, fromSeg)
	limit := common.SegmentDataUpperBound(treeId, toSeg)
	iter := snap.NewIterator(&util.Range{Start: start, Limit: limit}, nil)
	return &dataIterator{snap: snap, iter: iter}, nil
}

func (s *Store) PutSegmentHash(treeId common.TreeId, nodeId common.NodeId, h common.Digest) error {
	if err := s.db.Put(common.SegmentHashKey(treeId, nodeId), h[:], nil); err != nil {
		return fmt.Errorf("failed to put segment hash: %w", err)
	}
	return nil
}

func (s *Store) GetSegmentHash(treeId common.TreeId, nodeId common.NodeId) (common.Digest, bool, error) {
	value, err := s.db.Get(common.SegmentHashKey(treeId, nodeId), nil)
	if err == leveldb.ErrNotFound {
		return common.Digest{}, false, nil
	}
	if err != nil {
		return common.Digest{}, false, fmt.Errorf("failed to get segment hash: %w", err)
	}
	var h common.Digest
	copy(h[:], value)
	return h, true, nil
}

func (s *Store) GetSegmentHashes(treeId common.TreeId, nodeIds []common.NodeId) ([]store.NodeHash, error) {
	sorted := append([]common.NodeId(nil), nodeIds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out := make([]store.NodeHash, 0, len(sorted))
	for _, id := range sorted {
		h, ok, err := s.GetSegmentHash(treeId, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, store.NodeHash{NodeId: id, Hash: h})
		}
	}
	return out, nil
}

func (s *Store) SetDirtySegment(treeId common.TreeId, segId common.SegmentId) error {
	if err := s.db.Put(common.DirtySegmentKey(treeId, segId), []byte{0x01}, nil); err != nil {
		return fmt.Errorf("failed to set dirty segment: %w", err)
	}
	return nil
}

func (s *Store) ClearDirtySegment(treeId common.TreeId, segId common.SegmentId) (bool, error) {
	key := common.DirtySegmentKey(treeId, segId)
	wasSet, err := s.db.Has(key, nil)
	if err != nil {
		return false, fmt.Errorf("failed to test dirty segment: %w", err)
	}
	if wasSet {
		if err := s.db.Delete(key, nil); err != nil {
			return false, fmt.Errorf("failed to clear dirty segment: %w", err)
		}
	}
	return wasSet, nil
}

func (s *Store) scanDirty(treeId common.TreeId) ([]common.SegmentId, error) {
	r := util.Range{Start: common.DirtySegmentPrefix(treeId), Limit: common.DirtySegmentUpperBound(treeId)}
	iter := s.db.NewIterator(&r, nil)
	defer iter.Release()

	var out []common.SegmentId
	for iter.Next() {
		key := iter.Key()
		segId := common.SegmentId(binary.BigEndian.Uint32(key[9:13]))
		out = append(out, segId)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to scan dirty segments: %w", err)
	}
	return out, nil
}

func (s *Store) GetDirtySegments(treeId common.TreeId) ([]common.SegmentId, error) {
	return s.scanDirty(treeId)
}

func (s *Store) ClearAndGetDirtySegments(treeId common.TreeId) ([]common.SegmentId, error) {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot digest store: %w", err)
	}
	defer snap.Release()

	r := util.Range{Start: common.DirtySegmentPrefix(treeId), Limit: common.DirtySegmentUpperBound(treeId)}
	iter := snap.NewIterator(&r, nil)
	defer iter.Release()

	var segIds []common.SegmentId
	batch := new(leveldb.Batch)
	for iter.Next() {
		key := iter.Key()
		segId := common.SegmentId(binary.BigEndian.Uint32(key[9:13]))
		segIds = append(segIds, segId)
		batch.Delete(append([]byte(nil), key...))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to scan dirty segments: %w", err)
	}
	if batch.Len() > 0 {
		if err := s.db.Write(batch, nil); err != nil {
			return nil, fmt.Errorf("failed to clear dirty segments: %w", err)
		}
	}
	return segIds, nil
}

func (s *Store) MarkSegments(treeId common.TreeId, segIds []common.SegmentId) error {
	batch := new(leveldb.Batch)
	for _, segId := range segIds {
		batch.Put(common.DirtySegmentKey(treeId, segId), []byte{0x01})
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("failed to mark dirty segments: %w", err)
	}
	return nil
}

func (s *Store) UnmarkSegments(treeId common.TreeId, segIds []common.SegmentId) error {
	batch := new(leveldb.Batch)
	for _, segId := range segIds {
		batch.Delete(common.DirtySegmentKey(treeId, segId))
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("failed to unmark dirty segments: %w", err)
	}
	return nil
}

func (s *Store) GetLastFullRebuild(treeId common.TreeId) (time.Time, error) {
	value, err := s.db.Get(common.MetaKey(treeId, common.MetaLastFullRebuild), nil)
	if err == leveldb.ErrNotFound {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last full rebuild: %w", err)
	}
	ms := binary.BigEndian.Uint64(value)
	return time.UnixMilli(int64(ms)), nil
}

func (s *Store) SetLastFullRebuild(treeId common.TreeId, at time.Time) error {
	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, uint64(at.UnixMilli()))
	if err := s.db.Put(common.MetaKey(treeId, common.MetaLastFullRebuild), value, nil); err != nil {
		return fmt.Errorf("failed to set last full rebuild: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close digest store: %w", err)
	}
	return nil
}
