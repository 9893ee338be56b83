// Package memory provides an in-memory store.Store implementation,
// used as the default digest store and as the reference test fixture
// for the hash-tree engine, the same role github.com/Fantom-foundation/Carmen's
// htmemory.HashTree plays for Carmen's hash-tree variants.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/kvsync/hashtree/common"
	"github.com/kvsync/hashtree/digest"
	"github.com/kvsync/hashtree/store"
)

type treeState struct {
	data   map[common.SegmentId]map[string]common.Digest
	hashes map[common.NodeId]common.Digest
	dirty  map[common.SegmentId]struct{}
	meta   time.Time
}

func newTreeState() *treeState {
	return &treeState{
		data:   map[common.SegmentId]map[string]common.Digest{},
		hashes: map[common.NodeId]common.Digest{},
		dirty:  map[common.SegmentId]struct{}{},
	}
}

// Store is an in-memory, mutex-guarded store.Store implementation.
type Store struct {
	mu    sync.RWMutex
	trees map[common.TreeId]*treeState
}

// New creates an empty in-memory digest store.
func New() *Store {
	return &Store{trees: map[common.TreeId]*treeState{}}
}

func (s *Store) tree(treeId common.TreeId) *treeState {
	t, ok := s.trees[treeId]
	if !ok {
		t = newTreeState()
		s.trees[treeId] = t
	}
	return t
}

func (s *Store) PutSegmentData(treeId common.TreeId, segId common.SegmentId, key []byte, d common.Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tree(treeId)
	seg, ok := t.data[segId]
	if !ok {
		seg = map[string]common.Digest{}
		t.data[segId] = seg
	}
	seg[string(key)] = d
	return nil
}

func (s *Store) DeleteSegmentData(treeId common.TreeId, segId common.SegmentId, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tree(treeId)
	if seg, ok := t.data[segId]; ok {
		delete(seg, string(key))
	}
	return nil
}

func (s *Store) GetSegmentData(treeId common.TreeId, segId common.SegmentId, key []byte) (common.Digest, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trees[treeId]
	if !ok {
		return common.Digest{}, false, nil
	}
	seg, ok := t.data[segId]
	if !ok {
		return common.Digest{}, false, nil
	}
	d, ok := seg[string(key)]
	return d, ok, nil
}

func (s *Store) GetSegment(treeId common.TreeId, segId common.SegmentId) ([]digest.SegmentDatum, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trees[treeId]
	if !ok {
		return nil, nil
	}
	seg, ok := t.data[segId]
	if !ok {
		return nil, nil
	}
	out := make([]digest.SegmentDatum, 0, len(seg))
	for k, d := range seg {
		out = append(out, digest.SegmentDatum{Key: []byte(k), Digest: d})
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i].Key) < string(out[j].Key) })
	return out, nil
}

// memIterator implements store.DataIterator over a pre-materialized,
// snapshot-consistent slice of rows.
type memIterator struct {
	rows []memRow
	pos  int
}

type memRow struct {
	segId common.SegmentId
	datum digest.SegmentDatum
}

func (it *memIterator) Next() bool {
	if it.pos >= len(it.rows) {
		return false
	}
	it.pos++
	return true
}

func (it *memIterator) SegmentId() common.SegmentId { return it.rows[it.pos-1].segId }
func (it *memIterator) Datum() digest.SegmentDatum   { return it.rows[it.pos-1].datum }
func (it *memIterator) Err() error                   { return nil }
func (it *memIterator) Release()                     {}

func (s *Store) GetSegmentDataIterator(treeId common.TreeId, fromSeg, toSeg common.SegmentId) (store.DataIterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []memRow
	t, ok := s.trees[treeId]
	if ok {
		segIds := make([]common.SegmentId, 0, len(t.data))
		for segId := range t.data {
			if segId >= fromSeg && segId < toSeg {
				segIds = append(segIds, segId)
			}
		}
		sort.Slice(segIds, func(i, j int) bool { return segIds[i] < segIds[j] })
		for _, segId := range segIds {
			seg := t.data[segId]
			keys := make([]string, 0, len(seg))
			for k := range seg {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				rows = append(rows, memRow{segId: segId, datum: digest.SegmentDatum{Key: []byte(k), Digest: seg[k]}})
			}
		}
	}
	return &memIterator{rows: rows}, nil
}

func (s *Store) PutSegmentHash(treeId common.TreeId, nodeId common.NodeId, h common.Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree(treeId).hashes[nodeId] = h
	return nil
}

func (s *Store) GetSegmentHash(treeId common.TreeId, nodeId common.NodeId) (common.Digest, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trees[treeId]
	if !ok {
		return common.Digest{}, false, nil
	}
	h, ok := t.hashes[nodeId]
	return h, ok, nil
}

func (s *Store) GetSegmentHashes(treeId common.TreeId, nodeIds []common.NodeId) ([]store.NodeHash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trees[treeId]
	if !ok {
		return nil, nil
	}
	out := make([]store.NodeHash, 0, len(nodeIds))
	for _, id := range nodeIds {
		if h, ok := t.hashes[id]; ok {
			out = append(out, store.NodeHash{NodeId: id, Hash: h})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeId < out[j].NodeId })
	return out, nil
}

func (s *Store) SetDirtySegment(treeId common.TreeId, segId common.SegmentId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree(treeId).dirty[segId] = struct{}{}
	return nil
}

func (s *Store) ClearDirtySegment(treeId common.TreeId, segId common.SegmentId) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tree(treeId)
	_, wasSet := t.dirty[segId]
	delete(t.dirty, segId)
	return wasSet, nil
}

func (s *Store) GetDirtySegments(treeId common.TreeId) ([]common.SegmentId, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trees[treeId]
	if !ok {
		return nil, nil
	}
	out := make([]common.SegmentId, 0, len(t.dirty))
	for segId := range t.dirty {
		out = append(out, segId)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *Store) ClearAndGetDirtySegments(treeId common.TreeId) ([]common.SegmentId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tree(treeId)
	out := make([]common.SegmentId, 0, len(t.dirty))
	for segId := range t.dirty {
		out = append(out, segId)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	t.dirty = map[common.SegmentId]struct{}{}
	return out, nil
}

func (s *Store) MarkSegments(treeId common.TreeId, segIds []common.SegmentId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tree(treeId)
	for _, segId := range segIds {
		t.dirty[segId] = struct{}{}
	}
	return nil
}

func (s *Store) UnmarkSegments(treeId common.TreeId, segIds []common.SegmentId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tree(treeId)
	for _, segId := range segIds {
		delete(t.dirty, segId)
	}
	return nil
}

func (s *Store) GetLastFullRebuild(treeId common.TreeId) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trees[treeId]
	if !ok {
		return time.Time{}, nil
	}
	return t.meta, nil
}

func (s *Store) SetLastFullRebuild(treeId common.TreeId, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree(treeId).meta = at
	return nil
}

func (s *Store) Close() error { return nil }
