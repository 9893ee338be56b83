// Package observer implements a typed event set: a fixed set of
// pre/post lifecycle notifications fired by the hash-tree engine,
// dispatched to an unbounded, concurrent, insertion-ordered collection
// of listeners. Observer panics are recovered and logged; they never
// affect engine state.
package observer

import (
	"sync"

	"github.com/kvsync/hashtree/common"
)

// Observer receives lifecycle notifications from a hash-tree engine.
// Embed NoOpObserver to implement only the methods of interest.
type Observer interface {
	PreHPut(treeId common.TreeId, key []byte)
	PostHPut(treeId common.TreeId, key []byte, err error)
	PreHRemove(treeId common.TreeId, key []byte)
	PostHRemove(treeId common.TreeId, key []byte, err error)
	PreRebuild(treeId common.TreeId)
	PostRebuild(treeId common.TreeId, segmentsProcessed int, err error)
	PreSPut(treeId common.TreeId, count int)
	PostSPut(treeId common.TreeId, count int, err error)
	PreSRemove(treeId common.TreeId, count int)
	PostSRemove(treeId common.TreeId, count int, err error)
	PreSync(treeId common.TreeId)
	PostSync(treeId common.TreeId, keyDifferences, extrinsicSegments int, err error)
}

// NoOpObserver is embeddable by observers interested in only a subset
// of the event set.
type NoOpObserver struct{}

func (NoOpObserver) PreHPut(common.TreeId, []byte)                                 {}
func (NoOpObserver) PostHPut(common.TreeId, []byte, error)                        {}
func (NoOpObserver) PreHRemove(common.TreeId, []byte)                             {}
func (NoOpObserver) PostHRemove(common.TreeId, []byte, error)                     {}
func (NoOpObserver) PreRebuild(common.TreeId)                                     {}
func (NoOpObserver) PostRebuild(common.TreeId, int, error)                        {}
func (NoOpObserver) PreSPut(common.TreeId, int)                                   {}
func (NoOpObserver) PostSPut(common.TreeId, int, error)                           {}
func (NoOpObserver) PreSRemove(common.TreeId, int)                                {}
func (NoOpObserver) PostSRemove(common.TreeId, int, error)                        {}
func (NoOpObserver) PreSync(common.TreeId)                                        {}
func (NoOpObserver) PostSync(common.TreeId, int, int, error)                      {}

// Registry is an unbounded, concurrent, insertion-ordered collection of
// observers. Notifications iterate a stable snapshot taken under lock,
// so a Register/Unregister racing with a notification never observes a
// partially-updated list nor blocks the notifying call for long.
type Registry struct {
	mu        sync.Mutex
	observers []Observer
	log       *common.Log
}

// NewRegistry creates an empty registry. log receives recovered
// observer panics; pass common.NewLogTo(log.New(io.Discard, "", 0)) to
// silence them.
func NewRegistry(log *common.Log) *Registry {
	return &Registry{log: log}
}

// Register appends o to the collection.
func (r *Registry) Register(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// Unregister removes the first occurrence of o, if present.
func (r *Registry) Unregister(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, cur := range r.observers {
		if cur == o {
			r.observers = append(r.observers[:i:i], r.observers[i+1:]...)
			return
		}
	}
}

func (r *Registry) snapshot() []Observer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.observers
}

func (r *Registry) safely(name string, run func(Observer)) {
	for _, o := range r.snapshot() {
		func(o Observer) {
			defer func() {
				if rec := recover(); rec != nil && r.log != nil {
					r.log.Printf("observer %s panicked during %s: %v", o, name, rec)
				}
			}()
			run(o)
		}(o)
	}
}

func (r *Registry) NotifyPreHPut(treeId common.TreeId, key []byte) {
	r.safely("PreHPut", func(o Observer) { o.PreHPut(treeId, key) })
}

func (r *Registry) NotifyPostHPut(treeId common.TreeId, key []byte, err error) {
	r.safely("PostHPut", func(o Observer) { o.PostHPut(treeId, key, err) })
}

func (r *Registry) NotifyPreHRemove(treeId common.TreeId, key []byte) {
	r.safely("PreHRemove", func(o Observer) { o.PreHRemove(treeId, key) })
}

func (r *Registry) NotifyPostHRemove(treeId common.TreeId, key []byte, err error) {
	r.safely("PostHRemove", func(o Observer) { o.PostHRemove(treeId, key, err) })
}

func (r *Registry) NotifyPreRebuild(treeId common.TreeId) {
	r.safely("PreRebuild", func(o Observer) { o.PreRebuild(treeId) })
}

func (r *Registry) NotifyPostRebuild(treeId common.TreeId, processed int, err error) {
	r.safely("PostRebuild", func(o Observer) { o.PostRebuild(treeId, processed, err) })
}

func (r *Registry) NotifyPreSPut(treeId common.TreeId, count int) {
	r.safely("PreSPut", func(o Observer) { o.PreSPut(treeId, count) })
}

func (r *Registry) NotifyPostSPut(treeId common.TreeId, count int, err error) {
	r.safely("PostSPut", func(o Observer) { o.PostSPut(treeId, count, err) })
}

func (r *Registry) NotifyPreSRemove(treeId common.TreeId, count int) {
	r.safely("PreSRemove", func(o Observer) { o.PreSRemove(treeId, count) })
}

func (r *Registry) NotifyPostSRemove(treeId common.TreeId, count int, err error) {
	r.safely("PostSRemove", func(o Observer) { o.PostSRemove(treeId, count, err) })
}

func (r *Registry) NotifyPreSync(treeId common.TreeId) {
	r.safely("PreSync", func(o Observer) { o.PreSync(treeId) })
}

func (r *Registry) NotifyPostSync(treeId common.TreeId, keyDifferences, extrinsicSegments int, err error) {
	r.safely("PostSync", func(o Observer) { o.PostSync(treeId, keyDifferences, extrinsicSegments, err) })
}
