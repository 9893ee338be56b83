package observer

import (
	"bytes"
	"log"
	"sync"
	"testing"

	"github.com/kvsync/hashtree/common"
)

type recordingObserver struct {
	NoOpObserver
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) PreHPut(treeId common.TreeId, key []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, "PreHPut")
}

func (o *recordingObserver) PostRebuild(treeId common.TreeId, processed int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, "PostRebuild")
}

type panickyObserver struct {
	NoOpObserver
}

func (panickyObserver) PreHPut(common.TreeId, []byte) { panic("boom") }

func TestRegisterNotifiesInInsertionOrder(t *testing.T) {
	r := NewRegistry(common.NewLogTo(log.New(&bytes.Buffer{}, "", 0)))
	var order []int
	var mu sync.Mutex
	for i := 0; i < 3; i++ {
		i := i
		r.Register(recorderFunc(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	r.NotifyPreHPut(1, []byte("k"))
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Fatalf("notify order = %v, want [0 1 2]", order)
	}
}

// recorderFunc adapts a plain func into an Observer whose PreHPut calls it.
type recorderFunc func()

func (f recorderFunc) PreHPut(common.TreeId, []byte)         { f() }
func (recorderFunc) PostHPut(common.TreeId, []byte, error)   {}
func (recorderFunc) PreHRemove(common.TreeId, []byte)        {}
func (recorderFunc) PostHRemove(common.TreeId, []byte, error) {}
func (recorderFunc) PreRebuild(common.TreeId)                {}
func (recorderFunc) PostRebuild(common.TreeId, int, error)   {}
func (recorderFunc) PreSPut(common.TreeId, int)              {}
func (recorderFunc) PostSPut(common.TreeId, int, error)      {}
func (recorderFunc) PreSRemove(common.TreeId, int)           {}
func (recorderFunc) PostSRemove(common.TreeId, int, error)   {}
func (recorderFunc) PreSync(common.TreeId)                   {}
func (recorderFunc) PostSync(common.TreeId, int, int, error) {}

func TestUnregisterRemovesOnlyFirstOccurrence(t *testing.T) {
	r := NewRegistry(common.NewLogTo(log.New(&bytes.Buffer{}, "", 0)))
	o := &recordingObserver{}
	r.Register(o)
	r.Register(o)
	r.Unregister(o)

	r.NotifyPreHPut(1, []byte("k"))
	o.mu.Lock()
	n := len(o.calls)
	o.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected exactly one remaining registration to fire, got %d calls", n)
	}
}

func TestUnregisterOfAbsentObserverIsNoOp(t *testing.T) {
	r := NewRegistry(common.NewLogTo(log.New(&bytes.Buffer{}, "", 0)))
	o := &recordingObserver{}
	r.Unregister(o) // must not panic on an empty registry
}

func TestPanicInOneObserverDoesNotStopOthers(t *testing.T) {
	var buf bytes.Buffer
	r := NewRegistry(common.NewLogTo(log.New(&buf, "", 0)))
	o := &recordingObserver{}
	r.Register(panickyObserver{})
	r.Register(o)

	r.NotifyPreHPut(1, []byte("k"))

	o.mu.Lock()
	n := len(o.calls)
	o.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected the observer after the panicking one to still be notified, got %d calls", n)
	}
	if buf.Len() == 0 {
		t.Fatal("expected the recovered panic to be logged")
	}
}

func TestNotifyAfterUnregisterSeesStableSnapshot(t *testing.T) {
	r := NewRegistry(common.NewLogTo(log.New(&bytes.Buffer{}, "", 0)))
	o1 := &recordingObserver{}
	o2 := &recordingObserver{}
	r.Register(o1)
	r.Register(o2)

	r.NotifyPostRebuild(1, 5, nil)
	r.Unregister(o1)
	r.NotifyPostRebuild(1, 7, nil)

	o1.mu.Lock()
	n1 := len(o1.calls)
	o1.mu.Unlock()
	o2.mu.Lock()
	n2 := len(o2.calls)
	o2.mu.Unlock()
	if n1 != 1 {
		t.Fatalf("o1 calls = %d, want 1", n1)
	}
	if n2 != 2 {
		t.Fatalf("o2 calls = %d, want 2", n2)
	}
}
