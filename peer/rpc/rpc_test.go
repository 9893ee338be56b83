package rpc

import (
	"net"
	"testing"

	"github.com/kvsync/hashtree/common"
	"github.com/kvsync/hashtree/engine"
	memstore "github.com/kvsync/hashtree/store/memory"
	memuser "github.com/kvsync/hashtree/userstore/memory"
	"github.com/kvsync/hashtree/userstore"
)

func segProvider(key []byte, noOfSegments int) common.SegmentId {
	if len(key) == 0 {
		return 0
	}
	return common.SegmentId(int(key[0]) % noOfSegments)
}

func newServerAndClient(t *testing.T) (*engine.Engine, *memuser.Store, *Client) {
	t.Helper()
	us := memuser.New()
	e, err := engine.New(engine.Config{
		NoOfSegments:   4,
		SegIdProvider:  segProvider,
		TreeIdProvider: func([]byte) common.TreeId { return 1 },
		Store:          memstore.New(),
		UserStore:      us,
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = e.Stop() })

	srv, err := Listen("127.0.0.1", 0, e)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })

	addr := srv.Addr().(*net.TCPAddr)
	client, err := Dial("127.0.0.1", addr.Port)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return e, us, client
}

func TestClientGetSegmentHashRoundTrips(t *testing.T) {
	e, _, client := newServerAndClient(t)

	if err := e.HPut([]byte("1"), []byte("V")); err != nil {
		t.Fatal(err)
	}
	if _, err := e.RebuildHashTree(1, true, -1); err != nil {
		t.Fatal(err)
	}

	wantHash, wantOk, err := e.GetSegmentHash(1, 0)
	if err != nil {
		t.Fatal(err)
	}

	gotHash, gotOk, err := client.GetSegmentHash(1, 0)
	if err != nil {
		t.Fatalf("client.GetSegmentHash: %v", err)
	}
	if gotOk != wantOk || gotHash != wantHash {
		t.Fatalf("client.GetSegmentHash = (%x, %v), want (%x, %v)", gotHash, gotOk, wantHash, wantOk)
	}
}

func TestClientSPutAndSRemoveRoundTrip(t *testing.T) {
	_, us, client := newServerAndClient(t)

	if err := client.SPut(1, []userstore.KV{{Key: []byte("k"), Value: []byte("v")}}); err != nil {
		t.Fatalf("SPut: %v", err)
	}
	present, err := us.Contains([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if !present {
		t.Fatal("expected SPut over RPC to reach the server's user store")
	}

	if err := client.SRemove(1, [][]byte{[]byte("k")}); err != nil {
		t.Fatalf("SRemove: %v", err)
	}
	present, err = us.Contains([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if present {
		t.Fatal("expected SRemove over RPC to remove the key")
	}
}

func TestClientGetSegmentReturnsWrittenData(t *testing.T) {
	e, _, client := newServerAndClient(t)

	if err := e.HPut([]byte("1"), []byte("V")); err != nil {
		t.Fatal(err)
	}

	data, err := client.GetSegment(1, segProvider([]byte("1"), 4))
	if err != nil {
		t.Fatalf("GetSegment: %v", err)
	}
	found := false
	for _, d := range data {
		if string(d.Key) == "1" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected GetSegment over RPC to include the written key")
	}
}

func TestClientDeleteTreeNodeRemovesKeys(t *testing.T) {
	e, us, client := newServerAndClient(t)

	if err := e.HPut([]byte("1"), []byte("V")); err != nil {
		t.Fatal(err)
	}
	if err := us.PutForTree(1, []byte("1"), []byte("V")); err != nil {
		t.Fatal(err)
	}
	if _, err := e.RebuildHashTree(1, true, -1); err != nil {
		t.Fatal(err)
	}

	// With 4 segments, segment 1 (holding key "1") is leaf node 4.
	if err := client.DeleteTreeNode(1, 4); err != nil {
		t.Fatalf("DeleteTreeNode: %v", err)
	}
	present, err := us.Contains([]byte("1"))
	if err != nil {
		t.Fatal(err)
	}
	if present {
		t.Fatal("expected DeleteTreeNode over RPC to remove the underlying key")
	}
}
