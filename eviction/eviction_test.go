package eviction

import (
	"testing"
	"time"

	"github.com/lighttransport/francine/build"
	"github.com/lighttransport/francine/filedirectory"
	"github.com/lighttransport/francine/modules"
	"github.com/lighttransport/francine/nodedirectory"
	"github.com/lighttransport/francine/persist"
	"github.com/lighttransport/francine/renderer"
	"github.com/lighttransport/francine/rpc"
	"github.com/lighttransport/francine/workerservice"
	"github.com/lighttransport/francine/workerstore"
)

type ioDiscard struct{}

func (ioDiscard) Write(p []byte) (int, error) { return len(p), nil }

func startTestWorker(t *testing.T, name string) (modules.NetAddress, *workerstore.Store) {
	t.Helper()
	dir := build.TempDir("eviction", name)
	store := workerstore.NewStore(dir, 1<<20)
	adapter := renderer.NewAdapter(renderer.DefaultConfig())
	log := persist.NewLogger(ioDiscard{})

	srv, err := rpc.NewServer("127.0.0.1:0", log)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.Close() })
	workerservice.New(store, adapter, log).Register(srv)
	return srv.Address(), store
}

// TestCycleEvictsUnlockedExpiredFiles checks that a single eviction cycle
// deletes a file from the one worker where it is expired and unlocked,
// both in the FileDirectory and on the worker's store.
func TestCycleEvictsUnlockedExpiredFiles(t *testing.T) {
	addr, store := startTestWorker(t, t.Name())

	nodes := nodedirectory.New()
	w := nodes.AddWorker(addr)

	files := filedirectory.New(time.Millisecond)
	id, size, err := store.Put([]byte("stale content"))
	if err != nil {
		t.Fatal(err)
	}
	files.NotifyFilePut(id, size, w, false)
	time.Sleep(5 * time.Millisecond)

	log := persist.NewLogger(ioDiscard{})
	loop := New(files, nodes, time.Hour, log)
	loop.cycle()

	if files.IsFileAlive(id) {
		t.Error("expired, unlocked file should have been evicted from the directory")
	}
	if _, err := store.Get(id); err == nil {
		t.Error("expired, unlocked file should have been deleted from the worker's store")
	}
}

// TestCycleNeverEvictsLockedFiles checks that a locked file survives an
// eviction cycle even after its TTL has elapsed.
func TestCycleNeverEvictsLockedFiles(t *testing.T) {
	addr, store := startTestWorker(t, t.Name())

	nodes := nodedirectory.New()
	w := nodes.AddWorker(addr)

	files := filedirectory.New(time.Millisecond)
	id, size, err := store.Put([]byte("locked content"))
	if err != nil {
		t.Fatal(err)
	}
	files.NotifyFilePut(id, size, w, true)
	time.Sleep(5 * time.Millisecond)

	log := persist.NewLogger(ioDiscard{})
	loop := New(files, nodes, time.Hour, log)
	loop.cycle()

	if !files.IsFileAlive(id) {
		t.Error("a locked file must never be evicted, regardless of expiration")
	}
	if _, err := store.Get(id); err != nil {
		t.Error("a locked file's content must still be present on its worker")
	}
}

// TestCycleSkipsUnreachableWorker checks that when the Delete RPC to a
// file's holder fails, the cycle does not drop the entry: it survives in
// the directory to be retried next cycle.
func TestCycleSkipsUnreachableWorker(t *testing.T) {
	nodes := nodedirectory.New()
	// A worker address nothing is listening on.
	w := nodes.AddWorker("127.0.0.1:1")

	files := filedirectory.New(time.Millisecond)
	files.NotifyFilePut("unreachable-file", 1, w, false)
	time.Sleep(5 * time.Millisecond)

	log := persist.NewLogger(ioDiscard{})
	loop := New(files, nodes, time.Hour, log)
	loop.cycle()

	if !files.IsFileAlive("unreachable-file") {
		t.Error("a file whose holder's Delete RPC failed should remain in the directory for the next cycle")
	}
}
