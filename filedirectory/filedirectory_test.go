package filedirectory

import (
	"testing"
	"time"

	"github.com/lighttransport/francine/modules"
)

const (
	w0 modules.WorkerId = 0
	w1 modules.WorkerId = 1
	w2 modules.WorkerId = 2
)

// TestNotifyFilePutCreatesEntry checks that NotifyFilePut on an unknown id
// creates an entry with the notifying worker as a holder (and lock holder,
// if requested).
func TestNotifyFilePutCreatesEntry(t *testing.T) {
	d := New(time.Minute)
	d.NotifyFilePut("a", 10, w0, true)

	if !d.IsFileAlive("a") {
		t.Fatal("newly put file is not alive")
	}
	if got := d.GetWorkerWithFile("a"); got != w0 {
		t.Errorf("expected holder %v, got %v", w0, got)
	}
	if !d.LockFiles([]modules.FileId{"a"}, w0) {
		t.Error("locking an id already locked by the same worker should be a no-op success")
	}
}

// TestNotifyFilePutAugmentsExisting checks that a second NotifyFilePut for
// the same id never destroys the first holder's membership: it only adds
// the new holder.
func TestNotifyFilePutAugmentsExisting(t *testing.T) {
	d := New(time.Minute)
	d.NotifyFilePut("a", 10, w0, false)
	d.NotifyFilePut("a", 10, w1, false)

	missingOnW2 := d.ListMissingFiles(w2, []modules.FileId{"a"})
	if len(missingOnW2) != 1 {
		t.Fatal("expected a to be missing on w2")
	}
	if len(d.ListMissingFiles(w0, []modules.FileId{"a"})) != 0 {
		t.Error("w0 should still be a holder after a second NotifyFilePut from w1")
	}
	if len(d.ListMissingFiles(w1, []modules.FileId{"a"})) != 0 {
		t.Error("w1 should be a holder after its NotifyFilePut")
	}
}

// TestNotifyFilePutExtendsExpireForward checks that expireAt is never
// pulled backward by a subsequent NotifyFilePut.
func TestNotifyFilePutExtendsExpireForward(t *testing.T) {
	d := New(time.Hour)
	d.NotifyFilePut("a", 1, w0, false)
	d.files["a"].expireAt = time.Now().Add(24 * time.Hour)

	d.NotifyFilePut("a", 1, w1, false)
	if d.files["a"].expireAt.Before(time.Now().Add(23 * time.Hour)) {
		t.Error("NotifyFilePut must not shorten an existing, later expireAt")
	}
}

// TestHoldersNeverEmptyAfterDelete checks that the entry is
// deleted entirely once its last holder is removed.
func TestHoldersNeverEmptyAfterDelete(t *testing.T) {
	d := New(time.Minute)
	d.NotifyFilePut("a", 1, w0, false)
	d.NotifyFileDeleted("a", w0)

	if d.IsFileAlive("a") {
		t.Error("entry should not survive its last holder being removed")
	}
	if _, ok := d.files["a"]; ok {
		t.Error("entry map should not retain a zero-holder entry")
	}
}

// TestLockedSubsetOfHolders checks, across NotifyFileDeleted, that
// removing a holder also removes any lock that worker held.
func TestLockedSubsetOfHolders(t *testing.T) {
	d := New(time.Minute)
	d.NotifyFilePut("a", 1, w0, true)
	d.NotifyFilePut("a", 1, w1, false)
	d.NotifyFileDeleted("a", w0)

	fi := d.files["a"]
	if _, locked := fi.lockedBy[w0]; locked {
		t.Error("lockedBy must not retain a worker no longer in holders")
	}
	if _, holds := fi.holders[w1]; !holds {
		t.Error("removing one holder must not affect another")
	}
}

// TestLockFilesRequiresHolder checks that LockFiles fails, as a whole, if
// any id in the batch is not held by workerId, and that a failed batch
// does not partially lock.
func TestLockFilesRequiresHolder(t *testing.T) {
	d := New(time.Minute)
	d.NotifyFilePut("a", 1, w0, false)
	d.NotifyFilePut("b", 1, w0, false)
	// w0 does not hold "c".
	d.NotifyFilePut("c", 1, w1, false)

	ok := d.LockFiles([]modules.FileId{"a", "b", "c"}, w0)
	if ok {
		t.Fatal("LockFiles should fail when any id is not held by workerId")
	}
	if _, locked := d.files["a"].lockedBy[w0]; locked {
		t.Error("a failed LockFiles batch must not partially lock earlier ids")
	}
}

// TestLockUnlockRoundTrip checks that UnlockFiles removes exactly the
// locks LockFiles added, and is silent on an id with no entry or no lock.
func TestLockUnlockRoundTrip(t *testing.T) {
	d := New(time.Minute)
	d.NotifyFilePut("a", 1, w0, false)

	if !d.LockFiles([]modules.FileId{"a"}, w0) {
		t.Fatal("LockFiles should succeed")
	}
	d.UnlockFiles([]modules.FileId{"a", "nonexistent"}, w0)
	if _, locked := d.files["a"].lockedBy[w0]; locked {
		t.Error("UnlockFiles did not remove the lock")
	}
}

// TestLockedEntrySurvivesExpiration checks that GetUnusedFiles
// never names a (id, holder) pair while that holder has it locked, even
// after the entry's expireAt has passed.
func TestLockedEntrySurvivesExpiration(t *testing.T) {
	d := New(time.Millisecond)
	d.NotifyFilePut("a", 1, w0, true)
	time.Sleep(5 * time.Millisecond)

	for _, u := range d.GetUnusedFiles() {
		if u.ID == "a" && u.Holder == w0 {
			t.Error("a locked holder must never be reported as unused, regardless of expiration")
		}
	}
}

// TestGetUnusedFilesScopedPerHolder checks that eviction is scoped to the
// (id, holder) pair: a file expired and locked on one holder but unlocked
// on another is reported only for the unlocked holder.
func TestGetUnusedFilesScopedPerHolder(t *testing.T) {
	d := New(time.Millisecond)
	d.NotifyFilePut("a", 1, w0, true)
	d.NotifyFilePut("a", 1, w1, false)
	time.Sleep(5 * time.Millisecond)

	var sawW0, sawW1 bool
	for _, u := range d.GetUnusedFiles() {
		if u.ID != "a" {
			continue
		}
		if u.Holder == w0 {
			sawW0 = true
		}
		if u.Holder == w1 {
			sawW1 = true
		}
	}
	if sawW0 {
		t.Error("locked holder w0 must not be reported as unused")
	}
	if !sawW1 {
		t.Error("unlocked holder w1 should be reported as unused once expired")
	}
}

// TestExpireFileForcesEviction checks that ExpireFile makes a previously
// fresh entry immediately eligible for GetUnusedFiles.
func TestExpireFileForcesEviction(t *testing.T) {
	d := New(time.Hour)
	d.NotifyFilePut("a", 1, w0, false)
	if len(d.GetUnusedFiles()) != 0 {
		t.Fatal("a fresh entry should not be unused yet")
	}
	d.ExpireFile("a")
	unused := d.GetUnusedFiles()
	if len(unused) != 1 || unused[0].ID != "a" || unused[0].Holder != w0 {
		t.Error("ExpireFile should make the entry immediately eligible")
	}
}

// TestNotifyWorkerRemovedPrunesEverywhere checks that removing a worker
// strips it from every entry's holders and lockedBy, pruning any entry
// left with no holders.
func TestNotifyWorkerRemovedPrunesEverywhere(t *testing.T) {
	d := New(time.Minute)
	d.NotifyFilePut("a", 1, w0, true)
	d.NotifyFilePut("b", 1, w0, false)
	d.NotifyFilePut("b", 1, w1, false)

	d.NotifyWorkerRemoved(w0)

	if d.IsFileAlive("a") {
		t.Error("a's only holder was removed; the entry should be gone")
	}
	if !d.IsFileAlive("b") {
		t.Error("b should survive since w1 still holds it")
	}
	if got := d.GetWorkerWithFile("b"); got != w1 {
		t.Errorf("expected remaining holder w1, got %v", got)
	}
}

// TestGetWorkerWithFileNoHolders checks that an unknown id returns
// modules.NoWorker.
func TestGetWorkerWithFileNoHolders(t *testing.T) {
	d := New(time.Minute)
	if got := d.GetWorkerWithFile("missing"); got != modules.NoWorker {
		t.Errorf("expected NoWorker, got %v", got)
	}
}

// TestGetEmptyWorkerNoLiveWorkers checks that GetEmptyWorker returns
// NoWorker, without blocking, when the liveWorkers callback reports none.
func TestGetEmptyWorkerNoLiveWorkers(t *testing.T) {
	d := New(time.Minute)
	got := d.GetEmptyWorker(func() []modules.WorkerId { return nil })
	if got != modules.NoWorker {
		t.Errorf("expected NoWorker, got %v", got)
	}
}

// TestGetEmptyWorkerRoundRobins checks that repeated calls cycle through
// the candidate set rather than always returning the same worker.
func TestGetEmptyWorkerRoundRobins(t *testing.T) {
	d := New(time.Minute)
	candidates := []modules.WorkerId{w0, w1, w2}
	seen := make(map[modules.WorkerId]bool)
	for i := 0; i < len(candidates)*2; i++ {
		seen[d.GetEmptyWorker(func() []modules.WorkerId { return candidates })] = true
	}
	if len(seen) != len(candidates) {
		t.Errorf("expected the round robin to visit all %d candidates, visited %d", len(candidates), len(seen))
	}
}

// TestHoldingBytes checks the cache-affinity byte tally used by the
// dispatcher's placement tiebreak.
func TestHoldingBytes(t *testing.T) {
	d := New(time.Minute)
	d.NotifyFilePut("a", 100, w0, false)
	d.NotifyFilePut("b", 50, w0, false)
	d.NotifyFilePut("b", 50, w1, false)

	bytes := d.HoldingBytes([]modules.WorkerId{w0, w1, w2}, []modules.FileId{"a", "b"})
	if bytes[w0] != 150 {
		t.Errorf("expected w0 to hold 150 bytes, got %v", bytes[w0])
	}
	if bytes[w1] != 50 {
		t.Errorf("expected w1 to hold 50 bytes, got %v", bytes[w1])
	}
	if bytes[w2] != 0 {
		t.Errorf("expected w2 to hold 0 bytes, got %v", bytes[w2])
	}
}

// TestListMissingFilesIgnoresUnknownIds checks that an id with no entry at
// all is not reported as missing (the caller is expected to validate
// liveness separately via IsFileAlive).
func TestListMissingFilesIgnoresUnknownIds(t *testing.T) {
	d := New(time.Minute)
	missing := d.ListMissingFiles(w0, []modules.FileId{"never-seen"})
	if len(missing) != 0 {
		t.Errorf("an unknown id should not be reported missing, got %v", missing)
	}
}
