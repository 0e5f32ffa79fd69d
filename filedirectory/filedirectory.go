// Package filedirectory implements the master's single source of truth for
// file placement: which workers hold which content-addressed files, which
// of those holdings are locked by a running job, and which entries are past
// their expiration and eligible for eviction.
package filedirectory

import (
	"time"

	"github.com/NebulousLabs/demotemutex"
	"gitlab.com/NebulousLabs/fastrand"
	"github.com/lighttransport/francine/build"
	"github.com/lighttransport/francine/modules"
)

// fileInfo is the master's per-file bookkeeping record. holders and lockedBy
// are always maintained such that lockedBy is a subset of holders, and an
// entry is deleted the instant holders becomes empty.
type fileInfo struct {
	size     int64
	expireAt time.Time
	holders  map[modules.WorkerId]struct{}
	lockedBy map[modules.WorkerId]struct{}
}

func newFileInfo(size int64, expireAt time.Time) *fileInfo {
	return &fileInfo{
		size:     size,
		expireAt: expireAt,
		holders:  make(map[modules.WorkerId]struct{}),
		lockedBy: make(map[modules.WorkerId]struct{}),
	}
}

// Directory is the master's file directory. A single DemoteMutex guards the
// whole table: mutators take the write side, and the read-mostly queries
// other in-flight Renders issue (IsFileAlive, ListMissingFiles,
// GetWorkerWithFile) share the read side.
type Directory struct {
	mu demotemutex.DemoteMutex

	files map[modules.FileId]*fileInfo

	defaultTtl time.Duration

	// rrCursor is the round-robin cursor GetEmptyWorker advances through;
	// it starts at a random offset so that a freshly started master does
	// not always prefer worker 0.
	rrCursor int
}

// New returns an empty Directory whose entries are given defaultTtl to live
// from the moment they are first observed.
func New(defaultTtl time.Duration) *Directory {
	return &Directory{
		files:      make(map[modules.FileId]*fileInfo),
		defaultTtl: defaultTtl,
		rrCursor:   fastrand.Intn(1 << 16),
	}
}

// NotifyFilePut records that workerId now holds id, sized size. If id is
// unknown it is created with expireAt = now + defaultTtl; if id is already
// known, NotifyFilePut never destroys existing state — it only adds
// workerId to holders (and, if lock, to lockedBy) and extends expireAt
// forward, never back. The directory is create-if-missing, else augment,
// never overwrite.
func (d *Directory) NotifyFilePut(id modules.FileId, size int64, workerId modules.WorkerId, lock bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fi, ok := d.files[id]
	if !ok {
		fi = newFileInfo(size, time.Now().Add(d.defaultTtl))
		d.files[id] = fi
	}
	fi.size = size
	if newExpire := time.Now().Add(d.defaultTtl); newExpire.After(fi.expireAt) {
		fi.expireAt = newExpire
	}
	fi.holders[workerId] = struct{}{}
	if lock {
		fi.lockedBy[workerId] = struct{}{}
	}
}

// NotifyFileDeleted removes workerId from id's holders (and lockedBy, since
// lockedBy must remain a subset of holders). If holders becomes empty the
// entry is deleted entirely.
func (d *Directory) NotifyFileDeleted(id modules.FileId, workerId modules.WorkerId) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fi, ok := d.files[id]
	if !ok {
		return
	}
	delete(fi.holders, workerId)
	delete(fi.lockedBy, workerId)
	if len(fi.holders) == 0 {
		delete(d.files, id)
	}
}

// NotifyWorkerRemoved removes workerId from every entry's holders and
// lockedBy sets, pruning any entry left with no holders.
func (d *Directory) NotifyWorkerRemoved(workerId modules.WorkerId) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, fi := range d.files {
		delete(fi.holders, workerId)
		delete(fi.lockedBy, workerId)
		if len(fi.holders) == 0 {
			delete(d.files, id)
		}
	}
}

// IsFileAlive reports whether id has an entry that has not yet expired.
func (d *Directory) IsFileAlive(id modules.FileId) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	fi, ok := d.files[id]
	return ok && time.Now().Before(fi.expireAt)
}

// LockFiles attempts to add workerId to lockedBy for every id in ids. Every
// id must already have an entry (a missing entry is an invariant violation,
// reported via build.Critical, since the caller should only ever lock files
// it has already confirmed are present) and workerId must be a current
// holder of it. If any id fails the holder check the whole call is a no-op
// and LockFiles returns false; locking an id already locked by workerId is a
// no-op success for that id.
func (d *Directory) LockFiles(ids []modules.FileId, workerId modules.WorkerId) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range ids {
		fi, ok := d.files[id]
		if !ok {
			build.Critical("LockFiles: no directory entry for", id)
			return false
		}
		if _, holds := fi.holders[workerId]; !holds {
			return false
		}
	}
	for _, id := range ids {
		d.files[id].lockedBy[workerId] = struct{}{}
	}
	return true
}

// UnlockFiles removes workerId from lockedBy for every id in ids. Unlocking
// an id that is not locked by workerId, or that has no entry at all, is
// silently ignored.
func (d *Directory) UnlockFiles(ids []modules.FileId, workerId modules.WorkerId) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range ids {
		if fi, ok := d.files[id]; ok {
			delete(fi.lockedBy, workerId)
		}
	}
}

// ListMissingFiles returns the subset of ids whose entry exists but does not
// list workerId among its holders. An id with no entry at all is not
// considered missing by this call (the caller is expected to have validated
// liveness separately via IsFileAlive).
func (d *Directory) ListMissingFiles(workerId modules.WorkerId, ids []modules.FileId) []modules.FileId {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var missing []modules.FileId
	for _, id := range ids {
		fi, ok := d.files[id]
		if !ok {
			continue
		}
		if _, holds := fi.holders[workerId]; !holds {
			missing = append(missing, id)
		}
	}
	return missing
}

// GetWorkerWithFile returns a worker known to hold id, or modules.NoWorker
// if id has no entry or its holder set is empty (an empty-holder entry
// should never exist in the first place).
func (d *Directory) GetWorkerWithFile(id modules.FileId) modules.WorkerId {
	d.mu.RLock()
	defer d.mu.RUnlock()

	fi, ok := d.files[id]
	if !ok || len(fi.holders) == 0 {
		return modules.NoWorker
	}
	for w := range fi.holders {
		return w
	}
	return modules.NoWorker
}

// LiveWorkerIds lets GetEmptyWorker's policy be supplied externally the
// worker set it should choose among, since the directory itself only knows
// about files, not about which worker IDs the NodeDirectory currently
// considers live. Passed in by the caller (the Dispatcher) at call time.
type LiveWorkerIds func() []modules.WorkerId

// GetEmptyWorker selects a worker to accept new work via the round-robin
// cursor, among the worker IDs liveWorkers reports. It never blocks; with no
// live workers it returns modules.NoWorker. No cache-affinity policy is
// imposed here — see HoldingBytes for the optional tiebreak the Dispatcher
// layers on top.
func (d *Directory) GetEmptyWorker(liveWorkers LiveWorkerIds) modules.WorkerId {
	ids := liveWorkers()
	if len(ids) == 0 {
		return modules.NoWorker
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rrCursor = (d.rrCursor + 1) % len(ids)
	return ids[d.rrCursor]
}

// HoldingBytes returns, for each worker in candidates, the number of bytes
// of the given file IDs it already holds. Used by the Dispatcher's
// cache-affinity tiebreak: among workers that already hold the most bytes
// of a request's inputs, prefer the one next in round-robin order.
func (d *Directory) HoldingBytes(candidates []modules.WorkerId, ids []modules.FileId) map[modules.WorkerId]int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	bytes := make(map[modules.WorkerId]int64, len(candidates))
	for _, w := range candidates {
		bytes[w] = 0
	}
	for _, id := range ids {
		fi, ok := d.files[id]
		if !ok {
			continue
		}
		for _, w := range candidates {
			if _, holds := fi.holders[w]; holds {
				bytes[w] += fi.size
			}
		}
	}
	return bytes
}

// ExpireFile forces id's expireAt into the past, making it a candidate for
// the next eviction cycle regardless of its previously recorded TTL. It has
// no effect on an id with no entry.
func (d *Directory) ExpireFile(id modules.FileId) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if fi, ok := d.files[id]; ok {
		fi.expireAt = time.Now().Add(-time.Second)
	}
}

// UnusedFile names one (id, holder) pair that GetUnusedFiles has determined
// is expired and unlocked on that holder, and therefore safe to evict.
type UnusedFile struct {
	ID     modules.FileId
	Holder modules.WorkerId
}

// GetUnusedFiles returns every (id, holder) pair whose entry has expired and
// whose lockedBy set does not contain holder. A locked holder is never
// included regardless of expiration: a file may be expired on some
// holders and still actively locked on others, so eviction is scoped to the
// individual (id, holder) pair, not the whole entry.
func (d *Directory) GetUnusedFiles() []UnusedFile {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var unused []UnusedFile
	now := time.Now()
	for id, fi := range d.files {
		if now.Before(fi.expireAt) {
			continue
		}
		for w := range fi.holders {
			if _, locked := fi.lockedBy[w]; locked {
				continue
			}
			unused = append(unused, UnusedFile{ID: id, Holder: w})
		}
	}
	return unused
}
