// Package nodedirectory implements the master's registry of worker
// addresses and RPC client handles.
package nodedirectory

import (
	"strings"
	"sync"

	"github.com/NebulousLabs/errors"
	"github.com/lighttransport/francine/modules"
	"github.com/lighttransport/francine/rpc"
)

// record is a WorkerRecord: the address a worker was registered with and
// its cached RPC client handle.
type record struct {
	address modules.NetAddress
	client  *rpc.Client
}

// Directory assigns sequential, stable WorkerIds to registered worker
// addresses. ID assignment is serialized by mu; once assigned, a record
// never changes, so reads of an already-known id need no lock beyond the map
// access itself being guarded for the benefit of concurrent AddWorker calls.
type Directory struct {
	mu      sync.RWMutex
	records map[modules.WorkerId]record
	nextID  modules.WorkerId
}

// New returns an empty Directory.
func New() *Directory {
	return &Directory{
		records: make(map[modules.WorkerId]record),
	}
}

// AddWorker registers a new worker at address and returns its freshly
// assigned WorkerId. The RPC client is constructed eagerly but dials
// lazily, on first Call.
func (d *Directory) AddWorker(address modules.NetAddress) modules.WorkerId {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	d.records[id] = record{
		address: address,
		client:  rpc.NewClient(address),
	}
	return id
}

// AddWorkersFromString parses a comma-separated list of "host:port"
// addresses and registers each with AddWorker, returning their assigned IDs
// in the order given. Surrounding whitespace around each address is
// trimmed. An empty or all-whitespace csv registers no workers.
func (d *Directory) AddWorkersFromString(csv string) []modules.WorkerId {
	var ids []modules.WorkerId
	for _, addr := range strings.Split(csv, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		ids = append(ids, d.AddWorker(modules.NetAddress(addr)))
	}
	return ids
}

// GetWorkerAddress returns the address id was registered with, or a
// modules.ErrNotFound-extended error if id is unknown.
func (d *Directory) GetWorkerAddress(id modules.WorkerId) (modules.NetAddress, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.records[id]
	if !ok {
		return "", errors.Extend(modules.ErrNotFound, errors.New("unknown worker id"))
	}
	return r.address, nil
}

// GetWorkerClient returns the cached RPC client for id, or a
// modules.ErrNotFound-extended error if id is unknown.
func (d *Directory) GetWorkerClient(id modules.WorkerId) (*rpc.Client, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.records[id]
	if !ok {
		return nil, errors.Extend(modules.ErrNotFound, errors.New("unknown worker id"))
	}
	return r.client, nil
}

// WorkerIds returns the set of currently registered worker IDs, in no
// particular order.
func (d *Directory) WorkerIds() []modules.WorkerId {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]modules.WorkerId, 0, len(d.records))
	for id := range d.records {
		ids = append(ids, id)
	}
	return ids
}

// RemoveWorker deregisters id. It exists to drive
// FileDirectory.NotifyWorkerRemoved when a worker is known to have gone
// away.
func (d *Directory) RemoveWorker(id modules.WorkerId) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.records, id)
}
