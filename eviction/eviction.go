// Package eviction implements the master's background eviction cycle. It
// removes expired, unlocked files from workers and the directory; a file
// locked by a running job is never touched, regardless of how long ago it
// expired. There is no LRU or scoring policy.
package eviction

import (
	"net"
	"time"

	"github.com/NebulousLabs/threadgroup"
	"github.com/lighttransport/francine/filedirectory"
	"github.com/lighttransport/francine/modules"
	"github.com/lighttransport/francine/nodedirectory"
	"github.com/lighttransport/francine/persist"
	"github.com/lighttransport/francine/rpc"
)

// Loop periodically evicts expired, unlocked (id, holder) pairs from the
// fleet. It is wrapped in a threadgroup.ThreadGroup the same way every other
// long-lived component in this codebase is, so Close waits for any in-flight
// eviction cycle to finish before it returns.
type Loop struct {
	files    *filedirectory.Directory
	nodes    *nodedirectory.Directory
	log      *persist.Logger
	interval time.Duration

	tg threadgroup.ThreadGroup
}

// New returns a Loop that evicts from files/nodes every interval.
func New(files *filedirectory.Directory, nodes *nodedirectory.Directory, interval time.Duration, log *persist.Logger) *Loop {
	return &Loop{files: files, nodes: nodes, interval: interval, log: log}
}

// Start begins the periodic eviction cycle in the background.
func (l *Loop) Start() {
	go l.run()
}

// Close stops the loop, waiting for any in-flight cycle to finish.
func (l *Loop) Close() error {
	return l.tg.Stop()
}

func (l *Loop) run() {
	t := time.NewTicker(l.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := l.tg.Add(); err != nil {
				return
			}
			l.cycle()
			l.tg.Done()
		case <-l.tg.StopChan():
			return
		}
	}
}

// cycle evicts every currently-unused file it can reach a worker for.
// Delete RPC failures are logged and skipped — eviction is opportunistic,
// not authoritative; a worker that cannot be reached this cycle is retried
// next cycle.
func (l *Loop) cycle() {
	for _, u := range l.files.GetUnusedFiles() {
		client, err := l.nodes.GetWorkerClient(u.Holder)
		if err != nil {
			continue
		}
		if err := deleteOnWorker(client, u.ID); err != nil {
			l.log.Printf("WARN: eviction: Delete(%s) on worker %d failed: %v\n", u.ID, u.Holder, err)
			continue
		}
		l.files.NotifyFileDeleted(u.ID, u.Holder)
	}
}

func deleteOnWorker(client *rpc.Client, id modules.FileId) error {
	var resp modules.DeleteResponse
	return client.Call(rpc.ProcDelete, func(conn net.Conn) error {
		if err := rpc.WriteRequest(conn, modules.DeleteRequest{ID: id}); err != nil {
			return err
		}
		return rpc.ReadResponse(conn, &resp)
	})
}
