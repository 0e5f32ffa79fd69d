// Package dispatcher implements the master's client-facing Render and
// UploadDirect operations: worker selection, missing-input transfer
// orchestration, locking, renderer invocation, and output retrieval.
package dispatcher

import (
	"context"

	"github.com/NebulousLabs/errors"
	"golang.org/x/sync/errgroup"

	"github.com/lighttransport/francine/filedirectory"
	"github.com/lighttransport/francine/modules"
	"github.com/lighttransport/francine/nodedirectory"
	"github.com/lighttransport/francine/persist"
)

// Dispatcher is the master's Render/UploadDirect RPC surface. It depends
// only on the NodeDirectory and FileDirectory abstractions, never reaching
// into a worker's internals directly — every worker interaction goes
// through the rpc.Client the NodeDirectory hands back for a WorkerId.
type Dispatcher struct {
	nodes *nodedirectory.Directory
	files *filedirectory.Directory
	log   *persist.Logger
}

// New returns a Dispatcher coordinating nodes and files.
func New(nodes *nodedirectory.Directory, files *filedirectory.Directory, log *persist.Logger) *Dispatcher {
	return &Dispatcher{nodes: nodes, files: files, log: log}
}

// selectWorker picks a worker to run a job referencing ids: among the
// workers holding the most bytes of ids already, round-robin through the
// tied candidates. Non-blocking; returns modules.NoWorker if no worker is
// registered.
func (d *Dispatcher) selectWorker(ids []modules.FileId) modules.WorkerId {
	live := d.nodes.WorkerIds()
	if len(live) == 0 {
		return modules.NoWorker
	}
	holding := d.files.HoldingBytes(live, ids)

	var best []modules.WorkerId
	var bestBytes int64 = -1
	for _, w := range live {
		switch {
		case holding[w] > bestBytes:
			bestBytes = holding[w]
			best = []modules.WorkerId{w}
		case holding[w] == bestBytes:
			best = append(best, w)
		}
	}
	return d.files.GetEmptyWorker(func() []modules.WorkerId { return best })
}

// Render runs a job: select a worker, validate and transfer missing inputs,
// lock them, run the renderer, register and fetch the output, and always
// unlock on exit.
func (d *Dispatcher) Render(ctx context.Context, req modules.RenderRequest) (modules.RenderResponse, error) {
	ids := make([]modules.FileId, len(req.Files))
	for i, f := range req.Files {
		ids[i] = f.ID
	}

	w := d.selectWorker(ids)
	if w == modules.NoWorker {
		return modules.RenderResponse{}, errors.Extend(modules.ErrResourceExhausted, errors.New("no worker available"))
	}

	for _, id := range ids {
		if !d.files.IsFileAlive(id) {
			return modules.RenderResponse{}, errors.Extend(modules.ErrNotFound, errors.New("input file is not alive: "+string(id)))
		}
	}

	client, err := d.nodes.GetWorkerClient(w)
	if err != nil {
		return modules.RenderResponse{}, err
	}
	missing := d.files.ListMissingFiles(w, ids)
	if err := d.transferMissing(ctx, w, missing); err != nil {
		return modules.RenderResponse{}, err
	}

	if ok := d.files.LockFiles(ids, w); !ok {
		return modules.RenderResponse{}, errors.Extend(modules.ErrDataLoss, errors.New("could not lock inputs on selected worker"))
	}
	defer d.files.UnlockFiles(ids, w)

	runResp, err := callRun(ctx, client, modules.RunRequest{Renderer: req.Renderer, Files: req.Files})
	if err != nil {
		d.log.Printf("WARN: Render: Run on worker %d failed: %v\n", w, err)
		return modules.RenderResponse{}, err
	}
	d.files.NotifyFilePut(runResp.ID, runResp.FileSize, w, false)

	image, err := callGet(ctx, client, runResp.ID)
	if err != nil {
		d.log.Printf("WARN: Render: Get output %s from worker %d failed: %v\n", runResp.ID, w, err)
		return modules.RenderResponse{}, err
	}

	return modules.RenderResponse{Image: image, ImageType: runResp.ImageType}, nil
}

// transferMissing fetches each id in missing onto worker w from a peer that
// already holds it, locking each as it lands. More
// than one missing input is transferred concurrently via
// errgroup.WithContext: the first failure cancels the group's context and
// the whole step returns that failure after unlocking whatever this step
// had already locked.
func (d *Dispatcher) transferMissing(ctx context.Context, w modules.WorkerId, missing []modules.FileId) error {
	if len(missing) == 0 {
		return nil
	}

	wClient, err := d.nodes.GetWorkerClient(w)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	locked := make(chan modules.FileId, len(missing))
	for _, m := range missing {
		m := m
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return errors.Extend(modules.ErrCancelled, err)
			}

			src := d.files.GetWorkerWithFile(m)
			if src == modules.NoWorker {
				return errors.Extend(modules.ErrDataLoss, errors.New("no worker holds required file "+string(m)))
			}
			srcAddr, err := d.nodes.GetWorkerAddress(src)
			if err != nil {
				return err
			}

			resp, err := callTransfer(gctx, wClient, modules.TransferRequest{ID: m, SrcAddress: srcAddr})
			if err != nil {
				return err
			}
			d.files.NotifyFilePut(m, resp.FileSize, w, true)
			locked <- m
			return nil
		})
	}
	err = g.Wait()
	close(locked)

	if err != nil {
		for m := range locked {
			d.files.UnlockFiles([]modules.FileId{m}, w)
		}
		return err
	}
	return nil
}

// UploadDirect picks a worker by the same placement policy as Render,
// streams content to its Put endpoint, and registers the result.
func (d *Dispatcher) UploadDirect(ctx context.Context, req modules.UploadDirectRequest) (modules.UploadResponse, error) {
	w := d.selectWorker(nil)
	if w == modules.NoWorker {
		return modules.UploadResponse{}, errors.Extend(modules.ErrResourceExhausted, errors.New("no worker available"))
	}

	client, err := d.nodes.GetWorkerClient(w)
	if err != nil {
		return modules.UploadResponse{}, err
	}

	resp, err := callPut(ctx, client, req.Content)
	if err != nil {
		return modules.UploadResponse{}, err
	}
	d.files.NotifyFilePut(resp.ID, resp.FileSize, w, false)
	return modules.UploadResponse{ID: resp.ID}, nil
}
