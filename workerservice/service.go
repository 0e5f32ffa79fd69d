// Package workerservice bridges the rpc.Server's dispatch table to a
// worker's blob store and renderer registry: Run, Compose, Transfer, Put,
// Get, and Delete, each independently schedulable (one goroutine per
// accepted connection via rpc.Server).
package workerservice

import (
	"bytes"
	"net"

	"github.com/NebulousLabs/errors"
	"github.com/lighttransport/francine/compositor"
	"github.com/lighttransport/francine/modules"
	"github.com/lighttransport/francine/persist"
	"github.com/lighttransport/francine/renderer"
	"github.com/lighttransport/francine/rpc"
	"github.com/lighttransport/francine/workerstore"
)

// Service wires a worker's Store and renderer Adapter to an rpc.Server's
// dispatch table.
type Service struct {
	store   *workerstore.Store
	adapter *renderer.Adapter
	log     *persist.Logger
}

// New returns a Service serving store and adapter.
func New(store *workerstore.Store, adapter *renderer.Adapter, log *persist.Logger) *Service {
	return &Service{store: store, adapter: adapter, log: log}
}

// Register installs every WorkerService handler on srv.
func (s *Service) Register(srv *rpc.Server) {
	srv.RegisterHandler(rpc.ProcRun, s.handleRun)
	srv.RegisterHandler(rpc.ProcCompose, s.handleCompose)
	srv.RegisterHandler(rpc.ProcTransfer, s.handleTransfer)
	srv.RegisterHandler(rpc.ProcPut, s.handlePut)
	srv.RegisterHandler(rpc.ProcGet, s.handleGet)
	srv.RegisterHandler(rpc.ProcDelete, s.handleDelete)
}

// handleRun reads one RunRequest, materializes a scratch dir, invokes the
// renderer adapter, and writes one RunResponse.
func (s *Service) handleRun(conn net.Conn) error {
	var req modules.RunRequest
	if err := rpc.ReadRequest(conn, &req); err != nil {
		return err
	}

	id, size, imageType, err := s.adapter.Render(req.Renderer, req.Files, s.store)
	if err != nil {
		s.log.Printf("WARN: Run(%s) failed: %v\n", req.Renderer, err)
		// Only the status crosses the wire; renderer output and other detail
		// in err stay in the worker log.
		for _, sentinel := range []error{modules.ErrInvalidArgument, modules.ErrNotFound, modules.ErrResourceExhausted, modules.ErrUnimplemented, modules.ErrDataLoss, modules.ErrCancelled} {
			if errors.Contains(err, sentinel) {
				return rpc.WriteResponse(conn, modules.RunResponse{}, sentinel)
			}
		}
		return rpc.WriteResponse(conn, modules.RunResponse{}, modules.ErrInternal)
	}
	return rpc.WriteResponse(conn, modules.RunResponse{ID: id, FileSize: size, ImageType: imageType}, nil)
}

// handleCompose reads one ComposeRequest, fetches and averages its inputs,
// stores the result, and writes one ComposeResponse.
func (s *Service) handleCompose(conn net.Conn) error {
	var req modules.ComposeRequest
	if err := rpc.ReadRequest(conn, &req); err != nil {
		return err
	}

	images := make([]compositor.Image, len(req.Images))
	for i, ref := range req.Images {
		content, err := s.store.Get(ref.ID)
		if err != nil {
			return rpc.WriteResponse(conn, modules.ComposeResponse{}, err)
		}
		images[i] = compositor.Image{Content: content, ImageType: ref.ImageType, Weight: float64(ref.Weight)}
	}

	out, err := compositor.Compose(images, req.ImageType)
	if err != nil {
		return rpc.WriteResponse(conn, modules.ComposeResponse{}, err)
	}
	id, size, err := s.store.Put(out)
	if err != nil {
		return rpc.WriteResponse(conn, modules.ComposeResponse{}, err)
	}
	return rpc.WriteResponse(conn, modules.ComposeResponse{ID: id, FileSize: size}, nil)
}

// handleTransfer reads one TransferRequest, pulls the content from
// SrcAddress's Get endpoint, stores it locally, and verifies the resulting
// ID matches what was requested (DATA_LOSS on mismatch).
func (s *Service) handleTransfer(conn net.Conn) error {
	var req modules.TransferRequest
	if err := rpc.ReadRequest(conn, &req); err != nil {
		return err
	}

	var content []byte
	err := rpc.Call(req.SrcAddress, rpc.ProcGet, func(peer net.Conn) error {
		if err := rpc.WriteRequest(peer, modules.GetRequest{ID: req.ID}); err != nil {
			return err
		}
		if err := rpc.ReadStatus(peer); err != nil {
			return err
		}
		var err error
		content, err = rpc.ReadChunks(peer)
		return err
	})
	if err != nil {
		return rpc.WriteResponse(conn, modules.TransferResponse{}, err)
	}

	gotID, size, err := s.store.Put(content)
	if err != nil {
		return rpc.WriteResponse(conn, modules.TransferResponse{}, err)
	}
	if gotID != req.ID {
		s.log.Printf("WARN: Transfer digest mismatch: requested %s, got %s from %s\n", req.ID, gotID, req.SrcAddress)
		mismatchErr := errors.Extend(modules.ErrDataLoss, errors.New("transferred content does not match requested ID"))
		return rpc.WriteResponse(conn, modules.TransferResponse{}, mismatchErr)
	}
	return rpc.WriteResponse(conn, modules.TransferResponse{FileSize: size}, nil)
}

// handlePut reads a stream of content chunks, stores the concatenation, and
// writes one PutResponse.
func (s *Service) handlePut(conn net.Conn) error {
	content, err := rpc.ReadChunks(conn)
	if err != nil {
		return err
	}
	id, size, err := s.store.Put(content)
	if err != nil {
		return rpc.WriteResponse(conn, modules.PutResponse{}, err)
	}
	return rpc.WriteResponse(conn, modules.PutResponse{ID: id, FileSize: size}, nil)
}

// handleGet reads one GetRequest, writes the status byte, and — only on
// success — streams the content as chunks.
func (s *Service) handleGet(conn net.Conn) error {
	var req modules.GetRequest
	if err := rpc.ReadRequest(conn, &req); err != nil {
		return err
	}

	content, err := s.store.Get(req.ID)
	if err := rpc.WriteStatus(conn, err); err != nil {
		return err
	}
	if err != nil {
		return nil
	}
	return rpc.WriteChunks(conn, bytes.NewReader(content))
}

// handleDelete reads one DeleteRequest and writes one DeleteResponse.
// Deleting an absent file is not an error.
func (s *Service) handleDelete(conn net.Conn) error {
	var req modules.DeleteRequest
	if err := rpc.ReadRequest(conn, &req); err != nil {
		return err
	}
	if err := s.store.Delete(req.ID); err != nil {
		s.log.Printf("WARN: Delete(%s) failed: %v\n", req.ID, err)
		return rpc.WriteResponse(conn, modules.DeleteResponse{}, err)
	}
	return rpc.WriteResponse(conn, modules.DeleteResponse{}, nil)
}
