package rpc

import (
	"io"
	"net"
	"sync"

	"github.com/NebulousLabs/threadgroup"
	"github.com/lighttransport/francine/modules"
	"github.com/lighttransport/francine/persist"
)

// Handler serves one procedure call on conn. It is responsible for reading
// its own request and writing its own response, status byte included;
// Server only routes by procID and logs any error Handler returns.
type Handler func(conn net.Conn) error

// Server accepts connections on a net.Listener, reads the 8-byte procID
// each one opens with, and dispatches to the registered Handler. Each
// connection carries a single call.
type Server struct {
	listener net.Listener
	log      *persist.Logger

	mu      sync.RWMutex
	addr    modules.NetAddress
	handler map[procID]Handler

	tg threadgroup.ThreadGroup
}

// NewServer creates a Server listening on addr and begins serving
// connections in the background.
func NewServer(addr string, log *persist.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		listener: ln,
		log:      log,
		addr:     modules.NetAddress(ln.Addr().String()),
		handler:  make(map[procID]Handler),
	}
	s.tg.OnStop(func() error {
		return s.listener.Close()
	})
	go s.listen()
	return s, nil
}

// Address returns the address the Server is listening on.
func (s *Server) Address() modules.NetAddress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// RegisterHandler registers fn as the handler for the procedure name. Call
// before the Server receives traffic for name; RegisterHandler is not
// itself safe to race against an in-flight call to that name.
func (s *Server) RegisterHandler(name string, fn Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler[procedureName(name)] = fn
}

// Close stops accepting new connections and waits for in-flight handlers to
// finish.
func (s *Server) Close() error {
	return s.tg.Stop()
}

func (s *Server) listen() {
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			return
		}
		if err := s.tg.Add(); err != nil {
			nc.Close()
			return
		}
		go s.handleConn(nc)
	}
}

func (s *Server) handleConn(nc net.Conn) {
	defer s.tg.Done()
	c := newConn(nc)
	defer c.Close()

	var id procID
	if _, err := io.ReadFull(c, id[:]); err != nil {
		s.log.Printf("WARN: could not read procedure id from %v: %v\n", c.Addr(), err)
		return
	}

	s.mu.RLock()
	fn, ok := s.handler[id]
	s.mu.RUnlock()
	if !ok {
		s.log.Printf("WARN: %v requested unknown procedure %q\n", c.Addr(), id)
		return
	}

	s.log.Printf("INFO: handling %q from %v\n", id, c.Addr())
	if err := fn(c); err != nil {
		s.log.Printf("WARN: procedure %q from %v failed: %v\n", id, c.Addr(), err)
	}
}
