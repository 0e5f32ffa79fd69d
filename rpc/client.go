package rpc

import (
	"context"
	"net"

	"github.com/NebulousLabs/errors"
	"github.com/lighttransport/francine/modules"
)

// Call opens one connection to addr, writes the procID for name, runs fn
// against the resulting connection, and closes it. Calls in this system are
// comparatively rare and large, so a fresh connection per call is used
// rather than a long-lived multiplexed session per peer.
func Call(addr modules.NetAddress, name string, fn func(net.Conn) error) error {
	return CallCtx(context.Background(), addr, name, fn)
}

// CallCtx is Call with cancellation: if ctx is cancelled while fn is still
// running, the connection is closed out from under it, unblocking any read
// or write fn is suspended on, and the call reports modules.ErrCancelled.
func CallCtx(ctx context.Context, addr modules.NetAddress, name string, fn func(net.Conn) error) error {
	c, err := dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()

	id := procedureName(name)
	if _, err := c.Write(id[:]); err != nil {
		return err
	}
	err = fn(c)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Extend(modules.ErrCancelled, ctxErr)
	}
	return err
}

// Client is a thin, addressable handle for repeatedly calling procedures on
// one worker. It does not itself hold a connection open; it exists so that
// callers (NodeDirectory's WorkerRecord in particular) have a stable value
// to cache instead of re-resolving an address on every call.
type Client struct {
	addr modules.NetAddress
}

// NewClient returns a Client that calls procedures at addr.
func NewClient(addr modules.NetAddress) *Client {
	return &Client{addr: addr}
}

// Address returns the address this Client calls.
func (c *Client) Address() modules.NetAddress {
	return c.addr
}

// Call invokes the named procedure against the Client's address.
func (c *Client) Call(name string, fn func(net.Conn) error) error {
	return Call(c.addr, name, fn)
}

// CallCtx invokes the named procedure against the Client's address,
// propagating ctx's cancellation into the connection.
func (c *Client) CallCtx(ctx context.Context, name string, fn func(net.Conn) error) error {
	return CallCtx(ctx, c.addr, name, fn)
}
