package rpc

import (
	"net"
	"sync/atomic"
	"time"

	ratelimit "github.com/lighttransport/francine/conn"
	"github.com/lighttransport/francine/modules"
)

// idleTimeout bounds how long a connection may sit between reads or writes
// before it is considered dead. Every successful Read/Write pushes the
// deadline forward. It is generous because the longest silence on a healthy
// connection is a Run waiting on a renderer subprocess.
const idleTimeout = 5 * time.Minute

// bandwidthLimit holds the shared packet size and rate a connection's
// writes are throttled to. A large Transfer between two workers on the
// same host's link as a client's Render poll can otherwise starve it;
// SetBandwidthLimit lets cmd/master and cmd/worker cap it. Zero means
// unlimited, the default.
var (
	packetSize       int64
	packetsPerSecond int64
)

// SetBandwidthLimit throttles every connection this package dials or
// accepts after the call to at most packetsPerSecond writes of packetSize
// bytes each. Passing packetsPerSecond <= 0 disables throttling.
func SetBandwidthLimit(size, perSecond int64) {
	atomic.StoreInt64(&packetSize, size)
	atomic.StoreInt64(&packetsPerSecond, perSecond)
}

// conn is a net.Conn with a sliding idle deadline, optionally rate-limited
// per SetBandwidthLimit.
type conn struct {
	nc net.Conn
}

func newConn(nc net.Conn) *conn {
	if pps := atomic.LoadInt64(&packetsPerSecond); pps > 0 {
		nc = ratelimit.NewRLConn(nc, atomic.LoadInt64(&packetSize), pps)
	}
	c := &conn{nc: nc}
	c.nc.SetDeadline(time.Now().Add(idleTimeout))
	return c
}

func (c *conn) Read(b []byte) (int, error) {
	n, err := c.nc.Read(b)
	if err == nil {
		c.nc.SetDeadline(time.Now().Add(idleTimeout))
	}
	return n, err
}

func (c *conn) Write(b []byte) (int, error) {
	n, err := c.nc.Write(b)
	if err == nil {
		c.nc.SetDeadline(time.Now().Add(idleTimeout))
	}
	return n, err
}

func (c *conn) Close() error {
	return c.nc.Close()
}

// Addr returns the NetAddress of the remote end of the connection.
func (c *conn) Addr() modules.NetAddress {
	return modules.NetAddress(c.nc.RemoteAddr().String())
}

// dialTimeout bounds how long dial waits for the peer to accept.
const dialTimeout = 10 * time.Second

// dial opens a connection to addr with a bounded dial timeout.
func dial(addr modules.NetAddress) (*conn, error) {
	nc, err := net.DialTimeout("tcp", string(addr), dialTimeout)
	if err != nil {
		return nil, err
	}
	return newConn(nc), nil
}
