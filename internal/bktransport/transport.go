// Package bktransport defines the transport-factory interface consumed
// by the connection state machine, plus a default TCP implementation.
// The socket/network transport primitives themselves are out of scope
// per the spec; this package only owns the seam a caller plugs a real
// dialer into.
package bktransport

import (
	"context"
	"net"
	"time"
)

// Options configures a dialed connection, mirroring the spec's
// consumed Configuration surface (§6): read_timeout_seconds,
// tcp_no_delay, plus keep-alive.
type Options struct {
	ReadTimeout  time.Duration
	TCPNoDelay   bool
	TCPKeepAlive time.Duration
}

// Conn is the duplex byte channel the frame codec reads and writes.
// SetReadDeadline lets the façade arm a whole-connection read timeout
// that, on expiry, triggers an immediate synchronous sweep (§4.6).
type Conn interface {
	net.Conn
}

// Factory creates a duplex byte channel to a target peer address.
type Factory interface {
	Dial(ctx context.Context, addr string, opts Options) (Conn, error)
}

// TCPFactory is the default Factory, grounded on the pack's
// redisconn.dial(): a net.Dialer configured with KeepAlive, followed
// by TCPNoDelay applied to the resulting *net.TCPConn.
type TCPFactory struct {
	DialTimeout time.Duration
}

var _ Factory = TCPFactory{}

func (f TCPFactory) Dial(ctx context.Context, addr string, opts Options) (Conn, error) {
	var dialer = net.Dialer{
		Timeout:   f.DialTimeout,
		KeepAlive: opts.TCPKeepAlive,
	}
	var conn, err = dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(opts.TCPNoDelay)
	}
	return conn, nil
}
