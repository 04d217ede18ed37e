// Package bkclient implements the public per-peer RPC client façade
// (component G) that multiplexes add_entry / read_entry /
// read_entry_and_fence requests to a single remote bookie over one
// long-lived ordered byte stream.
package bkclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quayledger/bkclient/internal/bkconn"
	"github.com/quayledger/bkclient/internal/bkdispatch"
	"github.com/quayledger/bkclient/internal/bksweep"
	"github.com/quayledger/bkclient/internal/bktable"
	"github.com/quayledger/bkclient/internal/bktransport"
	"github.com/quayledger/bkclient/internal/bkwire"
	"github.com/sirupsen/logrus"
	"go.gazette.dev/core/broker/client"
)

// Client is a per-peer RPC client: one Client instance owns exactly one
// connection to exactly one bookie address.
type Client struct {
	addr    string
	codec   bkwire.Codec
	config  Config
	logger  *logrus.Entry
	metrics MetricsSink

	table      *bktable.Table
	conn       *bkconn.Machine
	dispatcher bkdispatch.Executor
	sweeper    *bksweep.Sweeper
	transport  bktransport.Factory

	// requestTimeout, readTimeout, and timeoutInterval default from cfg
	// but are broken out as their own durations (rather than read from
	// cfg on every use) so tests can override them to sub-second
	// precision without cfg's whole-second (whole-millisecond for the
	// sweep interval) CLI granularity.
	requestTimeout  time.Duration
	readTimeout     time.Duration
	timeoutInterval time.Duration

	mu      sync.Mutex
	netConn bktransport.Conn

	// writeMu serializes EncodeRequest calls so two concurrently issued
	// requests can never interleave their length-prefix and payload
	// writes on the shared connection. It is distinct from mu so a slow
	// write never blocks unrelated state reads/updates.
	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

// Option configures optional Client collaborators, following the
// functional-options idiom the pack reaches for when a constructor has
// more than a couple of optional dependencies.
type Option func(*Client)

// WithMetrics overrides the default no-op MetricsSink.
func WithMetrics(m MetricsSink) Option { return func(c *Client) { c.metrics = m } }

// WithLogger overrides the default package-level logrus logger.
func WithLogger(l *logrus.Entry) Option { return func(c *Client) { c.logger = l } }

// WithDispatcher overrides the default bounded KeyedExecutor, e.g. to
// share one ordered executor across several peer Clients.
func WithDispatcher(d bkdispatch.Executor) Option { return func(c *Client) { c.dispatcher = d } }

// WithTransportFactory overrides the default bktransport.TCPFactory,
// primarily for tests that dial an in-process fake bookie.
func WithTransportFactory(f bktransport.Factory) Option { return func(c *Client) { c.transport = f } }

// WithCodec overrides the default bkwire.JSONCodec.
func WithCodec(codec bkwire.Codec) Option { return func(c *Client) { c.codec = codec } }

// WithRequestTimeout overrides the per-request deadline derived from
// Config, to sub-second precision.
func WithRequestTimeout(d time.Duration) Option { return func(c *Client) { c.requestTimeout = d } }

// WithReadTimeout overrides the whole-connection read timeout derived
// from Config, to sub-second precision.
func WithReadTimeout(d time.Duration) Option { return func(c *Client) { c.readTimeout = d } }

// WithTimeoutInterval overrides the sweeper's scan period derived from
// Config.
func WithTimeoutInterval(d time.Duration) Option { return func(c *Client) { c.timeoutInterval = d } }

// New constructs a Client for the given peer address. The connection is
// not dialed until the first request is issued (§4.4: ensure_connected
// is lazy). The sweeper goroutine starts immediately and runs until
// Close.
func New(addr string, cfg Config, opts ...Option) *Client {
	var c = &Client{
		addr:            addr,
		codec:           bkwire.JSONCodec{},
		config:          cfg,
		logger:          logrus.WithField("peer", addr),
		metrics:         noopMetrics{},
		table:           bktable.New(),
		conn:            bkconn.New(),
		transport:       bktransport.TCPFactory{DialTimeout: cfg.DialTimeout()},
		requestTimeout:  cfg.RequestTimeout(),
		readTimeout:     cfg.ReadTimeout(),
		timeoutInterval: cfg.TimeoutTaskInterval(),
		closed:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dispatcher == nil {
		c.dispatcher = bkdispatch.NewKeyedExecutor(maxInt(cfg.MaxDispatchQueues, 1))
	}
	c.sweeper = bksweep.New(c.table, c.timeoutInterval, c.failExpired)
	go c.sweeper.Run()
	return c
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// AddEntry issues an add_entry request. cb fires exactly once, on the
// ordered dispatcher keyed by ledgerID, with the outcome.
func (c *Client) AddEntry(ledgerID, entryID int64, masterKey, payload []byte, opts AddEntryOption, cb WriteCallback, ctx interface{}) error {
	if cb == nil {
		return invalidArgument("AddEntry: cb must not be nil")
	}
	select {
	case <-c.closed:
		cb(Closed, ledgerID, entryID, "", ctx)
		return nil
	default:
	}

	var txnID = nextTxnID()
	var pending = &bktable.Pending{
		Op:       bktable.OpAdd,
		LedgerID: ledgerID,
		EntryID:  entryID,
		Ctx:      ctx,
		Callback: func(kind interface{}, ledgerID, entryID int64, body []byte, ctx interface{}) {
			cb(kind.(ErrorKind), ledgerID, entryID, string(body), ctx)
		},
		StartedAt: time.Now(),
	}
	pending.Deadline = pending.StartedAt.Add(c.requestTimeout)

	c.submit(pending, txnID, func() *bkwire.Request {
		return buildAddRequest(txnID, ledgerID, entryID, masterKey, payload, opts)
	})
	return nil
}

// ReadEntry issues a read_entry request. cb fires exactly once, on the
// ordered dispatcher keyed by ledgerID, with the outcome. entryID may be
// bkwire.LastAddConfirmed to request the highest durably-replicated
// entry.
func (c *Client) ReadEntry(ledgerID, entryID int64, cb ReadCallback, ctx interface{}) error {
	return c.readEntry(ledgerID, entryID, nil, false, cb, ctx)
}

// ReadEntryAndFence issues a read_entry request with FenceLedger set,
// preventing further appends to the ledger. masterKey authorizes the
// fence.
func (c *Client) ReadEntryAndFence(ledgerID, entryID int64, masterKey []byte, cb ReadCallback, ctx interface{}) error {
	return c.readEntry(ledgerID, entryID, masterKey, true, cb, ctx)
}

func (c *Client) readEntry(ledgerID, entryID int64, masterKey []byte, fence bool, cb ReadCallback, ctx interface{}) error {
	if cb == nil {
		return invalidArgument("ReadEntry: cb must not be nil")
	}
	select {
	case <-c.closed:
		cb(Closed, ledgerID, entryID, nil, ctx)
		return nil
	default:
	}

	var txnID = nextTxnID()
	var pending = &bktable.Pending{
		Op:       bktable.OpRead,
		LedgerID: ledgerID,
		EntryID:  entryID,
		Ctx:      ctx,
		Callback: func(kind interface{}, ledgerID, entryID int64, body []byte, ctx interface{}) {
			cb(kind.(ErrorKind), ledgerID, entryID, body, ctx)
		},
		StartedAt: time.Now(),
	}
	pending.Deadline = pending.StartedAt.Add(c.requestTimeout)

	c.submit(pending, txnID, func() *bkwire.Request {
		if fence {
			return buildReadAndFenceRequest(txnID, ledgerID, entryID, masterKey)
		}
		return buildReadRequest(txnID, ledgerID, entryID)
	})
	return nil
}

// submit inserts pending into the completion table and ensures a
// connection exists, building and writing the request once one is
// usable. The connect and the write run on their own goroutine, so the
// caller never blocks on dialing or on the transport. A transport write failure fails the request locally via
// PeerUnavailable, matching §4.5's "If the transport write fails, the
// request is failed locally via error_out(key)".
func (c *Client) submit(pending *bktable.Pending, txnID int64, build func() *bkwire.Request) {
	if !c.table.Insert(txnID, pending) {
		// Invariant violation per spec §4.2: should not occur with a
		// monotonic generator. Fail loudly rather than silently drop.
		c.logger.WithFields(logrus.Fields{
			"txn_id":     txnID,
			"ledger_tag": correlationTag(pending.LedgerID),
		}).Error("duplicate txn id collision in completion table")
		return
	}

	go c.conn.EnsureConnected(c.dial, func(res bkconn.Result) {
		if res.Err != nil {
			c.errorOut(txnID, PeerUnavailable)
			return
		}
		var req = build()
		if err := c.writeRequest(req); err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"txn_id":     txnID,
				"ledger_tag": correlationTag(pending.LedgerID),
			}).Warn("write failed, failing request locally")
			c.errorOut(txnID, PeerUnavailable)
		}
	})
}

// errorOut removes txnID from the table, if still present, and
// delivers its callback with kind. It is a no-op if the response (or a
// timeout, or a disconnect) already won the race to remove it.
func (c *Client) errorOut(txnID int64, kind ErrorKind) {
	var pending = c.table.Remove(txnID)
	if pending == nil {
		return
	}
	c.deliverFailure(pending, kind)
}

func (c *Client) deliverFailure(pending *bktable.Pending, kind ErrorKind) {
	c.recordLatency(opName(pending.Op), pending.StartedAt, kind)
	c.dispatcher.Submit(pending.LedgerID, func() {
		pending.Callback(kind, pending.LedgerID, pending.EntryID, nil, pending.Ctx)
	})
}

func opName(op bktable.Op) string {
	if op == bktable.OpAdd {
		return "AddEntry"
	}
	return "ReadEntry"
}

func (c *Client) failExpired(p *bktable.Pending) {
	c.deliverFailure(p, RequestTimeout)
}

// writeRequest encodes and writes req. bkwire.EncodeRequest issues two
// separate Write calls (length prefix, then payload), so writeMu
// serializes the whole encode+write against every other concurrent
// request on this connection — without it, two requests racing on the
// Connected fast path could interleave their frames on the wire.
func (c *Client) writeRequest(req *bkwire.Request) error {
	c.mu.Lock()
	var conn = c.netConn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("bkclient: not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return bkwire.EncodeRequest(conn, c.codec, req)
}

// dial is the bkconn.Dialer: it opens the transport and starts the
// reader loop. It must not be called while the state machine's mutex
// is held (bkconn.Machine guarantees this).
func (c *Client) dial() error {
	var ctx, cancel = context.WithTimeout(context.Background(), c.config.DialTimeout())
	defer cancel()

	var opts = bktransport.Options{
		ReadTimeout:  c.readTimeout,
		TCPNoDelay:   c.config.TCPNoDelay,
		TCPKeepAlive: c.config.TCPKeepAlive(),
	}
	var conn, err = c.transport.Dial(ctx, c.addr, opts)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.netConn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// readLoop decodes frames off conn until it fails, then drives the
// connection state machine's disconnect path. A read timeout is not a
// failure: it triggers a synchronous sweep and reading resumes. Per §5's invariant,
// transport threads never invoke user callbacks directly — every
// delivery goes through deliverFailure/route, both of which hand off to
// the ordered dispatcher.
func (c *Client) readLoop(conn bktransport.Conn) {
	for {
		if rt := c.readTimeout; rt > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(rt))
		}
		var resp, err = bkwire.DecodeResponse(conn, c.codec)
		if err != nil {
			c.handleTransportError(conn, err)
			if isTimeout(err) {
				continue
			}
			return
		}
		c.route(resp)
	}
}

func (c *Client) handleTransportError(conn bktransport.Conn, err error) {
	// A whole-connection read-timeout fires the sweeper synchronously so
	// expired entries do not wait for the next tick (§4.6). Any other
	// transport error (EOF, reset, corrupt/oversized frame) disconnects.
	// Generic I/O errors are not logged individually: they are already
	// reported via the failed-write path for the request that triggered
	// them, per §7's propagation policy.
	if isTimeout(err) {
		c.sweeper.SweepOnce()
		return
	}
	c.disconnect(conn)
}

func (c *Client) disconnect(conn bktransport.Conn) {
	_ = conn.Close()

	c.mu.Lock()
	if c.netConn == conn {
		c.netConn = nil
	}
	c.mu.Unlock()

	c.conn.Disconnect()
	for _, p := range c.table.Drain() {
		c.deliverFailure(p, PeerUnavailable)
	}
}

// Stats returns a point-in-time observability snapshot.
func (c *Client) Stats() Stats {
	return Stats{
		Inflight:  c.table.Len(),
		Connected: c.conn.State() == bkconn.Connected,
	}
}

// Close terminates the transport, stops the sweeper, and drains the
// completion table by failing every remaining entry with
// PeerUnavailable. Close is idempotent; after it returns, every public
// request method fails synchronously with Closed.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.sweeper.Stop()
		c.conn.Close()

		c.mu.Lock()
		var conn = c.netConn
		c.netConn = nil
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}

		for _, p := range c.table.Drain() {
			c.deliverFailure(p, PeerUnavailable)
		}
	})
	return nil
}

// AddEntryFuture is a future-returning variant of AddEntry, for callers
// that prefer to block on an operation's resolution rather than receive
// a callback — an equivalent non-callback surface per spec Design
// Note 1. It is a thin wrapper around AddEntry: the future resolves
// from inside the callback that (C) runs, so it never bypasses ordered
// dispatch.
func (c *Client) AddEntryFuture(ledgerID, entryID int64, masterKey, payload []byte, opts AddEntryOption) client.OpFuture {
	var op = client.NewAsyncOperation()
	var err = c.AddEntry(ledgerID, entryID, masterKey, payload, opts, func(rc ErrorKind, _, _ int64, _ string, _ interface{}) {
		op.Resolve(kindToErr(rc))
	}, nil)
	if err != nil {
		op.Resolve(err)
	}
	return op
}

// ReadEntryFuture is a future-returning variant of ReadEntry.
func (c *Client) ReadEntryFuture(ledgerID, entryID int64) (client.OpFuture, *[]byte) {
	var op = client.NewAsyncOperation()
	var body []byte
	var err = c.ReadEntry(ledgerID, entryID, func(rc ErrorKind, _, _ int64, b []byte, _ interface{}) {
		body = b
		op.Resolve(kindToErr(rc))
	}, nil)
	if err != nil {
		op.Resolve(err)
	}
	return op, &body
}

// kindToErr maps a non-Ok ErrorKind to an error for future-based
// callers; Ok maps to nil.
func kindToErr(kind ErrorKind) error {
	if kind == Ok {
		return nil
	}
	return fmt.Errorf("bkclient: %s", kind)
}

func isTimeout(err error) bool {
	type timeoutErr interface{ Timeout() bool }
	if te, ok := err.(timeoutErr); ok {
		return te.Timeout()
	}
	return false
}
