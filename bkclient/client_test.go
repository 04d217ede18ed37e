package bkclient

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/quayledger/bkclient/internal/bktransport"
	"github.com/quayledger/bkclient/internal/bkwire"
	"github.com/stretchr/testify/require"
)

// dialFunc adapts a plain function to bktransport.Factory, so each test
// can script exactly the dial behavior its scenario needs.
type dialFunc func(ctx context.Context, addr string, opts bktransport.Options) (bktransport.Conn, error)

func (f dialFunc) Dial(ctx context.Context, addr string, opts bktransport.Options) (bktransport.Conn, error) {
	return f(ctx, addr, opts)
}

// pipeFactory dials an in-process net.Pipe per attempt and hands the
// server-side end to the test over dialed, standing in for a real
// bookie since none is available to connect to in tests.
func pipeFactory() (bktransport.Factory, chan net.Conn) {
	var dialed = make(chan net.Conn, 8)
	var f = dialFunc(func(ctx context.Context, addr string, opts bktransport.Options) (bktransport.Conn, error) {
		var clientSide, serverSide = net.Pipe()
		dialed <- serverSide
		return clientSide, nil
	})
	return f, dialed
}

func testConfig() Config {
	var cfg = DefaultConfig()
	cfg.ReadTimeoutSeconds = 0 // disabled by default in tests; overridden per-scenario via options
	return cfg
}

// S1 Happy add: send add_entry(ledger=7, entry=3, body="x"); server
// replies {txn, status=EOK, ledger=7, entry=3}; expect callback
// (Ok, 7, 3, peer, ctx) within 10 ms.
func TestHappyAdd(t *testing.T) {
	var factory, dialed = pipeFactory()
	var c = New("bookie-1:3181", testConfig(), WithTransportFactory(factory))
	defer c.Close()

	var done = make(chan struct{})
	var gotKind ErrorKind
	var gotLedger, gotEntry int64
	var gotPeer string
	require.NoError(t, c.AddEntry(7, 3, []byte("mk"), []byte("x"), 0, func(rc ErrorKind, ledgerID, entryID int64, peer string, ctx interface{}) {
		gotKind, gotLedger, gotEntry, gotPeer = rc, ledgerID, entryID, peer
		close(done)
	}, nil))

	var server = <-dialed
	var req, err = bkwire.DecodeRequest(server, bkwire.JSONCodec{})
	require.NoError(t, err)
	require.Equal(t, bkwire.OpAdd, req.Op)
	require.EqualValues(t, 7, req.LedgerID)
	require.EqualValues(t, 3, req.EntryID)

	require.NoError(t, bkwire.EncodeResponse(server, bkwire.JSONCodec{}, &bkwire.Response{
		Header:   bkwire.Header{Version: bkwire.ProtocolVersion, Op: bkwire.OpAdd, TxnID: req.TxnID},
		LedgerID: 7,
		EntryID:  3,
		Status:   bkwire.StatusOK,
		Peer:     "bookie-1:3181",
	}))

	select {
	case <-done:
	case <-time.After(10 * time.Millisecond):
		t.Fatal("callback did not fire within 10ms")
	}
	require.Equal(t, Ok, gotKind)
	require.EqualValues(t, 7, gotLedger)
	require.EqualValues(t, 3, gotEntry)
	require.Equal(t, "bookie-1:3181", gotPeer)
}

// S2 Timeout: no server reply; expect callback (RequestTimeout, 1, 42,
// None, ctx) once the sweeper's deadline passes.
func TestReadTimesOutWhenNoReplyArrives(t *testing.T) {
	var factory, dialed = pipeFactory()
	var c = New("bookie-1:3181", testConfig(),
		WithTransportFactory(factory),
		WithRequestTimeout(20*time.Millisecond),
		WithTimeoutInterval(5*time.Millisecond),
	)
	defer c.Close()

	var done = make(chan struct{})
	var gotKind ErrorKind
	var gotBody []byte
	require.NoError(t, c.ReadEntry(1, 42, func(rc ErrorKind, ledgerID, entryID int64, body []byte, ctx interface{}) {
		gotKind = rc
		gotBody = body
		close(done)
	}, nil))

	var server = <-dialed
	_, err := bkwire.DecodeRequest(server, bkwire.JSONCodec{})
	require.NoError(t, err) // drain the request so the reader isn't blocked on a slow consumer

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout callback never fired")
	}
	require.Equal(t, RequestTimeout, gotKind)
	require.Nil(t, gotBody)
}

// S3 Disconnect mid-flight: issue 3 adds on ledger 5; kill the
// transport; expect all 3 callbacks with PeerUnavailable, in submission
// order.
func TestDisconnectFailsInflightInSubmissionOrder(t *testing.T) {
	var factory, dialed = pipeFactory()
	var c = New("bookie-1:3181", testConfig(), WithTransportFactory(factory))
	defer c.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		var i = i
		require.NoError(t, c.AddEntry(5, int64(i), nil, []byte("x"), 0, func(rc ErrorKind, ledgerID, entryID int64, peer string, ctx interface{}) {
			require.Equal(t, PeerUnavailable, rc)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		}, nil))
	}

	var server = <-dialed
	for i := 0; i < 3; i++ {
		_, err := bkwire.DecodeRequest(server, bkwire.JSONCodec{})
		require.NoError(t, err)
	}
	require.NoError(t, server.Close())

	var finished = make(chan struct{})
	go func() { wg.Wait(); close(finished) }()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("not all 3 callbacks fired after disconnect")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{0, 1, 2}, order)
}

// S4 LAC sentinel: read_entry(ledger=9, entry=LAST_ADD_CONFIRMED);
// server replies with entry=77; expect the callback keyed to the
// original request with (Ok, 9, 77, body, ctx).
func TestLastAddConfirmedSentinelResolvesToReportedEntry(t *testing.T) {
	var factory, dialed = pipeFactory()
	var c = New("bookie-1:3181", testConfig(), WithTransportFactory(factory))
	defer c.Close()

	var done = make(chan struct{})
	var gotEntry int64
	var gotBody []byte
	require.NoError(t, c.ReadEntry(9, bkwire.LastAddConfirmed, func(rc ErrorKind, ledgerID, entryID int64, body []byte, ctx interface{}) {
		require.Equal(t, Ok, rc)
		gotEntry = entryID
		gotBody = body
		close(done)
	}, nil))

	var server = <-dialed
	var req, err = bkwire.DecodeRequest(server, bkwire.JSONCodec{})
	require.NoError(t, err)
	require.EqualValues(t, bkwire.LastAddConfirmed, req.EntryID)

	require.NoError(t, bkwire.EncodeResponse(server, bkwire.JSONCodec{}, &bkwire.Response{
		Header:   bkwire.Header{Version: bkwire.ProtocolVersion, Op: bkwire.OpRead, TxnID: req.TxnID},
		LedgerID: 9,
		EntryID:  77,
		Status:   bkwire.StatusOK,
		Body:     []byte("entry-77-body"),
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback never fired")
	}
	require.EqualValues(t, 77, gotEntry)
	require.Equal(t, "entry-77-body", string(gotBody))
}

// S5 Fence: read_entry_and_fence(ledger=2, entry=0); server replies
// EFENCED; expect (LedgerFenced, 2, 0, empty, ctx).
func TestReadEntryAndFenceSurfacesLedgerFenced(t *testing.T) {
	var factory, dialed = pipeFactory()
	var c = New("bookie-1:3181", testConfig(), WithTransportFactory(factory))
	defer c.Close()

	var done = make(chan struct{})
	var gotKind ErrorKind
	var gotBody []byte
	require.NoError(t, c.ReadEntryAndFence(2, 0, []byte("mk"), func(rc ErrorKind, ledgerID, entryID int64, body []byte, ctx interface{}) {
		gotKind = rc
		gotBody = body
		close(done)
	}, nil))

	var server = <-dialed
	var req, err = bkwire.DecodeRequest(server, bkwire.JSONCodec{})
	require.NoError(t, err)
	require.True(t, req.Flag.Has(bkwire.FlagFenceLedger))

	require.NoError(t, bkwire.EncodeResponse(server, bkwire.JSONCodec{}, &bkwire.Response{
		Header:   bkwire.Header{Version: bkwire.ProtocolVersion, Op: bkwire.OpRead, TxnID: req.TxnID},
		LedgerID: 2,
		EntryID:  0,
		Status:   bkwire.StatusFenced,
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback never fired")
	}
	require.Equal(t, LedgerFenced, gotKind)
	require.Empty(t, gotBody)
}

// S6 Connect coalescing: from Disconnected, issue 5 adds concurrently;
// exactly one connect is initiated; all 5 proceed once connect
// succeeds.
func TestConcurrentAddsCoalesceToOneConnect(t *testing.T) {
	var dialed = make(chan net.Conn, 1)
	var mu sync.Mutex
	var dialCount int
	var release = make(chan struct{})
	var factory = dialFunc(func(ctx context.Context, addr string, opts bktransport.Options) (bktransport.Conn, error) {
		mu.Lock()
		dialCount++
		mu.Unlock()
		<-release // hold the dial open so all 5 callers have time to coalesce
		var clientSide, serverSide = net.Pipe()
		dialed <- serverSide
		return clientSide, nil
	})

	var c = New("bookie-1:3181", testConfig(), WithTransportFactory(factory))
	defer c.Close()

	var wg sync.WaitGroup
	wg.Add(5)
	for i := 0; i < 5; i++ {
		go func() {
			defer wg.Done()
			require.NoError(t, c.AddEntry(1, 1, nil, []byte("x"), 0, func(ErrorKind, int64, int64, string, interface{}) {}, nil))
		}()
	}

	time.Sleep(20 * time.Millisecond) // let all 5 reach the slow path of ensure_connected
	close(release)
	wg.Wait()

	var server = <-dialed
	for i := 0; i < 5; i++ {
		_, err := bkwire.DecodeRequest(server, bkwire.JSONCodec{})
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, dialCount)
}

// Concurrent writers on an already-Connected client must never
// interleave the length-prefix and payload halves of two different
// frames on the shared connection.
func TestConcurrentWritesDoNotInterleaveFrames(t *testing.T) {
	var factory, dialed = pipeFactory()
	var c = New("bookie-1:3181", testConfig(), WithTransportFactory(factory))
	defer c.Close()

	// Establish the connection first so every subsequent AddEntry takes
	// the Connected fast path and writes concurrently with the others.
	var primed = make(chan struct{})
	require.NoError(t, c.AddEntry(0, 0, nil, []byte("prime"), 0, func(ErrorKind, int64, int64, string, interface{}) { close(primed) }, nil))
	var server = <-dialed
	var primeReq, err = bkwire.DecodeRequest(server, bkwire.JSONCodec{})
	require.NoError(t, err)
	require.NoError(t, bkwire.EncodeResponse(server, bkwire.JSONCodec{}, &bkwire.Response{
		Header: bkwire.Header{Version: bkwire.ProtocolVersion, Op: bkwire.OpAdd, TxnID: primeReq.TxnID},
		Status: bkwire.StatusOK,
	}))
	<-primed

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		var i = i
		go func() {
			defer wg.Done()
			_ = c.AddEntry(int64(i), int64(i), nil, []byte("payload"), 0, func(ErrorKind, int64, int64, string, interface{}) {}, nil)
		}()
	}

	var seen = make(map[int64]bool)
	for i := 0; i < n; i++ {
		var req, err = bkwire.DecodeRequest(server, bkwire.JSONCodec{})
		require.NoError(t, err, "a corrupted/interleaved frame would fail to decode here")
		require.Equal(t, bkwire.OpAdd, req.Op)
		require.Equal(t, "payload", string(req.Body))
		require.False(t, seen[req.TxnID], "duplicate txn id decoded, frames likely interleaved")
		seen[req.TxnID] = true
	}
	wg.Wait()
}

func TestClosePendingDeliversPeerUnavailable(t *testing.T) {
	var factory, _ = pipeFactory()
	var c = New("bookie-1:3181", testConfig(), WithTransportFactory(factory))

	var done = make(chan struct{})
	var gotKind ErrorKind
	require.NoError(t, c.ReadEntry(1, 1, func(rc ErrorKind, _, _ int64, _ []byte, _ interface{}) {
		gotKind = rc
		close(done)
	}, nil))

	require.NoError(t, c.Close())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("close did not drain the pending read")
	}
	require.Equal(t, PeerUnavailable, gotKind)
}

func TestRequestsAfterCloseFailSynchronouslyWithClosed(t *testing.T) {
	var factory, _ = pipeFactory()
	var c = New("bookie-1:3181", testConfig(), WithTransportFactory(factory))
	require.NoError(t, c.Close())

	var gotKind ErrorKind
	require.NoError(t, c.AddEntry(1, 1, nil, nil, 0, func(rc ErrorKind, _, _ int64, _ string, _ interface{}) {
		gotKind = rc
	}, nil))
	require.Equal(t, Closed, gotKind)
}

func TestAddEntryRejectsNilCallback(t *testing.T) {
	var factory, _ = pipeFactory()
	var c = New("bookie-1:3181", testConfig(), WithTransportFactory(factory))
	defer c.Close()

	require.ErrorIs(t, c.AddEntry(1, 1, nil, nil, 0, nil, nil), ErrInvalidArgument)
}
