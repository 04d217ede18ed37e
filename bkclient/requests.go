package bkclient

import (
	"sync/atomic"

	"github.com/quayledger/bkclient/internal/bkwire"
)

// txnSeq is the process-wide transaction id generator (§3: "a single
// process-wide generator, uniquely identifying an in-flight request
// across all peers"). Per Design Note in spec §9 this could equally be
// per-peer since collisions only matter within a connection, but the
// source shares one generator across peer clients and a monotonic,
// collision-free id space costs nothing to keep process-wide.
var txnSeq int64

func nextTxnID() int64 {
	return atomic.AddInt64(&txnSeq, 1)
}

// WriteCallback is the exposed write_complete callback (§6).
type WriteCallback func(rc ErrorKind, ledgerID, entryID int64, peerAddress string, ctx interface{})

// ReadCallback is the exposed read_entry_complete callback (§6).
type ReadCallback func(rc ErrorKind, ledgerID, entryID int64, body []byte, ctx interface{})

func buildAddRequest(txnID, ledgerID, entryID int64, masterKey, payload []byte, opts AddEntryOption) *bkwire.Request {
	var req = &bkwire.Request{
		Header:    bkwire.Header{Version: bkwire.ProtocolVersion, Op: bkwire.OpAdd, TxnID: txnID},
		LedgerID:  ledgerID,
		EntryID:   entryID,
		MasterKey: masterKey,
		Body:      payload,
	}
	if opts.Has(RecoveryAdd) {
		req.Flag = bkwire.FlagRecoveryAdd
	}
	return req
}

func buildReadRequest(txnID, ledgerID, entryID int64) *bkwire.Request {
	return &bkwire.Request{
		Header:   bkwire.Header{Version: bkwire.ProtocolVersion, Op: bkwire.OpRead, TxnID: txnID},
		LedgerID: ledgerID,
		EntryID:  entryID,
	}
}

func buildReadAndFenceRequest(txnID, ledgerID, entryID int64, masterKey []byte) *bkwire.Request {
	var req = buildReadRequest(txnID, ledgerID, entryID)
	req.MasterKey = masterKey
	req.Flag = bkwire.FlagFenceLedger
	return req
}
