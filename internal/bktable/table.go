// Package bktable implements the completion table: a thread-safe mapping
// from transaction id to the pending operation awaiting its response,
// timeout, disconnect, or close.
package bktable

import (
	"sort"
	"sync"
	"time"
)

// Op distinguishes the two pending-operation variants.
type Op uint8

const (
	OpAdd Op = iota + 1
	OpRead
)

// Callback is invoked exactly once to deliver the outcome of a pending
// operation. kind is a caller-defined error/status tag (bkclient.ErrorKind,
// left untyped here so this package does not depend on bkclient); body
// carries the add-peer-address or read-entry-body payload.
type Callback func(kind interface{}, ledgerID, entryID int64, body []byte, ctx interface{})

// Pending is the completion-table value: a discriminated union over the
// Add and Read variants, flattened into one struct since Go has no
// tagged unions. Fields not used by Op are simply left zero.
type Pending struct {
	Op        Op
	LedgerID  int64
	EntryID   int64
	Callback  Callback
	Ctx       interface{}
	StartedAt time.Time
	Deadline  time.Time
}

// Expired reports whether the pending op's deadline has passed as of now.
func (p *Pending) Expired(now time.Time) bool { return !now.Before(p.Deadline) }

// Table is the completion table (component B): a mutex-guarded map of
// txn id to Pending, safe for concurrent use from the transport reader,
// the writer path, the timeout sweeper, and the disconnect handler.
//
// A plain mutex-guarded map is used rather than sync.Map because Drain
// needs an atomic, consistent swap-and-iterate that sync.Map cannot
// offer without a second pass — the same locking idiom the pack's
// redisconn.Connection uses around its per-shard futures slice.
type Table struct {
	mu    sync.Mutex
	items map[int64]*Pending
}

// New returns an empty completion table.
func New() *Table {
	return &Table{items: make(map[int64]*Pending)}
}

// Insert adds pending under txnID. It reports false, without storing,
// if an entry already exists for txnID — an invariant violation that
// should not occur when txn ids come from a monotonic generator and is
// treated here as a caller error rather than silently overwriting.
func (t *Table) Insert(txnID int64, pending *Pending) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.items[txnID]; ok {
		return false
	}
	t.items[txnID] = pending
	return true
}

// Remove atomically removes and returns the entry for txnID, if present.
// The caller that observes a non-nil result is the sole caller of its
// Callback: removal is the synchronization point for the
// at-most-one-callback invariant.
func (t *Table) Remove(txnID int64) *Pending {
	t.mu.Lock()
	defer t.mu.Unlock()

	var p, ok = t.items[txnID]
	if !ok {
		return nil
	}
	delete(t.items, txnID)
	return p
}

// RemoveIfExpired removes and returns the entry for txnID only if its
// deadline has passed as of now. It is the sweeper's primitive: a
// response arriving concurrently with a sweep is the common race, and
// losing that race here is a safe no-op (nil, no removal).
func (t *Table) RemoveIfExpired(txnID int64, now time.Time) *Pending {
	t.mu.Lock()
	defer t.mu.Unlock()

	var p, ok = t.items[txnID]
	if !ok || !p.Expired(now) {
		return nil
	}
	delete(t.items, txnID)
	return p
}

// Drain removes and returns every entry currently in the table, used on
// close() and on transport disconnect. The swap happens under the lock;
// the returned slice is safe to range over and deliver callbacks from
// outside the lock.
//
// The result is ordered by txn id, not map iteration order: txn ids are
// assigned from a monotonic, process-wide generator (nextTxnID), so
// ascending txn id order is submission order. Callers that dispatch each
// drained entry onto a single per-key FIFO queue (as the façade does)
// depend on this to preserve submission order end to end — ranging the
// backing map directly would let Go's randomized map iteration reorder
// same-ledger callbacks.
func (t *Table) Drain() []*Pending {
	t.mu.Lock()
	var items = t.items
	t.items = make(map[int64]*Pending)
	t.mu.Unlock()

	var txnIDs = make([]int64, 0, len(items))
	for txnID := range items {
		txnIDs = append(txnIDs, txnID)
	}
	sort.Slice(txnIDs, func(i, j int) bool { return txnIDs[i] < txnIDs[j] })

	var out = make([]*Pending, 0, len(items))
	for _, txnID := range txnIDs {
		out = append(out, items[txnID])
	}
	return out
}

// Len reports the number of entries currently pending. Used only for
// the façade's observability Stats() snapshot.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// ForExpired invokes visit for every currently expired entry without
// removing it, used by the sweeper to select candidates before
// attempting each RemoveIfExpired individually (so the sweep doesn't
// hold the table lock for the duration of callback dispatch).
func (t *Table) ForExpired(now time.Time, visit func(txnID int64)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for txnID, p := range t.items {
		if p.Expired(now) {
			visit(txnID)
		}
	}
}
