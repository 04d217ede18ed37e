// Package bksweep implements the timeout sweeper (component F): a
// periodic scan of the completion table that fails expired entries.
package bksweep

import (
	"sync"
	"time"

	"github.com/quayledger/bkclient/internal/bktable"
)

// Table is the subset of bktable.Table the sweeper needs.
type Table interface {
	ForExpired(now time.Time, visit func(txnID int64))
	RemoveIfExpired(txnID int64, now time.Time) *bktable.Pending
}

// Fail is invoked once for every entry the sweeper expires.
type Fail func(*bktable.Pending)

// Sweeper periodically scans a completion table and fails expired
// entries. It tolerates the common race of a response arriving
// concurrently with a sweep: RemoveIfExpired losing that race is a
// silent no-op, matching the pack's redisconn.control() ticker loop
// that tolerates concurrent state changes between ticks.
type Sweeper struct {
	table    Table
	interval time.Duration
	fail     Fail

	mu      sync.Mutex
	stop    chan struct{}
	stopped bool
}

// New returns a Sweeper that scans table every interval and invokes
// fail for each entry it expires. It does not start scanning until Run
// is called.
func New(table Table, interval time.Duration, fail Fail) *Sweeper {
	return &Sweeper{table: table, interval: interval, fail: fail, stop: make(chan struct{})}
}

// Run blocks, scanning the table every interval, until Stop is called.
// The caller starts this on its own goroutine (the sweeper thread).
func (s *Sweeper) Run() {
	var t = time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			s.SweepOnce()
		}
	}
}

// SweepOnce scans the table a single time. It is exported so the
// façade can invoke it synchronously when the transport surfaces a
// whole-connection read-timeout event, per the spec's requirement that
// such an event immediately fail all expired entries rather than
// waiting for the next tick.
func (s *Sweeper) SweepOnce() {
	var now = time.Now()
	// Collect candidate txn ids first so the sweep doesn't hold the
	// table's lock for the duration of every fail() callback; iteration
	// order across the whole table is unspecified and need not be
	// atomic.
	var candidates []int64
	s.table.ForExpired(now, func(txnID int64) { candidates = append(candidates, txnID) })

	for _, txnID := range candidates {
		if p := s.table.RemoveIfExpired(txnID, now); p != nil {
			s.fail(p)
		}
	}
}

// Stop halts the sweeper's Run loop. It is idempotent.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.stop)
}
