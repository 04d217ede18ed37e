// Package bkconn implements the connection state machine (component D):
// Disconnected / Connecting / Connected, with a deferred-op queue that
// is drained exactly once per connect attempt.
package bkconn

import "sync"

// State is one of the three connection lifecycle states.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Result is passed to a deferred op once its connect attempt resolves.
type Result struct {
	// Err is nil on a successful connect, ErrPeerUnavailable when the
	// connect fails, and ErrClosed once the machine has been closed.
	Err error
}

// Op is a deferred, zero-argument continuation: "once a connection is
// established or fails, run this".
type Op func(Result)

// Dialer attempts to establish the underlying transport. It is called
// at most once per Disconnected->Connecting transition.
type Dialer func() error

// Machine is the connection state machine. State and the deferred
// queue are read and updated under a single mutex. EnsureConnected
// takes that mutex on every call; there is no lock-free fast path. It
// checks state under the lock, enqueues if not Connected, and — when
// transitioning from Disconnected — releases the lock before dialing,
// so the dial's completion listener is never invoked while the lock is
// held.
type Machine struct {
	mu     sync.Mutex
	state  State
	queue  []Op
	closed bool
}

// New returns a Machine starting in Disconnected.
func New() *Machine {
	return &Machine{}
}

// State returns the current state, read under the mutex. It is safe to
// call concurrently.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// EnsureConnected arranges for op to run once a connection is usable.
// If already Connected, op runs immediately (synchronously, with an Ok
// Result) without taking the slow path. Otherwise op is enqueued and,
// if this call is the one transitioning Disconnected->Connecting, dial
// is invoked to establish the connection — exactly once per connect
// attempt, regardless of how many concurrent callers coalesce onto it.
func (m *Machine) EnsureConnected(dial Dialer, op Op) {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		op(Result{Err: ErrClosed})
		return
	}

	switch m.state {
	case Connected:
		m.mu.Unlock()
		op(Result{})
		return
	case Connecting:
		m.queue = append(m.queue, op)
		m.mu.Unlock()
		return
	default: // Disconnected: this caller owns initiating the connect.
		m.queue = append(m.queue, op)
		m.state = Connecting
		m.mu.Unlock()
	}

	var err = dial()
	m.resolveConnect(err)
}

// resolveConnect transitions out of Connecting once a connect attempt
// resolves, and drains the deferred queue outside the lock so that a
// callback re-entering the client cannot deadlock or invert priority.
func (m *Machine) resolveConnect(err error) {
	m.mu.Lock()
	var pending = m.queue
	m.queue = nil

	if m.closed {
		m.mu.Unlock()
		drain(pending, Result{Err: ErrClosed})
		return
	}

	if err == nil {
		m.state = Connected
	} else {
		m.state = Disconnected
	}
	m.mu.Unlock()

	var res = Result{}
	if err != nil {
		res.Err = ErrPeerUnavailable
	}
	drain(pending, res)
}

// Disconnect transitions Connected->Disconnected in response to a
// transport-level disconnect. It does not touch pending completions:
// the caller (the façade) drains its completion table and fails them
// with PeerUnavailable. The client does not auto-reconnect: the next
// EnsureConnected call initiates one.
func (m *Machine) Disconnect() {
	m.mu.Lock()
	if m.state == Connected {
		m.state = Disconnected
	}
	m.mu.Unlock()
}

// Close terminates the machine. Any callers currently waiting in the
// deferred queue are drained with ErrClosed; every EnsureConnected call
// after Close runs its op synchronously with ErrClosed, without dialing.
func (m *Machine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.state = Disconnected
	var pending = m.queue
	m.queue = nil
	m.mu.Unlock()

	drain(pending, Result{Err: ErrClosed})
}

func drain(ops []Op, res Result) {
	for _, op := range ops {
		op(res)
	}
}
