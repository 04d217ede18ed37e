package bkconn

import "errors"

// ErrPeerUnavailable is the Result.Err delivered to deferred ops when a
// connect attempt fails.
var ErrPeerUnavailable = errors.New("bkconn: peer unavailable")

// ErrClosed is the Result.Err delivered to deferred ops (pending or
// future) once the machine has been closed.
var ErrClosed = errors.New("bkconn: closed")
