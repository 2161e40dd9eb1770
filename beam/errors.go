package beam

import "github.com/pkg/errors"

var (
	// ErrAborted is returned by Send, Receive and WaitEmpty once either side
	// has called Abort, per spec.md §7.
	ErrAborted = errors.New("beam: aborted")
	// ErrClosed names the sender-closed state. No function in this package
	// returns it: Send after a sender Close discards the buckets and returns
	// nil, and a Receive on a drained, closed beam returns io.EOF.
	ErrClosed = errors.New("beam: closed")
	// ErrWouldBlock is returned by a non-blocking Send/Receive/WaitEmpty that
	// cannot make progress immediately.
	ErrWouldBlock = errors.New("beam: would block")
	// ErrTimedOut is returned by a Send/Receive/WaitEmpty given a timeout
	// that elapses before the wait condition is satisfied.
	ErrTimedOut = errors.New("beam: timed out")
	// ErrResourceExhausted names the resource-exhausted error kind. No
	// function in this package returns it: BufferSizeSet never fails, a
	// non-blocking Send against a full buffer returns ErrWouldBlock, and
	// Setaside failures are returned as they are.
	ErrResourceExhausted = errors.New("beam: buffer exhausted")
	// ErrDetached is returned by a receiver-side proxy's Read after its
	// binding arena has torn down the beam out from under it.
	ErrDetached = errors.New("beam: proxy detached from destroyed beam")
)
