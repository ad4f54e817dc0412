package pool

import "errors"

// ErrPoolClosed is returned when borrowing from a pool that was never
// initialized or has been closed.
var ErrPoolClosed = errors.New("pool is closed")

// ErrBorrowTimeout is returned when no connection became available within
// the configured maximum wait time.
var ErrBorrowTimeout = errors.New("timed out in obtaining a connection")

// errNoCapacity is reported by the creation path when the capacity check
// fails after the gate was acquired. The borrower falls back to waiting.
var errNoCapacity = errors.New("pool is at capacity")

// ReturnStatus describes the outcome of returning a connection. Return never
// fails the caller; it always concludes in one of these states.
type ReturnStatus int

const (
	// ReturnOK means the connection was accepted back into the idle queue.
	ReturnOK ReturnStatus = iota
	// ReturnPoolNotInitialized means the pool is closed or was never
	// initialized; the connection was destroyed.
	ReturnPoolNotInitialized
	// ReturnNotPartOfPool means the connection does not belong to this
	// pool; it was destroyed.
	ReturnNotPartOfPool
	// ReturnLimitReached means the idle queue was full, which can happen
	// after the pool was resized down; the connection was destroyed.
	ReturnLimitReached
	// ReturnDeadConnection means test-on-return found the connection not
	// alive; it was destroyed.
	ReturnDeadConnection
	// ReturnMaxLifeTime means the connection outlived the configured
	// maximum life time; it was destroyed.
	ReturnMaxLifeTime
	// ReturnPoolClosed means the idle queue was closed while the return
	// was in progress; the connection was destroyed.
	ReturnPoolClosed
)

var returnStatusNames = map[ReturnStatus]string{
	ReturnOK:                 "ok",
	ReturnPoolNotInitialized: "pool-not-initialized",
	ReturnNotPartOfPool:      "not-part-of-pool",
	ReturnLimitReached:       "limit-reached",
	ReturnDeadConnection:     "dead-connection",
	ReturnMaxLifeTime:        "max-life-time",
	ReturnPoolClosed:         "pool-closed",
}

func (s ReturnStatus) String() string {
	if name, ok := returnStatusNames[s]; ok {
		return name
	}
	return "unknown"
}
