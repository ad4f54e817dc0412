package pool

import (
	"context"
	"time"
)

// Connection is the contract a pooled client object must satisfy. The pool
// never inspects what is behind it; it only asks whether it is alive, when it
// was last used, and closes it when it is discarded.
type Connection interface {
	// IsAlive reports whether the connection is still usable. It must be
	// cheap and must not block.
	IsAlive() bool

	// Close tears the connection down. It may block and must be idempotent.
	// Errors are swallowed by the pool.
	Close() error

	// LastUsedAt returns the time the connection last did useful work. The
	// user of the connection is responsible for keeping it current.
	LastUsedAt() time.Time
}

// Resetter is an optional capability of a Connection. When the pool is
// configured with reset-on-borrow it resets every connection that implements
// it when handing it out from the idle queue; a freshly created connection is
// handed out without a reset.
type Resetter interface {
	Reset() error
}

// Connector produces new connections. Connect may block and may fail; the
// pool guarantees at most one Connect call is in flight at a time.
type Connector interface {
	Connect(ctx context.Context) (Connection, error)
}

// ConnectorFunc adapts a plain function to the Connector interface.
type ConnectorFunc func(ctx context.Context) (Connection, error)

// Connect calls f.
func (f ConnectorFunc) Connect(ctx context.Context) (Connection, error) {
	return f(ctx)
}
