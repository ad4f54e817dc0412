package pool

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Pool multiplexes a bounded set of expensive, stateful connections across
// many concurrent borrowers. It enforces a hard cap, keeps a warm minimum,
// times out borrows, and runs a background validator that evicts dead, idle
// and aged connections.
//
// It is safe for use by multiple goroutines.
type Pool struct {
	waitDuration int64 // Total time blocked waiting for connections, nanoseconds.

	connector Connector
	name      string
	log       zerolog.Logger
	gate      *creationGate

	mu            sync.Mutex
	opts          Options
	initialized   bool
	closed        bool
	registry      *registry
	idle          *idleQueue
	validatorStop chan struct{}

	// Counters, guarded by mu.
	waitCount  uint64
	idleClosed uint64
	lifeClosed uint64
}

// New builds a pool around the given connector. The backend is not touched
// until Init is called.
func New(connector Connector, opts ...Option) (*Pool, error) {
	if connector == nil {
		return nil, errors.New("pool: connector is required")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	name := uuid.NewString()
	p := &Pool{
		connector: connector,
		name:      name,
		log:       o.Logger.With().Str("pool", name).Logger(),
		gate:      newCreationGate(),
		opts:      o,
		registry:  newRegistry(),
	}
	return p, nil
}

// Name returns the pool's unique instance id, useful for log correlation.
func (p *Pool) Name() string {
	return p.name
}

// Init arms the pool: it starts the validator when configured and opens the
// warm minimum of connections. Idempotent; a closed pool stays closed.
func (p *Pool) Init() {
	p.mu.Lock()
	if p.initialized || p.closed {
		p.mu.Unlock()
		return
	}
	p.initialized = true
	p.idle = newIdleQueue(p.opts.MaxActive)
	if iv := p.opts.ValidationInterval; iv > 0 {
		p.validatorStop = make(chan struct{})
		go p.runValidator(iv, p.validatorStop)
	}
	min := p.opts.MinActive
	p.mu.Unlock()

	p.log.Debug().Msg("pool initialized")
	if min > 0 {
		p.fillPool(context.Background())
	}
}

// Close shuts the pool down. It stops the validator, disowns every
// connection and destroys the idle ones in the background; the caller does
// not wait for the destroys. Idempotent. Borrows after Close fail with
// ErrPoolClosed.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.initialized {
		p.closed = true
		p.mu.Unlock()
		return
	}
	p.initialized = false
	p.closed = true
	if p.validatorStop != nil {
		close(p.validatorStop)
		p.validatorStop = nil
	}
	p.registry.clear()
	q := p.idle
	p.mu.Unlock()

	p.log.Debug().Msg("pool closed")

	go func() {
		for {
			c, res := q.tryPop()
			if res != popOK {
				break
			}
			p.destroy(c)
		}
		for _, c := range q.close() {
			p.destroy(c)
		}
	}()
}

// Borrow hands out a live connection owned by the caller until it is given
// back with Return. When the pool is at capacity and nothing is idle it
// blocks up to MaxWaitTime, then fails with ErrBorrowTimeout. A cancelled
// context unblocks the wait with ctx.Err().
func (p *Pool) Borrow(ctx context.Context) (Connection, error) {
	for {
		p.mu.Lock()
		if !p.initialized {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		p.mu.Unlock()

		// Wait out any in-flight creation so the capacity check below is
		// not racing a concurrent creator.
		if err := p.gate.wait(ctx); err != nil {
			return nil, err
		}

		p.mu.Lock()
		if !p.initialized {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		q := p.idle
		maxWait := p.opts.MaxWaitTime
		if q.len() == 0 && p.registry.count() < p.opts.MaxActive {
			p.mu.Unlock()
			c, err := p.create(ctx)
			if err == errNoCapacity {
				// Lost the capacity race; fall back to waiting.
				continue
			}
			if err != nil {
				return nil, err
			}
			return c, nil
		}
		p.mu.Unlock()

		start := time.Now()
		c, blocked, res := q.pop(ctx, maxWait)
		if blocked {
			p.noteWait(time.Since(start))
		}
		switch res {
		case popOK:
			return p.vetBorrowed(ctx, c)
		case popClosed:
			p.mu.Lock()
			replaced := p.initialized && p.idle != q
			p.mu.Unlock()
			if replaced {
				// The idle queue was swapped out by a resize; start over on
				// the new one.
				continue
			}
			return nil, ErrPoolClosed
		case popTimeout:
			return nil, ErrBorrowTimeout
		default:
			return nil, ctx.Err()
		}
	}
}

// vetBorrowed applies the on-borrow checks to a connection popped from idle:
// dead and aged connections are swapped for a freshly created one (a single
// substitution attempt), and reset is invoked when configured.
func (p *Pool) vetBorrowed(ctx context.Context, c Connection) (Connection, error) {
	p.mu.Lock()
	testOnBorrow := p.opts.TestOnBorrow
	resetConns := p.opts.ResetConnections
	maxLife := p.opts.MaxLifeTime
	createdAt, known := p.registry.createdAt(c)
	p.mu.Unlock()

	if testOnBorrow && !c.IsAlive() {
		p.discard(c)
		return p.substitute(ctx)
	}
	if known && maxLife > 0 && !createdAt.Add(maxLife).After(time.Now()) {
		p.discard(c)
		return p.substitute(ctx)
	}
	if resetConns {
		if r, ok := c.(Resetter); ok {
			if err := r.Reset(); err != nil {
				p.discard(c)
				return nil, errors.Wrap(err, "pool: reset connection")
			}
		}
	}
	return c, nil
}

// substitute opens one replacement for a connection that was vetted out on
// borrow. One attempt only.
func (p *Pool) substitute(ctx context.Context) (Connection, error) {
	c, err := p.create(ctx)
	if err == errNoCapacity {
		return nil, ErrBorrowTimeout
	}
	return c, err
}

// create opens a single connection through the creation gate and registers
// it. The gate guarantees no two connector calls overlap.
func (p *Pool) create(ctx context.Context) (Connection, error) {
	p.gate.acquire()

	p.mu.Lock()
	if !p.initialized {
		p.mu.Unlock()
		p.gate.release()
		return nil, ErrPoolClosed
	}
	if p.registry.count() >= p.opts.MaxActive {
		p.mu.Unlock()
		p.gate.release()
		return nil, errNoCapacity
	}
	p.mu.Unlock()

	c, err := p.connector.Connect(ctx)
	if err != nil {
		p.gate.release()
		return nil, errors.Wrap(err, "pool: connect")
	}

	p.mu.Lock()
	if !p.initialized {
		// the pool was closed while the connector was in flight
		p.mu.Unlock()
		p.gate.release()
		p.destroy(c)
		return nil, ErrPoolClosed
	}
	p.registry.attach(c, time.Now())
	p.mu.Unlock()
	p.gate.release()
	return c, nil
}

// Return gives a borrowed connection back to the pool. It never fails; the
// status reports what the pool did with the connection. Any connection not
// accepted back into the idle queue is destroyed in the background.
func (p *Pool) Return(c Connection) ReturnStatus {
	if c == nil {
		return ReturnNotPartOfPool
	}

	p.mu.Lock()
	if !p.initialized {
		p.registry.detach(c)
		p.mu.Unlock()
		p.destroy(c)
		return ReturnPoolNotInitialized
	}
	createdAt, known := p.registry.createdAt(c)
	if !known {
		p.mu.Unlock()
		p.destroy(c)
		return ReturnNotPartOfPool
	}
	if p.opts.TestOnReturn && !c.IsAlive() {
		p.registry.detach(c)
		p.mu.Unlock()
		p.destroy(c)
		return ReturnDeadConnection
	}
	if lt := p.opts.MaxLifeTime; lt > 0 && !createdAt.Add(lt).After(time.Now()) {
		p.registry.detach(c)
		satIncr(&p.lifeClosed)
		p.mu.Unlock()
		p.destroy(c)
		return ReturnMaxLifeTime
	}
	switch p.idle.tryPush(c) {
	case pushOK:
		p.mu.Unlock()
		return ReturnOK
	case pushFull:
		p.registry.detach(c)
		p.mu.Unlock()
		p.destroy(c)
		return ReturnLimitReached
	default:
		p.registry.detach(c)
		p.mu.Unlock()
		p.destroy(c)
		return ReturnPoolClosed
	}
}

// discard disowns a connection and destroys it in the background.
func (p *Pool) discard(c Connection) {
	p.mu.Lock()
	p.registry.detach(c)
	p.mu.Unlock()
	p.destroy(c)
}

// destroy closes a connection without blocking the caller. Close errors are
// swallowed and logged.
func (p *Pool) destroy(c Connection) {
	logger := p.log
	go func() {
		if err := c.Close(); err != nil {
			logger.Debug().Err(err).Msg("connection close failed")
		}
	}()
}

// SetMaxActive changes the connection cap live. Growing or shrinking swaps
// in a fresh idle queue at the new capacity; borrowers blocked on the old
// queue restart onto the new one. When shrinking, connections currently
// borrowed are not revoked; the excess is destroyed as they come back
// (ReturnLimitReached).
func (p *Pool) SetMaxActive(n int) error {
	if n < 1 {
		return errors.Errorf("pool: MaxActive must be >= 1, got %d", n)
	}

	p.mu.Lock()
	if n == p.opts.MaxActive {
		p.mu.Unlock()
		return nil
	}
	p.opts.MaxActive = n
	if p.opts.MinActive > n {
		p.opts.MinActive = n
	}
	if !p.initialized {
		p.mu.Unlock()
		return nil
	}

	old := p.idle
	fresh := newIdleQueue(n)
	p.idle = fresh

	var overflow []Connection
	for {
		c, res := old.tryPop()
		if res != popOK {
			break
		}
		if fresh.tryPush(c) != pushOK {
			p.registry.detach(c)
			overflow = append(overflow, c)
		}
	}
	old.close()
	p.mu.Unlock()

	p.log.Debug().Int("max_active", n).Int("overflow", len(overflow)).Msg("pool resized")
	for _, c := range overflow {
		p.destroy(c)
	}
	return nil
}

// SetMinActive changes the warm minimum. Values above MaxActive are clamped.
// The next validator sweep brings the population up.
func (p *Pool) SetMinActive(n int) error {
	if n < 0 {
		return errors.Errorf("pool: MinActive must be >= 0, got %d", n)
	}
	p.mu.Lock()
	if n > p.opts.MaxActive {
		n = p.opts.MaxActive
	}
	p.opts.MinActive = n
	p.mu.Unlock()
	return nil
}

// SetMaxWaitTime changes the borrow timeout. 0 waits indefinitely.
func (p *Pool) SetMaxWaitTime(d time.Duration) error {
	if d < 0 {
		return errors.Errorf("pool: MaxWaitTime must be >= 0, got %v", d)
	}
	p.mu.Lock()
	p.opts.MaxWaitTime = d
	p.mu.Unlock()
	return nil
}

// SetValidationInterval changes the validator period, restarting the running
// validator. 0 stops it.
func (p *Pool) SetValidationInterval(d time.Duration) error {
	if d < 0 {
		return errors.Errorf("pool: ValidationInterval must be >= 0, got %v", d)
	}
	p.mu.Lock()
	p.opts.ValidationInterval = d
	if p.initialized {
		if p.validatorStop != nil {
			close(p.validatorStop)
			p.validatorStop = nil
		}
		if d > 0 {
			p.validatorStop = make(chan struct{})
			go p.runValidator(d, p.validatorStop)
		}
	}
	p.mu.Unlock()
	return nil
}

// SetMaxIdleTime changes the idle eviction threshold. 0 disables it.
func (p *Pool) SetMaxIdleTime(d time.Duration) error {
	if d < 0 {
		return errors.Errorf("pool: MaxIdleTime must be >= 0, got %v", d)
	}
	p.mu.Lock()
	p.opts.MaxIdleTime = d
	p.mu.Unlock()
	return nil
}

// SetMaxLifeTime changes the age eviction threshold. 0 disables it.
func (p *Pool) SetMaxLifeTime(d time.Duration) error {
	if d < 0 {
		return errors.Errorf("pool: MaxLifeTime must be >= 0, got %v", d)
	}
	p.mu.Lock()
	p.opts.MaxLifeTime = d
	p.mu.Unlock()
	return nil
}

// SetTestOnBorrow controls dropping dead connections on borrow.
func (p *Pool) SetTestOnBorrow(v bool) {
	p.mu.Lock()
	p.opts.TestOnBorrow = v
	p.mu.Unlock()
}

// SetTestOnReturn controls dropping dead connections on return.
func (p *Pool) SetTestOnReturn(v bool) {
	p.mu.Lock()
	p.opts.TestOnReturn = v
	p.mu.Unlock()
}

// SetResetConnections controls resetting connections on borrow.
func (p *Pool) SetResetConnections(v bool) {
	p.mu.Lock()
	p.opts.ResetConnections = v
	p.mu.Unlock()
}

// MaxActive returns the current connection cap.
func (p *Pool) MaxActive() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts.MaxActive
}

// MinActive returns the current warm minimum.
func (p *Pool) MinActive() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts.MinActive
}

// MaxWaitTime returns the current borrow timeout.
func (p *Pool) MaxWaitTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts.MaxWaitTime
}

// ValidationInterval returns the current validator period.
func (p *Pool) ValidationInterval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts.ValidationInterval
}

// MaxIdleTime returns the current idle eviction threshold.
func (p *Pool) MaxIdleTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts.MaxIdleTime
}

// MaxLifeTime returns the current age eviction threshold.
func (p *Pool) MaxLifeTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts.MaxLifeTime
}

// TestOnBorrow reports whether dead connections are dropped on borrow.
func (p *Pool) TestOnBorrow() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts.TestOnBorrow
}

// TestOnReturn reports whether dead connections are dropped on return.
func (p *Pool) TestOnReturn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts.TestOnReturn
}

// ResetConnections reports whether connections are reset on borrow.
func (p *Pool) ResetConnections() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts.ResetConnections
}
