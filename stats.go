package pool

import (
	"math"
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of the pool.
type Stats struct {
	MaxActive int // Hard cap on total connections.

	// Pool status
	TotalCount int // Connections currently owned by the pool, in use and idle.
	Idle       int // Connections sitting in the idle queue.
	InUse      int // TotalCount - Idle. May transiently exceed MaxActive while a resize-down converges.

	// Counters
	WaitCount    uint64        // Borrows that actually blocked waiting for a connection.
	WaitDuration time.Duration // Total time spent blocked waiting.
	IdleClosed   uint64        // Connections evicted for exceeding MaxIdleTime.
	LifeClosed   uint64        // Connections evicted for exceeding MaxLifeTime.
}

// waitDurationCap is where the accumulated wait duration saturates instead of
// wrapping negative.
const waitDurationCap = math.MaxInt64 - int64(time.Hour)

// satIncr bumps a monotone counter, resetting instead of wrapping at the cap.
func satIncr(c *uint64) {
	if *c == math.MaxUint64 {
		*c = 0
	}
	*c++
}

// noteWait records one borrow that actually blocked on the idle queue.
func (p *Pool) noteWait(elapsed time.Duration) {
	p.mu.Lock()
	satIncr(&p.waitCount)
	p.mu.Unlock()

	for {
		cur := atomic.LoadInt64(&p.waitDuration)
		next := cur + int64(elapsed)
		if next < cur || next > waitDurationCap {
			next = int64(elapsed)
		}
		if atomic.CompareAndSwapInt64(&p.waitDuration, cur, next) {
			return
		}
	}
}

// Stats returns a snapshot of the pool's state and counters.
func (p *Pool) Stats() Stats {
	wait := atomic.LoadInt64(&p.waitDuration)

	p.mu.Lock()
	defer p.mu.Unlock()

	idle := 0
	if p.idle != nil {
		idle = p.idle.len()
	}
	total := p.registry.count()

	return Stats{
		MaxActive: p.opts.MaxActive,

		TotalCount: total,
		Idle:       idle,
		InUse:      total - idle,

		WaitCount:    p.waitCount,
		WaitDuration: time.Duration(wait),
		IdleClosed:   p.idleClosed,
		LifeClosed:   p.lifeClosed,
	}
}

// TotalCount returns the number of connections the pool currently owns.
func (p *Pool) TotalCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registry.count()
}

// IdleCount returns the number of connections waiting in the idle queue.
func (p *Pool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.idle == nil {
		return 0
	}
	return p.idle.len()
}
