package pool

import (
	"context"
	"time"
)

// runValidator executes the hygiene sweep every interval until stop closes.
// Runs in its own goroutine; it never raises into user code.
func (p *Pool) runValidator(interval time.Duration, stop chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			p.validate()
			p.fillPool(context.Background())
		case <-stop:
			return
		}
	}
}

// validate drains the idle queue, drops dead connections, evicts idle and
// aged ones, and pushes the survivors back. Idle expiry is checked before
// life expiry: an unused connection is evicted as idle whether or not it is
// also aged.
func (p *Pool) validate() {
	p.mu.Lock()
	if !p.initialized {
		p.mu.Unlock()
		return
	}
	q := p.idle
	minActive := p.opts.MinActive
	maxIdle := p.opts.MaxIdleTime
	maxLife := p.opts.MaxLifeTime
	p.mu.Unlock()

	var drained []Connection
	for {
		c, res := q.tryPop()
		if res == popClosed {
			return
		}
		if res != popOK {
			break
		}
		drained = append(drained, c)
	}

	survivors := drained[:0]
	for _, c := range drained {
		if !c.IsAlive() {
			p.discard(c)
			continue
		}
		survivors = append(survivors, c)
	}

	var evicted []Connection
	p.mu.Lock()
	count := p.registry.count()
	now := time.Now()
	dropRest := false
	for _, c := range survivors {
		if dropRest {
			p.registry.detach(c)
			evicted = append(evicted, c)
			continue
		}
		createdAt, _ := p.registry.createdAt(c)
		switch {
		case maxIdle > 0 && count > minActive && !c.LastUsedAt().Add(maxIdle).After(now):
			p.registry.detach(c)
			count--
			satIncr(&p.idleClosed)
			evicted = append(evicted, c)
		case maxLife > 0 && !createdAt.Add(maxLife).After(now):
			p.registry.detach(c)
			count--
			satIncr(&p.lifeClosed)
			evicted = append(evicted, c)
		default:
			if q.tryPush(c) != pushOK {
				// Queue closed or replaced under us; drop this one and the
				// rest of the sweep.
				p.registry.detach(c)
				evicted = append(evicted, c)
				dropRest = true
			}
		}
	}
	p.mu.Unlock()

	for _, c := range evicted {
		p.destroy(c)
	}
}

// fillPool opens connections until the population reaches MinActive. It
// stops on a closed pool, on a held creation gate (a borrower is already
// creating), on the first connector failure, and on a closed idle queue; the
// next sweep retries.
func (p *Pool) fillPool(ctx context.Context) {
	for {
		p.mu.Lock()
		if !p.initialized || p.registry.count() >= p.opts.MinActive {
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		if p.gate.held() {
			return
		}

		c, err := p.create(ctx)
		if err == errNoCapacity {
			return
		}
		if err != nil {
			p.log.Warn().Err(err).Msg("pool fill failed")
			return
		}

		p.mu.Lock()
		res := p.idle.tryPush(c)
		if res != pushOK {
			p.registry.detach(c)
		}
		p.mu.Unlock()
		if res != pushOK {
			p.destroy(c)
			return
		}
	}
}
