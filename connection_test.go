package pool

import (
	"context"
	"sync"
	"time"
)

// fakeConnection is a controllable Connection for tests. It also implements
// Resetter.
type fakeConnection struct {
	mu       sync.Mutex
	alive    bool
	lastUsed time.Time
	closes   int
	resets   int
	resetErr error
}

func newFakeConnection() *fakeConnection {
	return &fakeConnection{alive: true, lastUsed: time.Now()}
}

func (c *fakeConnection) IsAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

func (c *fakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	c.alive = false
	return nil
}

func (c *fakeConnection) LastUsedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}

func (c *fakeConnection) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resets++
	return c.resetErr
}

func (c *fakeConnection) setAlive(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive = v
}

func (c *fakeConnection) setLastUsed(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUsed = t
}

func (c *fakeConnection) setResetErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetErr = err
}

func (c *fakeConnection) resetCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resets
}

func (c *fakeConnection) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// fakeConnector counts successful Connect calls and can be made to fail or
// stall.
type fakeConnector struct {
	mu    sync.Mutex
	made  int
	err   error
	delay time.Duration
}

func (f *fakeConnector) Connect(ctx context.Context) (Connection, error) {
	f.mu.Lock()
	err := f.err
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.made++
	f.mu.Unlock()
	return newFakeConnection(), nil
}

func (f *fakeConnector) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.made
}

func (f *fakeConnector) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}
