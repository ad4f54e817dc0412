package pool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIdleQueueFIFO(t *testing.T) {
	q := newIdleQueue(3)
	a, b, c := newFakeConnection(), newFakeConnection(), newFakeConnection()

	require.Equal(t, pushOK, q.tryPush(a))
	require.Equal(t, pushOK, q.tryPush(b))
	require.Equal(t, pushOK, q.tryPush(c))
	require.Equal(t, 3, q.len())

	for _, want := range []Connection{a, b, c} {
		got, blocked, res := q.pop(context.Background(), time.Second)
		require.Equal(t, popOK, res)
		require.False(t, blocked)
		require.Same(t, want, got)
	}
	require.Equal(t, 0, q.len())
}

func TestIdleQueueTryPushFull(t *testing.T) {
	q := newIdleQueue(1)
	require.Equal(t, pushOK, q.tryPush(newFakeConnection()))
	require.Equal(t, pushFull, q.tryPush(newFakeConnection()))

	q.close()
	require.Equal(t, pushClosed, q.tryPush(newFakeConnection()))
}

func TestIdleQueueTryPopEmpty(t *testing.T) {
	q := newIdleQueue(1)
	c, res := q.tryPop()
	require.Nil(t, c)
	require.Equal(t, popEmpty, res)
}

func TestIdleQueuePopBlocksUntilPush(t *testing.T) {
	q := newIdleQueue(1)
	want := newFakeConnection()

	go func() {
		<-time.After(time.Millisecond * 50)
		q.tryPush(want)
	}()

	got, blocked, res := q.pop(context.Background(), 0)
	require.Equal(t, popOK, res)
	require.True(t, blocked)
	require.Same(t, want, got)
}

func TestIdleQueuePopTimeout(t *testing.T) {
	q := newIdleQueue(1)

	start := time.Now()
	c, blocked, res := q.pop(context.Background(), time.Millisecond*30)
	require.Equal(t, popTimeout, res)
	require.True(t, blocked)
	require.Nil(t, c)
	require.GreaterOrEqual(t, time.Since(start), time.Millisecond*30)
}

func TestIdleQueuePopCancelled(t *testing.T) {
	q := newIdleQueue(1)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		<-time.After(time.Millisecond * 30)
		cancel()
	}()

	c, blocked, res := q.pop(ctx, time.Second)
	require.Equal(t, popCancelled, res)
	require.True(t, blocked)
	require.Nil(t, c)
}

func TestIdleQueueCloseWakesWaiters(t *testing.T) {
	q := newIdleQueue(2)

	var wg sync.WaitGroup
	results := make(chan popResult, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, res := q.pop(context.Background(), 0)
			results <- res
		}()
	}

	<-time.After(time.Millisecond * 50)
	q.tryPush(newFakeConnection()) // hand one waiter a connection
	leftover := q.close()
	wg.Wait()
	close(results)

	var got []popResult
	for r := range results {
		got = append(got, r)
	}
	require.ElementsMatch(t, []popResult{popOK, popClosed}, got)
	require.Empty(t, leftover)

	// pops after close get the sentinel immediately
	_, blocked, res := q.pop(context.Background(), time.Second)
	require.Equal(t, popClosed, res)
	require.False(t, blocked)
}

func TestIdleQueueCloseReturnsStranded(t *testing.T) {
	q := newIdleQueue(2)
	a, b := newFakeConnection(), newFakeConnection()
	q.tryPush(a)
	q.tryPush(b)

	leftover := q.close()
	require.Len(t, leftover, 2)
	require.Nil(t, q.close()) // idempotent
}

func TestIdleQueueWaitersServedInArrivalOrder(t *testing.T) {
	q := newIdleQueue(2)
	first, second := newFakeConnection(), newFakeConnection()

	type arrival struct {
		idx  int
		conn Connection
	}
	results := make(chan arrival, 2)

	start := func(idx int) {
		go func() {
			c, _, res := q.pop(context.Background(), time.Second)
			require.Equal(t, popOK, res)
			results <- arrival{idx: idx, conn: c}
		}()
	}

	start(0)
	<-time.After(time.Millisecond * 50)
	start(1)
	<-time.After(time.Millisecond * 50)

	q.tryPush(first)
	q.tryPush(second)

	// Both waiters are woken back to back, so the order in which they report
	// is up to the scheduler; what matters is who received which connection.
	a := <-results
	b := <-results
	if a.idx > b.idx {
		a, b = b, a
	}
	require.Equal(t, 0, a.idx)
	require.Same(t, first, a.conn)
	require.Equal(t, 1, b.idx)
	require.Same(t, second, b.conn)
}
