package queue

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWFQ_FIFOSingleThreaded(t *testing.T) {
	q := NewWFQ[int](4)
	q.Push(1, 0)
	q.Push(2, 0)
	q.Push(3, 0)

	v, ok := q.Pop(0)
	require.True(t, ok)
	require.Equal(t, 1, v)

	v, ok = q.Pop(0)
	require.True(t, ok)
	require.Equal(t, 2, v)

	q.Push(4, 0)

	v, ok = q.Pop(0)
	require.True(t, ok)
	require.Equal(t, 3, v)

	v, ok = q.Pop(0)
	require.True(t, ok)
	require.Equal(t, 4, v)

	_, ok = q.Pop(0)
	require.False(t, ok, "queue should be empty")
}

// TestWFQ_NoLossNoDuplicate is the no-loss/no-duplicate testable property:
// every value pushed concurrently by P producers is popped by Q consumers
// exactly once.
func TestWFQ_NoLossNoDuplicate(t *testing.T) {
	const producers = 6
	const perProducer = 500
	const consumers = 6
	total := producers * perProducer

	q := NewWFQ[int](producers + consumers)

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		p := p
		go func() {
			defer wg.Done()
			base := p * perProducer
			for i := 0; i < perProducer; i++ {
				q.Push(base+i+1, p) // +1 so 0 is never a real payload
			}
		}()
	}
	wg.Wait()

	results := make(chan int, total)
	var popped atomic.Int64
	var cwg sync.WaitGroup
	cwg.Add(consumers)
	for c := 0; c < consumers; c++ {
		c := c
		go func() {
			defer cwg.Done()
			tid := producers + c
			for popped.Load() < int64(total) {
				if v, ok := q.Pop(tid); ok {
					results <- v
					popped.Add(1)
				}
			}
		}()
	}
	cwg.Wait()
	close(results)

	seen := make(map[int]bool, total)
	count := 0
	for v := range results {
		require.False(t, seen[v], "duplicate value %d", v)
		seen[v] = true
		count++
	}
	require.Equal(t, total, count)
}
