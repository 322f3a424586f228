package queue

import "sync/atomic"

// cmqNode carries an explicit timestamp alongside its value — the field
// PushIf enforces strict monotonicity against — mirroring how an Op's own
// timestamp rides along with it through the tree engine rather than being
// re-derived from the queue's internal call-ordering counter.
type cmqNode[T any] struct {
	next    atomic.Pointer[cmqNode[T]]
	value   T
	ts      uint64
	pushTid int32
	popTid  atomic.Int32
}

func newCmqNode[T any](v T, ts uint64, pushTid int) *cmqNode[T] {
	n := &cmqNode[T]{value: v, ts: ts, pushTid: int32(pushTid)}
	n.popTid.Store(unclaimed)
	return n
}

func (n *cmqNode[T]) NextIsNil() bool { return n.next.Load() == nil }

func (n *cmqNode[T]) ValueIsZero() bool {
	var zero T
	return any(n.value) == any(zero)
}

func (n *cmqNode[T]) clear() {
	var zero T
	n.value = zero
	n.ts = 0
	n.next.Store(nil)
}
