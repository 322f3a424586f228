package queue

import "sync/atomic"

// node is the Michael-Scott linked-list cell shared by WFQ and PairQueue.
// pushTid identifies the descriptor that linked it (needed by a helper that
// arrives at a node it didn't push itself, to find whose descriptor to
// complete). popTid starts at unclaimed and is claimed via CAS by whichever
// participant's help loop gets there first.
type node[T any] struct {
	next    atomic.Pointer[node[T]]
	value   T
	pushTid int32
	popTid  atomic.Int32
}

func newNode[T any](v T, pushTid int) *node[T] {
	n := &node[T]{value: v, pushTid: int32(pushTid)}
	n.popTid.Store(unclaimed)
	return n
}

// NextIsNil and ValueIsZero satisfy hazard.Conditional: a retired node may
// only be freed once it is unlinked (next cleared) and its payload has been
// reset to the zero sentinel, so a helper still mid-traversal never observes
// a half-reused cell.
func (n *node[T]) NextIsNil() bool { return n.next.Load() == nil }

func (n *node[T]) ValueIsZero() bool {
	var zero T
	return any(n.value) == any(zero)
}

func (n *node[T]) clear() {
	var zero T
	n.value = zero
	n.next.Store(nil)
}
