package queue

import "sync/atomic"

// pairNode is the two-field counterpart of node, used by PairQueue for
// tuples such as (subtree root *Node, partial-count uint32) or (subtree
// root *Node, reclamation mask uint64) — the op.to_visit and to_be_deleted
// queues never carry a single scalar.
type pairNode[A, B any] struct {
	next    atomic.Pointer[pairNode[A, B]]
	first   A
	second  B
	pushTid int32
	popTid  atomic.Int32
}

func newPairNode[A, B any](a A, b B, pushTid int) *pairNode[A, B] {
	n := &pairNode[A, B]{first: a, second: b, pushTid: int32(pushTid)}
	n.popTid.Store(unclaimed)
	return n
}

func (n *pairNode[A, B]) NextIsNil() bool { return n.next.Load() == nil }

func (n *pairNode[A, B]) ValueIsZero() bool {
	var za A
	var zb B
	return any(n.first) == any(za) && any(n.second) == any(zb)
}

func (n *pairNode[A, B]) clear() {
	var za A
	var zb B
	n.first, n.second = za, zb
	n.next.Store(nil)
}
