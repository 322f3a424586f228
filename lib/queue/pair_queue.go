package queue

import (
	"sync/atomic"

	"github.com/Drachenfrucht1/wait-free-tree/lib/hazard"
	"github.com/Drachenfrucht1/wait-free-tree/lib/id"
)

type pairDesc[A, B any] struct {
	node   *pairNode[A, B]
	packed atomic.Uint64
}

// PairQueue is the two-field sibling of WFQ: the same descriptor-helping
// skeleton (see wfq.go), specialized to carry a (A, B) tuple per entry
// instead of a single scalar. Kept as a structurally parallel, separately
// named type rather than parameterizing WFQ over a tuple-shaped T, matching
// how this codebase prefers a second concrete variant over a generalized
// one when the two shapes diverge.
type PairQueue[A, B comparable] struct {
	head  atomic.Pointer[pairNode[A, B]]
	tail  atomic.Pointer[pairNode[A, B]]
	descs []*pairDesc[A, B]
	ts    *id.Monotonic
	hp    *hazard.ConditionalRegistry[*pairNode[A, B]]
	p     int
}

func NewPairQueue[A, B comparable](p int) *PairQueue[A, B] {
	dummy := &pairNode[A, B]{}
	dummy.popTid.Store(unclaimed)
	q := &PairQueue[A, B]{
		descs: make([]*pairDesc[A, B], p),
		ts:    id.NewMonotonic(),
		hp:    hazard.NewConditionalRegistry[*pairNode[A, B]](p, 2),
		p:     p,
	}
	q.head.Store(dummy)
	q.tail.Store(dummy)
	for i := range q.descs {
		q.descs[i] = &pairDesc[A, B]{}
	}
	return q
}

func (q *PairQueue[A, B]) Push(a A, b B, tid int) {
	d := q.descs[tid]
	d.node = newPairNode(a, b, tid)
	ts := q.ts.Next()
	d.packed.Store(packDesc(Push, ts))
	q.helpAll(ts)
	q.finishPush(tid)
}

func (q *PairQueue[A, B]) Pop(tid int) (A, B, bool) {
	var za A
	var zb B
	d := q.descs[tid]
	d.node = nil
	ts := q.ts.Next()
	d.packed.Store(packDesc(Pop, ts))
	q.helpAll(ts)
	q.finishPop(tid)

	oldHead := d.node
	if oldHead == nil {
		return za, zb, false
	}
	succ := oldHead.next.Load()
	if succ == nil {
		return za, zb, false
	}
	a, b := succ.first, succ.second
	oldHead.clear()
	q.hp.Retire(tid, oldHead, func(*pairNode[A, B]) {})
	return a, b, true
}

func (q *PairQueue[A, B]) helpAll(ts uint64) {
	for i := 0; i < q.p; i++ {
		d := q.descs[i]
		for {
			typ, dts := unpackDesc(d.packed.Load())
			if typ == NotPending || dts > ts {
				break
			}
			if typ == Push {
				if q.helpPush(i, dts) {
					break
				}
			} else {
				if q.helpPop(i, dts) {
					break
				}
			}
		}
	}
}

func (q *PairQueue[A, B]) helpPush(i int, ts uint64) bool {
	d := q.descs[i]
	for {
		typ, dts := unpackDesc(d.packed.Load())
		if typ != Push || dts != ts {
			return true
		}
		last := q.hp.ProtectLoad(i, 0, q.tail.Load)
		next := last.next.Load()
		if last != q.tail.Load() {
			continue
		}
		if next == nil {
			if last.next.CompareAndSwap(nil, d.node) {
				q.finishPushAt(last)
				return true
			}
		} else {
			q.finishPushAt(last)
		}
	}
}

func (q *PairQueue[A, B]) finishPush(tid int) {
	typ, _ := unpackDesc(q.descs[tid].packed.Load())
	if typ != Push {
		return
	}
	q.finishPushAt(q.tail.Load())
}

func (q *PairQueue[A, B]) finishPushAt(last *pairNode[A, B]) {
	next := last.next.Load()
	if next == nil {
		return
	}
	d := q.descs[next.pushTid]
	if d.node == next {
		if typ, dts := unpackDesc(d.packed.Load()); typ == Push {
			d.packed.CompareAndSwap(packDesc(Push, dts), packDesc(NotPending, dts))
		}
	}
	q.tail.CompareAndSwap(last, next)
}

func (q *PairQueue[A, B]) helpPop(i int, ts uint64) bool {
	d := q.descs[i]
	for {
		typ, dts := unpackDesc(d.packed.Load())
		if typ != Pop || dts != ts {
			return true
		}
		first := q.hp.ProtectLoad(i, 0, q.head.Load)
		last := q.tail.Load()
		next := q.hp.ProtectLoad(i, 1, first.next.Load)
		if first != q.head.Load() {
			continue
		}
		if first == last {
			if next == nil {
				if d.packed.CompareAndSwap(packDesc(Pop, ts), packDesc(NotPending, ts)) {
					d.node = nil
				}
				return true
			}
			q.finishPushAt(last)
			continue
		}
		if next.popTid.Load() == unclaimed {
			next.popTid.CompareAndSwap(unclaimed, int32(i))
		}
		owner := next.popTid.Load()
		q.finishPopAt(first, next, owner)
		if owner == int32(i) {
			return true
		}
	}
}

func (q *PairQueue[A, B]) finishPop(tid int) {
	typ, _ := unpackDesc(q.descs[tid].packed.Load())
	if typ != Pop {
		return
	}
	first := q.head.Load()
	next := first.next.Load()
	if next != nil {
		q.finishPopAt(first, next, int32(tid))
	}
}

func (q *PairQueue[A, B]) finishPopAt(first, next *pairNode[A, B], owner int32) {
	d := q.descs[owner]
	if typ, dts := unpackDesc(d.packed.Load()); typ == Pop {
		if d.packed.CompareAndSwap(packDesc(Pop, dts), packDesc(NotPending, dts)) {
			d.node = first
		}
	}
	q.head.CompareAndSwap(first, next)
}
