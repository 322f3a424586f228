package queue

import (
	"sync/atomic"

	"github.com/Drachenfrucht1/wait-free-tree/lib/hazard"
	"github.com/Drachenfrucht1/wait-free-tree/lib/id"
)

// desc is a participant's single descriptor slot. node is written once per
// call, before packed is published with an atomic Store — readers that
// observe the new packed word are guaranteed (by Go's memory model) to see
// the node write that preceded it. Only the owning participant ever writes
// node; helpers only read it after seeing packed transition to NotPending.
type desc[T any] struct {
	node   *node[T]
	packed atomic.Uint64
}

// WFQ is a wait-free multi-producer/multi-consumer FIFO queue for a single
// comparable payload type, following Kogan & Petrank's descriptor-helping
// construction: every participant announces its pending push/pop in a
// fixed-size descriptor array, and every push/pop call drives every other
// participant's pending descriptor to completion before returning.
type WFQ[T comparable] struct {
	head  atomic.Pointer[node[T]]
	tail  atomic.Pointer[node[T]]
	descs []*desc[T]
	ts    *id.Monotonic
	hp    *hazard.ConditionalRegistry[*node[T]]
	p     int
}

// NewWFQ builds an empty wait-free queue for p participants.
func NewWFQ[T comparable](p int) *WFQ[T] {
	dummy := &node[T]{}
	dummy.popTid.Store(unclaimed)
	q := &WFQ[T]{
		descs: make([]*desc[T], p),
		ts:    id.NewMonotonic(),
		hp:    hazard.NewConditionalRegistry[*node[T]](p, 2),
		p:     p,
	}
	q.head.Store(dummy)
	q.tail.Store(dummy)
	for i := range q.descs {
		q.descs[i] = &desc[T]{}
	}
	return q
}

// Push enqueues v on behalf of participant tid. Wait-free: bounded by
// helping every one of the p descriptors at most a constant number of steps.
func (q *WFQ[T]) Push(v T, tid int) {
	d := q.descs[tid]
	d.node = newNode(v, tid)
	ts := q.ts.Next()
	d.packed.Store(packDesc(Push, ts))
	q.helpAll(ts)
	q.finishPush(tid)
}

// Pop dequeues the oldest value on behalf of participant tid. Returns
// (zero, false) if the queue was empty at the linearization point.
func (q *WFQ[T]) Pop(tid int) (T, bool) {
	var zero T
	d := q.descs[tid]
	d.node = nil
	ts := q.ts.Next()
	d.packed.Store(packDesc(Pop, ts))
	q.helpAll(ts)
	q.finishPop(tid)

	oldHead := d.node
	if oldHead == nil {
		return zero, false
	}
	succ := oldHead.next.Load()
	if succ == nil {
		return zero, false
	}
	v := succ.value
	oldHead.clear()
	q.hp.Retire(tid, oldHead, func(*node[T]) {})
	return v, true
}

// helpAll drives every participant's descriptor whose timestamp is at most
// ts to completion, in participant-id order. Since every Push/Pop calls this
// before returning, no participant's announced operation can be starved
// past p other participants' own calls — the wait-free bound.
func (q *WFQ[T]) helpAll(ts uint64) {
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

func (q *WFQ[T]) helpPush(i int, ts uint64) bool {
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

func (q *WFQ[T]) finishPush(tid int) {
	typ, _ := unpackDesc(q.descs[tid].packed.Load())
	if typ != Push {
		return
	}
	q.finishPushAt(q.tail.Load())
}

// finishPushAt advances tail past last if last.next is already linked, and
// marks the linking participant's descriptor NotPending. The owner is
// identified from the linked node's pushTid, not from any caller-supplied
// id: whoever observes the link first may not be who performed it.
func (q *WFQ[T]) finishPushAt(last *node[T]) {
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

func (q *WFQ[T]) helpPop(i int, ts uint64) bool {
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

func (q *WFQ[T]) finishPop(tid int) {
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

// finishPopAt marks owner's descriptor NotPending with first exposed as its
// result (the old dummy head, to be unlinked and retired by owner), then
// advances head past it.
func (q *WFQ[T]) finishPopAt(first, next *node[T], owner int32) {
	d := q.descs[owner]
	if typ, dts := unpackDesc(d.packed.Load()); typ == Pop {
		if d.packed.CompareAndSwap(packDesc(Pop, dts), packDesc(NotPending, dts)) {
			d.node = first
		}
	}
	q.head.CompareAndSwap(first, next)
}
