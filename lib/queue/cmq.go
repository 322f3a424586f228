package queue

import (
	"sync/atomic"

	"github.com/Drachenfrucht1/wait-free-tree/lib/hazard"
	"github.com/Drachenfrucht1/wait-free-tree/lib/id"
)

type cmqDesc[T any] struct {
	node    *cmqNode[T]
	packed  atomic.Uint64
	ok      bool
	pred    func(T) bool
	peekVal T
	peekOk  bool
}

// CMQ is the conditional monotonic queue each node (and the fake root)
// attaches as its pending-ops list: a FIFO built on the same descriptor-
// helping skeleton as WFQ/PairQueue, with two additions layered on top —
// PushIf rejects an entry whose timestamp does not strictly exceed the
// last accepted one, and PopIf/Peek let a caller inspect or conditionally
// drain the front without an unconditional destructive Pop.
type CMQ[T comparable] struct {
	head         atomic.Pointer[cmqNode[T]]
	tail         atomic.Pointer[cmqNode[T]]
	descs        []*cmqDesc[T]
	ts           *id.Monotonic
	lastPushedTs atomic.Uint64
	hp           *hazard.ConditionalRegistry[*cmqNode[T]]
	p            int
}

func NewCMQ[T comparable](p int) *CMQ[T] {
	dummy := &cmqNode[T]{}
	dummy.popTid.Store(unclaimed)
	q := &CMQ[T]{
		descs: make([]*cmqDesc[T], p),
		ts:    id.NewMonotonic(),
		hp:    hazard.NewConditionalRegistry[*cmqNode[T]](p, 2),
		p:     p,
	}
	q.head.Store(dummy)
	q.tail.Store(dummy)
	for i := range q.descs {
		q.descs[i] = &cmqDesc[T]{}
	}
	return q
}

// PushIf enqueues v tagged with ts, but only if ts is strictly greater than
// the timestamp of the most recently accepted entry. Returns false (no-op)
// on a non-increasing ts.
func (q *CMQ[T]) PushIf(v T, ts uint64, tid int) bool {
	d := q.descs[tid]
	d.node = newCmqNode(v, ts, tid)
	d.ok = false
	callTs := q.ts.Next()
	d.packed.Store(packDesc(Push, callTs))
	q.helpAll(callTs)
	q.finishPush(tid)
	return d.ok
}

// Peek returns the front value without removing it.
func (q *CMQ[T]) Peek(tid int) (T, bool) {
	d := q.descs[tid]
	ts := q.ts.Next()
	d.packed.Store(packDesc(Peek, ts))
	q.helpAll(ts)
	q.finishPeek(tid)
	return d.peekVal, d.peekOk
}

// PopIf removes and returns the front value only if pred holds for it;
// otherwise it is a no-op returning (zero, false). pred is evaluated
// against whatever the front actually is at the moment this descriptor is
// helped, so a concurrent push/pop may change the front between calls.
func (q *CMQ[T]) PopIf(tid int, pred func(T) bool) (T, bool) {
	var zero T
	d := q.descs[tid]
	d.node = nil
	d.ok = false
	d.pred = pred
	ts := q.ts.Next()
	d.packed.Store(packDesc(Pop, ts))
	q.helpAll(ts)
	q.finishPop(tid)
	if !d.ok {
		return zero, false
	}
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
	q.hp.Retire(tid, oldHead, func(*cmqNode[T]) {})
	return v, true
}

func (q *CMQ[T]) helpAll(ts uint64) {
	for i := 0; i < q.p; i++ {
		d := q.descs[i]
		for {
			typ, dts := unpackDesc(d.packed.Load())
			if typ == NotPending || dts > ts {
				break
			}
			var done bool
			switch typ {
			case Push:
				done = q.helpPush(i, dts)
			case Pop:
				done = q.helpPop(i, dts)
			case Peek:
				done = q.helpPeek(i, dts)
			}
			if done {
				break
			}
		}
	}
}

func (q *CMQ[T]) helpPush(i int, ts uint64) bool {
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
			if d.node.ts <= q.lastPushedTs.Load() {
				d.ok = false
				if d.packed.CompareAndSwap(packDesc(Push, ts), packDesc(NotPending, ts)) {
					return true
				}
				continue
			}
			d.ok = true
			if last.next.CompareAndSwap(nil, d.node) {
				q.bumpLastPushedTs(d.node.ts)
				q.finishPushAt(last)
				return true
			}
		} else {
			q.finishPushAt(last)
		}
	}
}

func (q *CMQ[T]) bumpLastPushedTs(ts uint64) {
	for {
		cur := q.lastPushedTs.Load()
		if ts <= cur {
			return
		}
		if q.lastPushedTs.CompareAndSwap(cur, ts) {
			return
		}
	}
}

func (q *CMQ[T]) finishPush(tid int) {
	typ, _ := unpackDesc(q.descs[tid].packed.Load())
	if typ != Push {
		return
	}
	q.finishPushAt(q.tail.Load())
}

func (q *CMQ[T]) finishPushAt(last *cmqNode[T]) {
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

func (q *CMQ[T]) helpPop(i int, ts uint64) bool {
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
				d.ok = false
				if d.packed.CompareAndSwap(packDesc(Pop, ts), packDesc(NotPending, ts)) {
					d.node = nil
				}
				return true
			}
			q.finishPushAt(last)
			continue
		}
		if d.pred != nil && !d.pred(next.value) {
			d.ok = false
			if d.packed.CompareAndSwap(packDesc(Pop, ts), packDesc(NotPending, ts)) {
				d.node = nil
			}
			return true
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

func (q *CMQ[T]) finishPop(tid int) {
	typ, _ := unpackDesc(q.descs[tid].packed.Load())
	if typ != Pop {
		return
	}
	first := q.head.Load()
	next := first.next.Load()
	if next != nil {
		d := q.descs[tid]
		if d.pred != nil && !d.pred(next.value) {
			return
		}
		q.finishPopAt(first, next, int32(tid))
	}
}

func (q *CMQ[T]) finishPopAt(first, next *cmqNode[T], owner int32) {
	d := q.descs[owner]
	if typ, dts := unpackDesc(d.packed.Load()); typ == Pop {
		if d.packed.CompareAndSwap(packDesc(Pop, dts), packDesc(NotPending, dts)) {
			d.node = first
			d.ok = true
		}
	}
	q.head.CompareAndSwap(first, next)
}

func (q *CMQ[T]) helpPeek(i int, ts uint64) bool {
	d := q.descs[i]
	typ, dts := unpackDesc(d.packed.Load())
	if typ != Peek || dts != ts {
		return true
	}
	first := q.hp.ProtectLoad(i, 0, q.head.Load)
	next := q.hp.ProtectLoad(i, 1, first.next.Load)
	if first != q.head.Load() {
		return false
	}
	if next == nil {
		var zero T
		d.peekVal, d.peekOk = zero, false
	} else {
		d.peekVal, d.peekOk = next.value, true
	}
	return d.packed.CompareAndSwap(packDesc(Peek, ts), packDesc(NotPending, ts))
}

func (q *CMQ[T]) finishPeek(tid int) {
	typ, ts := unpackDesc(q.descs[tid].packed.Load())
	if typ != Peek {
		return
	}
	q.helpPeek(tid, ts)
}
