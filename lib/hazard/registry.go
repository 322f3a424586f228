// Package hazard implements a hazard-pointer registry: per-participant
// slots that pin pointers against reclamation, plus a private per-participant
// retire list that is only freed once no slot anywhere still protects the
// pointer.
//
// References:
// https://www.cs.otago.ac.nz/cosc440/readings/hazard-pointers.pdf
// https://github.com/ianlancetaylor/hazptr (shape of the Go API)
package hazard

import (
	"sync/atomic"
)

// Registry is a hazard-pointer registry for up to P participants, each with
// H slots. Participants are addressed by a stable tid in [0, P).
type Registry[T any] struct {
	slots [][]atomic.Pointer[T] // slots[tid][slot]
	lists []*retireList[T]
	h     int
	p     int
}

type retireNode[T any] struct {
	ptr  *T
	next *retireNode[T]
}

// retireList is owned exclusively by a single participant: only that
// participant ever appends to it or sweeps it, so it needs no internal
// synchronization of its own.
type retireList[T any] struct {
	head  *retireNode[T]
	count int
}

// NewRegistry builds a registry for p participants with h hazard slots each.
func NewRegistry[T any](p, h int) *Registry[T] {
	if p <= 0 {
		p = 1
	}
	if h <= 0 {
		h = 1
	}
	r := &Registry[T]{
		slots: make([][]atomic.Pointer[T], p),
		lists: make([]*retireList[T], p),
		h:     h,
		p:     p,
	}
	for i := 0; i < p; i++ {
		r.slots[i] = make([]atomic.Pointer[T], h)
		r.lists[i] = &retireList[T]{}
	}
	return r
}

// Participants returns P.
func (r *Registry[T]) Participants() int { return r.p }

// Slots returns H.
func (r *Registry[T]) Slots() int { return r.h }

// Protect publishes p into tid's slot and returns p. Publication alone is
// not enough to close the race against a concurrent retire: the caller
// must re-read the source atomic pointer after this call and retry the
// whole load-protect sequence until the re-read agrees with p. ProtectLoad
// below does that loop for the common case.
func (r *Registry[T]) Protect(tid, slot int, p *T) *T {
	r.slots[tid][slot].Store(p)
	return p
}

// ProtectLoad repeatedly loads from load, publishes the result into the
// hazard slot, and re-reads load until it observes the same pointer twice
// in a row — the standard hazard-pointer publication idiom. It returns a
// pointer that is guaranteed protected at the moment of return.
func (r *Registry[T]) ProtectLoad(tid, slot int, load func() *T) *T {
	p, _ := r.ProtectLoadCounted(tid, slot, load)
	return p
}

// ProtectLoadCounted is ProtectLoad, but also reports how many times the
// load-protect-reread loop had to retry before the snapshot stabilized —
// callers that track contention metrics use this instead.
func (r *Registry[T]) ProtectLoadCounted(tid, slot int, load func() *T) (*T, int) {
	retries := 0
	for {
		p := load()
		r.Protect(tid, slot, p)
		if q := load(); q == p {
			return p, retries
		}
		retries++
	}
}

// ClearOne nulls a single slot.
func (r *Registry[T]) ClearOne(tid, slot int) {
	r.slots[tid][slot].Store(nil)
}

// Clear nulls every slot owned by tid.
func (r *Registry[T]) Clear(tid int) {
	for i := range r.slots[tid] {
		r.slots[tid][i].Store(nil)
	}
}

// isProtected reports whether p is pinned by any participant's hazard slot.
func (r *Registry[T]) isProtected(p *T) bool {
	if p == nil {
		return false
	}
	for tid := range r.slots {
		for slot := range r.slots[tid] {
			if r.slots[tid][slot].Load() == p {
				return true
			}
		}
	}
	return false
}

// Retire appends p to tid's private retire list and immediately sweeps
// that list, freeing (via free) every entry no slot protects anymore.
// Sweep cost is O(P*H + |retire list|).
func (r *Registry[T]) Retire(tid int, p *T, free func(*T)) {
	list := r.lists[tid]
	list.head = &retireNode[T]{ptr: p, next: list.head}
	list.count++
	r.sweep(tid, free)
}

// sweep is the default (unconditional) reclamation predicate: free as soon
// as no hazard slot anywhere still references the pointer.
func (r *Registry[T]) sweep(tid int, free func(*T)) {
	r.sweepWithPredicate(tid, free, func(*T) bool { return true })
}

// sweepWithPredicate lets a subtype (the conditional variant) add an extra
// readiness check before a pointer is actually freed; entries that fail the
// predicate are kept on the list for the next sweep.
func (r *Registry[T]) sweepWithPredicate(tid int, free func(*T), ready func(*T) bool) {
	list := r.lists[tid]
	protected := make(map[*T]struct{})
	for t := range r.slots {
		for s := range r.slots[t] {
			if p := r.slots[t][s].Load(); p != nil {
				protected[p] = struct{}{}
			}
		}
	}
	var kept *retireNode[T]
	keptCount := 0
	node := list.head
	for node != nil {
		next := node.next
		if _, held := protected[node.ptr]; !held && ready(node.ptr) {
			free(node.ptr)
		} else {
			node.next = kept
			kept = node
			keptCount++
		}
		node = next
	}
	list.head = kept
	list.count = keptCount
}

// RetireListLen reports how many entries tid is still holding (diagnostic).
func (r *Registry[T]) RetireListLen(tid int) int {
	return r.lists[tid].count
}
