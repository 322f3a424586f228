package hazard

// Conditional is implemented by queue node types whose physical reclamation
// must wait until they are fully unthreaded from every queue that might
// still observe them, not merely until no hazard slot points at them.
type Conditional interface {
	// NextIsNil reports whether the node's next link has been cleared.
	NextIsNil() bool
	// ValueIsZero reports whether the node's payload has been reset to the
	// type's zero sentinel (the popper clears it before retiring).
	ValueIsZero() bool
}

// ConditionalRegistry is the hazard registry variant described in §4.1: a
// retired node is only freed once (a) no hazard slot protects it, and
// (b) its own NextIsNil/ValueIsZero predicate holds. Entries that fail (b)
// stay on the retire list and are re-checked on the next Retire call from
// the same participant.
type ConditionalRegistry[T Conditional] struct {
	*Registry[T]
}

// NewConditionalRegistry builds a conditional hazard registry for p
// participants with h slots each.
func NewConditionalRegistry[T Conditional](p, h int) *ConditionalRegistry[T] {
	return &ConditionalRegistry[T]{Registry: NewRegistry[T](p, h)}
}

// Retire appends p to tid's retire list and sweeps it, applying the
// conditional predicate in addition to the hazard-protection check.
func (r *ConditionalRegistry[T]) Retire(tid int, p *T, free func(*T)) {
	list := r.lists[tid]
	list.head = &retireNode[T]{ptr: p, next: list.head}
	list.count++
	r.sweepWithPredicate(tid, free, func(p *T) bool {
		v := *p
		return v.NextIsNil() && v.ValueIsZero()
	})
}
