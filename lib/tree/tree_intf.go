// Package tree implements an operation-stamped, wait-free ordered integer
// set: every node carries a packed atomic state word, two CAS-able child
// pointers, and its own conditional monotonic queue of pending operations;
// a single shared monotonic counter stamps every public call so concurrent
// operations apply in a consistent, linearizable order without ever
// blocking a caller on another's progress.
//
// Insert, Remove, and Lookup route through childSlot/state_ops.go's
// single-key CAS transitions (actions.go); RangeCount's two-phase split
// walk lives in rangecount.go. Periodic weight-balanced rebuilds
// (rebuild.go) keep traversal depth logarithmic as churn accumulates.
package tree
