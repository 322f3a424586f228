// Package queue implements the two auxiliary concurrent queues the tree
// engine relies on: a Kogan-Petrank style wait-free multi-producer/
// multi-consumer FIFO (single-value and pair-value shapes), and a
// conditional monotonic queue built on the same descriptor-helping
// skeleton that additionally enforces push-time timestamp ordering.
//
// References:
// https://dl.acm.org/doi/10.1145/1989493.1989549 (Kogan & Petrank, Wait-Free Queues)
package queue

// DescType tags a participant's pending descriptor. The zero value,
// NotPending, doubles as "no operation in flight" so a freshly allocated
// descriptor slot starts out quiescent without any explicit init.
type DescType uint8

const (
	NotPending DescType = iota
	Push
	Pop
	Peek // CMQ only
)

// Packed descriptor word layout: the top 2 bits carry the DescType, the
// low 62 bits carry a per-queue timestamp drawn from a queue-local
// monotonic counter (never the engine's shared last_timestamp — each
// queue orders only its own descriptors).
const (
	descTypeShift = 62
	descTsMask    = uint64(1)<<descTypeShift - 1
)

func packDesc(t DescType, ts uint64) uint64 {
	return uint64(t)<<descTypeShift | (ts & descTsMask)
}

func unpackDesc(w uint64) (DescType, uint64) {
	return DescType(w >> descTypeShift), w & descTsMask
}

// unclaimed marks a pair/single queue node's pop-claim field as not yet
// owned by any participant.
const unclaimed int32 = -1
