package hazard

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type condNode struct {
	next *condNode
	val  int
}

func (n *condNode) NextIsNil() bool   { return n.next == nil }
func (n *condNode) ValueIsZero() bool { return n.val == 0 }

func TestConditionalRegistry_WaitsForDrainedLinkage(t *testing.T) {
	r := NewConditionalRegistry[condNode](2, 1)
	target := &condNode{val: 5}
	other := &condNode{val: 9}
	target.next = other // still linked into a queue

	freed := 0
	r.Retire(0, target, func(p *condNode) { freed++ })
	require.Equal(t, 0, freed, "still linked, must not free")
	require.Equal(t, 1, r.RetireListLen(0))

	target.next = nil
	target.val = 0 // popper clears the payload before unlinking
	r.Retire(0, &condNode{}, func(p *condNode) { freed++ })
	require.Equal(t, 2, freed, "both entries reclaimable now")
}
