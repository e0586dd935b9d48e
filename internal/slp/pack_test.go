package slp

import (
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chainInsts builds n independent isomorphic adds for pack plumbing tests.
func chainInsts(n int) []ir.Instruction {
	m := ir.NewModule()
	x := ir.NewParam("x", types.I32)
	fn := m.NewFunc("mk", types.Void, x)
	entry := fn.NewBlock("entry")
	insts := make([]ir.Instruction, n)
	for i := range insts {
		insts[i] = entry.NewAdd(x, x)
	}
	entry.NewRet(nil)
	return insts
}

func TestPackSetAddDeduplicates(t *testing.T) {
	insts := chainInsts(3)
	ps := &PackSet{}

	require.True(t, ps.AddPair(insts[0], insts[1]))
	require.False(t, ps.AddPair(insts[0], insts[1]))
	require.True(t, ps.AddPair(insts[1], insts[2]))
	require.Equal(t, 2, ps.Size())

	assert.True(t, ps.PairExists(insts[0], insts[1]))
	assert.False(t, ps.PairExists(insts[1], insts[0]))
}

func TestPackSetOccupancy(t *testing.T) {
	insts := chainInsts(3)
	ps := &PackSet{}
	ps.AddPair(insts[0], insts[1])

	assert.True(t, ps.packedInLeft(insts[0]))
	assert.False(t, ps.packedInLeft(insts[1]))
	assert.True(t, ps.packedInRight(insts[1]))
	assert.False(t, ps.packedInRight(insts[0]))
	assert.False(t, ps.packedInLeft(insts[2]))
}

func TestPackSetFindAndRemove(t *testing.T) {
	insts := chainInsts(4)
	ps := &PackSet{}
	ps.AddPair(insts[0], insts[1])
	ps.AddPair(insts[2], insts[3])

	p := ps.FindPack(insts[2])
	require.NotNil(t, p)
	assert.Equal(t, insts[2], p.Left())
	assert.Nil(t, ps.FindPack(chainInsts(1)[0]))

	ps.Remove(p)
	require.Equal(t, 1, ps.Size())
	assert.Nil(t, ps.FindPack(insts[2]))
}

func TestCombinePairElidesSharedEndpoint(t *testing.T) {
	insts := chainInsts(3)
	p1 := newPair(insts[0], insts[1])
	p2 := newPair(insts[1], insts[2])

	merged := combinePair(p1, p2)
	require.Equal(t, 3, merged.Size())
	assert.Equal(t, insts[0], merged.First())
	assert.Equal(t, insts[1], merged.Nth(1))
	assert.Equal(t, insts[2], merged.Last())
	assert.False(t, merged.IsPair())
}

func TestPackLaneOf(t *testing.T) {
	insts := chainInsts(2)
	p := newPair(insts[0], insts[1])

	require.Equal(t, 0, p.LaneOf(insts[0].(*ir.InstAdd)))
	require.Equal(t, 1, p.LaneOf(insts[1].(*ir.InstAdd)))
	require.Equal(t, -1, p.LaneOf(chainInsts(1)[0].(*ir.InstAdd)))
}

func TestPackClassAndType(t *testing.T) {
	insts := chainInsts(2)
	p := newPair(insts[0], insts[1])

	cls, mnemonic := p.Class()
	assert.Equal(t, opBinary, cls)
	assert.Equal(t, "add", mnemonic)
	assert.True(t, p.ElemType().Equal(types.I32))
	assert.Nil(t, p.Vec())
}
