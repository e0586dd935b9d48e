package slp

import (
	"fmt"
	"strings"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// Pack is an ordered n-tuple of independent, isomorphic instructions from one
// basic block, destined to be replaced by a single vector instruction. A Pack
// of size two is a Pair, the unit of discovery; combination builds longer
// packs out of pairs. Packs are never mutated in place: combination
// constructs replacement packs and swaps them in atomically.
type Pack struct {
	elems []ir.Instruction

	// vec is the vector value materialized for this pack by code generation;
	// nil until then. Stores never set it.
	vec value.Value
}

// newPair builds the discovery unit: a pack of the left and right element.
func newPair(s1, s2 ir.Instruction) *Pack {
	return &Pack{elems: []ir.Instruction{s1, s2}}
}

// combinePair concatenates p1 and p2, eliding p2's first element, which is
// required to equal p1's last.
func combinePair(p1, p2 *Pack) *Pack {
	elems := make([]ir.Instruction, 0, p1.Size()+p2.Size()-1)
	elems = append(elems, p1.elems...)
	elems = append(elems, p2.elems[1:]...)
	return &Pack{elems: elems}
}

// Size returns the number of lanes.
func (p *Pack) Size() int { return len(p.elems) }

// Nth returns the instruction at lane n.
func (p *Pack) Nth(n int) ir.Instruction { return p.elems[n] }

// First returns lane 0.
func (p *Pack) First() ir.Instruction { return p.elems[0] }

// Last returns the final lane.
func (p *Pack) Last() ir.Instruction { return p.elems[len(p.elems)-1] }

// IsPair reports whether the pack is still a discovery pair.
func (p *Pack) IsPair() bool { return p.Size() == 2 }

// Left returns the left element of a pair.
func (p *Pack) Left() ir.Instruction {
	if !p.IsPair() {
		panic("slp: Left on non-pair pack")
	}
	return p.elems[0]
}

// Right returns the right element of a pair.
func (p *Pack) Right() ir.Instruction {
	if !p.IsPair() {
		panic("slp: Right on non-pair pack")
	}
	return p.elems[1]
}

// LaneOf returns the lane index of s within the pack, or -1.
func (p *Pack) LaneOf(s value.Value) int {
	for i, e := range p.elems {
		if v, ok := e.(value.Value); ok && v == s {
			return i
		}
	}
	return -1
}

// Contains reports whether s is an element of the pack.
func (p *Pack) Contains(s ir.Instruction) bool {
	for _, e := range p.elems {
		if e == s {
			return true
		}
	}
	return false
}

// Equal reports sequence equality of the underlying instruction handles.
func (p *Pack) Equal(q *Pack) bool {
	if p.Size() != q.Size() {
		return false
	}
	for i := range p.elems {
		if p.elems[i] != q.elems[i] {
			return false
		}
	}
	return true
}

// Class returns the shared class and discriminator of the pack's lanes.
func (p *Pack) Class() (opClass, string) {
	return classify(p.elems[0])
}

// ElemType returns the scalar element type the pack's vector form is built
// over: the stored value's type for store packs, the result type otherwise.
func (p *Pack) ElemType() types.Type {
	return resultType(p.elems[0])
}

// Vec returns the vector value produced for the pack, or nil before codegen.
func (p *Pack) Vec() value.Value { return p.vec }

func (p *Pack) String() string {
	var b strings.Builder
	for i, e := range p.elems {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%d: %s", i, instString(e))
	}
	return "[" + b.String() + "]"
}

// PackSet is the working collection of packs. Insertion order is preserved
// and observable: scheduling breaks ties by it.
type PackSet struct {
	packs []*Pack
}

// Size returns the number of packs.
func (ps *PackSet) Size() int { return len(ps.packs) }

// Nth returns the n-th pack in insertion order.
func (ps *PackSet) Nth(n int) *Pack { return ps.packs[n] }

// Packs returns the packs in insertion order. Callers must not mutate.
func (ps *PackSet) Packs() []*Pack { return ps.packs }

// Add inserts p unless an equal pack is already present.
func (ps *PackSet) Add(p *Pack) bool {
	for _, q := range ps.packs {
		if q.Equal(p) {
			return false
		}
	}
	ps.packs = append(ps.packs, p)
	return true
}

// AddPair inserts the pair (s1, s2), deduplicated by value equality.
func (ps *PackSet) AddPair(s1, s2 ir.Instruction) bool {
	return ps.Add(newPair(s1, s2))
}

// Remove deletes the pack equal to p, if present.
func (ps *PackSet) Remove(p *Pack) {
	for i, q := range ps.packs {
		if q.Equal(p) {
			ps.packs = append(ps.packs[:i], ps.packs[i+1:]...)
			return
		}
	}
}

// PairExists reports whether the exact pair (s1, s2) is in the set.
func (ps *PackSet) PairExists(s1, s2 ir.Instruction) bool {
	for _, p := range ps.packs {
		if p.IsPair() && p.Left() == s1 && p.Right() == s2 {
			return true
		}
	}
	return false
}

// FindPack returns the pack containing s, or nil. Invariant I1 guarantees at
// most one such pack.
func (ps *PackSet) FindPack(s ir.Instruction) *Pack {
	for _, p := range ps.packs {
		if p.Contains(s) {
			return p
		}
	}
	return nil
}

// FindPackOf returns the pack producing v, when v is a packed instruction.
func (ps *PackSet) FindPackOf(v value.Value) *Pack {
	inst, ok := v.(ir.Instruction)
	if !ok {
		return nil
	}
	return ps.FindPack(inst)
}

// packedInLeft reports whether s is already the left element of some pair.
func (ps *PackSet) packedInLeft(s ir.Instruction) bool {
	for _, p := range ps.packs {
		if p.IsPair() && p.Left() == s {
			return true
		}
	}
	return false
}

// packedInRight reports whether s is already the right element of some pair.
func (ps *PackSet) packedInRight(s ir.Instruction) bool {
	for _, p := range ps.packs {
		if p.IsPair() && p.Right() == s {
			return true
		}
	}
	return false
}

func (ps *PackSet) String() string {
	var b strings.Builder
	for i, p := range ps.packs {
		fmt.Fprintf(&b, "\tPack %d %s\n", i, p)
	}
	return b.String()
}
