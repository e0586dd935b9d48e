package slp

import (
	"github.com/llir/llvm/ir"
)

// findAdjRefs seeds the pack set: every ordered pair of distinct memory
// operations whose addresses are adjacent and that can legally pack becomes
// an initial pair.
func (bp *blockPass) findAdjRefs() {
	bp.setAlignRefs()

	for _, s1 := range bp.block.Insts {
		if memPointerOperand(s1) == nil {
			continue
		}
		for _, s2 := range bp.block.Insts {
			if s1 == s2 || memPointerOperand(s2) == nil {
				continue
			}
			if !bp.adjacent(s1, s2) {
				continue
			}
			if bp.stmtsCanPack(s1, s2, bp.alignment(s1)) {
				if bp.packs.AddPair(s1, s2) {
					bp.debugf("[addPair] (%s) and (%s)", instString(s1), instString(s2))
				}
			}
		}
	}
}

// stmtsCanPack decides whether (s1, s2) may form a pair: isomorphic,
// one-hop independent, s1 not already a left element, s2 not already a right
// element, and any alignment present on either side consistent with align
// (equal for s1, offset by one for s2). Missing alignment is permitted.
func (bp *blockPass) stmtsCanPack(s1, s2 ir.Instruction, align *AlignInfo) bool {
	if s1 == s2 {
		return false
	}
	if !isIsomorphic(s1, s2) || !isIndependent(s1, s2) {
		return false
	}
	if bp.packs.packedInLeft(s1) || bp.packs.packedInRight(s2) {
		return false
	}
	a1 := bp.alignment(s1)
	a2 := bp.alignment(s2)
	if a1 != nil && !checkAlignment(align, a1, 0) {
		return false
	}
	if a2 != nil && !checkAlignment(align, a2, 1) {
		return false
	}
	return true
}

// estSavings is the sign-only admission heuristic: a pair that already
// exists is worthless, any new pair is worth one.
func (bp *blockPass) estSavings(t1, t2 ir.Instruction) int {
	if bp.packs.PairExists(t1, t2) {
		return -1
	}
	return 1
}

// extendPacklist grows the pack set breadth-first: each seeded pair is
// examined once along its use-def and def-use chains, and any pairs added
// along the way join the worklist.
func (bp *blockPass) extendPacklist() {
	head := 0
	for head < bp.packs.Size() {
		tail := bp.packs.Size()
		for head < tail {
			p := bp.packs.Nth(head)
			bp.followUseDefs(p)
			bp.followDefUses(p)
			head++
		}
	}
}

// followUseDefs extends a pair toward its operands: lane-wise operand pairs
// that can pack, and whose savings are non-negative, become new pairs.
// Alignment is copied from the consuming pair onto the new elements.
func (bp *blockPass) followUseDefs(p *Pack) bool {
	s1, s2 := p.Left(), p.Right()
	ops1 := packOperands(s1)
	ops2 := packOperands(s2)
	if len(ops1) != len(ops2) {
		return false
	}
	align := bp.alignment(s1)

	changed := false
	for j := range ops1 {
		t1, ok1 := ops1[j].(ir.Instruction)
		t2, ok2 := ops2[j].(ir.Instruction)
		if !ok1 || !ok2 {
			continue
		}
		if bp.uses.parent[t1] != bp.block || bp.uses.parent[t2] != bp.block {
			continue
		}
		if !bp.stmtsCanPack(t1, t2, align) {
			continue
		}
		if bp.estSavings(t1, t2) < 0 {
			continue
		}
		if bp.packs.AddPair(t1, t2) {
			bp.debugf("[followUseDefs] (%s) and (%s)", instString(t1), instString(t2))
		}
		bp.copyAlignment(t1, s1)
		bp.copyAlignment(t2, s2)
		changed = true
	}
	return changed
}

// followDefUses extends a pair toward its users: among all same-block user
// pairs that can pack, the single best by savings is added. Ties fall to the
// earliest pair by block position, which is the order the user index yields.
func (bp *blockPass) followDefUses(p *Pack) bool {
	s1, s2 := p.Left(), p.Right()
	align := bp.alignment(s1)

	savings := -1
	var u1, u2 ir.Instruction
	for _, t1 := range bp.uses.usersOf(s1) {
		if bp.uses.parent[t1] != bp.block {
			continue
		}
		for _, t2 := range bp.uses.usersOf(s2) {
			if bp.uses.parent[t2] != bp.block {
				continue
			}
			if !bp.stmtsCanPack(t1, t2, align) {
				continue
			}
			if est := bp.estSavings(t1, t2); est > savings {
				savings = est
				u1, u2 = t1, t2
			}
		}
	}

	if savings < 0 {
		return false
	}
	if bp.packs.AddPair(u1, u2) {
		bp.debugf("[followDefUses] (%s) and (%s)", instString(u1), instString(u2))
	}
	bp.copyAlignment(u1, s1)
	bp.copyAlignment(u2, s2)
	return true
}

// combinePacks chains packs that share an endpoint: whenever the last
// element of one pack is the first element of another, the two merge into a
// single longer pack. Replacements are materialized outside the scan and
// applied between iterations, never during one.
func (bp *blockPass) combinePacks() {
	for {
		var merged *Pack
		var victim1, victim2 *Pack
		for _, p1 := range bp.packs.Packs() {
			for _, p2 := range bp.packs.Packs() {
				if p1 == p2 {
					continue
				}
				if p1.Last() == p2.First() {
					merged = combinePair(p1, p2)
					victim1, victim2 = p1, p2
					break
				}
			}
			if merged != nil {
				break
			}
		}
		if merged == nil {
			return
		}
		bp.packs.Remove(victim1)
		bp.packs.Remove(victim2)
		bp.packs.Add(merged)
		bp.debugf("[combinePacks] %s", merged)
	}
}
