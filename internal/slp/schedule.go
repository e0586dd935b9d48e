package slp

import (
	"strconv"
	"strings"
)

// buildDependency constructs the pack-level dependency graph: deps[p]
// contains every pack q such that some element of p consumes a value
// produced by an element of q.
func (bp *blockPass) buildDependency() {
	bp.deps = make(map[*Pack]map[*Pack]bool)
	for _, p := range bp.packs.Packs() {
		for _, q := range bp.packs.Packs() {
			if p == q {
				continue
			}
			dependent := false
			for _, s := range p.elems {
				for _, sDep := range q.elems {
					if isDependentOn(s, sDep) {
						dependent = true
						break
					}
				}
				if dependent {
					break
				}
			}
			if dependent {
				if bp.deps[p] == nil {
					bp.deps[p] = make(map[*Pack]bool)
				}
				bp.deps[p][q] = true
			}
		}
	}

	if bp.pass.Verbose {
		for i, p := range bp.packs.Packs() {
			if len(bp.deps[p]) == 0 {
				continue
			}
			var on []string
			for j, q := range bp.packs.Packs() {
				if bp.deps[p][q] {
					on = append(on, packLabel(j))
				}
			}
			bp.debugf("[buildDependency] pack %s depends on %s", packLabel(i), strings.Join(on, " "))
		}
	}
}

// schedule topologically orders the pack set over the dependency graph.
// Among ready packs the earliest by insertion order is picked, keeping the
// result deterministic. Returns false when no full ordering exists, which
// means the pack-level graph is cyclic and the block must not be transformed.
func (bp *blockPass) schedule() bool {
	bp.buildDependency()

	scheduled := make(map[*Pack]bool)
	for {
		progressed := false
		for _, p := range bp.packs.Packs() {
			if scheduled[p] {
				continue
			}
			ready := true
			for q := range bp.deps[p] {
				if !scheduled[q] {
					ready = false
					break
				}
			}
			if !ready {
				continue
			}
			scheduled[p] = true
			bp.scheduledList = append(bp.scheduledList, p)
			progressed = true
			break
		}
		if !progressed {
			break
		}
	}
	return len(bp.scheduledList) == bp.packs.Size()
}

// checkEmittable decides, before any IR is touched, whether anchored code
// generation preserves def-before-use. Three conditions must hold:
//
//  1. every pack feeding an operand lane of another pack has the same width
//     as its consumer;
//  2. the producing pack's last element precedes the consumer's last element
//     in original program order, so the vector value is defined before its
//     use site;
//  3. no in-block user outside any pack sits before the defining pack's last
//     element, where its postpack extract would be inserted.
//
// A failure aborts the block exactly like an unschedulable cycle: the IR is
// left as found.
func (bp *blockPass) checkEmittable() bool {
	for _, p := range bp.packs.Packs() {
		cls, _ := p.Class()
		if cls == opOther {
			continue
		}
		for j := 0; j < bp.operandArity(p); j++ {
			for _, s := range p.elems {
				def := packOperands(s)[j]
				q := bp.packs.FindPackOf(def)
				if q == nil || q == p {
					continue
				}
				if q.Size() != p.Size() {
					bp.debugf("[checkEmittable] width mismatch: %d-wide pack feeds %d-wide pack", q.Size(), p.Size())
					return false
				}
				if bp.uses.pos[q.Last()] >= bp.uses.pos[p.Last()] {
					bp.debugf("[checkEmittable] producer anchor does not precede consumer anchor")
					return false
				}
			}
		}
		if cls == opStore {
			continue
		}
		anchor := bp.uses.pos[p.Last()]
		for _, d := range p.elems {
			for _, u := range bp.uses.usersOf(d) {
				if bp.packs.FindPack(u) != nil {
					continue
				}
				if bp.uses.parent[u] == bp.block && bp.uses.pos[u] <= anchor {
					bp.debugf("[checkEmittable] external user precedes pack anchor")
					return false
				}
			}
		}
	}
	return true
}

// operandArity returns the number of lane-wise operands codegen will
// assemble for the pack: both operands of a binary op, the stored value of a
// store, every argument of an intrinsic call. Loads assemble none — their
// pointer is rewritten wholesale.
func (bp *blockPass) operandArity(p *Pack) int {
	switch cls, _ := p.Class(); cls {
	case opBinary:
		return 2
	case opStore:
		return 1
	case opIntrinsic:
		return len(packOperands(p.First()))
	}
	return 0
}

// packLabel names packs in diagnostics by insertion position.
func packLabel(i int) string {
	return "#" + strconv.Itoa(i)
}
