package passes

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/value"
)

// DCE removes instructions whose results are never consumed. Vectorization
// leaves behind the scalar address arithmetic (index adds, element pointers)
// of erased loads and stores, and the undef-seeded insert chains of prepack
// adapters whose early lanes fall dead; this pass sweeps both.
type DCE struct{}

// NewDCE creates the pass.
func NewDCE() *DCE { return &DCE{} }

// Name identifies the pass.
func (d *DCE) Name() string { return "dce" }

// Initialize is a no-op.
func (d *DCE) Initialize(m *ir.Module) bool { return false }

// Finalize is a no-op.
func (d *DCE) Finalize(m *ir.Module) bool { return false }

// RunOnFunction marks every instruction reachable from a side-effecting
// instruction or a terminator, then removes the rest. Iterates to a fixed
// point so chains of dead operands unravel fully in one run.
func (d *DCE) RunOnFunction(fn *ir.Func) bool {
	changed := false
	for d.sweep(fn) {
		changed = true
	}
	return changed
}

// sweep performs one mark phase and one removal phase, reporting whether
// anything was removed.
func (d *DCE) sweep(fn *ir.Func) bool {
	used := make(map[ir.Instruction]bool)

	producers := make(map[value.Value]ir.Instruction)
	for _, block := range fn.Blocks {
		for _, inst := range block.Insts {
			if v, ok := inst.(value.Value); ok {
				producers[v] = inst
			}
		}
	}

	var mark func(inst ir.Instruction)
	mark = func(inst ir.Instruction) {
		if used[inst] {
			return
		}
		used[inst] = true
		for _, op := range inst.Operands() {
			if def, ok := producers[*op]; ok {
				mark(def)
			}
		}
	}

	for _, block := range fn.Blocks {
		for _, inst := range block.Insts {
			if hasSideEffects(inst) {
				mark(inst)
			}
		}
		if block.Term != nil {
			for _, op := range block.Term.Operands() {
				if def, ok := producers[*op]; ok {
					mark(def)
				}
			}
		}
	}

	removed := false
	for _, block := range fn.Blocks {
		kept := make([]ir.Instruction, 0, len(block.Insts))
		for _, inst := range block.Insts {
			if used[inst] {
				kept = append(kept, inst)
			} else {
				removed = true
			}
		}
		block.Insts = kept
	}
	return removed
}

// hasSideEffects reports whether an instruction must be kept regardless of
// whether its result is consumed.
func hasSideEffects(inst ir.Instruction) bool {
	switch inst.(type) {
	case *ir.InstStore, *ir.InstCall, *ir.InstFence, *ir.InstAtomicRMW, *ir.InstCmpXchg:
		return true
	default:
		return false
	}
}
