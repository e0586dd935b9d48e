package slp

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/value"
)

// AlignInfo records the canonical form of a memory access address: the base
// pointer, the induction variable the access is indexed by, and the constant
// element offset against that variable.
//
// For the unrolled body
//
//	A[i + 0] = A[i + 0] * A[i + 0]
//	...
//	A[i + 3] = A[i + 3] * A[i + 3]
//
// the last store carries base = A, inductionVar = i, index = 3.
type AlignInfo struct {
	Base         value.Value
	InductionVar value.Value
	Index        int64
}

// setAlignRefs walks the block and records AlignInfo for every load and store
// whose address is an analyzable element pointer. Unrecognized address shapes
// are skipped without error.
func (bp *blockPass) setAlignRefs() {
	for _, inst := range bp.block.Insts {
		ptr := memPointerOperand(inst)
		if ptr == nil {
			continue
		}
		gep, ok := ptr.(*ir.InstGetElementPtr)
		if !ok {
			continue
		}
		base, offset, ok := decodeElemPtr(gep)
		if !ok {
			continue
		}

		// Unwrap repeated add/or with a constant right operand, accumulating
		// the constant into the index. The terminal non-binary value is the
		// induction variable.
		var index int64
		iv := offset
		for {
			x, c, ok := constAddend(iv)
			if !ok {
				break
			}
			index += c
			iv = x
		}

		bp.alignInfo[inst] = AlignInfo{Base: base, InductionVar: iv, Index: index}
		bp.debugf("[setAlignRef] %s: base=%s iv=%s index=%d",
			instString(inst), valueString(base), valueString(iv), index)
	}
}

// memPointerOperand returns the pointer operand of a load or store, or nil
// for any other instruction.
func memPointerOperand(inst ir.Instruction) value.Value {
	switch s := inst.(type) {
	case *ir.InstLoad:
		return s.Src
	case *ir.InstStore:
		return s.Dst
	}
	return nil
}

// decodeElemPtr recognizes the two element-pointer shapes the pass handles:
// a two-index GEP whose first index is the constant zero (global array
// access), and a single-index GEP (plain pointer arithmetic). GEPs with more
// indices, or a nonzero constant first index, are not analyzable.
func decodeElemPtr(gep *ir.InstGetElementPtr) (base, offset value.Value, ok bool) {
	switch len(gep.Indices) {
	case 1:
		return gep.Src, gep.Indices[0], true
	case 2:
		first, isConst := gep.Indices[0].(*constant.Int)
		if !isConst || !first.X.IsInt64() || first.X.Int64() != 0 {
			return nil, nil, false
		}
		return gep.Src, gep.Indices[1], true
	}
	return nil, nil, false
}

// constAddend matches a binary add or or whose right operand is an integer
// constant, returning the left operand and the constant.
func constAddend(v value.Value) (x value.Value, c int64, ok bool) {
	switch b := v.(type) {
	case *ir.InstAdd:
		if ci, isConst := b.Y.(*constant.Int); isConst && ci.X.IsInt64() {
			return b.X, ci.X.Int64(), true
		}
	case *ir.InstOr:
		if ci, isConst := b.Y.(*constant.Int); isConst && ci.X.IsInt64() {
			return b.X, ci.X.Int64(), true
		}
	}
	return nil, 0, false
}

// alignment returns the AlignInfo recorded for s, or nil.
func (bp *blockPass) alignment(s ir.Instruction) *AlignInfo {
	if a, ok := bp.alignInfo[s]; ok {
		return &a
	}
	return nil
}

// copyAlignment propagates alignment from a pack source element to a newly
// packed element. Existing alignment on dst is kept.
func (bp *blockPass) copyAlignment(dst, src ir.Instruction) {
	if _, ok := bp.alignInfo[dst]; ok {
		return
	}
	if a := bp.alignment(src); a != nil {
		bp.alignInfo[dst] = *a
	}
}

// checkAlignment reports whether a1 and a2 share the same base address and
// induction variable and their indices differ by exactly offset.
func checkAlignment(a1, a2 *AlignInfo, offset int64) bool {
	if a1 == nil || a2 == nil {
		return false
	}
	if a1.Base != a2.Base {
		return false
	}
	if a1.InductionVar != a2.InductionVar {
		return false
	}
	return a1.Index+offset == a2.Index
}

// adjacent reports whether s2 accesses the element immediately after s1.
func (bp *blockPass) adjacent(s1, s2 ir.Instruction) bool {
	return checkAlignment(bp.alignment(s1), bp.alignment(s2), 1)
}
