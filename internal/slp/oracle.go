package slp

import (
	"fmt"
	"strings"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// opClass is the closed set of instruction classes the pass can vectorize,
// plus Other for everything it cannot.
type opClass int

const (
	opOther opClass = iota
	opBinary
	opLoad
	opStore
	opIntrinsic
)

// classify tags an instruction with its class and a discriminator: the binary
// operator mnemonic for opBinary, the intrinsic name for opIntrinsic.
func classify(inst ir.Instruction) (opClass, string) {
	switch s := inst.(type) {
	case *ir.InstLoad:
		return opLoad, "load"
	case *ir.InstStore:
		return opStore, "store"
	case *ir.InstAdd:
		return opBinary, "add"
	case *ir.InstFAdd:
		return opBinary, "fadd"
	case *ir.InstSub:
		return opBinary, "sub"
	case *ir.InstFSub:
		return opBinary, "fsub"
	case *ir.InstMul:
		return opBinary, "mul"
	case *ir.InstFMul:
		return opBinary, "fmul"
	case *ir.InstUDiv:
		return opBinary, "udiv"
	case *ir.InstSDiv:
		return opBinary, "sdiv"
	case *ir.InstFDiv:
		return opBinary, "fdiv"
	case *ir.InstURem:
		return opBinary, "urem"
	case *ir.InstSRem:
		return opBinary, "srem"
	case *ir.InstFRem:
		return opBinary, "frem"
	case *ir.InstAnd:
		return opBinary, "and"
	case *ir.InstOr:
		return opBinary, "or"
	case *ir.InstXor:
		return opBinary, "xor"
	case *ir.InstShl:
		return opBinary, "shl"
	case *ir.InstLShr:
		return opBinary, "lshr"
	case *ir.InstAShr:
		return opBinary, "ashr"
	case *ir.InstCall:
		if name, ok := intrinsicName(s); ok {
			return opIntrinsic, name
		}
	}
	return opOther, ""
}

// intrinsicName returns the callee name of a direct llvm.* intrinsic call.
func intrinsicName(call *ir.InstCall) (string, bool) {
	callee, ok := call.Callee.(*ir.Func)
	if !ok {
		return "", false
	}
	if !strings.HasPrefix(callee.GlobalName, "llvm.") {
		return "", false
	}
	return callee.GlobalName, true
}

// resultType is the type used for isomorphism comparison. Stores yield no
// value, so the type of the stored element stands in for them.
func resultType(inst ir.Instruction) types.Type {
	if st, ok := inst.(*ir.InstStore); ok {
		return st.Src.Type()
	}
	if v, ok := inst.(value.Value); ok {
		return v.Type()
	}
	return types.Void
}

// isIsomorphic reports whether two instructions share the same opcode and
// result type and both belong to a vectorizable class. Intrinsic calls match
// only against the identical intrinsic.
func isIsomorphic(s1, s2 ir.Instruction) bool {
	c1, d1 := classify(s1)
	c2, d2 := classify(s2)
	if c1 == opOther || c1 != c2 || d1 != d2 {
		return false
	}
	return resultType(s1).Equal(resultType(s2))
}

// isDependentOn reports whether s directly consumes a value produced by sDep.
func isDependentOn(s, sDep ir.Instruction) bool {
	dep, ok := sDep.(value.Value)
	if !ok {
		return false
	}
	for _, op := range s.Operands() {
		if *op == dep {
			return true
		}
	}
	return false
}

// isIndependent reports one-hop independence: neither instruction appears in
// the other's user set.
func isIndependent(s1, s2 ir.Instruction) bool {
	return !isDependentOn(s1, s2) && !isDependentOn(s2, s1)
}

// packOperands is the lane-wise operand view used by pack growth and vector
// codegen. The order is significant: a store's value operand comes first so
// that operand 0 of a store pack is the vector being stored.
func packOperands(inst ir.Instruction) []value.Value {
	switch s := inst.(type) {
	case *ir.InstLoad:
		return []value.Value{s.Src}
	case *ir.InstStore:
		return []value.Value{s.Src, s.Dst}
	case *ir.InstAdd:
		return []value.Value{s.X, s.Y}
	case *ir.InstFAdd:
		return []value.Value{s.X, s.Y}
	case *ir.InstSub:
		return []value.Value{s.X, s.Y}
	case *ir.InstFSub:
		return []value.Value{s.X, s.Y}
	case *ir.InstMul:
		return []value.Value{s.X, s.Y}
	case *ir.InstFMul:
		return []value.Value{s.X, s.Y}
	case *ir.InstUDiv:
		return []value.Value{s.X, s.Y}
	case *ir.InstSDiv:
		return []value.Value{s.X, s.Y}
	case *ir.InstFDiv:
		return []value.Value{s.X, s.Y}
	case *ir.InstURem:
		return []value.Value{s.X, s.Y}
	case *ir.InstSRem:
		return []value.Value{s.X, s.Y}
	case *ir.InstFRem:
		return []value.Value{s.X, s.Y}
	case *ir.InstAnd:
		return []value.Value{s.X, s.Y}
	case *ir.InstOr:
		return []value.Value{s.X, s.Y}
	case *ir.InstXor:
		return []value.Value{s.X, s.Y}
	case *ir.InstShl:
		return []value.Value{s.X, s.Y}
	case *ir.InstLShr:
		return []value.Value{s.X, s.Y}
	case *ir.InstAShr:
		return []value.Value{s.X, s.Y}
	case *ir.InstCall:
		return s.Args
	}
	var ops []value.Value
	for _, op := range inst.Operands() {
		ops = append(ops, *op)
	}
	return ops
}

// useIndex maps every instruction in a function to the instructions that
// consume its result. The IR library keeps no use lists, so the index is
// rebuilt from operand scans per function, before any mutation.
type useIndex struct {
	users  map[ir.Instruction][]ir.Instruction
	parent map[ir.Instruction]*ir.Block
	pos    map[ir.Instruction]int
}

// buildUseIndex scans fn once and records users, parent blocks, and the
// position of every instruction within its block.
func buildUseIndex(fn *ir.Func) *useIndex {
	idx := &useIndex{
		users:  make(map[ir.Instruction][]ir.Instruction),
		parent: make(map[ir.Instruction]*ir.Block),
		pos:    make(map[ir.Instruction]int),
	}
	for _, block := range fn.Blocks {
		for i, inst := range block.Insts {
			idx.parent[inst] = block
			idx.pos[inst] = i
		}
	}
	for _, block := range fn.Blocks {
		for _, inst := range block.Insts {
			for _, op := range inst.Operands() {
				if def, ok := (*op).(ir.Instruction); ok {
					if _, known := idx.parent[def]; known {
						idx.users[def] = append(idx.users[def], inst)
					}
				}
			}
		}
	}
	return idx
}

// usersOf returns the instruction users of s in block position order.
func (idx *useIndex) usersOf(s ir.Instruction) []ir.Instruction {
	return idx.users[s]
}

// instString renders an instruction for diagnostics without forcing local ID
// assignment on the whole function.
func instString(inst ir.Instruction) string {
	_, mnemonic := classify(inst)
	if mnemonic == "" {
		mnemonic = fmt.Sprintf("%T", inst)
	}
	if v, ok := inst.(value.Named); ok && v.Name() != "" {
		return "%" + v.Name() + " = " + mnemonic
	}
	return mnemonic
}

// valueString renders a value for diagnostics.
func valueString(v value.Value) string {
	if v == nil {
		return "<nil>"
	}
	if n, ok := v.(value.Named); ok && n.Name() != "" {
		return "%" + n.Name()
	}
	return fmt.Sprintf("%T", v)
}
