package slp

import (
	"fmt"
	"strings"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// generate rewrites the block: for each scheduled pack it emits the vector
// replacement just before the pack's last original element, extracts lanes
// for any users left outside the pack set, and erases the superseded
// scalars. Packs with an unsupported opcode are skipped without poisoning
// the rest of the block.
func (bp *blockPass) generate() bool {
	changed := false
	for _, p := range bp.scheduledList {
		emitted, ok := bp.emitPack(p)
		if !ok {
			bp.debugf("[codeGen] unsupported opcode in pack %s, skipped", p)
			continue
		}
		insertBefore(bp.block, p.Last(), emitted)
		insertBefore(bp.block, p.Last(), bp.postpack(p))
		bp.erasePack(p)
		changed = true
	}
	return changed
}

// emitPack builds the vector instruction sequence for one pack. The returned
// slice carries any prepack adapters first, then the vector operation
// itself. Reports false for opcodes outside the codegen dispatch set.
func (bp *blockPass) emitPack(p *Pack) ([]ir.Instruction, bool) {
	n := uint64(p.Size())
	cls, mnemonic := p.Class()

	switch cls {
	case opLoad:
		first := p.First().(*ir.InstLoad)
		vecType := types.NewVector(n, first.ElemType)
		vecPtr := ir.NewBitCast(first.Src, types.NewPointer(vecType))
		load := ir.NewLoad(vecType, vecPtr)
		p.vec = load
		bp.debugf("[codeGen] emit vector load x%d", n)
		return []ir.Instruction{vecPtr, load}, true

	case opStore:
		first := p.First().(*ir.InstStore)
		vecType := types.NewVector(n, first.Src.Type())
		val, pre := bp.operandVec(p, 0)
		vecPtr := ir.NewBitCast(first.Dst, types.NewPointer(vecType))
		st := ir.NewStore(val, vecPtr)
		bp.debugf("[codeGen] emit vector store x%d", n)
		return append(pre, vecPtr, st), true

	case opBinary:
		v0, pre0 := bp.operandVec(p, 0)
		v1, pre1 := bp.operandVec(p, 1)
		op := newBinaryInst(mnemonic, v0, v1)
		p.vec = op.(value.Value)
		bp.debugf("[codeGen] emit vector %s x%d", mnemonic, n)
		return append(append(pre0, pre1...), op), true

	case opIntrinsic:
		first := p.First().(*ir.InstCall)
		callee := first.Callee.(*ir.Func)
		vecFn := bp.vectorIntrinsic(callee, p.Size())
		var emitted []ir.Instruction
		args := make([]value.Value, len(first.Args))
		for j := range first.Args {
			arg, pre := bp.operandVec(p, j)
			emitted = append(emitted, pre...)
			args[j] = arg
		}
		call := ir.NewCall(vecFn, args...)
		p.vec = call
		bp.debugf("[codeGen] emit vector call %s", vecFn.GlobalName)
		return append(emitted, call), true
	}
	return nil, false
}

// operandVec assembles the j-th operand vector of a pack. When every lane's
// operand is the corresponding lane of one equally wide upstream pack, that
// pack's vector result is reused directly. Otherwise a prepack adapter is
// built: lanes produced by packs are extracted from their vectors, all other
// lanes (scalar live-ins, constants) are inserted as-is.
func (bp *blockPass) operandVec(p *Pack, j int) (value.Value, []ir.Instruction) {
	n := p.Size()
	defs := make([]value.Value, n)
	for i := 0; i < n; i++ {
		defs[i] = packOperands(p.Nth(i))[j]
	}

	if q := bp.packs.FindPackOf(defs[0]); q != nil && q.Size() == n && q.vec != nil {
		match := true
		for i := range defs {
			if q.LaneOf(defs[i]) != i {
				match = false
				break
			}
		}
		if match {
			return q.vec, nil
		}
	}

	vecType := types.NewVector(uint64(n), defs[0].Type())
	var cur value.Value = constant.NewUndef(vecType)
	var emitted []ir.Instruction
	for i, def := range defs {
		elem := def
		if q := bp.packs.FindPackOf(def); q != nil && q.vec != nil {
			ext := ir.NewExtractElement(q.vec, constant.NewInt(types.I64, int64(q.LaneOf(def))))
			emitted = append(emitted, ext)
			elem = ext
		}
		ins := ir.NewInsertElement(cur, elem, constant.NewInt(types.I64, int64(i)))
		emitted = append(emitted, ins)
		cur = ins
	}
	bp.debugf("[prePack] operand %d of %s assembled from %d lanes", j, p, n)
	return cur, emitted
}

// postpack emits one extract per pack lane that still has users outside the
// pack set, and rewires those users onto the extract. Packed users are
// served by operandVec and need nothing here.
func (bp *blockPass) postpack(p *Pack) []ir.Instruction {
	if p.vec == nil {
		return nil
	}
	var emitted []ir.Instruction
	for lane, d := range p.elems {
		dv, ok := d.(value.Value)
		if !ok {
			continue
		}
		var ext *ir.InstExtractElement
		extract := func() *ir.InstExtractElement {
			if ext == nil {
				ext = ir.NewExtractElement(p.vec, constant.NewInt(types.I64, int64(lane)))
				emitted = append(emitted, ext)
				bp.debugf("[postPack] extract lane %d of %s", lane, p)
			}
			return ext
		}
		for _, u := range bp.uses.usersOf(d) {
			if bp.packs.FindPack(u) != nil {
				continue
			}
			replaceOperand(u, dv, extract())
		}
		for _, blk := range bp.fn.Blocks {
			if blk.Term == nil {
				continue
			}
			for _, op := range blk.Term.Operands() {
				if *op == dv {
					*op = extract()
				}
			}
		}
	}
	return emitted
}

// erasePack removes a pack's scalar instructions from the block. A store
// pack with no dependency of its own is opportunistic: its vector store was
// emitted but the scalars are retained.
func (bp *blockPass) erasePack(p *Pack) {
	if cls, _ := p.Class(); cls == opStore && len(bp.deps[p]) == 0 {
		bp.debugf("[codeGen] retaining scalar stores of dependent-free pack %s", p)
		return
	}
	kill := make(map[ir.Instruction]bool, p.Size())
	for _, e := range p.elems {
		kill[e] = true
	}
	insts := bp.block.Insts[:0]
	for _, inst := range bp.block.Insts {
		if !kill[inst] {
			insts = append(insts, inst)
		}
	}
	bp.block.Insts = insts
}

// insertBefore splices insts into the block immediately ahead of anchor.
func insertBefore(block *ir.Block, anchor ir.Instruction, insts []ir.Instruction) {
	if len(insts) == 0 {
		return
	}
	idx := -1
	for i, inst := range block.Insts {
		if inst == anchor {
			idx = i
			break
		}
	}
	if idx < 0 {
		panic("slp: insertion anchor not in block")
	}
	merged := make([]ir.Instruction, 0, len(block.Insts)+len(insts))
	merged = append(merged, block.Insts[:idx]...)
	merged = append(merged, insts...)
	merged = append(merged, block.Insts[idx:]...)
	block.Insts = merged
}

// replaceOperand rewrites every operand of u equal to old with new.
func replaceOperand(u ir.Instruction, old, new value.Value) {
	for _, op := range u.Operands() {
		if *op == old {
			*op = new
		}
	}
}

// newBinaryInst creates the vector form of a packed binary opcode.
func newBinaryInst(mnemonic string, x, y value.Value) ir.Instruction {
	switch mnemonic {
	case "add":
		return ir.NewAdd(x, y)
	case "fadd":
		return ir.NewFAdd(x, y)
	case "sub":
		return ir.NewSub(x, y)
	case "fsub":
		return ir.NewFSub(x, y)
	case "mul":
		return ir.NewMul(x, y)
	case "fmul":
		return ir.NewFMul(x, y)
	case "udiv":
		return ir.NewUDiv(x, y)
	case "sdiv":
		return ir.NewSDiv(x, y)
	case "fdiv":
		return ir.NewFDiv(x, y)
	case "urem":
		return ir.NewURem(x, y)
	case "srem":
		return ir.NewSRem(x, y)
	case "frem":
		return ir.NewFRem(x, y)
	case "and":
		return ir.NewAnd(x, y)
	case "or":
		return ir.NewOr(x, y)
	case "xor":
		return ir.NewXor(x, y)
	case "shl":
		return ir.NewShl(x, y)
	case "lshr":
		return ir.NewLShr(x, y)
	case "ashr":
		return ir.NewAShr(x, y)
	}
	panic("slp: unknown binary mnemonic " + mnemonic)
}

// vectorIntrinsic finds or declares the n-wide vector form of a scalar
// intrinsic, mangled the LLVM way: llvm.sqrt.f32 becomes llvm.sqrt.v4f32.
func (bp *blockPass) vectorIntrinsic(scalar *ir.Func, n int) *ir.Func {
	sfx := scalarSuffix(scalar.Sig.RetType)
	base := strings.TrimSuffix(scalar.GlobalName, "."+sfx)
	name := fmt.Sprintf("%s.v%d%s", base, n, sfx)

	m := bp.fn.Parent
	for _, f := range m.Funcs {
		if f.GlobalName == name {
			return f
		}
	}
	params := make([]*ir.Param, 0, len(scalar.Sig.Params))
	for _, pt := range scalar.Sig.Params {
		params = append(params, ir.NewParam("", types.NewVector(uint64(n), pt)))
	}
	return m.NewFunc(name, types.NewVector(uint64(n), scalar.Sig.RetType), params...)
}

// scalarSuffix renders the intrinsic type-mangling suffix of a scalar type.
func scalarSuffix(t types.Type) string {
	switch t := t.(type) {
	case *types.FloatType:
		switch t.Kind {
		case types.FloatKindHalf:
			return "f16"
		case types.FloatKindFloat:
			return "f32"
		case types.FloatKindDouble:
			return "f64"
		}
	case *types.IntType:
		return fmt.Sprintf("i%d", t.BitSize)
	}
	return t.String()
}
