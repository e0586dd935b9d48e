// Package interp evaluates the instruction subset the vectorizer reads and
// writes: loads, stores, element pointers, integer and float arithmetic,
// vector insert/extract, pointer bitcasts, and a handful of llvm.*
// intrinsics. Globals are byte-addressed little-endian memory images, so a
// scalar kernel and its vectorized form can be executed against identical
// inputs and compared element for element.
package interp

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/pkg/errors"
)

// Machine executes functions of one module against materialized globals.
type Machine struct {
	mod     *ir.Module
	globals map[string][]byte
}

// NewMachine allocates a zeroed memory image for every global definition.
func NewMachine(mod *ir.Module) *Machine {
	m := &Machine{mod: mod, globals: make(map[string][]byte)}
	for _, g := range mod.Globals {
		m.globals[g.GlobalName] = make([]byte, sizeOf(g.ContentType))
	}
	return m
}

// Global returns the raw memory image of a global.
func (m *Machine) Global(name string) ([]byte, error) {
	mem, ok := m.globals[name]
	if !ok {
		return nil, errors.Errorf("no global named %q", name)
	}
	return mem, nil
}

// WriteInt64s fills a global with 64-bit integers.
func (m *Machine) WriteInt64s(name string, vals []int64) error {
	mem, err := m.Global(name)
	if err != nil {
		return err
	}
	for i, v := range vals {
		binary.LittleEndian.PutUint64(mem[i*8:], uint64(v))
	}
	return nil
}

// ReadInt64s reads n 64-bit integers from a global.
func (m *Machine) ReadInt64s(name string, n int) ([]int64, error) {
	mem, err := m.Global(name)
	if err != nil {
		return nil, err
	}
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(mem[i*8:]))
	}
	return out, nil
}

// WriteInt32s fills a global with 32-bit integers.
func (m *Machine) WriteInt32s(name string, vals []int32) error {
	mem, err := m.Global(name)
	if err != nil {
		return err
	}
	for i, v := range vals {
		binary.LittleEndian.PutUint32(mem[i*4:], uint32(v))
	}
	return nil
}

// ReadInt32s reads n 32-bit integers from a global.
func (m *Machine) ReadInt32s(name string, n int) ([]int32, error) {
	mem, err := m.Global(name)
	if err != nil {
		return nil, err
	}
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(mem[i*4:]))
	}
	return out, nil
}

// WriteFloat32s fills a global with 32-bit floats.
func (m *Machine) WriteFloat32s(name string, vals []float32) error {
	mem, err := m.Global(name)
	if err != nil {
		return err
	}
	for i, v := range vals {
		binary.LittleEndian.PutUint32(mem[i*4:], math.Float32bits(v))
	}
	return nil
}

// ReadFloat32s reads n 32-bit floats from a global.
func (m *Machine) ReadFloat32s(name string, n int) ([]float32, error) {
	mem, err := m.Global(name)
	if err != nil {
		return nil, err
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(mem[i*4:]))
	}
	return out, nil
}

// Run executes the named function with the given arguments.
func (m *Machine) Run(name string, args ...Value) (Value, error) {
	for _, fn := range m.mod.Funcs {
		if fn.Name() == name {
			return m.call(fn, args)
		}
	}
	return NewVoid(), errors.Errorf("no function named %q", name)
}

// call evaluates a defined function body block by block.
func (m *Machine) call(fn *ir.Func, args []Value) (Value, error) {
	if len(fn.Blocks) == 0 {
		return m.intrinsic(fn, args)
	}
	if len(args) != len(fn.Params) {
		return NewVoid(), errors.Errorf("%s: want %d arguments, got %d", fn.Name(), len(fn.Params), len(args))
	}
	env := make(map[value.Value]Value)
	for i, p := range fn.Params {
		env[p] = args[i]
	}

	block := fn.Blocks[0]
	for {
		for _, inst := range block.Insts {
			if err := m.step(inst, env); err != nil {
				return NewVoid(), errors.Wrapf(err, "%s/%s", fn.Name(), block.Name())
			}
		}
		switch term := block.Term.(type) {
		case *ir.TermRet:
			if term.X == nil {
				return NewVoid(), nil
			}
			return m.operand(term.X, env)
		case *ir.TermBr:
			next, ok := term.Target.(*ir.Block)
			if !ok {
				return NewVoid(), errors.Errorf("%s: branch to non-block", fn.Name())
			}
			block = next
		default:
			return NewVoid(), errors.Errorf("%s: unsupported terminator %T", fn.Name(), block.Term)
		}
	}
}

// step executes one instruction, recording its result in env.
func (m *Machine) step(inst ir.Instruction, env map[value.Value]Value) error {
	switch s := inst.(type) {
	case *ir.InstAdd, *ir.InstSub, *ir.InstMul, *ir.InstSDiv, *ir.InstUDiv,
		*ir.InstSRem, *ir.InstURem, *ir.InstAnd, *ir.InstOr, *ir.InstXor,
		*ir.InstShl, *ir.InstLShr, *ir.InstAShr,
		*ir.InstFAdd, *ir.InstFSub, *ir.InstFMul, *ir.InstFDiv, *ir.InstFRem:
		return m.binary(inst, env)

	case *ir.InstLoad:
		ptr, err := m.pointer(s.Src, env)
		if err != nil {
			return err
		}
		v, err := readValue(s.ElemType, ptr)
		if err != nil {
			return err
		}
		env[s] = v
		return nil

	case *ir.InstStore:
		ptr, err := m.pointer(s.Dst, env)
		if err != nil {
			return err
		}
		v, err := m.operand(s.Src, env)
		if err != nil {
			return err
		}
		return writeValue(s.Src.Type(), ptr, v)

	case *ir.InstGetElementPtr:
		base, err := m.pointer(s.Src, env)
		if err != nil {
			return err
		}
		off := base.Off
		cur := s.ElemType
		for i, idx := range s.Indices {
			iv, err := m.operand(idx, env)
			if err != nil {
				return err
			}
			if i == 0 {
				off += iv.Int * sizeOf(cur)
				continue
			}
			arr, ok := cur.(*types.ArrayType)
			if !ok {
				return errors.Errorf("gep steps into non-array type %s", cur)
			}
			cur = arr.ElemType
			off += iv.Int * sizeOf(cur)
		}
		env[s] = NewPointer(base.Mem, off)
		return nil

	case *ir.InstBitCast:
		v, err := m.operand(s.From, env)
		if err != nil {
			return err
		}
		env[s] = v
		return nil

	case *ir.InstInsertElement:
		vec, err := m.operand(s.X, env)
		if err != nil {
			return err
		}
		elem, err := m.operand(s.Elem, env)
		if err != nil {
			return err
		}
		idx, err := m.operand(s.Index, env)
		if err != nil {
			return err
		}
		lanes := make([]Value, len(vec.Elems))
		copy(lanes, vec.Elems)
		if idx.Int < 0 || idx.Int >= int64(len(lanes)) {
			return errors.Errorf("insertelement lane %d out of range", idx.Int)
		}
		lanes[idx.Int] = elem
		env[s] = NewVector(lanes)
		return nil

	case *ir.InstExtractElement:
		vec, err := m.operand(s.X, env)
		if err != nil {
			return err
		}
		idx, err := m.operand(s.Index, env)
		if err != nil {
			return err
		}
		if idx.Int < 0 || idx.Int >= int64(len(vec.Elems)) {
			return errors.Errorf("extractelement lane %d out of range", idx.Int)
		}
		env[s] = vec.Elems[idx.Int]
		return nil

	case *ir.InstCall:
		callee, ok := s.Callee.(*ir.Func)
		if !ok {
			return errors.Errorf("call through non-function callee %T", s.Callee)
		}
		args := make([]Value, len(s.Args))
		for i, a := range s.Args {
			v, err := m.operand(a, env)
			if err != nil {
				return err
			}
			args[i] = v
		}
		ret, err := m.call(callee, args)
		if err != nil {
			return err
		}
		env[s] = ret
		return nil
	}
	return errors.Errorf("unsupported instruction %T", inst)
}

// binary evaluates a scalar or lane-wise binary operation.
func (m *Machine) binary(inst ir.Instruction, env map[value.Value]Value) error {
	ops := inst.Operands()
	x, err := m.operand(*ops[0], env)
	if err != nil {
		return err
	}
	y, err := m.operand(*ops[1], env)
	if err != nil {
		return err
	}
	val, ok := inst.(value.Value)
	if !ok {
		return errors.Errorf("binary instruction %T produces no value", inst)
	}
	res, err := applyBinary(inst, val.Type(), x, y)
	if err != nil {
		return err
	}
	env[val] = res
	return nil
}

// applyBinary dispatches one binary opcode over scalars or vectors.
func applyBinary(inst ir.Instruction, t types.Type, x, y Value) (Value, error) {
	if vt, ok := t.(*types.VectorType); ok {
		if len(x.Elems) != len(y.Elems) {
			return NewVoid(), errors.Errorf("vector width mismatch %d vs %d", len(x.Elems), len(y.Elems))
		}
		lanes := make([]Value, len(x.Elems))
		for i := range lanes {
			v, err := applyBinary(inst, vt.ElemType, x.Elems[i], y.Elems[i])
			if err != nil {
				return NewVoid(), err
			}
			lanes[i] = v
		}
		return NewVector(lanes), nil
	}

	switch inst.(type) {
	case *ir.InstAdd:
		return NewInt(x.Int + y.Int), nil
	case *ir.InstSub:
		return NewInt(x.Int - y.Int), nil
	case *ir.InstMul:
		return NewInt(x.Int * y.Int), nil
	case *ir.InstSDiv, *ir.InstUDiv:
		if y.Int == 0 {
			return NewVoid(), errors.New("integer division by zero")
		}
		return NewInt(x.Int / y.Int), nil
	case *ir.InstSRem, *ir.InstURem:
		if y.Int == 0 {
			return NewVoid(), errors.New("integer remainder by zero")
		}
		return NewInt(x.Int % y.Int), nil
	case *ir.InstAnd:
		return NewInt(x.Int & y.Int), nil
	case *ir.InstOr:
		return NewInt(x.Int | y.Int), nil
	case *ir.InstXor:
		return NewInt(x.Int ^ y.Int), nil
	case *ir.InstShl:
		return NewInt(x.Int << uint64(y.Int)), nil
	case *ir.InstLShr:
		return NewInt(int64(uint64(x.Int) >> uint64(y.Int))), nil
	case *ir.InstAShr:
		return NewInt(x.Int >> uint64(y.Int)), nil
	case *ir.InstFAdd:
		return foldFloat(t, x.Float+y.Float), nil
	case *ir.InstFSub:
		return foldFloat(t, x.Float-y.Float), nil
	case *ir.InstFMul:
		return foldFloat(t, x.Float*y.Float), nil
	case *ir.InstFDiv:
		return foldFloat(t, x.Float/y.Float), nil
	case *ir.InstFRem:
		return foldFloat(t, math.Mod(x.Float, y.Float)), nil
	}
	return NewVoid(), errors.Errorf("unsupported binary instruction %T", inst)
}

// foldFloat rounds through float32 when the IR type is single precision, so
// interpretation matches what stored-and-reloaded values would be.
func foldFloat(t types.Type, v float64) Value {
	if ft, ok := t.(*types.FloatType); ok && ft.Kind == types.FloatKindFloat {
		return NewFloat(float64(float32(v)))
	}
	return NewFloat(v)
}

// intrinsic evaluates the llvm.* declarations the kernels use, scalar or
// vector forms alike.
func (m *Machine) intrinsic(fn *ir.Func, args []Value) (Value, error) {
	name := fn.GlobalName
	lanewise := func(f func([]Value) Value) (Value, error) {
		if len(args) > 0 && args[0].Kind == KindVector {
			lanes := make([]Value, len(args[0].Elems))
			for i := range lanes {
				lane := make([]Value, len(args))
				for j, a := range args {
					lane[j] = a.Elems[i]
				}
				lanes[i] = f(lane)
			}
			return NewVector(lanes), nil
		}
		return f(args), nil
	}
	switch {
	case strings.HasPrefix(name, "llvm.sqrt."):
		return lanewise(func(a []Value) Value { return NewFloat(math.Sqrt(a[0].Float)) })
	case strings.HasPrefix(name, "llvm.fabs."):
		return lanewise(func(a []Value) Value { return NewFloat(math.Abs(a[0].Float)) })
	case strings.HasPrefix(name, "llvm.fmuladd."):
		return lanewise(func(a []Value) Value { return NewFloat(a[0].Float*a[1].Float + a[2].Float) })
	}
	return NewVoid(), errors.Errorf("call to undefined function %q", name)
}

// operand resolves a value reference: constants, globals, or prior results.
func (m *Machine) operand(v value.Value, env map[value.Value]Value) (Value, error) {
	switch c := v.(type) {
	case *constant.Int:
		return NewInt(c.X.Int64()), nil
	case *constant.Float:
		f, _ := c.X.Float64()
		return NewFloat(f), nil
	case *constant.Undef:
		return zeroValue(c.Typ), nil
	case *constant.ZeroInitializer:
		return zeroValue(c.Typ), nil
	case *ir.Global:
		mem, err := m.Global(c.GlobalName)
		if err != nil {
			return NewVoid(), err
		}
		return NewPointer(mem, 0), nil
	}
	if res, ok := env[v]; ok {
		return res, nil
	}
	return NewVoid(), errors.Errorf("no value bound for %s", v.Ident())
}

// pointer resolves an operand that must be a pointer.
func (m *Machine) pointer(v value.Value, env map[value.Value]Value) (*Pointer, error) {
	res, err := m.operand(v, env)
	if err != nil {
		return nil, err
	}
	if res.Kind != KindPointer {
		return nil, errors.Errorf("%s is not a pointer", v.Ident())
	}
	return res.Ptr, nil
}

// zeroValue builds the zero of a type, vectors included.
func zeroValue(t types.Type) Value {
	switch t := t.(type) {
	case *types.IntType:
		return NewInt(0)
	case *types.FloatType:
		return NewFloat(0)
	case *types.VectorType:
		lanes := make([]Value, t.Len)
		for i := range lanes {
			lanes[i] = zeroValue(t.ElemType)
		}
		return NewVector(lanes)
	}
	return NewVoid()
}

// readValue decodes a scalar or vector of the given type at ptr.
func readValue(t types.Type, ptr *Pointer) (Value, error) {
	switch t := t.(type) {
	case *types.IntType:
		return readInt(t, ptr)
	case *types.FloatType:
		return readFloat(t, ptr)
	case *types.VectorType:
		lanes := make([]Value, t.Len)
		step := sizeOf(t.ElemType)
		for i := range lanes {
			v, err := readValue(t.ElemType, &Pointer{Mem: ptr.Mem, Off: ptr.Off + int64(i)*step})
			if err != nil {
				return NewVoid(), err
			}
			lanes[i] = v
		}
		return NewVector(lanes), nil
	}
	return NewVoid(), errors.Errorf("load of unsupported type %s", t)
}

// writeValue encodes a scalar or vector of the given type at ptr.
func writeValue(t types.Type, ptr *Pointer, v Value) error {
	switch t := t.(type) {
	case *types.IntType:
		return writeInt(t, ptr, v.Int)
	case *types.FloatType:
		return writeFloat(t, ptr, v.Float)
	case *types.VectorType:
		step := sizeOf(t.ElemType)
		if int64(len(v.Elems)) != int64(t.Len) {
			return errors.Errorf("store of %d lanes into %s", len(v.Elems), t)
		}
		for i, lane := range v.Elems {
			if err := writeValue(t.ElemType, &Pointer{Mem: ptr.Mem, Off: ptr.Off + int64(i)*step}, lane); err != nil {
				return err
			}
		}
		return nil
	}
	return errors.Errorf("store of unsupported type %s", t)
}

func readInt(t *types.IntType, ptr *Pointer) (Value, error) {
	if err := checkBounds(ptr, int64(t.BitSize)/8); err != nil {
		return NewVoid(), err
	}
	switch t.BitSize {
	case 8:
		return NewInt(int64(int8(ptr.Mem[ptr.Off]))), nil
	case 16:
		return NewInt(int64(int16(binary.LittleEndian.Uint16(ptr.Mem[ptr.Off:])))), nil
	case 32:
		return NewInt(int64(int32(binary.LittleEndian.Uint32(ptr.Mem[ptr.Off:])))), nil
	case 64:
		return NewInt(int64(binary.LittleEndian.Uint64(ptr.Mem[ptr.Off:]))), nil
	}
	return NewVoid(), errors.Errorf("load of i%d", t.BitSize)
}

func writeInt(t *types.IntType, ptr *Pointer, v int64) error {
	if err := checkBounds(ptr, int64(t.BitSize)/8); err != nil {
		return err
	}
	switch t.BitSize {
	case 8:
		ptr.Mem[ptr.Off] = byte(v)
	case 16:
		binary.LittleEndian.PutUint16(ptr.Mem[ptr.Off:], uint16(v))
	case 32:
		binary.LittleEndian.PutUint32(ptr.Mem[ptr.Off:], uint32(v))
	case 64:
		binary.LittleEndian.PutUint64(ptr.Mem[ptr.Off:], uint64(v))
	default:
		return errors.Errorf("store of i%d", t.BitSize)
	}
	return nil
}

func readFloat(t *types.FloatType, ptr *Pointer) (Value, error) {
	if err := checkBounds(ptr, sizeOf(t)); err != nil {
		return NewVoid(), err
	}
	switch t.Kind {
	case types.FloatKindFloat:
		return NewFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(ptr.Mem[ptr.Off:])))), nil
	case types.FloatKindDouble:
		return NewFloat(math.Float64frombits(binary.LittleEndian.Uint64(ptr.Mem[ptr.Off:]))), nil
	}
	return NewVoid(), errors.Errorf("load of unsupported float kind")
}

func writeFloat(t *types.FloatType, ptr *Pointer, v float64) error {
	if err := checkBounds(ptr, sizeOf(t)); err != nil {
		return err
	}
	switch t.Kind {
	case types.FloatKindFloat:
		binary.LittleEndian.PutUint32(ptr.Mem[ptr.Off:], math.Float32bits(float32(v)))
	case types.FloatKindDouble:
		binary.LittleEndian.PutUint64(ptr.Mem[ptr.Off:], math.Float64bits(v))
	default:
		return errors.Errorf("store of unsupported float kind")
	}
	return nil
}

// checkBounds validates that n bytes at ptr stay inside the memory image.
func checkBounds(ptr *Pointer, n int64) error {
	if ptr.Off < 0 || ptr.Off+n > int64(len(ptr.Mem)) {
		return errors.Errorf("access of %d bytes at offset %d exceeds image of %d bytes", n, ptr.Off, len(ptr.Mem))
	}
	return nil
}

// sizeOf returns the byte size of the types the machine models.
func sizeOf(t types.Type) int64 {
	switch t := t.(type) {
	case *types.IntType:
		return int64(t.BitSize+7) / 8
	case *types.FloatType:
		switch t.Kind {
		case types.FloatKindFloat:
			return 4
		case types.FloatKindDouble:
			return 8
		}
		return 8
	case *types.PointerType:
		return 8
	case *types.ArrayType:
		return int64(t.Len) * sizeOf(t.ElemType)
	case *types.VectorType:
		return int64(t.Len) * sizeOf(t.ElemType)
	}
	return 8
}
