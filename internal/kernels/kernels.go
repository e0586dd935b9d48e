// Package kernels builds the hand-unrolled compute kernels the vectorizer is
// exercised against: each is a small module whose entry block is the classic
// SLP shape of four isomorphic statements over adjacent array elements.
package kernels

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/pkg/errors"
)

// unroll is the unroll factor of every kernel body.
const unroll = 4

// arrayLen is the element count of the kernel arrays.
const arrayLen = 32

// Kernel is a named builder for one test module.
type Kernel struct {
	Name        string
	Description string
	Build       func() *ir.Module
}

// All returns the built-in kernels.
func All() []Kernel {
	return []Kernel{
		{"foo", "A[i+k] = A[i+k] * A[i+k], self multiply over i64", Foo},
		{"axpy", "Z[i+k] = a*X[i+k] + Y[i+k] with a scalar live-in", AXPY},
		{"dotprod", "tmp[i+k] = A[i+k] * B[i+k], scalar tail reduction", Dotprod},
		{"memcopy", "B[i+k] = A[i+k], loads feeding stores directly", Memcopy},
		{"scalars", "e = a*a; f = b*b; ... — no memory references", Scalars},
		{"mixed", "e = a * A[i+k] — scalar lanes beside a load pack", MixedScalars},
		{"hetero", "C[i+k] = A[i+k+1] + B[i+k+2] over three arrays", HeteroBases},
		{"overlap", "A[i+k] = A[i+k+4] + A[i+k], self-overlapping ranges", SelfOverlap},
		{"crosschains", "two multiply chains with mutual pack dependence", CrossChains},
		{"sqrt", "B[i+k] = llvm.sqrt.f32(A[i+k]) intrinsic calls", Sqrt},
	}
}

// Build constructs the named kernel module.
func Build(name string) (*ir.Module, error) {
	for _, k := range All() {
		if k.Name == name {
			return k.Build(), nil
		}
	}
	return nil, errors.Errorf("unknown kernel %q", name)
}

// newArray defines a zero-initialized global array of arrayLen elements.
func newArray(m *ir.Module, name string, elem types.Type) (*ir.Global, *types.ArrayType) {
	arr := types.NewArray(arrayLen, elem)
	g := m.NewGlobalDef(name, constant.NewZeroInitializer(arr))
	return g, arr
}

// elemPtr emits &base[iv + k], with the add elided for k == 0 so the bare
// induction variable shape is exercised too.
func elemPtr(b *ir.Block, arr *types.ArrayType, base *ir.Global, iv value.Value, k int64) *ir.InstGetElementPtr {
	idx := iv
	if k != 0 {
		idx = b.NewAdd(iv, constant.NewInt(types.I64, k))
	}
	return b.NewGetElementPtr(arr, base, constant.NewInt(types.I64, 0), idx)
}

// Foo is the self-multiply kernel: one load pack consumed twice by a
// multiply pack whose result feeds the store pack.
func Foo() *ir.Module {
	m := ir.NewModule()
	a, arr := newArray(m, "A", types.I64)

	iv := ir.NewParam("i", types.I64)
	fn := m.NewFunc("foo", types.Void, iv)
	entry := fn.NewBlock("entry")
	for k := int64(0); k < unroll; k++ {
		ptr := elemPtr(entry, arr, a, iv, k)
		load := entry.NewLoad(types.I64, ptr)
		mul := entry.NewMul(load, load)
		entry.NewStore(mul, ptr)
	}
	entry.NewRet(nil)
	return m
}

// AXPY multiplies a scalar live-in against a load pack and adds a second
// load pack, so the scalar operand forces a prepack splat.
func AXPY() *ir.Module {
	m := ir.NewModule()
	x, arr := newArray(m, "X", types.Float)
	y, _ := newArray(m, "Y", types.Float)
	z, _ := newArray(m, "Z", types.Float)

	a := ir.NewParam("a", types.Float)
	iv := ir.NewParam("i", types.I64)
	fn := m.NewFunc("axpy", types.Void, a, iv)
	entry := fn.NewBlock("entry")
	for k := int64(0); k < unroll; k++ {
		lx := entry.NewLoad(types.Float, elemPtr(entry, arr, x, iv, k))
		mul := entry.NewFMul(a, lx)
		ly := entry.NewLoad(types.Float, elemPtr(entry, arr, y, iv, k))
		sum := entry.NewFAdd(mul, ly)
		entry.NewStore(sum, elemPtr(entry, arr, z, iv, k))
	}
	entry.NewRet(nil)
	return m
}

// Dotprod stores the partial products and reduces them with a scalar add
// chain; the chain is dependent lane to lane and must stay scalar.
func Dotprod() *ir.Module {
	m := ir.NewModule()
	a, arr := newArray(m, "A", types.Float)
	b, _ := newArray(m, "B", types.Float)
	tmp, _ := newArray(m, "tmp", types.Float)

	iv := ir.NewParam("i", types.I64)
	fn := m.NewFunc("dotprod", types.Float, iv)
	entry := fn.NewBlock("entry")
	var muls []value.Value
	for k := int64(0); k < unroll; k++ {
		la := entry.NewLoad(types.Float, elemPtr(entry, arr, a, iv, k))
		lb := entry.NewLoad(types.Float, elemPtr(entry, arr, b, iv, k))
		mul := entry.NewFMul(la, lb)
		entry.NewStore(mul, elemPtr(entry, arr, tmp, iv, k))
		muls = append(muls, mul)
	}
	sum := muls[0]
	for _, mv := range muls[1:] {
		sum = entry.NewFAdd(sum, mv)
	}
	entry.NewRet(sum)
	return m
}

// Memcopy moves four adjacent elements; the store pack reuses the load
// pack's vector with no adapters at all.
func Memcopy() *ir.Module {
	m := ir.NewModule()
	a, arr := newArray(m, "A", types.I64)
	b, _ := newArray(m, "B", types.I64)

	iv := ir.NewParam("i", types.I64)
	fn := m.NewFunc("memcopy", types.Void, iv)
	entry := fn.NewBlock("entry")
	for k := int64(0); k < unroll; k++ {
		load := entry.NewLoad(types.I64, elemPtr(entry, arr, a, iv, k))
		entry.NewStore(load, elemPtr(entry, arr, b, iv, k))
	}
	entry.NewRet(nil)
	return m
}

// Scalars is pure register arithmetic: isomorphic and independent, but with
// no memory references there is nothing to seed from.
func Scalars() *ir.Module {
	m := ir.NewModule()
	a := ir.NewParam("a", types.I32)
	b := ir.NewParam("b", types.I32)
	c := ir.NewParam("c", types.I32)
	d := ir.NewParam("d", types.I32)
	fn := m.NewFunc("scalars", types.I32, a, b, c, d)
	entry := fn.NewBlock("entry")
	e := entry.NewMul(a, a)
	f := entry.NewMul(b, b)
	g := entry.NewMul(c, c)
	h := entry.NewMul(d, d)
	sum := entry.NewAdd(entry.NewAdd(entry.NewAdd(e, f), g), h)
	entry.NewRet(sum)
	return m
}

// MixedScalars multiplies four distinct scalar live-ins against a load
// pack: operand 0 of the multiply pack needs a prepack, operand 1 reuses
// the load vector.
func MixedScalars() *ir.Module {
	m := ir.NewModule()
	arrA, arr := newArray(m, "A", types.I32)

	a := ir.NewParam("a", types.I32)
	b := ir.NewParam("b", types.I32)
	c := ir.NewParam("c", types.I32)
	d := ir.NewParam("d", types.I32)
	iv := ir.NewParam("i", types.I64)
	fn := m.NewFunc("mixed", types.I32, a, b, c, d, iv)
	entry := fn.NewBlock("entry")
	scalars := []value.Value{a, b, c, d}
	var prods []value.Value
	for k := int64(0); k < unroll; k++ {
		load := entry.NewLoad(types.I32, elemPtr(entry, arr, arrA, iv, k))
		prods = append(prods, entry.NewMul(scalars[k], load))
	}
	sum := prods[0]
	for _, p := range prods[1:] {
		sum = entry.NewAdd(sum, p)
	}
	entry.NewRet(sum)
	return m
}

// HeteroBases adds two differently offset load packs into a third array;
// every operand vector comes from an upstream pack.
func HeteroBases() *ir.Module {
	m := ir.NewModule()
	a, arr := newArray(m, "A", types.I32)
	b, _ := newArray(m, "B", types.I32)
	c, _ := newArray(m, "C", types.I32)

	iv := ir.NewParam("i", types.I64)
	fn := m.NewFunc("hetero", types.Void, iv)
	entry := fn.NewBlock("entry")
	for k := int64(0); k < unroll; k++ {
		la := entry.NewLoad(types.I32, elemPtr(entry, arr, a, iv, k+1))
		lb := entry.NewLoad(types.I32, elemPtr(entry, arr, b, iv, k+2))
		sum := entry.NewAdd(la, lb)
		entry.NewStore(sum, elemPtr(entry, arr, c, iv, k))
	}
	entry.NewRet(nil)
	return m
}

// SelfOverlap reads an eight element window while writing the low half, so
// the loads chain into one pack twice as wide as its consumer.
func SelfOverlap() *ir.Module {
	m := ir.NewModule()
	a, arr := newArray(m, "A", types.I64)

	iv := ir.NewParam("i", types.I64)
	fn := m.NewFunc("overlap", types.Void, iv)
	entry := fn.NewBlock("entry")
	for k := int64(0); k < unroll; k++ {
		hi := entry.NewLoad(types.I64, elemPtr(entry, arr, a, iv, k+unroll))
		lo := entry.NewLoad(types.I64, elemPtr(entry, arr, a, iv, k))
		sum := entry.NewAdd(hi, lo)
		entry.NewStore(sum, elemPtr(entry, arr, a, iv, k))
	}
	entry.NewRet(nil)
	return m
}

// CrossChains interleaves two multiply chains so that each resulting pack
// consumes a value produced by the other: the pack-level dependency graph
// is cyclic and the block must be left untouched.
func CrossChains() *ir.Module {
	m := ir.NewModule()
	c, arr := newArray(m, "C", types.I32)
	d, _ := newArray(m, "D", types.I32)

	x := ir.NewParam("x", types.I32)
	y := ir.NewParam("y", types.I32)
	z := ir.NewParam("z", types.I32)
	w := ir.NewParam("w", types.I32)
	iv := ir.NewParam("i", types.I64)
	fn := m.NewFunc("crosschains", types.Void, x, y, z, w, iv)
	entry := fn.NewBlock("entry")

	p1 := entry.NewMul(x, y)
	q2 := entry.NewMul(z, w)
	q1 := entry.NewMul(p1, x)
	p2 := entry.NewMul(q2, y)
	entry.NewStore(p1, elemPtr(entry, arr, c, iv, 0))
	entry.NewStore(p2, elemPtr(entry, arr, c, iv, 1))
	entry.NewStore(q1, elemPtr(entry, arr, d, iv, 0))
	entry.NewStore(q2, elemPtr(entry, arr, d, iv, 1))
	entry.NewRet(nil)
	return m
}

// Sqrt maps a unary intrinsic over a load pack: the call pack becomes one
// call to the vector form of the intrinsic.
func Sqrt() *ir.Module {
	m := ir.NewModule()
	a, arr := newArray(m, "A", types.Float)
	b, _ := newArray(m, "B", types.Float)
	sqrt := m.NewFunc("llvm.sqrt.f32", types.Float, ir.NewParam("x", types.Float))

	iv := ir.NewParam("i", types.I64)
	fn := m.NewFunc("sqrtk", types.Void, iv)
	entry := fn.NewBlock("entry")
	for k := int64(0); k < unroll; k++ {
		load := entry.NewLoad(types.Float, elemPtr(entry, arr, a, iv, k))
		call := entry.NewCall(sqrt, load)
		entry.NewStore(call, elemPtr(entry, arr, b, iv, k))
	}
	entry.NewRet(nil)
	return m
}
