package slp

import (
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/slpvec/internal/interp"
	"github.com/dshills/slpvec/internal/kernels"
	"github.com/dshills/slpvec/internal/passes"
	"github.com/dshills/slpvec/internal/verify"
)

// vectorize runs the full pipeline (SLP then DCE) on a kernel and verifies
// the result structurally.
func vectorize(t *testing.T, name string) *ir.Module {
	t.Helper()
	m, err := kernels.Build(name)
	require.NoError(t, err)
	changed := passes.NewManager().Add(New()).Add(passes.NewDCE()).RunOnModule(m)
	require.True(t, changed, "kernel %s was not transformed", name)
	require.NoError(t, verify.New().VerifyModule(m))
	return m
}

// countInsts tallies instructions of the entry block of fn by example type.
func countInsts(m *ir.Module, fnName string) map[string]int {
	counts := make(map[string]int)
	for _, fn := range m.Funcs {
		if fn.Name() != fnName {
			continue
		}
		for _, inst := range fn.Blocks[0].Insts {
			switch inst.(type) {
			case *ir.InstLoad:
				counts["load"]++
			case *ir.InstStore:
				counts["store"]++
			case *ir.InstMul:
				counts["mul"]++
			case *ir.InstFMul:
				counts["fmul"]++
			case *ir.InstAdd:
				counts["add"]++
			case *ir.InstFAdd:
				counts["fadd"]++
			case *ir.InstBitCast:
				counts["bitcast"]++
			case *ir.InstInsertElement:
				counts["insertelement"]++
			case *ir.InstExtractElement:
				counts["extractelement"]++
			case *ir.InstCall:
				counts["call"]++
			}
		}
	}
	return counts
}

func entryBlock(t *testing.T, m *ir.Module, fnName string) *ir.Block {
	t.Helper()
	for _, fn := range m.Funcs {
		if fn.Name() == fnName {
			return fn.Blocks[0]
		}
	}
	t.Fatalf("no function %q", fnName)
	return nil
}

func TestFooStructure(t *testing.T) {
	m := vectorize(t, "foo")
	counts := countInsts(m, "foo")

	assert.Equal(t, 1, counts["load"], "one vector load")
	assert.Equal(t, 1, counts["mul"], "one vector multiply")
	assert.Equal(t, 1, counts["store"], "one vector store")
	assert.Equal(t, 2, counts["bitcast"])
	assert.Equal(t, 0, counts["insertelement"], "upstream reuse needs no prepack")
	assert.Equal(t, 0, counts["extractelement"], "no pack-external users")

	// The store's value operand is the multiply's vector result directly.
	block := entryBlock(t, m, "foo")
	var mul *ir.InstMul
	var store *ir.InstStore
	for _, inst := range block.Insts {
		switch s := inst.(type) {
		case *ir.InstMul:
			mul = s
		case *ir.InstStore:
			store = s
		}
	}
	require.NotNil(t, mul)
	require.NotNil(t, store)
	assert.Same(t, mul, store.Src)

	vecType, ok := mul.Type().(*types.VectorType)
	require.True(t, ok)
	assert.Equal(t, uint64(4), vecType.Len)
	assert.True(t, vecType.ElemType.Equal(types.I64))
}

func TestFooRoundTrip(t *testing.T) {
	scalar := interp.NewMachine(kernels.Foo())
	vector := interp.NewMachine(vectorize(t, "foo"))

	vals := make([]int64, 32)
	for i := range vals {
		vals[i] = int64(i) - 7
	}
	require.NoError(t, scalar.WriteInt64s("A", vals))
	require.NoError(t, vector.WriteInt64s("A", vals))

	_, err := scalar.Run("foo", interp.NewInt(5))
	require.NoError(t, err)
	_, err = vector.Run("foo", interp.NewInt(5))
	require.NoError(t, err)

	want, err := scalar.ReadInt64s("A", 32)
	require.NoError(t, err)
	got, err := vector.ReadInt64s("A", 32)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAXPYStructureAndRoundTrip(t *testing.T) {
	m := vectorize(t, "axpy")
	counts := countInsts(m, "axpy")

	assert.Equal(t, 2, counts["load"], "vector loads of X and Y")
	assert.Equal(t, 1, counts["fmul"])
	assert.Equal(t, 1, counts["fadd"])
	assert.Equal(t, 1, counts["store"])
	assert.Equal(t, 4, counts["insertelement"], "the scalar a is splatted by prepack")
	assert.Equal(t, 0, counts["extractelement"])

	// Every prepack lane inserts the live-in parameter itself.
	block := entryBlock(t, m, "axpy")
	for _, inst := range block.Insts {
		if ins, ok := inst.(*ir.InstInsertElement); ok {
			param, isParam := ins.Elem.(*ir.Param)
			require.True(t, isParam)
			assert.Equal(t, "a", param.Name())
		}
	}

	scalar := interp.NewMachine(kernels.AXPY())
	vector := interp.NewMachine(m)
	xs := make([]float32, 32)
	ys := make([]float32, 32)
	for i := range xs {
		xs[i] = float32(i) * 0.5
		ys[i] = float32(32 - i)
	}
	for _, mach := range []*interp.Machine{scalar, vector} {
		require.NoError(t, mach.WriteFloat32s("X", xs))
		require.NoError(t, mach.WriteFloat32s("Y", ys))
	}
	_, err := scalar.Run("axpy", interp.NewFloat(2.5), interp.NewInt(8))
	require.NoError(t, err)
	_, err = vector.Run("axpy", interp.NewFloat(2.5), interp.NewInt(8))
	require.NoError(t, err)

	want, err := scalar.ReadFloat32s("Z", 32)
	require.NoError(t, err)
	got, err := vector.ReadFloat32s("Z", 32)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDotprodRoundTrip(t *testing.T) {
	m := vectorize(t, "dotprod")
	counts := countInsts(m, "dotprod")

	assert.Equal(t, 2, counts["load"])
	assert.Equal(t, 1, counts["store"])
	assert.Equal(t, 1, counts["fmul"])
	assert.Equal(t, 4, counts["extractelement"], "the scalar reduction reads lanes")
	assert.Equal(t, 3, counts["fadd"], "the reduction chain stays scalar")

	scalar := interp.NewMachine(kernels.Dotprod())
	vector := interp.NewMachine(m)
	as := make([]float32, 32)
	bs := make([]float32, 32)
	for i := range as {
		as[i] = float32(i + 1)
		bs[i] = float32(64 - i)
	}
	for _, mach := range []*interp.Machine{scalar, vector} {
		require.NoError(t, mach.WriteFloat32s("A", as))
		require.NoError(t, mach.WriteFloat32s("B", bs))
	}
	wantRet, err := scalar.Run("dotprod", interp.NewInt(4))
	require.NoError(t, err)
	gotRet, err := vector.Run("dotprod", interp.NewInt(4))
	require.NoError(t, err)
	assert.Equal(t, wantRet.Float, gotRet.Float)

	want, err := scalar.ReadFloat32s("tmp", 32)
	require.NoError(t, err)
	got, err := vector.ReadFloat32s("tmp", 32)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestMemcopyRoundTrip(t *testing.T) {
	m := vectorize(t, "memcopy")
	counts := countInsts(m, "memcopy")
	assert.Equal(t, 1, counts["load"])
	assert.Equal(t, 1, counts["store"])
	assert.Equal(t, 0, counts["insertelement"])

	scalar := interp.NewMachine(kernels.Memcopy())
	vector := interp.NewMachine(m)
	vals := make([]int64, 32)
	for i := range vals {
		vals[i] = int64(i * 11)
	}
	require.NoError(t, scalar.WriteInt64s("A", vals))
	require.NoError(t, vector.WriteInt64s("A", vals))
	_, err := scalar.Run("memcopy", interp.NewInt(12))
	require.NoError(t, err)
	_, err = vector.Run("memcopy", interp.NewInt(12))
	require.NoError(t, err)

	want, err := scalar.ReadInt64s("B", 32)
	require.NoError(t, err)
	got, err := vector.ReadInt64s("B", 32)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestHeteroBasesNoAdapters(t *testing.T) {
	m := vectorize(t, "hetero")
	counts := countInsts(m, "hetero")

	assert.Equal(t, 2, counts["load"])
	assert.Equal(t, 3, counts["add"], "the vector add plus the i+1 and i+2 index adds behind the A and B vector pointers")
	assert.Equal(t, 1, counts["store"])
	assert.Equal(t, 0, counts["insertelement"], "both operand vectors reuse upstream packs")
	assert.Equal(t, 0, counts["extractelement"])

	scalar := interp.NewMachine(kernels.HeteroBases())
	vector := interp.NewMachine(m)
	as := make([]int32, 32)
	bs := make([]int32, 32)
	for i := range as {
		as[i] = int32(i * 3)
		bs[i] = int32(100 - i)
	}
	for _, mach := range []*interp.Machine{scalar, vector} {
		require.NoError(t, mach.WriteInt32s("A", as))
		require.NoError(t, mach.WriteInt32s("B", bs))
	}
	_, err := scalar.Run("hetero", interp.NewInt(6))
	require.NoError(t, err)
	_, err = vector.Run("hetero", interp.NewInt(6))
	require.NoError(t, err)

	want, err := scalar.ReadInt32s("C", 32)
	require.NoError(t, err)
	got, err := vector.ReadInt32s("C", 32)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestMixedScalarsPrepackAndPostpack(t *testing.T) {
	m := vectorize(t, "mixed")
	counts := countInsts(m, "mixed")

	assert.Equal(t, 1, counts["load"])
	assert.Equal(t, 1, counts["mul"])
	assert.Equal(t, 4, counts["insertelement"], "scalar lanes come in through prepack")
	assert.Equal(t, 4, counts["extractelement"], "the reduction reads lanes back out")

	scalar := interp.NewMachine(kernels.MixedScalars())
	vector := interp.NewMachine(m)
	as := make([]int32, 32)
	for i := range as {
		as[i] = int32(i + 2)
	}
	require.NoError(t, scalar.WriteInt32s("A", as))
	require.NoError(t, vector.WriteInt32s("A", as))

	args := []interp.Value{
		interp.NewInt(3), interp.NewInt(-4), interp.NewInt(5), interp.NewInt(6), interp.NewInt(9),
	}
	want, err := scalar.Run("mixed", args...)
	require.NoError(t, err)
	got, err := vector.Run("mixed", args...)
	require.NoError(t, err)
	assert.Equal(t, want.Int, got.Int)
}

func TestSqrtVectorIntrinsic(t *testing.T) {
	m := vectorize(t, "sqrt")

	var vecSqrt *ir.Func
	for _, fn := range m.Funcs {
		if fn.GlobalName == "llvm.sqrt.v4f32" {
			vecSqrt = fn
		}
	}
	require.NotNil(t, vecSqrt, "vector intrinsic was not declared")
	require.Empty(t, vecSqrt.Blocks)

	block := entryBlock(t, m, "sqrtk")
	calls := 0
	for _, inst := range block.Insts {
		if call, ok := inst.(*ir.InstCall); ok {
			calls++
			assert.Same(t, vecSqrt, call.Callee)
		}
	}
	assert.Equal(t, 1, calls)

	scalar := interp.NewMachine(kernels.Sqrt())
	vector := interp.NewMachine(m)
	as := make([]float32, 32)
	for i := range as {
		as[i] = float32(i * i)
	}
	require.NoError(t, scalar.WriteFloat32s("A", as))
	require.NoError(t, vector.WriteFloat32s("A", as))
	_, err := scalar.Run("sqrtk", interp.NewInt(16))
	require.NoError(t, err)
	_, err = vector.Run("sqrtk", interp.NewInt(16))
	require.NoError(t, err)

	want, err := scalar.ReadFloat32s("B", 32)
	require.NoError(t, err)
	got, err := vector.ReadFloat32s("B", 32)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestUntransformedBlocksAreUntouched(t *testing.T) {
	for _, name := range []string{"scalars", "overlap", "crosschains"} {
		t.Run(name, func(t *testing.T) {
			m, err := kernels.Build(name)
			require.NoError(t, err)
			before := m.String()

			pass := New()
			changed := false
			for _, fn := range m.Funcs {
				if len(fn.Blocks) > 0 {
					changed = pass.RunOnFunction(fn) || changed
				}
			}
			assert.False(t, changed)
			assert.Equal(t, before, m.String())
		})
	}
}

func TestSingleAdjacentPairBecomesTwoWideVector(t *testing.T) {
	build := func() *ir.Module {
		m := ir.NewModule()
		arr := types.NewArray(8, types.I64)
		a := m.NewGlobalDef("A", constant.NewZeroInitializer(arr))
		iv := ir.NewParam("i", types.I64)
		fn := m.NewFunc("pairsum", types.I64, iv)
		entry := fn.NewBlock("entry")
		l0 := entry.NewLoad(types.I64, entry.NewGetElementPtr(arr, a, constant.NewInt(types.I64, 0), iv))
		l1 := entry.NewLoad(types.I64, entry.NewGetElementPtr(arr, a, constant.NewInt(types.I64, 0),
			entry.NewAdd(iv, constant.NewInt(types.I64, 1))))
		entry.NewRet(entry.NewAdd(l0, l1))
		return m
	}

	m := build()
	var fn *ir.Func
	for _, f := range m.Funcs {
		if f.Name() == "pairsum" {
			fn = f
		}
	}
	require.True(t, New().RunOnFunction(fn))
	require.NoError(t, verify.New().VerifyModule(m))

	loads := 0
	for _, inst := range fn.Blocks[0].Insts {
		if load, ok := inst.(*ir.InstLoad); ok {
			loads++
			vecType, isVec := load.ElemType.(*types.VectorType)
			require.True(t, isVec)
			assert.Equal(t, uint64(2), vecType.Len)
		}
	}
	assert.Equal(t, 1, loads)

	scalar := interp.NewMachine(build())
	vector := interp.NewMachine(m)
	vals := []int64{10, 20, 30, 40, 50, 60, 70, 80}
	require.NoError(t, scalar.WriteInt64s("A", vals))
	require.NoError(t, vector.WriteInt64s("A", vals))
	want, err := scalar.Run("pairsum", interp.NewInt(2))
	require.NoError(t, err)
	got, err := vector.Run("pairsum", interp.NewInt(2))
	require.NoError(t, err)
	assert.Equal(t, want.Int, got.Int)
}

func TestDependentFreeStorePackRetainsScalars(t *testing.T) {
	m := ir.NewModule()
	arr := types.NewArray(8, types.I32)
	a := m.NewGlobalDef("A", constant.NewZeroInitializer(arr))
	x := ir.NewParam("x", types.I32)
	iv := ir.NewParam("i", types.I64)
	fn := m.NewFunc("fill", types.Void, x, iv)
	entry := fn.NewBlock("entry")
	for k := int64(0); k < 4; k++ {
		var idx value.Value = iv
		if k != 0 {
			idx = entry.NewAdd(iv, constant.NewInt(types.I64, k))
		}
		ptr := entry.NewGetElementPtr(arr, a, constant.NewInt(types.I64, 0), idx)
		entry.NewStore(x, ptr)
	}
	entry.NewRet(nil)

	require.True(t, New().RunOnFunction(fn))
	require.NoError(t, verify.New().VerifyModule(m))

	scalarStores := 0
	vectorStores := 0
	for _, inst := range entry.Insts {
		if st, ok := inst.(*ir.InstStore); ok {
			if _, vec := st.Src.Type().(*types.VectorType); vec {
				vectorStores++
			} else {
				scalarStores++
			}
		}
	}
	assert.Equal(t, 1, vectorStores, "the vector store is still emitted")
	assert.Equal(t, 4, scalarStores, "dependent-free store packs keep their scalars")

	mach := interp.NewMachine(m)
	_, err := mach.Run("fill", interp.NewInt(41), interp.NewInt(2))
	require.NoError(t, err)
	got, err := mach.ReadInt32s("A", 8)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 0, 41, 41, 41, 41, 0, 0}, got)
}

func TestEmitPackRejectsUnsupportedOpcode(t *testing.T) {
	m := ir.NewModule()
	arr := types.NewArray(8, types.I32)
	a := m.NewGlobalDef("A", constant.NewZeroInitializer(arr))
	iv := ir.NewParam("i", types.I64)
	fn := m.NewFunc("geps", types.Void, iv)
	entry := fn.NewBlock("entry")
	g0 := entry.NewGetElementPtr(arr, a, constant.NewInt(types.I64, 0), iv)
	g1 := entry.NewGetElementPtr(arr, a, constant.NewInt(types.I64, 0),
		entry.NewAdd(iv, constant.NewInt(types.I64, 1)))
	entry.NewRet(nil)

	bp := newBlockPass(t, m, "geps")
	p := newPair(g0, g1)
	_, ok := bp.emitPack(p)
	assert.False(t, ok)
}
