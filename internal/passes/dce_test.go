package passes

import (
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDCERemovesOrphanedAddressArithmetic(t *testing.T) {
	m := ir.NewModule()
	arr := types.NewArray(8, types.I64)
	a := m.NewGlobalDef("A", constant.NewZeroInitializer(arr))
	iv := ir.NewParam("i", types.I64)
	fn := m.NewFunc("f", types.I64, iv)
	entry := fn.NewBlock("entry")

	// Live chain: the loaded value reaches the return.
	liveIdx := entry.NewAdd(iv, constant.NewInt(types.I64, 1))
	livePtr := entry.NewGetElementPtr(arr, a, constant.NewInt(types.I64, 0), liveIdx)
	live := entry.NewLoad(types.I64, livePtr)

	// Dead chain: address arithmetic whose load was erased.
	deadIdx := entry.NewAdd(iv, constant.NewInt(types.I64, 2))
	entry.NewGetElementPtr(arr, a, constant.NewInt(types.I64, 0), deadIdx)

	entry.NewRet(live)

	require.Equal(t, 5, len(entry.Insts))
	changed := NewDCE().RunOnFunction(fn)
	require.True(t, changed)
	assert.Equal(t, 3, len(entry.Insts))

	assert.False(t, NewDCE().RunOnFunction(fn), "second run finds nothing")
}

func TestDCEKeepsStoresAndCalls(t *testing.T) {
	m := ir.NewModule()
	arr := types.NewArray(8, types.I64)
	a := m.NewGlobalDef("A", constant.NewZeroInitializer(arr))
	ext := m.NewFunc("opaque", types.Void, ir.NewParam("v", types.I64))
	iv := ir.NewParam("i", types.I64)
	fn := m.NewFunc("f", types.Void, iv)
	entry := fn.NewBlock("entry")

	idx := entry.NewAdd(iv, constant.NewInt(types.I64, 3))
	ptr := entry.NewGetElementPtr(arr, a, constant.NewInt(types.I64, 0), idx)
	entry.NewStore(iv, ptr)
	entry.NewCall(ext, iv)
	entry.NewRet(nil)

	changed := NewDCE().RunOnFunction(fn)
	assert.False(t, changed, "everything feeds a side effect")
	assert.Equal(t, 4, len(entry.Insts))
}

func TestDCEUnravelsDeadChains(t *testing.T) {
	m := ir.NewModule()
	x := ir.NewParam("x", types.I64)
	fn := m.NewFunc("f", types.I64, x)
	entry := fn.NewBlock("entry")

	d1 := entry.NewAdd(x, x)
	d2 := entry.NewMul(d1, x)
	entry.NewMul(d2, d2)
	keep := entry.NewAdd(x, constant.NewInt(types.I64, 1))
	entry.NewRet(keep)

	require.True(t, NewDCE().RunOnFunction(fn))
	assert.Equal(t, 1, len(entry.Insts))
}

func TestManagerRunsPipelineAndReportsChange(t *testing.T) {
	m := ir.NewModule()
	x := ir.NewParam("x", types.I64)
	fn := m.NewFunc("f", types.I64, x)
	entry := fn.NewBlock("entry")
	entry.NewAdd(x, x)
	entry.NewRet(x)
	m.NewFunc("decl", types.Void)

	mgr := NewManager().Add(NewDCE())
	require.Len(t, mgr.Passes(), 1)
	assert.True(t, mgr.RunOnModule(m))
	assert.False(t, mgr.RunOnModule(m))
}
