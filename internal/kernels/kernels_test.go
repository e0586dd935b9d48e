package kernels

import (
	"strings"
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllKernelsBuildAndPrint(t *testing.T) {
	names := make(map[string]bool)
	for _, k := range All() {
		t.Run(k.Name, func(t *testing.T) {
			require.False(t, names[k.Name], "duplicate kernel name")
			names[k.Name] = true

			m := k.Build()
			require.NotNil(t, m)
			text := m.String()
			assert.NotEmpty(t, text)
			assert.Contains(t, text, "define")
		})
	}
}

func TestBuildByName(t *testing.T) {
	m, err := Build("foo")
	require.NoError(t, err)
	require.NotNil(t, m)

	_, err = Build("nonesuch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kernel")
}

func TestKernelsAreFreshPerBuild(t *testing.T) {
	a := Foo()
	b := Foo()
	assert.NotSame(t, a, b)
	assert.Equal(t, a.String(), b.String())
}

func TestFooShape(t *testing.T) {
	m := Foo()
	var fn *ir.Func
	for _, f := range m.Funcs {
		if f.Name() == "foo" {
			fn = f
		}
	}
	require.NotNil(t, fn)
	require.Len(t, fn.Blocks, 1)

	loads, muls, stores := 0, 0, 0
	for _, inst := range fn.Blocks[0].Insts {
		switch inst.(type) {
		case *ir.InstLoad:
			loads++
		case *ir.InstMul:
			muls++
		case *ir.InstStore:
			stores++
		}
	}
	assert.Equal(t, 4, loads)
	assert.Equal(t, 4, muls)
	assert.Equal(t, 4, stores)
}

func TestSqrtKernelDeclaresIntrinsic(t *testing.T) {
	m := Sqrt()
	text := m.String()
	assert.True(t, strings.Contains(text, "llvm.sqrt.f32"))
}
