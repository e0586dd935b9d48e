// Package verify checks the structural sanity of a module after a transform
// pass has run: definitions precede uses, operand and result types agree,
// and no instruction references a value that is no longer in the function.
package verify

import (
	"fmt"
	"strings"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/pkg/errors"
)

// Verifier accumulates structural errors found in a module.
type Verifier struct {
	errors []string
}

// New creates a new verifier.
func New() *Verifier {
	return &Verifier{errors: make([]string, 0)}
}

// VerifyModule verifies every defined function of a module.
func (v *Verifier) VerifyModule(m *ir.Module) error {
	v.errors = make([]string, 0)
	for _, fn := range m.Funcs {
		if len(fn.Blocks) == 0 {
			continue
		}
		v.verifyFunc(fn)
	}
	if len(v.errors) > 0 {
		return errors.Errorf("module verification failed:\n%s", strings.Join(v.errors, "\n"))
	}
	return nil
}

// verifyFunc checks one function.
func (v *Verifier) verifyFunc(fn *ir.Func) {
	defined := make(map[value.Value]bool)
	for _, param := range fn.Params {
		defined[param] = true
	}

	// Instruction results are visible to later instructions of the same
	// block and to every other block. The pass never introduces control
	// flow, so per-block forward scans plus a cross-block whitelist match
	// the dominance the inputs guarantee.
	elsewhere := make(map[value.Value]*ir.Block)
	for _, block := range fn.Blocks {
		for _, inst := range block.Insts {
			if val, ok := inst.(value.Value); ok {
				elsewhere[val] = block
			}
		}
	}

	for _, block := range fn.Blocks {
		seen := make(map[value.Value]bool)
		for i, inst := range block.Insts {
			for _, op := range inst.Operands() {
				v.verifyOperand(fn, block, i, *op, seen, elsewhere, defined)
			}
			v.verifyTypes(fn, block, i, inst)
			if val, ok := inst.(value.Value); ok {
				seen[val] = true
			}
		}
		if block.Term == nil {
			v.addError("%s/%s: block has no terminator", fn.Name(), block.Name())
			continue
		}
		for _, op := range block.Term.Operands() {
			v.verifyOperand(fn, block, len(block.Insts), *op, seen, elsewhere, defined)
		}
	}
}

// verifyOperand checks that a single operand refers to something that still
// exists: a constant, global, parameter, block label, or an instruction that
// has not been erased and is defined before this use when local.
func (v *Verifier) verifyOperand(fn *ir.Func, block *ir.Block, pos int, op value.Value, seen map[value.Value]bool, elsewhere map[value.Value]*ir.Block, defined map[value.Value]bool) {
	switch op.(type) {
	case constant.Constant, *ir.Block:
		return
	}
	if defined[op] {
		return
	}
	if _, ok := op.(ir.Instruction); ok {
		home, live := elsewhere[op]
		if !live {
			v.addError("%s/%s inst %d: operand %s refers to an erased instruction",
				fn.Name(), block.Name(), pos, describe(op))
			return
		}
		if home == block && !seen[op] {
			v.addError("%s/%s inst %d: operand %s used before its definition",
				fn.Name(), block.Name(), pos, describe(op))
		}
		return
	}
	// Remaining values (e.g. parameters of other functions) are foreign.
	v.addError("%s/%s inst %d: operand %s is not defined in this function",
		fn.Name(), block.Name(), pos, describe(op))
}

// verifyTypes spot-checks the type agreements a vectorizer can break.
func (v *Verifier) verifyTypes(fn *ir.Func, block *ir.Block, pos int, inst ir.Instruction) {
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			prefix := fmt.Sprintf("%s/%s inst %d: ", fn.Name(), block.Name(), pos)
			v.addError(prefix+format, args...)
		}
	}
	switch s := inst.(type) {
	case *ir.InstStore:
		ptr, ok := s.Dst.Type().(*types.PointerType)
		check(ok, "store destination is not a pointer")
		if ok {
			check(ptr.ElemType.Equal(s.Src.Type()),
				"store of %s through pointer to %s", s.Src.Type(), ptr.ElemType)
		}
	case *ir.InstLoad:
		ptr, ok := s.Src.Type().(*types.PointerType)
		check(ok, "load source is not a pointer")
		if ok {
			check(ptr.ElemType.Equal(s.ElemType),
				"load of %s through pointer to %s", s.ElemType, ptr.ElemType)
		}
	case *ir.InstBitCast:
		_, fromPtr := s.From.Type().(*types.PointerType)
		_, toPtr := s.To.(*types.PointerType)
		check(fromPtr == toPtr, "bitcast mixes pointer and non-pointer types")
	case *ir.InstExtractElement:
		_, ok := s.X.Type().(*types.VectorType)
		check(ok, "extractelement from non-vector")
	case *ir.InstInsertElement:
		vec, ok := s.X.Type().(*types.VectorType)
		check(ok, "insertelement into non-vector")
		if ok {
			check(vec.ElemType.Equal(s.Elem.Type()),
				"insertelement of %s into vector of %s", s.Elem.Type(), vec.ElemType)
		}
	case *ir.InstAdd:
		check(s.X.Type().Equal(s.Y.Type()), "add operand types differ")
	case *ir.InstFAdd:
		check(s.X.Type().Equal(s.Y.Type()), "fadd operand types differ")
	case *ir.InstSub:
		check(s.X.Type().Equal(s.Y.Type()), "sub operand types differ")
	case *ir.InstFSub:
		check(s.X.Type().Equal(s.Y.Type()), "fsub operand types differ")
	case *ir.InstMul:
		check(s.X.Type().Equal(s.Y.Type()), "mul operand types differ")
	case *ir.InstFMul:
		check(s.X.Type().Equal(s.Y.Type()), "fmul operand types differ")
	}
}

// addError records a formatted verification error.
func (v *Verifier) addError(format string, args ...interface{}) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

// describe renders a value briefly for error messages.
func describe(val value.Value) string {
	if n, ok := val.(value.Named); ok && n.Name() != "" {
		return "%" + n.Name()
	}
	return fmt.Sprintf("%T", val)
}
