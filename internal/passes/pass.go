// Package passes provides the function-pass plumbing the vectorizer runs
// under: a Pass interface with module-level initialize/finalize hooks and a
// Manager that drives a pipeline over every function of a module.
package passes

import (
	"github.com/llir/llvm/ir"
)

// Pass is a function-level transform. Initialize and Finalize run once per
// module around the per-function work; all three report whether they changed
// the IR. Passes must preserve the control-flow graph.
type Pass interface {
	Name() string
	Initialize(m *ir.Module) bool
	RunOnFunction(fn *ir.Func) bool
	Finalize(m *ir.Module) bool
}

// Manager runs a fixed pipeline of passes over a module.
type Manager struct {
	passes []Pass
}

// NewManager creates an empty pipeline.
func NewManager() *Manager {
	return &Manager{}
}

// Add appends a pass to the pipeline. Registration order is execution order;
// Add does not check whether the pipeline has already run.
func (m *Manager) Add(p Pass) *Manager {
	m.passes = append(m.passes, p)
	return m
}

// Passes returns the registered pipeline.
func (m *Manager) Passes() []Pass {
	return m.passes
}

// RunOnModule executes the pipeline and reports whether anything changed.
// Declarations (functions without bodies) are skipped.
func (m *Manager) RunOnModule(mod *ir.Module) bool {
	changed := false
	for _, p := range m.passes {
		changed = p.Initialize(mod) || changed
		for _, fn := range mod.Funcs {
			if len(fn.Blocks) == 0 {
				continue
			}
			changed = p.RunOnFunction(fn) || changed
		}
		changed = p.Finalize(mod) || changed
	}
	return changed
}
