// Package slp implements a superword-level parallelism auto-vectorizer: a
// per-basic-block transform that discovers groups of isomorphic, independent
// scalar instructions anchored on adjacent memory references, packs them, and
// rewrites each pack as one vector instruction.
//
// The pass follows the classic SLP phase order: alignment analysis over
// memory addresses, seeding from adjacent loads and stores, breadth-first
// pack extension along use-def and def-use chains, combination of chained
// pairs, dependency-aware scheduling, and vector code generation with
// scalar-to-vector (prepack) and vector-to-scalar (postpack) adapters.
// Every phase is best-effort per block: blocks that cannot be scheduled are
// left exactly as found.
package slp

import (
	"github.com/llir/llvm/ir"
	"github.com/tliron/commonlog"
)

// SLP is the vectorizer pass. The control-flow graph is preserved: no block
// is split, merged, or re-edged; only instruction lists change.
type SLP struct {
	// Verbose turns on the pass diagnostics: pack enumerations, pair
	// additions, dependency listings, the scheduled order, and every emitted
	// vector instruction.
	Verbose bool

	log commonlog.Logger
}

// New creates the pass.
func New() *SLP {
	return &SLP{log: commonlog.GetLogger("slp")}
}

// Name identifies the pass to the pass manager.
func (s *SLP) Name() string { return "slp" }

// Initialize is a no-op; the pass keeps no module-wide state.
func (s *SLP) Initialize(m *ir.Module) bool { return false }

// Finalize is a no-op.
func (s *SLP) Finalize(m *ir.Module) bool { return false }

// RunOnFunction applies the transform to every basic block of fn and reports
// whether any block changed. Per-block state is reset between blocks.
func (s *SLP) RunOnFunction(fn *ir.Func) bool {
	changed := false
	for _, block := range fn.Blocks {
		changed = s.slpExtract(fn, block) || changed
	}
	return changed
}

// blockPass carries the per-block state of one transformation attempt.
type blockPass struct {
	pass  *SLP
	fn    *ir.Func
	block *ir.Block

	alignInfo     map[ir.Instruction]AlignInfo
	uses          *useIndex
	packs         *PackSet
	deps          map[*Pack]map[*Pack]bool
	scheduledList []*Pack
}

// slpExtract runs the phase pipeline on one block. Discovery (seeding,
// extension, combination) and scheduling never touch the IR; only once a
// full schedule passes the emission checks does code generation mutate the
// block, so an aborted block is left byte-identical.
func (s *SLP) slpExtract(fn *ir.Func, block *ir.Block) bool {
	bp := &blockPass{
		pass:      s,
		fn:        fn,
		block:     block,
		alignInfo: make(map[ir.Instruction]AlignInfo),
		uses:      buildUseIndex(fn),
		packs:     &PackSet{},
	}

	bp.findAdjRefs()
	if bp.packs.Size() == 0 {
		return false
	}
	bp.extendPacklist()
	bp.combinePacks()
	if s.Verbose {
		s.log.Infof("PackSet for %s/%s:\n%s", fn.Name(), block.Name(), bp.packs)
	}

	if !bp.schedule() {
		bp.debugf("[schedule] pack dependency graph is cyclic, block not transformed")
		return false
	}
	if !bp.checkEmittable() {
		bp.debugf("[schedule] emission would break def-before-use, block not transformed")
		return false
	}
	if s.Verbose {
		for i, p := range bp.scheduledList {
			s.log.Infof("scheduled %d: %s", i, p)
		}
	}

	return bp.generate()
}

// debugf logs a pass diagnostic when verbose mode is on.
func (bp *blockPass) debugf(format string, args ...interface{}) {
	if bp.pass.Verbose {
		bp.pass.log.Debugf(format, args...)
	}
}
