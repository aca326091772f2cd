// Package loopopts implements LoopOpts: loop-invariant code motion.
// Rather than tagging instructions with metadata strings
// (invariant/use-dominator/exits-dominator/dead), this module keeps that
// bookkeeping in an ephemeral Go map scoped to a single Run call.
package loopopts

import (
	"log"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/value"

	"github.com/optiravm/ssaopt/internal/analysis"
	"github.com/optiravm/ssaopt/internal/ssair"
)

// Pass runs LICM over one natural loop at a time, rather than over an
// entire function at once.
type Pass struct {
	Logger *log.Logger
}

// New returns a Pass.
func New() *Pass {
	return &Pass{}
}

func (p *Pass) logf(format string, args ...interface{}) {
	if p.Logger != nil {
		p.Logger.Printf(format, args...)
	}
}

type tagState struct {
	invariant      bool
	useDominator   bool
	exitsDominator bool
	dead           bool
}

// Run hoists every loop-invariant, safe-to-speculate-or-dead instruction
// of loop out to its preheader. It declines (PreservedAll, no change) if
// the loop is not canonical (no single preheader/latch).
func (p *Pass) Run(g *ssair.Graph, dt *analysis.DomTree, loop *analysis.Loop) analysis.Preserved {
	preheader := loop.Preheader()
	if preheader == nil || loop.Latch() == nil {
		return analysis.PreservedAll
	}

	orderedBlocks := preorderWithin(dt, loop)
	tags := make(map[ir.Instruction]*tagState)
	instBlock := make(map[ir.Instruction]*ir.Block)

	for _, b := range orderedBlocks {
		for _, inst := range b.Insts {
			if !ssair.IsBinaryInst(inst) {
				continue
			}
			tags[inst] = &tagState{}
			instBlock[inst] = b
		}
	}

	// Pass 1: invariance, in an order where a definition's block is
	// always visited before a use in the same or a later block (the
	// dominator-tree preorder restricted to the loop), so a single scan
	// suffices — see DESIGN.md.
	for _, b := range orderedBlocks {
		for _, inst := range b.Insts {
			st, tracked := tags[inst]
			if !tracked {
				continue
			}
			x, y, ok := ssair.BinaryOperands(inst)
			if !ok {
				continue
			}
			st.invariant = isLoopInvariant(x, loop, tags) && isLoopInvariant(y, loop, tags)
		}
	}

	// Pass 2: which blocks dominate every exiting block (safe to
	// speculate even if the loop body might not otherwise execute).
	exitingBlocks := loop.ExitingBlocks()
	blockExitsDominator := make(map[*ir.Block]bool, len(loop.Blocks))
	for _, b := range loop.Blocks {
		safe := true
		for _, eb := range exitingBlocks {
			if !dt.Dominates(b, eb) {
				safe = false
				break
			}
		}
		blockExitsDominator[b] = safe
	}
	for inst, st := range tags {
		st.exitsDominator = blockExitsDominator[instBlock[inst]]
	}

	// Pass 3: use-dominator and dead-outside-loop, both via the
	// Phi-expanding transitive user walk (getUses in the source).
	for inst, st := range tags {
		v, ok := inst.(value.Value)
		if !ok {
			continue
		}
		users := ssair.TransitiveUsers(g, v)
		dominatesAll := true
		deadOutside := true
		for _, u := range users {
			ub := ssair.ParentBlock(u)
			if loop.Contains(ub) {
				if !dt.Dominates(instBlock[inst], ub) {
					dominatesAll = false
				}
			} else {
				deadOutside = false
			}
		}
		st.useDominator = dominatesAll
		st.dead = deadOutside
	}

	// codeMotion: walk the same dominator-tree preorder, hoisting
	// qualifying instructions to the end of the preheader (immediately
	// before its terminator), preserving their relative order.
	changed := false
	for _, b := range orderedBlocks {
		insts := append([]ir.Instruction(nil), b.Insts...)
		for _, inst := range insts {
			st, tracked := tags[inst]
			if !tracked {
				continue
			}
			notMove := (!st.dead && !st.exitsDominator) || !st.useDominator || !st.invariant
			if notMove {
				continue
			}
			if v, ok := inst.(value.Value); ok {
				p.logf("loopopts: hoisting %s to preheader %s", v.Ident(), preheader.Ident())
			}
			ssair.Remove(b, inst)
			ssair.InsertBeforeTerm(g, preheader, inst)
			changed = true
		}
	}

	return analysis.Changed(changed)
}

// preorderWithin returns the dominator-tree preorder of fn restricted to
// loop's blocks — definitions are guaranteed to precede uses in this
// order for a reducible, single-entry loop body.
func preorderWithin(dt *analysis.DomTree, loop *analysis.Loop) []*ir.Block {
	var out []*ir.Block
	for _, b := range dt.Preorder() {
		if loop.Contains(b) {
			out = append(out, b)
		}
	}
	return out
}

// isLoopInvariant mirrors LoopOpts.cpp's isLoopInvariant: an Argument, an
// already-invariant-tagged instruction, a Constant, or any value defined
// outside the loop, is invariant.
func isLoopInvariant(v value.Value, loop *analysis.Loop, tags map[ir.Instruction]*tagState) bool {
	if v == nil {
		return false
	}
	if _, ok := v.(*ir.Param); ok {
		return true
	}
	if _, ok := v.(constant.Constant); ok {
		return true
	}
	if inst, ok := v.(ir.Instruction); ok {
		if st, tracked := tags[inst]; tracked {
			return st.invariant
		}
		b := inst.Parent()
		return b != nil && !loop.Contains(b)
	}
	return false
}
