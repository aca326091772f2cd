// Package loopfusion implements LoopFusion: fusing two adjacent,
// flow-equivalent, equal-trip-count sibling loops when no negative
// dependence distance forbids it.
package loopfusion

import (
	"log"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/value"

	"github.com/optiravm/ssaopt/internal/analysis"
	"github.com/optiravm/ssaopt/internal/ssair"
)

// Pass runs LoopFusion over one function.
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

// Run attempts a single fusion, exactly like LoopFusion::run: it walks
// the loop forest in preorder, considers consecutive same-depth
// same-parent loop pairs, fuses the first legal pair it finds, and
// returns immediately. Callers re-invoke Run (after recomputing
// analyses) to fuse further pairs, since fusing invalidates the loop
// forest.
func (p *Pass) Run(g *ssair.Graph, fn *ir.Func, fa *analysis.FunctionAnalyses) analysis.Preserved {
	loops := fa.LoopInfo.LoopsInPreorder()
	var lastAtDepth = make(map[int]*analysis.Loop)

	for _, l2 := range loops {
		l1, ok := lastAtDepth[l2.Depth]
		if ok && l1.Parent == l2.Parent && p.legalToFuse(l1, l2, fa) {
			p.logf("loopfusion: fusing %s into %s", l2.Header.Ident(), l1.Header.Ident())
			fuseLoop(g, l1, l2)
			return analysis.PreservedNone
		}
		lastAtDepth[l2.Depth] = l2
	}
	return analysis.PreservedAll
}

func (p *Pass) legalToFuse(l1, l2 *analysis.Loop, fa *analysis.FunctionAnalyses) bool {
	return l1.InductionVariable() != nil &&
		l2.InductionVariable() != nil &&
		areAdjacent(l1, l2) &&
		haveSameIterationsNumber(l1, l2) &&
		areFlowEquivalent(l1, l2, fa) &&
		areDistanceIndependent(l1, l2, fa)
}

// areAdjacent requires l1's single non-latch exit block to be empty
// (just a terminator) and to be exactly l2's entry block.
func areAdjacent(l1, l2 *analysis.Loop) bool {
	exits := l1.ExitBlocks()
	if len(exits) != 1 {
		return false
	}
	exit := exits[0]
	if len(exit.Insts) > 0 {
		return false
	}
	return exit == l2.EntryBlock()
}

func haveSameIterationsNumber(l1, l2 *analysis.Loop) bool {
	tc1, ok1 := l1.ComputeTripCount()
	tc2, ok2 := l2.ComputeTripCount()
	if !ok1 || !ok2 {
		return false
	}
	return analysis.SameTripCount(tc1, tc2)
}

func areFlowEquivalent(l1, l2 *analysis.Loop, fa *analysis.FunctionAnalyses) bool {
	return fa.DomTree.Dominates(l1.Header, l2.Header) && fa.PostDom.Dominates(l2.Header, l1.Header)
}

type memOp struct {
	ptr  value.Value
	inst ir.Instruction
}

func collectLoadsStores(loop *analysis.Loop) (loads, stores []memOp) {
	for _, b := range loop.Blocks {
		for _, inst := range b.Insts {
			switch i := inst.(type) {
			case *ir.InstLoad:
				loads = append(loads, memOp{ptr: i.Src, inst: i})
			case *ir.InstStore:
				stores = append(stores, memOp{ptr: i.Dst, inst: i})
			}
		}
	}
	return loads, stores
}

// areDistanceIndependent checks every store-in-l1/load-in-l2 pair and
// every store-in-l2/load-in-l1 pair: if the two pointers might alias,
// their affine access patterns must be provably non-negative-distance,
// matching LoopFusion.cpp's areDistanceIndependent + isDistanceNegative.
func areDistanceIndependent(l1, l2 *analysis.Loop, fa *analysis.FunctionAnalyses) bool {
	loads1, stores1 := collectLoadsStores(l1)
	loads2, stores2 := collectLoadsStores(l2)

	check := func(store, load memOp, loopStore, loopLoad *analysis.Loop) bool {
		if !fa.Dependence.MayAlias(store.ptr, load.ptr) {
			return true
		}
		gepStore, okS := store.ptr.(*ir.InstGetElementPtr)
		gepLoad, okL := load.ptr.(*ir.InstGetElementPtr)
		if !okS || !okL {
			return false
		}
		arStore, okAR1 := analysis.AnalyzeGEP(loopStore, gepStore)
		arLoad, okAR2 := analysis.AnalyzeGEP(loopLoad, gepLoad)
		if !okAR1 || !okAR2 {
			return false
		}
		return !analysis.IsDistanceNegative(arStore, arLoad)
	}

	for _, s := range stores1 {
		for _, l := range loads2 {
			if !check(s, l, l1, l2) {
				return false
			}
		}
	}
	for _, s := range stores2 {
		for _, l := range loads1 {
			if !check(s, l, l2, l1) {
				return false
			}
		}
	}
	return true
}

// fuseLoop splices l2's body into l1, right before l1's latch, and
// collapses l2's own header/latch test, matching LoopFusion.cpp's
// fuseLoop.
func fuseLoop(g *ssair.Graph, l1, l2 *analysis.Loop) {
	iv1 := l1.InductionVariable()
	iv2 := l2.InductionVariable()
	if iv1 == nil || iv2 == nil {
		// Callers must only reach fuseLoop for loops with a canonical
		// induction variable; bail without mutating anything if that
		// invariant was somehow violated.
		return
	}
	ssair.ReplaceAllUsesWith(g, iv2.Phi, iv1.Phi)

	// Rewire l1's header so its exit edge (which used to reach l2's
	// entry) now reaches l2's exit directly — l2 is being absorbed.
	l1Exits := l1.ExitBlocks()
	l2Exits := l2.ExitBlocks()
	if len(l1Exits) == 1 && len(l2Exits) == 1 {
		ssair.RetargetTerminator(l1.Header.Term, l1Exits[0], l2Exits[0])
	}

	bodyTail1 := uniquePredInLoop(l1, l1.Latch())
	bodyHead2 := uniqueSuccInLoop(l2, l2.Header)
	bodyTail2 := uniquePredInLoop(l2, l2.Latch())

	// Collapse l2's header test into an unconditional branch to its own
	// latch: l1's header now governs both loops' shared trip count.
	ssair.DetachTerminator(g, l2.Header, ir.NewBr(l2.Latch()))

	if bodyTail1 != nil && bodyHead2 != nil {
		ssair.RetargetTerminator(bodyTail1.Term, l1.Latch(), bodyHead2)
	}
	if bodyTail2 != nil {
		ssair.RetargetTerminator(bodyTail2.Term, l2.Latch(), l1.Latch())
	}

	ssair.PruneUnreachableBlocks(funcOf(l1))
}

func uniquePredInLoop(loop *analysis.Loop, b *ir.Block) *ir.Block {
	var found *ir.Block
	for _, cand := range loop.Blocks {
		if cand.Term == nil {
			continue
		}
		for _, s := range cand.Term.Succs() {
			if s == b {
				if found != nil && found != cand {
					return nil
				}
				found = cand
			}
		}
	}
	return found
}

func uniqueSuccInLoop(loop *analysis.Loop, b *ir.Block) *ir.Block {
	if b.Term == nil {
		return nil
	}
	var found *ir.Block
	for _, s := range b.Term.Succs() {
		if s == b {
			continue
		}
		if !loop.Contains(s) {
			continue
		}
		if found != nil && found != s {
			return nil
		}
		found = s
	}
	return found
}

func funcOf(loop *analysis.Loop) *ir.Func {
	if loop.Header.Parent == nil {
		return nil
	}
	return loop.Header.Parent
}
