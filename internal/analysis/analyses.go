package analysis

import "github.com/llir/llvm/ir"

// FunctionAnalyses bundles the oracle views a pass typically needs for
// one function: dominance, post-dominance, loop structure, and
// dependence.
type FunctionAnalyses struct {
	Func       *ir.Func
	DomTree    *DomTree
	PostDom    *PostDomTree
	LoopInfo   *LoopInfo
	Dependence *DependenceInfo
}

// Analyze computes every Analysis Oracle view over fn in one pass.
func Analyze(fn *ir.Func) *FunctionAnalyses {
	dt := BuildDomTree(fn)
	pdt := BuildPostDomTree(fn)
	li := BuildLoopInfo(fn, dt)
	return &FunctionAnalyses{
		Func:       fn,
		DomTree:    dt,
		PostDom:    pdt,
		LoopInfo:   li,
		Dependence: NewDependenceInfo(),
	}
}
