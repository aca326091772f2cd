package analysis

import "github.com/llir/llvm/ir"

// PostDomTree is a post-dominator tree: b post-dominates a if every path
// from a to the function's exit passes through b. Computed over a
// reversed CFG rooted at a synthetic virtual exit connected from every
// block with no successors (every ir.TermRet block).
//
// LoopFusion's control-flow-equivalence check needs both a dominator
// query and a post-dominator query; this supplies the latter.
type PostDomTree struct {
	succs map[*ir.Block][]*ir.Block
	order []*ir.Block
	index map[*ir.Block]int
	idom  map[*ir.Block]*ir.Block
}

// virtualExit is a sentinel not present in fn.Blocks, used as the single
// post-dominance root.
var virtualExit = &ir.Block{}

// BuildPostDomTree computes the post-dominator tree of fn.
func BuildPostDomTree(fn *ir.Func) *PostDomTree {
	succs := make(map[*ir.Block][]*ir.Block, len(fn.Blocks)+1)
	predsOfExit := make(map[*ir.Block][]*ir.Block, len(fn.Blocks)+1)

	for _, b := range fn.Blocks {
		if b.Term != nil {
			ss := b.Term.Succs()
			if len(ss) == 0 {
				succs[b] = []*ir.Block{virtualExit}
				predsOfExit[virtualExit] = append(predsOfExit[virtualExit], b)
			} else {
				succs[b] = ss
			}
		}
	}

	order, index := reversePostorderReversed(fn, succs)
	idom := computeIdomReversed(order, index, succs)

	return &PostDomTree{succs: succs, order: order, index: index, idom: idom}
}

// reversePostorderReversed walks the reversed graph (edges given by
// succs, which point "backwards" relative to the forward CFG) starting
// from virtualExit.
func reversePostorderReversed(fn *ir.Func, succs map[*ir.Block][]*ir.Block) ([]*ir.Block, map[*ir.Block]int) {
	// Build reverse-of-reverse adjacency (i.e. the forward-CFG
	// predecessor relation), since post-dominance walks the CFG backward
	// from the exit.
	rev := make(map[*ir.Block][]*ir.Block)
	for b, ss := range succs {
		for _, s := range ss {
			rev[s] = append(rev[s], b)
		}
	}

	visited := make(map[*ir.Block]bool)
	var post []*ir.Block
	var visit func(*ir.Block)
	visit = func(b *ir.Block) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, p := range rev[b] {
			visit(p)
		}
		post = append(post, b)
	}
	visit(virtualExit)

	order := make([]*ir.Block, len(post))
	for i, b := range post {
		order[len(post)-1-i] = b
	}
	index := make(map[*ir.Block]int, len(order))
	for i, b := range order {
		index[b] = i
	}
	return order, index
}

func computeIdomReversed(order []*ir.Block, index map[*ir.Block]int, succs map[*ir.Block][]*ir.Block) map[*ir.Block]*ir.Block {
	if len(order) == 0 {
		return nil
	}
	root := order[0] // virtualExit
	idom := make(map[*ir.Block]*ir.Block, len(order))
	idom[root] = root

	// predecessors in the walk direction (from exit backward) are each
	// block's forward-CFG successors.
	changed := true
	for changed {
		changed = false
		for _, b := range order[1:] {
			var newIdom *ir.Block
			for _, p := range succs[b] {
				if idom[p] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
					continue
				}
				newIdom = intersect(newIdom, p, idom, index)
			}
			if idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}
	idom[root] = nil
	return idom
}

// Dominates reports whether a post-dominates b: every path from b to the
// function's exit passes through a.
func (pdt *PostDomTree) Dominates(a, b *ir.Block) bool {
	if a == b {
		return true
	}
	cur := pdt.idom[b]
	for cur != nil && cur != virtualExit {
		if cur == a {
			return true
		}
		cur = pdt.idom[cur]
	}
	return false
}
