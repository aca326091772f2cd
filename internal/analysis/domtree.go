package analysis

import "github.com/llir/llvm/ir"

// DomTree is a dominator tree computed over a function's blocks, using
// the iterative Cooper-Harvey-Kennedy algorithm (the same algorithm
// family LLVM itself uses), rather than a position-in-slice heuristic.
type DomTree struct {
	fn      *ir.Func
	preds   map[*ir.Block][]*ir.Block
	order   []*ir.Block          // reverse postorder
	index   map[*ir.Block]int    // block -> position in order
	idom    map[*ir.Block]*ir.Block
	kids    map[*ir.Block][]*ir.Block
}

// BuildDomTree computes the dominator tree of fn, rooted at its entry
// block (fn.Blocks[0]). fn must have at least one block.
func BuildDomTree(fn *ir.Func) *DomTree {
	preds := predecessors(fn)
	order, index := reversePostorder(fn)

	dt := &DomTree{fn: fn, preds: preds, order: order, index: index}
	dt.idom = computeIdom(order, index, preds)
	dt.kids = make(map[*ir.Block][]*ir.Block)
	for b, idom := range dt.idom {
		if idom != nil {
			dt.kids[idom] = append(dt.kids[idom], b)
		}
	}
	return dt
}

func predecessors(fn *ir.Func) map[*ir.Block][]*ir.Block {
	preds := make(map[*ir.Block][]*ir.Block, len(fn.Blocks))
	for _, b := range fn.Blocks {
		preds[b] = nil
	}
	for _, b := range fn.Blocks {
		if b.Term == nil {
			continue
		}
		for _, succ := range b.Term.Succs() {
			preds[succ] = append(preds[succ], b)
		}
	}
	return preds
}

func reversePostorder(fn *ir.Func) ([]*ir.Block, map[*ir.Block]int) {
	if len(fn.Blocks) == 0 {
		return nil, nil
	}
	entry := fn.Blocks[0]
	visited := make(map[*ir.Block]bool)
	var post []*ir.Block
	var visit func(*ir.Block)
	visit = func(b *ir.Block) {
		if visited[b] {
			return
		}
		visited[b] = true
		if b.Term != nil {
			for _, succ := range b.Term.Succs() {
				visit(succ)
			}
		}
		post = append(post, b)
	}
	visit(entry)

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

func computeIdom(order []*ir.Block, index map[*ir.Block]int, preds map[*ir.Block][]*ir.Block) map[*ir.Block]*ir.Block {
	if len(order) == 0 {
		return nil
	}
	entry := order[0]
	idom := make(map[*ir.Block]*ir.Block, len(order))
	idom[entry] = entry

	changed := true
	for changed {
		changed = false
		for _, b := range order[1:] {
			var newIdom *ir.Block
			for _, p := range preds[b] {
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
	idom[entry] = nil // entry has no strict dominator
	return idom
}

func intersect(a, b *ir.Block, idom map[*ir.Block]*ir.Block, index map[*ir.Block]int) *ir.Block {
	for a != b {
		for index[a] > index[b] {
			a = idom[a]
		}
		for index[b] > index[a] {
			b = idom[b]
		}
	}
	return a
}

// IDom returns b's immediate dominator, or nil if b is the entry block.
func (dt *DomTree) IDom(b *ir.Block) *ir.Block {
	return dt.idom[b]
}

// Dominates reports whether a dominates b (every path from the entry to
// b passes through a). A block dominates itself.
func (dt *DomTree) Dominates(a, b *ir.Block) bool {
	if a == b {
		return true
	}
	cur := dt.idom[b]
	for cur != nil {
		if cur == a {
			return true
		}
		cur = dt.idom[cur]
	}
	return false
}

// StrictlyDominates reports whether a dominates b and a != b.
func (dt *DomTree) StrictlyDominates(a, b *ir.Block) bool {
	return a != b && dt.Dominates(a, b)
}

// Children returns the dominator-tree children of b.
func (dt *DomTree) Children(b *ir.Block) []*ir.Block {
	return dt.kids[b]
}

// Root returns the entry block.
func (dt *DomTree) Root() *ir.Block {
	if len(dt.order) == 0 {
		return nil
	}
	return dt.order[0]
}

// Preorder walks the dominator tree in preorder starting at Root. LICM's
// code motion walks blocks in this order so a hoisted definition always
// precedes its uses.
func (dt *DomTree) Preorder() []*ir.Block {
	var out []*ir.Block
	var visit func(*ir.Block)
	visit = func(b *ir.Block) {
		out = append(out, b)
		for _, kid := range dt.kids[b] {
			visit(kid)
		}
	}
	if root := dt.Root(); root != nil {
		visit(root)
	}
	return out
}

// Predecessors returns b's CFG predecessors.
func (dt *DomTree) Predecessors(b *ir.Block) []*ir.Block {
	return dt.preds[b]
}
