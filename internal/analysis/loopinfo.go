package analysis

import (
	"math/big"
	"sort"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/value"
)

// Loop is a natural loop: the set of blocks reachable from a back edge's
// source back to its target header without leaving the header's
// dominance region, per the standard "back edge + reachability" natural
// loop construction.
type Loop struct {
	Header    *ir.Block
	Latches   []*ir.Block
	Blocks    []*ir.Block // header included, in fn.Blocks order
	blockSet  map[*ir.Block]bool
	Parent    *Loop
	SubLoops  []*Loop
	Depth     int
	preheader *ir.Block
	preds     map[*ir.Block][]*ir.Block
	dt        *DomTree
}

// Contains reports whether b belongs to the loop (header included).
func (l *Loop) Contains(b *ir.Block) bool {
	return l.blockSet[b]
}

// Preheader returns the loop's unique out-of-loop predecessor of the
// header, or nil if the header has more than one, or the single
// candidate does not dominate the header (non-canonical shape).
func (l *Loop) Preheader() *ir.Block {
	return l.preheader
}

// Latch returns the loop's unique latch (the back-edge source), or nil
// if the loop has more than one back edge into its header.
func (l *Loop) Latch() *ir.Block {
	if len(l.Latches) != 1 {
		return nil
	}
	return l.Latches[0]
}

// IsCanonical reports whether the loop has exactly one preheader, one
// latch, and a recognizable induction variable — the shape both LoopOpts
// and LoopFusion require before attempting their work.
func (l *Loop) IsCanonical() bool {
	return l.Preheader() != nil && l.Latch() != nil && l.InductionVariable() != nil
}

// InductionVariable is the loop's canonical induction variable: a Phi in
// the header with exactly two incoming values, one from the preheader
// (the start value) and one from the latch defined as Add(iv, step) for
// a constant step (in either operand order).
type InductionVariable struct {
	Phi   *ir.InstPhi
	Start value.Value
	Step  *big.Int
	Add   *ir.InstAdd
}

func (l *Loop) InductionVariable() *InductionVariable {
	ph, latch := l.Preheader(), l.Latch()
	if ph == nil || latch == nil {
		return nil
	}
	for _, inst := range l.Header.Insts {
		phi, ok := inst.(*ir.InstPhi)
		if !ok {
			continue
		}
		if len(phi.Incs) != 2 {
			continue
		}
		var start value.Value
		var latchVal value.Value
		haveStart, haveLatch := false, false
		for _, inc := range phi.Incs {
			switch inc.Pred {
			case ph:
				start = inc.X
				haveStart = true
			case latch:
				latchVal = inc.X
				haveLatch = true
			}
		}
		if !haveStart || !haveLatch {
			continue
		}
		add, ok := latchVal.(*ir.InstAdd)
		if !ok {
			continue
		}
		var step *constant.Int
		sawIV := false
		if x, ok := add.X.(*constant.Int); ok && sameValue(add.Y, phi) {
			step, sawIV = x, true
		} else if y, ok := add.Y.(*constant.Int); ok && sameValue(add.X, phi) {
			step, sawIV = y, true
		}
		if !sawIV || step == nil {
			continue
		}
		return &InductionVariable{Phi: phi, Start: start, Step: step.X, Add: add}
	}
	return nil
}

func sameValue(a value.Value, b value.Value) bool {
	return a == b
}

// ExitingBlocks returns in-loop blocks with at least one successor
// outside the loop.
func (l *Loop) ExitingBlocks() []*ir.Block {
	var out []*ir.Block
	for _, b := range l.Blocks {
		if b.Term == nil {
			continue
		}
		for _, s := range b.Term.Succs() {
			if !l.blockSet[s] {
				out = append(out, b)
				break
			}
		}
	}
	return out
}

// ExitBlocks returns the out-of-loop successors of any exiting block.
func (l *Loop) ExitBlocks() []*ir.Block {
	seen := make(map[*ir.Block]bool)
	var out []*ir.Block
	for _, b := range l.Blocks {
		if b.Term == nil {
			continue
		}
		for _, s := range b.Term.Succs() {
			if !l.blockSet[s] && !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// GuardBranch returns the conditional branch that skips the loop
// entirely when its trip count is zero — the predecessor of the
// preheader whose two successors are {preheader, one of the loop's exit
// blocks} — or nil if the loop is unguarded.
func (l *Loop) GuardBranch() *ir.TermCondBr {
	ph := l.Preheader()
	if ph == nil {
		return nil
	}
	preds := l.preds[ph]
	if len(preds) != 1 {
		return nil
	}
	guard := preds[0]
	cbr, ok := guard.Term.(*ir.TermCondBr)
	if !ok {
		return nil
	}
	targets := map[*ir.Block]bool{cbr.TargetTrue: true, cbr.TargetFalse: true}
	if !targets[ph] {
		return nil
	}
	for _, exit := range l.ExitBlocks() {
		if targets[exit] && exit != ph {
			return cbr
		}
	}
	return nil
}

// IsGuarded reports whether GuardBranch is non-nil.
func (l *Loop) IsGuarded() bool {
	return l.GuardBranch() != nil
}

// EntryBlock is the block that control enters from outside the loop's
// nest to reach it: the guard's parent block if guarded, else the
// preheader. Matches LoopFusion.cpp's getEntryBlock.
func (l *Loop) EntryBlock() *ir.Block {
	if gb := l.GuardBranch(); gb != nil {
		return gb.Parent()
	}
	return l.Preheader()
}

// LoopInfo is the loop forest of a function.
type LoopInfo struct {
	TopLevel  []*Loop
	all       []*Loop
	blockLoop map[*ir.Block]*Loop
}

// BuildLoopInfo discovers every natural loop in fn using dt, merges
// multiple back edges sharing a header into one loop, and computes
// nesting by set containment.
func BuildLoopInfo(fn *ir.Func, dt *DomTree) *LoopInfo {
	preds := predecessors(fn)

	byHeader := make(map[*ir.Block]*Loop)
	var order []*ir.Block // headers in first-seen order, for determinism
	for _, b := range fn.Blocks {
		if b.Term == nil {
			continue
		}
		for _, succ := range b.Term.Succs() {
			if !dt.Dominates(succ, b) {
				continue // not a back edge
			}
			header := succ
			latch := b
			body := naturalLoopBody(header, latch, preds)
			l, ok := byHeader[header]
			if !ok {
				l = &Loop{Header: header, blockSet: map[*ir.Block]bool{}, preds: preds, dt: dt}
				byHeader[header] = l
				order = append(order, header)
			}
			l.Latches = append(l.Latches, latch)
			for blk := range body {
				if !l.blockSet[blk] {
					l.blockSet[blk] = true
				}
			}
		}
	}

	li := &LoopInfo{blockLoop: make(map[*ir.Block]*Loop)}
	for _, header := range order {
		l := byHeader[header]
		for _, b := range fn.Blocks {
			if l.blockSet[b] {
				l.Blocks = append(l.Blocks, b)
			}
		}
		l.preheader = computePreheader(l, preds, dt)
		li.all = append(li.all, l)
	}

	// Nesting by containment: smallest enclosing loop becomes the parent.
	for _, l := range li.all {
		var parent *Loop
		for _, cand := range li.all {
			if cand == l || !loopContains(cand, l) {
				continue
			}
			if parent == nil || len(cand.Blocks) < len(parent.Blocks) {
				parent = cand
			}
		}
		l.Parent = parent
		if parent != nil {
			parent.SubLoops = append(parent.SubLoops, l)
		} else {
			li.TopLevel = append(li.TopLevel, l)
		}
	}
	for _, l := range li.all {
		d := 0
		for p := l.Parent; p != nil; p = p.Parent {
			d++
		}
		l.Depth = d
	}
	sortLoopsByHeaderPosition(fn, li.TopLevel)
	for _, l := range li.all {
		sortLoopsByHeaderPosition(fn, l.SubLoops)
	}

	for _, l := range li.all {
		for _, b := range l.Blocks {
			cur := li.blockLoop[b]
			if cur == nil || len(l.Blocks) < len(cur.Blocks) {
				li.blockLoop[b] = l
			}
		}
	}

	return li
}

func naturalLoopBody(header, latch *ir.Block, preds map[*ir.Block][]*ir.Block) map[*ir.Block]bool {
	body := map[*ir.Block]bool{header: true}
	if header == latch {
		return body
	}
	body[latch] = true
	stack := []*ir.Block{latch}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range preds[b] {
			if !body[p] {
				body[p] = true
				stack = append(stack, p)
			}
		}
	}
	return body
}

func computePreheader(l *Loop, preds map[*ir.Block][]*ir.Block, dt *DomTree) *ir.Block {
	var outside []*ir.Block
	for _, p := range preds[l.Header] {
		if !l.blockSet[p] {
			outside = append(outside, p)
		}
	}
	if len(outside) != 1 {
		return nil
	}
	cand := outside[0]
	if !dt.Dominates(cand, l.Header) {
		return nil
	}
	return cand
}

func loopContains(outer, inner *Loop) bool {
	if len(outer.Blocks) <= len(inner.Blocks) {
		return false
	}
	for b := range inner.blockSet {
		if !outer.blockSet[b] {
			return false
		}
	}
	return true
}

func sortLoopsByHeaderPosition(fn *ir.Func, loops []*Loop) {
	pos := make(map[*ir.Block]int, len(fn.Blocks))
	for i, b := range fn.Blocks {
		pos[b] = i
	}
	sort.SliceStable(loops, func(i, j int) bool {
		return pos[loops[i].Header] < pos[loops[j].Header]
	})
}

// GetLoopFor returns the innermost loop containing b, or nil.
func (li *LoopInfo) GetLoopFor(b *ir.Block) *Loop {
	return li.blockLoop[b]
}

// All returns every loop in the function, in no particular order.
func (li *LoopInfo) All() []*Loop {
	return li.all
}

// LoopsInPreorder returns every loop such that a loop always precedes
// its own sub-loops, and siblings appear in the order their headers
// occur in the function. LoopFusion iterates this order to find
// adjacent same-depth, same-parent loop pairs.
func (li *LoopInfo) LoopsInPreorder() []*Loop {
	var out []*Loop
	var walk func(*Loop)
	walk = func(l *Loop) {
		out = append(out, l)
		for _, s := range l.SubLoops {
			walk(s)
		}
	}
	for _, l := range li.TopLevel {
		walk(l)
	}
	return out
}
