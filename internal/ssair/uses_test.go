package ssair

import (
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
)

func buildAddFunc() (*ir.Func, *ir.Block, *ir.InstAdd, *ir.Param, *ir.Param) {
	m := ir.NewModule()
	p0 := ir.NewParam("a", types.I32)
	p1 := ir.NewParam("b", types.I32)
	fn := m.NewFunc("f", types.I32, p0, p1)
	block := fn.NewBlock("entry")
	add := block.NewAdd(p0, p1)
	block.NewRet(add)
	return fn, block, add, p0, p1
}

func TestNewGraphIndexesOperands(t *testing.T) {
	fn, _, add, p0, p1 := buildAddFunc()
	g := NewGraph(fn)

	if !g.HasUses(p0) {
		t.Fatalf("expected p0 to have a use")
	}
	if !g.HasUses(p1) {
		t.Fatalf("expected p1 to have a use")
	}
	if got := g.NumUses(add); got != 1 {
		t.Fatalf("expected add to have exactly 1 use (the ret), got %d", got)
	}
}

func TestReplaceAllUsesWith(t *testing.T) {
	fn, block, add, p0, _ := buildAddFunc()
	g := NewGraph(fn)

	ReplaceAllUsesWith(g, add, p0)

	ret, ok := block.Term.(*ir.TermRet)
	if !ok {
		t.Fatalf("expected a ret terminator, got %T", block.Term)
	}
	if ret.X != p0 {
		t.Fatalf("expected ret operand to now be p0, got %v", ret.X)
	}
	if g.HasUses(add) {
		t.Fatalf("expected add to have no uses left after ReplaceAllUsesWith")
	}
	if got := g.NumUses(p0); got != 2 {
		t.Fatalf("expected p0 to pick up the moved use, got %d", got)
	}
}

func TestEraseRequiresNoUses(t *testing.T) {
	fn, block, add, _, _ := buildAddFunc()
	g := NewGraph(fn)

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected Erase to panic on an instruction that still has uses")
		}
	}()
	Erase(g, block, add)
}

func TestEraseDeadInstruction(t *testing.T) {
	fn, block, add, p0, _ := buildAddFunc()
	g := NewGraph(fn)
	ReplaceAllUsesWith(g, add, p0)

	Erase(g, block, add)

	for _, inst := range block.Insts {
		if inst == add {
			t.Fatalf("expected add to be removed from block.Insts")
		}
	}
}

func TestInsertAfterSplicesAndIndexes(t *testing.T) {
	fn, block, add, p0, p1 := buildAddFunc()
	g := NewGraph(fn)

	second := ir.NewAdd(add, p1)
	InsertAfter(g, block, add, second)

	if len(block.Insts) != 2 {
		t.Fatalf("expected 2 instructions after insert, got %d", len(block.Insts))
	}
	if block.Insts[1] != second {
		t.Fatalf("expected second to be spliced right after add")
	}
	if got := g.NumUses(add); got != 2 {
		t.Fatalf("expected add to now have 2 uses (second's operand + original ret), got %d", got)
	}
	_ = p0
}

func TestRetargetTerminator(t *testing.T) {
	m := ir.NewModule()
	fn := m.NewFunc("f", types.Void)
	a := fn.NewBlock("a")
	b := fn.NewBlock("b")
	c := fn.NewBlock("c")
	a.NewBr(b)

	term := a.Term
	RetargetTerminator(term, b, c)

	br, ok := a.Term.(*ir.TermBr)
	if !ok {
		t.Fatalf("expected TermBr, got %T", a.Term)
	}
	if br.Target != c {
		t.Fatalf("expected retargeted branch to point at c, got %v", br.Target)
	}
}

func TestDetachTerminatorDropsOldUses(t *testing.T) {
	m := ir.NewModule()
	fn := m.NewFunc("f", types.Void)
	a := fn.NewBlock("a")
	b := fn.NewBlock("b")
	c := fn.NewBlock("c")
	cond := ir.NewParam("cond", types.I1)
	fn.Params = append(fn.Params, cond)
	a.NewCondBr(cond, b, c)

	g := NewGraph(fn)
	if !g.HasUses(cond) {
		t.Fatalf("expected cond to be used by the CondBr")
	}

	newTerm := ir.NewBr(b)
	DetachTerminator(g, a, newTerm)

	if a.Term != newTerm {
		t.Fatalf("expected block's terminator to be replaced")
	}
	if g.HasUses(cond) {
		t.Fatalf("expected cond's use to be dropped once its CondBr was detached")
	}
}
