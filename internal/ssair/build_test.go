package ssair

import (
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
)

func TestBuildCountedLoopShape(t *testing.T) {
	m := ir.NewModule()
	fn := m.NewFunc("f", types.Void, ir.NewParam("n", types.I64))
	n := fn.Params[0]
	ct := NewConstantTable()

	loop := BuildCountedLoop(fn, "", ct.IntFromInt64(types.I64, 0), n, 1, types.I64, ct)

	if loop.Preheader == nil || loop.Header == nil || loop.Body == nil || loop.Latch == nil || loop.Exit == nil {
		t.Fatalf("expected all five blocks to be populated")
	}

	preBr, ok := loop.Preheader.Term.(*ir.TermBr)
	if !ok || preBr.Target != loop.Header {
		t.Fatalf("expected preheader to branch unconditionally to header")
	}

	headerBr, ok := loop.Header.Term.(*ir.TermCondBr)
	if !ok {
		t.Fatalf("expected header to end in a conditional branch, got %T", loop.Header.Term)
	}
	if headerBr.TargetTrue != loop.Body || headerBr.TargetFalse != loop.Exit {
		t.Fatalf("expected header to branch to body on true and exit on false")
	}

	bodyBr, ok := loop.Body.Term.(*ir.TermBr)
	if !ok || bodyBr.Target != loop.Latch {
		t.Fatalf("expected body to branch unconditionally to latch")
	}

	latchBr, ok := loop.Latch.Term.(*ir.TermBr)
	if !ok || latchBr.Target != loop.Header {
		t.Fatalf("expected latch to branch back to header")
	}

	if len(loop.IV.Incs) != 2 {
		t.Fatalf("expected the induction variable Phi to have exactly 2 incoming edges, got %d", len(loop.IV.Incs))
	}
	if loop.IV.Incs[0].Pred != loop.Preheader {
		t.Fatalf("expected the first incoming edge to come from the preheader")
	}
	if loop.IV.Incs[1].Pred != loop.Latch {
		t.Fatalf("expected the second incoming edge to come from the latch")
	}
}
