package analysis

import (
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"

	"github.com/optiravm/ssaopt/internal/ssair"
)

func TestAnalyzeBundlesEveryView(t *testing.T) {
	m := ir.NewModule()
	fn := m.NewFunc("f", types.Void, ir.NewParam("n", types.I64))
	n := fn.Params[0]
	ct := ssair.NewConstantTable()

	entry := fn.NewBlock("entry")
	shape := ssair.BuildCountedLoop(fn, "", ct.IntFromInt64(types.I64, 0), n, 1, types.I64, ct)
	entry.NewBr(shape.Preheader)
	shape.Exit.NewRet(nil)

	fa := Analyze(fn)
	if fa.Func != fn {
		t.Fatalf("expected Func to be the analyzed function")
	}
	if fa.DomTree == nil || fa.PostDom == nil || fa.LoopInfo == nil || fa.Dependence == nil {
		t.Fatalf("expected every analysis view to be populated")
	}
	if len(fa.LoopInfo.All()) != 1 {
		t.Fatalf("expected Analyze to discover the one loop in fn")
	}
}
