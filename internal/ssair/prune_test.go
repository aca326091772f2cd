package ssair

import (
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
)

func TestPruneUnreachableBlocks(t *testing.T) {
	m := ir.NewModule()
	fn := m.NewFunc("f", types.Void)
	entry := fn.NewBlock("entry")
	reachable := fn.NewBlock("reachable")
	orphan := fn.NewBlock("orphan")
	entry.NewBr(reachable)
	reachable.NewRet(nil)
	orphan.NewRet(nil)

	changed := PruneUnreachableBlocks(fn)
	if !changed {
		t.Fatalf("expected PruneUnreachableBlocks to report a change")
	}
	for _, b := range fn.Blocks {
		if b == orphan {
			t.Fatalf("expected orphan block to be removed")
		}
	}
	if len(fn.Blocks) != 2 {
		t.Fatalf("expected 2 remaining blocks, got %d", len(fn.Blocks))
	}
}

func TestPruneDeadFunctions(t *testing.T) {
	m := ir.NewModule()
	entryFn := m.NewFunc("main", types.Void)
	entryBlock := entryFn.NewBlock("entry")

	helper := m.NewFunc("helper", types.Void)
	helperBlock := helper.NewBlock("entry")
	helperBlock.NewRet(nil)

	unused := m.NewFunc("unused", types.Void)
	unusedBlock := unused.NewBlock("entry")
	unusedBlock.NewRet(nil)

	entryBlock.NewCall(helper)
	entryBlock.NewRet(nil)

	changed := PruneDeadFunctions(m, "main")
	if !changed {
		t.Fatalf("expected PruneDeadFunctions to report a change")
	}

	names := make(map[string]bool)
	for _, fn := range m.Funcs {
		names[fn.Name()] = true
	}
	if !names["main"] || !names["helper"] {
		t.Fatalf("expected main and helper to survive, got %v", names)
	}
	if names["unused"] {
		t.Fatalf("expected unused to be pruned")
	}
}
