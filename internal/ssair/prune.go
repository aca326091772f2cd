package ssair

import "github.com/llir/llvm/ir"

// PruneUnreachableBlocks drops every block of fn not reachable from its
// entry block. This is a module/function-scope cleanup kept separate
// from LocalOpts' block-local peephole pass; it is offered here as a
// standalone helper for the demonstration driver.
func PruneUnreachableBlocks(fn *ir.Func) bool {
	if len(fn.Blocks) == 0 {
		return false
	}
	reachable := make(map[*ir.Block]bool, len(fn.Blocks))
	markReachable(fn.Blocks[0], reachable)

	kept := make([]*ir.Block, 0, len(fn.Blocks))
	changed := false
	for _, block := range fn.Blocks {
		if reachable[block] {
			kept = append(kept, block)
		} else {
			changed = true
		}
	}
	fn.Blocks = kept
	return changed
}

func markReachable(block *ir.Block, reachable map[*ir.Block]bool) {
	if reachable[block] {
		return
	}
	reachable[block] = true
	if block.Term != nil {
		for _, succ := range block.Term.Succs() {
			markReachable(succ, reachable)
		}
	}
}

// PruneDeadFunctions removes functions from m that are never called and
// are not named entryName. Declarations (functions with no blocks) are
// always kept.
func PruneDeadFunctions(m *ir.Module, entryName string) bool {
	referenced := make(map[string]bool)
	for _, fn := range m.Funcs {
		for _, block := range fn.Blocks {
			for _, inst := range block.Insts {
				if call, ok := inst.(*ir.InstCall); ok {
					if callee, ok := call.Callee.(*ir.Func); ok {
						referenced[callee.Name()] = true
					}
				}
			}
		}
	}

	kept := make([]*ir.Func, 0, len(m.Funcs))
	changed := false
	for _, fn := range m.Funcs {
		if fn.Name() == entryName || referenced[fn.Name()] || len(fn.Blocks) == 0 {
			kept = append(kept, fn)
		} else {
			changed = true
		}
	}
	m.Funcs = kept
	return changed
}
