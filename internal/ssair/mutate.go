package ssair

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/value"
)

// ReplaceAllUsesWith rewrites every operand slot that currently holds old
// so that it holds newVal instead, and moves old's use-list entries over
// to newVal.
func ReplaceAllUsesWith(g *Graph, old, newVal value.Value) {
	if old == newVal {
		return
	}
	uses := g.uses[old]
	for _, u := range uses {
		operands := u.User.Operands()
		*operands[u.Index] = newVal
		g.uses[newVal] = append(g.uses[newVal], u)
	}
	delete(g.uses, old)
}

// ReplaceUsesOfWith rewrites only the operand slots of user that hold
// old, leaving every other user of old untouched.
func ReplaceUsesOfWith(g *Graph, user User, old, newVal value.Value) {
	changed := false
	for i, operand := range user.Operands() {
		if *operand == old {
			*operand = newVal
			changed = true
			_ = i
		}
	}
	if changed {
		g.Reindex(user)
	}
}

// InsertBefore splices newInst into block immediately before mark, and
// indexes its operands in g. mark must already be present in block.Insts.
func InsertBefore(g *Graph, block *ir.Block, mark ir.Instruction, newInst ir.Instruction) {
	idx := indexOf(block, mark)
	if idx < 0 {
		panic(fmt.Sprintf("ssair: InsertBefore: mark instruction %v not found in block %s", mark, block.Ident()))
	}
	insertAt(block, idx, newInst)
	g.index(newInst)
}

// InsertAfter splices newInst into block immediately after mark.
func InsertAfter(g *Graph, block *ir.Block, mark ir.Instruction, newInst ir.Instruction) {
	idx := indexOf(block, mark)
	if idx < 0 {
		panic(fmt.Sprintf("ssair: InsertAfter: mark instruction %v not found in block %s", mark, block.Ident()))
	}
	insertAt(block, idx+1, newInst)
	g.index(newInst)
}

// InsertBeforeTerm appends newInst to the end of block's instruction
// list, i.e. immediately before its terminator. Used by LICM to hoist
// an instruction into a loop preheader.
func InsertBeforeTerm(g *Graph, block *ir.Block, newInst ir.Instruction) {
	block.Insts = append(block.Insts, newInst)
	g.index(newInst)
}

// Erase removes inst from block and drops its use-list entries. It
// panics if inst still has uses: callers must be certain the
// instruction is dead before calling this.
func Erase(g *Graph, block *ir.Block, inst ir.Instruction) {
	if v, ok := inst.(value.Value); ok && g.HasUses(v) {
		panic(fmt.Sprintf("ssair: Erase: instruction %v still has uses", inst))
	}
	idx := indexOf(block, inst)
	if idx < 0 {
		panic(fmt.Sprintf("ssair: Erase: instruction %v not found in block %s", inst, block.Ident()))
	}
	removeOperandUses(g, inst)
	block.Insts = append(block.Insts[:idx], block.Insts[idx+1:]...)
	g.removeUser(inst)
}

// Remove detaches inst from block without checking for remaining uses
// and without clearing its own use-list entries as an operand source
// (used by LICM's code motion, which relocates rather than deletes).
func Remove(block *ir.Block, inst ir.Instruction) {
	idx := indexOf(block, inst)
	if idx < 0 {
		panic(fmt.Sprintf("ssair: Remove: instruction %v not found in block %s", inst, block.Ident()))
	}
	block.Insts = append(block.Insts[:idx], block.Insts[idx+1:]...)
}

func removeOperandUses(g *Graph, user User) {
	for _, operand := range user.Operands() {
		v := *operand
		if v == nil {
			continue
		}
		list := g.uses[v]
		filtered := list[:0]
		for _, u := range list {
			if !(u.User == user) {
				filtered = append(filtered, u)
			}
		}
		if len(filtered) == 0 {
			delete(g.uses, v)
		} else {
			g.uses[v] = filtered
		}
	}
}

// DetachTerminator drops block.Term's own use-list entries and replaces
// it with newTerm, indexing newTerm's operands. Used when a pass
// rewrites a block's terminator outright (e.g. LoopFusion collapsing a
// conditional exit test into an unconditional branch).
func DetachTerminator(g *Graph, block *ir.Block, newTerm ir.Terminator) {
	if block.Term != nil {
		removeOperandUses(g, block.Term)
	}
	block.Term = newTerm
	g.index(newTerm)
}

// RetargetTerminator rewrites every successor slot of term that
// currently points to from so that it points to to instead. Terminators'
// branch targets are plain *ir.Block fields, not SSA operands, so this
// mutates them directly rather than going through the use-list.
func RetargetTerminator(term ir.Terminator, from, to *ir.Block) {
	switch t := term.(type) {
	case *ir.TermBr:
		if t.Target == from {
			t.Target = to
		}
	case *ir.TermCondBr:
		if t.TargetTrue == from {
			t.TargetTrue = to
		}
		if t.TargetFalse == from {
			t.TargetFalse = to
		}
	}
}

func indexOf(block *ir.Block, inst ir.Instruction) int {
	for i, in := range block.Insts {
		if in == inst {
			return i
		}
	}
	return -1
}

func insertAt(block *ir.Block, idx int, inst ir.Instruction) {
	block.Insts = append(block.Insts, nil)
	copy(block.Insts[idx+1:], block.Insts[idx:])
	block.Insts[idx] = inst
}
