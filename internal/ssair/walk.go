package ssair

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/value"
)

// TransitiveUsers returns every User that consumes v, expanding through
// any Phi instruction transparently: a Phi is never itself a terminal
// use point, its own users are collected instead. LICM's
// use-dominates-definition and dead-outside-loop checks both depend on
// this walk.
func TransitiveUsers(g *Graph, v value.Value) []User {
	var result []User
	seen := make(map[*ir.InstPhi]bool)
	var walk func(value.Value)
	walk = func(val value.Value) {
		for _, u := range g.Uses(val) {
			if phi, ok := u.User.(*ir.InstPhi); ok {
				if seen[phi] {
					continue
				}
				seen[phi] = true
				walk(phi)
				continue
			}
			result = append(result, u.User)
		}
	}
	walk(v)
	return result
}

// IsBinaryInst reports whether inst is one of the seven binary opcodes
// LocalOpts operates over (Add, Sub, Mul, UDiv, SDiv, Shl, LShr).
func IsBinaryInst(inst ir.Instruction) bool {
	switch inst.(type) {
	case *ir.InstAdd, *ir.InstSub, *ir.InstMul, *ir.InstUDiv, *ir.InstSDiv, *ir.InstShl, *ir.InstLShr:
		return true
	}
	return false
}

// BinaryOperands returns the two operands of one of the seven binary
// opcodes LocalOpts/LoopOpts reason about, or ok=false for anything
// else.
func BinaryOperands(inst ir.Instruction) (x, y value.Value, ok bool) {
	switch i := inst.(type) {
	case *ir.InstAdd:
		return i.X, i.Y, true
	case *ir.InstSub:
		return i.X, i.Y, true
	case *ir.InstMul:
		return i.X, i.Y, true
	case *ir.InstUDiv:
		return i.X, i.Y, true
	case *ir.InstSDiv:
		return i.X, i.Y, true
	case *ir.InstShl:
		return i.X, i.Y, true
	case *ir.InstLShr:
		return i.X, i.Y, true
	}
	return nil, nil, false
}

// ParentBlock returns the parent block of a User, whether it is an
// ir.Instruction or an ir.Terminator.
func ParentBlock(u User) *ir.Block {
	if inst, ok := u.(ir.Instruction); ok {
		return inst.Parent()
	}
	if term, ok := u.(ir.Terminator); ok {
		return term.Parent()
	}
	return nil
}

// InstructionsOf flattens a block's Insts into an index for fast lookup,
// for testing "does instruction A precede B" within one block.
func InstructionsOf(block *ir.Block) map[ir.Instruction]int {
	idx := make(map[ir.Instruction]int, len(block.Insts))
	for i, inst := range block.Insts {
		idx[inst] = i
	}
	return idx
}
