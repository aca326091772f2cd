package analysis

import (
	"math/big"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/value"
)

// TripCount is the (simplified) backedge-taken-count SCEV of a canonical
// counted loop: iv starts at Start, is compared against Bound by the
// header's exit test, and advances by Step each iteration. This is a
// minimal SCEV restricted to affine add-recurrences over a single loop's
// canonical induction variable, in place of a general scalar-evolution
// engine: anything outside that shape is reported as uncomputable rather
// than modeled approximately.
type TripCount struct {
	Start value.Value
	Bound value.Value
	Step  *big.Int
}

// ComputeTripCount extracts l's backedge-taken-count SCEV from its
// canonical induction variable and the header's exit comparison. It
// returns false (the SCEVCouldNotCompute case) if the loop is not in
// canonical form or the header's exit test does not compare the
// induction variable against some bound.
func (l *Loop) ComputeTripCount() (*TripCount, bool) {
	iv := l.InductionVariable()
	if iv == nil {
		return nil, false
	}
	var cmp *ir.InstICmp
	for _, inst := range l.Header.Insts {
		if c, ok := inst.(*ir.InstICmp); ok && (sameValue(c.X, iv.Phi) || sameValue(c.Y, iv.Phi)) {
			cmp = c
			break
		}
	}
	if cmp == nil {
		return nil, false
	}
	var bound value.Value
	if sameValue(cmp.X, iv.Phi) {
		bound = cmp.Y
	} else {
		bound = cmp.X
	}
	return &TripCount{Start: iv.Start, Bound: bound, Step: iv.Step}, true
}

// SameTripCount reports structural equality of two trip counts: same
// start value, same bound value, same step. This is SCEV *structural*
// equality, not numeric equality of unrelated expressions: two trip
// counts compare equal only when built from the same values, never by
// evaluating them.
func SameTripCount(a, b *TripCount) bool {
	if a == nil || b == nil {
		return false
	}
	return sameValue(a.Start, b.Start) && sameValue(a.Bound, b.Bound) && a.Step.Cmp(b.Step) == 0
}

// PointerAddRec is the affine recurrence of a GEP's last index over a
// loop's induction variable: index(i) = Start + Step*i, based at Base.
type PointerAddRec struct {
	Base  value.Value
	Start *big.Int
	Step  *big.Int
}

// AnalyzeGEP attempts to express gep's final index as an affine function
// of loop's induction variable. It recognizes the index being the
// induction variable itself, or Add/Sub/Mul of the induction variable
// with a constant: a deliberately narrow set of affine-index shapes in
// place of general SCEV construction. It returns ok=false for any shape
// outside this set, which callers must treat conservatively (as "not
// provably independent").
func AnalyzeGEP(loop *Loop, gep *ir.InstGetElementPtr) (*PointerAddRec, bool) {
	iv := loop.InductionVariable()
	if iv == nil || len(gep.Indices) == 0 {
		return nil, false
	}
	idx := gep.Indices[len(gep.Indices)-1]
	start, step, ok := matchAffineIndex(idx, iv.Phi)
	if !ok {
		return nil, false
	}
	return &PointerAddRec{Base: gep.Src, Start: start, Step: step}, true
}

func matchAffineIndex(idx value.Value, iv *ir.InstPhi) (start, step *big.Int, ok bool) {
	if sameValue(idx, iv) {
		return big.NewInt(0), big.NewInt(1), true
	}
	switch inst := idx.(type) {
	case *ir.InstAdd:
		if c, v, matched := splitConstOperand(inst.X, inst.Y); matched && sameValue(v, iv) {
			return new(big.Int).Set(c.X), big.NewInt(1), true
		}
	case *ir.InstSub:
		if c, ok2 := inst.Y.(*constant.Int); ok2 && sameValue(inst.X, iv) {
			return new(big.Int).Neg(c.X), big.NewInt(1), true
		}
	case *ir.InstMul:
		if c, v, matched := splitConstOperand(inst.X, inst.Y); matched && sameValue(v, iv) {
			return big.NewInt(0), new(big.Int).Set(c.X), true
		}
	}
	return nil, nil, false
}

func splitConstOperand(x, y value.Value) (c *constant.Int, other value.Value, ok bool) {
	if cx, isC := x.(*constant.Int); isC {
		return cx, y, true
	}
	if cy, isC := y.(*constant.Int); isC {
		return cy, x, true
	}
	return nil, nil, false
}
