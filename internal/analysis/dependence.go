package analysis

import (
	"math/big"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/value"
)

// DependenceInfo is a conservative, same-base-pointer memory dependence
// query: a general alias analysis is out of scope, so this answers only
// "do these two pointers provably not alias" (distinct allocas, distinct
// globals) and otherwise assumes they may.
type DependenceInfo struct{}

// NewDependenceInfo returns a DependenceInfo.
func NewDependenceInfo() *DependenceInfo {
	return &DependenceInfo{}
}

// MayAlias reports whether pointers a and b might refer to overlapping
// memory. Two distinct stack allocations or two distinct globals never
// alias; any other pair (including two GEPs off the same base) is
// assumed to possibly alias.
func (di *DependenceInfo) MayAlias(a, b value.Value) bool {
	ba, bb := BasePointer(a), BasePointer(b)
	if sameValue(ba, bb) {
		return true
	}
	return !distinguishable(ba, bb)
}

// BasePointer unwraps a chain of GetElementPtr instructions down to the
// underlying allocation or global it indexes into.
func BasePointer(v value.Value) value.Value {
	for {
		gep, ok := v.(*ir.InstGetElementPtr)
		if !ok {
			return v
		}
		v = gep.Src
	}
}

func distinguishable(a, b value.Value) bool {
	if _, aIsAlloca := a.(*ir.InstAlloca); aIsAlloca {
		if _, bIsAlloca := b.(*ir.InstAlloca); bIsAlloca {
			return !sameValue(a, b)
		}
	}
	if ag, aIsGlobal := a.(*ir.Global); aIsGlobal {
		if bg, bIsGlobal := b.(*ir.Global); bIsGlobal {
			return ag != bg
		}
	}
	return false
}

// IsDistanceNegative reports whether the dependence distance between two
// affine pointer recurrences over the same base makes fusing their
// enclosing loops illegal. It returns true (forbid fusion) when either
// recurrence is missing (non-affine) or the strides are zero or
// mismatched. It returns false when the bases differ or when delta is not
// a multiple of the stride. Otherwise it computes a sign-only distance:
// dependence_dist = stride<0 ? -delta : delta; forbidden iff
// dependence_dist < 0. This scales delta by stride's sign rather than
// dividing by it (see DESIGN.md).
func IsDistanceNegative(ar1, ar2 *PointerAddRec) bool {
	if ar1 == nil || ar2 == nil {
		return true
	}
	if !sameValue(ar1.Base, ar2.Base) {
		return false
	}
	if ar1.Step.Sign() == 0 || ar2.Step.Sign() == 0 || ar1.Step.Cmp(ar2.Step) != 0 {
		return true
	}
	stride := ar1.Step
	delta := new(big.Int).Sub(ar1.Start, ar2.Start)
	if new(big.Int).Mod(delta, stride).Sign() != 0 {
		return false
	}
	dependenceDist := new(big.Int).Set(delta)
	if stride.Sign() < 0 {
		dependenceDist.Neg(dependenceDist)
	}
	return dependenceDist.Sign() < 0
}
