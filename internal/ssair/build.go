package ssair

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// LoopShape is a small, canonical counted-loop skeleton used by tests
// and the demonstration driver to exercise the Analysis Oracle and the
// LoopOpts/LoopFusion passes without hand-assembling five blocks by hand
// each time.
//
//	preheader --> header --(true)--> body --> latch --\
//	                 ^--------------------------------/
//	                 |
//	              (false)
//	                 v
//	               exit
type LoopShape struct {
	Preheader *ir.Block
	Header    *ir.Block
	Body      *ir.Block
	Latch     *ir.Block
	Exit      *ir.Block
	IV        *ir.InstPhi
	Bound     value.Value
}

// BuildCountedLoop appends a canonical header-tested counted loop to fn: a
// preheader branching into a header that tests iv against bound, a body
// entered only when the test passes, and a latch that increments iv by
// step and branches back to the header. suffix distinguishes block names
// when multiple loops are built in the same function (as LoopFusion
// tests require).
func BuildCountedLoop(fn *ir.Func, suffix string, start, bound value.Value, step int64, ivType *types.IntType, ct *ConstantTable) *LoopShape {
	preheader := fn.NewBlock("preheader" + suffix)
	header := fn.NewBlock("header" + suffix)
	body := fn.NewBlock("body" + suffix)
	latch := fn.NewBlock("latch" + suffix)
	exit := fn.NewBlock("exit" + suffix)

	iv := header.NewPhi(ir.NewIncoming(start, preheader))
	cmp := header.NewICmp(enum.IPredSLT, iv, bound)
	header.NewCondBr(cmp, body, exit)

	body.NewBr(latch)

	ivNext := latch.NewAdd(iv, ct.IntFromInt64(ivType, step))
	latch.NewBr(header)
	iv.Incs = append(iv.Incs, ir.NewIncoming(ivNext, latch))

	preheader.NewBr(header)

	return &LoopShape{
		Preheader: preheader,
		Header:    header,
		Body:      body,
		Latch:     latch,
		Exit:      exit,
		IV:        iv,
		Bound:     bound,
	}
}
