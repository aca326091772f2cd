package localopts

import (
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
)

func TestAlgebraicIdentityAddZero(t *testing.T) {
	m := ir.NewModule()
	fn := m.NewFunc("f", types.I32, ir.NewParam("x", types.I32))
	block := fn.NewBlock("entry")
	add := block.NewAdd(fn.Params[0], constant.NewInt(types.I32, 0))
	block.NewRet(add)

	p := New()
	if !p.RunOnFunction(fn) {
		t.Fatalf("expected a change")
	}

	ret := block.Term.(*ir.TermRet)
	if ret.X != fn.Params[0] {
		t.Fatalf("expected Add(x,0) to simplify to x, got %v", ret.X)
	}
	for _, inst := range block.Insts {
		if inst == add {
			t.Fatalf("expected the dead Add to be erased")
		}
	}
}

func TestAlgebraicIdentityMulOne(t *testing.T) {
	m := ir.NewModule()
	fn := m.NewFunc("f", types.I32, ir.NewParam("x", types.I32))
	block := fn.NewBlock("entry")
	mul := block.NewMul(fn.Params[0], constant.NewInt(types.I32, 1))
	block.NewRet(mul)

	p := New()
	if !p.RunOnFunction(fn) {
		t.Fatalf("expected a change")
	}
	ret := block.Term.(*ir.TermRet)
	if ret.X != fn.Params[0] {
		t.Fatalf("expected Mul(x,1) to simplify to x, got %v", ret.X)
	}
}

func TestConstantFoldingAdd(t *testing.T) {
	m := ir.NewModule()
	fn := m.NewFunc("f", types.I32)
	block := fn.NewBlock("entry")
	add := block.NewAdd(constant.NewInt(types.I32, 3), constant.NewInt(types.I32, 4))
	block.NewRet(add)

	p := New()
	if !p.RunOnFunction(fn) {
		t.Fatalf("expected a change")
	}

	ret := block.Term.(*ir.TermRet)
	dummy, ok := ret.X.(*ir.InstAdd)
	if !ok {
		t.Fatalf("expected folded result to be wrapped in a dummy Add, got %T", ret.X)
	}
	result, ok := dummy.X.(*constant.Int)
	if !ok || result.X.Int64() != 7 {
		t.Fatalf("expected folded constant 7, got %v", dummy.X)
	}
}

func TestConstantFoldingSDivUsesUnsignedDivision(t *testing.T) {
	m := ir.NewModule()
	fn := m.NewFunc("f", types.I8)
	block := fn.NewBlock("entry")
	// -1 as i8 is 255 unsigned; 255/2 = 127 under the source's
	// deliberately-unsigned SDiv fold.
	sdiv := block.NewSDiv(constant.NewInt(types.I8, -1), constant.NewInt(types.I8, 2))
	block.NewRet(sdiv)

	p := New()
	if !p.RunOnFunction(fn) {
		t.Fatalf("expected a change")
	}
	ret := block.Term.(*ir.TermRet)
	dummy := ret.X.(*ir.InstAdd)
	result := dummy.X.(*constant.Int)
	if result.X.Int64() != 127 {
		t.Fatalf("expected unsigned-division fold to give 127, got %v", result.X)
	}
}

func TestConstantFoldingDivisionByZeroSkipped(t *testing.T) {
	m := ir.NewModule()
	fn := m.NewFunc("f", types.I32)
	block := fn.NewBlock("entry")
	udiv := block.NewUDiv(constant.NewInt(types.I32, 10), constant.NewInt(types.I32, 0))
	block.NewRet(udiv)

	p := New()
	p.RunOnFunction(fn)

	ret := block.Term.(*ir.TermRet)
	if ret.X != udiv {
		t.Fatalf("expected division by zero to be left unfolded")
	}
}

func TestStrengthReductionMulPowerOfTwo(t *testing.T) {
	m := ir.NewModule()
	fn := m.NewFunc("f", types.I32, ir.NewParam("x", types.I32))
	block := fn.NewBlock("entry")
	mul := block.NewMul(fn.Params[0], constant.NewInt(types.I32, 8))
	block.NewRet(mul)

	p := New()
	if !p.RunOnFunction(fn) {
		t.Fatalf("expected a change")
	}
	ret := block.Term.(*ir.TermRet)
	shl, ok := ret.X.(*ir.InstShl)
	if !ok {
		t.Fatalf("expected Mul(x,8) to strength-reduce to a Shl, got %T", ret.X)
	}
	amt, ok := shl.Y.(*constant.Int)
	if !ok || amt.X.Int64() != 3 {
		t.Fatalf("expected a shift amount of 3, got %v", shl.Y)
	}
}

func TestStrengthReductionMulNonPowerOfTwo(t *testing.T) {
	m := ir.NewModule()
	fn := m.NewFunc("f", types.I32, ir.NewParam("x", types.I32))
	block := fn.NewBlock("entry")
	// 6 is not a power of two: ceilLog2(6)=3 (2^3=8), residual=2, so the
	// first rewrite is Sub(Shl(x,3), Mul(x,2)); the residual Mul(x,2) is a
	// power of two and is itself reduced to Shl(x,1) before the fixpoint.
	mul := block.NewMul(fn.Params[0], constant.NewInt(types.I32, 6))
	block.NewRet(mul)

	p := New()
	if !p.RunOnFunction(fn) {
		t.Fatalf("expected a change")
	}
	ret := block.Term.(*ir.TermRet)
	sub, ok := ret.X.(*ir.InstSub)
	if !ok {
		t.Fatalf("expected a Sub as the final result, got %T", ret.X)
	}
	if _, ok := sub.X.(*ir.InstShl); !ok {
		t.Fatalf("expected Sub's left operand to be a Shl, got %T", sub.X)
	}
	if _, ok := sub.Y.(*ir.InstShl); !ok {
		t.Fatalf("expected Sub's right operand to be the reduced residual Shl, got %T", sub.Y)
	}
}

func TestStrengthReductionUDivOnlyForPowerOfTwo(t *testing.T) {
	m := ir.NewModule()
	fn := m.NewFunc("f", types.I32, ir.NewParam("x", types.I32))
	block := fn.NewBlock("entry")
	udiv := block.NewUDiv(fn.Params[0], constant.NewInt(types.I32, 3))
	block.NewRet(udiv)

	p := New()
	p.RunOnFunction(fn)

	ret := block.Term.(*ir.TermRet)
	if ret.X != udiv {
		t.Fatalf("expected UDiv by a non-power-of-two to be left alone")
	}
}

func TestMultiInstructionOptCancelsAddSub(t *testing.T) {
	m := ir.NewModule()
	fn := m.NewFunc("f", types.I32, ir.NewParam("x", types.I32))
	block := fn.NewBlock("entry")
	add := block.NewAdd(fn.Params[0], constant.NewInt(types.I32, 5))
	sub := block.NewSub(add, constant.NewInt(types.I32, 5))
	block.NewRet(sub)

	p := New()
	if !p.RunOnFunction(fn) {
		t.Fatalf("expected a change")
	}
	ret := block.Term.(*ir.TermRet)
	if ret.X != fn.Params[0] {
		t.Fatalf("expected Add(x,5) then Sub(_,5) to cancel to x, got %v", ret.X)
	}
}

func TestDeadInstructionIsErased(t *testing.T) {
	m := ir.NewModule()
	fn := m.NewFunc("f", types.I32, ir.NewParam("x", types.I32))
	block := fn.NewBlock("entry")
	dead := block.NewAdd(fn.Params[0], constant.NewInt(types.I32, 1))
	block.NewRet(fn.Params[0])

	p := New()
	if !p.RunOnFunction(fn) {
		t.Fatalf("expected a change: the unused Add should be removed")
	}
	for _, inst := range block.Insts {
		if inst == dead {
			t.Fatalf("expected the unused instruction to be erased")
		}
	}
}
