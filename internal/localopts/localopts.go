// Package localopts implements the block-local peephole optimization
// pass: algebraic identities, constant folding, strength reduction, and
// opposite-operation cancellation.
package localopts

import (
	"log"
	"math/big"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/optiravm/ssaopt/internal/analysis"
	"github.com/optiravm/ssaopt/internal/ssair"
)

// Pass runs LocalOpts over a module or function. Logger is optional; a
// nil Logger disables tracing (the default, matching a discard logger).
type Pass struct {
	Consts *ssair.ConstantTable
	Logger *log.Logger
}

// New returns a Pass with a fresh constant table.
func New() *Pass {
	return &Pass{Consts: ssair.NewConstantTable()}
}

func (p *Pass) logf(format string, args ...interface{}) {
	if p.Logger != nil {
		p.Logger.Printf(format, args...)
	}
}

// binOp is our own small enum over the seven binary opcodes LocalOpts
// operates on, since each is a distinct Go type in package ir.
type binOp int

const (
	opAdd binOp = iota
	opSub
	opMul
	opUDiv
	opSDiv
	opShl
	opLShr
)

// oppositeOp mirrors LocalOpts.cpp's oppositeOp table: each entry names
// the opcode that can cancel the row's opcode out (e.g. x+C then -C).
var oppositeOp = map[binOp]binOp{
	opAdd:  opSub,
	opSub:  opAdd,
	opMul:  opUDiv,
	opUDiv: opMul,
	opShl:  opLShr,
	opLShr: opShl,
}

func opcodeOf(inst ir.Instruction) (binOp, bool) {
	switch inst.(type) {
	case *ir.InstAdd:
		return opAdd, true
	case *ir.InstSub:
		return opSub, true
	case *ir.InstMul:
		return opMul, true
	case *ir.InstUDiv:
		return opUDiv, true
	case *ir.InstSDiv:
		return opSDiv, true
	case *ir.InstShl:
		return opShl, true
	case *ir.InstLShr:
		return opLShr, true
	}
	return 0, false
}

// commutative reports whether operand order doesn't matter for opcode.
func commutative(op binOp) bool {
	return op == opAdd || op == opMul
}

func operandsOf(inst ir.Instruction) (x, y value.Value) {
	switch i := inst.(type) {
	case *ir.InstAdd:
		return i.X, i.Y
	case *ir.InstSub:
		return i.X, i.Y
	case *ir.InstMul:
		return i.X, i.Y
	case *ir.InstUDiv:
		return i.X, i.Y
	case *ir.InstSDiv:
		return i.X, i.Y
	case *ir.InstShl:
		return i.X, i.Y
	case *ir.InstLShr:
		return i.X, i.Y
	}
	return nil, nil
}

// canonical extracts (V, C) from a binary instruction that has exactly
// one constant-int operand, honoring operand order for non-commutative
// opcodes: Sub/UDiv/SDiv/Shl/LShr only recognize the constant on the
// right (Y), matching getValAndConst in the source.
func canonical(inst ir.Instruction) (v value.Value, c *constant.Int, op binOp, ok bool) {
	op, ok = opcodeOf(inst)
	if !ok {
		return nil, nil, 0, false
	}
	x, y := operandsOf(inst)
	cx, xIsConst := x.(*constant.Int)
	cy, yIsConst := y.(*constant.Int)
	if xIsConst == yIsConst {
		// either both constant (handled by ConstantFolding) or neither.
		return nil, nil, op, false
	}
	if commutative(op) {
		if xIsConst {
			return y, cx, op, true
		}
		return x, cy, op, true
	}
	if yIsConst {
		return x, cy, op, true
	}
	return nil, nil, op, false
}

// Run applies LocalOpts to every function in m, iterating to a fixpoint
// within each basic block and reporting PreservedAll only if no function
// changed at all, matching LocalOpts::run's module-level "none if any
// function changed, else all".
func (p *Pass) Run(m *ir.Module) analysis.Preserved {
	anyChanged := false
	for _, fn := range m.Funcs {
		if p.RunOnFunction(fn) {
			anyChanged = true
		}
	}
	return analysis.Changed(anyChanged)
}

// RunOnFunction runs LocalOpts over every block of fn.
func (p *Pass) RunOnFunction(fn *ir.Func) bool {
	if len(fn.Blocks) == 0 {
		return false
	}
	g := ssair.NewGraph(fn)
	changed := false
	for _, block := range fn.Blocks {
		if p.runOnBasicBlock(g, block) {
			changed = true
		}
	}
	return changed
}

// runOnBasicBlock is a do/while fixpoint scan: within one scan, newly
// inserted instructions (e.g. the dummy Add ConstantFolding appends)
// are visited in the same pass because the loop re-reads len(block.Insts)
// every iteration, exactly as the source's live `for (auto &inst : B)`
// does.
func (p *Pass) runOnBasicBlock(g *ssair.Graph, block *ir.Block) bool {
	changedOverall := false
	for {
		changedThisPass := false
		dead := make(map[ir.Instruction]bool)

		for i := 0; i < len(block.Insts); i++ {
			inst := block.Insts[i]
			if !ssair.IsBinaryInst(inst) {
				continue
			}
			instVal, _ := inst.(value.Value)
			if !g.HasUses(instVal) {
				dead[inst] = true
				continue
			}

			v, c, op, hasOneConst := canonical(inst)
			x, y := operandsOf(inst)
			cx, xIsC := x.(*constant.Int)
			cy, yIsC := y.(*constant.Int)

			switch {
			case hasOneConst && p.algebraicIdentity(g, inst, v, c, op):
				dead[inst] = true
				changedThisPass = true
			case xIsC && yIsC && p.constantFolding(g, block, inst, cx, cy):
				dead[inst] = true
				changedThisPass = true
			case hasOneConst && p.multiInstructionOpt(g, inst, v, c):
				changedThisPass = true
			case hasOneConst && p.strengthReduction(g, block, inst, v, c):
				dead[inst] = true
				changedThisPass = true
			}
		}

		erasedAny := false
		for inst := range dead {
			if v, ok := inst.(value.Value); ok && g.HasUses(v) {
				continue
			}
			ssair.Erase(g, block, inst)
			erasedAny = true
		}

		if !changedThisPass && !erasedAny {
			break
		}
		changedOverall = true
	}
	return changedOverall
}

// algebraicIdentity implements AlgebraicIdentity: C==0 is the identity
// for Add/Sub/Shl/LShr, C==1 is the identity for Mul/UDiv/SDiv.
func (p *Pass) algebraicIdentity(g *ssair.Graph, inst ir.Instruction, v value.Value, c *constant.Int, op binOp) bool {
	var identity int64
	switch op {
	case opAdd, opSub, opShl, opLShr:
		identity = 0
	case opMul, opUDiv, opSDiv:
		identity = 1
	default:
		return false
	}
	if c.X.Cmp(big.NewInt(identity)) != 0 {
		return false
	}
	instVal := inst.(value.Value)
	p.logf("localopts: algebraic identity on %s -> %s", instVal.Ident(), v.Ident())
	ssair.ReplaceAllUsesWith(g, instVal, v)
	return true
}

// constantFolding implements ConstantFolding: both operands are
// constants, compute the result at the instruction's bit width, insert
// it as a dummy Add(result, 0) immediately after inst, and redirect
// inst's uses to the dummy. SDiv folds with unsigned division exactly
// like UDiv — a deliberate, ground-truth-faithful quirk, see DESIGN.md.
func (p *Pass) constantFolding(g *ssair.Graph, block *ir.Block, inst ir.Instruction, cx, cy *constant.Int) bool {
	op, ok := opcodeOf(inst)
	if !ok {
		return false
	}
	typ, ok := inst.(value.Value).Type().(*types.IntType)
	if !ok {
		return false
	}
	bits := typ.BitSize

	isDiv := op == opUDiv || op == opSDiv
	if isDiv && cy.X.Sign() == 0 {
		return false
	}
	// An Add with either operand zero must not be folded into a dummy
	// Add(result, 0): the dummy is itself such an Add, so folding it would
	// loop forever re-emitting dummies each pass.
	if op == opAdd && (cx.X.Sign() == 0 || cy.X.Sign() == 0) {
		return false
	}

	var result *big.Int
	switch op {
	case opAdd:
		result = new(big.Int).Add(cx.X, cy.X)
	case opSub:
		result = new(big.Int).Sub(cx.X, cy.X)
	case opMul:
		result = new(big.Int).Mul(cx.X, cy.X)
	case opUDiv, opSDiv:
		// Both UDiv and SDiv fold via unsigned division here; this is
		// intentional, not a typo (see DESIGN.md).
		ux := unsignedOf(cx.X, bits)
		uy := unsignedOf(cy.X, bits)
		result = new(big.Int).Div(ux, uy)
	case opShl:
		result = new(big.Int).Lsh(cx.X, uint(cy.X.Int64()))
	case opLShr:
		ux := unsignedOf(cx.X, bits)
		result = new(big.Int).Rsh(ux, uint(cy.X.Int64()))
	default:
		return false
	}

	resultConst := p.Consts.Int(typ, result)
	zero := p.Consts.IntFromInt64(typ, 0)
	dummy := ir.NewAdd(resultConst, zero)
	ssair.InsertAfter(g, block, inst, dummy)

	instVal := inst.(value.Value)
	p.logf("localopts: folded %s -> %s", instVal.Ident(), resultConst.Ident())
	ssair.ReplaceAllUsesWith(g, instVal, dummy)
	return true
}

func unsignedOf(v *big.Int, bits uint64) *big.Int {
	if bits == 0 || bits >= 64 {
		if v.Sign() < 0 {
			mod := new(big.Int).Lsh(big.NewInt(1), 64)
			return new(big.Int).Add(v, mod)
		}
		return new(big.Int).Set(v)
	}
	if v.Sign() >= 0 {
		return new(big.Int).Set(v)
	}
	mod := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	return new(big.Int).Add(v, mod)
}

// multiInstructionOpt implements MultiInstructionOpt: look for a user of
// inst whose own canonical form cancels inst's operation (same constant,
// opposite opcode), and replace that user's uses with inst's own V
// operand. Returns on the first match, matching the source.
func (p *Pass) multiInstructionOpt(g *ssair.Graph, inst ir.Instruction, v value.Value, c *constant.Int) bool {
	op, ok := opcodeOf(inst)
	if !ok {
		return false
	}
	wantOp, hasOpp := oppositeOp[op]
	if !hasOpp {
		return false
	}
	instVal := inst.(value.Value)
	for _, u := range g.Uses(instVal) {
		userInst, ok := u.User.(ir.Instruction)
		if !ok {
			continue
		}
		userOp, ok := opcodeOf(userInst)
		if !ok || userOp != wantOp {
			continue
		}
		uv, uc, _, ok2 := canonical(userInst)
		if !ok2 || !sameValue(uv, instVal) || uc.X.Cmp(c.X) != 0 {
			continue
		}
		userVal := userInst.(value.Value)
		p.logf("localopts: cancel %s/%s -> %s", instVal.Ident(), userVal.Ident(), v.Ident())
		ssair.ReplaceAllUsesWith(g, userVal, v)
		return true
	}
	return false
}

// strengthReduction implements StrengthReduction: Mul by a constant
// becomes a Shl (plus a corrective Sub when the constant isn't an exact
// power of two), UDiv by a power-of-two constant becomes an LShr.
func (p *Pass) strengthReduction(g *ssair.Graph, block *ir.Block, inst ir.Instruction, v value.Value, c *constant.Int) bool {
	op, ok := opcodeOf(inst)
	if !ok {
		return false
	}
	typ, ok := inst.(value.Value).Type().(*types.IntType)
	if !ok {
		return false
	}
	k := c.X
	if k.Sign() <= 0 {
		return false
	}

	var result value.Value
	switch op {
	case opMul:
		s := ceilLog2(k)
		shiftAmt := p.Consts.IntFromInt64(typ, int64(s))
		shl := ir.NewShl(v, shiftAmt)
		ssair.InsertBefore(g, block, inst, shl)
		pow2 := new(big.Int).Lsh(big.NewInt(1), uint(s))
		if pow2.Cmp(k) == 0 {
			result = shl
		} else {
			residual := new(big.Int).Sub(pow2, k)
			if residual.Cmp(big.NewInt(1)) == 0 {
				sub := ir.NewSub(shl, v)
				ssair.InsertBefore(g, block, inst, sub)
				result = sub
			} else {
				mul := ir.NewMul(v, p.Consts.Int(typ, residual))
				ssair.InsertBefore(g, block, inst, mul)
				sub := ir.NewSub(shl, mul)
				ssair.InsertBefore(g, block, inst, sub)
				result = sub
			}
		}
	case opUDiv:
		if !isPowerOfTwo(k) {
			return false
		}
		s := ceilLog2(k)
		shiftAmt := p.Consts.IntFromInt64(typ, int64(s))
		lshr := ir.NewLShr(v, shiftAmt)
		ssair.InsertBefore(g, block, inst, lshr)
		result = lshr
	default:
		return false
	}

	instVal := inst.(value.Value)
	p.logf("localopts: strength-reduced %s -> %s", instVal.Ident(), result.Ident())
	ssair.ReplaceAllUsesWith(g, instVal, result)
	return true
}

func ceilLog2(k *big.Int) int {
	if k.Cmp(big.NewInt(1)) <= 0 {
		return 0
	}
	s := 0
	p := big.NewInt(1)
	for p.Cmp(k) < 0 {
		p.Lsh(p, 1)
		s++
	}
	return s
}

func isPowerOfTwo(k *big.Int) bool {
	if k.Sign() <= 0 {
		return false
	}
	return new(big.Int).And(k, new(big.Int).Sub(k, big.NewInt(1))).Sign() == 0
}

func sameValue(a, b value.Value) bool {
	return a == b
}
