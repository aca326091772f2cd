package ssair

import (
	"math/big"

	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
)

// ConstantTable interns integer constants by (bit width, value), so that
// repeated folds and strength-reduction rewrites of the same literal
// share one *constant.Int rather than allocating duplicates, matching
// constant.Int's own *big.Int-backed representation.
type ConstantTable struct {
	ints map[constKey]*constant.Int
}

type constKey struct {
	bits uint64
	val  string
}

// NewConstantTable returns an empty interning table.
func NewConstantTable() *ConstantTable {
	return &ConstantTable{ints: make(map[constKey]*constant.Int)}
}

// Int returns the interned *constant.Int of type typ whose value is v
// masked to typ's bit width (two's complement wraparound, matching the
// semantics of the SSA arithmetic these constants feed into).
func (t *ConstantTable) Int(typ *types.IntType, v *big.Int) *constant.Int {
	masked := maskToBitWidth(v, typ.BitSize)
	key := constKey{bits: typ.BitSize, val: masked.Text(10)}
	if c, ok := t.ints[key]; ok {
		return c
	}
	c := constant.NewInt(typ, masked.Int64())
	t.ints[key] = c
	return c
}

// IntFromInt64 is a convenience wrapper over Int for small literals.
func (t *ConstantTable) IntFromInt64(typ *types.IntType, v int64) *constant.Int {
	return t.Int(typ, big.NewInt(v))
}

func maskToBitWidth(v *big.Int, bits uint64) *big.Int {
	if bits == 0 || bits >= 64 {
		// constant.NewInt itself only accepts an int64 payload, so widths
		// beyond 64 bits are represented modulo 2^64 here; this module is
		// scoped to ordinary scalar integer SSA, not arbitrary-precision
		// constants.
		return new(big.Int).Set(v)
	}
	mod := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	m := new(big.Int).Mod(v, mod)
	if m.Sign() < 0 {
		m.Add(m, mod)
	}
	half := new(big.Int).Rsh(mod, 1)
	if m.Cmp(half) >= 0 {
		m.Sub(m, mod)
	}
	return m
}
