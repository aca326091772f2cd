// Package ssair supplies the bookkeeping github.com/llir/llvm's ir package
// does not: a reverse use-list over ir.Instruction/ir.Terminator operands,
// constant interning, and the mutation primitives the optimization passes
// build on.
package ssair

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/value"
)

// User is anything with a mutable operand list: every ir.Instruction and
// every ir.Terminator already satisfies this.
type User interface {
	Operands() []*value.Value
}

// Use identifies one occurrence of a value as an operand of a User.
type Use struct {
	User  User
	Index int
}

// Graph is the external use-list: a map from a defined value to every
// place it is used. ir/llvm gives us Operands() per user but no reverse
// index, so we build one, matching the "external HashMap<Value, Vec<Use>>"
// bookkeeping strategy.
type Graph struct {
	uses map[value.Value][]*Use
}

// NewGraph builds a use-list graph for fn by walking every block's
// instructions and terminator.
func NewGraph(fn *ir.Func) *Graph {
	g := &Graph{uses: make(map[value.Value][]*Use)}
	for _, block := range fn.Blocks {
		for _, inst := range block.Insts {
			g.index(inst)
		}
		if block.Term != nil {
			g.index(block.Term)
		}
	}
	return g
}

func (g *Graph) index(u User) {
	for i, operand := range u.Operands() {
		v := *operand
		if v == nil {
			continue
		}
		g.uses[v] = append(g.uses[v], &Use{User: u, Index: i})
	}
}

// Uses returns every recorded use of v. The returned slice must not be
// mutated by callers; use the Graph's own mutation primitives instead.
func (g *Graph) Uses(v value.Value) []*Use {
	return g.uses[v]
}

// HasUses reports whether v is used anywhere in the indexed function.
func (g *Graph) HasUses(v value.Value) bool {
	return len(g.uses[v]) > 0
}

// NumUses reports how many operand slots reference v.
func (g *Graph) NumUses(v value.Value) int {
	return len(g.uses[v])
}

// addUse records a new use of v by user at operand index idx.
func (g *Graph) addUse(v value.Value, user User, idx int) {
	if v == nil {
		return
	}
	g.uses[v] = append(g.uses[v], &Use{User: user, Index: idx})
}

// removeUser drops every recorded use belonging to user, across all
// values. Called when user itself is erased from the IR.
func (g *Graph) removeUser(user User) {
	for v, list := range g.uses {
		filtered := list[:0]
		for _, u := range list {
			if u.User != user {
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

// Reindex recomputes use entries for user's current operand list. Call
// after directly mutating user's operand fields outside of the Graph's
// own helpers (e.g. after building a freshly cloned instruction).
func (g *Graph) Reindex(user User) {
	g.removeUser(user)
	g.index(user)
}
