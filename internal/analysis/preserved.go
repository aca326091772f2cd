// Package analysis is the analysis oracle: dominance, loop structure, a
// minimal affine SCEV, and a conservative memory dependence query over
// github.com/llir/llvm IR.
package analysis

// Preserved is a pass's report of which analyses remain valid after it
// runs, mirroring LLVM's PreservedAnalyses::none()/all() convention,
// used by every pass's Run method here.
type Preserved int

const (
	// PreservedAll means the pass made no change; every analysis computed
	// before the pass ran is still valid.
	PreservedAll Preserved = iota
	// PreservedNone means the pass mutated the IR; dominance, loop, and
	// dependence info must be recomputed before reuse.
	PreservedNone
)

func (p Preserved) String() string {
	if p == PreservedAll {
		return "all"
	}
	return "none"
}

// Changed reports whether a pass made any modification.
func Changed(changed bool) Preserved {
	if changed {
		return PreservedNone
	}
	return PreservedAll
}
