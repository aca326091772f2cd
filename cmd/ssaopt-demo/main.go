// Command ssaopt-demo builds a small sample module, runs LocalOpts,
// LoopOpts and LoopFusion over it, and prints the module before and
// after. It is a demonstration driver, not a general pass-scheduling
// tool: it takes a few boolean flags and, with -verbose, traces pass
// decisions to stderr.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"

	"github.com/optiravm/ssaopt/internal/analysis"
	"github.com/optiravm/ssaopt/internal/localopts"
	"github.com/optiravm/ssaopt/internal/loopfusion"
	"github.com/optiravm/ssaopt/internal/loopopts"
	"github.com/optiravm/ssaopt/internal/ssair"
)

func main() {
	verbose := flag.Bool("verbose", false, "trace pass decisions to stderr")
	runLocal := flag.Bool("localopts", true, "run LocalOpts")
	runLoop := flag.Bool("loopopts", true, "run LoopOpts (LICM)")
	runFusion := flag.Bool("loopfusion", true, "run LoopFusion")
	flag.Parse()

	var logger *log.Logger
	if *verbose {
		logger = log.New(os.Stderr, "ssaopt: ", 0)
	}

	m := buildSampleModule()
	fmt.Println("; --- before ---")
	fmt.Print(m.String())

	for _, fn := range m.Funcs {
		if *runLocal {
			p := localopts.New()
			p.Logger = logger
			p.RunOnFunction(fn)
		}
		if *runLoop {
			runLoopOpts(fn, logger)
		}
		if *runFusion {
			runLoopFusion(fn, logger)
		}
	}

	fmt.Println("; --- after ---")
	fmt.Print(m.String())
}

func runLoopOpts(fn *ir.Func, logger *log.Logger) {
	fa := analysis.Analyze(fn)
	g := ssair.NewGraph(fn)
	pass := loopopts.New()
	pass.Logger = logger
	for _, loop := range fa.LoopInfo.All() {
		pass.Run(g, fa.DomTree, loop)
	}
}

func runLoopFusion(fn *ir.Func, logger *log.Logger) {
	pass := loopfusion.New()
	pass.Logger = logger
	for {
		fa := analysis.Analyze(fn)
		g := ssair.NewGraph(fn)
		if pass.Run(g, fn, fa) == analysis.PreservedAll {
			return
		}
	}
}

// buildSampleModule constructs a function with two adjacent loops that
// sum over the same array: one loop computes an invariant offset every
// iteration (hoistable by LoopOpts), the two loops are then fusible by
// LoopFusion once LocalOpts has simplified the offset computation.
func buildSampleModule() *ir.Module {
	ct := ssair.NewConstantTable()
	m := ir.NewModule()
	fn := m.NewFunc("sums", types.Void, ir.NewParam("n", types.I64), ir.NewParam("arr", types.NewPointer(types.I64)))
	n := fn.Params[0]
	arr := fn.Params[1]

	entry := fn.NewBlock("entry")

	loop1 := ssair.BuildCountedLoop(fn, "1", ct.IntFromInt64(types.I64, 0), n, 1, types.I64, ct)
	entry.NewBr(loop1.Preheader)

	offset := loop1.Body.NewAdd(ct.IntFromInt64(types.I64, 2), ct.IntFromInt64(types.I64, 3))
	idx1 := loop1.Body.NewGetElementPtr(types.I64, arr, loop1.IV)
	v1 := loop1.Body.NewLoad(types.I64, idx1)
	sum1 := loop1.Body.NewAdd(v1, offset)
	loop1.Body.NewStore(sum1, idx1)

	loop2 := ssair.BuildCountedLoop(fn, "2", ct.IntFromInt64(types.I64, 0), n, 1, types.I64, ct)
	// loop1's exit block IS loop2's real preheader (the unique
	// out-of-loop predecessor that dominates loop2's header) — the
	// dedicated preheader BuildCountedLoop wires up for loop2 is left
	// unreachable, which is what makes the two loops "adjacent".
	loop1.Exit.NewBr(loop2.Header)
	for _, inc := range loop2.IV.Incs {
		if inc.Pred == loop2.Preheader {
			inc.Pred = loop1.Exit
		}
	}

	idx2 := loop2.Body.NewGetElementPtr(types.I64, arr, loop2.IV)
	v2 := loop2.Body.NewLoad(types.I64, idx2)
	doubled := loop2.Body.NewMul(v2, ct.IntFromInt64(types.I64, 2))
	loop2.Body.NewStore(doubled, idx2)

	exit := fn.NewBlock("ret")
	loop2.Exit.NewBr(exit)
	exit.NewRet(nil)

	// loop2's own dedicated preheader (built by BuildCountedLoop) is now
	// unreachable, since loop1.Exit branches straight into loop2's
	// header; drop it so it doesn't masquerade as a second predecessor of
	// loop2's header.
	ssair.PruneUnreachableBlocks(fn)

	return m
}
