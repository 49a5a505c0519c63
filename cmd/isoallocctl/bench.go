package main

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/prataprc/isoalloc"
	"github.com/prataprc/isoalloc/lib"
	"github.com/spf13/cobra"
)

// benchConfig holds one bench run's parameters, read once from the
// command's own flags at the start of runBench.
type benchConfig struct {
	routines   int
	iterations int
	seed       int64
}

var (
	benchRoutines   int
	benchIterations int
	benchSeed       int64
)

func init() {
	cmd := newBenchCmd()
	cmd.Flags().IntVar(&benchRoutines, "routines", 4, "Number of concurrent goroutines")
	cmd.Flags().IntVar(&benchIterations, "iterations", 100000, "Alloc/free pairs per goroutine")
	cmd.Flags().Int64Var(&benchSeed, "seed", 1, "Base seed for per-goroutine PRNGs")
	rootCmd.AddCommand(cmd)
}

func newBenchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bench",
		Short: "Run sustained alloc/free churn across the default size classes",
		Long: `bench spins up N goroutines, each performing a configurable
number of alloc/free pairs of random default-class sizes, then reports
a summary of what happened.

Example:
  isoallocctl bench --routines 8 --iterations 200000
  isoallocctl bench --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench()
		},
	}
}

// benchSettings snapshots the command's flags into a benchConfig,
// without touching any compile-time tunable of the allocator core
// itself.
func benchSettings() benchConfig {
	return benchConfig{
		routines:   benchRoutines,
		iterations: benchIterations,
		seed:       benchSeed,
	}
}

type benchSummary struct {
	Routines     int64  `json:"routines"`
	Iterations   int64  `json:"iterations_per_routine"`
	TotalOps     int64  `json:"total_alloc_free_pairs"`
	Elapsed      string `json:"elapsed"`
	VerifyPassed bool   `json:"verify_all_passed"`
}

func runBench() error {
	cfg := benchSettings()
	routines := cfg.routines
	iterations := cfg.iterations
	seed := cfg.seed

	printVerbose("starting bench: routines=%d iterations=%d seed=%d\n", routines, iterations, seed)

	var wg sync.WaitGroup
	var totalOps int64

	start := time.Now()
	wg.Add(routines)
	for n := 0; n < routines; n++ {
		go func(routineSeed int64) {
			defer wg.Done()
			churn(routineSeed, iterations, &totalOps)
		}(seed + int64(n))
	}
	wg.Wait()
	elapsed := time.Since(start)

	verifyPassed := true
	func() {
		defer func() {
			if r := recover(); r != nil {
				verifyPassed = false
				printInfo("verify-all failed: %v\n", r)
			}
		}()
		isoalloc.VerifyAll()
	}()

	summary := benchSummary{
		Routines:     int64(routines),
		Iterations:   int64(iterations),
		TotalOps:     atomic.LoadInt64(&totalOps),
		Elapsed:      elapsed.String(),
		VerifyPassed: verifyPassed,
	}

	if jsonOut {
		printInfo("%s\n", lib.Prettystats(map[string]interface{}{
			"routines":               summary.Routines,
			"iterations_per_routine": summary.Iterations,
			"total_alloc_free_pairs": summary.TotalOps,
			"elapsed":                summary.Elapsed,
			"verify_all_passed":      summary.VerifyPassed,
		}, true))
		return nil
	}

	printInfo("routines: %d\n", summary.Routines)
	printInfo("iterations per routine: %d\n", summary.Iterations)
	printInfo("total alloc/free pairs: %d\n", summary.TotalOps)
	printInfo("elapsed: %s\n", summary.Elapsed)
	printInfo("verify-all passed: %v\n", summary.VerifyPassed)
	return nil
}

func churn(seed int64, iterations int, totalOps *int64) {
	rnd := rand.New(rand.NewSource(seed))
	sizes := []int{16, 32, 64, 128, 256, 512, 1024, 2048, 4096}

	for i := 0; i < iterations; i++ {
		size := sizes[rnd.Intn(len(sizes))]
		p := isoalloc.Alloc(size)

		b := unsafe.Slice((*byte)(p), size)
		b[0] = byte(seed)
		b[size-1] = byte(seed)

		isoalloc.Free(p)
		atomic.AddInt64(totalOps, 1)
	}
}
