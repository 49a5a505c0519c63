package main

import (
	"strconv"

	"github.com/prataprc/isoalloc"
	"github.com/prataprc/isoalloc/lib"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newStatsCmd())
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Probe a fixed set of request sizes and report the chunk sizes granted",
		Long: `stats allocates one chunk for each of a fixed set of request
sizes (1, 16, 17, 100, 4096 and 100000 bytes), reports the chunk size
the allocator actually granted for each, and frees them again. The allocator core exposes no internal zone telemetry by
design, so this command's numbers come only from calls a caller could
make itself.

Example:
  isoallocctl stats --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats()
		},
	}
}

func runStats() error {
	requestSizes := []int{1, 16, 17, 100, 4096, 100000}
	classes := make(map[string]interface{})

	for _, size := range requestSizes {
		p := isoalloc.Alloc(size)
		granted := isoalloc.ChunkSize(p)
		isoalloc.Free(p)
		classes[strconv.Itoa(size)] = granted
	}

	if jsonOut {
		printInfo("%s\n", lib.Prettystats(map[string]interface{}{"requested_to_granted": classes}, true))
		return nil
	}

	for _, size := range requestSizes {
		printInfo("requested %d -> granted %v\n", size, classes[strconv.Itoa(size)])
	}
	return nil
}
