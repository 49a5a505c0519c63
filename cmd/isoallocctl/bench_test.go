package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBenchSettingsReflectsFlags(t *testing.T) {
	benchRoutines = 3
	benchIterations = 10
	benchSeed = 7

	cfg := benchSettings()

	assert.Equal(t, 3, cfg.routines)
	assert.Equal(t, 10, cfg.iterations)
	assert.Equal(t, int64(7), cfg.seed)
}

func TestRunBenchSmallWorkload(t *testing.T) {
	benchRoutines = 2
	benchIterations = 50
	benchSeed = 1

	assert.NoError(t, runBench())
}
