package brm

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/hed1ad/brminer/pkg/detectors"
)

var (
	// ErrNotTrained is returned when scoring before Fit or Load.
	ErrNotTrained = errors.New("model not trained")

	// ErrInvalidConfig is returned when training parameters are out of range.
	ErrInvalidConfig = errors.New("invalid configuration")
)

const (
	// smoothingAlpha weights the history mean against the current similarity.
	smoothingAlpha = 0.5

	// historySize is the number of past similarities kept for smoothing.
	historySize = 3

	// minSampleSize is the smallest bootstrap sample with a defined bandwidth.
	minSampleSize = 2
)

// Config holds the bagging random miner parameters.
type Config struct {
	detectors.Config

	// Estimators is the number of random-center estimators.
	Estimators int
	// SamplePercent is the bootstrap sample size as a percentage of the training set.
	SamplePercent int
	// SampleCount is the absolute bootstrap sample size, used when UseSampleCount is set.
	SampleCount int
	// UseSampleCount selects SampleCount over SamplePercent.
	UseSampleCount bool
	// Smoothing blends each score with the last few similarities.
	Smoothing bool
	// Workers bounds the goroutines computing bandwidths.
	Workers int
}

// DefaultConfig returns the published defaults: 100 estimators, 1% bootstrap
// samples and smoothing enabled.
func DefaultConfig() Config {
	return Config{
		Config:        detectors.DefaultConfig(),
		Estimators:    100,
		SamplePercent: 1,
		Smoothing:     true,
		Workers:       runtime.GOMAXPROCS(0),
	}
}

// Validate checks the parameters that training depends on.
func (c Config) Validate() error {
	switch {
	case c.Estimators < 1:
		return fmt.Errorf("estimators must be positive, got %d: %w", c.Estimators, ErrInvalidConfig)
	case c.SamplePercent < 0:
		return fmt.Errorf("sample percent must not be negative, got %d: %w", c.SamplePercent, ErrInvalidConfig)
	case c.SampleCount < 0:
		return fmt.Errorf("sample count must not be negative, got %d: %w", c.SampleCount, ErrInvalidConfig)
	case c.Contamination < 0 || c.Contamination >= 1:
		return fmt.Errorf("contamination must be in [0, 1), got %v: %w", c.Contamination, ErrInvalidConfig)
	}
	return nil
}

// SampleSize returns the bootstrap sample size for a training set of n instances.
// Sizes below two are raised to two so every estimator has a pairwise bandwidth.
func (c Config) SampleSize(n int) int {
	size := c.SamplePercent * n / 100
	if c.UseSampleCount {
		size = c.SampleCount
	}
	if size < minSampleSize {
		size = minSampleSize
	}
	return size
}
