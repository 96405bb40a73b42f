// Package detectors defines the contract shared by anomaly detectors and
// the scores they emit.
package detectors

import (
	"context"
	"slices"
	"time"

	"github.com/hed1ad/brminer/pkg/dataset"
	detio "github.com/hed1ad/brminer/pkg/io"
)

// Detector learns what normal instances look like and scores new ones.
// Scores lie in [0, 1]; higher is more anomalous.
type Detector interface {
	// Fit learns from instances of schema that are assumed normal.
	Fit(schema *dataset.Schema, data []dataset.Instance) error

	// Predict scores each instance in order. Stateful detectors may let
	// earlier instances influence later scores.
	Predict(data []dataset.Instance) ([]float64, error)

	// PredictOne scores a single instance.
	PredictOne(sample dataset.Instance) (float64, error)

	// Save serializes the trained model.
	Save() ([]byte, error)

	// Load restores a model written by Save.
	Load(data []byte) error
}

// StreamDetector scores a channel of instances, preserving arrival order.
type StreamDetector interface {
	Detector

	// PredictStream scores instances from input until it closes or ctx is
	// done. It does not close output.
	PredictStream(ctx context.Context, input <-chan dataset.Instance, output chan<- Score) error
}

// Score is one scored instance.
type Score struct {
	// Value is the anomaly score in [0, 1].
	Value float64

	// IsAnomaly reports whether Value reached the detector's threshold.
	IsAnomaly bool

	// Features are the scored instance's values, label included.
	Features []float64

	// Metadata carries caller context such as a request ID.
	Metadata map[string]any
}

// Result converts s to an output record. Features are dropped when any of
// them is missing, as JSON has no NaN. A zero at leaves Timestamp unset.
func (s Score) Result(index int, at time.Time) detio.Result {
	r := detio.Result{
		Index:     index,
		Score:     s.Value,
		IsAnomaly: s.IsAnomaly,
		Metadata:  s.Metadata,
	}
	if !at.IsZero() {
		r.Timestamp = at.Unix()
	}
	if !slices.ContainsFunc(s.Features, dataset.IsMissing) {
		r.Features = s.Features
	}
	return r
}

// Config holds settings every detector understands.
type Config struct {
	// Contamination is the share of training data expected to be anomalous.
	// It positions the threshold after training.
	Contamination float64
	// Threshold is the score at or above which an instance is anomalous.
	Threshold float64

	RandomSeed int64
}

// DefaultConfig returns the settings used when no option overrides them.
func DefaultConfig() Config {
	return Config{
		Contamination: 0.1,
		Threshold:     0.5,
		RandomSeed:    42,
	}
}
