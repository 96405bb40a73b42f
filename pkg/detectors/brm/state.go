package brm

import (
	"fmt"
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"github.com/hed1ad/brminer/pkg/dataset"
	"github.com/hed1ad/brminer/pkg/distance"
	"github.com/hed1ad/brminer/pkg/sampling"
)

// Estimator is one random-center density estimator.
type Estimator struct {
	// Centers is a bootstrap sample of the training set.
	Centers []dataset.Instance
	// Bandwidth is the mean pairwise distance among Centers.
	Bandwidth float64
}

// State is a trained scorer. Classify mutates the smoothing history, so a
// State must not be shared between goroutines without synchronization.
type State struct {
	metric     *distance.Euclidean
	estimators []Estimator
	smoothing  bool
	history    *history
}

// Train builds the metric from data and draws cfg.Estimators bootstrap
// samples with rng. Sampling runs sequentially on rng so a seed fixes the
// result; bandwidths are computed concurrently.
func Train(schema *dataset.Schema, data []dataset.Instance, cfg Config, rng *rand.Rand) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	metric, err := distance.NewEuclidean(data, schema)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	size := cfg.SampleSize(len(data))
	estimators := make([]Estimator, cfg.Estimators)
	for i := range estimators {
		estimators[i].Centers = sampling.WithReplacement(rng, data, size)
	}

	g := new(errgroup.Group)
	if cfg.Workers > 0 {
		g.SetLimit(cfg.Workers)
	}
	for i := range estimators {
		g.Go(func() error {
			bw, err := bandwidth(metric, estimators[i].Centers)
			if err != nil {
				return fmt.Errorf("estimator %d: %w", i, err)
			}
			estimators[i].Bandwidth = bw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	return newState(metric, estimators, cfg.Smoothing), nil
}

func newState(metric *distance.Euclidean, estimators []Estimator, smoothing bool) *State {
	return &State{
		metric:     metric,
		estimators: estimators,
		smoothing:  smoothing,
		history:    newHistory(historySize),
	}
}

// Metric returns the dissimilarity learned at training.
func (s *State) Metric() *distance.Euclidean {
	return s.metric
}

// Estimators returns the trained estimators. Callers must not modify them.
func (s *State) Estimators() []Estimator {
	return s.estimators
}

// Smoothing reports whether Classify blends scores with the history.
func (s *State) Smoothing() bool {
	return s.smoothing
}

// Similarity returns the ensemble-averaged kernel similarity of in without
// touching the smoothing history.
func (s *State) Similarity(in dataset.Instance) (float64, error) {
	if err := s.metric.Validate(in); err != nil {
		return 0, fmt.Errorf("classify: %w", err)
	}

	var sum float64
	for _, est := range s.estimators {
		minDistance := math.MaxFloat64
		for _, c := range est.Centers {
			d, err := s.metric.Compare(in, c)
			if err != nil {
				return 0, fmt.Errorf("classify: %w", err)
			}
			if d < minDistance {
				minDistance = d
			}
		}

		if minDistance > 0 {
			sum += kernel(minDistance, est.Bandwidth)
		} else {
			sum++
		}
	}

	return clampNonNegative(sum / float64(len(s.estimators))), nil
}

// Classify returns the anomaly score of in, 1 minus its similarity to the
// training data. With smoothing, the similarity is averaged with the mean
// of the last three similarities; that mean always divides by three, so the
// first two calls after training read as more anomalous.
func (s *State) Classify(in dataset.Instance) (float64, error) {
	current, err := s.Similarity(in)
	if err != nil {
		return 0, err
	}

	if !s.smoothing {
		return 1 - current, nil
	}

	result := clampNonNegative(smoothingAlpha*s.history.mean() + (1-smoothingAlpha)*current)
	s.history.push(current)

	return 1 - result, nil
}

// ResetHistory forgets past similarities.
func (s *State) ResetHistory() {
	s.history.reset()
}

// kernel is a Gaussian of d with scale bandwidth. A zero bandwidth means
// every center in the estimator was identical, so any positive distance
// yields no similarity.
func kernel(d, bandwidth float64) float64 {
	if bandwidth == 0 {
		return 0
	}
	return math.Exp(-(d * d) / (2 * bandwidth * bandwidth))
}

// bandwidth returns the mean distance over all unique pairs of centers, or 0
// when there is no pair.
func bandwidth(metric *distance.Euclidean, centers []dataset.Instance) (float64, error) {
	var sum float64
	var count int
	for i := 0; i < len(centers)-1; i++ {
		for j := i + 1; j < len(centers); j++ {
			d, err := metric.Compare(centers[i], centers[j])
			if err != nil {
				return 0, err
			}
			sum += d
			count++
		}
	}

	if count == 0 {
		return 0, nil
	}
	return sum / float64(count), nil
}

// clampNonNegative maps negative values, -0 and NaN to 0.
func clampNonNegative(v float64) float64 {
	if !(v > 0) {
		return 0
	}
	return v
}
