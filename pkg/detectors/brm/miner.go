// Package brm implements the Bagging Random Miner, an ensemble of
// random-center Gaussian density estimators for anomaly detection.
package brm

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hed1ad/brminer/pkg/dataset"
	"github.com/hed1ad/brminer/pkg/detectors"
	"github.com/hed1ad/brminer/pkg/distance"
)

var _ detectors.StreamDetector = (*Miner)(nil)

// Miner is a concurrency-safe Bagging Random Miner. Scoring calls are
// serialized because smoothed scores depend on call order.
type Miner struct {
	mu sync.RWMutex

	cfg    Config
	rng    *rand.Rand
	logger *zap.Logger

	state     *State
	threshold float64
}

// Option configures a Miner.
type Option func(*Miner)

// WithEstimators sets the number of estimators.
func WithEstimators(n int) Option {
	return func(m *Miner) {
		m.cfg.Estimators = n
	}
}

// WithSamplePercent sizes each bootstrap sample as a percentage of the training set.
func WithSamplePercent(p int) Option {
	return func(m *Miner) {
		m.cfg.SamplePercent = p
		m.cfg.UseSampleCount = false
	}
}

// WithSampleCount sizes each bootstrap sample as an absolute count.
func WithSampleCount(n int) Option {
	return func(m *Miner) {
		m.cfg.SampleCount = n
		m.cfg.UseSampleCount = true
	}
}

// WithSmoothing enables or disables temporal smoothing of scores.
func WithSmoothing(on bool) Option {
	return func(m *Miner) {
		m.cfg.Smoothing = on
	}
}

// WithContamination sets the expected proportion of anomalies.
func WithContamination(c float64) Option {
	return func(m *Miner) {
		m.cfg.Contamination = c
	}
}

// WithThreshold sets the anomaly threshold used until calibration replaces it.
func WithThreshold(t float64) Option {
	return func(m *Miner) {
		m.cfg.Threshold = t
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(m *Miner) {
		m.cfg.RandomSeed = seed
		m.rng = rand.New(rand.NewSource(seed))
	}
}

// WithWorkers bounds training concurrency.
func WithWorkers(n int) Option {
	return func(m *Miner) {
		m.cfg.Workers = n
	}
}

// WithLogger sets the logger used for training and streaming events.
func WithLogger(l *zap.Logger) Option {
	return func(m *Miner) {
		m.logger = l
	}
}

// New creates a Miner with the given options.
func New(opts ...Option) *Miner {
	cfg := DefaultConfig()
	m := &Miner{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.RandomSeed)),
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(m)
	}
	m.threshold = m.cfg.Threshold

	return m
}

// Config returns the training parameters.
func (m *Miner) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Fit trains the miner. On failure the previous model, if any, is kept.
func (m *Miner) Fit(schema *dataset.Schema, data []dataset.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	state, err := Train(schema, data, m.cfg, m.rng)
	if err != nil {
		return err
	}

	threshold := m.cfg.Threshold
	if m.cfg.Contamination > 0 {
		// Unsmoothed scores keep calibration from filling the history.
		scores := make([]float64, len(data))
		for i, in := range data {
			sim, err := state.Similarity(in)
			if err != nil {
				return err
			}
			scores[i] = 1 - sim
		}
		threshold = percentile(scores, 100*(1-m.cfg.Contamination))
	}

	var degenerate int
	for _, est := range state.Estimators() {
		if est.Bandwidth == 0 {
			degenerate++
		}
	}

	m.state = state
	m.threshold = threshold

	m.logger.Info("bagging random miner trained",
		zap.Int("instances", len(data)),
		zap.Int("estimators", m.cfg.Estimators),
		zap.Int("sample_size", m.cfg.SampleSize(len(data))),
		zap.Int("valid_features", state.Metric().ValidFeatures()),
		zap.Int("zero_bandwidth", degenerate),
		zap.Float64("threshold", threshold),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// Schema returns the training schema, or nil before training.
func (m *Miner) Schema() *dataset.Schema {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state == nil {
		return nil
	}
	return m.state.Metric().Schema()
}

// Predict scores data in order.
func (m *Miner) Predict(data []dataset.Instance) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == nil {
		return nil, ErrNotTrained
	}

	scores := make([]float64, len(data))
	for i, sample := range data {
		score, err := m.state.Classify(sample)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		scores[i] = score
	}

	return scores, nil
}

// PredictOne returns the anomaly score for a single sample.
func (m *Miner) PredictOne(sample dataset.Instance) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == nil {
		return 0, ErrNotTrained
	}

	return m.state.Classify(sample)
}

// Classify scores sample and compares it with the current threshold.
func (m *Miner) Classify(sample dataset.Instance) (detectors.Score, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == nil {
		return detectors.Score{}, ErrNotTrained
	}

	score, err := m.state.Classify(sample)
	if err != nil {
		return detectors.Score{}, err
	}

	return detectors.Score{
		Value:     score,
		IsAnomaly: score >= m.threshold,
		Features:  sample.Values,
	}, nil
}

// ResetHistory clears the smoothing history.
func (m *Miner) ResetHistory() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != nil {
		m.state.ResetHistory()
	}
}

// PredictStream scores samples from input in arrival order. Samples that
// cannot be scored are logged and skipped.
func (m *Miner) PredictStream(ctx context.Context, input <-chan dataset.Instance, output chan<- detectors.Score) error {
	m.mu.RLock()
	if m.state == nil {
		m.mu.RUnlock()
		return ErrNotTrained
	}
	m.mu.RUnlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sample, ok := <-input:
			if !ok {
				return nil
			}

			score, err := m.Classify(sample)
			if err != nil {
				m.logger.Debug("skipping sample", zap.Error(err))
				continue
			}

			select {
			case output <- score:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

type estimatorState struct {
	Centers   [][]float64
	Bandwidth float64
}

// Save serializes the trained model. The smoothing history is not saved.
func (m *Miner) Save() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state == nil {
		return nil, ErrNotTrained
	}

	estimators := make([]estimatorState, len(m.state.estimators))
	for i, est := range m.state.estimators {
		centers := make([][]float64, len(est.Centers))
		for j, c := range est.Centers {
			centers[j] = c.Values
		}
		estimators[i] = estimatorState{Centers: centers, Bandwidth: est.Bandwidth}
	}

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	if err := enc.Encode(m.cfg); err != nil {
		return nil, err
	}
	if err := enc.Encode(m.threshold); err != nil {
		return nil, err
	}
	if err := enc.Encode(m.state.metric); err != nil {
		return nil, err
	}
	if err := enc.Encode(estimators); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Load deserializes a trained model, replacing the current one.
func (m *Miner) Load(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dec := gob.NewDecoder(bytes.NewBuffer(data))

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return err
	}
	var threshold float64
	if err := dec.Decode(&threshold); err != nil {
		return err
	}
	metric := new(distance.Euclidean)
	if err := dec.Decode(metric); err != nil {
		return err
	}
	var saved []estimatorState
	if err := dec.Decode(&saved); err != nil {
		return err
	}
	if len(saved) == 0 {
		return fmt.Errorf("load: no estimators: %w", ErrInvalidConfig)
	}

	schema := metric.Schema()
	estimators := make([]Estimator, len(saved))
	for i, est := range saved {
		centers := make([]dataset.Instance, len(est.Centers))
		for j, values := range est.Centers {
			centers[j] = dataset.Instance{Values: values, Schema: schema}
		}
		estimators[i] = Estimator{Centers: centers, Bandwidth: est.Bandwidth}
	}

	if cfg.Workers == 0 {
		cfg.Workers = m.cfg.Workers
	}
	m.cfg = cfg
	m.threshold = threshold
	m.state = newState(metric, estimators, cfg.Smoothing)

	return nil
}

// Threshold returns the current anomaly threshold.
func (m *Miner) Threshold() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.threshold
}

// SetThreshold updates the anomaly threshold.
func (m *Miner) SetThreshold(t float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threshold = t
}

// percentile calculates the p-th percentile of the data.
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}

	sorted := slices.Clone(data)
	slices.Sort(sorted)

	idx := int(float64(len(sorted)-1) * p / 100)
	return sorted[idx]
}
