// Package distance implements a range-normalized dissimilarity over mixed
// numeric and categorical instances.
package distance

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"

	"github.com/hed1ad/brminer/pkg/dataset"
)

// Euclidean is a Euclidean dissimilarity where every numeric component is
// divided by the range observed in the reference data and clamped to 1.
// Categorical components contribute 0 on equal codes and 1 otherwise, and a
// missing value on either side always contributes 1. The result is divided
// by the square root of the number of valid features so it lies in [0, 1].
//
// Euclidean is not safe for concurrent use with UpdateTraining.
type Euclidean struct {
	schema   *dataset.Schema
	features []dataset.Feature

	min   []float64
	max   []float64
	span  []float64
	valid int

	maxDissimilarity float64
}

// NewEuclidean learns per-feature ranges from instances.
func NewEuclidean(instances []dataset.Instance, schema *dataset.Schema) (*Euclidean, error) {
	if schema == nil {
		return nil, fmt.Errorf("new euclidean: nil schema: %w", ErrInvalidModel)
	}

	e := &Euclidean{
		schema:   schema,
		features: schema.Inputs(),
		min:      make([]float64, schema.Len()),
		max:      make([]float64, schema.Len()),
	}
	for i := range e.min {
		e.min[i] = math.NaN()
		e.max[i] = math.NaN()
	}

	for i, in := range instances {
		if !schema.Compatible(in.Schema) || len(in.Values) != schema.Len() {
			return nil, fmt.Errorf("new euclidean: instance %d: %w", i, ErrInvalidModel)
		}
		e.expand(in)
	}

	if len(instances) == 0 {
		return nil, fmt.Errorf("new euclidean: no instances: %w", ErrEmptyInput)
	}

	e.recompute()
	return e, nil
}

// Schema returns the schema the metric was learned on.
func (e *Euclidean) Schema() *dataset.Schema {
	return e.schema
}

// Range returns max-min for feature i, NaN when it was never observed or is
// categorical. Only finite ranges count as valid.
func (e *Euclidean) Range(i int) float64 {
	return e.span[i]
}

// ValidFeatures returns the number of features normalizing Compare.
func (e *Euclidean) ValidFeatures() int {
	return e.valid
}

// Compare returns the normalized dissimilarity between a and b over all
// non-label features.
func (e *Euclidean) Compare(a, b dataset.Instance) (float64, error) {
	if err := e.check(a); err != nil {
		return 0, fmt.Errorf("compare source: %w", err)
	}
	if err := e.check(b); err != nil {
		return 0, fmt.Errorf("compare target: %w", err)
	}

	var sum float64
	for _, f := range e.features {
		sum += e.component(f, a, b)
	}

	return normalize(sum, e.maxDissimilarity), nil
}

// CompareSubset compares a and b on subset only, normalized by the subset size.
func (e *Euclidean) CompareSubset(a, b dataset.Instance, subset []dataset.Feature) (float64, error) {
	if len(subset) == 0 {
		return 0, fmt.Errorf("compare subset: no features: %w", ErrEmptyInput)
	}
	if err := e.check(a); err != nil {
		return 0, fmt.Errorf("compare source: %w", err)
	}
	if err := e.check(b); err != nil {
		return 0, fmt.Errorf("compare target: %w", err)
	}
	for _, f := range subset {
		if f.Index < 0 || f.Index >= e.schema.Len() || e.schema.Features[f.Index].Type != f.Type {
			return 0, fmt.Errorf("compare subset: feature %q: %w", f.Name, ErrSchemaMismatch)
		}
	}

	var sum float64
	for _, f := range subset {
		sum += e.component(f, a, b)
	}

	return math.Sqrt(sum) / math.Sqrt(float64(len(subset))), nil
}

// UpdateTraining widens the learned ranges with in. Previously returned
// distances are not rescaled.
func (e *Euclidean) UpdateTraining(in dataset.Instance) error {
	if err := e.check(in); err != nil {
		return fmt.Errorf("update training: %w", err)
	}
	e.expand(in)
	e.recompute()
	return nil
}

func (e *Euclidean) component(f dataset.Feature, a, b dataset.Instance) float64 {
	av, bv := a.Values[f.Index], b.Values[f.Index]
	if dataset.IsMissing(av) || dataset.IsMissing(bv) {
		return 1
	}

	switch f.Type {
	case dataset.Numeric:
		span := e.span[f.Index]
		if !isFinite(span) || span <= 0 {
			return 0
		}
		diff := math.Abs(av-bv) / span
		if math.IsNaN(diff) || diff > 1 {
			return 1
		}
		return diff * diff
	case dataset.Categorical:
		if int(av) != int(bv) {
			return 1
		}
	}
	return 0
}

func (e *Euclidean) expand(in dataset.Instance) {
	for _, f := range e.features {
		if f.Type != dataset.Numeric {
			continue
		}
		v := in.Values[f.Index]
		if dataset.IsMissing(v) {
			continue
		}
		if math.IsNaN(e.min[f.Index]) || v < e.min[f.Index] {
			e.min[f.Index] = v
		}
		if math.IsNaN(e.max[f.Index]) || v > e.max[f.Index] {
			e.max[f.Index] = v
		}
	}
}

func (e *Euclidean) recompute() {
	e.span = make([]float64, len(e.min))
	e.valid = 0
	for i := range e.span {
		e.span[i] = e.max[i] - e.min[i]
	}
	for _, f := range e.features {
		if f.Type == dataset.Categorical || isFinite(e.span[f.Index]) {
			e.valid++
		}
	}
	e.maxDissimilarity = math.Sqrt(float64(e.valid))
}

// Validate reports ErrSchemaMismatch when in cannot be compared under the metric.
func (e *Euclidean) Validate(in dataset.Instance) error {
	return e.check(in)
}

// check validates feature count and per-index types of in against the metric's schema.
func (e *Euclidean) check(in dataset.Instance) error {
	s := in.Schema
	if s == nil || s.Len() != e.schema.Len() || len(in.Values) != e.schema.Len() {
		return ErrSchemaMismatch
	}
	for i := range s.Features {
		if s.Features[i].Type != e.schema.Features[i].Type {
			return fmt.Errorf("feature %d is %s, want %s: %w",
				i, s.Features[i].Type, e.schema.Features[i].Type, ErrSchemaMismatch)
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// normalize keeps the result in [0, 1] when no feature is valid.
func normalize(sum, maxDissimilarity float64) float64 {
	if maxDissimilarity == 0 {
		if sum == 0 {
			return 0
		}
		return 1
	}
	return math.Sqrt(sum) / maxDissimilarity
}

type euclideanState struct {
	Schema dataset.Schema
	Min    []float64
	Max    []float64
}

// GobEncode implements gob.GobEncoder.
func (e *Euclidean) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(euclideanState{
		Schema: *e.schema,
		Min:    e.min,
		Max:    e.max,
	})
	return buf.Bytes(), err
}

// GobDecode implements gob.GobDecoder.
func (e *Euclidean) GobDecode(data []byte) error {
	var st euclideanState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return err
	}
	if len(st.Min) != st.Schema.Len() || len(st.Max) != st.Schema.Len() {
		return fmt.Errorf("decode euclidean: %w", ErrInvalidModel)
	}

	schema := st.Schema
	e.schema = &schema
	e.features = schema.Inputs()
	e.min = st.Min
	e.max = st.Max
	e.recompute()
	return nil
}
