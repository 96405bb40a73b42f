// Package dataset provides the typed feature vectors scored by the detectors.
package dataset

import (
	"errors"
	"fmt"
	"math"
)

// FeatureType is the kind of values a feature holds.
type FeatureType int

const (
	// Numeric features hold real values compared by normalized difference.
	Numeric FeatureType = iota
	// Categorical features hold integer codes compared by exact match.
	Categorical
)

func (t FeatureType) String() string {
	switch t {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	default:
		return fmt.Sprintf("FeatureType(%d)", int(t))
	}
}

// Missing marks a value that was not observed.
var Missing = math.NaN()

// IsMissing reports whether v is the missing-value marker.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// Feature describes one dimension of an instance.
type Feature struct {
	Name  string
	Type  FeatureType
	Index int

	// Values maps categorical codes to their labels. Nil for numeric features.
	Values []string
}

// Code returns the categorical code for label, or -1 when unknown.
func (f *Feature) Code(label string) int {
	for i, v := range f.Values {
		if v == label {
			return i
		}
	}
	return -1
}

// Schema is an ordered set of features with an optional label feature.
type Schema struct {
	Features []Feature

	// LabelIndex is the index of the label feature, or -1 when there is none.
	LabelIndex int
}

// NewSchema builds a schema from features, fixing each feature's index to its position.
func NewSchema(features []Feature, labelIndex int) (*Schema, error) {
	if labelIndex < -1 || labelIndex >= len(features) {
		return nil, fmt.Errorf("label index %d out of range [0, %d)", labelIndex, len(features))
	}

	fs := make([]Feature, len(features))
	copy(fs, features)
	for i := range fs {
		fs[i].Index = i
	}

	return &Schema{Features: fs, LabelIndex: labelIndex}, nil
}

// Len returns the number of features, label included.
func (s *Schema) Len() int {
	return len(s.Features)
}

// IsLabel reports whether the feature at index i is the label.
func (s *Schema) IsLabel(i int) bool {
	return s.LabelIndex >= 0 && i == s.LabelIndex
}

// Label returns the label feature, or nil.
func (s *Schema) Label() *Feature {
	if s.LabelIndex < 0 {
		return nil
	}
	return &s.Features[s.LabelIndex]
}

// Inputs returns the features that take part in distance computations.
func (s *Schema) Inputs() []Feature {
	out := make([]Feature, 0, len(s.Features))
	for i, f := range s.Features {
		if !s.IsLabel(i) {
			out = append(out, f)
		}
	}
	return out
}

// Lookup returns the feature with the given name.
func (s *Schema) Lookup(name string) (*Feature, bool) {
	for i := range s.Features {
		if s.Features[i].Name == name {
			return &s.Features[i], true
		}
	}
	return nil, false
}

// Compatible reports whether vectors of other can be compared under s:
// same feature count, same type per index and the same label.
func (s *Schema) Compatible(other *Schema) bool {
	if s == other {
		return true
	}
	if s == nil || other == nil {
		return false
	}
	if len(s.Features) != len(other.Features) || s.LabelIndex != other.LabelIndex {
		return false
	}
	for i := range s.Features {
		if s.Features[i].Type != other.Features[i].Type {
			return false
		}
	}
	return true
}

// Instance is a feature vector bound to its schema.
type Instance struct {
	Values []float64
	Schema *Schema
}

// NewInstance validates values against schema.
func NewInstance(schema *Schema, values []float64) (Instance, error) {
	if schema == nil {
		return Instance{}, errors.New("nil schema")
	}
	if len(values) != schema.Len() {
		return Instance{}, fmt.Errorf("instance has %d values, schema has %d features", len(values), schema.Len())
	}
	return Instance{Values: values, Schema: schema}, nil
}

// Value returns the value of feature f.
func (in Instance) Value(f Feature) float64 {
	return in.Values[f.Index]
}
