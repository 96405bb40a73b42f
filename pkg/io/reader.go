// Package io provides input/output utilities for data ingestion.
package io

import (
	"context"

	"github.com/hed1ad/brminer/pkg/dataset"
)

// Reader is the interface for reading data from various sources.
type Reader interface {
	// Schema describes the instances the reader produces.
	Schema() *dataset.Schema

	// Read returns the complete dataset.
	Read() ([]dataset.Instance, error)

	// Stream returns a channel of instances for real-time processing.
	Stream(ctx context.Context) (<-chan dataset.Instance, error)

	// Close releases resources.
	Close() error
}

// FeatureExtractor extracts feature vectors from raw data.
type FeatureExtractor interface {
	// Extract converts raw input to an instance.
	Extract(data any) (dataset.Instance, error)

	// Schema describes the extracted features.
	Schema() *dataset.Schema
}

// Writer is the interface for writing detection results.
type Writer interface {
	// Write outputs a single result.
	Write(result Result) error

	// WriteAll outputs multiple results.
	WriteAll(results []Result) error

	// Close releases resources.
	Close() error
}

// Result represents an anomaly detection result.
type Result struct {
	Index     int            `json:"index"`
	Timestamp int64          `json:"timestamp"`
	Score     float64        `json:"score"`
	IsAnomaly bool           `json:"is_anomaly"`
	Features  []float64      `json:"features,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
