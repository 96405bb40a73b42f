package distance

import "errors"

var (
	// ErrEmptyInput is returned when a metric is built from no instances.
	ErrEmptyInput = errors.New("empty input")

	// ErrInvalidModel is returned when a reference instance does not belong to the metric's schema.
	ErrInvalidModel = errors.New("invalid instance model")

	// ErrSchemaMismatch is returned when a compared instance does not match the metric's schema.
	ErrSchemaMismatch = errors.New("schema mismatch")
)
