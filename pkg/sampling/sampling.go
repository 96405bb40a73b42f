// Package sampling provides bootstrap sampling helpers.
package sampling

import "math/rand"

// WithReplacement draws n items uniformly from items, allowing repeats.
// It returns nil when items is empty or n is not positive.
func WithReplacement[T any](rng *rand.Rand, items []T, n int) []T {
	if len(items) == 0 || n <= 0 {
		return nil
	}

	sample := make([]T, n)
	for i := range sample {
		sample[i] = items[rng.Intn(len(items))]
	}
	return sample
}
