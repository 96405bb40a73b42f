package sampling

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithReplacement(t *testing.T) {
	tests := []struct {
		name    string
		items   []int
		n       int
		wantLen int
	}{
		{name: "empty collection", items: nil, n: 5, wantLen: 0},
		{name: "zero size", items: []int{1, 2, 3}, n: 0, wantLen: 0},
		{name: "smaller than collection", items: []int{1, 2, 3, 4}, n: 2, wantLen: 2},
		{name: "larger than collection", items: []int{1, 2}, n: 10, wantLen: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(1))
			got := WithReplacement(rng, tt.items, tt.n)
			assert.Len(t, got, tt.wantLen)
			for _, v := range got {
				assert.Contains(t, tt.items, v)
			}
		})
	}
}

func TestWithReplacementRepeats(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	got := WithReplacement(rng, []string{"only"}, 4)
	assert.Equal(t, []string{"only", "only", "only", "only"}, got)
}

func TestWithReplacementDeterministic(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	a := WithReplacement(rand.New(rand.NewSource(42)), items, 20)
	b := WithReplacement(rand.New(rand.NewSource(42)), items, 20)
	assert.Equal(t, a, b)
}
