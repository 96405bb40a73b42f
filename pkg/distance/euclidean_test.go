package distance

import (
	"bytes"
	"encoding/gob"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/brminer/pkg/dataset"
)

func numericSchema(t testing.TB, n int) *dataset.Schema {
	t.Helper()
	fs := make([]dataset.Feature, n)
	for i := range fs {
		fs[i] = dataset.Feature{Type: dataset.Numeric}
	}
	s, err := dataset.NewSchema(fs, -1)
	require.NoError(t, err)
	return s
}

func mixedSchema(t testing.TB) *dataset.Schema {
	t.Helper()
	s, err := dataset.NewSchema([]dataset.Feature{
		{Name: "size", Type: dataset.Numeric},
		{Name: "proto", Type: dataset.Categorical, Values: []string{"tcp", "udp"}},
		{Name: "ttl", Type: dataset.Numeric},
		{Name: "class", Type: dataset.Categorical, Values: []string{"normal"}},
	}, 3)
	require.NoError(t, err)
	return s
}

func instances(s *dataset.Schema, rows ...[]float64) []dataset.Instance {
	out := make([]dataset.Instance, len(rows))
	for i, r := range rows {
		out[i] = dataset.Instance{Values: r, Schema: s}
	}
	return out
}

func TestNewEuclidean(t *testing.T) {
	s := numericSchema(t, 2)
	other := numericSchema(t, 3)

	tests := []struct {
		name    string
		data    []dataset.Instance
		schema  *dataset.Schema
		wantErr error
	}{
		{
			name:    "empty data",
			data:    nil,
			schema:  s,
			wantErr: ErrEmptyInput,
		},
		{
			name:    "foreign schema",
			data:    append(instances(s, []float64{1, 2}), instances(other, []float64{1, 2, 3})...),
			schema:  s,
			wantErr: ErrInvalidModel,
		},
		{
			name:    "nil schema",
			data:    instances(s, []float64{1, 2}),
			schema:  nil,
			wantErr: ErrInvalidModel,
		},
		{
			name:   "normal data",
			data:   instances(s, []float64{0, 0}, []float64{10, 4}),
			schema: s,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEuclidean(tt.data, tt.schema)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 10.0, e.Range(0))
			assert.Equal(t, 4.0, e.Range(1))
			assert.Equal(t, 2, e.ValidFeatures())
		})
	}
}

func TestEuclideanValidFeatures(t *testing.T) {
	s := mixedSchema(t)
	data := instances(s,
		[]float64{100, 0, dataset.Missing, 0},
		[]float64{200, 1, dataset.Missing, 0},
	)

	e, err := NewEuclidean(data, s)
	require.NoError(t, err)

	// size and proto count; ttl was never observed; class is the label.
	assert.Equal(t, 2, e.ValidFeatures())
	assert.True(t, math.IsNaN(e.Range(2)))
	assert.True(t, math.IsNaN(e.Range(1)))
}

func TestEuclideanZeroRangeCountsAsValid(t *testing.T) {
	s := numericSchema(t, 2)
	e, err := NewEuclidean(instances(s, []float64{3, 3}, []float64{3, 3}), s)
	require.NoError(t, err)

	assert.Equal(t, 0.0, e.Range(0))
	assert.Equal(t, 2, e.ValidFeatures())

	d, err := e.Compare(
		dataset.Instance{Values: []float64{1, 2}, Schema: s},
		dataset.Instance{Values: []float64{50, -7}, Schema: s},
	)
	require.NoError(t, err)
	assert.Equal(t, 0.0, d)
}

func TestEuclideanInfiniteRangeIsNotValid(t *testing.T) {
	s := numericSchema(t, 2)
	e, err := NewEuclidean(instances(s,
		[]float64{1, 0},
		[]float64{2, math.Inf(1)},
		[]float64{3, 1},
		[]float64{5, 0.5},
	), s)
	require.NoError(t, err)

	assert.True(t, math.IsInf(e.Range(1), 1))
	assert.Equal(t, 1, e.ValidFeatures())

	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{name: "finite values", a: []float64{2.5, 1}, b: []float64{1, 0}, want: 0.375},
		{name: "infinite center", a: []float64{2.5, 1}, b: []float64{2, math.Inf(1)}, want: 0.125},
		{name: "both infinite", a: []float64{2, math.Inf(1)}, b: []float64{2, math.Inf(1)}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := e.Compare(
				dataset.Instance{Values: tt.a, Schema: s},
				dataset.Instance{Values: tt.b, Schema: s},
			)
			require.NoError(t, err)
			assert.False(t, math.IsNaN(d))
			assert.InDelta(t, tt.want, d, 1e-12)
		})
	}
}

func TestEuclideanInfiniteComparedToFiniteRange(t *testing.T) {
	s := numericSchema(t, 1)
	e, err := NewEuclidean(instances(s, []float64{0}, []float64{4}), s)
	require.NoError(t, err)

	d, err := e.Compare(
		dataset.Instance{Values: []float64{math.Inf(-1)}, Schema: s},
		dataset.Instance{Values: []float64{2}, Schema: s},
	)
	require.NoError(t, err)
	assert.Equal(t, 1.0, d)
}

func TestEuclideanCompare(t *testing.T) {
	s := mixedSchema(t)
	e, err := NewEuclidean(instances(s,
		[]float64{0, 0, 10, 0},
		[]float64{100, 1, 20, 0},
	), s)
	require.NoError(t, err)
	require.Equal(t, 3, e.ValidFeatures())

	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{
			name: "identical",
			a:    []float64{50, 1, 15, 0},
			b:    []float64{50, 1, 15, 0},
			want: 0,
		},
		{
			name: "label is ignored",
			a:    []float64{50, 1, 15, 0},
			b:    []float64{50, 1, 15, 7},
			want: 0,
		},
		{
			name: "half range on one feature",
			a:    []float64{0, 0, 10, 0},
			b:    []float64{50, 0, 10, 0},
			want: math.Sqrt(0.25) / math.Sqrt(3),
		},
		{
			name: "categorical differs",
			a:    []float64{0, 0, 10, 0},
			b:    []float64{0, 1, 10, 0},
			want: 1 / math.Sqrt(3),
		},
		{
			name: "difference beyond range clamps to one",
			a:    []float64{0, 0, 10, 0},
			b:    []float64{1000, 0, 10, 0},
			want: 1 / math.Sqrt(3),
		},
		{
			name: "missing contributes one",
			a:    []float64{dataset.Missing, 0, 10, 0},
			b:    []float64{0, 0, 10, 0},
			want: 1 / math.Sqrt(3),
		},
		{
			name: "everything differs",
			a:    []float64{0, 0, 10, 0},
			b:    []float64{100, 1, dataset.Missing, 0},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := dataset.Instance{Values: tt.a, Schema: s}
			b := dataset.Instance{Values: tt.b, Schema: s}

			got, err := e.Compare(a, b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)

			back, err := e.Compare(b, a)
			require.NoError(t, err)
			assert.Equal(t, got, back, "compare must be symmetric")
		})
	}
}

func TestEuclideanCompareSchemaMismatch(t *testing.T) {
	s := numericSchema(t, 2)
	e, err := NewEuclidean(instances(s, []float64{0, 0}, []float64{1, 1}), s)
	require.NoError(t, err)

	good := dataset.Instance{Values: []float64{0, 0}, Schema: s}

	wider := numericSchema(t, 3)
	retyped, err := dataset.NewSchema([]dataset.Feature{
		{Type: dataset.Numeric}, {Type: dataset.Categorical},
	}, -1)
	require.NoError(t, err)

	tests := []struct {
		name string
		bad  dataset.Instance
	}{
		{name: "more features", bad: dataset.Instance{Values: []float64{0, 0, 0}, Schema: wider}},
		{name: "different type", bad: dataset.Instance{Values: []float64{0, 0}, Schema: retyped}},
		{name: "no schema", bad: dataset.Instance{Values: []float64{0, 0}}},
		{name: "short vector", bad: dataset.Instance{Values: []float64{0}, Schema: s}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Compare(good, tt.bad)
			assert.ErrorIs(t, err, ErrSchemaMismatch)
			_, err = e.Compare(tt.bad, good)
			assert.ErrorIs(t, err, ErrSchemaMismatch)
		})
	}
}

func TestEuclideanCompareSubset(t *testing.T) {
	s := mixedSchema(t)
	e, err := NewEuclidean(instances(s,
		[]float64{0, 0, 10, 0},
		[]float64{100, 1, 20, 0},
	), s)
	require.NoError(t, err)

	a := dataset.Instance{Values: []float64{0, 0, 10, 0}, Schema: s}
	b := dataset.Instance{Values: []float64{100, 0, 20, 0}, Schema: s}

	got, err := e.CompareSubset(a, b, []dataset.Feature{s.Features[0]})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got, 1e-12)

	got, err = e.CompareSubset(a, b, []dataset.Feature{s.Features[0], s.Features[1]})
	require.NoError(t, err)
	assert.InDelta(t, 1/math.Sqrt(2), got, 1e-12)

	_, err = e.CompareSubset(a, b, nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = e.CompareSubset(a, b, []dataset.Feature{{Index: 1, Type: dataset.Numeric}})
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = e.CompareSubset(a, b, []dataset.Feature{{Index: 9, Type: dataset.Numeric}})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestEuclideanUpdateTraining(t *testing.T) {
	s := numericSchema(t, 2)
	e, err := NewEuclidean(instances(s,
		[]float64{0, dataset.Missing},
		[]float64{10, dataset.Missing},
	), s)
	require.NoError(t, err)
	assert.Equal(t, 1, e.ValidFeatures())

	a := dataset.Instance{Values: []float64{0, 0}, Schema: s}
	b := dataset.Instance{Values: []float64{5, 0}, Schema: s}
	before, err := e.Compare(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, before, 1e-12)

	require.NoError(t, e.UpdateTraining(dataset.Instance{Values: []float64{20, 4}, Schema: s}))
	assert.Equal(t, 20.0, e.Range(0))
	assert.Equal(t, 0.0, e.Range(1))
	assert.Equal(t, 2, e.ValidFeatures())

	// Ranges never shrink.
	require.NoError(t, e.UpdateTraining(dataset.Instance{Values: []float64{5, dataset.Missing}, Schema: s}))
	assert.Equal(t, 20.0, e.Range(0))

	after, err := e.Compare(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 0.25/math.Sqrt(2), after, 1e-12)

	err = e.UpdateTraining(dataset.Instance{Values: []float64{1}, Schema: numericSchema(t, 1)})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestEuclideanNoValidFeatures(t *testing.T) {
	s := numericSchema(t, 1)
	e, err := NewEuclidean(instances(s, []float64{dataset.Missing}), s)
	require.NoError(t, err)
	assert.Equal(t, 0, e.ValidFeatures())

	missing := dataset.Instance{Values: []float64{dataset.Missing}, Schema: s}
	present := dataset.Instance{Values: []float64{1}, Schema: s}

	d, err := e.Compare(missing, present)
	require.NoError(t, err)
	assert.Equal(t, 1.0, d)

	d, err = e.Compare(present, present)
	require.NoError(t, err)
	assert.Equal(t, 0.0, d)
}

func TestEuclideanProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	s := mixedSchema(t)
	data := make([]dataset.Instance, 200)
	for i := range data {
		data[i] = dataset.Instance{Schema: s, Values: []float64{
			rng.Float64() * 1500,
			float64(rng.Intn(2)),
			float64(32 + rng.Intn(96)),
			0,
		}}
	}
	e, err := NewEuclidean(data, s)
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		a, b := data[rng.Intn(len(data))], data[rng.Intn(len(data))]

		self, err := e.Compare(a, a)
		require.NoError(t, err)
		assert.Equal(t, 0.0, self)

		ab, err := e.Compare(a, b)
		require.NoError(t, err)
		ba, err := e.Compare(b, a)
		require.NoError(t, err)
		assert.Equal(t, ab, ba)
		assert.GreaterOrEqual(t, ab, 0.0)
		assert.LessOrEqual(t, ab, 1.0)
	}
}

func TestEuclideanGob(t *testing.T) {
	s := mixedSchema(t)
	original, err := NewEuclidean(instances(s,
		[]float64{0, 0, 10, 0},
		[]float64{100, 1, 20, 0},
	), s)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(original))

	var loaded Euclidean
	require.NoError(t, gob.NewDecoder(&buf).Decode(&loaded))

	a := dataset.Instance{Values: []float64{30, 1, 12, 0}, Schema: s}
	b := dataset.Instance{Values: []float64{60, 0, 19, 0}, Schema: loaded.Schema()}

	want, err := original.Compare(a, b)
	require.NoError(t, err)
	got, err := loaded.Compare(a, b)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, original.ValidFeatures(), loaded.ValidFeatures())
}

func BenchmarkCompare(b *testing.B) {
	s := numericSchema(b, 10)
	data := make([]dataset.Instance, 1000)
	for i := range data {
		v := make([]float64, 10)
		for j := range v {
			v[j] = rand.NormFloat64()
		}
		data[i] = dataset.Instance{Values: v, Schema: s}
	}
	e, _ := NewEuclidean(data, s)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Compare(data[i%len(data)], data[(i+1)%len(data)])
	}
}
