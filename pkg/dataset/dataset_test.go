package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSchema(t *testing.T) {
	tests := []struct {
		name       string
		labelIndex int
		wantErr    bool
	}{
		{name: "no label", labelIndex: -1},
		{name: "last feature is label", labelIndex: 2},
		{name: "label out of range", labelIndex: 3, wantErr: true},
		{name: "negative label", labelIndex: -2, wantErr: true},
	}

	features := []Feature{
		{Name: "a", Type: Numeric, Index: 7},
		{Name: "b", Type: Categorical},
		{Name: "class", Type: Categorical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSchema(features, tt.labelIndex)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			for i, f := range s.Features {
				assert.Equal(t, i, f.Index)
			}
		})
	}
}

func TestSchemaInputsExcludesLabel(t *testing.T) {
	s, err := NewSchema([]Feature{
		{Name: "x", Type: Numeric},
		{Name: "class", Type: Categorical},
		{Name: "y", Type: Numeric},
	}, 1)
	require.NoError(t, err)

	inputs := s.Inputs()
	require.Len(t, inputs, 2)
	assert.Equal(t, "x", inputs[0].Name)
	assert.Equal(t, "y", inputs[1].Name)
	assert.Equal(t, "class", s.Label().Name)
	assert.True(t, s.IsLabel(1))
	assert.False(t, s.IsLabel(0))
}

func TestSchemaCompatible(t *testing.T) {
	base, _ := NewSchema([]Feature{{Name: "x", Type: Numeric}, {Name: "c", Type: Categorical}}, -1)
	renamed, _ := NewSchema([]Feature{{Name: "u", Type: Numeric}, {Name: "v", Type: Categorical}}, -1)
	swapped, _ := NewSchema([]Feature{{Name: "c", Type: Categorical}, {Name: "x", Type: Numeric}}, -1)
	shorter, _ := NewSchema([]Feature{{Name: "x", Type: Numeric}}, -1)
	labelled, _ := NewSchema([]Feature{{Name: "x", Type: Numeric}, {Name: "c", Type: Categorical}}, 1)

	assert.True(t, base.Compatible(base))
	assert.True(t, base.Compatible(renamed))
	assert.False(t, base.Compatible(swapped))
	assert.False(t, base.Compatible(shorter))
	assert.False(t, base.Compatible(labelled))
	assert.False(t, base.Compatible(nil))
}

func TestNewInstance(t *testing.T) {
	s, _ := NewSchema([]Feature{{Name: "x", Type: Numeric}, {Name: "y", Type: Numeric}}, -1)

	in, err := NewInstance(s, []float64{1, Missing})
	require.NoError(t, err)
	assert.Equal(t, 1.0, in.Value(s.Features[0]))
	assert.True(t, IsMissing(in.Value(s.Features[1])))

	_, err = NewInstance(s, []float64{1})
	assert.Error(t, err)

	_, err = NewInstance(nil, []float64{1, 2})
	assert.Error(t, err)
}

func TestFeatureCode(t *testing.T) {
	f := Feature{Name: "proto", Type: Categorical, Values: []string{"tcp", "udp"}}
	assert.Equal(t, 1, f.Code("udp"))
	assert.Equal(t, -1, f.Code("icmp"))
	assert.Equal(t, "categorical", f.Type.String())
}
