package coerce_test

import (
	"testing"

	"github.com/paveg/fruitflow/internal/coerce"
	"github.com/stretchr/testify/assert"
)

func TestDelocalizedInt(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   int64
		valid  bool
		failed bool
	}{
		{name: "grouped millions", input: "1.234.567", want: 1234567, valid: true},
		{name: "grouped thousands", input: "1.234", want: 1234, valid: true},
		{name: "surrounding spaces", input: "  5.678 ", want: 5678, valid: true},
		{name: "plain", input: "42", want: 42, valid: true},
		{name: "blank is null", input: "   ", valid: false},
		{name: "only dots is null", input: "...", valid: false},
		{name: "garbage fails", input: "n/a", failed: true},
		{name: "decimal comma fails", input: "1,5", failed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := coerce.DelocalizedInt(tt.input)
			assert.Equal(t, tt.valid, r.Valid)
			assert.Equal(t, tt.failed, r.Failed)
			if tt.valid {
				assert.Equal(t, tt.want, r.Value)
			}
		})
	}
}

func TestDelocalizedFloat(t *testing.T) {
	r := coerce.DelocalizedFloat("25.412.581.716")
	assert.True(t, r.Valid)
	assert.InDelta(t, 25412581716.0, r.Value, 0)

	r = coerce.DelocalizedFloat("5.678")
	assert.True(t, r.Valid)
	assert.InDelta(t, 5678.0, r.Value, 0)

	r = coerce.DelocalizedFloat("abc")
	assert.False(t, r.Valid)
	assert.True(t, r.Failed)
}

func TestDelocalize_NoFractionalLoss(t *testing.T) {
	inputs := map[string]int64{
		"1":             1,
		"12.345":        12345,
		"1.000.000":     1000000,
		"999.999.999":   999999999,
		"5.144.111.652": 5144111652,
	}
	for in, want := range inputs {
		assert.Equal(t, want, coerce.DelocalizedInt(in).Value, in)
		f := coerce.DelocalizedFloat(in)
		assert.InDelta(t, float64(want), f.Value, 0, in)
	}
}

func TestSplitPart(t *testing.T) {
	week, ok := coerce.SplitPart("35-2019", "-", 0)
	assert.True(t, ok)
	assert.Equal(t, "35", week)

	year, ok := coerce.SplitPart("35- 2019", "-", 1)
	assert.True(t, ok)
	assert.Equal(t, "2019", year)

	_, ok = coerce.SplitPart("35", "-", 1)
	assert.False(t, ok)
}

func TestCounter(t *testing.T) {
	var c coerce.Counter
	coerce.Observe(&c, coerce.Int("1"))
	coerce.Observe(&c, coerce.Int("x"))
	coerce.Observe(&c, coerce.Null[int64]())
	assert.Equal(t, coerce.Counter{Valid: 1, Nulls: 1, Failed: 1}, c)
}
