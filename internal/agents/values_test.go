package agents

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoerceNumber(t *testing.T) {
	assert.Equal(t, int64(42), CoerceNumber(42.0))
	assert.Equal(t, 0.25, CoerceNumber(0.25))
	assert.Equal(t, int64(-3), CoerceNumber(-3))
	assert.Nil(t, CoerceNumber(math.NaN()))
	assert.Nil(t, CoerceNumber(math.Inf(1)))
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"12", 12, true},
		{" 3.5 ", 3.5, true},
		{"1,234", 1234, true},
		{"", 0, false},
		{"Indexable", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseNumber(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerceCell(t *testing.T) {
	assert.Nil(t, CoerceCell("  ", true))
	assert.Equal(t, int64(200), CoerceCell("200", true))
	assert.Equal(t, "200", CoerceCell("200", false))
	assert.Equal(t, "n/a", CoerceCell("n/a", true))
}
