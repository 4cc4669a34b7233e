package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentOf(t *testing.T) {
	cases := []struct {
		cents int64
		rate  float64
		want  int64
	}{
		{1999, 70, 1399},
		{1999, 5, 100},
		{1000, 50, 500},
		{1000, 10, 100},
		{1, 50, 1},
		{1, 49, 0},
		{12345, 12.5, 1543},
		{999, 0, 0},
		{-1999, 70, -1399},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, PercentOf(tc.cents, tc.rate), "%d @ %v", tc.cents, tc.rate)
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "$13.99", Format(1399, "usd"))
	assert.Equal(t, "$0.05", Format(5, ""))
	assert.Equal(t, "1.00 EUR", Format(100, "eur"))
	assert.Equal(t, "-$2.10", Format(-210, "usd"))
}
