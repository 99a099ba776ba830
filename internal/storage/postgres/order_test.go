package postgres

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToInt4(t *testing.T) {
	for _, n := range []int{1, 0, math.MaxInt32, math.MinInt32} {
		v, err := toInt4(n)
		require.NoError(t, err)
		assert.EqualValues(t, n, v)
	}

	for _, n := range []int{math.MaxInt32 + 1, 1<<32 + 1, 1 << 32, math.MinInt32 - 1} {
		_, err := toInt4(n)
		assert.Error(t, err, n)
	}
}
