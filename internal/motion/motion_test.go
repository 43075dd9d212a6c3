package motion

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSample_Magnitude(t *testing.T) {
	assert.InDelta(t, 5.0, Sample{X: 3, Y: 4}.Magnitude(), 1e-12)
	assert.InDelta(t, 9.81, Sample{Z: -9.81}.Magnitude(), 1e-12)
	assert.Zero(t, Sample{}.Magnitude())
}

func TestCell_ZeroValue(t *testing.T) {
	var c Cell
	assert.Zero(t, c.Load())
	_, ok := c.Age(time.Now())
	assert.False(t, ok)
}

func TestCell_LatestWins(t *testing.T) {
	var c Cell
	now := time.Now()

	require.NoError(t, c.Store(1.0, now))
	require.NoError(t, c.StoreSample(Sample{X: 3, Y: 4}, now.Add(time.Second)))
	assert.InDelta(t, 5.0, c.Load(), 1e-12)

	age, ok := c.Age(now.Add(3 * time.Second))
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, age)
}

func TestCell_RejectsInvalid(t *testing.T) {
	var c Cell
	require.NoError(t, c.Store(2.0, time.Now()))

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), -0.1} {
		assert.ErrorIs(t, c.Store(v, time.Now()), ErrInvalidSample)
	}
	assert.Equal(t, 2.0, c.Load(), "invalid samples leave the previous value")
}

func TestCell_ConcurrentAccess(t *testing.T) {
	var c Cell
	var wg sync.WaitGroup

	wg.Go(func() {
		for i := range 1000 {
			_ = c.Store(float64(i), time.Now())
		}
	})
	wg.Go(func() {
		for range 1000 {
			v := c.Load()
			assert.False(t, math.IsNaN(v))
			assert.GreaterOrEqual(t, v, 0.0)
		}
	})
	wg.Wait()

	assert.Equal(t, 999.0, c.Load())
}
